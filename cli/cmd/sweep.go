package cmd

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ytwritergod/archivetoziptest/cli/render"
	"github.com/ytwritergod/archivetoziptest/staging"
)

// SweepCommand returns the sweep command, which removes leftover staging
// directories. Running it against the staging root of a live bot removes
// sessions older than --older-than, in-flight or not.
func SweepCommand() *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "Remove staging directories older than a cutoff",
		Flags: append(append(ReadOnlyFlags(), StagingFlags()...),
			&cli.DurationFlag{
				Name:  "older-than",
				Usage: "Age cutoff (default: staging.sweep_after)",
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Remove every directory regardless of age",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Report what would be removed without removing it",
			},
		),
		Action: sweepAction,
	}
}

func sweepAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for sweep command", 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	olderThan := cfg.Staging.SweepAfter.Duration
	if c.IsSet("older-than") {
		olderThan = c.Duration("older-than")
	}
	switch {
	case c.Bool("all"):
		olderThan = 0
	case olderThan <= 0:
		return cli.Exit("--older-than must be positive (use --all to remove everything)", 1)
	}

	area, err := staging.NewArea(cfg.Staging.Root)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	now := time.Now()
	var removed []staging.Listing
	if c.Bool("dry-run") {
		removed, err = sweepCandidates(area, olderThan, now)
	} else {
		removed, err = area.Sweep(olderThan, now)
	}
	if err != nil && len(removed) == 0 {
		return cli.Exit(fmt.Sprintf("sweep failed: %v", err), 1)
	}
	if renderErr := r.Render(newListingTable(removed, 0, now)); renderErr != nil {
		return renderErr
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("sweep incomplete: %v", err), 1)
	}
	return nil
}

// sweepCandidates returns what Sweep would remove.
func sweepCandidates(area *staging.Area, olderThan time.Duration, now time.Time) ([]staging.Listing, error) {
	listings, err := area.List()
	if err != nil {
		return nil, err
	}
	cutoff := now.Add(-olderThan)
	var out []staging.Listing
	for _, l := range listings {
		if olderThan > 0 && !l.CreatedAt.Before(cutoff) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}
