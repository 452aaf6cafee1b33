package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/ytwritergod/archivetoziptest/cli/render"
	"github.com/ytwritergod/archivetoziptest/cli/tui"
	"github.com/ytwritergod/archivetoziptest/staging"
)

// listWarningThreshold is the number of results above which a warning is emitted.
const listWarningThreshold = 100

// isStderrTTY returns true if stderr is connected to a terminal.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// ListingRow is one staging directory as reported by list and sweep.
type ListingRow struct {
	staging.Listing `yaml:",inline"`
	Status          string `json:"status" yaml:"status"`
}

// ListingTable renders staging listings.
type ListingTable struct {
	Items []ListingRow `json:"items" yaml:"items"`
	now   time.Time
}

// Header implements render.Table.
func (ListingTable) Header() []string {
	return []string{"USER", "GEN", "SESSION", "AGE", "FILES", "SIZE", "STATUS", "PATH"}
}

// Rows implements render.Table.
func (t ListingTable) Rows() [][]string {
	rows := make([][]string, 0, len(t.Items))
	for _, it := range t.Items {
		session := it.SessionID
		if len(session) > 8 {
			session = session[:8]
		}
		rows = append(rows, []string{
			fmt.Sprint(it.UserID),
			fmt.Sprint(it.Generation),
			session,
			humanize.RelTime(it.CreatedAt, t.now, "ago", "from now"),
			fmt.Sprint(it.Files),
			humanize.IBytes(uint64(max(it.Bytes, 0))),
			it.Status,
			it.Path,
		})
	}
	return rows
}

func newListingTable(listings []staging.Listing, staleAfter time.Duration, now time.Time) ListingTable {
	t := ListingTable{Items: make([]ListingRow, 0, len(listings)), now: now}
	for _, l := range listings {
		t.Items = append(t.Items, ListingRow{Listing: l, Status: tui.StatusOf(l, staleAfter, now)})
	}
	return t
}

// ListCommand returns the list command, which shows the staging area.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List session staging directories",
		Flags: append(append(ReadOnlyFlags(), StagingFlags()...),
			&cli.DurationFlag{
				Name:  "stale-after",
				Usage: "Flag directories older than this as stale (default: limits.idle_expiry)",
			},
		),
		Action: listAction,
	}
}

func listAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	area, err := staging.NewArea(cfg.Staging.Root)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	staleAfter := cfg.Limits.IdleExpiry.Duration
	if c.IsSet("stale-after") {
		staleAfter = c.Duration("stale-after")
	}

	if c.Bool("tui") {
		return tui.RunStaging(area.List, staleAfter)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	listings, err := area.List()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	// Warn on large output (TTY only to avoid noise in pipelines)
	if len(listings) > listWarningThreshold && isStderrTTY() {
		fmt.Fprintf(os.Stderr, "Warning: %d staging directories. Consider running sweep.\n\n", len(listings))
	}
	return r.Render(newListingTable(listings, staleAfter, time.Now()))
}
