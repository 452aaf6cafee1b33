package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ytwritergod/archivetoziptest/cli/render"
	"github.com/ytwritergod/archivetoziptest/splitter"
)

// JoinResponse is the response for the join command.
type JoinResponse struct {
	Output string `json:"output" yaml:"output"`
	Parts  int    `json:"parts" yaml:"parts"`
	Bytes  int64  `json:"bytes" yaml:"bytes"`
}

// JoinCommand returns the join command, which reassembles parts produced
// by split or received from the bot.
func JoinCommand() *cli.Command {
	return &cli.Command{
		Name:      "join",
		Usage:     "Reassemble numbered parts into one file",
		ArgsUsage: "<output> <part>...",
		Flags: append(ReadOnlyFlags(),
			&cli.BoolFlag{
				Name:  "keep-order",
				Usage: "Join parts in argument order instead of by part number",
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Overwrite an existing output file",
			},
		),
		Action: joinAction,
	}
}

func joinAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for join command", 1)
	}
	if c.NArg() < 2 {
		return cli.Exit("join requires an output path and at least one part", 1)
	}

	args := c.Args().Slice()
	dst, parts := args[0], append([]string(nil), args[1:]...)
	if !c.Bool("keep-order") {
		splitter.SortParts(parts)
	}
	if _, err := os.Stat(dst); err == nil && !c.Bool("force") {
		return cli.Exit(fmt.Sprintf("%s already exists (use --force to overwrite)", dst), 1)
	}

	if err := splitter.Join(dst, parts); err != nil {
		return cli.Exit(fmt.Sprintf("join failed: %v", err), 1)
	}
	info, err := os.Stat(dst)
	if err != nil {
		return err
	}
	return r.Render(JoinResponse{Output: dst, Parts: len(parts), Bytes: info.Size()})
}
