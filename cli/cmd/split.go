package cmd

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/ytwritergod/archivetoziptest/cli/config"
	"github.com/ytwritergod/archivetoziptest/cli/render"
	"github.com/ytwritergod/archivetoziptest/splitter"
	"github.com/ytwritergod/archivetoziptest/types"
)

// PartRow describes one part written by split.
type PartRow struct {
	Seq   int    `json:"seq" yaml:"seq"`
	Total int    `json:"total" yaml:"total"`
	Path  string `json:"path" yaml:"path"`
	Size  int64  `json:"size" yaml:"size"`
}

// PartTable renders split output.
type PartTable []PartRow

// Header implements render.Table.
func (PartTable) Header() []string { return []string{"SEQ", "PATH", "SIZE"} }

// Rows implements render.Table.
func (t PartTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, p := range t {
		rows = append(rows, []string{
			fmt.Sprintf("%d/%d", p.Seq, p.Total),
			p.Path,
			humanize.IBytes(uint64(p.Size)),
		})
	}
	return rows
}

func newPartTable(parts []types.Part) PartTable {
	t := make(PartTable, 0, len(parts))
	for _, p := range parts {
		t = append(t, PartRow{Seq: p.Seq, Total: p.Total, Path: p.Path, Size: p.Size})
	}
	return t
}

// SplitCommand returns the split command, which cuts a file into
// <file>.partNNN pieces the way the bot does before delivery.
func SplitCommand() *cli.Command {
	return &cli.Command{
		Name:      "split",
		Usage:     "Split a file into numbered parts",
		ArgsUsage: "<file>",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:  "size",
				Usage: "Largest part size, e.g. 2GiB or 50MB",
				Value: config.ByteSize(splitter.DefaultLimit).String(),
			},
		),
		Action: splitAction,
	}
}

func splitAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for split command", 1)
	}
	if c.NArg() != 1 {
		return cli.Exit("split requires exactly one file argument", 1)
	}

	limit, err := config.ParseByteSize(c.String("size"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if limit <= 0 {
		return cli.Exit("--size must be positive", 1)
	}

	src := c.Args().First()
	info, err := os.Stat(src)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot read %s: %v", src, err), 1)
	}
	if info.Size() <= int64(limit) {
		return cli.Exit(fmt.Sprintf("%s is %s, within the %s limit; nothing to split",
			src, humanize.IBytes(uint64(info.Size())), limit), 1)
	}

	parts, err := splitter.Split(src, int64(limit))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return r.Render(newPartTable(parts))
}
