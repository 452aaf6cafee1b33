package cmd

import (
	"runtime"

	"github.com/urfave/cli/v2"

	"github.com/ytwritergod/archivetoziptest/cli/render"
	"github.com/ytwritergod/archivetoziptest/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version  string `json:"version" yaml:"version"`
	Contract string `json:"contract_version" yaml:"contract_version"`
	Commit   string `json:"commit" yaml:"commit"`
	Go       string `json:"go" yaml:"go"`
}

// VersionCommand returns the version command.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}

		// TUI not supported for version command
		if c.Bool("tui") {
			return cli.Exit("--tui is not supported for version command", 1)
		}

		return r.Render(VersionResponse{
			Version:  types.Version,
			Contract: types.ContractVersion,
			Commit:   commit,
			Go:       runtime.Version(),
		})
	}
}
