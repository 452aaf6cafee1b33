// Package main provides the bundlebot entrypoint.
//
// Usage:
//
//	bundlebot <command> [options]
//
// A .env file in the working directory is loaded before flags are parsed,
// so BOT_TOKEN and AUTHORIZED_USERS may live there.
//
// Exit codes for `serve`:
//   - 0: clean shutdown
//   - 1: invalid configuration
//   - 2: start-up failure (staging root, mirror, adapter, Bot API)
//   - 3: the update loop stopped unexpectedly
package main

import (
	"errors"
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v2"

	"github.com/ytwritergod/archivetoziptest/cli/cmd"
	"github.com/ytwritergod/archivetoziptest/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "bundlebot",
		Usage:          "Telegram bot that bundles uploaded files into zip or 7z archives",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.ServeCommand(),
			cmd.ListCommand(),
			cmd.SweepCommand(),
			cmd.SplitCommand(),
			cmd.JoinCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already handled the exit for cli.ExitCoder errors.
		os.Exit(1)
	}
}

// exitErrHandler preserves exit codes from cli.Exit().
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	code, msg := exitStatus(err)
	if msg != "" {
		fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(code)
}

// exitStatus maps an error to an exit code and the message worth printing.
// cli.Exit("", N).Error() returns "exit status N", which is not printed.
func exitStatus(err error) (int, string) {
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg == fmt.Sprintf("exit status %d", code) {
			msg = ""
		}
		return code, msg
	}
	return 1, fmt.Sprintf("Error: %v", err)
}
