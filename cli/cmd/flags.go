// Package cmd provides CLI commands for the bundlebot binary.
package cmd

import "github.com/urfave/cli/v2"

// Output flags shared by the inspection commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only the list command supports it.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (list only)",
	}
)

// Configuration flags. Each overrides the matching config file key.
var (
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to bundlebot.yaml",
		EnvVars: []string{"BUNDLEBOT_CONFIG"},
	}

	TokenFlag = &cli.StringFlag{
		Name:    "token",
		Usage:   "Telegram bot token (overrides telegram.token)",
		EnvVars: []string{"BOT_TOKEN"},
	}

	AuthorizedUsersFlag = &cli.StringFlag{
		Name:    "authorized-users",
		Usage:   "Comma-separated user IDs (overrides authorized_users)",
		EnvVars: []string{"AUTHORIZED_USERS"},
	}

	StagingRootFlag = &cli.StringFlag{
		Name:    "staging-root",
		Usage:   "Staging directory (overrides staging.root)",
		EnvVars: []string{"BUNDLEBOT_STAGING_ROOT"},
	}

	ChunkSizeFlag = &cli.StringFlag{
		Name:  "chunk-size",
		Usage: "Largest archive sent whole, e.g. 2GiB (overrides limits.chunk_size)",
	}

	LogLevelFlag = &cli.StringFlag{
		Name:    "log-level",
		Usage:   "Log level: debug, info, warn, error (overrides log.level)",
		EnvVars: []string{"BUNDLEBOT_LOG_LEVEL"},
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// ServeFlags returns every configuration flag.
func ServeFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		TokenFlag,
		AuthorizedUsersFlag,
		StagingRootFlag,
		ChunkSizeFlag,
		LogLevelFlag,
	}
}

// StagingFlags returns the flags needed to locate the staging area.
func StagingFlags() []cli.Flag {
	return []cli.Flag{ConfigFlag, StagingRootFlag}
}
