package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/ytwritergod/archivetoziptest/adapter"
	"github.com/ytwritergod/archivetoziptest/adapter/redis"
	"github.com/ytwritergod/archivetoziptest/adapter/webhook"
	"github.com/ytwritergod/archivetoziptest/archive"
	"github.com/ytwritergod/archivetoziptest/cli/config"
	"github.com/ytwritergod/archivetoziptest/mirror"
)

// loadConfig reads --config (or the defaults when unset) and applies
// flag overrides. The result is not validated.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String(ConfigFlag.Name); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}
	if err := applyOverrides(c, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyOverrides copies explicitly set flags over file values. Flags not
// defined on the running command are ignored.
func applyOverrides(c *cli.Context, cfg *config.Config) error {
	if c.IsSet(TokenFlag.Name) {
		cfg.Telegram.Token = c.String(TokenFlag.Name)
	}
	if c.IsSet(AuthorizedUsersFlag.Name) {
		users, err := config.ParseUserList(c.String(AuthorizedUsersFlag.Name))
		if err != nil {
			return fmt.Errorf("--%s: %w", AuthorizedUsersFlag.Name, err)
		}
		cfg.AuthorizedUsers = users
	}
	if c.IsSet(StagingRootFlag.Name) {
		cfg.Staging.Root = c.String(StagingRootFlag.Name)
	}
	if c.IsSet(ChunkSizeFlag.Name) {
		size, err := config.ParseByteSize(c.String(ChunkSizeFlag.Name))
		if err != nil {
			return fmt.Errorf("--%s: %w", ChunkSizeFlag.Name, err)
		}
		cfg.Limits.ChunkSize = size
	}
	if c.IsSet(LogLevelFlag.Name) {
		cfg.Log.Level = c.String(LogLevelFlag.Name)
	}
	return nil
}

// buildBuilder registers the zip and 7z backends. A missing 7z binary is
// reported at build time so that zip keeps working.
func buildBuilder(cfg config.ArchiveConfig) (*archive.Builder, bool) {
	sevenZip := archive.NewSevenZipBackend(cfg.SevenZipBinary)
	return archive.NewBuilder(archive.NewZipBackend(), sevenZip), sevenZip.Available()
}

// buildMirror creates the configured archive mirror. It returns a nil
// Writer when mirroring is disabled.
func buildMirror(ctx context.Context, cfg config.MirrorConfig) (mirror.Writer, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "fs":
		return mirror.NewFS(cfg.Dataset, cfg.Path), nil
	case "s3":
		bucket, prefix := mirror.ParseS3Path(cfg.Path)
		store, err := mirror.NewS3(ctx, cfg.Dataset, mirror.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       cfg.Region,
			Endpoint:     cfg.Endpoint,
			UsePathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 mirror: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown mirror backend %q", cfg.Backend)
	}
}

// buildAdapter creates the configured notification adapter. It returns a
// nil Adapter when notifications are disabled.
func buildAdapter(cfg config.AdapterConfig) (adapter.Adapter, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "webhook":
		retries := webhook.DefaultRetries
		if cfg.Retries != nil {
			retries = *cfg.Retries
		}
		a, err := webhook.New(webhook.Config{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Secret:  cfg.Secret,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	case "redis":
		retries := redis.DefaultRetries
		if cfg.Retries != nil {
			retries = *cfg.Retries
		}
		a, err := redis.New(redis.Config{
			URL:     cfg.URL,
			Mode:    redis.Mode(cfg.Mode),
			Key:     cfg.Channel,
			MaxLen:  cfg.MaxLen,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown adapter type %q", cfg.Type)
	}
}
