// Package config loads the bundlebot YAML configuration.
//
// Every value has a default, so an empty file is a valid configuration
// apart from the bot token. CLI flags override file values.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Config is a bundlebot.yaml configuration file.
type Config struct {
	Telegram        TelegramConfig `yaml:"telegram"`
	AuthorizedUsers UserList       `yaml:"authorized_users"`
	Staging         StagingConfig  `yaml:"staging"`
	Limits          LimitsConfig   `yaml:"limits"`
	Archive         ArchiveConfig  `yaml:"archive"`
	Mirror          MirrorConfig   `yaml:"mirror"`
	Adapter         AdapterConfig  `yaml:"adapter"`
	Log             LogConfig      `yaml:"log"`
}

// TelegramConfig selects the Bot API server and credentials.
type TelegramConfig struct {
	Token        string   `yaml:"token"`
	APIEndpoint  string   `yaml:"api_endpoint"`
	FileEndpoint string   `yaml:"file_endpoint"`
	PollTimeout  Duration `yaml:"poll_timeout"`
}

// StagingConfig locates per-session working directories.
type StagingConfig struct {
	Root string `yaml:"root"`
	// SweepAfter is the age past which leftover directories are removed
	// at start-up. Zero disables the start-up sweep.
	SweepAfter Duration `yaml:"sweep_after"`
}

// LimitsConfig bounds resource use.
type LimitsConfig struct {
	ChunkSize     ByteSize `yaml:"chunk_size"`
	MaxSessions   int      `yaml:"max_sessions"`
	MaxFiles      int      `yaml:"max_files"`
	MaxFileSize   ByteSize `yaml:"max_file_size"`
	IdleExpiry    Duration `yaml:"idle_expiry"`
	UploadTimeout Duration `yaml:"upload_timeout"`
}

// ArchiveConfig configures archive backends.
type ArchiveConfig struct {
	SevenZipBinary string `yaml:"sevenzip_binary"`
}

// MirrorConfig selects where built archives are copied.
// Backend is "", "fs" or "s3". Path is a directory for fs and
// bucket[/prefix] for s3.
type MirrorConfig struct {
	Backend     string `yaml:"backend"`
	Dataset     string `yaml:"dataset"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AdapterConfig selects the completion notification adapter.
// Type is "", "webhook" or "redis".
type AdapterConfig struct {
	Type    string   `yaml:"type"`
	URL     string   `yaml:"url"`
	Timeout Duration `yaml:"timeout,omitempty"`
	Retries *int     `yaml:"retries,omitempty"`

	// Webhook only.
	Headers map[string]string `yaml:"headers,omitempty"`
	Secret  string            `yaml:"secret,omitempty"`

	// Redis only. Mode is "publish" (default) or "stream"; Channel names
	// the channel or stream.
	Mode    string `yaml:"mode,omitempty"`
	Channel string `yaml:"channel,omitempty"`
	MaxLen  int64  `yaml:"max_len,omitempty"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used for unset keys.
func Default() Config {
	return Config{
		Telegram: TelegramConfig{PollTimeout: Duration{60 * time.Second}},
		Staging: StagingConfig{
			Root:       "./staging",
			SweepAfter: Duration{24 * time.Hour},
		},
		Limits: LimitsConfig{
			ChunkSize:     2 * humanize.GiByte,
			MaxSessions:   64,
			MaxFiles:      100,
			IdleExpiry:    Duration{30 * time.Minute},
			UploadTimeout: Duration{10 * time.Minute},
		},
		Archive: ArchiveConfig{SevenZipBinary: "7z"},
		Mirror:  MirrorConfig{Dataset: "bundles"},
		Log:     LogConfig{Level: "info"},
	}
}

// Validate reports every invalid value at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	if len(c.AuthorizedUsers) == 0 {
		errs = append(errs, errors.New("authorized_users must list at least one user"))
	}
	if c.Staging.Root == "" {
		errs = append(errs, errors.New("staging.root is required"))
	}
	if c.Limits.ChunkSize <= 0 {
		errs = append(errs, errors.New("limits.chunk_size must be positive"))
	}
	if c.Limits.MaxSessions < 0 || c.Limits.MaxFiles < 0 || c.Limits.MaxFileSize < 0 {
		errs = append(errs, errors.New("limits must not be negative"))
	}
	switch c.Mirror.Backend {
	case "", "fs", "s3":
		if c.Mirror.Backend != "" && c.Mirror.Path == "" {
			errs = append(errs, fmt.Errorf("mirror.path is required for the %s backend", c.Mirror.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("mirror.backend %q is not one of fs, s3", c.Mirror.Backend))
	}
	switch c.Adapter.Type {
	case "":
	case "webhook", "redis":
		if c.Adapter.URL == "" {
			errs = append(errs, fmt.Errorf("adapter.url is required for the %s adapter", c.Adapter.Type))
		}
		if c.Adapter.Type == "redis" && c.Adapter.Mode != "" && c.Adapter.Mode != "publish" && c.Adapter.Mode != "stream" {
			errs = append(errs, fmt.Errorf("adapter.mode %q is not one of publish, stream", c.Adapter.Mode))
		}
	default:
		errs = append(errs, fmt.Errorf("adapter.type %q is not one of webhook, redis", c.Adapter.Type))
	}
	return errors.Join(errs...)
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// ByteSize is a byte count written in human form ("2GiB", "50 MB", "1024").
type ByteSize int64

// UnmarshalYAML parses a size with go-humanize.
func (b *ByteSize) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseByteSize(s)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// String renders the size in IEC units.
func (b ByteSize) String() string {
	return humanize.IBytes(uint64(max(b, 0)))
}

// ParseByteSize parses a human byte size. An empty string is zero.
func ParseByteSize(s string) (ByteSize, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return ByteSize(n), nil
}

// UserList is a list of user IDs, written either as a YAML sequence or as
// one comma-separated string so that "${AUTHORIZED_USERS}" works.
type UserList []int64

// UnmarshalYAML accepts a sequence of integers or a comma-separated string.
func (u *UserList) UnmarshalYAML(unmarshal func(any) error) error {
	var ids []int64
	if err := unmarshal(&ids); err == nil {
		*u = ids
		return nil
	}
	var s string
	if err := unmarshal(&s); err != nil {
		return fmt.Errorf("authorized_users must be a list or a comma-separated string: %w", err)
	}
	parsed, err := ParseUserList(s)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// ParseUserList parses "1, 2,3". Empty items are skipped.
func ParseUserList(s string) (UserList, error) {
	var ids UserList
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q", field)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
