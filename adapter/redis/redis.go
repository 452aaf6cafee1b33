// Package redis publishes bundle completion events to Redis.
//
// Two modes are supported. ModePublish sends each event with PUBLISH, which
// only reaches subscribers connected at that moment. ModeStream appends it
// to a capped stream with XADD so consumers can catch up after downtime.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ytwritergod/archivetoziptest/adapter"
)

// Mode selects the Redis command used for each event.
type Mode string

// Supported modes.
const (
	ModePublish Mode = "publish"
	ModeStream  Mode = "stream"
)

// DefaultKey is the default channel or stream name.
const DefaultKey = "bundlebot:bundle_completed"

// DefaultMaxLen is the approximate stream length kept in ModeStream.
const DefaultMaxLen = 10000

// DefaultTimeout bounds one command.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// Config configures the Redis adapter.
type Config struct {
	// URL is the connection URL (required):
	// redis://[:password@]host:port[/db]
	URL string
	// Mode defaults to ModePublish.
	Mode Mode
	// Key is the channel (publish) or stream (stream) name.
	Key string
	// MaxLen caps the stream, approximately. Negative disables trimming.
	MaxLen  int64
	Timeout time.Duration
	Retries int
	// Backoff is the first retry delay (default adapter.DefaultBackoff).
	Backoff time.Duration
}

// Adapter publishes bundle completion events to Redis.
type Adapter struct {
	cfg    Config
	client *goredis.Client
}

// New validates cfg and creates the adapter. No connection is made until
// the first Publish.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}

	switch cfg.Mode {
	case "":
		cfg.Mode = ModePublish
	case ModePublish, ModeStream:
	default:
		return nil, fmt.Errorf("redis adapter: unknown mode %q", cfg.Mode)
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}
	switch {
	case cfg.MaxLen == 0:
		cfg.MaxLen = DefaultMaxLen
	case cfg.MaxLen < 0:
		cfg.MaxLen = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Adapter{cfg: cfg, client: goredis.NewClient(opts)}, nil
}

// Publish sends the event as JSON. Connection errors are retried; a
// closed adapter is not.
func (a *Adapter) Publish(ctx context.Context, event *adapter.BundleCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	err = adapter.Retry(ctx, a.cfg.Retries, a.cfg.Backoff, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
		return a.send(ctx, event, body)
	}, closed)
	if err != nil {
		return fmt.Errorf("redis %s %s: %w", a.cfg.Mode, a.cfg.Key, err)
	}
	return nil
}

func (a *Adapter) send(ctx context.Context, event *adapter.BundleCompletedEvent, body []byte) error {
	if a.cfg.Mode == ModePublish {
		return a.client.Publish(ctx, a.cfg.Key, body).Err()
	}
	return a.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: a.cfg.Key,
		MaxLen: a.cfg.MaxLen,
		Approx: true,
		Values: map[string]any{
			"session_id": event.SessionID,
			"outcome":    event.Outcome,
			"event":      body,
		},
	}).Err()
}

func closed(err error) bool {
	return errors.Is(err, goredis.ErrClosed)
}

// Close closes the connection pool.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
