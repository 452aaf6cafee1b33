// Package adapter defines the notification boundary for finished bundles.
//
// Adapters publish one event per finalized session to a downstream system.
// Publishing is best-effort: the bot logs failures and carries on.
package adapter

import (
	"context"
	"fmt"
	"time"
)

// EventTypeBundleCompleted is the only event type published.
const EventTypeBundleCompleted = "bundle_completed"

// DefaultBackoff is the delay before the first retry; it doubles per retry.
const DefaultBackoff = 500 * time.Millisecond

// BundleCompletedEvent is the payload published when a session finalizes.
// It never carries the archive password or file contents.
type BundleCompletedEvent struct {
	ContractVersion string `json:"contract_version"`
	EventType       string `json:"event_type"` // always "bundle_completed"
	SessionID       string `json:"session_id"`
	UserID          int64  `json:"user_id"`
	Generation      uint64 `json:"generation"`
	Format          string `json:"format"`
	Encrypted       bool   `json:"encrypted"`
	Outcome         string `json:"outcome"` // success, compression_error, ...
	Message         string `json:"message,omitempty"`
	FileCount       int    `json:"file_count"`
	StagedBytes     int64  `json:"staged_bytes"`
	ArchiveBytes    int64  `json:"archive_bytes"`
	PartsDelivered  int    `json:"parts_delivered"`
	PartsTotal      int    `json:"parts_total"`
	MirrorPath      string `json:"mirror_path,omitempty"`
	Timestamp       string `json:"timestamp"` // RFC 3339
	DurationMs      int64  `json:"duration_ms"`
}

// Adapter publishes bundle completion events to a downstream system.
type Adapter interface {
	// Publish sends one event. Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *BundleCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// Retry calls attempt up to 1+retries times with exponential backoff
// starting at backoff. It stops early when ctx ends or when permanent
// reports the error as not worth retrying. The last error is returned.
func Retry(ctx context.Context, retries int, backoff time.Duration, attempt func(context.Context) error, permanent func(error) bool) error {
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	attempts := 1 + retries

	var lastErr error
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context canceled: %w", err)
		}
		if i > 0 {
			timer := time.NewTimer(backoff << (i - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("context canceled during backoff: %w", ctx.Err())
			case <-timer.C:
			}
		}

		lastErr = attempt(ctx)
		if lastErr == nil {
			return nil
		}
		if permanent != nil && permanent(lastErr) {
			return fmt.Errorf("non-retriable error: %w", lastErr)
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
