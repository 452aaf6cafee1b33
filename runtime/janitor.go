package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/ytwritergod/archivetoziptest/transport"
)

const msgExpired = "⌛ Session expired after %s of inactivity. Your files were removed. Send /start to begin again."

// ExpireIdle destroys sessions idle for longer than idle and tells their
// users. It returns the number of sessions removed.
func (d *Dispatcher) ExpireIdle(ctx context.Context, idle time.Duration) int {
	expired, err := d.cfg.Registry.Expire(idle)
	if err != nil {
		d.logger.Error("failed to remove expired staging", map[string]any{"error": err.Error()})
	}
	if len(expired) == 0 {
		return 0
	}
	d.cfg.Collector.AddSessionsExpired(len(expired))

	text := formatExpired(idle)
	for _, s := range expired {
		logger := d.sessionLogger(s)
		logger.Info("session expired", map[string]any{"idle": idle.String()})
		if err := d.cfg.Transport.SendText(ctx, s.UserID, transport.Message{Text: text}); err != nil {
			logger.Warn("failed to notify expiry", map[string]any{"error": err.Error()})
		}
	}
	return len(expired)
}

// RunJanitor expires idle sessions every interval until ctx ends.
// A non-positive idle disables expiry and RunJanitor returns immediately.
func (d *Dispatcher) RunJanitor(ctx context.Context, interval, idle time.Duration) {
	if idle <= 0 {
		return
	}
	if interval <= 0 {
		interval = min(idle, time.Minute)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.ExpireIdle(ctx, idle)
		case <-ctx.Done():
			return
		}
	}
}

func formatExpired(idle time.Duration) string {
	return fmt.Sprintf(msgExpired, idle.Round(time.Second))
}
