package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ytwritergod/archivetoziptest/adapter"
	"github.com/ytwritergod/archivetoziptest/iox"
	"github.com/ytwritergod/archivetoziptest/log"
	"github.com/ytwritergod/archivetoziptest/mirror"
	"github.com/ytwritergod/archivetoziptest/session"
	"github.com/ytwritergod/archivetoziptest/splitter"
	"github.com/ytwritergod/archivetoziptest/transport"
	"github.com/ytwritergod/archivetoziptest/types"
)

// ErrSuperseded is returned when a newer session replaced the one being
// finalized. Nothing is delivered for a superseded session.
var ErrSuperseded = errors.New("session superseded")

const (
	msgCompressing = "🗜 Compressing %d file(s) into %s..."
	msgSplitting   = "✂️ Archive is %s, splitting into %d parts..."

	captionWhole = "📤 Your compressed file!"
	captionPart  = "📤 Part %d/%d: %s"
)

// finalize builds, optionally splits, and delivers the archive for s, then
// releases the session. The session's staging directory is removed on
// every path out of this function.
//
// The pipeline runs detached from the caller's cancellation so that a
// dropped inbound request cannot leave half-delivered output; a restart
// supersedes it instead.
func (d *Dispatcher) finalize(parent context.Context, s *session.Session, req session.Request) (outcome types.Outcome) {
	ctx := context.WithoutCancel(parent)
	logger := d.sessionLogger(s)
	start := d.cfg.Now()
	var mirrorPath string

	defer func() {
		if err := d.cfg.Registry.Release(s); err != nil {
			logger.Error("failed to remove staging", map[string]any{"error": err.Error()})
		}
		d.record(outcome, logger)
		d.notify(ctx, s, req, outcome, mirrorPath, start, logger)
	}()

	outcome.PartsTotal = 1
	logger.Info("finalizing", map[string]any{
		"format":    string(req.Format),
		"files":     len(req.Files),
		"encrypted": req.Password != "",
		"archive":   req.FileName,
	})
	d.progress(ctx, s.UserID, fmt.Sprintf(msgCompressing, len(req.Files), req.Format.Label()), logger)

	artifact, err := d.cfg.Builder.Build(ctx, req.Files, req.Format, req.Password, s.Dir.OutputPath(req.FileName))
	if err != nil {
		logger.Error("archive build failed", map[string]any{"error": err.Error()})
		return failureOutcome(err, outcome)
	}
	outcome.ArchiveBytes = artifact.Size
	d.cfg.Collector.RecordArchiveBuilt(artifact.Size)
	logger.Info("archive built", map[string]any{"path": artifact.Path, "size": artifact.Size})

	if d.superseded(s) {
		return d.supersededOutcome(outcome, logger)
	}

	mirrorPath = d.mirror(ctx, s, req.FileName, artifact.Path, logger)

	if artifact.Size <= d.cfg.ChunkSize {
		// The mirror upload can be slow; a restart may have landed meanwhile.
		if d.superseded(s) {
			return d.supersededOutcome(outcome, logger)
		}
		if err := d.deliver(ctx, s, artifact.Path, captionWhole); err != nil {
			logger.Error("delivery failed", map[string]any{"error": err.Error()})
			return failureOutcome(err, outcome)
		}
		outcome.PartsDelivered = 1
		logger.Info("archive delivered", nil)
		return successOutcome(req.FileName, outcome)
	}

	return d.deliverParts(ctx, s, req.FileName, artifact, outcome, logger)
}

// deliverParts splits the artifact lazily: each part is produced,
// delivered and removed before the next one is cut, so at most one part
// sits on disk beside the artifact.
func (d *Dispatcher) deliverParts(ctx context.Context, s *session.Session, name string, artifact *types.Artifact, outcome types.Outcome, logger *log.Logger) types.Outcome {
	sp, err := splitter.New(artifact.Path, d.cfg.ChunkSize)
	if err != nil {
		logger.Error("split failed", map[string]any{"error": err.Error()})
		return failureOutcome(err, outcome)
	}
	defer iox.DiscardClose(sp)

	outcome.PartsTotal = sp.Total()
	d.progress(ctx, s.UserID, fmt.Sprintf(msgSplitting, humanize.IBytes(uint64(artifact.Size)), sp.Total()), logger)

	for {
		part, err := sp.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logger.Error("split failed", map[string]any{
				"error":     err.Error(),
				"delivered": outcome.PartsDelivered,
			})
			return failureOutcome(err, outcome)
		}

		if d.superseded(s) {
			_ = os.Remove(part.Path)
			return d.supersededOutcome(outcome, logger)
		}

		caption := fmt.Sprintf(captionPart, part.Seq, part.Total, filepath.Base(part.Path))
		err = d.deliver(ctx, s, part.Path, caption)
		_ = os.Remove(part.Path)
		if err != nil {
			logger.Error("part delivery failed", map[string]any{
				"error": err.Error(),
				"part":  part.Seq,
			})
			return failureOutcome(err, outcome)
		}
		outcome.PartsDelivered++
		d.cfg.Collector.IncPartDelivered()
		logger.Debug("part delivered", map[string]any{"part": part.Seq, "size": part.Size})
	}

	logger.Info("archive delivered", map[string]any{"parts": outcome.PartsDelivered})
	return successOutcome(name, outcome)
}

// deliver hands one file to the transport, classifying failures.
func (d *Dispatcher) deliver(ctx context.Context, s *session.Session, path, caption string) error {
	if err := d.cfg.Transport.DeliverArtifact(ctx, s.UserID, path, caption); err != nil {
		return types.NewError(types.ErrDelivery, "deliver", "transport rejected the artifact", err)
	}
	return nil
}

// superseded reports whether s was replaced by a newer session. The
// generation comparison catches a replacement even if the flag was never
// set, e.g. when the registry entry was already released.
func (d *Dispatcher) superseded(s *session.Session) bool {
	if s.Superseded() {
		return true
	}
	current := d.cfg.Registry.Current(s.UserID)
	return current != 0 && current != s.Generation
}

func (d *Dispatcher) supersededOutcome(o types.Outcome, logger *log.Logger) types.Outcome {
	logger.Info("session superseded, discarding output", map[string]any{
		"delivered": o.PartsDelivered,
	})
	o.Status = types.OutcomeSuperseded
	o.Message = ""
	return o
}

// progress sends a best-effort status text.
func (d *Dispatcher) progress(ctx context.Context, userID int64, text string, logger *log.Logger) {
	if err := d.cfg.Transport.SendText(ctx, userID, transport.Message{Text: text}); err != nil {
		logger.Warn("failed to send progress", map[string]any{"error": err.Error()})
	}
}

// mirror copies the archive into the configured store. Failure is logged
// and otherwise ignored.
func (d *Dispatcher) mirror(ctx context.Context, s *session.Session, name, path string, logger *log.Logger) string {
	if d.cfg.Mirror == nil {
		return ""
	}
	f, err := os.Open(path)
	if err != nil {
		d.cfg.Collector.IncMirrorWrite(false)
		logger.Warn("mirror skipped", map[string]any{"error": err.Error()})
		return ""
	}
	defer iox.DiscardClose(f)

	key := mirror.Key{UserID: s.UserID, SessionID: s.ID, Time: s.CreatedAt}
	stored, err := d.cfg.Mirror.PutArchive(ctx, key, name, f)
	if err != nil {
		d.cfg.Collector.IncMirrorWrite(false)
		logger.Warn("mirror write failed", map[string]any{"error": err.Error()})
		return ""
	}
	d.cfg.Collector.IncMirrorWrite(true)
	logger.Debug("archive mirrored", map[string]any{"path": stored})
	return stored
}

func (d *Dispatcher) record(o types.Outcome, logger *log.Logger) {
	switch o.Status {
	case types.OutcomeSuccess:
		d.cfg.Collector.IncSessionCompleted()
	case types.OutcomeSuperseded:
		d.cfg.Collector.IncSessionSuperseded()
	default:
		d.cfg.Collector.IncSessionFailed(string(o.Status))
	}
	logger.Info("session finalized", map[string]any{
		"outcome":         string(o.Status),
		"archive_bytes":   o.ArchiveBytes,
		"parts_delivered": o.PartsDelivered,
		"parts_total":     o.PartsTotal,
	})
}

// notify publishes the completion event. Failure is logged and otherwise
// ignored.
func (d *Dispatcher) notify(ctx context.Context, s *session.Session, req session.Request, o types.Outcome, mirrorPath string, start time.Time, logger *log.Logger) {
	if d.cfg.Adapter == nil {
		return
	}
	now := d.cfg.Now()
	var staged int64
	for _, f := range req.Files {
		staged += f.Size
	}
	event := &adapter.BundleCompletedEvent{
		ContractVersion: types.ContractVersion,
		EventType:       adapter.EventTypeBundleCompleted,
		SessionID:       s.ID,
		UserID:          s.UserID,
		Generation:      s.Generation,
		Format:          string(req.Format),
		Encrypted:       req.Password != "",
		Outcome:         string(o.Status),
		Message:         o.Message,
		FileCount:       len(req.Files),
		StagedBytes:     staged,
		ArchiveBytes:    o.ArchiveBytes,
		PartsDelivered:  o.PartsDelivered,
		PartsTotal:      o.PartsTotal,
		MirrorPath:      mirrorPath,
		Timestamp:       now.UTC().Format(time.RFC3339),
		DurationMs:      now.Sub(start).Milliseconds(),
	}

	notifyCtx, cancel := context.WithTimeout(ctx, d.cfg.NotifyTimeout)
	defer cancel()
	if err := d.cfg.Adapter.Publish(notifyCtx, event); err != nil {
		d.cfg.Collector.IncNotify(false)
		logger.Warn("notification failed", map[string]any{"error": err.Error()})
		return
	}
	d.cfg.Collector.IncNotify(true)
}
