// Package runtime routes inbound chat events to sessions and runs the
// finalize pipeline.
//
// Every inbound operation returns a Reply holding the session state after
// the event and the messages to show the user. Errors are returned as
// well, already classified (see types), but their user-facing text is
// always part of the Reply: callers only need to send Reply.Messages.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ytwritergod/archivetoziptest/adapter"
	"github.com/ytwritergod/archivetoziptest/archive"
	"github.com/ytwritergod/archivetoziptest/log"
	"github.com/ytwritergod/archivetoziptest/metrics"
	"github.com/ytwritergod/archivetoziptest/mirror"
	"github.com/ytwritergod/archivetoziptest/session"
	"github.com/ytwritergod/archivetoziptest/splitter"
	"github.com/ytwritergod/archivetoziptest/transport"
	"github.com/ytwritergod/archivetoziptest/types"
)

// DefaultUploadTimeout bounds a single file download into staging.
const DefaultUploadTimeout = 10 * time.Minute

// DefaultNotifyTimeout bounds publishing one completion event.
const DefaultNotifyTimeout = 30 * time.Second

const (
	msgUnauthorized = "🚫 You are not authorized!"
	msgInternal     = "❌ Something went wrong. Please try again."
	msgUploadFailed = "❌ Could not save %s. Please send it again."
	msgUploadStall  = "⌛ Upload of %s timed out. Please send it again."
	msgCancelled    = "🗑 Session cancelled. Your files were removed."
	msgCancelLate   = "🗑 Cancelled. The archive being built will be discarded."
	msgNothing      = "Nothing to cancel."
)

// Config configures a Dispatcher.
type Config struct {
	// AuthorizedUsers is the allow-list of user IDs (required).
	AuthorizedUsers []int64
	// Registry owns live sessions (required).
	Registry *session.Registry
	// Builder produces archives (required).
	Builder *archive.Builder
	// Transport delivers progress text and artifacts (required).
	Transport transport.Transport
	// ChunkSize is the largest artifact delivered whole
	// (default splitter.DefaultLimit).
	ChunkSize int64
	// MaxFileSize caps a single upload. Zero means unlimited.
	MaxFileSize int64
	// UploadTimeout bounds one download (default 10m).
	UploadTimeout time.Duration
	// Mirror, if set, receives a copy of every built archive.
	Mirror mirror.Writer
	// Adapter, if set, is notified of every finalized session.
	Adapter adapter.Adapter
	// NotifyTimeout bounds one Adapter publish (default 30s).
	NotifyTimeout time.Duration
	// Collector records counters. Nil disables metrics.
	Collector *metrics.Collector
	// Logger defaults to log.Nop().
	Logger *log.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Reply is the result of one inbound event.
type Reply struct {
	State    session.State
	Messages []transport.Message
}

func (r *Reply) add(text string, kb transport.Keyboard) {
	r.Messages = append(r.Messages, transport.Message{Text: text, Keyboard: kb})
}

// Dispatcher is the inbound boundary. Safe for concurrent use: events for
// different users run in parallel, events for one user are serialized by
// that user's session.
type Dispatcher struct {
	cfg        Config
	authorized map[int64]struct{}
	logger     *log.Logger
}

// NewDispatcher validates cfg and returns a Dispatcher.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	switch {
	case cfg.Registry == nil:
		return nil, errors.New("dispatcher requires a session registry")
	case cfg.Builder == nil:
		return nil, errors.New("dispatcher requires an archive builder")
	case cfg.Transport == nil:
		return nil, errors.New("dispatcher requires a transport")
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = splitter.DefaultLimit
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = DefaultUploadTimeout
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = DefaultNotifyTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Nop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	authorized := make(map[int64]struct{}, len(cfg.AuthorizedUsers))
	for _, id := range cfg.AuthorizedUsers {
		authorized[id] = struct{}{}
	}
	return &Dispatcher{cfg: cfg, authorized: authorized, logger: cfg.Logger}, nil
}

// Authorized reports whether userID is on the allow-list.
func (d *Dispatcher) Authorized(userID int64) bool {
	_, ok := d.authorized[userID]
	return ok
}

func (d *Dispatcher) authorize(userID int64) (Reply, error) {
	if d.Authorized(userID) {
		return Reply{}, nil
	}
	d.cfg.Collector.IncUnauthorized()
	d.logger.Warn("unauthorized user", map[string]any{"user_id": userID})
	r := Reply{State: session.Idle}
	r.add(msgUnauthorized, transport.KeyboardNone)
	return r, types.NewError(types.ErrUnauthorized, "authorize", msgUnauthorized, nil)
}

// AuthorizedStart begins a fresh session, tearing down any current one.
func (d *Dispatcher) AuthorizedStart(ctx context.Context, userID int64) (Reply, error) {
	if r, err := d.authorize(userID); err != nil {
		return r, err
	}

	s, old, err := d.cfg.Registry.Restart(userID)
	if old != nil {
		// A superseded session is counted by its own pipeline.
		if !old.Superseded() {
			d.cfg.Collector.IncSessionCancelled()
		}
		d.sessionLogger(old).Info("session restarted", map[string]any{
			"superseded": old.Superseded(),
		})
	}
	if s == nil {
		return d.fail(Reply{State: session.Idle}, err)
	}
	if err != nil {
		// The new session exists; only the old directory failed to go away.
		d.sessionLogger(old).Error("failed to remove staging", map[string]any{"error": err.Error()})
	}
	d.cfg.Collector.IncSessionStarted()
	d.sessionLogger(s).Info("session started", nil)

	return d.apply(ctx, s, session.Start{})
}

// FileUploaded stages body under displayName in the user's session,
// creating the session on first upload.
func (d *Dispatcher) FileUploaded(ctx context.Context, userID int64, displayName string, body io.Reader) (Reply, error) {
	if r, err := d.authorize(userID); err != nil {
		return r, err
	}

	s, created, err := d.cfg.Registry.GetOrCreate(userID)
	if err != nil {
		return d.fail(Reply{State: session.Idle}, err)
	}
	if created {
		d.cfg.Collector.IncSessionStarted()
		d.sessionLogger(s).Info("session started by upload", nil)
	}
	logger := d.sessionLogger(s)

	state, _, err := s.Apply(session.UploadBegin{}, d.cfg.Now())
	if err != nil {
		return d.fail(Reply{State: state}, err)
	}

	uploadCtx, cancel := context.WithTimeout(ctx, d.cfg.UploadTimeout)
	defer cancel()

	f, err := s.Dir.Stage(uploadCtx, displayName, body, d.cfg.MaxFileSize)
	if err != nil {
		state, _, _ = s.Apply(session.UploadFailed{}, d.cfg.Now())
		logger.Warn("upload failed", map[string]any{
			"name":  displayName,
			"error": err.Error(),
		})
		r := Reply{State: state}
		switch {
		case errors.Is(err, types.ErrResourceLimit):
			return d.fail(r, err)
		case errors.Is(uploadCtx.Err(), context.DeadlineExceeded):
			r.add(fmt.Sprintf(msgUploadStall, displayName), keyboard(session.PromptKeyboard(state)))
		default:
			r.add(fmt.Sprintf(msgUploadFailed, displayName), keyboard(session.PromptKeyboard(state)))
		}
		return r, err
	}

	state, effects, err := s.Apply(session.UploadEnd{File: f}, d.cfg.Now())
	if err != nil {
		// The session moved on while the file was downloading.
		if discardErr := s.Dir.Discard(f); discardErr != nil {
			logger.Warn("failed to discard late upload", map[string]any{"error": discardErr.Error()})
		}
		return d.fail(Reply{State: state}, err)
	}

	d.cfg.Collector.RecordFileStaged(f.Size)
	logger.Info("file staged", map[string]any{
		"name": f.Name,
		"size": f.Size,
	})
	return d.effects(ctx, s, state, effects)
}

// TextReply feeds free text (password, archive name, typed format) to the
// user's session. Naming the archive runs the finalize pipeline before
// returning.
func (d *Dispatcher) TextReply(ctx context.Context, userID int64, text string) (Reply, error) {
	return d.route(ctx, userID, session.Text{Value: text})
}

// DoneSignal ends file collection.
func (d *Dispatcher) DoneSignal(ctx context.Context, userID int64) (Reply, error) {
	return d.route(ctx, userID, session.Done{})
}

// FormatChoice selects the archive format from a button token.
func (d *Dispatcher) FormatChoice(ctx context.Context, userID int64, token string) (Reply, error) {
	return d.route(ctx, userID, session.FormatChosen{Token: token})
}

// Cancel tears down the user's session without starting a new one.
func (d *Dispatcher) Cancel(_ context.Context, userID int64) (Reply, error) {
	if r, err := d.authorize(userID); err != nil {
		return r, err
	}

	r := Reply{State: session.Idle}
	s, err := d.cfg.Registry.Destroy(userID)
	if s == nil {
		r.add(msgNothing, transport.KeyboardNone)
		return r, nil
	}
	d.cfg.Collector.IncSessionCancelled()
	logger := d.sessionLogger(s)
	if err != nil {
		logger.Error("failed to remove staging", map[string]any{"error": err.Error()})
	}

	if s.Superseded() {
		logger.Info("session cancelled while finalizing", nil)
		r.add(msgCancelLate, transport.KeyboardNone)
	} else {
		logger.Info("session cancelled", nil)
		r.add(msgCancelled, transport.KeyboardNone)
	}
	return r, nil
}

func (d *Dispatcher) route(ctx context.Context, userID int64, ev session.Event) (Reply, error) {
	if r, err := d.authorize(userID); err != nil {
		return r, err
	}
	s := d.cfg.Registry.Get(userID)
	if s == nil {
		// No live session behaves as Idle.
		_, _, err := session.Step(session.Data{State: session.Destroyed}, ev, session.Limits{})
		return d.fail(Reply{State: session.Idle}, err)
	}
	return d.apply(ctx, s, ev)
}

func (d *Dispatcher) apply(ctx context.Context, s *session.Session, ev session.Event) (Reply, error) {
	state, effects, err := s.Apply(ev, d.cfg.Now())
	if err != nil {
		return d.fail(Reply{State: state}, err)
	}
	return d.effects(ctx, s, state, effects)
}

// effects turns state machine output into a Reply, running the finalize
// pipeline when asked to.
func (d *Dispatcher) effects(ctx context.Context, s *session.Session, state session.State, effects []session.Effect) (Reply, error) {
	r := Reply{State: state}
	for _, eff := range effects {
		switch eff := eff.(type) {
		case session.Reply:
			r.add(eff.Text, keyboard(eff.Prompt))
		case session.Finalize:
			outcome := d.finalize(ctx, s, eff.Request)
			r.State = session.Destroyed
			if outcome.Status != types.OutcomeSuperseded && outcome.Message != "" {
				r.add(outcome.Message, transport.KeyboardNone)
			}
			if !outcome.Succeeded() {
				return r, outcomeError(outcome)
			}
		}
	}
	return r, nil
}

// fail turns a classified error into user-facing text on r.
func (d *Dispatcher) fail(r Reply, err error) (Reply, error) {
	switch {
	case errors.Is(err, types.ErrInvalidInput):
		d.cfg.Collector.IncInvalidReply()
	case errors.Is(err, types.ErrResourceLimit):
		d.cfg.Collector.IncLimitRejected()
	default:
		d.logger.Error("event failed", map[string]any{"error": err.Error()})
	}
	r.add(types.Reason(err, msgInternal), keyboard(session.PromptKeyboard(r.State)))
	return r, err
}

func (d *Dispatcher) sessionLogger(s *session.Session) *log.Logger {
	return d.logger.With(log.Meta{UserID: s.UserID, SessionID: s.ID, Generation: s.Generation})
}

func keyboard(p session.Prompt) transport.Keyboard {
	switch p {
	case session.PromptDone:
		return transport.KeyboardDone
	case session.PromptFormat:
		return transport.KeyboardFormat
	}
	return transport.KeyboardNone
}
