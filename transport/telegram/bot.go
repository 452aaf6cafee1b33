// Package telegram connects the dispatcher to the Telegram Bot API.
//
// Updates are long-polled and each one is handled on its own goroutine,
// so a slow download or archive build for one user never delays others.
// Per-user ordering is the dispatcher's job.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ytwritergod/archivetoziptest/iox"
	"github.com/ytwritergod/archivetoziptest/log"
	"github.com/ytwritergod/archivetoziptest/runtime"
	"github.com/ytwritergod/archivetoziptest/transport"
	"github.com/ytwritergod/archivetoziptest/types"
)

// Defaults for Config.
const (
	DefaultPollTimeout     = 60 * time.Second
	DefaultDownloadTimeout = 10 * time.Minute
)

// Config configures a Bot.
type Config struct {
	Token string
	// APIEndpoint is a format string taking the token and method
	// (default tgbotapi.APIEndpoint). Point it at a local Bot API server
	// to lift the 20 MB download and 50 MB upload caps.
	APIEndpoint string
	// FileEndpoint is a format string taking the token and file path
	// (default tgbotapi.FileEndpoint).
	FileEndpoint    string
	PollTimeout     time.Duration
	DownloadTimeout time.Duration
	// HTTPClient defaults to a client without an overall timeout; uploads
	// of large parts can take minutes.
	HTTPClient *http.Client
	Logger     *log.Logger
}

// Handler is the inbound side of the bot. *runtime.Dispatcher satisfies it.
type Handler interface {
	AuthorizedStart(ctx context.Context, userID int64) (runtime.Reply, error)
	FileUploaded(ctx context.Context, userID int64, displayName string, body io.Reader) (runtime.Reply, error)
	TextReply(ctx context.Context, userID int64, text string) (runtime.Reply, error)
	DoneSignal(ctx context.Context, userID int64) (runtime.Reply, error)
	FormatChoice(ctx context.Context, userID int64, token string) (runtime.Reply, error)
	Cancel(ctx context.Context, userID int64) (runtime.Reply, error)
}

// Bot is a Telegram transport.
type Bot struct {
	api    *tgbotapi.BotAPI
	client *http.Client
	cfg    Config
	logger *log.Logger
	wg     sync.WaitGroup
}

// New connects to the Bot API and verifies the token.
func New(cfg Config) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram token is required")
	}
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	if cfg.FileEndpoint == "" {
		cfg.FileEndpoint = tgbotapi.FileEndpoint
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = DefaultDownloadTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Nop()
	}

	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, cfg.APIEndpoint, cfg.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	logger := cfg.Logger.Named("telegram")
	logger.Info("authorized", map[string]any{"bot": api.Self.UserName})
	return &Bot{api: api, client: cfg.HTTPClient, cfg: cfg, logger: logger}, nil
}

// Username returns the bot's username.
func (b *Bot) Username() string { return b.api.Self.UserName }

// Run polls for updates and hands each to h until ctx ends. It returns
// after every in-flight handler has finished.
func (b *Bot) Run(ctx context.Context, h Handler) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(b.cfg.PollTimeout / time.Second)
	updates := b.api.GetUpdatesChan(u)

	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return errors.New("telegram update channel closed")
			}
			in := Classify(update)
			if in.Kind == KindIgnore && in.CallbackID == "" {
				continue
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.Handle(ctx, h, in)
			}()
		}
	}
}

// Handle runs one inbound event through h and sends the reply messages.
// A panic is recovered and logged.
func (b *Bot) Handle(ctx context.Context, h Handler, in Inbound) {
	logger := b.logger.With(log.Meta{UserID: in.UserID})
	defer func() {
		if r := recover(); r != nil {
			logger.Error("handler panic", map[string]any{
				"panic": fmt.Sprint(r),
				"kind":  in.Kind.String(),
			})
		}
	}()

	if in.CallbackID != "" {
		if _, err := b.api.Request(tgbotapi.NewCallback(in.CallbackID, "")); err != nil {
			logger.Debug("failed to answer callback", map[string]any{"error": err.Error()})
		}
	}

	var (
		reply runtime.Reply
		err   error
	)
	switch in.Kind {
	case KindStart:
		reply, err = h.AuthorizedStart(ctx, in.UserID)
	case KindDone:
		reply, err = h.DoneSignal(ctx, in.UserID)
	case KindCancel:
		reply, err = h.Cancel(ctx, in.UserID)
	case KindFormat:
		if in.Shortcut {
			reply, err = formatShortcut(ctx, h, in)
		} else {
			reply, err = h.FormatChoice(ctx, in.UserID, in.Text)
		}
	case KindText:
		reply, err = h.TextReply(ctx, in.UserID, in.Text)
	case KindFile:
		body := b.download(ctx, in.File.ID)
		reply, err = h.FileUploaded(ctx, in.UserID, in.File.Name, body)
		iox.DiscardClose(body)
	default:
		return
	}
	if err != nil {
		logEventError(logger, in.Kind, err)
	}

	for _, msg := range reply.Messages {
		if err := b.SendText(ctx, in.UserID, msg); err != nil {
			logger.Warn("failed to send reply", map[string]any{"error": err.Error()})
		}
	}
}

// formatShortcut chooses a format, first closing the file set when the
// user is still collecting. Whatever the session rejects is reported as is.
func formatShortcut(ctx context.Context, h Handler, in Inbound) (runtime.Reply, error) {
	reply, err := h.FormatChoice(ctx, in.UserID, in.Text)
	if !errors.Is(err, types.ErrInvalidInput) {
		return reply, err
	}
	if reply, err := h.DoneSignal(ctx, in.UserID); err != nil {
		return reply, err
	}
	return h.FormatChoice(ctx, in.UserID, in.Text)
}

func logEventError(logger *log.Logger, kind Kind, err error) {
	fields := map[string]any{"kind": kind.String(), "error": err.Error()}
	switch {
	case errors.Is(err, types.ErrInvalidInput), errors.Is(err, runtime.ErrSuperseded):
		logger.Debug("event rejected", fields)
	case errors.Is(err, types.ErrUnauthorized), errors.Is(err, types.ErrResourceLimit):
		logger.Info("event rejected", fields)
	default:
		logger.Warn("event failed", fields)
	}
}

// SendText implements transport.Transport.
func (b *Bot) SendText(_ context.Context, userID int64, msg transport.Message) error {
	c := tgbotapi.NewMessage(userID, msg.Text)
	if markup := Markup(msg.Keyboard); markup != nil {
		c.ReplyMarkup = markup
	}
	if _, err := b.api.Send(c); err != nil {
		return b.scrub("send message", err)
	}
	return nil
}

// DeliverArtifact implements transport.Transport. The file is streamed
// from disk and fully consumed before this returns.
func (b *Bot) DeliverArtifact(_ context.Context, userID int64, path, caption string) error {
	doc := tgbotapi.NewDocument(userID, tgbotapi.FilePath(path))
	doc.Caption = caption
	if _, err := b.api.Send(doc); err != nil {
		return b.scrub("send document", err)
	}
	return nil
}

// download returns a reader over a Telegram file. Nothing is fetched until
// the first Read, so a rejected upload costs no traffic.
func (b *Bot) download(ctx context.Context, fileID string) io.ReadCloser {
	return &lazyFile{open: func() (io.ReadCloser, context.CancelFunc, error) {
		ctx, cancel := context.WithTimeout(ctx, b.cfg.DownloadTimeout)
		body, err := b.openFile(ctx, fileID)
		if err != nil {
			cancel()
			return nil, nil, err
		}
		return body, cancel, nil
	}}
}

func (b *Bot) openFile(ctx context.Context, fileID string) (io.ReadCloser, error) {
	f, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, b.scrub("resolve file", err)
	}
	url := fmt.Sprintf(b.cfg.FileEndpoint, b.cfg.Token, f.FilePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, b.scrub("download", err)
	}
	if resp.StatusCode != http.StatusOK {
		iox.DiscardClose(resp.Body)
		return nil, fmt.Errorf("download failed: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// scrub wraps err with op, masking the bot token that Bot API URLs embed.
func (b *Bot) scrub(op string, err error) error {
	return fmt.Errorf("%s: %s", op, strings.ReplaceAll(err.Error(), b.cfg.Token, "<token>"))
}

type lazyFile struct {
	open   func() (io.ReadCloser, context.CancelFunc, error)
	body   io.ReadCloser
	cancel context.CancelFunc
	err    error
}

func (l *lazyFile) Read(p []byte) (int, error) {
	if l.err != nil {
		return 0, l.err
	}
	if l.body == nil {
		l.body, l.cancel, l.err = l.open()
		if l.err != nil {
			return 0, l.err
		}
	}
	return l.body.Read(p)
}

func (l *lazyFile) Close() error {
	if l.body == nil {
		return nil
	}
	err := l.body.Close()
	l.cancel()
	return err
}

// Verify Bot implements transport.Transport and the dispatcher implements Handler.
var (
	_ transport.Transport = (*Bot)(nil)
	_ Handler             = (*runtime.Dispatcher)(nil)
)
