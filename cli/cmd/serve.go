package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ytwritergod/archivetoziptest/cli/config"
	"github.com/ytwritergod/archivetoziptest/log"
	"github.com/ytwritergod/archivetoziptest/metrics"
	"github.com/ytwritergod/archivetoziptest/runtime"
	"github.com/ytwritergod/archivetoziptest/session"
	"github.com/ytwritergod/archivetoziptest/staging"
	"github.com/ytwritergod/archivetoziptest/transport/telegram"
	"github.com/ytwritergod/archivetoziptest/types"
)

// Exit codes for serve.
const (
	exitSuccess      = 0
	exitConfigError  = 1
	exitStartupError = 2
	exitRuntimeError = 3
)

// ServeCommand returns the serve command, which runs the bot until
// SIGINT or SIGTERM.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the bot (long-polls Telegram until interrupted)",
		Flags:  ServeFlags(),
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	if err := cfg.Validate(); err != nil {
		return cli.Exit(fmt.Sprintf("invalid config: %v", err), exitConfigError)
	}

	logger, err := log.NewServiceLogger(cfg.Log.Level)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid log level %q: %v", cfg.Log.Level, err), exitConfigError)
	}
	if w := c.App.ErrWriter; w != nil {
		logger = logger.WithOutput(w)
	}
	defer func() { _ = logger.Sync() }()

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("shutting down", map[string]any{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	svc, err := newService(ctx, cfg, logger)
	if err != nil {
		return cli.Exit(err.Error(), exitStartupError)
	}
	defer svc.close()

	logger.Info("bundlebot started", map[string]any{
		"bot":          svc.bot.Username(),
		"version":      types.Version,
		"staging_root": cfg.Staging.Root,
		"users":        len(cfg.AuthorizedUsers),
		"chunk_size":   cfg.Limits.ChunkSize.String(),
		"mirror":       cfg.Mirror.Backend,
		"adapter":      cfg.Adapter.Type,
	})

	go svc.dispatcher.RunJanitor(ctx, 0, cfg.Limits.IdleExpiry.Duration)
	runErr := svc.bot.Run(ctx, svc.dispatcher)

	logger.Info("bundlebot stopped", svc.collector.Snapshot().Fields())
	if runErr != nil {
		return cli.Exit(fmt.Sprintf("bot stopped: %v", runErr), exitRuntimeError)
	}
	return cli.Exit("", exitSuccess)
}

// service holds everything serve wires together.
type service struct {
	logger     *log.Logger
	registry   *session.Registry
	collector  *metrics.Collector
	dispatcher *runtime.Dispatcher
	bot        *telegram.Bot
	closers    []func() error
}

func newService(ctx context.Context, cfg *config.Config, logger *log.Logger) (*service, error) {
	area, err := staging.NewArea(cfg.Staging.Root)
	if err != nil {
		return nil, err
	}
	if after := cfg.Staging.SweepAfter.Duration; after > 0 {
		removed, err := area.Sweep(after, time.Now())
		if err != nil {
			logger.Warn("start-up sweep incomplete", map[string]any{"error": err.Error()})
		}
		if len(removed) > 0 {
			logger.Info("removed leftover staging directories", map[string]any{"count": len(removed)})
		}
	}

	builder, sevenZip := buildBuilder(cfg.Archive)
	if !sevenZip {
		logger.Warn("7z binary not found; 7z archives will fail", map[string]any{"binary": cfg.Archive.SevenZipBinary})
	}

	mirrorWriter, err := buildMirror(ctx, cfg.Mirror)
	if err != nil {
		return nil, err
	}

	svc := &service{logger: logger}
	notifier, err := buildAdapter(cfg.Adapter)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s adapter: %w", cfg.Adapter.Type, err)
	}
	if notifier != nil {
		svc.closers = append(svc.closers, notifier.Close)
	}

	svc.collector = metrics.NewCollector(cfg.Mirror.Backend, cfg.Adapter.Type)
	svc.registry = session.NewRegistry(session.Options{
		Area:        area,
		MaxSessions: cfg.Limits.MaxSessions,
		Limits:      session.Limits{MaxFiles: cfg.Limits.MaxFiles},
	})
	svc.closers = append(svc.closers, svc.registry.Close)

	svc.bot, err = telegram.New(telegram.Config{
		Token:           cfg.Telegram.Token,
		APIEndpoint:     cfg.Telegram.APIEndpoint,
		FileEndpoint:    cfg.Telegram.FileEndpoint,
		PollTimeout:     cfg.Telegram.PollTimeout.Duration,
		DownloadTimeout: cfg.Limits.UploadTimeout.Duration,
		Logger:          logger.Named("telegram"),
	})
	if err != nil {
		svc.close()
		return nil, err
	}

	svc.dispatcher, err = runtime.NewDispatcher(runtime.Config{
		AuthorizedUsers: cfg.AuthorizedUsers,
		Registry:        svc.registry,
		Builder:         builder,
		Transport:       svc.bot,
		ChunkSize:       int64(cfg.Limits.ChunkSize),
		MaxFileSize:     int64(cfg.Limits.MaxFileSize),
		UploadTimeout:   cfg.Limits.UploadTimeout.Duration,
		Mirror:          mirrorWriter,
		Adapter:         notifier,
		Collector:       svc.collector,
		Logger:          logger.Named("dispatcher"),
	})
	if err != nil {
		svc.close()
		return nil, err
	}
	return svc, nil
}

// close releases resources in reverse order; errors are logged.
func (s *service) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn("shutdown cleanup failed", map[string]any{"error": err.Error()})
		}
	}
	s.closers = nil
}
