package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"FeedBot/internal/config"
	"FeedBot/internal/control"
	"FeedBot/internal/domain"
	"FeedBot/internal/infrastructure/console"
	"FeedBot/internal/infrastructure/httpx"
	"FeedBot/internal/infrastructure/parser"
	"FeedBot/internal/infrastructure/scheduler"
	"FeedBot/internal/infrastructure/storage"
	"FeedBot/internal/infrastructure/telegram"
	"FeedBot/internal/logging"
	"FeedBot/internal/metrics"
	"FeedBot/internal/ports"
	"FeedBot/internal/scanner"
	"FeedBot/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	store     ports.SeenStore
	db        *sql.DB
	registry  *prometheus.Registry
	sweeper   *usecase.Sweeper
	scheduler *usecase.Scheduler
	control   *control.Server
}

// New builds the application: seen-state store, scanners, pipeline,
// sweeper, scheduler and control API.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &Application{cfg: cfg, logger: baseLogger}

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(a.registry)

	client, err := httpx.NewClient(httpx.Options{
		Timeout:   cfg.HTTP.Timeout,
		ProxyURL:  cfg.Proxy,
		UserAgent: cfg.HTTP.UserAgent,
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("http client: %w", err)
	}

	registry := scanner.NewRegistry()
	registry.Register(parser.NewFeedScanner(client, baseLogger.With("component", "scanner.feed")))
	registry.Register(parser.NewLuoguScanner(client, cfg.Sources.LuoguBaseURL, baseLogger.With("component", "scanner.luogu")))

	source := parser.NewStrategySource(registry, a.store, cfg.Cutoff, m, baseLogger.With("component", "source"))

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source:   source,
		Store:    a.store,
		Notifier: a.notifier(client),
		Metrics:  m,
		Logger:   baseLogger.With("component", "pipeline"),
	})
	a.sweeper = usecase.NewSweeper(pipeline, cfg.Channels, m, baseLogger.With("component", "sweeper"))

	driver := scheduler.NewCronScheduler(scheduler.Options{
		Spec:       cfg.Scheduler.Spec,
		Location:   cfg.Scheduler.Location(),
		RunOnStart: cfg.Scheduler.RunOnStart,
		Logger:     baseLogger.With("component", "scheduler"),
	})
	a.scheduler = usecase.NewScheduler(driver, a.sweeper)

	if !cfg.Control.Disabled {
		a.control = control.NewServer(control.Deps{
			Sweeper:  a.sweeper,
			Channels: cfg.Channel,
			Stats:    a.store.Stats,
			Gatherer: a.registry,
			Logger:   baseLogger.With("component", "control"),
		})
	}

	return a, nil
}

func (a *Application) openStore(ctx context.Context) error {
	logger := a.logger.With("component", "storage")
	state := a.cfg.State

	switch state.Backend {
	case config.BackendPostgres:
		db, err := storage.OpenPostgres(ctx, state.DSN)
		if err != nil {
			return err
		}
		if err := storage.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return err
		}
		store, err := storage.NewPostgresStore(ctx, db)
		if err != nil {
			_ = db.Close()
			return err
		}
		a.db = db
		a.store = store
	default:
		urlFile := statePath(state.Dir, state.URLFile, storage.DefaultURLFile)
		checkpointFile := statePath(state.Dir, state.CheckpointFile, storage.DefaultCheckpointFile)
		a.store = storage.NewFileStore(urlFile, checkpointFile, logger)
	}

	urls, checkpoints := a.store.Stats()
	logger.Info("seen state loaded", "backend", state.Backend, "urls", urls, "checkpoints", checkpoints)
	return nil
}

func (a *Application) notifier(client *http.Client) ports.Notifier {
	tg := a.cfg.Notifications.Telegram
	if tg.BotToken == "" {
		a.logger.Warn("no bot token configured, digests go to stdout")
		return console.NewNotifier(os.Stdout)
	}
	return telegram.NewNotifier(client, tg.APIURL, tg.BotToken, a.logger.With("component", "notifier.telegram"))
}

func statePath(dir, name, fallback string) string {
	if name == "" {
		name = fallback
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}

// Claim binds the control address for the lifetime of the returned
// listener. Only one process may sweep a given seen-state at a time, so
// both the daemon and one-off sweeps claim it first.
func (a *Application) Claim() (net.Listener, error) {
	ln, err := control.TryListen(a.cfg.Control.Addr)
	if err != nil {
		return nil, fmt.Errorf("claim instance: %w", err)
	}
	return ln, nil
}

// Run starts the scheduler and the control API and blocks until ctx is done.
func (a *Application) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ln, err := a.Claim()
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	if a.control != nil {
		go func() {
			errCh <- a.control.Serve(ctx, ln)
		}()
	} else {
		defer ln.Close()
	}

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("feedbot running", "channels", len(a.cfg.Channels), "spec", a.cfg.Scheduler.Spec)

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		runErr = err
	}
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), a.cfg.HTTP.Timeout*2)
	defer stopCancel()
	if err := a.scheduler.Stop(stopCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("stop scheduler: %w", err))
	}
	a.logger.Info("feedbot stopped")
	return runErr
}

// SweepOnce runs a manual sweep of the given channels (all when none).
func (a *Application) SweepOnce(ctx context.Context, channelIDs ...string) (domain.SweepReport, error) {
	return a.sweeper.RunManual(ctx, channelIDs...)
}

// StateStats reports the number of seen links and checkpoints.
func (a *Application) StateStats() (urls, checkpoints int) {
	return a.store.Stats()
}

// Close releases the database connection, if any.
func (a *Application) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}
