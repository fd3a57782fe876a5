// Command analyzer runs the segment analysis pipeline as a standalone
// process: it wires together the event source, durable queue, worker
// pool, result store and subscription bus, then serves the WebSocket
// subscriber endpoint plus operator health and metrics surfaces until
// asked to shut down.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"streamvision/internal/adapters"
	"streamvision/internal/bus"
	"streamvision/internal/config"
	"streamvision/internal/engine"
	"streamvision/internal/eventsource"
	"streamvision/internal/httpapi"
	"streamvision/internal/queue"
	"streamvision/internal/registry"
	"streamvision/internal/store"
	"streamvision/internal/strategy"
	"streamvision/internal/streamctl"
	"streamvision/internal/telemetry"
	"streamvision/internal/workerpool"
	"streamvision/pkg/models"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("analyzer exited with error", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := buildStore(ctx, logger)
	if err != nil {
		return fmt.Errorf("build store: %w", err)
	}

	catalog, err := buildCatalog(cfg)
	if err != nil {
		return fmt.Errorf("build catalog: %w", err)
	}

	reg := registry.New(catalog)
	if err := reg.Reload(); err != nil {
		// A failed initial reload (for example two active providers
		// claiming one capability) is not fatal: the registry starts with
		// no active capabilities and every event is UnconfiguredCapability
		// until the catalog is corrected and reloaded. A catalog file that
		// cannot be read fails buildCatalog above instead.
		logger.Warn("initial provider catalog reload failed", "error", err)
	}

	// fc.Watch is armed further down, once reconfigureOnReload exists, so
	// both the registry snapshot and the engine's configured adapters
	// stay in lockstep on every hot reload.

	exec, execName := buildStrategy(cfg, logger)
	logger.Info("execution strategy selected", "strategy", execName)

	factories := adapters.NewFactories()
	eng := engine.New(reg, factories, exec)
	configureEngine(eng, reg, logger)

	q := queue.New()
	b := bus.New(st)
	streams := streamctl.New()

	metrics := telemetry.NewMetrics()

	// reconfigureOnReload re-runs the registry reload and then feeds the
	// refreshed active-provider map back into the engine, so a catalog
	// file edit (or an admin-triggered reload) takes effect on the next
	// segment without a process restart.
	reconfigureOnReload := reloaderFunc(func() error {
		if err := reg.Reload(); err != nil {
			return err
		}
		configureEngine(eng, reg, logger)
		return nil
	})

	if fc, ok := catalog.(*config.FileCatalog); ok {
		stop := make(chan struct{})
		go func() { <-ctx.Done(); close(stop) }()
		if err := fc.Watch(stop, reconfigureOnReload, logger); err != nil {
			logger.Warn("catalog hot reload disabled", "error", err)
		}
	}

	pool := workerpool.New(q, eng, st, b, logger, workerpool.Config{
		FrameDecoder:        engine.NewFrameDecoder(""),
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		Metrics:             metrics,
	})
	pool.Start(ctx)
	defer pool.Stop()

	src, err := buildEventSource(cfg, q, streams, logger)
	if err != nil {
		return fmt.Errorf("build event source: %w", err)
	}
	if err := src.Start(); err != nil {
		return fmt.Errorf("start event source: %w", err)
	}
	defer src.Stop()

	server := httpapi.New(":8090", b, metrics, httpapi.Liveness{
		Queue:    httpapi.QueueLiveness(q),
		Registry: httpapi.RegistryLiveness(reg),
	}, logger)
	server.Start()
	defer server.Stop(5 * time.Second)

	logger.Info("analyzer started",
		"processing_mode", cfg.ProcessingMode,
		"event_source", cfg.EventSource,
		"http_addr", ":8090")

	<-ctx.Done()
	logger.Info("shutdown signal received, draining in-flight work")
	_ = eng.Release()
	return nil
}

// buildStore constructs the Postgres-backed store when DATABASE_URL is
// set, falling back to the in-memory store so the pipeline still runs
// (e.g. in development or tests) without a database configured.
func buildStore(ctx context.Context, logger *slog.Logger) (store.Store, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logger.Warn("DATABASE_URL not set, using in-memory result store")
		return store.NewMemStore(), nil
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	pg := store.NewPGStore(pool)
	if err := pg.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return pg, nil
}

// buildCatalog loads the YAML provider/brand catalog named by
// AI_PROVIDER_CATALOG, or an empty in-memory catalog if unset — an
// empty catalog leaves every capability UnconfiguredCapability until an
// admin declares providers and triggers a reload.
func buildCatalog(cfg config.Config) (registry.Catalog, error) {
	if cfg.CatalogPath == "" {
		return emptyCatalog{}, nil
	}
	return config.NewFileCatalog(cfg.CatalogPath)
}

// reloaderFunc adapts a plain func() error to config.Reloader.
type reloaderFunc func() error

func (f reloaderFunc) Reload() error { return f() }

type emptyCatalog struct{}

func (emptyCatalog) Providers() ([]models.Provider, error) { return nil, nil }
func (emptyCatalog) Brands() ([]models.Brand, error)       { return nil, nil }

func buildStrategy(cfg config.Config, logger *slog.Logger) (strategy.Strategy, string) {
	switch cfg.ProcessingMode {
	case config.ModeRemoteLAN:
		if cfg.WorkerHost == "" {
			logger.Warn("remote_lan requested without AI_WORKER_HOST, falling back to local")
			return strategy.NewInProcess(), "local"
		}
		return strategy.NewRemote(strategy.RemoteConfig{Host: cfg.WorkerHost, Timeout: cfg.WorkerTimeout}), "remote_lan"
	case config.ModeCloud:
		if cfg.CloudCredentialRef == "" {
			logger.Warn("cloud mode requested without a credential reference, falling back to local")
			return strategy.NewInProcess(), "local"
		}
		return strategy.NewCloud(cfg.CloudCredentialRef), "cloud"
	default:
		return strategy.NewInProcess(), "local"
	}
}

// configureEngine instantiates an adapter for every capability with an
// active provider as of the most recent reload. Engine.Configure is
// idempotent for an unchanged provider, so calling this again after a
// catalog reload is always safe.
func configureEngine(eng *engine.Engine, reg *registry.Registry, logger *slog.Logger) {
	providers := make(map[models.Capability]models.Provider)
	for _, cap := range reg.ActiveCapabilities() {
		if p, ok := reg.Get(cap); ok {
			providers[cap] = p
		}
	}
	if err := eng.Configure(providers); err != nil {
		logger.Warn("engine configuration incomplete", "error", err)
	}
}

func buildEventSource(cfg config.Config, q queue.EventQueue, streams *streamctl.Controller, logger *slog.Logger) (eventsource.Source, error) {
	switch cfg.EventSource {
	case config.SourceWebhook:
		return eventsource.NewWebhookReceiver(eventsource.WebhookConfig{Addr: ":8091"}, q, logger), nil
	case config.SourceCloud:
		return eventsource.NewObjectStoreNotifier(q, logger), nil
	default:
		return eventsource.NewDirWatcher(eventsource.DirWatcherConfig{
			Directory:    cfg.WatchDirectory,
			PollInterval: cfg.PollInterval,
		}, q, streams, logger), nil
	}
}
