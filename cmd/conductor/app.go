package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"talentgrid-hq/conductor/pkg/cache"
	"talentgrid-hq/conductor/pkg/cli"
	"talentgrid-hq/conductor/pkg/config"
	"talentgrid-hq/conductor/pkg/enginefactory"
	"talentgrid-hq/conductor/pkg/events"
	"talentgrid-hq/conductor/pkg/events/recorder"
	"talentgrid-hq/conductor/pkg/events/retention"
	"talentgrid-hq/conductor/pkg/events/storage"
	"talentgrid-hq/conductor/pkg/execution"
	"talentgrid-hq/conductor/pkg/monitor"
	"talentgrid-hq/conductor/pkg/orchestrator"
	"talentgrid-hq/conductor/pkg/registry"
	"talentgrid-hq/conductor/pkg/selection"
	"talentgrid-hq/conductor/pkg/server"
	"talentgrid-hq/conductor/pkg/telemetry/health"
	"talentgrid-hq/conductor/pkg/telemetry/metrics"
	"talentgrid-hq/conductor/pkg/telemetry/tracing"
	"talentgrid-hq/conductor/pkg/traffic"
)

// app holds every long-lived component of a running instance.
type app struct {
	cfgPath string
	cfg     *config.Config

	tracer    *tracing.Tracer
	collector *metrics.Collector
	registry  *registry.Registry
	monitor   *monitor.Monitor
	engines   *enginefactory.Manager
	cache     cache.Store
	events    events.Storage
	recorder  *recorder.Recorder
	pruner    *retention.Pruner
	stages    traffic.Store
	router    *traffic.Router
	selector  *selection.Selector
	orch      *orchestrator.Orchestrator
	checker   *health.Checker
	server    *server.Server

	logger *slog.Logger
}

// buildApp wires every component from cfg. On error, whatever was already
// opened is closed.
func buildApp(ctx context.Context, cfgPath string, cfg *config.Config) (a *app, err error) {
	a = &app{
		cfgPath: cfgPath,
		cfg:     cfg,
		logger:  slog.Default().With("component", "conductor"),
	}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	a.tracer, err = tracing.New(ctx, &cfg.Telemetry.Tracing, Version)
	if err != nil {
		return a, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	a.collector = metrics.NewCollector(metricsConfig(cfg.Telemetry.Metrics), nil)
	if cfg.Telemetry.Metrics.IsEnabled() {
		if err = a.collector.RegisterRuntimeCollectors(); err != nil {
			return a, fmt.Errorf("failed to register runtime metrics: %w", err)
		}
	}

	a.registry, err = registry.Load(enginefactory.Definitions(cfg.Engines))
	if err != nil {
		return a, cli.NewConfigError(cfgPath, err)
	}

	if err = a.buildEvents(cfg.Events); err != nil {
		return a, err
	}

	monOpts := []monitor.Option{monitor.WithTransitionHook(a.collector.OnTransition)}
	if a.recorder != nil {
		monOpts = append(monOpts, monitor.WithTransitionHook(a.recorder.OnTransition))
	}
	a.monitor = monitor.New(a.registry, monitorConfig(cfg.Monitor), monOpts...)

	a.engines = enginefactory.NewManager(a.monitor.RecordHealthCheck)
	if err = a.engines.Load(cfg.Engines); err != nil {
		return a, cli.NewConfigError(cfgPath, err)
	}

	a.cache, err = buildCache(ctx, cfg.Cache, a.collector)
	if err != nil {
		return a, err
	}

	if err = a.buildRouter(ctx, cfg.Rollout); err != nil {
		return a, err
	}

	a.selector = selection.New(a.registry, a.monitor, selectionConfig(cfg.Selection))

	execOpts := []execution.Option{execution.WithObserver(a.collector)}
	orchOpts := []orchestrator.Option{orchestrator.WithObserver(a.collector)}
	if a.recorder != nil {
		execOpts = append(execOpts, execution.WithObserver(a.recorder))
		orchOpts = append(orchOpts, orchestrator.WithObserver(a.recorder))
	}
	exec := execution.New(a.registry, a.engines.Set(), a.cache, a.monitor, execOpts...)
	a.orch = orchestrator.New(a.router, a.selector, exec, orchestrator.Config{LegacyEngine: cfg.Legacy.Engine}, orchOpts...)

	a.checker = health.New(0)
	a.checker.Register("engines", health.EnabledEngines(func() int { return len(a.registry.ListEnabled()) }))
	if a.events != nil {
		a.checker.Register("events", health.Ping(a.events))
	}
	if p, ok := a.cache.(health.Pinger); ok {
		a.checker.Register("cache", health.Ping(p))
	}

	deps := server.Deps{
		Matcher:     a.orch,
		Rollout:     a.router,
		Engines:     a.monitor,
		Health:      a.checker,
		MetricsPath: cfg.Telemetry.Metrics.Path,
		Version:     Version,
		Commit:      GitCommit,
		BuildDate:   BuildDate,
	}
	if cfg.Telemetry.Metrics.IsEnabled() {
		deps.Metrics = a.collector.Handler()
	}
	a.server = server.New(cfg.Server, deps)

	a.publishEngineStatus()
	return a, nil
}

// buildEvents opens the event store and starts the recorder. A disabled
// event store leaves both nil.
func (a *app) buildEvents(cfg config.EventsConfig) error {
	if !cfg.IsEnabled() {
		a.logger.Info("event recording disabled")
		return nil
	}

	switch cfg.Backend {
	case "sqlite":
		if err := ensureDir(cfg.SQLite.Path); err != nil {
			return err
		}
		s, err := storage.NewSQLiteStorage(eventStorageConfig(cfg.SQLite))
		if err != nil {
			return fmt.Errorf("failed to create SQLite event storage: %w", err)
		}
		a.events = s
	case "memory":
		a.events = storage.NewMemoryStorage()
	default:
		return cli.NewConfigError(a.cfgPath, fmt.Errorf("unsupported events backend: %s", cfg.Backend))
	}

	a.recorder = recorder.New(a.events, recorderConfig(cfg))
	a.recorder.SetDropHook(a.collector.RecordEventDrop)

	if cfg.Retention.PruneSchedule != "" {
		a.pruner = retention.NewPruner(a.events, retentionConfig(cfg.Retention))
	}
	return nil
}

// buildRouter restores the rollout state and creates the traffic router.
func (a *app) buildRouter(ctx context.Context, cfg config.RolloutConfig) error {
	if cfg.StatePath != "" {
		if err := ensureDir(cfg.StatePath); err != nil {
			return err
		}
		s, err := traffic.NewSQLiteStore(traffic.SQLiteConfig{Path: cfg.StatePath})
		if err != nil {
			return fmt.Errorf("failed to open rollout state: %w", err)
		}
		a.stages = s
	} else {
		a.stages = traffic.NewMemoryStore()
	}

	opts := []traffic.Option{traffic.WithChangeHook(a.collector.OnRolloutChange)}
	if a.recorder != nil {
		opts = append(opts, traffic.WithChangeHook(a.recorder.OnRolloutChange))
	}
	router, err := traffic.New(ctx, trafficConfig(cfg), a.stages, opts...)
	if err != nil {
		return cli.NewConfigError(a.cfgPath, err)
	}
	a.router = router

	// Hooks only fire on changes; publish the restored stage once.
	cur := router.Current()
	a.collector.OnRolloutChange(cur, cur)
	return nil
}

// buildCache creates the configured result cache. "none" returns a nil
// store, which disables caching in the executor.
func buildCache(ctx context.Context, cfg config.CacheConfig, collector *metrics.Collector) (cache.Store, error) {
	switch cfg.Backend {
	case "memory":
		return cache.NewMemoryStore(cfg.MaxEntries, cfg.CleanupInterval,
			cache.WithEvictionHook(collector.RecordCacheEvictions),
		), nil
	case "redis":
		s := cache.NewRedisStore(cache.RedisConfig{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.Ping(pingCtx); err != nil {
			// Redis may come up later; readiness reports it until then.
			slog.Warn("redis cache unreachable at startup", "address", cfg.Redis.Address, "error", err)
		}
		return s, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.Backend)
	}
}

// publishEngineStatus copies the monitor's view of every engine into the
// metrics gauges.
func (a *app) publishEngineStatus() {
	for _, s := range a.monitor.Snapshot() {
		a.collector.UpdateEngineStatus(s.Engine, s.Enabled, s.Weight, s.State)
	}
}

// Close releases every component in reverse dependency order. It is safe on
// a partially built app.
func (a *app) Close() {
	if a.engines != nil {
		_ = a.engines.Close()
	}
	if a.pruner != nil {
		a.pruner.Stop()
	}
	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			a.logger.Warn("failed to flush event recorder", "error", err)
		}
	}
	if a.events != nil {
		_ = a.events.Close()
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.stages != nil {
		_ = a.stages.Close()
	}
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("failed to flush traces", "error", err)
		}
	}
}

// ensureDir creates the parent directory of a database file.
func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil && !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}
