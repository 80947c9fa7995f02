package main

import (
	"context"
	"sync"
	"time"

	"talentgrid-hq/conductor/pkg/cli"
	"talentgrid-hq/conductor/pkg/config"
	"talentgrid-hq/conductor/pkg/config/gitsource"
)

// rolloutSourceConfig marks rollout stages issued by a configuration reload.
const rolloutSourceConfig = "config"

// applyConfig pushes the reloadable parts of cfg into the running
// components. Engines cannot be added or removed without a restart.
func (a *app) applyConfig(ctx context.Context, cfg *config.Config) {
	for _, e := range cfg.Engines {
		if _, ok := a.registry.Lookup(e.ID); !ok {
			a.logger.Warn("engine added to configuration, restart required", "engine", e.ID)
			continue
		}
		if err := a.monitor.SetWeight(e.ID, e.WeightValue()); err != nil {
			a.logger.Warn("failed to apply engine weight", "engine", e.ID, "error", err)
		}
		if err := a.monitor.SetEnabled(e.ID, e.IsEnabled()); err != nil {
			a.logger.Warn("failed to apply engine enabled flag", "engine", e.ID, "error", err)
		}
		if err := a.registry.SetCacheTTL(e.ID, e.CacheTTL); err != nil {
			a.logger.Warn("failed to apply engine cache ttl", "engine", e.ID, "error", err)
		}
	}

	a.selector.UpdateConfig(selectionConfig(cfg.Selection))
	a.monitor.ApplyBreakerConfig(breakerConfig(cfg.Monitor))

	if _, err := a.router.ApplyRules(ctx, rolloutRules(cfg.Rollout), rolloutSourceConfig); err != nil {
		a.logger.Error("failed to apply rollout rules", "error", err)
	}

	a.publishEngineStatus()
	a.logger.Info("configuration applied", "engines", len(cfg.Engines))
}

// Run serves until ctx is cancelled, then shuts the server down. Background
// loops (breaker evaluation, pruning, reload sources) stop with ctx.
func (a *app) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	config.OnReload(func(_, next *config.Config) { a.applyConfig(ctx, next) })

	var wg sync.WaitGroup
	goFunc := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	goFunc(func() { a.monitor.Run(ctx) })
	goFunc(func() { a.reportEngineStatus(ctx, a.cfg.Monitor.EvaluateInterval) })

	if a.pruner != nil {
		if err := a.pruner.Start(ctx); err != nil {
			return cli.NewConfigError(a.cfgPath, err)
		}
		a.logger.Info("event retention scheduled", "schedule", a.cfg.Events.Retention.PruneSchedule)
	}

	if err := a.startReloadSources(ctx, goFunc); err != nil {
		return err
	}

	err := a.server.Start(ctx)
	cancel()
	wg.Wait()
	return err
}

// startReloadSources starts the Git poller or the file watcher, and the
// SIGHUP handler, as configured. With Git enabled the repository copy is
// the configuration from the first sync on and the local file is not
// watched.
func (a *app) startReloadSources(ctx context.Context, goFunc func(func())) error {
	switch {
	case a.cfg.Reload.Git.Enabled:
		src, err := gitsource.New(a.cfg.Reload.Git)
		if err != nil {
			return cli.NewConfigError(a.cfgPath, err)
		}
		path, err := src.Sync(ctx)
		if err != nil {
			return err
		}
		if err := config.ReloadConfig(path); err != nil {
			return cli.NewConfigError(path, err)
		}
		a.cfgPath = path
		goFunc(func() { src.Run(ctx, config.ReloadConfig) })

	case a.cfg.Reload.Watch:
		fw, err := config.NewFileWatcher(a.cfgPath, a.cfg.Reload.Debounce)
		if err != nil {
			return err
		}
		path := a.cfgPath
		goFunc(func() {
			defer fw.Stop()
			if err := fw.Watch(ctx, func() error { return config.ReloadConfig(path) }); err != nil {
				a.logger.Error("config watcher stopped", "error", err)
			}
		})
	}

	path := a.cfgPath
	hup, stop := cli.HangupChannel()
	goFunc(func() {
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				a.logger.Info("SIGHUP received, reloading configuration", "path", path)
				if err := config.ReloadConfig(path); err != nil {
					a.logger.Error("configuration reload failed, keeping previous", "error", err)
				}
			}
		}
	})
	return nil
}

// reportEngineStatus refreshes engine gauges so breaker states opened by
// the evaluator are visible without a transition hook.
func (a *app) reportEngineStatus(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.publishEngineStatus()
		}
	}
}
