package engines

import (
	"context"
	"log/slog"
	"time"
)

// HealthReporter receives the result of every sideband health check. The
// monitor uses it to keep an open engine's health window informed so the
// engine can recover.
type HealthReporter func(engine string, err error, latency time.Duration)

// StartHealthChecker starts a background goroutine that periodically checks
// the engine's health and reports each result. It runs until the engine is
// closed or the context is cancelled, and backs off exponentially while the
// engine is unhealthy.
func (e *HTTPEngine) StartHealthChecker(ctx context.Context, timeout time.Duration, report HealthReporter) {
	go e.runHealthChecker(ctx, timeout, report)
}

// runHealthChecker is the main health checking loop.
func (e *HTTPEngine) runHealthChecker(ctx context.Context, timeout time.Duration, report HealthReporter) {
	interval := e.config.HealthCheckInterval
	if interval == 0 {
		interval = 30 * time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("engine health checker started",
		"engine", e.config.Name,
		"interval", interval,
	)

	for {
		select {
		case <-ctx.Done():
			slog.Debug("engine health checker stopped (context cancelled)", "engine", e.config.Name)
			return

		case <-e.stopHealthCheck:
			slog.Debug("engine health checker stopped (engine closed)", "engine", e.config.Name)
			return

		case <-ticker.C:
			e.performHealthCheck(ctx, timeout, report)

			if !e.Health().IsHealthy {
				backoff := calculateBackoff(e.Health().ConsecutiveFailures, interval)
				ticker.Reset(backoff)
				slog.Debug("engine health check backoff",
					"engine", e.config.Name,
					"next_check_in", backoff,
				)
			} else {
				ticker.Reset(interval)
			}
		}
	}
}

// performHealthCheck executes a single health check.
func (e *HTTPEngine) performHealthCheck(ctx context.Context, timeout time.Duration, report HealthReporter) {
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := e.HealthCheck(checkCtx)
	latency := time.Since(start)
	err = Normalize(checkCtx, e.config.Name, timeout, err)

	wasHealthy := e.Health().IsHealthy
	e.updateHealth(err)

	if err != nil {
		slog.Warn("engine health check failed",
			"engine", e.config.Name,
			"kind", Kind(err),
			"error", err,
			"latency", latency,
		)
	} else if !wasHealthy {
		slog.Info("engine marked healthy", "engine", e.config.Name)
	}

	if report != nil {
		report(e.config.Name, err, latency)
	}
}

// calculateBackoff calculates the backoff interval based on consecutive failures.
// It uses exponential backoff capped at 10x the base interval and 5 minutes.
func calculateBackoff(consecutiveFailures int, baseInterval time.Duration) time.Duration {
	if consecutiveFailures <= 0 {
		return baseInterval
	}

	multiplier := 1 << uint(consecutiveFailures)
	if multiplier > 10 {
		multiplier = 10
	}

	backoff := baseInterval * time.Duration(multiplier)
	if backoff > 5*time.Minute {
		backoff = 5 * time.Minute
	}
	return backoff
}
