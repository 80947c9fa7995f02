package enginefactory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"talentgrid-hq/conductor/pkg/config"
	"talentgrid-hq/conductor/pkg/engines"
)

// Manager owns the engine clients of the process and their sideband health
// checkers.
type Manager struct {
	mu      sync.RWMutex
	engines engines.Set
	ctx     context.Context
	cancel  context.CancelFunc
	report  engines.HealthReporter
	logger  *slog.Logger
}

// NewManager creates a manager. Health check results go to report, which
// may be nil.
func NewManager(report engines.HealthReporter) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		engines: make(engines.Set),
		ctx:     ctx,
		cancel:  cancel,
		report:  report,
		logger:  slog.Default().With("component", "enginefactory"),
	}
}

// Add creates the client for cfg and starts its health checker. Adding an id
// twice replaces and closes the previous client.
func (m *Manager) Add(cfg config.EngineConfig) error {
	eng, err := NewEngine(cfg)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.engines[cfg.ID]; ok {
		m.logger.Warn("replacing existing engine client", "engine", cfg.ID)
		_ = existing.Close()
	}
	m.engines[cfg.ID] = eng

	if m.report != nil {
		eng.StartHealthChecker(m.ctx, healthCheckTimeout(cfg), m.report)
	}

	m.logger.Info("engine client added",
		"engine", cfg.ID,
		"base_url", cfg.BaseURL,
		"total_engines", len(m.engines),
	)
	return nil
}

// Load adds every configured engine. All failures are reported together.
func (m *Manager) Load(cfgs []config.EngineConfig) error {
	var errs []error
	for _, c := range cfgs {
		if err := m.Add(c); err != nil {
			errs = append(errs, fmt.Errorf("failed to add engine %q: %w", c.ID, err))
		}
	}
	return errors.Join(errs...)
}

// Set returns a copy of the engine set.
func (m *Manager) Set() engines.Set {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(engines.Set, len(m.engines))
	for id, e := range m.engines {
		out[id] = e
	}
	return out
}

// Count returns the number of engine clients.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.engines)
}

// Close stops every health checker and closes every client.
func (m *Manager) Close() error {
	m.cancel()

	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.engines.Close()
	m.engines = make(engines.Set)
	return err
}
