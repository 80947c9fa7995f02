// Package monitor tracks per-engine health over rolling windows and drives a
// CLOSED/OPEN/HALF_OPEN circuit breaker for every engine.
//
// The hot path touches the monitor a few times per engine attempt: Available
// (an atomic load while the breaker is closed) during selection, Admit just
// before a live call, and Record (a short bucket update) after it. Threshold evaluation, which needs a p95 over
// the window, runs on a background ticker via Run.
//
// Breaker transitions are normal operating behavior: they are logged at INFO
// and fanned out to transition hooks (metrics, event store), never reported
// as errors.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"talentgrid-hq/conductor/pkg/engines"
	"talentgrid-hq/conductor/pkg/registry"
)

// Config configures a Monitor.
type Config struct {
	// WindowSize is the rolling window length
	WindowSize time.Duration

	// Buckets is the number of buckets the window is split into
	Buckets int

	// EvaluateInterval is how often breaker thresholds are evaluated
	EvaluateInterval time.Duration

	// Breaker holds the breaker thresholds
	Breaker BreakerConfig
}

// DefaultConfig returns the default monitor configuration.
func DefaultConfig() Config {
	return Config{
		WindowSize:       5 * time.Minute,
		Buckets:          10,
		EvaluateInterval: time.Second,
		Breaker:          DefaultBreakerConfig(),
	}
}

// TransitionHook is notified of every breaker transition. Hooks run on the
// goroutine that caused the transition and must not block.
type TransitionHook func(Transition)

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock replaces the monitor's clock.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithTransitionHook registers a transition hook.
func WithTransitionHook(hook TransitionHook) Option {
	return func(m *Monitor) { m.hooks = append(m.hooks, hook) }
}

// engineEntry is the monitor's per-engine state.
type engineEntry struct {
	window  *Window
	breaker *breaker

	// state mirrors breaker.state for lock-free reads
	state atomic.Int32

	// disabledByBreaker is true when the monitor disabled the engine in the
	// registry on opening. Guarded by breaker.mu.
	disabledByBreaker bool
}

// Monitor owns the health windows and breakers of every registered engine.
// It is the only component that mutates registry enabled flags and weights
// at runtime.
type Monitor struct {
	registry *registry.Registry
	entries  map[string]*engineEntry
	interval time.Duration

	now    func() time.Time
	hooks  []TransitionHook
	logger *slog.Logger

	runOnce sync.Once
}

// New creates a monitor with one window and breaker per registered engine.
func New(reg *registry.Registry, cfg Config, opts ...Option) *Monitor {
	def := DefaultConfig()
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.Buckets <= 0 {
		cfg.Buckets = def.Buckets
	}
	if cfg.EvaluateInterval <= 0 {
		cfg.EvaluateInterval = def.EvaluateInterval
	}

	m := &Monitor{
		registry: reg,
		entries:  make(map[string]*engineEntry),
		interval: cfg.EvaluateInterval,
		now:      time.Now,
		logger:   slog.Default().With("component", "monitor"),
	}
	for _, opt := range opts {
		opt(m)
	}

	for _, d := range reg.All() {
		m.entries[d.ID] = &engineEntry{
			window:  NewWindow(cfg.WindowSize, cfg.Buckets),
			breaker: newBreaker(d.ID, d.Timeout, cfg.Breaker),
		}
	}
	return m
}

// Record adds a call outcome to the engine's window. Live attempts made while
// the breaker is half-open count as probes.
func (m *Monitor) Record(engine string, status engines.Status, latency time.Duration) {
	e, ok := m.entries[engine]
	if !ok {
		m.logger.Debug("outcome for unknown engine ignored", "engine", engine)
		return
	}

	now := m.now()
	e.window.Add(status, latency, now)

	if status == engines.StatusCacheHit || State(e.state.Load()) != StateHalfOpen {
		return
	}

	e.breaker.mu.Lock()
	t, moved := e.breaker.probe(status.Succeeded(), latency, now)
	if moved {
		m.applyLocked(e, t)
	}
	e.breaker.mu.Unlock()

	if moved {
		m.notify(t)
	}
}

// RecordHealthCheck records a sideband health-check result. Its signature
// matches engines.HealthReporter.
func (m *Monitor) RecordHealthCheck(engine string, err error, _ time.Duration) {
	e, ok := m.entries[engine]
	if !ok {
		return
	}
	e.window.AddSideband(err == nil, m.now())
}

// Admit reports whether the engine may be called right now and, while
// half-open, spends a probe token: true while closed, false while open, and
// rate-limited while half-open. An open breaker whose cool-down has elapsed
// moves to half-open here rather than waiting for the next evaluation tick.
func (m *Monitor) Admit(engine string) bool {
	return m.gate(engine, true)
}

// Available is Admit without spending a probe token. Selection uses it so
// that engines a decision never calls keep their probe budget.
func (m *Monitor) Available(engine string) bool {
	return m.gate(engine, false)
}

func (m *Monitor) gate(engine string, consume bool) bool {
	e, ok := m.entries[engine]
	if !ok {
		return false
	}
	if State(e.state.Load()) == StateClosed {
		return true
	}

	now := m.now()
	e.breaker.mu.Lock()
	var (
		t     Transition
		moved bool
	)
	if e.breaker.state == StateOpen {
		t, moved = e.breaker.evaluate(e.window.Stats(now), now)
		if moved {
			m.applyLocked(e, t)
		}
	}
	admitted := e.breaker.admit(now, consume)
	e.breaker.mu.Unlock()

	if moved {
		m.notify(t)
	}
	return admitted
}

// State returns the current breaker state of an engine.
func (m *Monitor) State(engine string) State {
	e, ok := m.entries[engine]
	if !ok {
		return StateClosed
	}
	return State(e.state.Load())
}

// Stats returns the current window stats of an engine.
func (m *Monitor) Stats(engine string) (WindowStats, bool) {
	e, ok := m.entries[engine]
	if !ok {
		return WindowStats{}, false
	}
	return e.window.Stats(m.now()), true
}

// Evaluate checks every engine's window against the breaker thresholds and
// performs any due transitions.
func (m *Monitor) Evaluate() {
	now := m.now()
	for _, e := range m.entries {
		e.breaker.mu.Lock()
		t, moved := e.breaker.evaluate(e.window.Stats(now), now)
		if moved {
			m.applyLocked(e, t)
		}
		e.breaker.mu.Unlock()

		if moved {
			m.notify(t)
		}
	}
}

// Run evaluates breakers on every tick until the context is cancelled. It
// only runs once per monitor; later calls return immediately.
func (m *Monitor) Run(ctx context.Context) {
	started := false
	m.runOnce.Do(func() { started = true })
	if !started {
		return
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("health monitor started", "evaluate_interval", m.interval, "engines", len(m.entries))
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("health monitor stopped")
			return
		case <-ticker.C:
			m.Evaluate()
		}
	}
}

// ApplyBreakerConfig replaces the breaker thresholds of every engine. Current
// states are kept.
func (m *Monitor) ApplyBreakerConfig(cfg BreakerConfig) {
	for _, e := range m.entries {
		e.breaker.mu.Lock()
		e.breaker.cfg = cfg
		e.breaker.mu.Unlock()
	}
	m.logger.Info("breaker configuration applied",
		"error_rate_threshold", cfg.ErrorRateThreshold,
		"latency_margin", cfg.LatencyMargin,
		"cool_down", cfg.CoolDown,
	)
}

// SetWeight changes an engine's weight in the registry.
func (m *Monitor) SetWeight(engine string, weight float64) error {
	return m.registry.SetWeight(engine, weight)
}

// SetEnabled changes an engine's configured enabled flag. An engine whose
// breaker is open stays disabled until the breaker leaves OPEN.
func (m *Monitor) SetEnabled(engine string, enabled bool) error {
	e, ok := m.entries[engine]
	if !ok {
		return m.registry.SetEnabled(engine, enabled)
	}

	e.breaker.mu.Lock()
	defer e.breaker.mu.Unlock()

	if e.breaker.state == StateOpen {
		e.disabledByBreaker = enabled
		return nil
	}
	return m.registry.SetEnabled(engine, enabled)
}

// EngineStatus is a point-in-time view of one engine's health.
type EngineStatus struct {
	Engine   string      `json:"engine"`
	State    State       `json:"state"`
	Enabled  bool        `json:"enabled"`
	Weight   float64     `json:"weight"`
	OpenedAt *time.Time  `json:"opened_at,omitempty"`
	Window   WindowStats `json:"window"`
}

// Snapshot returns the health of every engine, ordered by engine id.
func (m *Monitor) Snapshot() []EngineStatus {
	now := m.now()
	out := make([]EngineStatus, 0, len(m.entries))
	for _, d := range m.registry.All() {
		e, ok := m.entries[d.ID]
		if !ok {
			continue
		}
		e.breaker.mu.Lock()
		st := EngineStatus{
			Engine:  d.ID,
			State:   e.breaker.state,
			Enabled: d.Enabled(),
			Weight:  d.Weight(),
		}
		if e.breaker.state != StateClosed {
			opened := e.breaker.openedAt
			st.OpenedAt = &opened
		}
		e.breaker.mu.Unlock()

		st.Window = e.window.Stats(now)
		out = append(out, st)
	}
	return out
}

// applyLocked performs the side effects of a transition other than hook
// notification. Must be called with e.breaker.mu held.
func (m *Monitor) applyLocked(e *engineEntry, t Transition) {
	e.state.Store(int32(t.To))
	e.window.Reset()

	switch t.To {
	case StateOpen:
		if d, ok := m.registry.Lookup(t.Engine); ok && d.Enabled() {
			if err := m.registry.SetEnabled(t.Engine, false); err == nil {
				e.disabledByBreaker = true
			}
		}
	case StateHalfOpen, StateClosed:
		if e.disabledByBreaker {
			if err := m.registry.SetEnabled(t.Engine, true); err == nil {
				e.disabledByBreaker = false
			}
		}
	}
}

// notify logs the transition and runs the hooks.
func (m *Monitor) notify(t Transition) {
	m.logger.Info("circuit breaker state transition",
		"engine", t.Engine,
		"from", t.From.String(),
		"to", t.To.String(),
		"reason", t.Reason,
	)
	for _, hook := range m.hooks {
		hook(t)
	}
}
