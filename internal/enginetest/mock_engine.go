// Package enginetest provides a scripted in-memory engine for tests.
package enginetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"talentgrid-hq/conductor/pkg/engines"
)

// Behavior describes how a MockEngine answers a single call.
type Behavior struct {
	// Score is returned on success
	Score float64

	// SubScores is returned on success
	SubScores map[string]float64

	// Confidence is returned on success
	Confidence float64

	// Latency is how long the call takes before answering
	Latency time.Duration

	// Err is returned instead of a score when set
	Err error
}

// MockEngine is a mock implementation of the Engine interface for testing.
// It answers with a default behavior unless a per-call script is queued.
type MockEngine struct {
	name string

	mu       sync.Mutex
	behavior Behavior
	script   []Behavior
	calls    []string
	healthy  bool
}

// NewMockEngine creates a new mock engine that returns the given score.
func NewMockEngine(name string, score float64) *MockEngine {
	return &MockEngine{
		name:     name,
		behavior: Behavior{Score: score, Confidence: 1},
		healthy:  true,
	}
}

// WithLatency sets the default latency and returns the engine.
func (m *MockEngine) WithLatency(d time.Duration) *MockEngine {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.behavior.Latency = d
	return m
}

// WithSubScores sets the default sub-scores and returns the engine.
func (m *MockEngine) WithSubScores(sub map[string]float64) *MockEngine {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.behavior.SubScores = sub
	return m
}

// SetBehavior replaces the default behavior.
func (m *MockEngine) SetBehavior(b Behavior) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.behavior = b
}

// SetError makes every subsequent call fail with err (nil clears it).
func (m *MockEngine) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.behavior.Err = err
}

// SetLatency changes the default latency.
func (m *MockEngine) SetLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.behavior.Latency = d
}

// Queue appends behaviors consumed one per call before the default applies.
func (m *MockEngine) Queue(b ...Behavior) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, b...)
}

// SetHealthy sets the sideband health status of the mock engine.
func (m *MockEngine) SetHealthy(healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = healthy
}

// Calls returns the request ids of every Score call received so far.
func (m *MockEngine) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of Score calls received so far.
func (m *MockEngine) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Score answers according to the next queued behavior or the default one.
// It honors context cancellation while simulating latency.
func (m *MockEngine) Score(ctx context.Context, req *engines.MatchRequest) (*engines.Score, error) {
	m.mu.Lock()
	b := m.behavior
	if len(m.script) > 0 {
		b = m.script[0]
		m.script = m.script[1:]
	}
	m.calls = append(m.calls, req.RequestID)
	m.mu.Unlock()

	if b.Latency > 0 {
		timer := time.NewTimer(b.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, &engines.TimeoutError{Engine: m.name}
			}
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if b.Err != nil {
		return nil, b.Err
	}

	var sub map[string]float64
	if b.SubScores != nil {
		sub = make(map[string]float64, len(b.SubScores))
		for k, v := range b.SubScores {
			sub[k] = v
		}
	}
	return &engines.Score{Value: b.Score, SubScores: sub, Confidence: b.Confidence}, nil
}

// HealthCheck performs a health check.
func (m *MockEngine) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.healthy {
		return fmt.Errorf("engine %s is unhealthy", m.name)
	}
	return nil
}

// Name returns the engine name.
func (m *MockEngine) Name() string {
	return m.name
}

// Close is a no-op.
func (m *MockEngine) Close() error {
	return nil
}

// Compile-time interface check.
var _ engines.Engine = (*MockEngine)(nil)
