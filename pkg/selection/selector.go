// Package selection maps a match request, the engine registry and live breaker
// state onto a single Decision using an ordered rule table.
//
// Selection has no side effects on engines: it never calls them, and the
// resulting Decision can be inspected and unit-tested on its own.
package selection

import (
	"log/slog"
	"strings"
	"sync/atomic"

	"talentgrid-hq/conductor/pkg/engines"
	"talentgrid-hq/conductor/pkg/registry"
)

// Health reports whether an engine's breaker admits traffic right now. It
// must not spend half-open probe tokens; the executor does that when it
// actually calls the engine.
type Health interface {
	Available(engine string) bool
}

// Config holds the selection thresholds that are not part of engine
// descriptors.
type Config struct {
	// CriticalPositions lists title fragments that trigger hybrid consensus
	CriticalPositions []string

	// ConsensusSize is the number of engines invoked in hybrid mode
	ConsensusSize int

	// ConsensusTolerance is the maximum score spread considered agreement
	ConsensusTolerance float64
}

// isCritical reports whether any job title contains a critical-position
// fragment, ignoring case.
func (c *Config) isCritical(req *engines.MatchRequest) bool {
	for _, job := range req.Jobs {
		title := strings.ToLower(job.Title)
		for _, p := range c.CriticalPositions {
			p = strings.ToLower(strings.TrimSpace(p))
			if p != "" && strings.Contains(title, p) {
				return true
			}
		}
	}
	return false
}

// Selector produces decisions. It is safe for concurrent use; the
// configuration can be swapped at runtime with UpdateConfig.
type Selector struct {
	registry *registry.Registry
	health   Health
	rules    []Rule
	cfg      atomic.Pointer[Config]
	logger   *slog.Logger
}

// New creates a selector using the default rule table.
func New(reg *registry.Registry, health Health, cfg Config) *Selector {
	s := &Selector{
		registry: reg,
		health:   health,
		rules:    DefaultRules(),
		logger:   slog.Default().With("component", "selection"),
	}
	s.UpdateConfig(cfg)
	return s
}

// UpdateConfig replaces the selection thresholds.
func (s *Selector) UpdateConfig(cfg Config) {
	if cfg.ConsensusSize < 2 {
		cfg.ConsensusSize = 2
	}
	cfg.CriticalPositions = append([]string(nil), cfg.CriticalPositions...)
	s.cfg.Store(&cfg)
}

// Config returns the thresholds in effect.
func (s *Selector) Config() Config {
	return *s.cfg.Load()
}

// Select evaluates the rule table for req. Engines whose breaker does not
// admit traffic are removed from every list before any rule runs. It fails
// with ErrNoEngineAvailable when nothing remains.
func (s *Selector) Select(req *engines.MatchRequest) (*Decision, error) {
	c := &candidates{
		req:      req,
		cfg:      s.cfg.Load(),
		admitted: make(map[string]bool),
	}

	var excluded []string
	for _, d := range s.registry.ListEnabled() {
		if s.health != nil && !s.health.Available(d.ID) {
			excluded = append(excluded, d.ID)
			continue
		}
		c.pool = append(c.pool, d)
		c.admitted[d.ID] = true
	}

	if len(c.pool) == 0 {
		s.logger.Warn("no engine available",
			"request_id", req.RequestID,
			"excluded", excluded,
		)
		return nil, &NoEngineAvailableError{Excluded: excluded}
	}

	if b, err := s.registry.Baseline(); err == nil {
		c.baseline = b
	}

	for _, rule := range s.rules {
		dec, ok := rule.Evaluate(c)
		if !ok {
			continue
		}
		dec.RequestID = req.RequestID
		dec.Reason = rule.Reason
		dec.Excluded = excluded

		s.logger.Debug("engine selection decided",
			"request_id", req.RequestID,
			"mode", dec.Mode.String(),
			"engines", dec.Engines,
			"reason", string(dec.Reason),
			"excluded", excluded,
		)
		return dec, nil
	}

	// The baseline rule matches whenever the pool is non-empty.
	return nil, &NoEngineAvailableError{Excluded: excluded}
}
