// Package traffic decides per request whether the legacy single-engine path
// or the orchestrator path serves it.
//
// The router owns the process-wide rollout stage. The hot path reads it with
// a single atomic load. Operator changes (SetRollout, ForceLegacy, Release,
// ApplyRules) are serialized, persisted, and queued until their effective time
// (issue time plus the configured propagation delay), then swapped in whole.
//
// Routing is sticky: with a user key, the path is a pure function of the salt,
// the key and the stage percentage, so the same user keeps the same path for
// the life of a stage.
package traffic

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// hashBuckets is the resolution of sticky routing (0.01%).
const hashBuckets = 10000

// Config configures a Router.
type Config struct {
	// Rules are the initial rollout rules, used when no stage was persisted
	Rules Rules

	// Salt namespaces the sticky hash
	Salt string

	// PropagationDelay is how long an operator change waits before applying
	PropagationDelay time.Duration
}

// ChangeHook is notified when a stage becomes effective. Hooks run on the
// goroutine that promoted the stage and must not block.
type ChangeHook func(from, to Stage)

// Option configures a Router.
type Option func(*Router)

// WithClock replaces the router's clock.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// WithRandom replaces the source of randomness for key-less requests. fn must
// return values in [0, 1).
func WithRandom(fn func() float64) Option {
	return func(r *Router) { r.random = fn }
}

// WithChangeHook registers a stage change hook.
func WithChangeHook(hook ChangeHook) Option {
	return func(r *Router) { r.hooks = append(r.hooks, hook) }
}

// Router routes requests between the legacy and orchestrator paths.
type Router struct {
	current atomic.Pointer[Stage]

	// mu serializes mutations and guards pending.
	mu         sync.Mutex
	pending    []*Stage
	hasPending atomic.Bool

	salt   string
	delay  time.Duration
	store  Store
	now    func() time.Time
	random func() float64
	hooks  []ChangeHook
	logger *slog.Logger
}

// New creates a router. The last persisted stage wins over cfg.Rules so an
// operator rollback survives restarts.
func New(ctx context.Context, cfg Config, store Store, opts ...Option) (*Router, error) {
	if err := cfg.Rules.Validate(); err != nil {
		return nil, err
	}
	if cfg.PropagationDelay < 0 {
		return nil, fmt.Errorf("propagation delay must not be negative, got %s", cfg.PropagationDelay)
	}
	if store == nil {
		store = NewMemoryStore()
	}

	r := &Router{
		salt:   cfg.Salt,
		delay:  cfg.PropagationDelay,
		store:  store,
		now:    time.Now,
		random: rand.Float64,
		logger: slog.Default().With("component", "traffic"),
	}
	for _, opt := range opts {
		opt(r)
	}

	persisted, ok, err := store.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rollout stage: %w", err)
	}

	now := r.now()
	switch {
	case !ok:
		stage := &Stage{Version: 1, Rules: cfg.Rules.clone(), Source: "startup", IssuedAt: now, EffectiveAt: now}
		if err := store.Save(ctx, stage); err != nil {
			return nil, fmt.Errorf("failed to persist rollout stage: %w", err)
		}
		r.current.Store(stage)
	case persisted.EffectiveAt.After(now):
		// Resume an in-flight change on top of its predecessor.
		prev, found, err := store.Version(ctx, persisted.Version-1)
		if err != nil {
			return nil, fmt.Errorf("failed to load rollout stage: %w", err)
		}
		if !found {
			prev = &Stage{Rules: cfg.Rules.clone(), Source: "startup", IssuedAt: now, EffectiveAt: now}
		}
		r.current.Store(prev)
		r.pending = []*Stage{persisted}
		r.hasPending.Store(true)
	default:
		r.current.Store(persisted)
	}

	cur := r.current.Load()
	r.logger.Info("traffic router initialized",
		"version", cur.Version,
		"percentage", cur.Rules.Percentage,
		"force_legacy", cur.ForceLegacy,
		"propagation_delay", r.delay,
	)
	return r, nil
}

// Route assigns a path to a request. userKey enables sticky routing; segment
// selects segment rules. Both may be empty.
func (r *Router) Route(userKey, segment string) Assignment {
	stage := r.stage()

	if stage.ForceLegacy {
		return Assignment{Path: PathLegacy, Reason: ReasonForceLegacy, Version: stage.Version}
	}

	rules := &stage.Rules
	if segment != "" {
		if slices.Contains(rules.Deny, segment) {
			return Assignment{Path: PathLegacy, Reason: ReasonSegmentDeny, Version: stage.Version}
		}
		if slices.Contains(rules.Allow, segment) {
			return Assignment{Path: PathOrchestrator, Reason: ReasonSegmentAllow, Percentage: 100, Version: stage.Version}
		}
	}

	pct := rules.Percentage
	if p, ok := rules.Segments[segment]; ok && segment != "" {
		pct = p
	}

	a := Assignment{Path: PathLegacy, Percentage: pct, Version: stage.Version}
	if userKey != "" {
		a.Reason = ReasonSticky
		if Bucket(r.salt, userKey) < uint32(pct*hashBuckets/100) {
			a.Path = PathOrchestrator
		}
		return a
	}

	a.Reason = ReasonRandom
	if r.random()*100 < pct {
		a.Path = PathOrchestrator
	}
	return a
}

// Bucket returns the sticky bucket of a user key in [0, 10000).
func Bucket(salt, userKey string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(salt))
	h.Write([]byte{':'})
	h.Write([]byte(userKey))
	return h.Sum32() % hashBuckets
}

// Current returns the stage in effect.
func (r *Router) Current() Stage {
	return *r.stage()
}

// Pending returns changes issued but not yet effective.
func (r *Router) Pending() []Stage {
	r.promote()
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Stage, len(r.pending))
	for i, s := range r.pending {
		out[i] = *s
	}
	return out
}

// SetRollout sets the default orchestrator percentage. Setting the value that
// is already in effect (or pending) is a no-op.
func (r *Router) SetRollout(ctx context.Context, percentage float64, source string) (Stage, error) {
	if !validPercentage(percentage) {
		return Stage{}, &InvalidRolloutError{Field: "percentage", Percentage: percentage}
	}
	return r.change(ctx, source, func(s *Stage) bool {
		if s.Rules.Percentage == percentage {
			return false
		}
		s.Rules.Percentage = percentage
		return true
	})
}

// ForceLegacy routes all traffic to the legacy path. Idempotent.
func (r *Router) ForceLegacy(ctx context.Context, source string) (Stage, error) {
	return r.change(ctx, source, func(s *Stage) bool {
		if s.ForceLegacy {
			return false
		}
		s.ForceLegacy = true
		return true
	})
}

// Release lifts a legacy override. Idempotent.
func (r *Router) Release(ctx context.Context, source string) (Stage, error) {
	return r.change(ctx, source, func(s *Stage) bool {
		if !s.ForceLegacy {
			return false
		}
		s.ForceLegacy = false
		return true
	})
}

// ApplyRules replaces the rollout rules, typically from a configuration
// reload. The legacy override is left as is.
func (r *Router) ApplyRules(ctx context.Context, rules Rules, source string) (Stage, error) {
	if err := rules.Validate(); err != nil {
		return Stage{}, err
	}
	return r.change(ctx, source, func(s *Stage) bool {
		if rulesEqual(s.Rules, rules) {
			return false
		}
		s.Rules = rules.clone()
		return true
	})
}

// change derives a new stage from the latest issued one, persists it and
// queues it. It returns the latest stage when mutate reports no change.
func (r *Router) change(ctx context.Context, source string, mutate func(*Stage) bool) (Stage, error) {
	r.promote()

	r.mu.Lock()
	defer r.mu.Unlock()

	latest := r.current.Load()
	if n := len(r.pending); n > 0 {
		latest = r.pending[n-1]
	}

	now := r.now()
	next := latest.next(source, now, now.Add(r.delay))
	if !mutate(next) {
		return *latest, nil
	}

	if err := r.store.Save(ctx, next); err != nil {
		return Stage{}, fmt.Errorf("failed to persist rollout stage: %w", err)
	}

	r.logger.Info("rollout change issued",
		"version", next.Version,
		"percentage", next.Rules.Percentage,
		"force_legacy", next.ForceLegacy,
		"source", source,
		"effective_at", next.EffectiveAt,
	)

	r.pending = append(r.pending, next)
	r.hasPending.Store(true)
	r.promoteLocked(now)
	return *next, nil
}

// stage promotes due changes and returns the stage in effect.
func (r *Router) stage() *Stage {
	if r.hasPending.Load() {
		r.promote()
	}
	return r.current.Load()
}

func (r *Router) promote() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.promoteLocked(r.now())
}

func (r *Router) promoteLocked(now time.Time) {
	for len(r.pending) > 0 && !now.Before(r.pending[0].EffectiveAt) {
		next := r.pending[0]
		r.pending = r.pending[1:]
		prev := r.current.Swap(next)

		r.logger.Info("rollout stage effective",
			"version", next.Version,
			"from_percentage", prev.EffectivePercentage(),
			"to_percentage", next.EffectivePercentage(),
			"force_legacy", next.ForceLegacy,
		)
		for _, hook := range r.hooks {
			hook(*prev, *next)
		}
	}
	r.hasPending.Store(len(r.pending) > 0)
}

func rulesEqual(a, b Rules) bool {
	if a.Percentage != b.Percentage || len(a.Segments) != len(b.Segments) {
		return false
	}
	for k, v := range a.Segments {
		if w, ok := b.Segments[k]; !ok || w != v {
			return false
		}
	}
	return slices.Equal(a.Allow, b.Allow) && slices.Equal(a.Deny, b.Deny)
}
