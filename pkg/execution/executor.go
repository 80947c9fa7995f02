// Package execution runs a selection Decision against the real engines.
//
// Every attempt is bounded by its own engine's timeout budget, derived fresh
// from the request context, so one engine's slowness never eats into
// another's budget. Attempts consult the result cache first. Each attempt is
// reported exactly once to the health recorder and attempt observers, by the
// time the attempt returns: an engine still running at its deadline is
// reported as a timeout then, and whatever it answers later is dropped.
// Attempts cut short by the request's own cancellation, or refused by the
// breaker's gate, are not reported.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"talentgrid-hq/conductor/pkg/cache"
	"talentgrid-hq/conductor/pkg/engines"
	"talentgrid-hq/conductor/pkg/registry"
	"talentgrid-hq/conductor/pkg/selection"
	"talentgrid-hq/conductor/pkg/telemetry/tracing"
)

// cacheWriteTimeout bounds background cache writes.
const cacheWriteTimeout = time.Second

// HealthRecorder receives every attempt outcome. The health monitor
// implements it.
type HealthRecorder interface {
	Record(engine string, status engines.Status, latency time.Duration)
}

// Gate admits live calls to an engine, spending a half-open probe token when
// needed. A HealthRecorder that also implements Gate is used as one.
type Gate interface {
	Admit(engine string) bool
}

// AttemptObserver is notified of every attempt outcome (metrics, events).
// Implementations must not block.
type AttemptObserver interface {
	ObserveAttempt(requestID string, o Outcome)
}

// Option configures an Executor.
type Option func(*Executor)

// WithObserver registers an attempt observer.
func WithObserver(obs AttemptObserver) Option {
	return func(x *Executor) { x.observers = append(x.observers, obs) }
}

// WithClock replaces the executor's clock used for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(x *Executor) { x.now = now }
}

// Executor executes decisions.
type Executor struct {
	registry  *registry.Registry
	engines   engines.Set
	cache     cache.Store
	health    HealthRecorder
	gate      Gate
	observers []AttemptObserver
	now       func() time.Time
	tracer    trace.Tracer
	logger    *slog.Logger
}

// New creates an executor. store and health may be nil.
func New(reg *registry.Registry, set engines.Set, store cache.Store, health HealthRecorder, opts ...Option) *Executor {
	x := &Executor{
		registry: reg,
		engines:  set,
		cache:    store,
		health:   health,
		now:      time.Now,
		tracer:   otel.Tracer("talentgrid-hq/conductor/execution"),
		logger:   slog.Default().With("component", "executor"),
	}
	if g, ok := health.(Gate); ok {
		x.gate = g
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Execute runs the decision for req and returns the reconciled result. It
// fails with an *AllEnginesFailedError when no attempted engine succeeded.
func (x *Executor) Execute(ctx context.Context, req *engines.MatchRequest, dec *selection.Decision) (*Result, error) {
	ctx, span := x.tracer.Start(ctx, "execution.execute", trace.WithAttributes(
		tracing.AttrRequestID.String(req.RequestID),
		tracing.AttrMode.String(dec.Mode.String()),
		tracing.AttrDecision.String(string(dec.Reason)),
	))
	defer span.End()

	start := time.Now()
	fp := cache.Fingerprint(req)

	var (
		res *Result
		err error
	)
	switch dec.Mode {
	case selection.ModeSingle, selection.ModeFallbackChain:
		res, err = x.runChain(ctx, req, fp, dec.Engines, nil)
	case selection.ModeHybridConsensus:
		res, err = x.runConsensus(ctx, req, fp, dec)
	default:
		err = fmt.Errorf("unsupported decision mode %s", dec.Mode)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	res.RequestID = req.RequestID
	res.Mode = dec.Mode
	res.Decision = dec.Reason
	res.Latency = time.Since(start)

	span.SetAttributes(
		tracing.AttrEngineUsed.String(res.EngineUsed),
		tracing.AttrReason.String(res.Reason),
		tracing.AttrCacheHit.Bool(res.CacheHit),
		tracing.AttrTried.Int(res.Tried),
	)
	span.SetStatus(codes.Ok, "")
	return res, nil
}

// runChain tries engines in order until one succeeds. Engines already
// attempted for this request (listed in prior) are skipped and their
// outcomes are carried into the result.
func (x *Executor) runChain(ctx context.Context, req *engines.MatchRequest, fp string, ids []string, prior []Outcome) (*Result, error) {
	tried := make(map[string]bool, len(ids)+len(prior))
	for _, o := range prior {
		tried[o.Engine] = true
	}
	attempts := append([]Outcome(nil), prior...)

	for i, id := range ids {
		if tried[id] {
			continue
		}
		if err := ctx.Err(); err != nil {
			x.logger.Warn("request context done, abandoning fallback chain",
				"request_id", req.RequestID,
				"remaining", ids[i:],
				"error", err,
			)
			return nil, abandoned(req.RequestID, err)
		}
		tried[id] = true

		o := x.attempt(ctx, req, fp, id)
		attempts = append(attempts, o)
		if o.Abandoned {
			return nil, abandoned(req.RequestID, o.Err)
		}

		if o.Status.Succeeded() {
			reason := ReasonPrimary
			if len(attempts) > 1 {
				reason = fallbackReason(attempts[len(attempts)-2].Err)
			}
			return &Result{
				Reason:     reason,
				EngineUsed: o.Engine,
				Engines:    []string{o.Engine},
				Score:      o.Score,
				SubScores:  o.SubScores,
				Confidence: o.Confidence,
				CacheHit:   o.Status == engines.StatusCacheHit,
				Tried:      len(attempts),
				Attempts:   attempts,
			}, nil
		}

		x.logger.Warn("engine attempt failed",
			"request_id", req.RequestID,
			"engine", id,
			"kind", engines.Kind(o.Err),
			"latency", o.Latency,
			"error", o.Err,
		)
	}

	return nil, newAllEnginesFailed(req.RequestID, attempts)
}

func fallbackReason(prev error) string {
	if engines.Kind(prev) == engines.KindTimeout {
		return ReasonFallbackAfterTimeout
	}
	return ReasonFallbackAfterError
}

// attempt performs a single bounded engine attempt: cache lookup first, then
// a live call that is abandoned once the engine's budget elapses. An answer
// that arrives after the budget is a timeout and is never cached. When the
// request context itself is done the attempt is marked abandoned and is not
// reported, since the engine did nothing wrong.
func (x *Executor) attempt(ctx context.Context, req *engines.MatchRequest, fp, id string) Outcome {
	desc, ok := x.registry.Lookup(id)
	if !ok {
		return Outcome{Engine: id, Status: engines.StatusError, Err: &engines.EngineError{Engine: id, Message: "engine not registered"}}
	}
	engine, ok := x.engines.Get(id)
	if !ok {
		return Outcome{Engine: id, Status: engines.StatusError, Err: &engines.EngineError{Engine: id, Message: "no client configured"}}
	}

	ctx, span := x.tracer.Start(ctx, "execution.attempt", trace.WithAttributes(
		tracing.AttrEngine.String(id),
		tracing.AttrTimeoutMs.Int64(desc.Timeout.Milliseconds()),
	))
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, desc.Timeout)
	defer cancel()

	start := time.Now()
	key := cache.Key(fp, id)

	if o, hit := x.lookup(callCtx, key, id, start); hit {
		x.report(req.RequestID, o)
		span.SetAttributes(tracing.AttrCacheHit.Bool(true))
		return o
	}

	if x.gate != nil && !x.gate.Admit(id) {
		x.logger.Debug("breaker refused live call",
			"request_id", req.RequestID,
			"engine", id,
		)
		o := Outcome{
			Engine:  id,
			Status:  engines.StatusError,
			Latency: time.Since(start),
			Err:     &engines.EngineError{Engine: id, Message: "circuit breaker not admitting calls"},
		}
		span.SetAttributes(tracing.AttrStatus.String(string(o.Status)))
		return o
	}

	// Buffered so an engine that ignores cancellation never blocks its
	// goroutine once the attempt has moved on.
	done := make(chan Outcome, 1)
	go func() {
		score, err := engine.Score(callCtx, req)
		o := Outcome{Engine: id, Latency: time.Since(start)}
		if err != nil {
			o.Err = err
		} else {
			o.Score = score.Value
			o.SubScores = score.SubScores
			o.Confidence = score.Confidence
		}
		done <- o
	}()

	var o Outcome
	select {
	case o = <-done:
	case <-callCtx.Done():
		select {
		case o = <-done:
		default:
			o = Outcome{Engine: id, Latency: time.Since(start), Err: callCtx.Err()}
		}
	}
	o = x.settle(ctx, callCtx, desc, o)

	switch {
	case o.Abandoned:
		x.logger.Debug("attempt abandoned with its request",
			"request_id", req.RequestID,
			"engine", id,
			"error", o.Err,
		)
	case o.Status == engines.StatusSuccess:
		x.store(ctx, key, desc, o)
		x.report(req.RequestID, o)
	default:
		x.report(req.RequestID, o)
	}

	span.SetAttributes(tracing.AttrStatus.String(string(o.Status)))
	if o.Err != nil {
		span.RecordError(o.Err)
		span.SetStatus(codes.Error, o.Err.Error())
	}
	return o
}

// settle classifies a raw call outcome. Failures caused by the request
// context are abandoned; anything that finished past the engine's budget is
// a timeout regardless of what the engine returned.
func (x *Executor) settle(ctx, callCtx context.Context, desc *registry.Descriptor, o Outcome) Outcome {
	overBudget := o.Latency > desc.Timeout || errors.Is(callCtx.Err(), context.DeadlineExceeded)

	switch {
	case o.Err == nil && !overBudget:
		o.Status = engines.StatusSuccess
		return o
	case ctx.Err() != nil:
		o.Status = engines.StatusError
		o.Err = ctx.Err()
		o.Abandoned = true
		o.Score, o.SubScores, o.Confidence = 0, nil, 0
		return o
	case o.Err == nil:
		o.Err = &engines.TimeoutError{Engine: o.Engine, Timeout: desc.Timeout}
		o.Score, o.SubScores, o.Confidence = 0, nil, 0
	default:
		o.Err = engines.Normalize(callCtx, o.Engine, desc.Timeout, o.Err)
	}
	o.Status = engines.StatusOf(o.Err)
	return o
}

// lookup consults the cache. Backend errors are logged and treated as misses.
func (x *Executor) lookup(ctx context.Context, key, id string, start time.Time) (Outcome, bool) {
	if x.cache == nil {
		return Outcome{}, false
	}
	entry, ok, err := x.cache.Get(ctx, key)
	if err != nil {
		x.logger.Warn("cache lookup failed", "engine", id, "error", err)
		return Outcome{}, false
	}
	if !ok {
		return Outcome{}, false
	}
	return Outcome{
		Engine:     id,
		Status:     engines.StatusCacheHit,
		Score:      entry.Score,
		SubScores:  entry.SubScores,
		Confidence: entry.Confidence,
		Latency:    time.Since(start),
	}, true
}

// store writes a live success to the cache with the engine's TTL. The write
// outlives request cancellation.
func (x *Executor) store(ctx context.Context, key string, desc *registry.Descriptor, o Outcome) {
	if x.cache == nil || desc.CacheTTL() <= 0 {
		return
	}
	now := x.now()
	entry := &cache.Entry{
		Engine:     o.Engine,
		Score:      o.Score,
		SubScores:  o.SubScores,
		Confidence: o.Confidence,
		StoredAt:   now,
		ExpiresAt:  now.Add(desc.CacheTTL()),
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheWriteTimeout)
	defer cancel()
	if _, err := x.cache.Set(wctx, key, entry); err != nil {
		x.logger.Warn("cache write failed", "engine", o.Engine, "error", err)
	}
}

// report forwards an outcome to the health recorder and observers.
func (x *Executor) report(requestID string, o Outcome) {
	if x.health != nil {
		x.health.Record(o.Engine, o.Status, o.Latency)
	}
	for _, obs := range x.observers {
		obs.ObserveAttempt(requestID, o)
	}
}
