// Package orchestrator serves match requests end to end: it routes each
// request to the legacy path or the orchestrator path, selects engines,
// executes the decision and shapes the response.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"talentgrid-hq/conductor/pkg/engines"
	"talentgrid-hq/conductor/pkg/execution"
	"talentgrid-hq/conductor/pkg/selection"
	"talentgrid-hq/conductor/pkg/telemetry/tracing"
	"talentgrid-hq/conductor/pkg/traffic"
)

// Router assigns a request to a path.
type Router interface {
	Route(userKey, segment string) traffic.Assignment
}

// Selector turns a request into a decision.
type Selector interface {
	Select(req *engines.MatchRequest) (*selection.Decision, error)
}

// Executor runs a decision.
type Executor interface {
	Execute(ctx context.Context, req *engines.MatchRequest, dec *selection.Decision) (*execution.Result, error)
}

// MatchObserver is notified once per served request, successful or not.
// Implementations must not block.
type MatchObserver interface {
	RecordMatch(requestID string, path traffic.Path, res *execution.Result, err error, latency time.Duration)
}

// Config configures an Orchestrator.
type Config struct {
	// LegacyEngine is the engine serving the legacy path. When empty, every
	// request takes the orchestrator path.
	LegacyEngine string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObserver registers a match observer.
func WithObserver(obs MatchObserver) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, obs) }
}

// Orchestrator is the request entry point.
type Orchestrator struct {
	router    Router
	selector  Selector
	executor  Executor
	cfg       Config
	observers []MatchObserver
	tracer    trace.Tracer
	logger    *slog.Logger
}

// New creates an orchestrator.
func New(router Router, sel Selector, exec Executor, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		router:   router,
		selector: sel,
		executor: exec,
		cfg:      cfg,
		tracer:   otel.Tracer("talentgrid-hq/conductor/orchestrator"),
		logger:   slog.Default().With("component", "orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Match serves one request. A missing RequestID is generated on a shallow
// copy; the caller's request is never modified. Failures are
// *InvalidRequestError, selection.ErrNoEngineAvailable,
// execution.ErrAllEnginesFailed or the context's error; all of them are
// recorded to observers.
func (o *Orchestrator) Match(ctx context.Context, req *engines.MatchRequest) (*Response, error) {
	start := time.Now()
	if req.RequestID == "" {
		r := *req
		r.RequestID = uuid.New().String()
		req = &r
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.match", trace.WithAttributes(
		tracing.AttrRequestID.String(req.RequestID),
	))
	defer span.End()

	if err := Validate(req); err != nil {
		o.finish(span, req.RequestID, "", nil, err, start)
		return nil, err
	}

	assignment := o.route(req)
	span.SetAttributes(
		tracing.AttrPath.String(string(assignment.Path)),
		tracing.AttrRouteReason.String(assignment.Reason),
	)

	dec, err := o.decide(req, assignment.Path)
	if err != nil {
		o.logger.Warn("no engine available",
			"request_id", req.RequestID,
			"error", err,
		)
		o.finish(span, req.RequestID, assignment.Path, nil, err, start)
		return nil, err
	}

	o.logger.Debug("decision made",
		"request_id", req.RequestID,
		"path", assignment.Path,
		"decision", dec.String(),
		"excluded", dec.Excluded,
	)

	res, err := o.executor.Execute(ctx, req, dec)
	o.finish(span, req.RequestID, assignment.Path, res, err, start)
	if err != nil {
		o.logger.Error("request failed",
			"request_id", req.RequestID,
			"path", assignment.Path,
			"decision", dec.String(),
			"error", err,
		)
		return nil, err
	}

	resp := newResponse(res, assignment, dec)
	resp.LatencyMS = float64(time.Since(start)) / float64(time.Millisecond)
	return resp, nil
}

// route picks the path. Without a legacy engine every request goes to the
// orchestrator.
func (o *Orchestrator) route(req *engines.MatchRequest) traffic.Assignment {
	if o.router == nil || o.cfg.LegacyEngine == "" {
		return traffic.Assignment{Path: traffic.PathOrchestrator, Percentage: 100}
	}
	return o.router.Route(req.UserKey, req.Segment)
}

// decide builds the decision for the chosen path. The legacy path is a
// single attempt against the legacy engine with no fallback.
func (o *Orchestrator) decide(req *engines.MatchRequest, path traffic.Path) (*selection.Decision, error) {
	switch path {
	case traffic.PathLegacy:
		return &selection.Decision{
			RequestID: req.RequestID,
			Mode:      selection.ModeSingle,
			Engines:   []string{o.cfg.LegacyEngine},
			Reason:    selection.ReasonLegacy,
		}, nil
	case traffic.PathOrchestrator:
		dec, err := o.selector.Select(req)
		if err != nil {
			return nil, err
		}
		dec.RequestID = req.RequestID
		return dec, nil
	default:
		return nil, fmt.Errorf("unknown traffic path %q", path)
	}
}

func (o *Orchestrator) finish(span trace.Span, requestID string, path traffic.Path, res *execution.Result, err error, start time.Time) {
	latency := time.Since(start)
	for _, obs := range o.observers {
		obs.RecordMatch(requestID, path, res, err, latency)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(
		tracing.AttrEngineUsed.String(res.EngineUsed),
		tracing.AttrScore.Float64(res.Score),
	)
	span.SetStatus(codes.Ok, "")
}
