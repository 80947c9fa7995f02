// Package recorder writes observability events to storage without ever
// blocking the caller.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"talentgrid-hq/conductor/pkg/engines"
	"talentgrid-hq/conductor/pkg/events"
	"talentgrid-hq/conductor/pkg/execution"
	"talentgrid-hq/conductor/pkg/monitor"
	"talentgrid-hq/conductor/pkg/traffic"
)

// Config contains configuration for the event recorder.
type Config struct {
	// Enabled enables event recording.
	Enabled bool

	// AsyncBuffer is the size of the async write channel buffer.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout is the timeout for writing an event to storage.
	// Default: 5 seconds
	WriteTimeout time.Duration

	// RecordAttempts enables one event per engine attempt in addition to
	// the per-request match event.
	// Default: true
	RecordAttempts bool
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:        true,
		AsyncBuffer:    1000,
		WriteTimeout:   5 * time.Second,
		RecordAttempts: true,
	}
}

// DropHook is notified when an event is dropped because the buffer is full.
type DropHook func(kind events.Kind)

// Recorder records events asynchronously. Emit never blocks.
type Recorder struct {
	storage   events.Storage
	config    *Config
	eventChan chan *events.Event
	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
	dropped   atomic.Int64
	onDrop    DropHook
	logger    *slog.Logger
}

// New creates a recorder writing to storage and starts its worker.
func New(storage events.Storage, config *Config) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}
	if config.AsyncBuffer <= 0 {
		config.AsyncBuffer = 1000
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}

	r := &Recorder{
		storage:   storage,
		config:    config,
		eventChan: make(chan *events.Event, config.AsyncBuffer),
		done:      make(chan struct{}),
		logger:    slog.Default().With("component", "events.recorder"),
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("event recorder initialized",
		"async_buffer", config.AsyncBuffer,
		"write_timeout", config.WriteTimeout,
		"record_attempts", config.RecordAttempts,
	)

	return r
}

// SetDropHook registers a callback for dropped events. Call before use.
func (r *Recorder) SetDropHook(hook DropHook) {
	r.onDrop = hook
}

// Emit enqueues an event. It assigns an id and timestamp when missing and
// drops the event if the buffer is full or the recorder is closed.
func (r *Recorder) Emit(e *events.Event) error {
	if !r.config.Enabled {
		return nil
	}
	if r.closed.Load() {
		return events.ErrRecorderClosed
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	select {
	case r.eventChan <- e:
		return nil
	default:
		n := r.dropped.Add(1)
		if r.onDrop != nil {
			r.onDrop(e.Kind)
		}
		r.logger.Warn("event channel full, dropping event",
			"kind", e.Kind,
			"request_id", e.RequestID,
			"dropped_total", n,
		)
		return fmt.Errorf("event buffer full (capacity %d)", r.config.AsyncBuffer)
	}
}

// Dropped returns the number of events dropped so far.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close drains the buffer and waits for pending writes.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		r.logger.Info("shutting down event recorder")
		r.closed.Store(true)
		close(r.done)
		r.wg.Wait()
		r.logger.Info("event recorder shut down complete")
	})
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case e := <-r.eventChan:
			r.write(e)

		case <-r.done:
			r.logger.Info("draining event channel before shutdown",
				"pending_count", len(r.eventChan),
			)
			for {
				select {
				case e := <-r.eventChan:
					r.write(e)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(e *events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := r.storage.Store(ctx, e); err != nil {
		r.logger.Error("failed to store event",
			"event_id", e.ID,
			"kind", e.Kind,
			"error", err,
		)
		return
	}

	if d := time.Since(start); d > r.config.WriteTimeout/2 {
		r.logger.Warn("slow event write",
			"event_id", e.ID,
			"duration_ms", d.Milliseconds(),
			"threshold_ms", (r.config.WriteTimeout / 2).Milliseconds(),
		)
	}
}

// ObserveAttempt records one engine attempt. It satisfies
// execution.AttemptObserver.
func (r *Recorder) ObserveAttempt(requestID string, o execution.Outcome) {
	if !r.config.RecordAttempts {
		return
	}
	e := &events.Event{
		Kind:      events.KindAttempt,
		RequestID: requestID,
		Engine:    o.Engine,
		Status:    string(o.Status),
		Score:     o.Score,
		CacheHit:  o.Status == engines.StatusCacheHit,
		Latency:   o.Latency,
	}
	if o.Err != nil {
		e.Error = o.Err.Error()
		e.ErrorKind = engines.Kind(o.Err)
	}
	_ = r.Emit(e)
}

// OnTransition records a breaker transition. It matches
// monitor.TransitionHook.
func (r *Recorder) OnTransition(t monitor.Transition) {
	_ = r.Emit(&events.Event{
		Kind:   events.KindTransition,
		Time:   t.At,
		Engine: t.Engine,
		Reason: t.Reason,
		From:   t.From.String(),
		To:     t.To.String(),
	})
}

// OnRolloutChange records a rollout stage becoming effective. It matches
// traffic.ChangeHook.
func (r *Recorder) OnRolloutChange(from, to traffic.Stage) {
	_ = r.Emit(&events.Event{
		Kind:   events.KindRollout,
		Time:   to.EffectiveAt,
		Reason: to.Source,
		From:   formatPercentage(from.EffectivePercentage()),
		To:     formatPercentage(to.EffectivePercentage()),
	})
}

// RecordMatch records a served request. err is the request failure, if any.
func (r *Recorder) RecordMatch(requestID string, path traffic.Path, res *execution.Result, err error, latency time.Duration) {
	e := &events.Event{
		Kind:      events.KindMatch,
		RequestID: requestID,
		Path:      string(path),
		Latency:   latency,
	}
	if res != nil {
		e.Mode = res.Mode.String()
		e.Decision = string(res.Decision)
		e.Engine = res.EngineUsed
		e.Reason = res.Reason
		e.Score = res.Score
		e.LowConf = res.LowConfidence
		e.CacheHit = res.CacheHit
		e.Tried = res.Tried
		e.Status = string(engines.StatusSuccess)
	}
	if err != nil {
		e.Status = string(engines.StatusError)
		e.Error = err.Error()
		e.ErrorKind = engines.Kind(err)
	}
	_ = r.Emit(e)
}

func formatPercentage(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

var _ execution.AttemptObserver = (*Recorder)(nil)
