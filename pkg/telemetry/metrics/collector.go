package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"talentgrid-hq/conductor/pkg/events"
	"talentgrid-hq/conductor/pkg/execution"
	"talentgrid-hq/conductor/pkg/monitor"
	"talentgrid-hq/conductor/pkg/orchestrator"
	"talentgrid-hq/conductor/pkg/traffic"
)

// Config configures the collector.
type Config struct {
	// Enabled turns recording on. A disabled collector accepts every call
	// and records nothing.
	Enabled bool

	// Namespace prefixes every metric name
	Namespace string

	// LatencyBuckets are histogram buckets in seconds
	LatencyBuckets []float64
}

// defaultLatencyBuckets cover engine budgets from a few milliseconds to the
// whole-request timeout.
var defaultLatencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.08, 0.1, 0.15, 0.2, 0.3, 0.5, 1, 2}

// Collector owns every Conductor metric. It plugs into the executor, the
// orchestrator, the monitor, the router and the event recorder as an
// observer, so no component imports Prometheus directly.
type Collector struct {
	config   Config
	registry *prometheus.Registry

	engine  *EngineMetrics
	match   *MatchMetrics
	cache   *CacheMetrics
	rollout *RolloutMetrics
}

// NewCollector creates a collector registering on registry. A nil registry
// gets a fresh one.
func NewCollector(cfg Config, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "conductor"
	}
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = defaultLatencyBuckets
	}

	return &Collector{
		config:   cfg,
		registry: registry,
		engine:   NewEngineMetrics(cfg, registry),
		match:    NewMatchMetrics(cfg, registry),
		cache:    NewCacheMetrics(cfg, registry),
		rollout:  NewRolloutMetrics(cfg, registry),
	}
}

// Registry returns the Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveAttempt records one engine attempt. It satisfies
// execution.AttemptObserver.
func (c *Collector) ObserveAttempt(_ string, o execution.Outcome) {
	if !c.config.Enabled {
		return
	}
	c.engine.RecordAttempt(o)
	c.cache.RecordLookup(o)
}

// RecordMatch records a served request. It satisfies
// orchestrator.MatchObserver.
func (c *Collector) RecordMatch(_ string, path traffic.Path, res *execution.Result, err error, latency time.Duration) {
	if !c.config.Enabled {
		return
	}
	if err != nil {
		c.match.RecordFailure(path, orchestrator.ErrorCode(err), latency)
		return
	}
	c.match.RecordSuccess(path, res, latency)
}

// OnTransition records a breaker transition. It matches
// monitor.TransitionHook.
func (c *Collector) OnTransition(t monitor.Transition) {
	if !c.config.Enabled {
		return
	}
	c.engine.RecordTransition(t)
}

// OnRolloutChange records a rollout stage becoming effective. It matches
// traffic.ChangeHook.
func (c *Collector) OnRolloutChange(_, to traffic.Stage) {
	if !c.config.Enabled {
		return
	}
	c.rollout.Update(to)
}

// RecordEventDrop counts an event dropped by the recorder. It matches
// recorder.DropHook.
func (c *Collector) RecordEventDrop(kind events.Kind) {
	if !c.config.Enabled {
		return
	}
	c.rollout.eventsDropped.WithLabelValues(string(kind)).Inc()
}

// RecordCacheEvictions counts entries evicted from the in-memory cache.
func (c *Collector) RecordCacheEvictions(n int) {
	if !c.config.Enabled {
		return
	}
	c.cache.evictions.Add(float64(n))
}

// UpdateEngineStatus publishes the registry and breaker view of one engine.
func (c *Collector) UpdateEngineStatus(engine string, enabled bool, weight float64, state monitor.State) {
	if !c.config.Enabled {
		return
	}
	c.engine.UpdateStatus(engine, enabled, weight, state)
}

var (
	_ execution.AttemptObserver  = (*Collector)(nil)
	_ orchestrator.MatchObserver = (*Collector)(nil)
)
