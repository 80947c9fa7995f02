package monitor

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// State is a circuit breaker state.
type State int32

const (
	// StateClosed is normal operation.
	StateClosed State = iota

	// StateOpen bypasses the engine entirely.
	StateOpen

	// StateHalfOpen admits a throttled trickle of probe requests.
	StateHalfOpen
)

// String returns the state name used in logs, metrics and the admin API.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for admin API clients.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "CLOSED":
		*s = StateClosed
	case "OPEN":
		*s = StateOpen
	case "HALF_OPEN":
		*s = StateHalfOpen
	default:
		return fmt.Errorf("unknown breaker state %q", text)
	}
	return nil
}

// BreakerConfig holds the thresholds driving the breaker state machine.
type BreakerConfig struct {
	// ErrorRateThreshold opens the breaker when the window error rate exceeds it
	ErrorRateThreshold float64

	// LatencyMargin opens the breaker when p95 exceeds timeout*(1+margin)
	LatencyMargin float64

	// MinSamples is the minimum number of live attempts before either
	// threshold is considered
	MinSamples int

	// Debounce is how long a breach must persist before the breaker opens
	Debounce time.Duration

	// CoolDown is how long the breaker stays open before probing
	CoolDown time.Duration

	// ProbeSuccesses is the number of consecutive probe successes that close
	// a half-open breaker
	ProbeSuccesses int

	// ProbeRate limits probe admissions per second while half-open (0 = unlimited)
	ProbeRate float64

	// ProbeBurst is the probe limiter burst size
	ProbeBurst int
}

// DefaultBreakerConfig returns the default breaker thresholds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		ErrorRateThreshold: 0.5,
		LatencyMargin:      0.25,
		MinSamples:         10,
		Debounce:           30 * time.Second,
		CoolDown:           30 * time.Second,
		ProbeSuccesses:     5,
		ProbeRate:          1,
		ProbeBurst:         5,
	}
}

// Transition describes a breaker state change.
type Transition struct {
	Engine string    `json:"engine"`
	From   State     `json:"from"`
	To     State     `json:"to"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// Transition reasons.
const (
	ReasonErrorRate    = "error_rate"
	ReasonLatency      = "p95_latency"
	ReasonCoolDown     = "cool_down_elapsed"
	ReasonProbeFailed  = "probe_failed"
	ReasonProbesPassed = "probes_succeeded"
)

// breaker is the per-engine state machine. The monitor owns one per engine and
// serializes transitions through mu; the current state is also mirrored in an
// atomic on the owning entry for lock-free reads.
type breaker struct {
	mu sync.Mutex

	engine  string
	timeout time.Duration
	cfg     BreakerConfig

	state       State
	openedAt    time.Time
	breachSince time.Time
	probeOK     int
	limiter     *rate.Limiter
}

func newBreaker(engine string, timeout time.Duration, cfg BreakerConfig) *breaker {
	return &breaker{
		engine:  engine,
		timeout: timeout,
		cfg:     cfg,
		state:   StateClosed,
	}
}

// breach reports whether the window stats violate the SLA and why.
func (b *breaker) breach(s WindowStats) (string, bool) {
	if s.LiveAttempts < b.cfg.MinSamples || s.LiveAttempts == 0 {
		return "", false
	}
	if s.ErrorRate > b.cfg.ErrorRateThreshold {
		return ReasonErrorRate, true
	}
	limit := time.Duration(float64(b.timeout) * (1 + b.cfg.LatencyMargin))
	if s.P95 > limit {
		return ReasonLatency, true
	}
	return "", false
}

// evaluate advances the state machine from the window stats at time now.
// It returns the transition taken, if any. Must be called with mu held.
func (b *breaker) evaluate(s WindowStats, now time.Time) (Transition, bool) {
	switch b.state {
	case StateClosed:
		reason, breached := b.breach(s)
		if !breached {
			b.breachSince = time.Time{}
			return Transition{}, false
		}
		if b.breachSince.IsZero() {
			b.breachSince = now
		}
		if now.Sub(b.breachSince) < b.cfg.Debounce {
			return Transition{}, false
		}
		return b.moveTo(StateOpen, reason, now), true

	case StateOpen:
		if now.Sub(b.openedAt) < b.cfg.CoolDown {
			return Transition{}, false
		}
		// A failing sideband check keeps the engine out a while longer.
		if s.SidebandOK+s.SidebandFailed > 0 && !s.LastSidebandOK {
			return Transition{}, false
		}
		return b.moveTo(StateHalfOpen, ReasonCoolDown, now), true
	}
	return Transition{}, false
}

// probe records a live attempt made while half-open. Must be called with mu
// held.
func (b *breaker) probe(success bool, latency time.Duration, now time.Time) (Transition, bool) {
	if b.state != StateHalfOpen {
		return Transition{}, false
	}
	if !success || latency > b.timeout {
		return b.moveTo(StateOpen, ReasonProbeFailed, now), true
	}
	b.probeOK++
	if b.probeOK >= b.cfg.ProbeSuccesses {
		return b.moveTo(StateClosed, ReasonProbesPassed, now), true
	}
	return Transition{}, false
}

// admit reports whether a request may be sent to the engine now. While
// half-open a probe token is spent only when consume is set. Must be called
// with mu held.
func (b *breaker) admit(now time.Time, consume bool) bool {
	switch b.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		if b.limiter == nil {
			return true
		}
		if consume {
			return b.limiter.AllowN(now, 1)
		}
		return b.limiter.TokensAt(now) >= 1
	default:
		return false
	}
}

// moveTo switches state and resets per-state bookkeeping. Must be called with
// mu held.
func (b *breaker) moveTo(to State, reason string, now time.Time) Transition {
	t := Transition{Engine: b.engine, From: b.state, To: to, Reason: reason, At: now}
	b.state = to
	b.breachSince = time.Time{}
	b.probeOK = 0
	b.limiter = nil

	switch to {
	case StateOpen:
		b.openedAt = now
	case StateHalfOpen:
		if b.cfg.ProbeRate > 0 {
			burst := b.cfg.ProbeBurst
			if burst <= 0 {
				burst = 1
			}
			b.limiter = rate.NewLimiter(rate.Limit(b.cfg.ProbeRate), burst)
		}
	}
	return t
}
