package selection

import (
	"fmt"
	"strings"
)

// Mode is the execution mode of a decision. It is a closed set: every
// consumer switches over all three values.
type Mode int

const (
	// ModeSingle invokes exactly one engine.
	ModeSingle Mode = iota + 1

	// ModeFallbackChain tries engines in order until one succeeds.
	ModeFallbackChain

	// ModeHybridConsensus invokes engines concurrently and reconciles their
	// scores.
	ModeHybridConsensus
)

// String returns the wire name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeSingle:
		return "single"
	case ModeFallbackChain:
		return "fallback-chain"
	case ModeHybridConsensus:
		return "hybrid-consensus"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Reason identifies the rule that produced a decision.
type Reason string

const (
	ReasonOverride         Reason = "override"
	ReasonUpgrade          Reason = "upgrade"
	ReasonCriticalPosition Reason = "critical_position"
	ReasonBaseline         Reason = "baseline"

	// ReasonLegacy marks decisions built for the legacy path. The rule
	// table never produces it.
	ReasonLegacy Reason = "legacy"
)

// Decision is the single, inspectable routing decision made for a request.
// The executor never invokes an engine that is not in Engines or Fallbacks.
type Decision struct {
	// RequestID is the correlation id of the request
	RequestID string `json:"request_id"`

	// Mode is how the engines are executed
	Mode Mode `json:"mode"`

	// Engines is the ordered list of engine ids to try
	Engines []string `json:"engines"`

	// Fallbacks lists engines a hybrid decision may degrade to when fewer
	// than two consensus engines survive. Empty for other modes.
	Fallbacks []string `json:"fallbacks,omitempty"`

	// Reason is the rule that matched
	Reason Reason `json:"reason"`

	// Tolerance is the maximum score spread for hybrid agreement
	Tolerance float64 `json:"tolerance,omitempty"`

	// Excluded lists engines removed because their breaker is not admitting
	// traffic
	Excluded []string `json:"excluded,omitempty"`
}

// Allows reports whether the decision permits invoking engine id.
func (d *Decision) Allows(id string) bool {
	for _, e := range d.Engines {
		if e == id {
			return true
		}
	}
	for _, e := range d.Fallbacks {
		if e == id {
			return true
		}
	}
	return false
}

// String renders the decision for logs.
func (d *Decision) String() string {
	return fmt.Sprintf("%s[%s] reason=%s", d.Mode, strings.Join(d.Engines, ","), d.Reason)
}
