package traffic

import (
	"errors"
	"fmt"
	"time"
)

// Path is the code path a request is routed to.
type Path string

const (
	// PathLegacy is the single legacy engine path.
	PathLegacy Path = "legacy"

	// PathOrchestrator is the selection and execution path.
	PathOrchestrator Path = "orchestrator"
)

// Routing reasons attached to every Assignment.
const (
	ReasonForceLegacy  = "force_legacy"
	ReasonSegmentDeny  = "segment_deny"
	ReasonSegmentAllow = "segment_allow"
	ReasonSticky       = "sticky"
	ReasonRandom       = "random"
)

// ErrInvalidRollout is returned for percentages outside [0, 100].
var ErrInvalidRollout = errors.New("invalid rollout percentage")

// InvalidRolloutError reports a rejected percentage.
type InvalidRolloutError struct {
	// Field names the offending setting ("percentage" or "segments.<name>")
	Field string

	// Percentage is the rejected value
	Percentage float64
}

// Error implements the error interface.
func (e *InvalidRolloutError) Error() string {
	return fmt.Sprintf("%s: rollout percentage %v must be within [0, 100]", e.Field, e.Percentage)
}

// Is implements error matching for errors.Is().
func (e *InvalidRolloutError) Is(target error) bool {
	return target == ErrInvalidRollout
}

// Rules are the operator-configured rollout rules.
type Rules struct {
	// Percentage is the share of traffic sent to the orchestrator
	Percentage float64 `json:"percentage" yaml:"percentage"`

	// Segments overrides Percentage for requests tagged with a segment
	Segments map[string]float64 `json:"segments,omitempty" yaml:"segments"`

	// Allow lists segments always routed to the orchestrator
	Allow []string `json:"allow,omitempty" yaml:"allow"`

	// Deny lists segments always routed to the legacy path
	Deny []string `json:"deny,omitempty" yaml:"deny"`
}

// Validate checks every percentage is within [0, 100].
func (r Rules) Validate() error {
	var errs []error
	if !validPercentage(r.Percentage) {
		errs = append(errs, &InvalidRolloutError{Field: "percentage", Percentage: r.Percentage})
	}
	for name, p := range r.Segments {
		if !validPercentage(p) {
			errs = append(errs, &InvalidRolloutError{Field: "segments." + name, Percentage: p})
		}
	}
	return errors.Join(errs...)
}

func (r Rules) clone() Rules {
	out := Rules{
		Percentage: r.Percentage,
		Allow:      append([]string(nil), r.Allow...),
		Deny:       append([]string(nil), r.Deny...),
	}
	if r.Segments != nil {
		out.Segments = make(map[string]float64, len(r.Segments))
		for k, v := range r.Segments {
			out.Segments[k] = v
		}
	}
	return out
}

func validPercentage(p float64) bool {
	return p >= 0 && p <= 100
}

// Stage is one immutable rollout configuration. The router swaps whole stages
// atomically.
type Stage struct {
	// Version increases with every change
	Version int64 `json:"version"`

	// Rules are the rollout rules in effect
	Rules Rules `json:"rules"`

	// ForceLegacy routes all traffic to the legacy path
	ForceLegacy bool `json:"force_legacy"`

	// Source describes who issued the change (admin, config, cli, startup)
	Source string `json:"source"`

	// IssuedAt is when the change was requested
	IssuedAt time.Time `json:"issued_at"`

	// EffectiveAt is when the change takes effect
	EffectiveAt time.Time `json:"effective_at"`
}

// EffectivePercentage is the default share routed to the orchestrator,
// accounting for the legacy override.
func (s Stage) EffectivePercentage() float64 {
	if s.ForceLegacy {
		return 0
	}
	return s.Rules.Percentage
}

func (s *Stage) next(source string, issued, effective time.Time) *Stage {
	return &Stage{
		Version:     s.Version + 1,
		Rules:       s.Rules.clone(),
		ForceLegacy: s.ForceLegacy,
		Source:      source,
		IssuedAt:    issued,
		EffectiveAt: effective,
	}
}

// Assignment is the routing answer for one request.
type Assignment struct {
	// Path is the chosen path
	Path Path `json:"path"`

	// Reason explains the choice
	Reason string `json:"reason"`

	// Percentage is the rollout percentage that applied
	Percentage float64 `json:"percentage"`

	// Version is the stage version that produced the assignment
	Version int64 `json:"version"`
}
