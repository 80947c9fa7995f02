package execution

import (
	"time"

	"talentgrid-hq/conductor/pkg/engines"
	"talentgrid-hq/conductor/pkg/selection"
)

// Outcome is the result of one engine attempt within a request.
type Outcome struct {
	// Engine is the id of the engine attempted
	Engine string `json:"engine"`

	// Status is how the attempt ended
	Status engines.Status `json:"status"`

	// Score is the overall score (valid when Status succeeded)
	Score float64 `json:"score,omitempty"`

	// SubScores contains component scores
	SubScores map[string]float64 `json:"sub_scores,omitempty"`

	// Confidence is the engine's reported confidence
	Confidence float64 `json:"confidence,omitempty"`

	// Latency is the attempt wall time
	Latency time.Duration `json:"latency"`

	// Err is the failure, if any
	Err error `json:"-"`

	// Abandoned is set when the request context ended the attempt; such
	// attempts are not held against the engine
	Abandoned bool `json:"-"`
}

// Error returns the failure message, or "" on success.
func (o *Outcome) Error() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Result reasons describing how a response was obtained.
const (
	ReasonPrimary               = "primary"
	ReasonFallbackAfterTimeout  = "fallback_after_timeout"
	ReasonFallbackAfterError    = "fallback_after_error"
	ReasonConsensus             = "consensus"
	ReasonConsensusDisagreement = "consensus_disagreement"
	ReasonConsensusDegraded     = "consensus_degraded"
)

// Result is the final, reconciled answer for a request.
type Result struct {
	// RequestID is the correlation id
	RequestID string `json:"request_id"`

	// Mode is the decision mode that was executed
	Mode selection.Mode `json:"mode"`

	// Decision is the reason code of the selection rule
	Decision selection.Reason `json:"decision"`

	// Reason describes how the score was obtained (see Reason* constants)
	Reason string `json:"reason"`

	// EngineUsed names the engine that produced the score; consensus results
	// join contributing engine ids with "+"
	EngineUsed string `json:"engine_used"`

	// Engines lists the engines whose scores contributed
	Engines []string `json:"engines"`

	// Score is the final score
	Score float64 `json:"score"`

	// SubScores contains component scores
	SubScores map[string]float64 `json:"sub_scores,omitempty"`

	// Confidence is the final confidence
	Confidence float64 `json:"confidence"`

	// LowConfidence is set when consensus engines disagreed beyond tolerance
	LowConfidence bool `json:"low_confidence"`

	// CacheHit is true when every contributing score came from the cache
	CacheHit bool `json:"cache_hit"`

	// Tried is the number of engines attempted
	Tried int `json:"tried"`

	// Attempts contains every attempt made, in order
	Attempts []Outcome `json:"attempts"`

	// Latency is the total execution time
	Latency time.Duration `json:"latency"`
}
