package orchestrator

import (
	"fmt"
	"strings"

	"talentgrid-hq/conductor/pkg/engines"
	"talentgrid-hq/conductor/pkg/execution"
	"talentgrid-hq/conductor/pkg/selection"
	"talentgrid-hq/conductor/pkg/traffic"
)

// Response is the answer to a match request.
type Response struct {
	RequestID      string             `json:"request_id"`
	EngineUsed     string             `json:"engine_used"`
	Engines        []string           `json:"engines"`
	Mode           string             `json:"mode"`
	Decision       string             `json:"decision"`
	Reason         string             `json:"reason"`
	Score          float64            `json:"score"`
	SubScores      map[string]float64 `json:"sub_scores,omitempty"`
	Confidence     float64            `json:"confidence"`
	LowConfidence  bool               `json:"low_confidence"`
	CacheHit       bool               `json:"cache_hit"`
	Tried          int                `json:"tried"`
	Excluded       []string           `json:"excluded,omitempty"`
	LatencyMS      float64            `json:"latency_ms"`
	Path           traffic.Path       `json:"path"`
	RolloutVersion int64              `json:"rollout_version"`
}

func newResponse(res *execution.Result, a traffic.Assignment, dec *selection.Decision) *Response {
	return &Response{
		RequestID:      res.RequestID,
		EngineUsed:     res.EngineUsed,
		Engines:        res.Engines,
		Mode:           res.Mode.String(),
		Decision:       string(res.Decision),
		Reason:         res.Reason,
		Score:          res.Score,
		SubScores:      res.SubScores,
		Confidence:     res.Confidence,
		LowConfidence:  res.LowConfidence,
		CacheHit:       res.CacheHit,
		Tried:          res.Tried,
		Excluded:       dec.Excluded,
		Path:           a.Path,
		RolloutVersion: a.Version,
	}
}

// Validate checks the fields every engine relies on.
func Validate(req *engines.MatchRequest) error {
	if len(req.Jobs) == 0 {
		return &InvalidRequestError{Field: "jobs", Message: "at least one job is required"}
	}
	for i, job := range req.Jobs {
		if strings.TrimSpace(job.Title) == "" && strings.TrimSpace(job.ID) == "" {
			return &InvalidRequestError{Field: fieldf("jobs", i), Message: "job needs an id or a title"}
		}
	}
	c := req.Candidate
	if c.QuestionnaireCompletion < 0 || c.QuestionnaireCompletion > 1 {
		return &InvalidRequestError{Field: "candidate.questionnaire_completion", Message: "must be between 0 and 1"}
	}
	if c.ExperienceYears < 0 {
		return &InvalidRequestError{Field: "candidate.experience_years", Message: "must not be negative"}
	}
	for i, s := range c.Skills {
		if s.Level < 0 || s.Level > 5 {
			return &InvalidRequestError{Field: fieldf("candidate.skills", i) + ".level", Message: "must be between 0 and 5"}
		}
	}
	return nil
}

func fieldf(name string, i int) string {
	return fmt.Sprintf("%s[%d]", name, i)
}
