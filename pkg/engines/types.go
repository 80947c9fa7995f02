package engines

import "time"

// Skill is a single candidate skill with a proficiency level.
type Skill struct {
	// Name is the normalized skill name (e.g., "go", "kubernetes")
	Name string `json:"name"`

	// Level is the proficiency level on a 0-5 scale
	Level int `json:"level"`
}

// CandidateProfile is the candidate side of a match request.
type CandidateProfile struct {
	// ID is the candidate identifier
	ID string `json:"id"`

	// Skills contains the declared skills with levels
	Skills []Skill `json:"skills"`

	// ExperienceYears is the total professional experience
	ExperienceYears float64 `json:"experience_years"`

	// Headline is a free-text summary line
	Headline string `json:"headline,omitempty"`

	// Summary is the free-text profile body
	Summary string `json:"summary,omitempty"`

	// QuestionnaireCompletion is the completed-questionnaire ratio in [0, 1]
	QuestionnaireCompletion float64 `json:"questionnaire_completion"`
}

// JobProfile is the job/offer side of a match request.
type JobProfile struct {
	// ID is the job offer identifier
	ID string `json:"id"`

	// Title is the position title (used for critical-position matching)
	Title string `json:"title"`

	// RequiredSkills lists the skills the position asks for
	RequiredSkills []Skill `json:"required_skills,omitempty"`

	// Seniority is the expected seniority (e.g., "junior", "senior", "executive")
	Seniority string `json:"seniority,omitempty"`

	// Description is the free-text job description
	Description string `json:"description,omitempty"`
}

// MatchRequest is an immutable candidate-to-job matching request.
type MatchRequest struct {
	// RequestID is the correlation identifier for this request
	RequestID string `json:"request_id"`

	// Candidate is the candidate profile to score
	Candidate CandidateProfile `json:"candidate"`

	// Jobs contains one or more job profiles to score the candidate against
	Jobs []JobProfile `json:"jobs"`

	// AlgorithmOverride optionally names the engine to use
	AlgorithmOverride string `json:"algorithm_override,omitempty"`

	// UserKey is the sticky routing key for rollout decisions (optional)
	UserKey string `json:"user_key,omitempty"`

	// Segment is the user segment for rollout rules (e.g., "beta", "enterprise")
	Segment string `json:"segment,omitempty"`
}

// SkillCount returns the number of distinct candidate skills.
func (r *MatchRequest) SkillCount() int {
	seen := make(map[string]struct{}, len(r.Candidate.Skills))
	for _, s := range r.Candidate.Skills {
		if s.Name == "" {
			continue
		}
		seen[s.Name] = struct{}{}
	}
	return len(seen)
}

// Score is a successful engine response.
type Score struct {
	// Value is the overall match score on a 0-100 scale
	Value float64 `json:"score"`

	// SubScores contains component scores (e.g., "skills", "experience")
	SubScores map[string]float64 `json:"sub_scores,omitempty"`

	// Confidence is the engine's self-reported confidence in [0, 1]
	Confidence float64 `json:"confidence"`
}

// EngineHealth tracks sideband health-check results for an engine.
type EngineHealth struct {
	// IsHealthy indicates whether the last health check passed
	IsHealthy bool

	// LastCheck is the timestamp of the last health check
	LastCheck time.Time

	// LastError is the most recent health-check error (nil if healthy)
	LastError error

	// ConsecutiveFailures counts sequential health-check failures
	ConsecutiveFailures int
}

// Config contains the connection settings for a single engine client.
type Config struct {
	// Name is the engine identifier
	Name string

	// BaseURL is the engine's HTTP endpoint base URL
	BaseURL string

	// APIKey is the optional bearer token
	APIKey string

	// HealthCheckInterval is how often to run sideband health checks
	HealthCheckInterval time.Duration

	// MaxIdleConns is the maximum number of idle connections in the pool
	MaxIdleConns int

	// MaxIdleConnsPerHost is the maximum idle connections per host
	MaxIdleConnsPerHost int

	// IdleConnTimeout is how long an idle connection remains in the pool
	IdleConnTimeout time.Duration
}

// Status is the outcome of a single engine attempt.
type Status string

const (
	// StatusSuccess is a live call that returned a score within budget.
	StatusSuccess Status = "success"

	// StatusCacheHit is a call answered from the result cache.
	StatusCacheHit Status = "cache_hit"

	// StatusError is a call that failed explicitly.
	StatusError Status = "error"

	// StatusTimeout is a call that exceeded its budget.
	StatusTimeout Status = "timeout"
)

// Succeeded reports whether the status carries a usable score.
func (s Status) Succeeded() bool {
	return s == StatusSuccess || s == StatusCacheHit
}

// StatusOf maps a call error to its attempt status.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case Kind(err) == KindTimeout:
		return StatusTimeout
	default:
		return StatusError
	}
}
