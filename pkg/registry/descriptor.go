package registry

import (
	"math"
	"sync/atomic"
	"time"

	"talentgrid-hq/conductor/pkg/engines"
)

// Definition is the static description of an engine as loaded from
// configuration. It seeds a Descriptor at registration time.
type Definition struct {
	// ID is the unique engine identifier
	ID string

	// Enabled is the initial enabled flag
	Enabled bool

	// Weight is the initial relative weight used for consensus averaging and
	// for ordering candidate pools
	Weight float64

	// Timeout is the per-call latency budget
	Timeout time.Duration

	// CacheTTL is how long successful results stay cached
	CacheTTL time.Duration

	// MinSkills is the minimum distinct candidate skill count (inclusive)
	MinSkills int

	// MinQuestionnaire is the minimum questionnaire completion ratio (inclusive)
	MinQuestionnaire float64

	// Fallbacks is the ordered list of engine ids to try after this one
	Fallbacks []string

	// Baseline marks the engine used when no more specific rule matches
	Baseline bool
}

// Descriptor is a registered engine. All fields are immutable after
// registration except the enabled flag, the weight and the cache TTL, which
// are atomics so the hot path reads them without locking.
type Descriptor struct {
	ID               string
	Timeout          time.Duration
	MinSkills        int
	MinQuestionnaire float64
	Fallbacks        []string
	Baseline         bool

	enabled  atomic.Bool
	weight   atomic.Uint64
	cacheTTL atomic.Int64
}

func newDescriptor(def Definition) *Descriptor {
	d := &Descriptor{
		ID:               def.ID,
		Timeout:          def.Timeout,
		MinSkills:        def.MinSkills,
		MinQuestionnaire: def.MinQuestionnaire,
		Fallbacks:        append([]string(nil), def.Fallbacks...),
		Baseline:         def.Baseline,
	}
	d.enabled.Store(def.Enabled)
	d.weight.Store(math.Float64bits(def.Weight))
	d.cacheTTL.Store(int64(def.CacheTTL))
	return d
}

// Enabled reports whether the engine is currently enabled.
func (d *Descriptor) Enabled() bool {
	return d.enabled.Load()
}

// Weight returns the current relative weight.
func (d *Descriptor) Weight() float64 {
	return math.Float64frombits(d.weight.Load())
}

// CacheTTL returns how long successful results stay cached. Zero disables
// caching for the engine.
func (d *Descriptor) CacheTTL() time.Duration {
	return time.Duration(d.cacheTTL.Load())
}

// Satisfies reports whether the request meets the engine's declared minimum
// inputs. Both thresholds are inclusive.
func (d *Descriptor) Satisfies(req *engines.MatchRequest) bool {
	return req.SkillCount() >= d.MinSkills &&
		req.Candidate.QuestionnaireCompletion >= d.MinQuestionnaire
}

// requirementLess orders descriptors by how little input they demand.
func requirementLess(a, b *Descriptor) bool {
	if a.MinSkills != b.MinSkills {
		return a.MinSkills < b.MinSkills
	}
	if a.MinQuestionnaire != b.MinQuestionnaire {
		return a.MinQuestionnaire < b.MinQuestionnaire
	}
	return a.ID < b.ID
}

// Snapshot is a point-in-time, copyable view of a descriptor.
type Snapshot struct {
	ID               string        `json:"id"`
	Enabled          bool          `json:"enabled"`
	Weight           float64       `json:"weight"`
	Timeout          time.Duration `json:"timeout"`
	CacheTTL         time.Duration `json:"cache_ttl"`
	MinSkills        int           `json:"min_skills"`
	MinQuestionnaire float64       `json:"min_questionnaire"`
	Fallbacks        []string      `json:"fallbacks,omitempty"`
	Baseline         bool          `json:"baseline,omitempty"`
}

// Snapshot returns a copy of the descriptor's current state.
func (d *Descriptor) Snapshot() Snapshot {
	return Snapshot{
		ID:               d.ID,
		Enabled:          d.Enabled(),
		Weight:           d.Weight(),
		Timeout:          d.Timeout,
		CacheTTL:         d.CacheTTL(),
		MinSkills:        d.MinSkills,
		MinQuestionnaire: d.MinQuestionnaire,
		Fallbacks:        append([]string(nil), d.Fallbacks...),
		Baseline:         d.Baseline,
	}
}
