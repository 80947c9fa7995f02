package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"talentgrid-hq/conductor/pkg/engines"
)

// normalizedSkill is the canonical form of a skill inside a fingerprint.
type normalizedSkill struct {
	Name  string `json:"n"`
	Level int    `json:"l"`
}

type normalizedJob struct {
	ID          string            `json:"id"`
	Title       string            `json:"t"`
	Skills      []normalizedSkill `json:"s"`
	Seniority   string            `json:"sn"`
	Description string            `json:"d"`
}

type normalizedRequest struct {
	CandidateID   string            `json:"cid"`
	Skills        []normalizedSkill `json:"s"`
	Experience    float64           `json:"x"`
	Headline      string            `json:"h"`
	Summary       string            `json:"sm"`
	Questionnaire float64           `json:"q"`
	Jobs          []normalizedJob   `json:"j"`
}

// Fingerprint returns a stable hash of the scoring-relevant content of a
// request. Correlation ids, routing keys and the algorithm override do not
// affect the result; skill and job order do not either. Skill names and
// free text are compared case-insensitively with surrounding whitespace
// removed.
func Fingerprint(req *engines.MatchRequest) string {
	n := normalizedRequest{
		CandidateID:   strings.TrimSpace(req.Candidate.ID),
		Skills:        normalizeSkills(req.Candidate.Skills),
		Experience:    req.Candidate.ExperienceYears,
		Headline:      normalizeText(req.Candidate.Headline),
		Summary:       normalizeText(req.Candidate.Summary),
		Questionnaire: req.Candidate.QuestionnaireCompletion,
		Jobs:          make([]normalizedJob, 0, len(req.Jobs)),
	}
	for _, job := range req.Jobs {
		n.Jobs = append(n.Jobs, normalizedJob{
			ID:          strings.TrimSpace(job.ID),
			Title:       normalizeText(job.Title),
			Skills:      normalizeSkills(job.RequiredSkills),
			Seniority:   normalizeText(job.Seniority),
			Description: normalizeText(job.Description),
		})
	}
	sort.Slice(n.Jobs, func(i, j int) bool {
		if n.Jobs[i].ID != n.Jobs[j].ID {
			return n.Jobs[i].ID < n.Jobs[j].ID
		}
		return n.Jobs[i].Title < n.Jobs[j].Title
	})

	// Marshalling a struct of plain fields cannot fail.
	data, _ := json.Marshal(n)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Key builds the cache key for a fingerprint and an engine id.
func Key(fingerprint, engine string) string {
	return fingerprint + ":" + engine
}

func normalizeSkills(skills []engines.Skill) []normalizedSkill {
	out := make([]normalizedSkill, 0, len(skills))
	for _, s := range skills {
		name := normalizeText(s.Name)
		if name == "" {
			continue
		}
		out = append(out, normalizedSkill{Name: name, Level: s.Level})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Level < out[j].Level
	})
	return out
}

func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
