package registry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"talentgrid-hq/conductor/pkg/engines"
)

func testDefinitions() []Definition {
	return []Definition{
		{ID: "baseline", Enabled: true, Weight: 0.3, Timeout: 200 * time.Millisecond, Baseline: true},
		{ID: "semantic", Enabled: true, Weight: 0.5, Timeout: 150 * time.Millisecond, MinSkills: 3, Fallbacks: []string{"baseline"}},
		{ID: "advanced", Enabled: true, Weight: 0.8, Timeout: 80 * time.Millisecond, MinSkills: 5, MinQuestionnaire: 0.7, Fallbacks: []string{"semantic", "baseline"}},
	}
}

func TestLoad(t *testing.T) {
	r, err := Load(testDefinitions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	enabled := r.ListEnabled()
	want := []string{"advanced", "semantic", "baseline"}
	if len(enabled) != len(want) {
		t.Fatalf("expected %d engines, got %d", len(want), len(enabled))
	}
	for i, id := range want {
		if enabled[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, enabled[i].ID)
		}
	}
}

func TestRegister_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		def   Definition
		field string
	}{
		{name: "empty id", def: Definition{Timeout: time.Second}, field: "id"},
		{name: "zero timeout", def: Definition{ID: "a"}, field: "timeout"},
		{name: "negative weight", def: Definition{ID: "a", Timeout: time.Second, Weight: -1}, field: "weight"},
		{name: "questionnaire above one", def: Definition{ID: "a", Timeout: time.Second, MinQuestionnaire: 1.5}, field: "min_questionnaire"},
		{name: "self fallback", def: Definition{ID: "a", Timeout: time.Second, Fallbacks: []string{"a"}}, field: "fallbacks"},
		{name: "duplicate fallback", def: Definition{ID: "a", Timeout: time.Second, Fallbacks: []string{"b", "b"}}, field: "fallbacks"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New().Register(tt.def)
			if !errors.Is(err, ErrConfigInvalid) {
				t.Fatalf("expected ErrConfigInvalid, got %v", err)
			}
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected *ConfigError, got %T", err)
			}
			if ce.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, ce.Field)
			}
		})
	}
}

func TestRegister_Duplicate(t *testing.T) {
	r := New()
	def := Definition{ID: "a", Enabled: true, Timeout: time.Second}
	if err := r.Register(def); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register(def); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid for duplicate id, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		defs    []Definition
		wantErr bool
	}{
		{name: "valid", defs: testDefinitions()},
		{name: "empty", defs: nil, wantErr: true},
		{
			name: "unresolved fallback",
			defs: []Definition{
				{ID: "a", Enabled: true, Timeout: time.Second, Fallbacks: []string{"ghost"}},
			},
			wantErr: true,
		},
		{
			name: "two baselines",
			defs: []Definition{
				{ID: "a", Enabled: true, Timeout: time.Second, Baseline: true},
				{ID: "b", Enabled: true, Timeout: time.Second, Baseline: true},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.defs)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrConfigInvalid) {
				t.Errorf("expected ErrConfigInvalid, got %v", err)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	r, err := Load(testDefinitions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d, err := r.Resolve("advanced")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Timeout != 80*time.Millisecond {
		t.Errorf("expected 80ms timeout, got %s", d.Timeout)
	}

	if _, err := r.Resolve("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown engine, got %v", err)
	}

	if err := r.SetEnabled("advanced", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = r.Resolve("advanced")
	var nf *NotFoundError
	if !errors.As(err, &nf) || !nf.Disabled {
		t.Errorf("expected disabled NotFoundError, got %v", err)
	}
	if _, ok := r.Lookup("advanced"); !ok {
		t.Error("expected Lookup to find disabled engine")
	}

	for _, d := range r.ListEnabled() {
		if d.ID == "advanced" {
			t.Error("disabled engine listed as enabled")
		}
	}
}

func TestSetWeight_Reorders(t *testing.T) {
	r, err := Load(testDefinitions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := r.SetWeight("baseline", 0.9); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first := r.ListEnabled()[0].ID; first != "baseline" {
		t.Errorf("expected baseline first after weight bump, got %s", first)
	}
	if err := r.SetWeight("baseline", -0.1); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("expected ErrConfigInvalid for negative weight, got %v", err)
	}
	if err := r.SetWeight("ghost", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSetCacheTTL(t *testing.T) {
	r, err := Load(testDefinitions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := r.SetCacheTTL("baseline", 5*time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d, _ := r.Lookup("baseline")
	if d.CacheTTL() != 5*time.Minute {
		t.Errorf("CacheTTL() = %v, want 5m", d.CacheTTL())
	}
	if d.Snapshot().CacheTTL != 5*time.Minute {
		t.Errorf("snapshot CacheTTL = %v, want 5m", d.Snapshot().CacheTTL)
	}
	if err := r.SetCacheTTL("baseline", -time.Second); !errors.Is(err, ErrConfigInvalid) {
		t.Errorf("expected ErrConfigInvalid for negative ttl, got %v", err)
	}
	if err := r.SetCacheTTL("ghost", time.Second); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestBaseline(t *testing.T) {
	r, err := Load(testDefinitions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := r.Baseline()
	if err != nil || b.ID != "baseline" {
		t.Fatalf("expected marked baseline, got %v, %v", b, err)
	}

	// Without a marker the lowest-requirement engine is the baseline.
	r, err = Load([]Definition{
		{ID: "strict", Enabled: true, Timeout: time.Second, MinSkills: 5},
		{ID: "loose", Enabled: true, Timeout: time.Second, MinSkills: 1},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ = r.Baseline()
	if b.ID != "loose" {
		t.Errorf("expected loose as baseline, got %s", b.ID)
	}
}

func TestDescriptor_Satisfies(t *testing.T) {
	d := newDescriptor(Definition{ID: "advanced", MinSkills: 5, MinQuestionnaire: 0.7})

	tests := []struct {
		name   string
		skills int
		quest  float64
		want   bool
	}{
		{name: "exactly at both minimums", skills: 5, quest: 0.7, want: true},
		{name: "above", skills: 6, quest: 0.8, want: true},
		{name: "one skill short", skills: 4, quest: 0.9, want: false},
		{name: "questionnaire short", skills: 9, quest: 0.69, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &engines.MatchRequest{Candidate: engines.CandidateProfile{QuestionnaireCompletion: tt.quest}}
			for i := 0; i < tt.skills; i++ {
				req.Candidate.Skills = append(req.Candidate.Skills, engines.Skill{Name: string(rune('a' + i))})
			}
			if got := d.Satisfies(req); got != tt.want {
				t.Errorf("Satisfies() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConcurrentMutation(t *testing.T) {
	r, err := Load(testDefinitions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			r.SetEnabled("semantic", i%2 == 0)
			r.SetWeight("semantic", float64(i)/100)
		}(i)
		go func() {
			defer wg.Done()
			r.ListEnabled()
			r.Snapshots()
		}()
	}
	wg.Wait()
}
