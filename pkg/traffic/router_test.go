package traffic

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newRouter(t *testing.T, cfg Config, store Store, opts ...Option) *Router {
	t.Helper()
	r, err := New(context.Background(), cfg, store, opts...)
	if err != nil {
		t.Fatalf("failed to create router: %v", err)
	}
	return r
}

func share(r *Router, n int, segment string) float64 {
	var orch int
	for i := 0; i < n; i++ {
		if r.Route(fmt.Sprintf("user-%d", i), segment).Path == PathOrchestrator {
			orch++
		}
	}
	return float64(orch) / float64(n)
}

func TestRoute_Percentages(t *testing.T) {
	tests := []struct {
		name       string
		percentage float64
		min, max   float64
	}{
		{"zero routes everything legacy", 0, 0, 0},
		{"full routes everything to the orchestrator", 100, 1, 1},
		{"quarter is roughly a quarter", 25, 0.22, 0.28},
		{"half is roughly half", 50, 0.47, 0.53},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(t, Config{Rules: Rules{Percentage: tt.percentage}, Salt: "stage-1"}, nil)
			got := share(r, 10000, "")
			if got < tt.min || got > tt.max {
				t.Errorf("orchestrator share = %.3f, want within [%.2f, %.2f]", got, tt.min, tt.max)
			}
		})
	}
}

func TestRoute_Sticky(t *testing.T) {
	r := newRouter(t, Config{Rules: Rules{Percentage: 50}, Salt: "stage-1"}, nil)

	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("user-%d", i)
		first := r.Route(key, "")
		for j := 0; j < 5; j++ {
			if got := r.Route(key, ""); got.Path != first.Path {
				t.Fatalf("user %s flipped from %s to %s", key, first.Path, got.Path)
			}
		}
		if first.Reason != ReasonSticky {
			t.Errorf("expected sticky reason, got %s", first.Reason)
		}
	}
}

func TestRoute_StickyMonotonic(t *testing.T) {
	// Raising the percentage only moves users from legacy to the orchestrator.
	ctx := context.Background()
	r := newRouter(t, Config{Rules: Rules{Percentage: 10}, Salt: "s"}, nil)

	before := map[string]Path{}
	for i := 0; i < 1000; i++ {
		key := fmt.Sprintf("user-%d", i)
		before[key] = r.Route(key, "").Path
	}
	if _, err := r.SetRollout(ctx, 60, "test"); err != nil {
		t.Fatalf("SetRollout failed: %v", err)
	}
	for key, path := range before {
		if path == PathOrchestrator && r.Route(key, "").Path != PathOrchestrator {
			t.Fatalf("user %s moved back to legacy after a rollout increase", key)
		}
	}
}

func TestRoute_Random(t *testing.T) {
	values := []float64{0.1, 0.9}
	var i int
	r := newRouter(t, Config{Rules: Rules{Percentage: 50}}, nil, WithRandom(func() float64 {
		v := values[i%len(values)]
		i++
		return v
	}))

	if a := r.Route("", ""); a.Path != PathOrchestrator || a.Reason != ReasonRandom {
		t.Errorf("expected random orchestrator, got %+v", a)
	}
	if a := r.Route("", ""); a.Path != PathLegacy {
		t.Errorf("expected random legacy, got %+v", a)
	}
}

func TestRoute_Segments(t *testing.T) {
	r := newRouter(t, Config{Rules: Rules{
		Percentage: 50,
		Segments:   map[string]float64{"beta": 100, "enterprise": 0},
		Allow:      []string{"internal"},
		Deny:       []string{"regulated"},
	}}, nil)

	tests := []struct {
		segment    string
		wantPath   Path
		wantReason string
	}{
		{"beta", PathOrchestrator, ReasonSticky},
		{"enterprise", PathLegacy, ReasonSticky},
		{"internal", PathOrchestrator, ReasonSegmentAllow},
		{"regulated", PathLegacy, ReasonSegmentDeny},
	}
	for _, tt := range tests {
		t.Run(tt.segment, func(t *testing.T) {
			for i := 0; i < 100; i++ {
				a := r.Route(fmt.Sprintf("user-%d", i), tt.segment)
				if a.Path != tt.wantPath || a.Reason != tt.wantReason {
					t.Fatalf("got %s/%s, want %s/%s", a.Path, a.Reason, tt.wantPath, tt.wantReason)
				}
			}
		})
	}

	if got := share(r, 5000, "unknown"); got < 0.45 || got > 0.55 {
		t.Errorf("unknown segment should use default percentage, got share %.3f", got)
	}
}

func TestForceLegacy(t *testing.T) {
	ctx := context.Background()
	r := newRouter(t, Config{Rules: Rules{Percentage: 100, Allow: []string{"internal"}}}, nil)

	first, err := r.ForceLegacy(ctx, "admin")
	if err != nil {
		t.Fatalf("ForceLegacy failed: %v", err)
	}
	second, err := r.ForceLegacy(ctx, "admin")
	if err != nil {
		t.Fatalf("ForceLegacy failed: %v", err)
	}
	if first.Version != second.Version {
		t.Errorf("ForceLegacy not idempotent: versions %d and %d", first.Version, second.Version)
	}

	if got := r.Current().EffectivePercentage(); got != 0 {
		t.Errorf("effective percentage while forced = %v, want 0", got)
	}

	for _, seg := range []string{"", "internal"} {
		if a := r.Route("user-1", seg); a.Path != PathLegacy || a.Reason != ReasonForceLegacy {
			t.Errorf("segment %q: expected forced legacy, got %+v", seg, a)
		}
	}

	if _, err := r.Release(ctx, "admin"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if a := r.Route("user-1", ""); a.Path != PathOrchestrator {
		t.Errorf("expected orchestrator after release, got %+v", a)
	}
	if r.Current().Rules.Percentage != 100 || r.Current().EffectivePercentage() != 100 {
		t.Error("release should keep the rollout percentage")
	}
}

func TestPropagationDelay(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()

	var (
		mu          sync.Mutex
		transitions []string
	)
	r := newRouter(t, Config{Rules: Rules{Percentage: 100}, PropagationDelay: 5 * time.Second}, nil,
		WithClock(clock.Now),
		WithChangeHook(func(from, to Stage) {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, fmt.Sprintf("%v->%v", from.EffectivePercentage(), to.EffectivePercentage()))
		}),
	)

	issued, err := r.ForceLegacy(ctx, "admin")
	if err != nil {
		t.Fatalf("ForceLegacy failed: %v", err)
	}
	if want := clock.Now().Add(5 * time.Second); !issued.EffectiveAt.Equal(want) {
		t.Errorf("effective at %s, want %s", issued.EffectiveAt, want)
	}
	if a := r.Route("user-1", ""); a.Path != PathOrchestrator {
		t.Fatalf("change applied before its propagation delay: %+v", a)
	}
	if len(r.Pending()) != 1 {
		t.Fatalf("expected one pending change, got %d", len(r.Pending()))
	}

	clock.Advance(5 * time.Second)
	if a := r.Route("user-1", ""); a.Path != PathLegacy {
		t.Fatalf("change not applied once due: %+v", a)
	}
	if len(r.Pending()) != 0 {
		t.Error("pending change not cleared")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(transitions) != 1 || transitions[0] != "100->0" {
		t.Errorf("transitions = %v, want [100->0]", transitions)
	}
}

func TestSetRollout_Invalid(t *testing.T) {
	r := newRouter(t, Config{}, nil)
	for _, p := range []float64{-1, 100.5} {
		if _, err := r.SetRollout(context.Background(), p, "admin"); !errors.Is(err, ErrInvalidRollout) {
			t.Errorf("SetRollout(%v): expected ErrInvalidRollout, got %v", p, err)
		}
	}
	if _, err := New(context.Background(), Config{Rules: Rules{Segments: map[string]float64{"beta": 150}}}, nil); !errors.Is(err, ErrInvalidRollout) {
		t.Errorf("expected invalid segment to be rejected, got %v", err)
	}
}

func TestApplyRules(t *testing.T) {
	ctx := context.Background()
	r := newRouter(t, Config{Rules: Rules{Percentage: 10}}, nil)
	if _, err := r.ForceLegacy(ctx, "admin"); err != nil {
		t.Fatalf("ForceLegacy failed: %v", err)
	}

	rules := Rules{Percentage: 40, Segments: map[string]float64{"beta": 100}}
	first, err := r.ApplyRules(ctx, rules, "config")
	if err != nil {
		t.Fatalf("ApplyRules failed: %v", err)
	}
	second, _ := r.ApplyRules(ctx, rules, "config")
	if first.Version != second.Version {
		t.Error("applying identical rules should be a no-op")
	}
	if !r.Current().ForceLegacy {
		t.Error("config reload must not lift an operator rollback")
	}
	if r.Current().Rules.Percentage != 40 {
		t.Errorf("expected percentage 40, got %v", r.Current().Rules.Percentage)
	}
}

func TestStagePersistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rollout.db")

	store, err := NewSQLiteStore(SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	r := newRouter(t, Config{Rules: Rules{Percentage: 10}}, store)
	if _, err := r.SetRollout(ctx, 35, "admin"); err != nil {
		t.Fatalf("SetRollout failed: %v", err)
	}
	if _, err := r.ForceLegacy(ctx, "admin"); err != nil {
		t.Fatalf("ForceLegacy failed: %v", err)
	}
	store.Close()

	store, err = NewSQLiteStore(SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer store.Close()

	restarted := newRouter(t, Config{Rules: Rules{Percentage: 90}}, store)
	cur := restarted.Current()
	if !cur.ForceLegacy || cur.Rules.Percentage != 35 || cur.Version != 3 {
		t.Errorf("restart did not restore the last stage: %+v", cur)
	}

	history, err := store.History(ctx, 10)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 3 || history[0].Version != 3 || history[2].Source != "startup" {
		t.Errorf("unexpected history: %+v", history)
	}
}

func TestStagePersistence_PendingResumes(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryStore()

	r := newRouter(t, Config{Rules: Rules{Percentage: 20}, PropagationDelay: time.Minute}, store, WithClock(clock.Now))
	if _, err := r.SetRollout(ctx, 80, "admin"); err != nil {
		t.Fatalf("SetRollout failed: %v", err)
	}

	restarted := newRouter(t, Config{Rules: Rules{Percentage: 20}, PropagationDelay: time.Minute}, store, WithClock(clock.Now))
	if got := restarted.Current().Rules.Percentage; got != 20 {
		t.Errorf("expected the previous stage before the delay, got %v", got)
	}
	clock.Advance(time.Minute)
	if got := restarted.Current().Rules.Percentage; got != 80 {
		t.Errorf("expected the pending stage after the delay, got %v", got)
	}
}

func TestBucket(t *testing.T) {
	if Bucket("a", "user") == Bucket("b", "user") && Bucket("a", "other") == Bucket("b", "other") {
		t.Error("salt should change bucket assignment")
	}
	for i := 0; i < 1000; i++ {
		if b := Bucket("salt", fmt.Sprintf("u%d", i)); b >= hashBuckets {
			t.Fatalf("bucket %d out of range", b)
		}
	}
}
