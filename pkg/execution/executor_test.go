package execution

import (
	"context"
	"errors"
	"math"
	"reflect"
	"sync"
	"testing"
	"time"

	"talentgrid-hq/conductor/internal/enginetest"
	"talentgrid-hq/conductor/pkg/cache"
	"talentgrid-hq/conductor/pkg/engines"
	"talentgrid-hq/conductor/pkg/registry"
	"talentgrid-hq/conductor/pkg/selection"
)

type record struct {
	engine  string
	status  engines.Status
	latency time.Duration
}

// recorder captures health records and exposes them on a channel.
type recorder struct {
	mu      sync.Mutex
	records []record
	ch      chan record
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan record, 64)}
}

func (r *recorder) Record(engine string, status engines.Status, latency time.Duration) {
	rec := record{engine: engine, status: status, latency: latency}
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
	select {
	case r.ch <- rec:
	default:
	}
}

func (r *recorder) statuses(engine string) []engines.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []engines.Status
	for _, rec := range r.records {
		if rec.engine == engine {
			out = append(out, rec.status)
		}
	}
	return out
}

func testRegistry(t testing.TB) *registry.Registry {
	t.Helper()
	reg, err := registry.Load([]registry.Definition{
		{ID: "baseline", Enabled: true, Weight: 0.3, Timeout: 200 * time.Millisecond, CacheTTL: time.Minute, Baseline: true},
		{ID: "semantic", Enabled: true, Weight: 0.5, Timeout: 150 * time.Millisecond, CacheTTL: time.Minute, MinSkills: 3, Fallbacks: []string{"baseline"}},
		{ID: "advanced", Enabled: true, Weight: 0.8, Timeout: 80 * time.Millisecond, CacheTTL: time.Minute, MinSkills: 5, MinQuestionnaire: 0.7, Fallbacks: []string{"semantic", "baseline"}},
	})
	if err != nil {
		t.Fatalf("failed to load registry: %v", err)
	}
	return reg
}

type fixture struct {
	reg      *registry.Registry
	mocks    map[string]*enginetest.MockEngine
	store    *cache.MemoryStore
	recorder *recorder
	exec     *Executor
}

func newFixture(t testing.TB) *fixture {
	t.Helper()
	f := &fixture{
		reg: testRegistry(t),
		mocks: map[string]*enginetest.MockEngine{
			"baseline": enginetest.NewMockEngine("baseline", 70),
			"semantic": enginetest.NewMockEngine("semantic", 80),
			"advanced": enginetest.NewMockEngine("advanced", 90),
		},
		store:    cache.NewMemoryStore(100, 0),
		recorder: newRecorder(),
	}
	set := engines.Set{}
	for id, m := range f.mocks {
		set[id] = m
	}
	f.exec = New(f.reg, set, f.store, f.recorder)
	t.Cleanup(func() { f.store.Close() })
	return f
}

func testRequest(id string) *engines.MatchRequest {
	return &engines.MatchRequest{
		RequestID: id,
		Candidate: engines.CandidateProfile{
			ID:     "cand-1",
			Skills: []engines.Skill{{Name: "go", Level: 4}, {Name: "sql", Level: 3}},
		},
		Jobs: []engines.JobProfile{{ID: "job-1", Title: "Backend Engineer"}},
	}
}

func chain(ids ...string) *selection.Decision {
	return &selection.Decision{RequestID: "req", Mode: selection.ModeFallbackChain, Engines: ids, Reason: selection.ReasonUpgrade}
}

func TestExecute_Primary(t *testing.T) {
	f := newFixture(t)

	res, err := f.exec.Execute(context.Background(), testRequest("req-1"), chain("advanced", "semantic", "baseline"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.EngineUsed != "advanced" || res.Score != 90 {
		t.Errorf("expected advanced/90, got %s/%v", res.EngineUsed, res.Score)
	}
	if res.Reason != ReasonPrimary || res.Tried != 1 || res.CacheHit {
		t.Errorf("unexpected result: reason=%s tried=%d cache_hit=%v", res.Reason, res.Tried, res.CacheHit)
	}
	if res.RequestID != "req-1" || res.Mode != selection.ModeFallbackChain || res.Decision != selection.ReasonUpgrade {
		t.Errorf("result not annotated with request and decision: %+v", res)
	}
	if f.mocks["semantic"].CallCount() != 0 || f.mocks["baseline"].CallCount() != 0 {
		t.Error("fallback engines should not be called after a primary success")
	}
	if got := f.recorder.statuses("advanced"); !reflect.DeepEqual(got, []engines.Status{engines.StatusSuccess}) {
		t.Errorf("expected one success record, got %v", got)
	}
}

func TestExecute_CacheIdempotence(t *testing.T) {
	f := newFixture(t)
	f.mocks["baseline"].SetBehavior(enginetest.Behavior{Score: 63.3333, Confidence: 0.9, SubScores: map[string]float64{"skills": 61.25}})

	first, err := f.exec.Execute(context.Background(), testRequest("req-1"), chain("baseline"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A different request id and skill order fingerprints the same.
	req := testRequest("req-2")
	req.Candidate.Skills[0], req.Candidate.Skills[1] = req.Candidate.Skills[1], req.Candidate.Skills[0]
	second, err := f.exec.Execute(context.Background(), req, chain("baseline"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if math.Float64bits(first.Score) != math.Float64bits(second.Score) {
		t.Errorf("cached score differs: %v vs %v", first.Score, second.Score)
	}
	if !reflect.DeepEqual(first.SubScores, second.SubScores) {
		t.Errorf("cached sub-scores differ: %v vs %v", first.SubScores, second.SubScores)
	}
	if first.CacheHit || !second.CacheHit {
		t.Errorf("expected miss then hit, got %v then %v", first.CacheHit, second.CacheHit)
	}
	if got := f.mocks["baseline"].CallCount(); got != 1 {
		t.Errorf("expected one live call, got %d", got)
	}
	want := []engines.Status{engines.StatusSuccess, engines.StatusCacheHit}
	if got := f.recorder.statuses("baseline"); !reflect.DeepEqual(got, want) {
		t.Errorf("statuses = %v, want %v", got, want)
	}
}

func TestExecute_NoCacheWithoutTTL(t *testing.T) {
	reg, err := registry.Load([]registry.Definition{
		{ID: "baseline", Enabled: true, Weight: 1, Timeout: time.Second, Baseline: true},
	})
	if err != nil {
		t.Fatalf("failed to load registry: %v", err)
	}
	mock := enginetest.NewMockEngine("baseline", 50)
	store := cache.NewMemoryStore(10, 0)
	defer store.Close()
	exec := New(reg, engines.Set{"baseline": mock}, store, nil)

	for i := 0; i < 2; i++ {
		if _, err := exec.Execute(context.Background(), testRequest("req"), chain("baseline")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if mock.CallCount() != 2 {
		t.Errorf("expected every call to be live, got %d calls", mock.CallCount())
	}
}

func TestExecute_TimeoutFallback(t *testing.T) {
	f := newFixture(t)
	f.mocks["advanced"].SetLatency(time.Second)

	start := time.Now()
	res, err := f.exec.Execute(context.Background(), testRequest("req-1"), chain("advanced", "semantic", "baseline"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("timeout budget not enforced, took %s", elapsed)
	}
	if res.EngineUsed != "semantic" || res.Reason != ReasonFallbackAfterTimeout || res.Tried != 2 {
		t.Errorf("unexpected result: engine=%s reason=%s tried=%d", res.EngineUsed, res.Reason, res.Tried)
	}
	if res.Attempts[0].Status != engines.StatusTimeout {
		t.Errorf("expected first attempt to time out, got %s", res.Attempts[0].Status)
	}
	var te *engines.TimeoutError
	if !errors.As(res.Attempts[0].Err, &te) || te.Timeout != 80*time.Millisecond {
		t.Errorf("expected TimeoutError with 80ms budget, got %v", res.Attempts[0].Err)
	}
	if got := f.recorder.statuses("advanced"); !reflect.DeepEqual(got, []engines.Status{engines.StatusTimeout}) {
		t.Errorf("expected a timeout record, got %v", got)
	}
}

func TestExecute_ErrorFallback(t *testing.T) {
	f := newFixture(t)
	f.mocks["advanced"].SetError(&engines.EngineError{Engine: "advanced", StatusCode: 500, Message: "boom"})

	res, err := f.exec.Execute(context.Background(), testRequest("req-1"), chain("advanced", "semantic"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Reason != ReasonFallbackAfterError || res.EngineUsed != "semantic" {
		t.Errorf("unexpected result: engine=%s reason=%s", res.EngineUsed, res.Reason)
	}
}

func TestExecute_AllEnginesFailed(t *testing.T) {
	f := newFixture(t)
	f.mocks["advanced"].SetLatency(time.Second)
	f.mocks["semantic"].SetError(errors.New("connection refused"))
	f.mocks["baseline"].SetError(errors.New("connection refused"))

	_, err := f.exec.Execute(context.Background(), testRequest("req-9"), chain("advanced", "semantic", "baseline"))
	if !errors.Is(err, ErrAllEnginesFailed) {
		t.Fatalf("expected ErrAllEnginesFailed, got %v", err)
	}
	var ae *AllEnginesFailedError
	if !errors.As(err, &ae) {
		t.Fatalf("expected *AllEnginesFailedError, got %T", err)
	}
	if ae.RequestID != "req-9" {
		t.Errorf("expected request id req-9, got %q", ae.RequestID)
	}
	if want := []string{"advanced", "semantic", "baseline"}; !reflect.DeepEqual(ae.Engines(), want) {
		t.Errorf("engines = %v, want %v", ae.Engines(), want)
	}
	kinds := []string{ae.Attempts[0].Kind, ae.Attempts[1].Kind, ae.Attempts[2].Kind}
	if want := []string{engines.KindTimeout, engines.KindError, engines.KindError}; !reflect.DeepEqual(kinds, want) {
		t.Errorf("kinds = %v, want %v", kinds, want)
	}
}

func TestExecute_NeverRetriesSameEngine(t *testing.T) {
	f := newFixture(t)
	f.mocks["semantic"].SetError(errors.New("boom"))

	_, err := f.exec.Execute(context.Background(), testRequest("req"), chain("semantic", "semantic"))
	if !errors.Is(err, ErrAllEnginesFailed) {
		t.Fatalf("expected ErrAllEnginesFailed, got %v", err)
	}
	if got := f.mocks["semantic"].CallCount(); got != 1 {
		t.Errorf("expected one call, got %d", got)
	}
}

func TestExecute_CancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.exec.Execute(ctx, testRequest("req"), chain("advanced", "semantic"))
	if !errors.Is(err, context.Canceled) || errors.Is(err, ErrAllEnginesFailed) {
		t.Fatalf("expected the context error, got %v", err)
	}
	for id, m := range f.mocks {
		if m.CallCount() != 0 {
			t.Errorf("engine %s called after cancellation", id)
		}
	}
}

func TestExecute_UnknownMode(t *testing.T) {
	f := newFixture(t)
	if _, err := f.exec.Execute(context.Background(), testRequest("req"), &selection.Decision{Engines: []string{"baseline"}}); err == nil {
		t.Fatal("expected an error for an unknown mode")
	}
}

// stubbornEngine ignores cancellation and answers after a fixed delay.
type stubbornEngine struct {
	delay time.Duration
	score float64
}

func (s *stubbornEngine) Score(context.Context, *engines.MatchRequest) (*engines.Score, error) {
	time.Sleep(s.delay)
	return &engines.Score{Value: s.score, Confidence: 1}, nil
}
func (s *stubbornEngine) HealthCheck(context.Context) error { return nil }
func (s *stubbornEngine) Name() string                     { return "advanced" }
func (s *stubbornEngine) Close() error                     { return nil }

func TestExecute_LateAnswerIsTimeout(t *testing.T) {
	reg := testRegistry(t)
	rec := newRecorder()
	store := cache.NewMemoryStore(10, 0)
	defer store.Close()
	exec := New(reg, engines.Set{
		"advanced": &stubbornEngine{delay: 200 * time.Millisecond, score: 95},
		"semantic": enginetest.NewMockEngine("semantic", 80),
	}, store, rec)

	req := testRequest("req")
	start := time.Now()
	res, err := exec.Execute(context.Background(), req, chain("advanced", "semantic"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) >= 200*time.Millisecond {
		t.Error("response waited for the late engine")
	}
	if res.EngineUsed != "semantic" || res.Reason != ReasonFallbackAfterTimeout {
		t.Errorf("unexpected result: engine=%s reason=%s", res.EngineUsed, res.Reason)
	}
	if got := rec.statuses("advanced"); !reflect.DeepEqual(got, []engines.Status{engines.StatusTimeout}) {
		t.Fatalf("expected one timeout record by return, got %v", got)
	}

	// Let the stubborn engine answer, then make sure its score went nowhere.
	time.Sleep(300 * time.Millisecond)
	if got := rec.statuses("advanced"); len(got) != 1 {
		t.Errorf("late answer recorded again: %v", got)
	}
	key := cache.Key(cache.Fingerprint(req), "advanced")
	if _, ok, _ := store.Get(context.Background(), key); ok {
		t.Error("late answer was cached")
	}

	res, err = exec.Execute(context.Background(), testRequest("req-2"), chain("advanced", "semantic"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.CacheHit || res.EngineUsed != "semantic" {
		t.Errorf("repeat request served engine=%s cache_hit=%v, want a live semantic score", res.EngineUsed, res.CacheHit)
	}
}

func TestExecute_RequestCancelledMidCall(t *testing.T) {
	f := newFixture(t)
	f.mocks["baseline"].SetLatency(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := f.exec.Execute(ctx, testRequest("req"), chain("baseline", "semantic"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if IsAllEnginesFailed(err) {
		t.Errorf("cancellation reported as an engine failure: %v", err)
	}
	if got := f.recorder.statuses("baseline"); len(got) != 0 {
		t.Errorf("cancelled attempt recorded against the engine: %v", got)
	}
	if got := f.mocks["semantic"].CallCount(); got != 0 {
		t.Errorf("fallback called after cancellation (%d calls)", got)
	}
}

func TestSettle(t *testing.T) {
	reg := testRegistry(t)
	desc, _ := reg.Lookup("advanced")
	exec := New(reg, engines.Set{}, nil, nil)

	live := context.Background()
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name          string
		ctx           context.Context
		in            Outcome
		wantStatus    engines.Status
		wantAbandoned bool
		wantScore     float64
	}{
		{
			name:       "answer within budget",
			ctx:        live,
			in:         Outcome{Engine: "advanced", Score: 91, Latency: 10 * time.Millisecond},
			wantStatus: engines.StatusSuccess,
			wantScore:  91,
		},
		{
			name:       "answer past budget",
			ctx:        live,
			in:         Outcome{Engine: "advanced", Score: 91, Latency: 120 * time.Millisecond},
			wantStatus: engines.StatusTimeout,
		},
		{
			name:       "engine error",
			ctx:        live,
			in:         Outcome{Engine: "advanced", Err: errors.New("connection refused"), Latency: time.Millisecond},
			wantStatus: engines.StatusError,
		},
		{
			name:          "request cancelled",
			ctx:           cancelled,
			in:            Outcome{Engine: "advanced", Err: context.Canceled, Latency: time.Millisecond},
			wantStatus:    engines.StatusError,
			wantAbandoned: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := exec.settle(tt.ctx, tt.ctx, desc, tt.in)
			if got.Status != tt.wantStatus || got.Abandoned != tt.wantAbandoned || got.Score != tt.wantScore {
				t.Errorf("settle = status %s abandoned %v score %v, want %s %v %v",
					got.Status, got.Abandoned, got.Score, tt.wantStatus, tt.wantAbandoned, tt.wantScore)
			}
			if got.Latency != tt.in.Latency {
				t.Errorf("latency = %s, want %s", got.Latency, tt.in.Latency)
			}
			if tt.wantStatus == engines.StatusTimeout {
				var te *engines.TimeoutError
				if !errors.As(got.Err, &te) || te.Timeout != desc.Timeout {
					t.Errorf("expected TimeoutError with the engine budget, got %v", got.Err)
				}
			}
		})
	}
}

func hybrid(tolerance float64, fallbacks []string, ids ...string) *selection.Decision {
	return &selection.Decision{
		RequestID: "req",
		Mode:      selection.ModeHybridConsensus,
		Engines:   ids,
		Fallbacks: fallbacks,
		Reason:    selection.ReasonCriticalPosition,
		Tolerance: tolerance,
	}
}

func TestExecute_Consensus(t *testing.T) {
	f := newFixture(t)
	f.mocks["semantic"].SetBehavior(enginetest.Behavior{Score: 80, Confidence: 0.9, SubScores: map[string]float64{"skills": 90, "experience": 70}})
	f.mocks["baseline"].SetBehavior(enginetest.Behavior{Score: 72, Confidence: 0.5, SubScores: map[string]float64{"skills": 60}})

	res, err := f.exec.Execute(context.Background(), testRequest("req"), hybrid(10, nil, "semantic", "baseline"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// weights 0.5 and 0.3
	wantScore := (0.5*80 + 0.3*72) / 0.8
	if math.Abs(res.Score-wantScore) > 1e-9 {
		t.Errorf("score = %v, want %v", res.Score, wantScore)
	}
	if want := map[string]float64{"skills": (0.5*90 + 0.3*60) / 0.8}; math.Abs(res.SubScores["skills"]-want["skills"]) > 1e-9 || len(res.SubScores) != 1 {
		t.Errorf("sub-scores = %v, want %v", res.SubScores, want)
	}
	if res.Reason != ReasonConsensus || res.LowConfidence {
		t.Errorf("expected agreeing consensus, got reason=%s low=%v", res.Reason, res.LowConfidence)
	}
	if res.EngineUsed != "semantic+baseline" || res.Tried != 2 {
		t.Errorf("unexpected engine_used=%s tried=%d", res.EngineUsed, res.Tried)
	}
}

func TestExecute_ConsensusDisagreement(t *testing.T) {
	f := newFixture(t)
	f.mocks["semantic"].SetBehavior(enginetest.Behavior{Score: 90, Confidence: 1})
	f.mocks["baseline"].SetBehavior(enginetest.Behavior{Score: 40, Confidence: 1})

	res, err := f.exec.Execute(context.Background(), testRequest("req"), hybrid(10, nil, "semantic", "baseline"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.LowConfidence || res.Reason != ReasonConsensusDisagreement {
		t.Errorf("expected low-confidence disagreement, got reason=%s low=%v", res.Reason, res.LowConfidence)
	}
	if res.Score < 40 || res.Score > 90 {
		t.Errorf("combined score %v outside inputs", res.Score)
	}
}

func TestExecute_ConsensusDegraded(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(f *fixture)
		fallbacks  []string
		wantEngine string
		wantTried  int
		wantErr    bool
	}{
		{
			name: "one survivor is returned as is",
			setup: func(f *fixture) {
				f.mocks["semantic"].SetError(errors.New("boom"))
			},
			wantEngine: "advanced",
			wantTried:  2,
		},
		{
			name: "no survivors chain the fallbacks",
			setup: func(f *fixture) {
				f.mocks["semantic"].SetError(errors.New("boom"))
				f.mocks["advanced"].SetLatency(time.Second)
			},
			fallbacks:  []string{"baseline"},
			wantEngine: "baseline",
			wantTried:  3,
		},
		{
			name: "fallbacks already attempted are skipped",
			setup: func(f *fixture) {
				f.mocks["semantic"].SetError(errors.New("boom"))
				f.mocks["advanced"].SetError(errors.New("boom"))
			},
			fallbacks: []string{"semantic"},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)

			res, err := f.exec.Execute(context.Background(), testRequest("req"), hybrid(10, tt.fallbacks, "advanced", "semantic"))
			if tt.wantErr {
				if !errors.Is(err, ErrAllEnginesFailed) {
					t.Fatalf("expected ErrAllEnginesFailed, got %v", err)
				}
				if got := f.mocks["semantic"].CallCount(); got != 1 {
					t.Errorf("semantic called %d times", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Reason != ReasonConsensusDegraded {
				t.Errorf("reason = %s, want %s", res.Reason, ReasonConsensusDegraded)
			}
			if res.EngineUsed != tt.wantEngine || res.Tried != tt.wantTried {
				t.Errorf("engine=%s tried=%d, want %s/%d", res.EngineUsed, res.Tried, tt.wantEngine, tt.wantTried)
			}
		})
	}
}

func TestExecute_ConsensusRunsConcurrently(t *testing.T) {
	f := newFixture(t)
	f.mocks["semantic"].SetLatency(60 * time.Millisecond)
	f.mocks["baseline"].SetLatency(60 * time.Millisecond)

	start := time.Now()
	if _, err := f.exec.Execute(context.Background(), testRequest("req"), hybrid(50, nil, "semantic", "baseline")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed >= 120*time.Millisecond {
		t.Errorf("consensus engines ran sequentially (%s)", elapsed)
	}
}

// gatedRecorder is a recorder whose gate refuses the listed engines and
// counts admission requests.
type gatedRecorder struct {
	*recorder
	refuse map[string]bool

	mu     sync.Mutex
	admits map[string]int
}

func (g *gatedRecorder) Admit(engine string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.admits[engine]++
	return !g.refuse[engine]
}

func (g *gatedRecorder) admitted(engine string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.admits[engine]
}

func TestExecute_GateBeforeLiveCall(t *testing.T) {
	f := newFixture(t)
	gate := &gatedRecorder{recorder: f.recorder, refuse: map[string]bool{"advanced": true}, admits: map[string]int{}}
	set := engines.Set{}
	for id, m := range f.mocks {
		set[id] = m
	}
	exec := New(f.reg, set, f.store, gate)

	res, err := exec.Execute(context.Background(), testRequest("req-1"), chain("advanced", "semantic"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.EngineUsed != "semantic" || res.Reason != ReasonFallbackAfterError {
		t.Errorf("unexpected result: engine=%s reason=%s", res.EngineUsed, res.Reason)
	}
	if got := f.mocks["advanced"].CallCount(); got != 0 {
		t.Errorf("refused engine called %d times", got)
	}
	if got := f.recorder.statuses("advanced"); len(got) != 0 {
		t.Errorf("refusal recorded against the engine: %v", got)
	}

	// A cache hit never reaches the gate.
	if _, err := exec.Execute(context.Background(), testRequest("req-2"), chain("semantic")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before := gate.admitted("semantic")
	res, err = exec.Execute(context.Background(), testRequest("req-3"), chain("semantic"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.CacheHit || gate.admitted("semantic") != before {
		t.Errorf("cache hit asked the gate: cache_hit=%v admits %d -> %d", res.CacheHit, before, gate.admitted("semantic"))
	}
}

type observerFunc func(string, Outcome)

func (f observerFunc) ObserveAttempt(id string, o Outcome) { f(id, o) }

func TestExecute_Observer(t *testing.T) {
	reg := testRegistry(t)
	var (
		mu   sync.Mutex
		seen []string
	)
	exec := New(reg, engines.Set{"baseline": enginetest.NewMockEngine("baseline", 50)}, nil, nil,
		WithObserver(observerFunc(func(id string, o Outcome) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, id+"/"+o.Engine+"/"+string(o.Status))
		})),
	)
	if _, err := exec.Execute(context.Background(), testRequest("req-7"), chain("baseline")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if want := []string{"req-7/baseline/success"}; !reflect.DeepEqual(seen, want) {
		t.Errorf("observed %v, want %v", seen, want)
	}
}
