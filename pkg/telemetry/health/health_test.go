package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestChecker_Readiness(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]CheckFunc
		wantStatus string
		wantFailed []string
	}{
		{
			name:       "no checks",
			wantStatus: StatusReady,
		},
		{
			name: "all healthy",
			checks: map[string]CheckFunc{
				"engines": EnabledEngines(func() int { return 2 }),
				"events":  Ping(stubPinger{}),
			},
			wantStatus: StatusReady,
		},
		{
			name: "no enabled engine",
			checks: map[string]CheckFunc{
				"engines": EnabledEngines(func() int { return 0 }),
				"events":  Ping(stubPinger{}),
			},
			wantStatus: StatusNotReady,
			wantFailed: []string{"engines"},
		},
		{
			name: "store unreachable",
			checks: map[string]CheckFunc{
				"events": Ping(stubPinger{err: errors.New("database is locked")}),
			},
			wantStatus: StatusNotReady,
			wantFailed: []string{"events"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(time.Second)
			for name, fn := range tt.checks {
				c.Register(name, fn)
			}

			report := c.Readiness(context.Background())
			if report.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", report.Status, tt.wantStatus)
			}
			for _, name := range tt.wantFailed {
				if report.Checks[name].Status != StatusUnhealthy {
					t.Errorf("check %s = %+v, want unhealthy", name, report.Checks[name])
				}
			}
		})
	}
}

func TestChecker_Timeout(t *testing.T) {
	c := New(20 * time.Millisecond)
	c.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return nil
	})

	start := time.Now()
	report := c.Readiness(context.Background())
	if elapsed := time.Since(start); elapsed > 40*time.Millisecond {
		t.Errorf("readiness took %v, check timeout not enforced", elapsed)
	}
	if report.Ready() {
		t.Error("timed out check should make the service not ready")
	}
}

func TestChecker_Names(t *testing.T) {
	c := New(0)
	c.Register("events", Ping(stubPinger{}))
	c.Register("engines", Ping(stubPinger{}))
	c.Register("events", Ping(stubPinger{}))

	names := c.Names()
	if len(names) != 2 || names[0] != "engines" || names[1] != "events" {
		t.Errorf("Names() = %v", names)
	}
}

func TestHandlers(t *testing.T) {
	c := New(time.Second)
	c.Register("engines", EnabledEngines(func() int { return 0 }))

	tests := []struct {
		name     string
		handler  http.HandlerFunc
		method   string
		wantCode int
	}{
		{"live", c.LiveHandler(), http.MethodGet, http.StatusOK},
		{"live head", c.LiveHandler(), http.MethodHead, http.StatusOK},
		{"ready failing", c.ReadyHandler(), http.MethodGet, http.StatusServiceUnavailable},
		{"version", VersionHandler("1.2.3", "abc", "today"), http.MethodGet, http.StatusOK},
		{"post rejected", c.LiveHandler(), http.MethodPost, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.handler(w, httptest.NewRequest(tt.method, "/", nil))
			if w.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", w.Code, tt.wantCode)
			}
			if tt.method == http.MethodHead && w.Body.Len() != 0 {
				t.Error("HEAD response has a body")
			}
		})
	}
}

func TestReadyHandler_Body(t *testing.T) {
	c := New(time.Second)
	c.Register("events", Ping(stubPinger{}))

	w := httptest.NewRecorder()
	c.ReadyHandler()(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	var report Report
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if report.Status != StatusReady || report.Checks["events"].Status != StatusOK {
		t.Errorf("report = %+v", report)
	}
}
