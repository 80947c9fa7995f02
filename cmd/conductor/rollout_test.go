package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"talentgrid-hq/conductor/pkg/config"
	"talentgrid-hq/conductor/pkg/monitor"
	"talentgrid-hq/conductor/pkg/server"
	"talentgrid-hq/conductor/pkg/traffic"
)

type staticEngines []monitor.EngineStatus

func (s staticEngines) Snapshot() []monitor.EngineStatus { return s }

// adminServer runs the real admin API over an in-memory router.
func adminServer(t *testing.T, token string) *httptest.Server {
	t.Helper()
	router, err := traffic.New(context.Background(), traffic.Config{Rules: traffic.Rules{Percentage: 10}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	srv := server.New(config.ServerConfig{AdminToken: token, RequestTimeout: time.Second}, server.Deps{
		Rollout: router,
		Engines: staticEngines{{Engine: "advanced", State: monitor.StateOpen, Enabled: false, Weight: 0.8}},
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func setRolloutFlags(t *testing.T, addr, token, format string) {
	t.Helper()
	prev := rolloutFlags
	rolloutFlags.addr = addr
	rolloutFlags.token = token
	rolloutFlags.timeout = 5 * time.Second
	rolloutFlags.format = format
	t.Cleanup(func() { rolloutFlags = prev })
}

func TestParsePercentage(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"25", 25, false},
		{"12.5%", 12.5, false},
		{"0", 0, false},
		{"100", 100, false},
		{"101", 0, true},
		{"-1", 0, true},
		{"half", 0, true},
	}
	for _, tt := range tests {
		got, err := parsePercentage(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parsePercentage(%q) = %v, %v; want %v, wantErr %v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestAdminClient_RolloutLifecycle(t *testing.T) {
	ts := adminServer(t, "secret")
	setRolloutFlags(t, ts.URL+"/", "secret", "text")
	c := newAdminClient()
	ctx := context.Background()

	pct := 40.0
	var stage traffic.Stage
	if err := c.do(ctx, "PUT", "/admin/rollout", server.RolloutRequest{Percentage: &pct}, &stage); err != nil {
		t.Fatalf("set rollout: %v", err)
	}
	if stage.Rules.Percentage != 40 || stage.Source != "admin" {
		t.Errorf("stage = %+v, want 40%% from admin", stage)
	}

	if err := c.do(ctx, "POST", "/admin/fallback", nil, &stage); err != nil {
		t.Fatalf("force legacy: %v", err)
	}
	if !stage.ForceLegacy || stage.EffectivePercentage() != 0 {
		t.Errorf("stage = %+v, want forced legacy", stage)
	}

	if err := c.do(ctx, "DELETE", "/admin/fallback", nil, &stage); err != nil {
		t.Fatalf("release: %v", err)
	}
	if stage.ForceLegacy || stage.EffectivePercentage() != 40 {
		t.Errorf("stage = %+v, want released at 40%%", stage)
	}

	var status server.StatusResponse
	if err := c.do(ctx, "GET", "/admin/status", nil, &status); err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(status.Engines) != 1 || status.Engines[0].State != monitor.StateOpen {
		t.Errorf("engines = %+v, want advanced OPEN", status.Engines)
	}

	var buf bytes.Buffer
	if err := printStatus(&buf, &status); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"40.00% to orchestrator", "advanced", "OPEN"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("status output missing %q:\n%s", want, buf.String())
		}
	}
}

func TestAdminClient_Errors(t *testing.T) {
	ts := adminServer(t, "secret")
	ctx := context.Background()

	setRolloutFlags(t, ts.URL, "wrong", "text")
	var status server.StatusResponse
	err := newAdminClient().do(ctx, "GET", "/admin/status", nil, &status)
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("expected 401 error, got %v", err)
	}

	setRolloutFlags(t, ts.URL, "secret", "text")
	pct := 150.0
	var stage traffic.Stage
	err = newAdminClient().do(ctx, "PUT", "/admin/rollout", server.RolloutRequest{Percentage: &pct}, &stage)
	if err == nil || !strings.Contains(err.Error(), "InvalidRollout") {
		t.Errorf("expected InvalidRollout error, got %v", err)
	}
}

func TestAdminClient_TokenFromEnv(t *testing.T) {
	t.Setenv("CONDUCTOR_ADMIN_TOKEN", "from-env")
	setRolloutFlags(t, "http://127.0.0.1:8080", "", "text")
	if c := newAdminClient(); c.token != "from-env" {
		t.Errorf("token = %q, want from-env", c.token)
	}
}

func TestPrintStage_JSON(t *testing.T) {
	setRolloutFlags(t, "", "", "json")
	var buf bytes.Buffer
	if err := printStage(&buf, &traffic.Stage{Version: 3, Rules: traffic.Rules{Percentage: 5}}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"version": 3`) {
		t.Errorf("json output = %s", buf.String())
	}
}
