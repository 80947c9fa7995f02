package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"talentgrid-hq/conductor/pkg/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conductor.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCheckConfig(t *testing.T) {
	tests := []struct {
		name       string
		yaml       string
		wantValid  bool
		wantErrors []string
		baseline   string
	}{
		{
			name: "valid",
			yaml: `
engines:
  - id: baseline
    base_url: "http://baseline:9000"
    baseline: true
  - id: advanced
    base_url: "http://advanced:9000"
    weight: 0.8
    fallbacks: [baseline]
legacy:
  engine: baseline
rollout:
  percentage: 25
`,
			wantValid: true,
			baseline:  "baseline",
		},
		{
			name: "field errors",
			yaml: `
engines:
  - id: a
    base_url: "not a url"
    weight: -1
rollout:
  percentage: 150
`,
			wantErrors: []string{"engines.a.base_url", "engines.a.weight", "rollout.percentage"},
		},
		{
			name: "unknown fallback",
			yaml: `
engines:
  - id: a
    base_url: "http://a:9000"
    fallbacks: [ghost]
`,
			wantErrors: []string{"ghost"},
		},
		{
			name:       "unknown key",
			yaml:       "enginez: []\n",
			wantErrors: []string{"enginez"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := checkConfig(writeConfig(t, tt.yaml))
			if report.Valid != tt.wantValid {
				t.Fatalf("Valid = %v, want %v (errors: %v)", report.Valid, tt.wantValid, report.Errors)
			}
			joined := strings.Join(report.Errors, "\n")
			for _, want := range tt.wantErrors {
				if !strings.Contains(joined, want) {
					t.Errorf("errors missing %q:\n%s", want, joined)
				}
			}
			if tt.baseline != "" && report.Baseline != tt.baseline {
				t.Errorf("Baseline = %q, want %q", report.Baseline, tt.baseline)
			}
		})
	}
}

func TestCheckConfig_MissingFile(t *testing.T) {
	report := checkConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if report.Valid || len(report.Errors) != 1 {
		t.Errorf("report = %+v, want one error", report)
	}
}

func TestFlatten(t *testing.T) {
	verr := config.ValidationError{Errors: []config.FieldError{
		{Field: "a", Message: "bad"},
		{Field: "b", Message: "worse"},
	}}

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"plain", errors.New("boom"), 1},
		{"validation", verr, 2},
		{"wrapped validation", fmt.Errorf("load: %w", verr), 2},
		{"joined", errors.Join(errors.New("x"), verr), 3},
		{"wrapped join", fmt.Errorf("load: %w", errors.Join(errors.New("x"), verr)), 3},
		{"join of joins", errors.Join(errors.Join(errors.New("x"), errors.New("y")), verr), 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := flatten(tt.err); len(got) != tt.want {
				t.Errorf("flatten() = %v, want %d messages", got, tt.want)
			}
		})
	}
}

func TestPrintValidation(t *testing.T) {
	var buf bytes.Buffer
	printValidation(&buf, &validationReport{Path: "c.yaml", Errors: []string{"engines: at least one engine must be configured"}})
	if !strings.Contains(buf.String(), "✗ c.yaml is invalid") || !strings.Contains(buf.String(), "at least one engine") {
		t.Errorf("invalid output = %s", buf.String())
	}

	buf.Reset()
	printValidation(&buf, &validationReport{
		Path: "c.yaml", Valid: true, Baseline: "baseline", Rollout: 25,
		Engines: []engineSummary{{ID: "baseline", Enabled: true, Weight: 1, Timeout: "2s"}},
	})
	for _, want := range []string{"✓ c.yaml is valid", "ENGINE", "baseline: baseline", "rollout:  25.0%"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("valid output missing %q:\n%s", want, buf.String())
		}
	}
}
