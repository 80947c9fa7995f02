package cli

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"config", NewConfigError("conductor.yaml", errors.New("bad")), ExitConfig},
		{"wrapped config", NewCommandError("run", NewConfigError("", errors.New("bad"))), ExitConfig},
		{"other", fmt.Errorf("dial: %w", errors.New("refused")), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	inner := errors.New("engines[0].id: required")
	if got := NewConfigError("c.yaml", inner).Error(); got != "configuration error in c.yaml: engines[0].id: required" {
		t.Errorf("ConfigError = %q", got)
	}
	cmdErr := NewCommandError("rollout set", inner)
	if !errors.Is(cmdErr, inner) {
		t.Error("CommandError does not unwrap")
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("csv", FormatJSON, FormatCSV); err != nil || f != FormatCSV {
		t.Errorf("ParseFormat(csv) = %q, %v", f, err)
	}
	if _, err := ParseFormat("xml", FormatJSON, FormatCSV); err == nil {
		t.Error("expected an error for xml")
	}
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTable(&buf, "ENGINE", "STATE")
	tbl.Row("advanced", "OPEN")
	if err := tbl.Flush(); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "advanced  ") {
		t.Errorf("table = %q", buf.String())
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, map[string]int{"version": 3}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "\"version\": 3") {
		t.Errorf("json = %q", buf.String())
	}
}
