package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"talentgrid-hq/conductor/pkg/events"
)

func sample() []*events.Event {
	return []*events.Event{
		{
			ID:        "evt-1",
			Kind:      events.KindMatch,
			Time:      time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
			RequestID: "req-1",
			Path:      "orchestrator",
			Engine:    "advanced",
			Status:    "success",
			Score:     91,
			Latency:   1500 * time.Microsecond,
		},
		{
			ID:        "evt-2",
			Kind:      events.KindAttempt,
			Time:      time.Date(2026, 5, 4, 10, 0, 1, 0, time.UTC),
			Engine:    "advanced",
			Status:    "timeout",
			Error:     "engine \"advanced\" timed out, with comma",
			ErrorKind: "timeout",
		},
	}
}

func TestJSONExporter(t *testing.T) {
	tests := []struct {
		name   string
		pretty bool
		input  []*events.Event
		want   int
	}{
		{"compact", false, sample(), 2},
		{"pretty", true, sample(), 2},
		{"empty", false, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := NewJSONExporter(tt.pretty).Export(context.Background(), tt.input, &buf); err != nil {
				t.Fatalf("Export failed: %v", err)
			}
			var decoded []*events.Event
			if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
				t.Fatalf("output is not a JSON array: %v", err)
			}
			if len(decoded) != tt.want {
				t.Errorf("decoded %d events, want %d", len(decoded), tt.want)
			}
			if tt.pretty != strings.Contains(buf.String(), "\n  ") {
				t.Errorf("pretty=%v but output indentation disagrees", tt.pretty)
			}
		})
	}
}

func TestCSVExporter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewCSVExporter(true).Export(context.Background(), sample(), &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(records))
	}
	if records[0][0] != "id" || len(records[0]) != len(records[1]) {
		t.Errorf("unexpected header %v", records[0])
	}
	if records[1][14] != "1.500" {
		t.Errorf("latency_ms = %q, want 1.500", records[1][14])
	}
	if records[2][15] != "engine \"advanced\" timed out, with comma" {
		t.Errorf("error column not round-tripped: %q", records[2][15])
	}
}

func TestCSVExporter_NoHeader(t *testing.T) {
	var buf bytes.Buffer
	if err := NewCSVExporter(false).Export(context.Background(), sample()[:1], &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if strings.HasPrefix(buf.String(), "id,") {
		t.Error("header written when disabled")
	}
}

func TestCSVExporter_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewCSVExporter(true).Export(ctx, sample(), &bytes.Buffer{}); err == nil {
		t.Error("expected error for cancelled context")
	}
}
