package export

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"talentgrid-hq/conductor/pkg/events"
)

// CSVExporter exports events to CSV format.
type CSVExporter struct {
	// IncludeHeader includes a header row with column names.
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

var csvHeader = []string{
	"id", "kind", "time", "request_id", "path", "mode", "decision",
	"engine", "status", "reason", "score", "low_confidence", "cache_hit", "tried",
	"latency_ms", "error", "error_kind", "from", "to",
}

// Export writes events to w in CSV format.
func (e *CSVExporter) Export(ctx context.Context, evs []*events.Event, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(csvHeader); err != nil {
			return &events.ExportError{Format: "csv", EventCount: len(evs), Cause: err}
		}
	}

	for _, ev := range evs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writer.Write(row(ev)); err != nil {
			return &events.ExportError{Format: "csv", EventCount: len(evs), Cause: err}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return &events.ExportError{Format: "csv", EventCount: len(evs), Cause: err}
	}
	return nil
}

func row(e *events.Event) []string {
	return []string{
		e.ID,
		string(e.Kind),
		e.Time.UTC().Format(time.RFC3339Nano),
		e.RequestID,
		e.Path,
		e.Mode,
		e.Decision,
		e.Engine,
		e.Status,
		e.Reason,
		strconv.FormatFloat(e.Score, 'f', -1, 64),
		strconv.FormatBool(e.LowConf),
		strconv.FormatBool(e.CacheHit),
		strconv.Itoa(e.Tried),
		strconv.FormatFloat(float64(e.Latency)/float64(time.Millisecond), 'f', 3, 64),
		e.Error,
		e.ErrorKind,
		e.From,
		e.To,
	}
}
