// Package export renders events as JSON or CSV.
package export

import (
	"context"
	"encoding/json"
	"io"

	"talentgrid-hq/conductor/pkg/events"
)

// JSONExporter exports events to JSON format.
type JSONExporter struct {
	// Pretty enables pretty-printing with indentation.
	Pretty bool
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{Pretty: pretty}
}

// Export writes events as a JSON array.
func (e *JSONExporter) Export(ctx context.Context, evs []*events.Event, w io.Writer) error {
	if evs == nil {
		evs = []*events.Event{}
	}

	enc := json.NewEncoder(w)
	if e.Pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(evs); err != nil {
		return &events.ExportError{Format: "json", EventCount: len(evs), Cause: err}
	}
	return nil
}
