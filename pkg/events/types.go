package events

import (
	"context"
	"io"
	"time"
)

// Kind classifies an event.
type Kind string

const (
	// KindMatch is one per served request.
	KindMatch Kind = "match"

	// KindAttempt is one per engine attempt; attempts abandoned with their
	// request are not recorded.
	KindAttempt Kind = "attempt"

	// KindTransition is a breaker state change.
	KindTransition Kind = "transition"

	// KindRollout is a rollout stage becoming effective.
	KindRollout Kind = "rollout"
)

// Event is a structured observability record.
type Event struct {
	// Identity
	ID        string    `json:"id"`                   // UUID v4
	Kind      Kind      `json:"kind"`                 // Event kind
	Time      time.Time `json:"time"`                 // When the event happened
	RequestID string    `json:"request_id,omitempty"` // Correlation id (match/attempt)

	// Routing and selection
	Path     string `json:"path,omitempty"`     // legacy or orchestrator
	Mode     string `json:"mode,omitempty"`     // Decision mode
	Decision string `json:"decision,omitempty"` // Selection reason code

	// Outcome
	Engine    string        `json:"engine,omitempty"`         // Engine id (or joined ids for consensus)
	Status    string        `json:"status,omitempty"`         // success, cache_hit, error, timeout
	Reason    string        `json:"reason,omitempty"`         // Result or transition reason
	Score     float64       `json:"score,omitempty"`          // Final or attempt score
	LowConf   bool          `json:"low_confidence,omitempty"` // Consensus disagreement
	CacheHit  bool          `json:"cache_hit,omitempty"`      // Served from cache
	Tried     int           `json:"tried,omitempty"`          // Engines attempted
	Latency   time.Duration `json:"latency,omitempty"`        // Attempt or request latency
	Error     string        `json:"error,omitempty"`          // Failure message
	ErrorKind string        `json:"error_kind,omitempty"`     // timeout or error

	// State changes
	From string `json:"from,omitempty"` // Previous breaker state or percentage
	To   string `json:"to,omitempty"`   // New breaker state or percentage
}

// Query defines filter parameters for querying events.
type Query struct {
	// Time range
	StartTime *time.Time `json:"start_time,omitempty"` // Inclusive start time
	EndTime   *time.Time `json:"end_time,omitempty"`   // Inclusive end time

	// Filters
	Kind      Kind   `json:"kind,omitempty"`
	Engine    string `json:"engine,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Status    string `json:"status,omitempty"`

	// Pagination
	Limit  int `json:"limit,omitempty"`  // Max events to return (negative: all)
	Offset int `json:"offset,omitempty"` // Skip N events

	// SortOrder is "asc" or "desc" by time (default "desc")
	SortOrder string `json:"sort_order,omitempty"`
}

// Storage defines the interface for event storage backends.
// Implementations must be thread-safe and support concurrent access.
type Storage interface {
	// Store persists an event.
	Store(ctx context.Context, event *Event) error

	// Query retrieves events matching the query filters.
	// Returns an empty slice if no events match.
	Query(ctx context.Context, query *Query) ([]*Event, error)

	// Count returns the number of events matching the query filters.
	Count(ctx context.Context, query *Query) (int64, error)

	// Delete removes events matching the query filters and returns the
	// number deleted. Used for retention.
	Delete(ctx context.Context, query *Query) (int64, error)

	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the storage backend.
	Close() error
}

// Exporter writes events in a specific format.
type Exporter interface {
	Export(ctx context.Context, events []*Event, w io.Writer) error
}
