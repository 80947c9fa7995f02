// Package cache stores engine results keyed by request fingerprint and engine
// id.
//
// Write policy: a write for a key that already holds a non-expired entry whose
// expiry is later than or equal to the incoming entry's expiry is a no-op.
// Concurrent requests racing to store the same result therefore never replace
// a fresher entry with a staler one, and writes are idempotent upserts that
// need no locking beyond the backend's own atomicity.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrBackend wraps failures of a remote cache backend.
var ErrBackend = errors.New("cache backend error")

// Entry is a cached engine result.
type Entry struct {
	// Engine is the id of the engine that produced the result
	Engine string `json:"engine"`

	// Score is the overall match score
	Score float64 `json:"score"`

	// SubScores contains component scores
	SubScores map[string]float64 `json:"sub_scores,omitempty"`

	// Confidence is the engine's reported confidence
	Confidence float64 `json:"confidence"`

	// StoredAt is when the entry was written
	StoredAt time.Time `json:"stored_at"`

	// ExpiresAt is when the entry stops being served
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry is past its expiry at time now.
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Store is a result cache backend.
type Store interface {
	// Get returns the entry for key if present and not expired.
	Get(ctx context.Context, key string) (*Entry, bool, error)

	// Set stores the entry unless a fresher non-expired entry is already
	// present. It reports whether the entry was written.
	Set(ctx context.Context, key string, entry *Entry) (bool, error)

	// Len returns the number of entries currently held (best effort for
	// remote backends).
	Len(ctx context.Context) (int, error)

	// Close releases backend resources.
	Close() error
}
