package storage

import (
	"context"
	"sort"
	"sync"

	"talentgrid-hq/conductor/pkg/events"
)

// MemoryStorage implements the Storage interface using an in-memory map.
// Used by tests and when no event database is configured.
type MemoryStorage struct {
	events map[string]*events.Event
	mu     sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		events: make(map[string]*events.Event),
	}
}

// Store persists an event to memory.
func (s *MemoryStorage) Store(ctx context.Context, event *events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	eventCopy := *event
	s.events[event.ID] = &eventCopy
	return nil
}

// Query retrieves events matching the query filters, sorted by time.
func (s *MemoryStorage) Query(ctx context.Context, query *events.Query) ([]*events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := []*events.Event{}
	for _, event := range s.events {
		if matchesQuery(event, query) {
			eventCopy := *event
			results = append(results, &eventCopy)
		}
	}

	asc := query.SortOrder == "asc"
	sort.Slice(results, func(i, j int) bool {
		if results[i].Time.Equal(results[j].Time) {
			return results[i].ID < results[j].ID
		}
		if asc {
			return results[i].Time.Before(results[j].Time)
		}
		return results[i].Time.After(results[j].Time)
	})

	start := query.Offset
	if start > len(results) {
		return []*events.Event{}, nil
	}
	results = results[start:]
	if query.Limit > 0 && query.Limit < len(results) {
		results = results[:query.Limit]
	}
	return results, nil
}

// Count returns the number of events matching the query filters.
func (s *MemoryStorage) Count(ctx context.Context, query *events.Query) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, event := range s.events {
		if matchesQuery(event, query) {
			count++
		}
	}
	return count, nil
}

// Delete removes events matching the query filters.
func (s *MemoryStorage) Delete(ctx context.Context, query *events.Query) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, event := range s.events {
		if matchesQuery(event, query) {
			delete(s.events, id)
			deleted++
		}
	}
	return deleted, nil
}

// Ping always succeeds.
func (s *MemoryStorage) Ping(context.Context) error { return nil }

// Close releases resources held by the storage backend.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = make(map[string]*events.Event)
	return nil
}

// Size returns the number of stored events.
func (s *MemoryStorage) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.events)
}

// matchesQuery checks if an event matches the query filters.
func matchesQuery(event *events.Event, query *events.Query) bool {
	if query.StartTime != nil && event.Time.Before(*query.StartTime) {
		return false
	}
	if query.EndTime != nil && event.Time.After(*query.EndTime) {
		return false
	}
	if query.Kind != "" && event.Kind != query.Kind {
		return false
	}
	if query.Engine != "" && event.Engine != query.Engine {
		return false
	}
	if query.RequestID != "" && event.RequestID != query.RequestID {
		return false
	}
	if query.Status != "" && event.Status != query.Status {
		return false
	}
	return true
}
