package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"talentgrid-hq/conductor/pkg/events"
)

func backends(t *testing.T) map[string]events.Storage {
	t.Helper()
	sqlite, err := NewSQLiteStorage(&SQLiteConfig{
		Path:    filepath.Join(t.TempDir(), "events.db"),
		WALMode: true,
	})
	if err != nil {
		t.Fatalf("failed to create SQLite storage: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]events.Storage{
		"memory": NewMemoryStorage(),
		"sqlite": sqlite,
	}
}

var base = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func seed(t *testing.T, s events.Storage) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		kind := events.KindAttempt
		if i%2 == 0 {
			kind = events.KindMatch
		}
		e := &events.Event{
			ID:        fmt.Sprintf("evt-%d", i),
			Kind:      kind,
			Time:      base.Add(time.Duration(i) * time.Minute),
			RequestID: fmt.Sprintf("req-%d", i/2),
			Engine:    []string{"baseline", "advanced"}[i%2],
			Status:    "success",
			Score:     70 + float64(i),
			Latency:   time.Duration(i) * time.Millisecond,
		}
		if i == 5 {
			e.Status = "timeout"
			e.Error = "engine \"advanced\" timed out after 80ms"
			e.ErrorKind = "timeout"
		}
		if err := s.Store(ctx, e); err != nil {
			t.Fatalf("Store failed: %v", err)
		}
	}
}

func TestStorage_Query(t *testing.T) {
	start := base.Add(2 * time.Minute)

	tests := []struct {
		name    string
		query   events.Query
		wantIDs []string
	}{
		{"all newest first", events.Query{}, []string{"evt-5", "evt-4", "evt-3", "evt-2", "evt-1", "evt-0"}},
		{"ascending", events.Query{SortOrder: "asc", Limit: 2}, []string{"evt-0", "evt-1"}},
		{"by kind", events.Query{Kind: events.KindMatch}, []string{"evt-4", "evt-2", "evt-0"}},
		{"by engine and status", events.Query{Engine: "advanced", Status: "timeout"}, []string{"evt-5"}},
		{"by request", events.Query{RequestID: "req-1"}, []string{"evt-3", "evt-2"}},
		{"by start time", events.Query{StartTime: &start, SortOrder: "asc", Limit: 2}, []string{"evt-2", "evt-3"}},
		{"offset", events.Query{Limit: 2, Offset: 1}, []string{"evt-4", "evt-3"}},
	}

	for name, s := range backends(t) {
		seed(t, s)
		for _, tt := range tests {
			t.Run(name+"/"+tt.name, func(t *testing.T) {
				q := tt.query
				got, err := s.Query(context.Background(), &q)
				if err != nil {
					t.Fatalf("Query failed: %v", err)
				}
				ids := make([]string, len(got))
				for i, e := range got {
					ids[i] = e.ID
				}
				if fmt.Sprint(ids) != fmt.Sprint(tt.wantIDs) {
					t.Errorf("ids = %v, want %v", ids, tt.wantIDs)
				}
			})
		}
	}
}

func TestStorage_RoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)
			got, err := s.Query(context.Background(), &events.Query{RequestID: "req-2", Engine: "advanced"})
			if err != nil || len(got) != 1 {
				t.Fatalf("expected one event, got %d (%v)", len(got), err)
			}
			e := got[0]
			if !e.Time.Equal(base.Add(5*time.Minute)) || e.Latency != 5*time.Millisecond {
				t.Errorf("time/latency not preserved: %v %v", e.Time, e.Latency)
			}
			if e.ErrorKind != "timeout" || e.Score != 75 || e.Kind != events.KindAttempt {
				t.Errorf("fields not preserved: %+v", e)
			}
		})
	}
}

func TestStorage_CountDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)

			n, err := s.Count(ctx, &events.Query{Kind: events.KindAttempt})
			if err != nil || n != 3 {
				t.Fatalf("Count = %d (%v), want 3", n, err)
			}

			cutoff := base.Add(time.Minute)
			deleted, err := s.Delete(ctx, &events.Query{EndTime: &cutoff})
			if err != nil || deleted != 2 {
				t.Fatalf("Delete = %d (%v), want 2", deleted, err)
			}
			if n, _ := s.Count(ctx, &events.Query{}); n != 4 {
				t.Errorf("expected 4 remaining, got %d", n)
			}
			if err := s.Ping(ctx); err != nil {
				t.Errorf("Ping failed: %v", err)
			}
		})
	}
}

func TestSQLiteStorage_DuplicateID(t *testing.T) {
	s := backends(t)["sqlite"]
	e := &events.Event{ID: "dup", Kind: events.KindMatch, Time: base}
	if err := s.Store(context.Background(), e); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	err := s.Store(context.Background(), e)
	var se *events.StorageError
	if !errors.As(err, &se) || se.Operation != "store" {
		t.Errorf("expected store StorageError, got %v", err)
	}
}
