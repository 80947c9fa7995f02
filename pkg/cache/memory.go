package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store with TTL expiry and LRU eviction.
// Expired entries are never returned; a background goroutine removes them
// periodically. When the store is full the least recently used entry is
// evicted.
type MemoryStore struct {
	// entries maps keys to list elements holding *memoryItem
	entries map[string]*list.Element

	// lru orders items from most to least recently used
	lru *list.List

	// maxEntries is the maximum number of entries (0 = unlimited)
	maxEntries int

	// mu protects entries and lru
	mu sync.Mutex

	// now is the clock, replaceable in tests
	now func() time.Time

	// onEvict is called with the number of entries evicted or expired
	onEvict func(n int)

	// stopCh signals the cleanup goroutine to stop
	stopCh    chan struct{}
	closeOnce sync.Once
}

type memoryItem struct {
	key   string
	entry Entry
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock replaces the store's clock.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// WithEvictionHook registers a callback invoked whenever entries are evicted
// for capacity or removed after expiry.
func WithEvictionHook(fn func(n int)) MemoryOption {
	return func(s *MemoryStore) { s.onEvict = fn }
}

// NewMemoryStore creates an in-memory store. If cleanupInterval is positive a
// background goroutine removes expired entries at that interval until Close.
func NewMemoryStore(maxEntries int, cleanupInterval time.Duration, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries:    make(map[string]*list.Element),
		lru:        list.New(),
		maxEntries: maxEntries,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if cleanupInterval > 0 {
		go s.cleanupExpired(cleanupInterval)
	}
	return s
}

// Get returns a copy of the entry for key if it is present and not expired.
func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	item := el.Value.(*memoryItem)
	if item.entry.Expired(s.now()) {
		s.removeElement(el)
		s.evicted(1)
		return nil, false, nil
	}
	s.lru.MoveToFront(el)

	e := item.entry
	e.SubScores = copySubScores(item.entry.SubScores)
	return &e, true, nil
}

// Set stores entry under key unless a non-expired entry with an equal or later
// expiry is already present.
func (s *MemoryStore) Set(_ context.Context, key string, entry *Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if entry.Expired(now) {
		return false, nil
	}

	stored := *entry
	stored.SubScores = copySubScores(entry.SubScores)

	if el, ok := s.entries[key]; ok {
		item := el.Value.(*memoryItem)
		if !item.entry.Expired(now) && !item.entry.ExpiresAt.Before(entry.ExpiresAt) {
			return false, nil
		}
		item.entry = stored
		s.lru.MoveToFront(el)
		return true, nil
	}

	if s.maxEntries > 0 && len(s.entries) >= s.maxEntries {
		s.evictLRU()
	}
	s.entries[key] = s.lru.PushFront(&memoryItem{key: key, entry: stored})
	return true, nil
}

// Len returns the number of entries, including expired ones not yet removed.
func (s *MemoryStore) Len(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries), nil
}

// Close stops the background cleanup goroutine.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() { close(s.stopCh) })
	return nil
}

// evictLRU removes the least recently used entry. Must be called with the
// lock held.
func (s *MemoryStore) evictLRU() {
	if el := s.lru.Back(); el != nil {
		s.removeElement(el)
		s.evicted(1)
	}
}

func (s *MemoryStore) removeElement(el *list.Element) {
	s.lru.Remove(el)
	delete(s.entries, el.Value.(*memoryItem).key)
}

func (s *MemoryStore) evicted(n int) {
	if s.onEvict != nil && n > 0 {
		s.onEvict(n)
	}
}

// cleanupExpired runs periodically to remove expired entries until Close.
func (s *MemoryStore) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.removeExpired()
		case <-s.stopCh:
			return
		}
	}
}

func (s *MemoryStore) removeExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for el := s.lru.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(*memoryItem).entry.Expired(now) {
			s.removeElement(el)
			removed++
		}
		el = prev
	}
	s.evicted(removed)
}

func copySubScores(in map[string]float64) map[string]float64 {
	if in == nil {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
