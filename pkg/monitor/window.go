package monitor

import (
	"math"
	"sort"
	"sync"
	"time"

	"talentgrid-hq/conductor/pkg/engines"
)

// maxSamplesPerBucket bounds the latency samples kept per bucket. Counters
// keep counting once the bound is reached.
const maxSamplesPerBucket = 2048

type bucket struct {
	start     time.Time
	successes int
	cacheHits int
	failures  int
	timeouts  int
	latencies []time.Duration

	sidebandOK     int
	sidebandFailed int
	lastSideband   time.Time
	lastSidebandOK bool
}

func (b *bucket) reset(start time.Time) {
	*b = bucket{start: start, latencies: b.latencies[:0]}
}

// WindowStats is an aggregate view of a rolling window.
type WindowStats struct {
	Successes int `json:"successes"`
	CacheHits int `json:"cache_hits"`
	Failures  int `json:"failures"`
	Timeouts  int `json:"timeouts"`

	// LiveAttempts counts live calls (successes, failures and timeouts).
	LiveAttempts int `json:"live_attempts"`

	// ErrorRate is (failures + timeouts) / live attempts, 0 without attempts.
	ErrorRate float64 `json:"error_rate"`

	// P95 is the 95th percentile latency of live attempts.
	P95 time.Duration `json:"p95"`

	// LatencySamples is the number of samples P95 was computed from.
	LatencySamples int `json:"latency_samples"`

	SidebandOK     int `json:"sideband_ok"`
	SidebandFailed int `json:"sideband_failed"`

	// LastSidebandOK is the result of the most recent sideband check; only
	// meaningful when SidebandOK+SidebandFailed > 0.
	LastSidebandOK bool `json:"last_sideband_ok"`
}

// Window is a per-engine rolling window of call outcomes, split into
// fixed-width buckets. Buckets older than the window size are ignored and
// recycled on the next write that lands on them.
type Window struct {
	mu      sync.Mutex
	size    time.Duration
	width   time.Duration
	buckets []bucket
}

// NewWindow creates a rolling window of the given size split into n buckets.
func NewWindow(size time.Duration, n int) *Window {
	if n <= 0 {
		n = 10
	}
	if size <= 0 {
		size = 5 * time.Minute
	}
	width := size / time.Duration(n)
	if width <= 0 {
		width = time.Millisecond
	}
	return &Window{
		size:    size,
		width:   width,
		buckets: make([]bucket, n),
	}
}

// bucketFor returns the bucket covering t, recycling it if it is stale.
// Must be called with the lock held.
func (w *Window) bucketFor(t time.Time) *bucket {
	start := t.Truncate(w.width)
	idx := int((start.UnixNano() / int64(w.width)) % int64(len(w.buckets)))
	if idx < 0 {
		idx += len(w.buckets)
	}
	b := &w.buckets[idx]
	if !b.start.Equal(start) {
		b.reset(start)
	}
	return b
}

// Add records a call outcome observed at time at.
func (w *Window) Add(status engines.Status, latency time.Duration, at time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	b := w.bucketFor(at)
	switch status {
	case engines.StatusSuccess:
		b.successes++
	case engines.StatusCacheHit:
		b.cacheHits++
		return
	case engines.StatusError:
		b.failures++
	case engines.StatusTimeout:
		b.timeouts++
	}
	if len(b.latencies) < maxSamplesPerBucket {
		b.latencies = append(b.latencies, latency)
	}
}

// AddSideband records a sideband health-check result.
func (w *Window) AddSideband(ok bool, at time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	b := w.bucketFor(at)
	if ok {
		b.sidebandOK++
	} else {
		b.sidebandFailed++
	}
	b.lastSideband = at
	b.lastSidebandOK = ok
}

// Stats aggregates the buckets that fall inside the window ending at now.
func (w *Window) Stats(now time.Time) WindowStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	var (
		s            WindowStats
		latencies    []time.Duration
		lastSideband time.Time
	)
	cutoff := now.Add(-w.size)
	for i := range w.buckets {
		b := &w.buckets[i]
		if b.start.IsZero() || !b.start.After(cutoff) || b.start.After(now) {
			continue
		}
		s.Successes += b.successes
		s.CacheHits += b.cacheHits
		s.Failures += b.failures
		s.Timeouts += b.timeouts
		s.SidebandOK += b.sidebandOK
		s.SidebandFailed += b.sidebandFailed
		latencies = append(latencies, b.latencies...)
		if b.sidebandOK+b.sidebandFailed > 0 && b.lastSideband.After(lastSideband) {
			lastSideband = b.lastSideband
			s.LastSidebandOK = b.lastSidebandOK
		}
	}

	s.LiveAttempts = s.Successes + s.Failures + s.Timeouts
	if s.LiveAttempts > 0 {
		s.ErrorRate = float64(s.Failures+s.Timeouts) / float64(s.LiveAttempts)
	}
	s.LatencySamples = len(latencies)
	s.P95 = percentile(latencies, 0.95)
	return s
}

// Reset clears every bucket.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.buckets {
		w.buckets[i].reset(time.Time{})
	}
}

// percentile returns the nearest-rank percentile of samples. It sorts the
// slice in place.
func percentile(samples []time.Duration, p float64) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	rank := int(math.Ceil(p*float64(len(samples)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(samples) {
		rank = len(samples) - 1
	}
	return samples[rank]
}
