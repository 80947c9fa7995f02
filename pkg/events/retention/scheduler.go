package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// cronLogger routes cron's own diagnostics to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}

// RunResult describes the most recent scheduled pruning.
type RunResult struct {
	At      time.Time
	Deleted int64
	Err     error
}

// Scheduler runs the pruner on a cron schedule. A pruning that is still
// running when the next one fires causes that run to be skipped.
type Scheduler struct {
	pruner *Pruner
	logger *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entry   cron.EntryID
	running bool
	last    RunResult
}

// NewScheduler creates a scheduler for pruner.
func NewScheduler(pruner *Pruner) *Scheduler {
	logger := slog.Default().With("component", "events.scheduler")
	cl := cronLogger{logger: logger}
	return &Scheduler{
		pruner: pruner,
		logger: logger,
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
	}
}

// Start schedules pruning with the pruner's PruneSchedule (standard five
// field cron syntax). An empty schedule leaves the scheduler idle. The
// scheduler stops when ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedule := s.pruner.config.PruneSchedule
	if schedule == "" {
		s.logger.Info("no prune schedule configured")
		return nil
	}
	if s.running {
		return nil
	}

	id, err := s.cron.AddFunc(schedule, func() { s.run(ctx) })
	if err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}
	s.entry = id
	s.cron.Start()
	s.running = true

	s.logger.Info("event retention scheduled",
		"schedule", schedule,
		"retention_days", s.pruner.config.RetentionDays,
		"max_events", s.pruner.config.MaxEvents,
		"next", s.cron.Entry(id).Next,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	deleted, err := s.pruner.Prune(ctx)

	s.mu.Lock()
	s.last = RunResult{At: s.pruner.now(), Deleted: deleted, Err: err}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("scheduled pruning failed", "error", err)
		return
	}
	s.logger.Debug("scheduled pruning completed", "deleted", deleted)
}

// Stop stops the scheduler and waits for a running pruning to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	c := s.cron
	s.cron.Remove(s.entry)
	s.mu.Unlock()

	// run takes mu when it completes; wait outside the lock.
	<-c.Stop().Done()
	s.logger.Info("retention scheduler stopped")
}

// IsRunning reports whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled pruning time, or nil when idle.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	next := s.cron.Entry(s.entry).Next
	if next.IsZero() {
		return nil
	}
	return &next
}

// LastRun returns the outcome of the most recent scheduled pruning. The
// zero value means no pruning has run yet.
func (s *Scheduler) LastRun() RunResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
