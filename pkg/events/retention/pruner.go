// Package retention prunes old events on a cron schedule.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"talentgrid-hq/conductor/pkg/events"
	"talentgrid-hq/conductor/pkg/events/export"
)

// Config contains configuration for the retention pruner.
type Config struct {
	// RetentionDays is the number of days to retain events.
	// 0 means keep events forever.
	RetentionDays int

	// PruneSchedule is a cron expression for scheduling pruning.
	// Example: "0 3 * * *" (daily at 3 AM)
	PruneSchedule string

	// ArchiveBeforeDelete exports events to JSON before deletion.
	ArchiveBeforeDelete bool

	// ArchivePath is the directory to store archives in.
	ArchivePath string

	// MaxEvents is the maximum number of events to keep.
	// 0 means unlimited.
	MaxEvents int64
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays: 30,
		PruneSchedule: "0 3 * * *",
		ArchivePath:   "data/archives/",
	}
}

// Pruner enforces retention on stored events.
type Pruner struct {
	storage   events.Storage
	config    *Config
	now       func() time.Time
	logger    *slog.Logger
	scheduler *Scheduler
}

// NewPruner creates a new retention pruner.
func NewPruner(storage events.Storage, config *Config) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}

	p := &Pruner{
		storage: storage,
		config:  config,
		now:     time.Now,
		logger:  slog.Default().With("component", "events.retention"),
	}
	p.scheduler = NewScheduler(p)
	return p
}

// Prune deletes events older than the retention period, then the oldest
// events beyond MaxEvents. It returns the total number deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var total int64

	if p.config.RetentionDays > 0 {
		deleted, err := p.pruneByAge(ctx)
		if err != nil {
			return total, fmt.Errorf("prune by age failed: %w", err)
		}
		total += deleted
	}

	if p.config.MaxEvents > 0 {
		deleted, err := p.pruneByCount(ctx)
		if err != nil {
			return total, fmt.Errorf("prune by count failed: %w", err)
		}
		total += deleted
	}

	if total > 0 {
		p.logger.Info("event pruning completed",
			"total_deleted", total,
			"retention_days", p.config.RetentionDays,
			"max_events", p.config.MaxEvents,
		)
	}
	return total, nil
}

func (p *Pruner) pruneByAge(ctx context.Context) (int64, error) {
	cutoff := p.now().AddDate(0, 0, -p.config.RetentionDays)
	query := &events.Query{EndTime: &cutoff}

	if p.config.ArchiveBeforeDelete {
		evs, err := p.storage.Query(ctx, &events.Query{EndTime: &cutoff, Limit: -1, SortOrder: "asc"})
		if err != nil {
			return 0, &events.RetentionError{RetentionDays: p.config.RetentionDays, Cause: err}
		}
		if err := p.archive(ctx, "age", evs); err != nil {
			return 0, &events.RetentionError{RetentionDays: p.config.RetentionDays, Cause: err}
		}
	}

	deleted, err := p.storage.Delete(ctx, query)
	if err != nil {
		return 0, &events.RetentionError{RetentionDays: p.config.RetentionDays, Cause: err}
	}
	return deleted, nil
}

func (p *Pruner) pruneByCount(ctx context.Context) (int64, error) {
	count, err := p.storage.Count(ctx, &events.Query{})
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	if count <= p.config.MaxEvents {
		return 0, nil
	}

	excess := int(count - p.config.MaxEvents)
	oldest, err := p.storage.Query(ctx, &events.Query{Limit: excess, SortOrder: "asc"})
	if err != nil {
		return 0, fmt.Errorf("failed to query events: %w", err)
	}
	if len(oldest) == 0 {
		return 0, nil
	}

	if p.config.ArchiveBeforeDelete {
		if err := p.archive(ctx, "count", oldest); err != nil {
			return 0, fmt.Errorf("archive failed: %w", err)
		}
	}

	cutoff := oldest[len(oldest)-1].Time
	deleted, err := p.storage.Delete(ctx, &events.Query{EndTime: &cutoff})
	if err != nil {
		return 0, fmt.Errorf("delete failed: %w", err)
	}
	return deleted, nil
}

// archive exports events to a JSON file before deletion.
func (p *Pruner) archive(ctx context.Context, reason string, evs []*events.Event) error {
	if len(evs) == 0 {
		return nil
	}
	if err := os.MkdirAll(p.config.ArchivePath, 0o755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	name := filepath.Join(p.config.ArchivePath,
		fmt.Sprintf("events-%s-%s.json", reason, p.now().Format("2006-01-02-150405")))
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer f.Close()

	if err := export.NewJSONExporter(false).Export(ctx, evs, f); err != nil {
		return fmt.Errorf("failed to export events to archive: %w", err)
	}

	p.logger.Info("events archived", "archive_file", name, "event_count", len(evs))
	return nil
}

// Start starts the pruning scheduler.
func (p *Pruner) Start(ctx context.Context) error {
	return p.scheduler.Start(ctx)
}

// Stop stops the pruning scheduler.
func (p *Pruner) Stop() {
	p.scheduler.Stop()
}

// NextPruning returns the time of the next scheduled pruning.
func (p *Pruner) NextPruning() *time.Time {
	return p.scheduler.NextRun()
}

// LastPruning returns the outcome of the most recent scheduled pruning.
func (p *Pruner) LastPruning() RunResult {
	return p.scheduler.LastRun()
}
