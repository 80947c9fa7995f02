package traffic

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Store persists rollout stages so operator changes survive restarts.
type Store interface {
	// Save appends a stage. Versions are unique.
	Save(ctx context.Context, stage *Stage) error

	// Latest returns the highest-version stage.
	Latest(ctx context.Context) (*Stage, bool, error)

	// Version returns the stage with the given version.
	Version(ctx context.Context, version int64) (*Stage, bool, error)

	// History returns up to limit stages, newest first.
	History(ctx context.Context, limit int) ([]Stage, error)

	// Close releases resources.
	Close() error
}

// MemoryStore keeps stages in memory. Used when no state path is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	stages []Stage
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save appends a stage.
func (m *MemoryStore) Save(_ context.Context, stage *Stage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.stages {
		if s.Version == stage.Version {
			return fmt.Errorf("stage version %d already stored", stage.Version)
		}
	}
	s := *stage
	s.Rules = stage.Rules.clone()
	m.stages = append(m.stages, s)
	return nil
}

// Latest returns the highest-version stage.
func (m *MemoryStore) Latest(_ context.Context) (*Stage, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *Stage
	for i := range m.stages {
		if latest == nil || m.stages[i].Version > latest.Version {
			latest = &m.stages[i]
		}
	}
	if latest == nil {
		return nil, false, nil
	}
	s := *latest
	return &s, true, nil
}

// Version returns the stage with the given version.
func (m *MemoryStore) Version(_ context.Context, version int64) (*Stage, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.stages {
		if s.Version == version {
			return &s, true, nil
		}
	}
	return nil, false, nil
}

// History returns up to limit stages, newest first.
func (m *MemoryStore) History(_ context.Context, limit int) ([]Stage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Stage, 0, len(m.stages))
	for i := len(m.stages) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, m.stages[i])
	}
	return out, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

// SQLiteConfig configures the SQLite stage store.
type SQLiteConfig struct {
	// Path is the database file path
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// SQLiteStore persists stages in a SQLite database using a write-ahead log.
type SQLiteStore struct {
	db        *sql.DB
	closeOnce sync.Once
}

// NewSQLiteStore opens (creating if needed) the stage database.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.Path, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rollout_stages (
		version INTEGER PRIMARY KEY,
		rules TEXT NOT NULL,
		force_legacy INTEGER NOT NULL,
		source TEXT NOT NULL,
		issued_at INTEGER NOT NULL,
		effective_at INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save appends a stage.
func (s *SQLiteStore) Save(ctx context.Context, stage *Stage) error {
	rules, err := json.Marshal(stage.Rules)
	if err != nil {
		return fmt.Errorf("failed to marshal rules: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rollout_stages (version, rules, force_legacy, source, issued_at, effective_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, stage.Version, string(rules), boolToInt(stage.ForceLegacy), stage.Source,
		stage.IssuedAt.UnixNano(), stage.EffectiveAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save stage %d: %w", stage.Version, err)
	}
	return nil
}

const selectStage = `SELECT version, rules, force_legacy, source, issued_at, effective_at FROM rollout_stages`

// Latest returns the highest-version stage.
func (s *SQLiteStore) Latest(ctx context.Context) (*Stage, bool, error) {
	return s.one(ctx, selectStage+` ORDER BY version DESC LIMIT 1`)
}

// Version returns the stage with the given version.
func (s *SQLiteStore) Version(ctx context.Context, version int64) (*Stage, bool, error) {
	return s.one(ctx, selectStage+` WHERE version = ?`, version)
}

// History returns up to limit stages, newest first.
func (s *SQLiteStore) History(ctx context.Context, limit int) ([]Stage, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, selectStage+` ORDER BY version DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query stages: %w", err)
	}
	defer rows.Close()

	var out []Stage
	for rows.Next() {
		stage, err := scanStage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *stage)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) one(ctx context.Context, query string, args ...any) (*Stage, bool, error) {
	stage, err := scanStage(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return stage, true, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.db.Close()
	})
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStage(row scanner) (*Stage, error) {
	var (
		stage       Stage
		rules       string
		forceLegacy int
		issued      int64
		effective   int64
	)
	if err := row.Scan(&stage.Version, &rules, &forceLegacy, &stage.Source, &issued, &effective); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan stage: %w", err)
	}
	if err := json.Unmarshal([]byte(rules), &stage.Rules); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rules for stage %d: %w", stage.Version, err)
	}
	stage.ForceLegacy = forceLegacy != 0
	stage.IssuedAt = time.Unix(0, issued)
	stage.EffectiveAt = time.Unix(0, effective)
	return &stage, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
