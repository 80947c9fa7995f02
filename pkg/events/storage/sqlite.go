package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"talentgrid-hq/conductor/pkg/events"
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/events.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStorage implements the Storage interface using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStorage creates a new SQLite storage backend.
// It initializes the database schema and enables WAL mode if configured.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.MaxOpenConns == 0 {
		config.MaxOpenConns = 10
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 5
	}
	if config.BusyTimeout == 0 {
		config.BusyTimeout = 5 * time.Second
	}

	logger := slog.Default().With("component", "events.storage.sqlite")

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, events.NewStorageError("sqlite", "open", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStorage{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite event storage initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
		"max_open_conns", config.MaxOpenConns,
	)

	return s, nil
}

// initialize sets up the database schema and enables WAL mode.
func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return events.NewStorageError("sqlite", "enable_wal", err)
		}
	}

	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return events.NewStorageError("sqlite", "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return events.NewStorageError("sqlite", "create_schema", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return events.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return events.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return events.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	return nil
}

// Store persists an event to the database.
func (s *SQLiteStorage) Store(ctx context.Context, e *events.Event) error {
	query := `
		INSERT INTO events (
			id, kind, time, request_id,
			path, mode, decision,
			engine, status, reason, score, low_confidence, cache_hit, tried, latency_us, error, error_kind,
			from_state, to_state
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		e.ID, string(e.Kind), e.Time.UnixNano(), nullString(e.RequestID),
		nullString(e.Path), nullString(e.Mode), nullString(e.Decision),
		nullString(e.Engine), nullString(e.Status), nullString(e.Reason), e.Score, e.LowConf, e.CacheHit, e.Tried,
		e.Latency.Microseconds(), nullString(e.Error), nullString(e.ErrorKind),
		nullString(e.From), nullString(e.To),
	)
	if err != nil {
		return events.NewStorageError("sqlite", "store", err)
	}
	return nil
}

// Query retrieves events matching the query filters.
func (s *SQLiteStorage) Query(ctx context.Context, query *events.Query) ([]*events.Event, error) {
	whereClause, args := buildWhereClause(query)

	sqlQuery := `SELECT id, kind, time, request_id, path, mode, decision,
		engine, status, reason, score, low_confidence, cache_hit, tried, latency_us, error, error_kind,
		from_state, to_state FROM events`
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}

	order := "DESC"
	if strings.EqualFold(query.SortOrder, "asc") {
		order = "ASC"
	}
	sqlQuery += fmt.Sprintf(" ORDER BY time %s, id %s", order, order)

	// A negative limit means no limit.
	limit := 100
	if query.Limit != 0 {
		limit = query.Limit
	}
	sqlQuery += fmt.Sprintf(" LIMIT %d", limit)
	if query.Offset > 0 {
		sqlQuery += fmt.Sprintf(" OFFSET %d", query.Offset)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, events.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	results := []*events.Event{}
	for rows.Next() {
		e, err := scanRow(rows)
		if err != nil {
			return nil, events.NewStorageError("sqlite", "scan", err)
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, events.NewStorageError("sqlite", "query", err)
	}
	return results, nil
}

// Count returns the number of events matching the query filters.
func (s *SQLiteStorage) Count(ctx context.Context, query *events.Query) (int64, error) {
	whereClause, args := buildWhereClause(query)

	sqlQuery := "SELECT COUNT(*) FROM events"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&count); err != nil {
		return 0, events.NewStorageError("sqlite", "count", err)
	}
	return count, nil
}

// Delete removes events matching the query filters.
func (s *SQLiteStorage) Delete(ctx context.Context, query *events.Query) (int64, error) {
	whereClause, args := buildWhereClause(query)

	sqlQuery := "DELETE FROM events"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}

	result, err := s.db.ExecContext(ctx, sqlQuery, args...)
	if err != nil {
		return 0, events.NewStorageError("sqlite", "delete", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, events.NewStorageError("sqlite", "delete", err)
	}
	return count, nil
}

// Ping checks the database connection.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return events.NewStorageError("sqlite", "ping", err)
	}
	return nil
}

// Close releases resources held by the storage backend.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return events.NewStorageError("sqlite", "close", err)
	}
	s.logger.Info("SQLite event storage closed")
	return nil
}

// buildWhereClause builds a SQL WHERE clause from query filters.
// Returns the clause (without "WHERE") and the query arguments.
func buildWhereClause(query *events.Query) (string, []any) {
	var (
		conditions []string
		args       []any
	)

	if query.StartTime != nil {
		conditions = append(conditions, "time >= ?")
		args = append(args, query.StartTime.UnixNano())
	}
	if query.EndTime != nil {
		conditions = append(conditions, "time <= ?")
		args = append(args, query.EndTime.UnixNano())
	}
	if query.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(query.Kind))
	}
	if query.Engine != "" {
		conditions = append(conditions, "engine = ?")
		args = append(args, query.Engine)
	}
	if query.RequestID != "" {
		conditions = append(conditions, "request_id = ?")
		args = append(args, query.RequestID)
	}
	if query.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, query.Status)
	}

	return strings.Join(conditions, " AND "), args
}

// scanRow scans a database row into an Event.
func scanRow(rows *sql.Rows) (*events.Event, error) {
	var (
		e             events.Event
		kind          string
		ts, latencyUS int64
		nullable      [11]sql.NullString
	)

	err := rows.Scan(
		&e.ID, &kind, &ts, &nullable[0],
		&nullable[1], &nullable[2], &nullable[3],
		&nullable[4], &nullable[5], &nullable[6], &e.Score, &e.LowConf, &e.CacheHit, &e.Tried, &latencyUS, &nullable[7], &nullable[8],
		&nullable[9], &nullable[10],
	)
	if err != nil {
		return nil, err
	}

	e.Kind = events.Kind(kind)
	e.Time = time.Unix(0, ts)
	e.Latency = time.Duration(latencyUS) * time.Microsecond
	for i, dst := range []*string{
		&e.RequestID, &e.Path, &e.Mode, &e.Decision,
		&e.Engine, &e.Status, &e.Reason, &e.Error, &e.ErrorKind,
		&e.From, &e.To,
	} {
		*dst = nullable[i].String
	}
	return &e, nil
}

// nullString converts empty strings to NULL for optional columns.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
