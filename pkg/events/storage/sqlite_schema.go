package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the event database schema.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    time INTEGER NOT NULL,
    request_id TEXT,

    -- Routing and selection
    path TEXT,
    mode TEXT,
    decision TEXT,

    -- Outcome
    engine TEXT,
    status TEXT,
    reason TEXT,
    score REAL,
    low_confidence BOOLEAN,
    cache_hit BOOLEAN,
    tried INTEGER,
    latency_us INTEGER,
    error TEXT,
    error_kind TEXT,

    -- State changes
    from_state TEXT,
    to_state TEXT
);

-- Schema version table
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_time ON events(time);
CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
CREATE INDEX IF NOT EXISTS idx_events_engine ON events(engine);
CREATE INDEX IF NOT EXISTS idx_events_request_id ON events(request_id);
`

// InsertSchemaVersion inserts the schema version into the schema_version table.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version from the database.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`
