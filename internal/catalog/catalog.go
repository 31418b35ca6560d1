// Package catalog persists the document catalog and the append-only ingest
// event log in SQLite. The content_hash uniqueness constraint on documents is
// the single source of truth for deduplication; the event log is the sole
// record of pipeline progress.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrDuplicateHash is returned when a document with the same content
	// hash already exists. This is a normal outcome, not a failure.
	ErrDuplicateHash = errors.New("document with identical content hash exists")
)

// Catalog provides access to the document catalog and ingest event log.
type Catalog struct {
	db *sql.DB
}

// Open opens (or creates) the catalog database at the given path with WAL
// mode enabled. Use ":memory:" for an ephemeral catalog in tests.
func Open(ctx context.Context, path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Catalog{db: db}, nil
}

// Close closes the underlying database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// HealthCheck verifies the database is reachable.
func (c *Catalog) HealthCheck(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// initSchema creates tables and indexes if they don't exist.
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	size_bytes INTEGER NOT NULL,
	storage_path TEXT NOT NULL,
	content_hash TEXT UNIQUE NOT NULL,
	page_count INTEGER DEFAULT 0,
	language TEXT DEFAULT '',
	confidence REAL DEFAULT 0,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ingest_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id TEXT NOT NULL,
	stage TEXT NOT NULL,
	status TEXT NOT NULL,
	payload TEXT,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ingest_events_document ON ingest_events(document_id);
CREATE INDEX IF NOT EXISTS idx_ingest_events_stage_status ON ingest_events(stage, status);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize catalog schema: %w", err)
	}
	return nil
}
