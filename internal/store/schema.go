// Package store is the per-library relational store: notes, queue
// membership, queue tunables and excerpt lineage, kept in one SQLite file
// inside each workspace.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS libraries (
	library_id TEXT PRIMARY KEY,
	name       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS notes (
	library_id            TEXT     NOT NULL REFERENCES libraries(library_id),
	relative_path         TEXT     NOT NULL,
	added_time            DATETIME NOT NULL,
	last_revised_time     DATETIME,
	review_count          INTEGER  NOT NULL DEFAULT 0,
	easiness              REAL     NOT NULL DEFAULT 0,
	rank                  REAL     NOT NULL DEFAULT 0,
	interval              INTEGER  NOT NULL DEFAULT 0,
	due_time              DATETIME NOT NULL,
	rotation_interval     INTEGER  NOT NULL DEFAULT 0,
	intermediate_interval INTEGER  NOT NULL DEFAULT 0,
	extraction_count      INTEGER  NOT NULL DEFAULT 0,
	last_queue_change     DATETIME,
	PRIMARY KEY (library_id, relative_path)
);

CREATE TABLE IF NOT EXISTS queue_membership (
	library_id    TEXT NOT NULL,
	relative_path TEXT NOT NULL,
	queue_name    TEXT NOT NULL,
	PRIMARY KEY (library_id, relative_path),
	FOREIGN KEY (library_id, relative_path) REFERENCES notes(library_id, relative_path)
);

CREATE INDEX IF NOT EXISTS idx_membership_queue ON queue_membership(library_id, queue_name);

CREATE TABLE IF NOT EXISTS queue_config (
	library_id   TEXT NOT NULL REFERENCES libraries(library_id),
	queue_name   TEXT NOT NULL,
	config_key   TEXT NOT NULL,
	config_value TEXT NOT NULL,
	PRIMARY KEY (library_id, queue_name, config_key)
);

CREATE TABLE IF NOT EXISTS note_sources (
	library_id    TEXT    NOT NULL,
	relative_path TEXT    NOT NULL,
	parent_path   TEXT,
	extract_type  TEXT    NOT NULL,
	range_start   INTEGER NOT NULL,
	range_end     INTEGER NOT NULL,
	start_page    INTEGER,
	end_page      INTEGER,
	source_hash   TEXT,
	PRIMARY KEY (library_id, relative_path),
	FOREIGN KEY (library_id, relative_path) REFERENCES notes(library_id, relative_path),
	FOREIGN KEY (library_id, parent_path) REFERENCES notes(library_id, relative_path)
);

CREATE INDEX IF NOT EXISTS idx_sources_parent ON note_sources(library_id, parent_path);
`

// querier is satisfied by both *sql.DB and *sql.Tx so one set of queries
// serves reads outside a transaction and writes inside one.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries holds every record operation of the store.
type Queries struct {
	q querier
}

// DB wraps a sql.DB with store-specific operations.
type DB struct {
	Queries
	conn *sql.DB
}

// Tx is an open transaction. It exposes the same operations as DB.
type Tx struct {
	Queries
	tx *sql.Tx
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{Queries: Queries{q: conn}, conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying sql.DB for advanced queries and tests.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// WithTx runs fn inside a transaction. Every record change fn makes is
// committed together, or none is when fn (or the commit) fails.
func (db *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	if err := fn(&Tx{Queries: Queries{q: tx}, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}
