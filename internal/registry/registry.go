// Package registry keeps the list of known workspaces in a store of its
// own, so they can be enumerated without opening every library.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/lectern/internal/apperr"
	"github.com/starford/lectern/internal/models"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const schema = `
CREATE TABLE IF NOT EXISTS workspaces (
	library_id      TEXT PRIMARY KEY,
	folder_path     TEXT NOT NULL UNIQUE,
	folder_name     TEXT NOT NULL,
	store_path      TEXT NOT NULL,
	first_opened    TEXT NOT NULL,
	last_opened     TEXT NOT NULL,
	open_count      INTEGER NOT NULL DEFAULT 0,
	total_files     INTEGER NOT NULL DEFAULT 0,
	files_due_today INTEGER NOT NULL DEFAULT 0
);
`

// DB is the registry store.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// Open creates or opens the registry at dsn and ensures the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("registry: open: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("registry: ping: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("registry: apply schema: %w", err)
	}
	return &DB{conn: conn, now: time.Now}, nil
}

// Close closes the registry.
func (db *DB) Close() error {
	return db.conn.Close()
}

// formatTime renders registry timestamps as RFC 3339 text in UTC.
func formatTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// Touch records that a workspace was opened: it inserts the entry on first
// sight and bumps open_count and last_opened afterwards.
func (db *DB) Touch(ctx context.Context, w models.Workspace) error {
	now := formatTime(db.now())
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO workspaces (library_id, folder_path, folder_name, store_path,
			first_opened, last_opened, open_count)
		VALUES (?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(library_id) DO UPDATE SET
			folder_path = excluded.folder_path,
			folder_name = excluded.folder_name,
			store_path  = excluded.store_path,
			last_opened = excluded.last_opened,
			open_count  = workspaces.open_count + 1
	`, w.LibraryID, w.FolderPath, w.FolderName, w.StorePath, now, now)
	if err != nil {
		return fmt.Errorf("registry: touch %s: %w", w.LibraryID, err)
	}
	return nil
}

const selectColumns = `library_id, folder_path, folder_name, store_path, first_opened,
	last_opened, open_count, total_files, files_due_today`

type scanner interface {
	Scan(dest ...any) error
}

func scanWorkspace(s scanner) (models.Workspace, error) {
	var (
		w             models.Workspace
		first, latest string
	)
	if err := s.Scan(&w.LibraryID, &w.FolderPath, &w.FolderName, &w.StorePath,
		&first, &latest, &w.OpenCount, &w.TotalFiles, &w.FilesDueToday); err != nil {
		return models.Workspace{}, err
	}
	var err error
	if w.FirstOpened, err = parseTime(first); err != nil {
		return models.Workspace{}, fmt.Errorf("first_opened: %w", err)
	}
	if w.LastOpened, err = parseTime(latest); err != nil {
		return models.Workspace{}, fmt.Errorf("last_opened: %w", err)
	}
	return w, nil
}

// Get returns the entry for libraryID.
func (db *DB) Get(ctx context.Context, libraryID string) (models.Workspace, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM workspaces WHERE library_id = ?`, libraryID)
	w, err := scanWorkspace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Workspace{}, fmt.Errorf("registry: get %s: %w", libraryID, apperr.ErrNotFound)
	}
	if err != nil {
		return models.Workspace{}, fmt.Errorf("registry: get %s: %w", libraryID, err)
	}
	return w, nil
}

// ByFolder returns the entry registered for an absolute folder path.
func (db *DB) ByFolder(ctx context.Context, folder string) (models.Workspace, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM workspaces WHERE folder_path = ?`, folder)
	w, err := scanWorkspace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Workspace{}, fmt.Errorf("registry: folder %s: %w", folder, apperr.ErrNotFound)
	}
	if err != nil {
		return models.Workspace{}, fmt.Errorf("registry: folder %s: %w", folder, err)
	}
	return w, nil
}

// List returns every known workspace, most recently opened first.
func (db *DB) List(ctx context.Context) ([]models.Workspace, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+selectColumns+` FROM workspaces ORDER BY last_opened DESC, folder_name`)
	if err != nil {
		return nil, fmt.Errorf("registry: list: %w", err)
	}
	defer rows.Close()

	var out []models.Workspace
	for rows.Next() {
		w, err := scanWorkspace(rows)
		if err != nil {
			return nil, fmt.Errorf("registry: scan: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// UpdateStats stores the cached counters shown without opening the library.
func (db *DB) UpdateStats(ctx context.Context, libraryID string, totalFiles, dueToday int) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE workspaces SET total_files = ?, files_due_today = ? WHERE library_id = ?`,
		totalFiles, dueToday, libraryID)
	if err != nil {
		return fmt.Errorf("registry: update stats %s: %w", libraryID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("registry: update stats %s: %w", libraryID, apperr.ErrNotFound)
	}
	return nil
}

// Remove forgets a workspace. Its files and store are left alone.
func (db *DB) Remove(ctx context.Context, libraryID string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM workspaces WHERE library_id = ?`, libraryID)
	if err != nil {
		return fmt.Errorf("registry: remove %s: %w", libraryID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("registry: remove %s: %w", libraryID, apperr.ErrNotFound)
	}
	return nil
}
