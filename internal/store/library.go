package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/lectern/internal/apperr"
	"github.com/starford/lectern/internal/models"
)

// CreateLibrary inserts the library row. Libraries are immutable once created.
func (q *Queries) CreateLibrary(ctx context.Context, lib models.Library) error {
	_, err := q.q.ExecContext(ctx, `INSERT INTO libraries (library_id, name) VALUES (?, ?)`, lib.ID, lib.Name)
	if err != nil {
		return fmt.Errorf("store: create library %s: %w", lib.ID, err)
	}
	return nil
}

// Library returns the library this store belongs to.
func (q *Queries) Library(ctx context.Context) (models.Library, error) {
	var lib models.Library
	err := q.q.QueryRowContext(ctx, `SELECT library_id, name FROM libraries ORDER BY rowid LIMIT 1`).
		Scan(&lib.ID, &lib.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Library{}, fmt.Errorf("store: library: %w", apperr.ErrNotFound)
	}
	if err != nil {
		return models.Library{}, fmt.Errorf("store: library: %w", err)
	}
	return lib, nil
}
