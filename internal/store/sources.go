package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/lectern/internal/apperr"
	"github.com/starford/lectern/internal/models"
)

// MaxDescendantDepth bounds the recursive lineage walk.
const MaxDescendantDepth = 10

const sourceColumns = `library_id, relative_path, COALESCE(parent_path, ''), extract_type,
	range_start, range_end, start_page, end_page, COALESCE(source_hash, '')`

const aliasedSourceColumns = `s.library_id, s.relative_path, COALESCE(s.parent_path, ''), s.extract_type,
	s.range_start, s.range_end, s.start_page, s.end_page, COALESCE(s.source_hash, '')`

func scanSource(s rowScanner, extra ...any) (models.NoteSource, error) {
	var (
		src                models.NoteSource
		typ                string
		start, end         int
		startPage, endPage sql.NullInt64
	)
	dest := []any{&src.LibraryID, &src.Path, &src.ParentPath, &typ,
		&start, &end, &startPage, &endPage, &src.Hash}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return models.NoteSource{}, err
	}
	src.Type = models.ExtractType(typ)
	if startPage.Valid && endPage.Valid {
		src.Range = models.Range{
			Start: models.PDF(int(startPage.Int64), start),
			End:   models.PDF(int(endPage.Int64), end),
		}
	} else {
		src.Range = models.Range{Start: models.Line(start), End: models.Line(end)}
	}
	return src, nil
}

func rangeArgs(r models.Range) (start, end int, startPage, endPage any) {
	if r.Start.IsPDF() {
		return r.Start.Line, r.End.Line, r.Start.Page, r.End.Page
	}
	return r.Start.Line, r.End.Line, nil, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// InsertSource records the lineage of an extracted note.
func (q *Queries) InsertSource(ctx context.Context, src models.NoteSource) error {
	start, end, startPage, endPage := rangeArgs(src.Range)
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO note_sources (library_id, relative_path, parent_path, extract_type,
			range_start, range_end, start_page, end_page, source_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, src.LibraryID, src.Path, nullString(src.ParentPath), string(src.Type),
		start, end, startPage, endPage, nullString(src.Hash))
	if err != nil {
		return fmt.Errorf("store: insert source %s: %w", src.Path, err)
	}
	return nil
}

// Source returns the lineage record of path.
func (q *Queries) Source(ctx context.Context, libraryID, path string) (models.NoteSource, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM note_sources
		WHERE library_id = ? AND relative_path = ?`, libraryID, path)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.NoteSource{}, fmt.Errorf("store: source %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return models.NoteSource{}, fmt.Errorf("store: source %s: %w", path, err)
	}
	return src, nil
}

// SourceByRange returns the excerpt of parent already recorded for typ
// over exactly r.
func (q *Queries) SourceByRange(ctx context.Context, libraryID, parent string, typ models.ExtractType, r models.Range) (models.NoteSource, error) {
	start, end, startPage, endPage := rangeArgs(r)
	row := q.q.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM note_sources
		WHERE library_id = ? AND parent_path = ? AND extract_type = ?
			AND range_start = ? AND range_end = ? AND start_page IS ? AND end_page IS ?
		LIMIT 1`,
		libraryID, parent, string(typ), start, end, startPage, endPage)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.NoteSource{}, fmt.Errorf("store: %s excerpt of %s at %s: %w", typ, parent, r, apperr.ErrNotFound)
	}
	if err != nil {
		return models.NoteSource{}, fmt.Errorf("store: %s excerpt of %s at %s: %w", typ, parent, r, err)
	}
	return src, nil
}

// UpdateSourceRange moves a recorded range. The hash is left untouched.
func (q *Queries) UpdateSourceRange(ctx context.Context, libraryID, path string, r models.Range) error {
	start, end, startPage, endPage := rangeArgs(r)
	res, err := q.q.ExecContext(ctx, `
		UPDATE note_sources SET range_start = ?, range_end = ?, start_page = ?, end_page = ?
		WHERE library_id = ? AND relative_path = ?`,
		start, end, startPage, endPage, libraryID, path)
	if err != nil {
		return fmt.Errorf("store: update source range %s: %w", path, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("store: update source range %s: %w", path, apperr.ErrNotFound)
	}
	return nil
}

// Children returns the direct excerpts of parent ordered by range start.
func (q *Queries) Children(ctx context.Context, libraryID, parent string) ([]models.NoteSource, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT `+sourceColumns+` FROM note_sources
		WHERE library_id = ? AND parent_path = ?
		ORDER BY COALESCE(start_page, 0), range_start, relative_path`, libraryID, parent)
	if err != nil {
		return nil, fmt.Errorf("store: children of %s: %w", parent, err)
	}
	defer rows.Close()

	var out []models.NoteSource
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan source: %w", err)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// Descendant is one lineage record below a root together with its depth
// (1 for direct children).
type Descendant struct {
	models.NoteSource
	Depth int
}

// Descendants walks the excerpt tree below root, at most
// MaxDescendantDepth levels. Deepest records come first and, within a
// level, higher range starts come first.
func (q *Queries) Descendants(ctx context.Context, libraryID, root string) ([]Descendant, error) {
	rows, err := q.q.QueryContext(ctx, `
		WITH RECURSIVE tree(relative_path, depth) AS (
			SELECT relative_path, 1 FROM note_sources
			WHERE library_id = ?1 AND parent_path = ?2
			UNION
			SELECT s.relative_path, t.depth + 1 FROM note_sources s
			JOIN tree t ON s.parent_path = t.relative_path
			WHERE s.library_id = ?1 AND t.depth < ?3
		)
		SELECT `+aliasedSourceColumns+`, MIN(t.depth) AS depth
		FROM tree t
		JOIN note_sources s ON s.library_id = ?1 AND s.relative_path = t.relative_path
		GROUP BY s.relative_path
		ORDER BY depth DESC, COALESCE(s.start_page, 0) DESC, s.range_start DESC`,
		libraryID, root, MaxDescendantDepth)
	if err != nil {
		return nil, fmt.Errorf("store: descendants of %s: %w", root, err)
	}
	defer rows.Close()

	var out []Descendant
	for rows.Next() {
		var d Descendant
		src, err := scanSource(rows, &d.Depth)
		if err != nil {
			return nil, fmt.Errorf("store: scan descendant: %w", err)
		}
		d.NoteSource = src
		out = append(out, d)
	}
	return out, rows.Err()
}
