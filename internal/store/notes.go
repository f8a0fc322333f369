package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/lectern/internal/apperr"
	"github.com/starford/lectern/internal/models"
)

const noteSelect = `
	SELECT n.library_id, n.relative_path, COALESCE(m.queue_name, ''),
	       n.added_time, n.last_revised_time, n.review_count, n.easiness, n.rank,
	       n.interval, n.due_time, n.rotation_interval, n.intermediate_interval,
	       n.extraction_count, n.last_queue_change
	FROM notes n
	LEFT JOIN queue_membership m
	       ON m.library_id = n.library_id AND m.relative_path = n.relative_path`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(s rowScanner) (models.Note, error) {
	var (
		n                     models.Note
		queue                 string
		lastRevised, lastMove sql.NullTime
	)
	err := s.Scan(
		&n.LibraryID, &n.Path, &queue,
		&n.AddedAt, &lastRevised, &n.ReviewCount, &n.Easiness, &n.Rank,
		&n.Interval, &n.DueAt, &n.RotationInterval, &n.IntermediateInterval,
		&n.ExtractionCount, &lastMove,
	)
	if err != nil {
		return models.Note{}, err
	}
	n.Queue = models.QueueName(queue)
	if lastRevised.Valid {
		n.LastRevisedAt = lastRevised.Time
	}
	if lastMove.Valid {
		n.LastQueueChange = lastMove.Time
	}
	return n, nil
}

// dbTime normalises timestamps to whole UTC seconds so stored values
// compare correctly as text. The zero time maps to NULL.
func dbTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Truncate(time.Second)
}

// InsertNote creates the note record. It does not place it in a queue.
func (q *Queries) InsertNote(ctx context.Context, n models.Note) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO notes (library_id, relative_path, added_time, last_revised_time,
			review_count, easiness, rank, interval, due_time, rotation_interval,
			intermediate_interval, extraction_count, last_queue_change)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		n.LibraryID, n.Path, dbTime(n.AddedAt), dbTime(n.LastRevisedAt),
		n.ReviewCount, n.Easiness, n.Rank, n.Interval, dbTime(n.DueAt), n.RotationInterval,
		n.IntermediateInterval, n.ExtractionCount, dbTime(n.LastQueueChange),
	)
	if err != nil {
		return fmt.Errorf("store: insert note %s: %w", n.Path, err)
	}
	return nil
}

// UpdateNote overwrites every mutable field of an existing note.
func (q *Queries) UpdateNote(ctx context.Context, n models.Note) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE notes
		SET last_revised_time = ?, review_count = ?, easiness = ?, rank = ?, interval = ?,
		    due_time = ?, rotation_interval = ?, intermediate_interval = ?,
		    extraction_count = ?, last_queue_change = ?
		WHERE library_id = ? AND relative_path = ?
	`,
		dbTime(n.LastRevisedAt), n.ReviewCount, n.Easiness, n.Rank, n.Interval,
		dbTime(n.DueAt), n.RotationInterval, n.IntermediateInterval,
		n.ExtractionCount, dbTime(n.LastQueueChange),
		n.LibraryID, n.Path,
	)
	if err != nil {
		return fmt.Errorf("store: update note %s: %w", n.Path, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("store: update note %s: %w", n.Path, apperr.ErrNotFound)
	}
	return nil
}

// Note returns one note together with its current queue.
func (q *Queries) Note(ctx context.Context, libraryID, path string) (models.Note, error) {
	row := q.q.QueryRowContext(ctx, noteSelect+`
		WHERE n.library_id = ? AND n.relative_path = ?`, libraryID, path)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Note{}, fmt.Errorf("store: note %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return models.Note{}, fmt.Errorf("store: note %s: %w", path, err)
	}
	return n, nil
}

// NoteExists reports whether a note record exists for path.
func (q *Queries) NoteExists(ctx context.Context, libraryID, path string) (bool, error) {
	var one int
	err := q.q.QueryRowContext(ctx,
		`SELECT 1 FROM notes WHERE library_id = ? AND relative_path = ?`, libraryID, path).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: note exists %s: %w", path, err)
	}
	return true, nil
}

// NotePaths returns every note path of the library, sorted.
func (q *Queries) NotePaths(ctx context.Context, libraryID string) ([]string, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT relative_path FROM notes WHERE library_id = ? ORDER BY relative_path`, libraryID)
	if err != nil {
		return nil, fmt.Errorf("store: note paths: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("store: scan note path: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func collectNotes(rows *sql.Rows) ([]models.Note, error) {
	defer rows.Close()
	var out []models.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan note: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
