package store

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/lectern/internal/models"
)

// SetQueueConfig inserts or replaces one tunable.
func (q *Queries) SetQueueConfig(ctx context.Context, c models.QueueConfig) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO queue_config (library_id, queue_name, config_key, config_value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(library_id, queue_name, config_key) DO UPDATE SET config_value = excluded.config_value
	`, c.LibraryID, string(c.Queue), c.Key, c.Value)
	if err != nil {
		return fmt.Errorf("store: set queue config %s.%s: %w", c.Queue, c.Key, err)
	}
	return nil
}

// AllQueueConfig returns every tunable of the library ordered by queue and key.
func (q *Queries) AllQueueConfig(ctx context.Context, libraryID string) ([]models.QueueConfig, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT queue_name, config_key, config_value FROM queue_config
		WHERE library_id = ? ORDER BY queue_name, config_key`, libraryID)
	if err != nil {
		return nil, fmt.Errorf("store: all queue config: %w", err)
	}
	defer rows.Close()

	var out []models.QueueConfig
	for rows.Next() {
		c := models.QueueConfig{LibraryID: libraryID}
		var queue string
		if err := rows.Scan(&queue, &c.Key, &c.Value); err != nil {
			return nil, fmt.Errorf("store: scan queue config: %w", err)
		}
		c.Queue = models.QueueName(queue)
		out = append(out, c)
	}
	return out, rows.Err()
}

// SetQueue places a note in queue, replacing any previous membership.
func (q *Queries) SetQueue(ctx context.Context, libraryID, path string, queue models.QueueName) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO queue_membership (library_id, relative_path, queue_name)
		VALUES (?, ?, ?)
		ON CONFLICT(library_id, relative_path) DO UPDATE SET queue_name = excluded.queue_name
	`, libraryID, path, string(queue))
	if err != nil {
		return fmt.Errorf("store: set queue %s -> %s: %w", path, queue, err)
	}
	return nil
}

// DueNotes returns notes of queue due at or before the cutoff. With fifo
// set they come oldest-added first, otherwise by due time then rank.
// A limit of zero or less means no limit.
func (q *Queries) DueNotes(ctx context.Context, libraryID string, queue models.QueueName, before time.Time, limit int, fifo bool) ([]models.Note, error) {
	order := ` ORDER BY n.due_time, n.rank, n.relative_path`
	if fifo {
		order = ` ORDER BY n.added_time, n.relative_path`
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := q.q.QueryContext(ctx, noteSelect+`
		WHERE n.library_id = ? AND m.queue_name = ? AND n.due_time <= ?`+order+` LIMIT ?`,
		libraryID, string(queue), dbTime(before), limit)
	if err != nil {
		return nil, fmt.Errorf("store: due notes %s: %w", queue, err)
	}
	return collectNotes(rows)
}

// CountDue counts notes due at or before the cutoff, archived excluded.
func (q *Queries) CountDue(ctx context.Context, libraryID string, before time.Time) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notes n
		JOIN queue_membership m ON m.library_id = n.library_id AND m.relative_path = n.relative_path
		WHERE n.library_id = ? AND m.queue_name <> ? AND n.due_time <= ?`,
		libraryID, string(models.QueueArchived), dbTime(before)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count due: %w", err)
	}
	return n, nil
}
