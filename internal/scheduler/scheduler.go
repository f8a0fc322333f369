// Package scheduler runs the review state machine: one update rule per
// queue kind, applied to a note on explicit feedback.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/starford/lectern/internal/apperr"
	"github.com/starford/lectern/internal/models"
	"github.com/starford/lectern/internal/store"
)

// Scheduler applies queue transitions to one library's store.
type Scheduler struct {
	db     *store.DB
	now    func() time.Time
	rng    *rand.Rand
	logger *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithRand sets the jitter source. Nil disables jitter.
func WithRand(rng *rand.Rand) Option {
	return func(s *Scheduler) { s.rng = rng }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New returns a Scheduler over db.
func New(db *store.DB, opts ...Option) *Scheduler {
	s := &Scheduler{
		db:     db,
		now:    time.Now,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Result describes a note after feedback was recorded.
type Result struct {
	Note      models.Note      `json:"note"`
	Queue     models.QueueName `json:"queue"`
	NextDueIn int              `json:"next_due_in"`
}

// AddToQueue places a note in the new queue. It reports true, and changes
// nothing, when the note is already known.
func (s *Scheduler) AddToQueue(ctx context.Context, libraryID, path string) (bool, error) {
	exists, err := s.db.NoteExists(ctx, libraryID, path)
	if err != nil {
		return false, err
	}
	if exists {
		return true, nil
	}

	cfg, err := LoadConfig(ctx, s.db, libraryID)
	if err != nil {
		return false, err
	}
	rank, err := cfg.InitialRank()
	if err != nil {
		return false, err
	}
	rotation, err := cfg.RotationInterval()
	if err != nil {
		return false, err
	}

	now := s.now()
	n := models.Note{
		LibraryID:        libraryID,
		Path:             path,
		Queue:            models.QueueNew,
		AddedAt:          now,
		DueAt:            now,
		Rank:             rank,
		RotationInterval: rotation,
		LastQueueChange:  now,
	}
	err = s.db.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.InsertNote(ctx, n); err != nil {
			return err
		}
		return tx.SetQueue(ctx, libraryID, path, models.QueueNew)
	})
	if err != nil {
		return false, err
	}
	s.logger.Info("note added", slog.String("library", libraryID), slog.String("path", path))
	return false, nil
}

// RecordFeedback applies feedback to the note's current queue.
func (s *Scheduler) RecordFeedback(ctx context.Context, libraryID, path, feedback string) (Result, error) {
	n, err := s.db.Note(ctx, libraryID, path)
	if err != nil {
		return Result{}, err
	}
	if _, err := models.ParseQueue(string(n.Queue)); err != nil {
		return Result{}, fmt.Errorf("scheduler: note %s: %w", path, err)
	}
	fb, err := models.ParseFeedback(n.Queue, feedback)
	if err != nil {
		return Result{}, err
	}
	cfg, err := LoadConfig(ctx, s.db, libraryID)
	if err != nil {
		return Result{}, err
	}

	now := s.now()
	prevQueue := n.Queue
	updated, err := Apply(n, fb, cfg, now, s.rng)
	if err != nil {
		return Result{}, err
	}

	err = s.db.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.UpdateNote(ctx, updated); err != nil {
			return err
		}
		if updated.Queue != prevQueue {
			return tx.SetQueue(ctx, libraryID, path, updated.Queue)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	s.logger.Info("feedback recorded",
		slog.String("path", path),
		slog.String("queue", string(updated.Queue)),
		slog.String("feedback", string(fb)),
		slog.Int("due_in", updated.DueIn(now)),
	)
	return Result{Note: updated, Queue: updated.Queue, NextDueIn: updated.DueIn(now)}, nil
}

// Apply computes the effect of fb on n without touching the store.
func Apply(n models.Note, fb models.Feedback, cfg Config, now time.Time, rng *rand.Rand) (models.Note, error) {
	if _, err := models.ParseFeedback(n.Queue, string(fb)); err != nil {
		return models.Note{}, err
	}
	n.LastRevisedAt = now

	switch {
	case n.Queue == models.QueueNew:
		if fb == models.FeedbackSkip {
			n.DueAt = addDays(now, 1)
			return n, nil
		}
		return Enter(n, models.QueueProcessing, cfg, now)

	case n.Queue == models.QueueProcessing:
		switch fb {
		case models.FeedbackSkip:
			n.DueAt = addDays(now, 1)
		case models.FeedbackAgain:
			n.DueAt = now
		default:
			rotation, err := rotationOf(n, cfg)
			if err != nil {
				return models.Note{}, err
			}
			n.RotationInterval = rotation
			n.DueAt = addDays(now, rotation)
		}
		return n, nil

	case n.Queue == models.QueueIntermediate:
		p, err := cfg.Intermediate()
		if err != nil {
			return models.Note{}, err
		}
		n.IntermediateInterval = StepIntermediate(n.IntermediateInterval, fb, p, rng)
		n.DueAt = addDays(now, n.IntermediateInterval)
		return n, nil

	case n.Queue.IsSpaced():
		p, err := cfg.Spaced(n.Queue)
		if err != nil {
			return models.Note{}, err
		}
		q, _ := fb.Quality()
		if n.Easiness == 0 {
			n.Easiness = p.InitialEF
		}
		return SM2(n, q, p, now), nil
	}
	return models.Note{}, fmt.Errorf("scheduler: %w: %q", apperr.ErrUnknownQueue, n.Queue)
}

func rotationOf(n models.Note, cfg Config) (int, error) {
	if n.RotationInterval > 0 {
		return n.RotationInterval, nil
	}
	return cfg.RotationInterval()
}

// Enter moves n into target and sets the due time the target starts with.
// Queue-specific state that is still zero is seeded from cfg.
func Enter(n models.Note, target models.QueueName, cfg Config, now time.Time) (models.Note, error) {
	n, err := seed(n, target, cfg)
	if err != nil {
		return models.Note{}, err
	}
	switch {
	case target == models.QueueArchived:
		n.DueAt = addDays(now, archiveHorizon)
	case target == models.QueueProcessing:
		n.DueAt = addDays(now, n.RotationInterval)
	case target == models.QueueIntermediate:
		n.DueAt = addDays(now, n.IntermediateInterval)
	default:
		n.DueAt = now
	}
	n.Queue = target
	n.LastQueueChange = now
	return n, nil
}

// EnterExcerpt places a freshly extracted note into target. Queue state
// is seeded as in Enter but the first review is excerptDelay days out,
// whichever queue the excerpt lands in.
func EnterExcerpt(n models.Note, target models.QueueName, cfg Config, now time.Time) (models.Note, error) {
	n, err := seed(n, target, cfg)
	if err != nil {
		return models.Note{}, err
	}
	n.DueAt = addDays(now, excerptDelay)
	n.Queue = target
	n.LastQueueChange = now
	return n, nil
}

// seed fills the scheduling state target needs and n does not carry yet.
func seed(n models.Note, target models.QueueName, cfg Config) (models.Note, error) {
	switch {
	case target == models.QueueArchived, target == models.QueueNew:
	case target == models.QueueProcessing:
		rotation, err := rotationOf(n, cfg)
		if err != nil {
			return models.Note{}, err
		}
		n.RotationInterval = rotation
	case target == models.QueueIntermediate:
		if n.IntermediateInterval == 0 {
			p, err := cfg.Intermediate()
			if err != nil {
				return models.Note{}, err
			}
			n.IntermediateInterval = p.InitialInterval
		}
	case target.IsSpaced():
		p, err := cfg.Spaced(target)
		if err != nil {
			return models.Note{}, err
		}
		if n.Easiness == 0 {
			n.Easiness = p.InitialEF
		}
		n.Easiness = clamp(n.Easiness, p.MinEF, p.MaxEF)
	default:
		return models.Note{}, fmt.Errorf("scheduler: %w: %q", apperr.ErrUnknownQueue, target)
	}
	return n, nil
}

// MoveToQueue moves a note to target.
func (s *Scheduler) MoveToQueue(ctx context.Context, libraryID, path, target string) (models.Note, error) {
	q, err := models.ParseQueue(target)
	if err != nil {
		return models.Note{}, err
	}
	n, err := s.db.Note(ctx, libraryID, path)
	if err != nil {
		return models.Note{}, err
	}
	cfg, err := LoadConfig(ctx, s.db, libraryID)
	if err != nil {
		return models.Note{}, err
	}
	moved, err := Enter(n, q, cfg, s.now())
	if err != nil {
		return models.Note{}, err
	}
	if err := s.save(ctx, moved); err != nil {
		return models.Note{}, err
	}
	s.logger.Info("note moved", slog.String("path", path),
		slog.String("from", string(n.Queue)), slog.String("to", string(q)))
	return moved, nil
}

// Forget resets a note's review history and returns it to the new queue.
// Its record and lineage are kept.
func (s *Scheduler) Forget(ctx context.Context, libraryID, path string) (models.Note, error) {
	n, err := s.db.Note(ctx, libraryID, path)
	if err != nil {
		return models.Note{}, err
	}
	cfg, err := LoadConfig(ctx, s.db, libraryID)
	if err != nil {
		return models.Note{}, err
	}
	rank, err := cfg.InitialRank()
	if err != nil {
		return models.Note{}, err
	}
	rotation, err := cfg.RotationInterval()
	if err != nil {
		return models.Note{}, err
	}

	now := s.now()
	n.ReviewCount = 0
	n.Easiness = 0
	n.Interval = 0
	n.Rank = rank
	n.RotationInterval = rotation
	n.IntermediateInterval = 0
	n.LastRevisedAt = time.Time{}
	n.Queue = models.QueueNew
	n.DueAt = now
	n.LastQueueChange = now
	if err := s.save(ctx, n); err != nil {
		return models.Note{}, err
	}
	s.logger.Info("note forgotten", slog.String("path", path))
	return n, nil
}

func (s *Scheduler) save(ctx context.Context, n models.Note) error {
	return s.db.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.UpdateNote(ctx, n); err != nil {
			return err
		}
		return tx.SetQueue(ctx, n.LibraryID, n.Path, n.Queue)
	})
}

// EndOfDay is the last second of the calendar day containing t, in t's
// location.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location()).Add(-time.Second)
}

// DueToday lists the notes to review today: new notes oldest-added first
// up to max_per_day, then every other non-archived queue by due time and
// rank.
func (s *Scheduler) DueToday(ctx context.Context, libraryID string) ([]models.Note, error) {
	cfg, err := LoadConfig(ctx, s.db, libraryID)
	if err != nil {
		return nil, err
	}
	limit, err := cfg.MaxPerDay()
	if err != nil {
		return nil, err
	}
	cutoff := EndOfDay(s.now())

	var out []models.Note
	for _, q := range models.Queues {
		if q == models.QueueArchived {
			continue
		}
		var notes []models.Note
		if q == models.QueueNew {
			if limit <= 0 {
				continue
			}
			notes, err = s.db.DueNotes(ctx, libraryID, q, cutoff, limit, true)
		} else {
			notes, err = s.db.DueNotes(ctx, libraryID, q, cutoff, 0, false)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, notes...)
	}
	return out, nil
}

// IsCallerError reports whether err is a rejected request rather than a
// store failure.
func IsCallerError(err error) bool {
	return errors.Is(err, apperr.ErrUnknownQueue) ||
		errors.Is(err, apperr.ErrInvalidFeedback) ||
		errors.Is(err, apperr.ErrMissingConfig)
}
