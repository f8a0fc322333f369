// Package readerservice is the action surface shared by the CLI, the HTTP
// API and the MCP tools. Every call opens the library it names, does its
// work and closes the library again; calls are serialised.
package readerservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/starford/lectern/internal/apperr"
	"github.com/starford/lectern/internal/extraction"
	"github.com/starford/lectern/internal/models"
	"github.com/starford/lectern/internal/rangecheck"
	"github.com/starford/lectern/internal/reconstitute"
	"github.com/starford/lectern/internal/registry"
	"github.com/starford/lectern/internal/scheduler"
	"github.com/starford/lectern/internal/sse"
	"github.com/starford/lectern/internal/tunables"
	"github.com/starford/lectern/internal/workspace"
)

// Notifier receives note activity. *sse.Broker satisfies it.
type Notifier interface {
	PublishNoteEvent(kind, libraryID, path string)
}

type nopNotifier struct{}

func (nopNotifier) PublishNoteEvent(string, string, string) {}

// Service coordinates workspaces, the registry and the review engine.
type Service struct {
	mu       sync.Mutex
	registry *registry.DB
	tunables *tunables.Set
	notifier Notifier
	now      func() time.Time
	rng      *rand.Rand
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithTunables sets the tunables new libraries are seeded with.
func WithTunables(t *tunables.Set) Option {
	return func(s *Service) { s.tunables = t }
}

// WithNotifier sets where note events go.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRand sets the jitter source of the intermediate queue. Nil disables
// jitter.
func WithRand(rng *rand.Rand) Option {
	return func(s *Service) { s.rng = rng }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a Service over the workspace registry.
func New(reg *registry.DB, opts ...Option) *Service {
	s := &Service{
		registry: reg,
		tunables: tunables.Defaults(),
		notifier: nopNotifier{},
		now:      time.Now,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// open acquires the workspace registered as libraryID. Callers must Close it.
func (s *Service) open(ctx context.Context, libraryID string) (*workspace.Workspace, error) {
	entry, err := s.registry.Get(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	ws, err := workspace.OpenExisting(ctx, entry.FolderPath)
	if err != nil {
		return nil, err
	}
	if ws.Library.ID != libraryID {
		ws.Close()
		return nil, fmt.Errorf("readerservice: %s now holds library %s, not %s: %w",
			entry.FolderPath, ws.Library.ID, libraryID, apperr.ErrConflict)
	}
	return ws, nil
}

func (s *Service) scheduler(ws *workspace.Workspace) *scheduler.Scheduler {
	return scheduler.New(ws.DB,
		scheduler.WithClock(s.now),
		scheduler.WithRand(s.rng),
		scheduler.WithLogger(s.logger),
	)
}

// RegisterLibrary opens (creating on first use) the workspace at folder
// and records it in the registry.
func (s *Service) RegisterLibrary(ctx context.Context, folder string) (models.Library, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	abs, err := filepath.Abs(folder)
	if err != nil {
		return models.Library{}, fmt.Errorf("readerservice: resolve %s: %w", folder, err)
	}
	ws, err := workspace.Open(ctx, abs, s.tunables)
	if err != nil {
		return models.Library{}, err
	}
	defer ws.Close()

	// A folder whose store was lost comes back with a fresh library ID;
	// the entry of the old one is dropped so the folder can be recorded again.
	stale, err := s.registry.ByFolder(ctx, ws.Root())
	switch {
	case err == nil && stale.LibraryID != ws.Library.ID:
		if err := s.registry.Remove(ctx, stale.LibraryID); err != nil {
			return models.Library{}, err
		}
		s.logger.Warn("stale library replaced",
			slog.String("folder", ws.Root()),
			slog.String("old", stale.LibraryID),
			slog.String("new", ws.Library.ID),
		)
	case err != nil && !errors.Is(err, apperr.ErrNotFound):
		return models.Library{}, err
	}

	err = s.registry.Touch(ctx, models.Workspace{
		LibraryID:  ws.Library.ID,
		FolderPath: ws.Root(),
		FolderName: filepath.Base(ws.Root()),
		StorePath:  workspace.StorePath(ws.Root()),
	})
	if err != nil {
		return models.Library{}, err
	}
	s.logger.Info("library registered", slog.String("library", ws.Library.ID), slog.String("folder", ws.Root()))
	return ws.Library, nil
}

// Libraries lists every registered workspace.
func (s *Service) Libraries(ctx context.Context) ([]models.Workspace, error) {
	return s.registry.List(ctx)
}

// AddResult reports AddToQueue.
type AddResult struct {
	OK            bool `json:"ok"`
	AlreadyExists bool `json:"already_exists"`
}

// AddToQueue enrols an existing document in the new queue.
func (s *Service) AddToQueue(ctx context.Context, libraryID, path string) (AddResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, err := s.open(ctx, libraryID)
	if err != nil {
		return AddResult{}, err
	}
	defer ws.Close()

	ok, err := ws.Files.Exists(path)
	if err != nil {
		return AddResult{}, err
	}
	if !ok {
		return AddResult{}, fmt.Errorf("readerservice: %s: %w", path, apperr.ErrNotFound)
	}
	exists, err := s.scheduler(ws).AddToQueue(ctx, libraryID, path)
	if err != nil {
		return AddResult{}, err
	}
	if !exists {
		s.notifier.PublishNoteEvent(sse.KindMoved, libraryID, path)
	}
	return AddResult{OK: true, AlreadyExists: exists}, nil
}

// Note returns one note with its queue.
func (s *Service) Note(ctx context.Context, libraryID, path string) (models.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, err := s.open(ctx, libraryID)
	if err != nil {
		return models.Note{}, err
	}
	defer ws.Close()
	return ws.DB.Note(ctx, libraryID, path)
}

// RecordFeedback applies feedback to a note.
func (s *Service) RecordFeedback(ctx context.Context, libraryID, path, feedback string) (scheduler.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, err := s.open(ctx, libraryID)
	if err != nil {
		return scheduler.Result{}, err
	}
	defer ws.Close()

	res, err := s.scheduler(ws).RecordFeedback(ctx, libraryID, path, feedback)
	if err != nil {
		return scheduler.Result{}, err
	}
	s.notifier.PublishNoteEvent(sse.KindReviewed, libraryID, path)
	return res, nil
}

// MoveToQueue moves a note to another queue.
func (s *Service) MoveToQueue(ctx context.Context, libraryID, path, queue string) (models.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, err := s.open(ctx, libraryID)
	if err != nil {
		return models.Note{}, err
	}
	defer ws.Close()

	n, err := s.scheduler(ws).MoveToQueue(ctx, libraryID, path, queue)
	if err != nil {
		return models.Note{}, err
	}
	s.notifier.PublishNoteEvent(sse.KindMoved, libraryID, path)
	return n, nil
}

// Forget resets a note's review history.
func (s *Service) Forget(ctx context.Context, libraryID, path string) (models.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, err := s.open(ctx, libraryID)
	if err != nil {
		return models.Note{}, err
	}
	defer ws.Close()

	n, err := s.scheduler(ws).Forget(ctx, libraryID, path)
	if err != nil {
		return models.Note{}, err
	}
	s.notifier.PublishNoteEvent(sse.KindMoved, libraryID, path)
	return n, nil
}

// Extract cuts an excerpt out of a note.
func (s *Service) Extract(ctx context.Context, libraryID string, req extraction.Request) (extraction.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, err := s.open(ctx, libraryID)
	if err != nil {
		return extraction.Result{}, err
	}
	defer ws.Close()

	res, err := extraction.New(ws.DB, ws.Files, s.now, s.logger).Extract(ctx, libraryID, req)
	if err != nil {
		return extraction.Result{}, err
	}
	s.notifier.PublishNoteEvent(sse.KindExtracted, libraryID, res.ChildPath)
	return res, nil
}

// DueToday lists the notes of one library due today.
func (s *Service) DueToday(ctx context.Context, libraryID string) ([]models.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dueToday(ctx, libraryID)
}

func (s *Service) dueToday(ctx context.Context, libraryID string) ([]models.Note, error) {
	ws, err := s.open(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	defer ws.Close()

	due, err := s.scheduler(ws).DueToday(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	paths, err := ws.DB.NotePaths(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	// The cached count is the whole backlog, ignoring the daily cap on
	// new notes.
	backlog, err := ws.DB.CountDue(ctx, libraryID, scheduler.EndOfDay(s.now()))
	if err != nil {
		return nil, err
	}
	if err := s.registry.UpdateStats(ctx, libraryID, len(paths), backlog); err != nil {
		s.logger.Warn("registry stats not updated", slog.String("library", libraryID), slog.String("error", err.Error()))
	}
	return due, nil
}

// DueAcrossLibraries lists today's notes of every registered library. A
// library that cannot be opened is logged and skipped.
func (s *Service) DueAcrossLibraries(ctx context.Context) ([]models.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Note
	for _, e := range entries {
		due, err := s.dueToday(ctx, e.LibraryID)
		if err != nil {
			s.logger.Warn("library skipped",
				slog.String("library", e.LibraryID),
				slog.String("folder", e.FolderPath),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, due...)
	}
	return out, nil
}

// ValidateRange checks an excerpt against its parent.
func (s *Service) ValidateRange(ctx context.Context, libraryID, path string) (rangecheck.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, err := s.open(ctx, libraryID)
	if err != nil {
		return rangecheck.Result{}, err
	}
	defer ws.Close()
	return rangecheck.New(ws.DB, ws.Files, s.logger).Validate(ctx, libraryID, path)
}

// ExpandContent returns a note with its excerpts inlined.
func (s *Service) ExpandContent(ctx context.Context, libraryID, path string) (reconstitute.Expansion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, err := s.open(ctx, libraryID)
	if err != nil {
		return reconstitute.Expansion{}, err
	}
	defer ws.Close()
	return reconstitute.New(ws.DB, ws.Files, s.logger).Expand(ctx, libraryID, path)
}

// ChildrenView is what a UI shows for a note's excerpts: each checked
// against the current parent, then expanded.
type ChildrenView struct {
	Checks    []rangecheck.Result    `json:"checks"`
	Expansion reconstitute.Expansion `json:"expansion"`
}

// Children validates every direct excerpt of parent and then expands it.
// An excerpt that cannot be checked is reported with its error rather
// than failing the view.
func (s *Service) Children(ctx context.Context, libraryID, parent string) (ChildrenView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, err := s.open(ctx, libraryID)
	if err != nil {
		return ChildrenView{}, err
	}
	defer ws.Close()

	children, err := ws.DB.Children(ctx, libraryID, parent)
	if err != nil {
		return ChildrenView{}, err
	}
	v := rangecheck.New(ws.DB, ws.Files, s.logger)
	var view ChildrenView
	for _, c := range children {
		res, err := v.Validate(ctx, libraryID, c.Path)
		if err != nil {
			s.logger.Warn("validate excerpt failed",
				slog.String("library", libraryID),
				slog.String("path", c.Path),
				slog.String("error", err.Error()))
			res = rangecheck.Result{Path: c.Path, Status: rangecheck.StatusUnchecked, Range: c.Range, Error: err.Error()}
		}
		view.Checks = append(view.Checks, res)
	}
	view.Expansion, err = reconstitute.New(ws.DB, ws.Files, s.logger).Expand(ctx, libraryID, parent)
	if err != nil {
		return ChildrenView{}, err
	}
	return view, nil
}

// FileChanged reacts to an edit of path on disk. When path is a known
// note its direct excerpts are re-validated, so moved ranges are
// re-anchored before anyone reads them. Unknown files are ignored.
func (s *Service) FileChanged(ctx context.Context, libraryID, path string) ([]rangecheck.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, err := s.open(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	defer ws.Close()

	known, err := ws.DB.NoteExists(ctx, libraryID, path)
	if err != nil || !known {
		return nil, err
	}
	children, err := ws.DB.Children(ctx, libraryID, path)
	if err != nil {
		return nil, err
	}
	v := rangecheck.New(ws.DB, ws.Files, s.logger)
	out := make([]rangecheck.Result, 0, len(children))
	for _, c := range children {
		res, err := v.Validate(ctx, libraryID, c.Path)
		if err != nil {
			s.logger.Warn("revalidate excerpt failed",
				slog.String("library", libraryID),
				slog.String("path", c.Path),
				slog.String("error", err.Error()))
			continue
		}
		if res.Status == rangecheck.StatusMoved {
			s.notifier.PublishNoteEvent(sse.KindChanged, libraryID, c.Path)
		}
		out = append(out, res)
	}
	s.notifier.PublishNoteEvent(sse.KindChanged, libraryID, path)
	return out, nil
}

// FindNotes returns the note paths of a library that fuzzily match query,
// closest first.
func (s *Service) FindNotes(ctx context.Context, libraryID, query string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, err := s.open(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	defer ws.Close()

	paths, err := ws.DB.NotePaths(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	ranks := fuzzy.RankFindNormalizedFold(query, paths)
	sort.Sort(ranks)

	out := make([]string, 0, len(ranks))
	for _, r := range ranks {
		out = append(out, r.Target)
	}
	return out, nil
}

// IsCallerError reports whether err was caused by the request rather
// than by a store or file failure.
func IsCallerError(err error) bool {
	return scheduler.IsCallerError(err) ||
		errors.Is(err, apperr.ErrDuplicateRange) ||
		errors.Is(err, apperr.ErrInvalidRange)
}
