// Package extraction cuts an excerpt out of a note: it writes the excerpt
// file into the lineage's flat folder and records the new note, its queue,
// its lineage and the parent's penalty in one transaction.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/starford/lectern/internal/apperr"
	"github.com/starford/lectern/internal/flashcard"
	"github.com/starford/lectern/internal/lineage"
	"github.com/starford/lectern/internal/models"
	"github.com/starford/lectern/internal/rangecheck"
	"github.com/starford/lectern/internal/scheduler"
	"github.com/starford/lectern/internal/storage"
	"github.com/starford/lectern/internal/store"
)

// Request describes one excerpt. Text is the caller's rendering of the
// selection; when empty it is taken from the parent. Answer is only used
// for flashcards.
type Request struct {
	ParentPath string             `json:"parent_path"`
	Type       models.ExtractType `json:"extract_type"`
	Range      models.Range       `json:"range"`
	Text       string             `json:"text,omitempty"`
	Answer     string             `json:"answer,omitempty"`
}

// Result is the committed excerpt.
type Result struct {
	ChildPath string            `json:"child_path"`
	Note      models.Note       `json:"note"`
	Source    models.NoteSource `json:"source"`
}

// Coordinator performs extractions for one library.
type Coordinator struct {
	db     *store.DB
	files  storage.Provider
	now    func() time.Time
	logger *slog.Logger
}

// New returns a Coordinator. A nil now uses time.Now.
func New(db *store.DB, files storage.Provider, now func() time.Time, logger *slog.Logger) *Coordinator {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{db: db, files: files, now: now, logger: logger}
}

func (r Request) validate() error {
	if r.ParentPath == "" {
		return fmt.Errorf("%w: parent path is required", apperr.ErrInvalidRange)
	}
	if _, err := models.ParseExtractType(string(r.Type)); err != nil {
		return err
	}
	if err := r.Range.Validate(); err != nil {
		return err
	}
	if r.Range.Start.Kind != r.Type.PositionKind() {
		return fmt.Errorf("%w: %s excerpts use %s positions", apperr.ErrInvalidRange, r.Type, r.Type.PositionKind())
	}
	if first := r.Type.FirstLine(); r.Range.Start.Line < first || r.Range.End.Line < first {
		return fmt.Errorf("%w: %s excerpts count from %d", apperr.ErrInvalidRange, r.Type, first)
	}
	if r.Range.Start.IsPDF() && r.Range.Start.Page < 1 {
		return fmt.Errorf("%w: pages count from 1", apperr.ErrInvalidRange)
	}
	return nil
}

// Extract creates the excerpt described by req under parentPath's lineage
// folder. Extracting a range that already has an excerpt fails with
// apperr.ErrDuplicateRange and changes nothing.
func (c *Coordinator) Extract(ctx context.Context, libraryID string, req Request) (Result, error) {
	if err := req.validate(); err != nil {
		return Result{}, err
	}
	if _, err := c.db.Note(ctx, libraryID, req.ParentPath); err != nil {
		return Result{}, fmt.Errorf("extraction: parent: %w", err)
	}
	if err := rangeTaken(ctx, c.db, libraryID, req); err != nil {
		return Result{}, err
	}
	cfg, err := scheduler.LoadConfig(ctx, c.db, libraryID)
	if err != nil {
		return Result{}, err
	}
	penalty, err := cfg.RankPenalty()
	if err != nil {
		return Result{}, err
	}
	queue := models.QueueIntermediate
	if req.Type == models.ExtractFlashcard {
		if queue, err = cfg.FlashcardQueue(); err != nil {
			return Result{}, err
		}
	}

	folder, err := lineage.FindTopLevelFolder(ctx, c.db, libraryID, req.ParentPath)
	if err != nil {
		return Result{}, err
	}
	if err := c.files.MkdirAll(folder); err != nil {
		return Result{}, fmt.Errorf("extraction: create folder: %w", err)
	}

	content, hash, slugText, err := c.render(req)
	if err != nil {
		return Result{}, err
	}

	topLevel, err := c.isTopLevel(ctx, libraryID, req.ParentPath)
	if err != nil {
		return Result{}, err
	}
	childPath := path.Join(folder, lineage.GenerateChildName(req.ParentPath, topLevel, req.Range, slugText))
	if err := c.checkFree(ctx, libraryID, childPath); err != nil {
		return Result{}, err
	}

	if err := c.files.Create(childPath, []byte(content)); err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			return Result{}, fmt.Errorf("extraction: %s: %w", childPath, apperr.ErrDuplicateRange)
		}
		return Result{}, fmt.Errorf("extraction: write %s: %w", childPath, err)
	}

	now := c.now()
	src := models.NoteSource{
		LibraryID:  libraryID,
		Path:       childPath,
		ParentPath: req.ParentPath,
		Type:       req.Type,
		Range:      req.Range,
		Hash:       hash,
	}
	var child models.Note
	err = c.db.WithTx(ctx, func(tx *store.Tx) error {
		if err := rangeTaken(ctx, tx, libraryID, req); err != nil {
			return err
		}
		parent, err := tx.Note(ctx, libraryID, req.ParentPath)
		if err != nil {
			return err
		}
		child, err = scheduler.EnterExcerpt(models.Note{
			LibraryID:        libraryID,
			Path:             childPath,
			AddedAt:          now,
			Rank:             parent.Rank,
			RotationInterval: parent.RotationInterval,
		}, queue, cfg, now)
		if err != nil {
			return err
		}

		if err := tx.InsertNote(ctx, child); err != nil {
			return err
		}
		if err := tx.SetQueue(ctx, libraryID, childPath, queue); err != nil {
			return err
		}
		if err := tx.InsertSource(ctx, src); err != nil {
			return err
		}
		parent.ExtractionCount++
		parent.Rank += penalty
		return tx.UpdateNote(ctx, parent)
	})
	if err != nil {
		if rmErr := c.files.Delete(childPath); rmErr != nil {
			c.logger.Error("orphaned excerpt file",
				slog.String("path", childPath),
				slog.String("error", rmErr.Error()),
			)
		}
		return Result{}, fmt.Errorf("extraction: record %s: %w", childPath, err)
	}

	c.logger.Info("excerpt created",
		slog.String("parent", req.ParentPath),
		slog.String("path", childPath),
		slog.String("type", string(req.Type)),
		slog.String("queue", string(queue)),
	)
	return Result{ChildPath: childPath, Note: child, Source: src}, nil
}

func (c *Coordinator) isTopLevel(ctx context.Context, libraryID, parent string) (bool, error) {
	src, err := c.db.Source(ctx, libraryID, parent)
	if errors.Is(err, apperr.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return src.ParentPath == "", nil
}

type rangeLookup interface {
	SourceByRange(ctx context.Context, libraryID, parent string, typ models.ExtractType, r models.Range) (models.NoteSource, error)
}

// rangeTaken fails with apperr.ErrDuplicateRange when the parent already
// has an excerpt of the same kind over the same range, whatever its name.
func rangeTaken(ctx context.Context, q rangeLookup, libraryID string, req Request) error {
	src, err := q.SourceByRange(ctx, libraryID, req.ParentPath, req.Type, req.Range)
	switch {
	case err == nil:
		return fmt.Errorf("extraction: %s of %s is already %s: %w", req.Range, req.ParentPath, src.Path, apperr.ErrDuplicateRange)
	case errors.Is(err, apperr.ErrNotFound):
		return nil
	default:
		return err
	}
}

func (c *Coordinator) checkFree(ctx context.Context, libraryID, childPath string) error {
	onDisk, err := c.files.Exists(childPath)
	if err != nil {
		return fmt.Errorf("extraction: stat %s: %w", childPath, err)
	}
	recorded, err := c.db.NoteExists(ctx, libraryID, childPath)
	if err != nil {
		return err
	}
	if onDisk || recorded {
		return fmt.Errorf("extraction: %s: %w", childPath, apperr.ErrDuplicateRange)
	}
	return nil
}

// render produces the excerpt file body, its fingerprint (empty for
// kinds without a stable text rendering) and the text its name is
// derived from.
func (c *Coordinator) render(req Request) (content, hash, slugText string, err error) {
	switch req.Type {
	case models.ExtractTextLines, models.ExtractPDFText:
		excerpt, h, err := rangecheck.Excerpt(c.files, req.ParentPath, req.Type, req.Range)
		if err != nil {
			return "", "", "", fmt.Errorf("extraction: %w", err)
		}
		text := req.Text
		if text == "" {
			text = excerpt
		}
		return ensureNewline(text), h, text, nil

	case models.ExtractFlashcard:
		excerpt, h, err := rangecheck.Excerpt(c.files, req.ParentPath, req.Type, req.Range)
		if err != nil {
			return "", "", "", fmt.Errorf("extraction: %w", err)
		}
		question := req.Text
		if question == "" {
			question = excerpt
		}
		card := flashcard.Card{Question: question, Answer: req.Answer, Context: req.ParentPath}
		return flashcard.Format(card), h, question, nil

	case models.ExtractPDFPage:
		text := req.Text
		if text == "" {
			pages, err := c.files.PageText(req.ParentPath, req.Range.Start.Line, req.Range.End.Line)
			if err != nil {
				return "", "", "", fmt.Errorf("extraction: %w", err)
			}
			text = strings.Join(pages, "\n\n")
		}
		return ensureNewline(text), "", text, nil

	default:
		return ensureNewline(req.Text), "", req.Text, nil
	}
}

func ensureNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
