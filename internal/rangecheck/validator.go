// Package rangecheck verifies that an excerpt's recorded range still
// covers the text it was cut from and relocates it when the parent moved.
package rangecheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/lectern/internal/apperr"
	"github.com/starford/lectern/internal/models"
	"github.com/starford/lectern/internal/storage"
	"github.com/starford/lectern/internal/store"
)

// Status is the outcome of a validation.
type Status string

const (
	StatusValid     Status = "valid"
	StatusMoved     Status = "moved"
	StatusLost      Status = "lost"
	StatusUnchecked Status = "unchecked"
)

// Result reports a validation. Range is the range now on record; for a
// moved excerpt Previous holds the one it replaced. Error is set only by
// callers that check many excerpts and keep going past a failed one.
type Result struct {
	Path     string        `json:"path"`
	Status   Status        `json:"status"`
	Range    models.Range  `json:"range"`
	Previous *models.Range `json:"previous,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Validator checks excerpts of one library.
type Validator struct {
	db     *store.DB
	files  storage.Provider
	logger *slog.Logger
}

// New returns a Validator.
func New(db *store.DB, files storage.Provider, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{db: db, files: files, logger: logger}
}

// Validate checks notePath's range against its parent's current content.
// A moved excerpt has its range rewritten; a lost one is left untouched.
func (v *Validator) Validate(ctx context.Context, libraryID, notePath string) (Result, error) {
	src, err := v.db.Source(ctx, libraryID, notePath)
	if errors.Is(err, apperr.ErrNotFound) {
		return Result{Path: notePath, Status: StatusUnchecked}, nil
	}
	if err != nil {
		return Result{}, err
	}
	res := Result{Path: notePath, Status: StatusUnchecked, Range: src.Range}
	if !src.Type.Fingerprinted() || src.Hash == "" || src.ParentPath == "" {
		return res, nil
	}

	doc, err := Load(v.files, src.ParentPath, src.Type)
	if err != nil {
		return Result{}, fmt.Errorf("rangecheck: load parent of %s: %w", notePath, err)
	}

	if i, j, err := doc.Span(src.Range); err == nil && doc.Hash(i, j) == src.Hash {
		res.Status = StatusValid
		return res, nil
	}

	size := doc.WindowSize(src.Range)
	start, ok := doc.Find(src.Hash, size)
	if !ok {
		v.logger.Warn("excerpt lost",
			slog.String("path", notePath),
			slog.String("parent", src.ParentPath),
			slog.String("range", src.Range.String()),
		)
		res.Status = StatusLost
		return res, nil
	}

	moved := doc.Range(start, start+size)
	err = v.db.WithTx(ctx, func(tx *store.Tx) error {
		return tx.UpdateSourceRange(ctx, libraryID, notePath, moved)
	})
	if err != nil {
		return Result{}, err
	}
	v.logger.Info("excerpt moved",
		slog.String("path", notePath),
		slog.String("from", src.Range.String()),
		slog.String("to", moved.String()),
	)
	prev := src.Range
	res.Status = StatusMoved
	res.Range = moved
	res.Previous = &prev
	return res, nil
}
