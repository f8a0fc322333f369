// Package reconstitute rebuilds a note's full text by inlining every
// excerpt taken from it, each excerpt expanded first.
package reconstitute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/starford/lectern/internal/apperr"
	"github.com/starford/lectern/internal/fingerprint"
	"github.com/starford/lectern/internal/models"
	"github.com/starford/lectern/internal/storage"
	"github.com/starford/lectern/internal/store"
)

// Child is one direct excerpt of the expanded note.
type Child struct {
	Path      string             `json:"path"`
	Type      models.ExtractType `json:"extract_type"`
	Range     models.Range       `json:"range"`
	Content   string             `json:"content"`
	LineCount int                `json:"line_count"`
	Missing   bool               `json:"missing,omitempty"`
}

// Expansion is a note with its excerpts inlined.
type Expansion struct {
	Path     string  `json:"path"`
	Content  string  `json:"content"`
	Children []Child `json:"children"`
}

// Expander expands notes of one library.
type Expander struct {
	db     *store.DB
	files  storage.Provider
	logger *slog.Logger
}

// New returns an Expander.
func New(db *store.DB, files storage.Provider, logger *slog.Logger) *Expander {
	if logger == nil {
		logger = slog.Default()
	}
	return &Expander{db: db, files: files, logger: logger}
}

func cycleSentinel(path string) string {
	return "[[cycle: " + path + "]]"
}

type expansion struct {
	tree    map[string][]models.NoteSource
	content map[string][]string
	missing map[string]bool
	memo    map[string][]string
	onStack map[string]bool
	logger  *slog.Logger
}

// Expand returns notePath's content with every text-lines excerpt
// spliced back in, deepest first.
func (e *Expander) Expand(ctx context.Context, libraryID, notePath string) (Expansion, error) {
	root, err := e.files.Read(notePath)
	if err != nil {
		return Expansion{}, fmt.Errorf("reconstitute: read %s: %w", notePath, err)
	}
	descendants, err := e.db.Descendants(ctx, libraryID, notePath)
	if err != nil {
		return Expansion{}, err
	}

	x := &expansion{
		tree:    make(map[string][]models.NoteSource),
		content: map[string][]string{notePath: fingerprint.SplitLines(string(root))},
		missing: make(map[string]bool),
		memo:    make(map[string][]string),
		onStack: make(map[string]bool),
		logger:  e.logger,
	}
	for _, d := range descendants {
		x.tree[d.ParentPath] = append(x.tree[d.ParentPath], d.NoteSource)
		if _, seen := x.content[d.Path]; seen || x.missing[d.Path] {
			continue
		}
		data, err := e.files.Read(d.Path)
		if errors.Is(err, apperr.ErrNotFound) {
			x.missing[d.Path] = true
			continue
		}
		if err != nil {
			return Expansion{}, fmt.Errorf("reconstitute: read %s: %w", d.Path, err)
		}
		x.content[d.Path] = fingerprint.SplitLines(string(data))
	}
	for parent := range x.tree {
		slices.SortStableFunc(x.tree[parent], func(a, b models.NoteSource) int {
			switch {
			case b.Range.Start.Before(a.Range.Start):
				return -1
			case a.Range.Start.Before(b.Range.Start):
				return 1
			}
			return 0
		})
	}

	out := Expansion{Path: notePath, Content: strings.Join(x.expand(notePath), "\n")}
	direct := x.tree[notePath]
	for i := len(direct) - 1; i >= 0; i-- {
		c := direct[i]
		child := Child{Path: c.Path, Type: c.Type, Range: c.Range, Missing: x.missing[c.Path]}
		if !child.Missing {
			lines := x.expand(c.Path)
			child.Content = strings.Join(lines, "\n")
			child.LineCount = len(lines)
		}
		out.Children = append(out.Children, child)
	}
	return out, nil
}

func (x *expansion) expand(path string) []string {
	if x.onStack[path] {
		return []string{cycleSentinel(path)}
	}
	if lines, ok := x.memo[path]; ok {
		return lines
	}
	x.onStack[path] = true
	defer delete(x.onStack, path)

	lines := slices.Clone(x.content[path])
	for _, c := range x.tree[path] {
		if c.Type != models.ExtractTextLines || x.missing[c.Path] {
			continue
		}
		start, end := c.Range.Start.Line, c.Range.End.Line
		if start < 1 || end > len(lines) || end < start {
			x.logger.Warn("excerpt range outside parent",
				slog.String("path", c.Path),
				slog.String("parent", path),
				slog.String("range", c.Range.String()),
			)
			continue
		}
		lines = slices.Replace(lines, start-1, end, x.expand(c.Path)...)
	}
	x.memo[path] = lines
	return lines
}
