package rangecheck

import (
	"fmt"
	"strings"

	"github.com/starford/lectern/internal/apperr"
	"github.com/starford/lectern/internal/fingerprint"
	"github.com/starford/lectern/internal/models"
	"github.com/starford/lectern/internal/storage"
)

// Document is a parent's content flattened into addressable units: lines
// for text and PDF excerpts, characters for flashcards.
type Document struct {
	kind  models.ExtractType
	units []string
	pos   []models.Position
	index map[models.Position]int
}

// Load reads parentPath and flattens it for excerpts of type t.
func Load(files storage.Provider, parentPath string, t models.ExtractType) (*Document, error) {
	d := &Document{kind: t, index: make(map[models.Position]int)}
	switch t {
	case models.ExtractTextLines:
		data, err := files.Read(parentPath)
		if err != nil {
			return nil, err
		}
		for i, l := range fingerprint.SplitLines(string(data)) {
			d.add(l, models.Line(i+1))
		}
	case models.ExtractFlashcard:
		data, err := files.Read(parentPath)
		if err != nil {
			return nil, err
		}
		text := strings.ReplaceAll(string(data), "\r\n", "\n")
		i := 0
		for _, r := range text {
			i++
			d.add(string(r), models.Line(i))
		}
	case models.ExtractPDFText:
		pages, err := files.PageText(parentPath, 1, 0)
		if err != nil {
			return nil, err
		}
		for p, page := range pages {
			for l, line := range fingerprint.SplitLines(page) {
				d.add(line, models.PDF(p+1, l+1))
			}
		}
	default:
		return nil, fmt.Errorf("rangecheck: %s excerpts have no text window", t)
	}
	return d, nil
}

func (d *Document) add(unit string, p models.Position) {
	d.index[p] = len(d.units)
	d.units = append(d.units, unit)
	d.pos = append(d.pos, p)
}

// Len is the number of units.
func (d *Document) Len() int { return len(d.units) }

// Span returns the unit indices [i, j) covered by r.
func (d *Document) Span(r models.Range) (int, int, error) {
	i, ok := d.index[r.Start]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s outside document", apperr.ErrInvalidRange, r.Start)
	}
	j, ok := d.index[r.End]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s outside document", apperr.ErrInvalidRange, r.End)
	}
	if j < i {
		return 0, 0, fmt.Errorf("%w: %s", apperr.ErrInvalidRange, r)
	}
	return i, j + 1, nil
}

// Range is the inverse of Span.
func (d *Document) Range(i, j int) models.Range {
	return models.Range{Start: d.pos[i], End: d.pos[j-1]}
}

// Text returns units [i, j) as text.
func (d *Document) Text(i, j int) string {
	if d.kind == models.ExtractFlashcard {
		return strings.Join(d.units[i:j], "")
	}
	return strings.Join(d.units[i:j], "\n")
}

// Hash fingerprints units [i, j).
func (d *Document) Hash(i, j int) string {
	if d.kind == models.ExtractFlashcard {
		return fingerprint.String(d.Text(i, j))
	}
	return fingerprint.Lines(d.units[i:j])
}

// Find slides a window of size units from the top of the document and
// returns the start of the first window whose fingerprint equals hash.
func (d *Document) Find(hash string, size int) (int, bool) {
	if size <= 0 {
		return 0, false
	}
	for i := 0; i+size <= len(d.units); i++ {
		if d.Hash(i, i+size) == hash {
			return i, true
		}
	}
	return 0, false
}

// WindowSize returns how many units r spans. When an end of r is no
// longer in the document the size is derived from r itself, which is only
// possible when both ends sit on the same page.
func (d *Document) WindowSize(r models.Range) int {
	if i, j, err := d.Span(r); err == nil {
		return j - i
	}
	if r.Start.Page == r.End.Page && r.End.Line >= r.Start.Line {
		return r.End.Line - r.Start.Line + 1
	}
	return 0
}

// Excerpt returns the text and fingerprint of r within parentPath.
func Excerpt(files storage.Provider, parentPath string, t models.ExtractType, r models.Range) (string, string, error) {
	d, err := Load(files, parentPath, t)
	if err != nil {
		return "", "", err
	}
	i, j, err := d.Span(r)
	if err != nil {
		return "", "", err
	}
	return d.Text(i, j), d.Hash(i, j), nil
}
