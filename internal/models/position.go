package models

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/starford/lectern/internal/apperr"
)

// PositionKind tags which variant of Position is populated.
type PositionKind string

const (
	// PositionLine is a plain integer: a line, a page, a character offset
	// or a second, depending on the extract type.
	PositionLine PositionKind = "line"
	// PositionPDF is a line within a given PDF page.
	PositionPDF PositionKind = "pdf"
)

// Position is one end of an excerpt range.
type Position struct {
	Kind PositionKind `json:"kind"`
	Page int          `json:"page,omitempty"`
	Line int          `json:"line"`
}

// Line returns a plain integer position.
func Line(n int) Position {
	return Position{Kind: PositionLine, Line: n}
}

// PDF returns a page/line position.
func PDF(page, line int) Position {
	return Position{Kind: PositionPDF, Page: page, Line: line}
}

// IsPDF reports whether p carries a page.
func (p Position) IsPDF() bool { return p.Kind == PositionPDF }

// Token renders p for use inside a filename segment. It never contains
// '-' or '.', which delimit chain segments.
func (p Position) Token() string {
	if p.IsPDF() {
		return fmt.Sprintf("p%dl%d", p.Page, p.Line)
	}
	return strconv.Itoa(p.Line)
}

func (p Position) String() string {
	if p.IsPDF() {
		return fmt.Sprintf("%d:%d", p.Page, p.Line)
	}
	return strconv.Itoa(p.Line)
}

// Before reports whether p sorts strictly before o.
func (p Position) Before(o Position) bool {
	if p.Page != o.Page {
		return p.Page < o.Page
	}
	return p.Line < o.Line
}

// ParseToken is the inverse of Token.
func ParseToken(s string) (Position, error) {
	if rest, ok := strings.CutPrefix(s, "p"); ok {
		pageStr, lineStr, found := strings.Cut(rest, "l")
		if !found {
			return Position{}, fmt.Errorf("%w: %q", apperr.ErrInvalidRange, s)
		}
		page, err := strconv.Atoi(pageStr)
		if err != nil {
			return Position{}, fmt.Errorf("%w: %q", apperr.ErrInvalidRange, s)
		}
		line, err := strconv.Atoi(lineStr)
		if err != nil {
			return Position{}, fmt.Errorf("%w: %q", apperr.ErrInvalidRange, s)
		}
		return PDF(page, line), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return Position{}, fmt.Errorf("%w: %q", apperr.ErrInvalidRange, s)
	}
	return Line(n), nil
}

// Range is an inclusive [Start, End] excerpt window.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Validate checks that both ends share a kind and are ordered.
func (r Range) Validate() error {
	if r.Start.Kind != r.End.Kind {
		return fmt.Errorf("%w: mixed position kinds %s and %s", apperr.ErrInvalidRange, r.Start.Kind, r.End.Kind)
	}
	if r.Start.Line < 0 || r.End.Line < 0 || r.Start.Page < 0 || r.End.Page < 0 {
		return fmt.Errorf("%w: negative position", apperr.ErrInvalidRange)
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("%w: end %s before start %s", apperr.ErrInvalidRange, r.End, r.Start)
	}
	return nil
}

func (r Range) String() string {
	return r.Start.String() + "-" + r.End.String()
}
