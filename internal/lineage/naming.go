package lineage

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/starford/lectern/internal/apperr"
	"github.com/starford/lectern/internal/models"
)

const (
	// Ext is the extension of every generated excerpt file.
	Ext = ".md"

	slugWords    = 3
	fallbackSlug = "excerpt"
)

// Segment is one ancestry hop encoded in an excerpt file name.
type Segment struct {
	Range models.Range
	Slug  string
}

func (s Segment) String() string {
	return s.Range.Start.Token() + "-" + s.Range.End.Token() + "-" + s.Slug
}

// GenerateChildName names a new excerpt of parentPath covering r. A parent
// that is itself an excerpt passes its chain on and gains one segment.
func GenerateChildName(parentPath string, parentIsTopLevel bool, r models.Range, text string) string {
	parent := BaseName(parentPath)

	slug := Slug(text)
	if slug == "" && parentIsTopLevel {
		slug = Slug(parent)
	}
	if slug == "" {
		slug = fallbackSlug
	}

	seg := Segment{Range: r, Slug: slug}.String()
	if parentIsTopLevel {
		return seg + Ext
	}
	return parent + "." + seg + Ext
}

// Slug returns the first three alphanumeric words of text, lowercased and
// joined by '-'. It is empty when text has no such words.
func Slug(text string) string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) > slugWords {
		words = words[:slugWords]
	}
	for i, w := range words {
		words[i] = strings.ToLower(w)
	}
	return strings.Join(words, "-")
}

// ParseChain decodes an excerpt file name into its segments, oldest
// ancestor first.
func ParseChain(name string) ([]Segment, error) {
	base := BaseName(name)
	if base == "" {
		return nil, fmt.Errorf("lineage: %w: empty name", apperr.ErrInvalidRange)
	}

	parts := strings.Split(base, ".")
	out := make([]Segment, 0, len(parts))
	for _, part := range parts {
		fields := strings.SplitN(part, "-", 3)
		if len(fields) != 3 || fields[2] == "" {
			return nil, fmt.Errorf("lineage: %w: segment %q of %q", apperr.ErrInvalidRange, part, name)
		}
		start, err := models.ParseToken(fields[0])
		if err != nil {
			return nil, fmt.Errorf("lineage: segment %q: %w", part, err)
		}
		end, err := models.ParseToken(fields[1])
		if err != nil {
			return nil, fmt.Errorf("lineage: segment %q: %w", part, err)
		}
		r := models.Range{Start: start, End: end}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("lineage: segment %q: %w", part, err)
		}
		out = append(out, Segment{Range: r, Slug: fields[2]})
	}
	return out, nil
}
