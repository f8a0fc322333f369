package storage

import (
	"fmt"
	"os"

	"github.com/dslipak/pdf"
)

// PageText extracts the plain text of pages [from, to] (1-based, inclusive)
// of the PDF at path, one string per page. A to of zero or less means the
// last page.
func (f *FS) PageText(path string, from, to int) ([]string, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	// pdf.Open never closes its file, so the reader is built on a handle
	// owned here.
	file, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: open pdf %s: %w", path, err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("storage: stat pdf %s: %w", path, err)
	}
	r, err := pdf.NewReader(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("storage: parse pdf %s: %w", path, err)
	}
	n := r.NumPage()
	if to <= 0 {
		to = n
	}
	if from < 1 || to > n || from > to {
		return nil, fmt.Errorf("storage: pdf %s has %d pages, asked for %d-%d", path, n, from, to)
	}

	fonts := make(map[string]*pdf.Font)
	out := make([]string, 0, to-from+1)
	for i := from; i <= to; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			out = append(out, "")
			continue
		}
		for _, name := range p.Fonts() {
			if _, ok := fonts[name]; !ok {
				font := p.Font(name)
				fonts[name] = &font
			}
		}
		text, err := p.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("storage: pdf %s page %d: %w", path, i, err)
		}
		out = append(out, text)
	}
	return out, nil
}
