// Package testutil provides shared test helpers for setting up workspaces and stores.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/lectern/internal/models"
	"github.com/starford/lectern/internal/storage"
	"github.com/starford/lectern/internal/store"
	"github.com/starford/lectern/internal/testutil/minipdf"
	"github.com/starford/lectern/internal/tunables"
)

// LibraryID is the library every helper store is created with.
const LibraryID = "test-lib"

// Epoch is a fixed clock reading for deterministic tests.
var Epoch = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

// TestDB creates a temporary library store, seeded with the default
// tunables, that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "lectern-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if err := db.CreateLibrary(ctx, models.Library{ID: LibraryID, Name: "test"}); err != nil {
		t.Fatal(err)
	}
	for _, row := range tunables.Defaults().Rows(LibraryID) {
		if err := db.SetQueueConfig(ctx, row); err != nil {
			t.Fatal(err)
		}
	}
	return db
}

// TestWorkspace creates a temporary workspace directory with a file store.
func TestWorkspace(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, fs
}

// NumberedLines returns "line 1\nline 2\n..." up to n.
func NumberedLines(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	return b.String()
}

// WriteFile creates or replaces path under the workspace of files.
func WriteFile(t *testing.T, files *storage.FS, path string, content []byte) {
	t.Helper()
	abs := filepath.Join(files.Root(), filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, content, 0o644); err != nil {
		t.Fatal(err)
	}
}

// WritePDF writes a generated PDF with one page per element of pages.
func WritePDF(t *testing.T, files *storage.FS, path string, pages ...[]string) {
	t.Helper()
	WriteFile(t, files, path, minipdf.Build(pages...))
}

// PDFLines is shorthand for a page/line range.
func PDFLines(startPage, startLine, endPage, endLine int) models.Range {
	return models.Range{Start: models.PDF(startPage, startLine), End: models.PDF(endPage, endLine)}
}

// AddNote writes content to path and records the note in queue.
func AddNote(t *testing.T, db *store.DB, files *storage.FS, path, content string, queue models.QueueName) {
	t.Helper()
	WriteFile(t, files, path, []byte(content))
	record(t, db, path, queue)
}

// AddPDF writes a generated PDF to path and records it in queue.
func AddPDF(t *testing.T, db *store.DB, files *storage.FS, path string, queue models.QueueName, pages ...[]string) {
	t.Helper()
	WritePDF(t, files, path, pages...)
	record(t, db, path, queue)
}

func record(t *testing.T, db *store.DB, path string, queue models.QueueName) {
	t.Helper()
	ctx := context.Background()
	n := models.Note{LibraryID: LibraryID, Path: path, AddedAt: Epoch, DueAt: Epoch}
	if err := db.InsertNote(ctx, n); err != nil {
		t.Fatal(err)
	}
	if err := db.SetQueue(ctx, LibraryID, path, queue); err != nil {
		t.Fatal(err)
	}
}

// AddExcerpt writes content to path and records it as an excerpt of
// parent covering r.
func AddExcerpt(t *testing.T, db *store.DB, files *storage.FS, parent, path, content string, typ models.ExtractType, r models.Range, hash string) {
	t.Helper()
	AddNote(t, db, files, path, content, models.QueueIntermediate)
	src := models.NoteSource{
		LibraryID:  LibraryID,
		Path:       path,
		ParentPath: parent,
		Type:       typ,
		Range:      r,
		Hash:       hash,
	}
	if err := db.InsertSource(context.Background(), src); err != nil {
		t.Fatal(err)
	}
}

// Lines is shorthand for a plain line range.
func Lines(start, end int) models.Range {
	return models.Range{Start: models.Line(start), End: models.Line(end)}
}
