package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/lectern/internal/apperr"
	"github.com/starford/lectern/internal/testutil/minipdf"
)

func tempWorkspace(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestCreateAndRead(t *testing.T) {
	s := tempWorkspace(t)
	content := []byte("# Hello\nWorld\n")
	if err := s.Create("note.md", content); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := s.Read("note.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestReadMissingIsNotFound(t *testing.T) {
	s := tempWorkspace(t)
	_, err := s.Read("nope.md")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateIsExclusive(t *testing.T) {
	s := tempWorkspace(t)
	if err := s.Create("book/1-2-intro.md", []byte("first")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	err := s.Create("book/1-2-intro.md", []byte("second"))
	if !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Fatalf("second Create err = %v, want ErrAlreadyExists", err)
	}
	got, _ := s.Read("book/1-2-intro.md")
	if string(got) != "first" {
		t.Errorf("existing file overwritten: %q", got)
	}
}

func TestExistsAndMkdirAll(t *testing.T) {
	s := tempWorkspace(t)
	ok, err := s.Exists("Deep Work")
	if err != nil || ok {
		t.Fatalf("Exists before mkdir = %v, %v", ok, err)
	}
	if err := s.MkdirAll("Deep Work"); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	ok, err = s.Exists("Deep Work")
	if err != nil || !ok {
		t.Fatalf("Exists after mkdir = %v, %v", ok, err)
	}
}

func TestDelete(t *testing.T) {
	s := tempWorkspace(t)
	_ = s.Create("del.md", []byte("bye"))
	if err := s.Delete("del.md"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read("del.md"); err == nil {
		t.Error("expected error reading deleted file")
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempWorkspace(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.md",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Create(p, []byte("x")); err == nil {
			t.Errorf("expected error for create of %q", p)
		}
	}
}

func TestPageTextRejectsNonPDF(t *testing.T) {
	s := tempWorkspace(t)
	_ = s.Create("plain.md", []byte("not a pdf"))
	if _, err := s.PageText("plain.md", 1, 1); err == nil {
		t.Error("expected error reading a non-PDF as PDF")
	}
}

func TestPageText(t *testing.T) {
	s := tempWorkspace(t)
	doc := minipdf.Build(
		[]string{"Chapter one", "It was a dark night."},
		[]string{"Chapter two", "Morning came (at last)."},
	)
	if err := s.Create("book.pdf", doc); err != nil {
		t.Fatal(err)
	}

	pages, err := s.PageText("book.pdf", 1, 0)
	if err != nil {
		t.Fatalf("PageText: %v", err)
	}
	want := []string{"Chapter one\nIt was a dark night.", "Chapter two\nMorning came (at last)."}
	if len(pages) != len(want) {
		t.Fatalf("pages = %q", pages)
	}
	for i := range want {
		if pages[i] != want[i] {
			t.Errorf("page %d = %q, want %q", i+1, pages[i], want[i])
		}
	}

	second, err := s.PageText("book.pdf", 2, 2)
	if err != nil || len(second) != 1 || second[0] != want[1] {
		t.Errorf("page 2 = %q, %v", second, err)
	}
	if _, err := s.PageText("book.pdf", 2, 3); err == nil {
		t.Error("expected error for a page past the end")
	}
}

func TestPageTextReleasesFile(t *testing.T) {
	if _, err := os.ReadDir("/proc/self/fd"); err != nil {
		t.Skip("open descriptors cannot be counted here")
	}
	s := tempWorkspace(t)
	if err := s.Create("one.pdf", minipdf.Build([]string{"only page"})); err != nil {
		t.Fatal(err)
	}
	openFiles := func() int {
		entries, _ := os.ReadDir("/proc/self/fd")
		return len(entries)
	}

	before := openFiles()
	for i := 0; i < 50; i++ {
		if _, err := s.PageText("one.pdf", 1, 1); err != nil {
			t.Fatalf("PageText: %v", err)
		}
	}
	if after := openFiles(); after > before+2 {
		t.Errorf("descriptors grew from %d to %d over 50 reads", before, after)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "lectern-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}

func TestIsDocument(t *testing.T) {
	for name, want := range map[string]bool{
		"a.md":         true,
		"dir/B.PDF":    true,
		"notes.txt":    true,
		"image.png":    false,
		"library.db":   false,
		"no-extension": false,
	} {
		if got := IsDocument(name); got != want {
			t.Errorf("IsDocument(%q) = %v, want %v", name, got, want)
		}
	}
}
