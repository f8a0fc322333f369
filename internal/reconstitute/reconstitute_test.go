package reconstitute

import (
	"context"
	"strings"
	"testing"

	"github.com/starford/lectern/internal/models"
	"github.com/starford/lectern/internal/testutil"
)

const lib = testutil.LibraryID

func TestSpliceOrderIndependent(t *testing.T) {
	db := testutil.TestDB(t)
	_, files := testutil.TestWorkspace(t)
	testutil.AddNote(t, db, files, "p.md", testutil.NumberedLines(10), models.QueueNew)
	testutil.AddExcerpt(t, db, files, "p.md", "p/2-2-a.md", "A1\nA2\nA3\n", models.ExtractTextLines, testutil.Lines(2, 2), "h")
	testutil.AddExcerpt(t, db, files, "p.md", "p/7-9-b.md", "B1\nB2\n", models.ExtractTextLines, testutil.Lines(7, 9), "h")

	got, err := New(db, files, nil).Expand(context.Background(), lib, "p.md")
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	want := strings.Join([]string{
		"line 1", "A1", "A2", "A3", "line 3", "line 4", "line 5", "line 6", "B1", "B2", "line 10",
	}, "\n")
	if got.Content != want {
		t.Errorf("content =\n%s\nwant\n%s", got.Content, want)
	}
	if len(got.Children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(got.Children))
	}
	if got.Children[0].Path != "p/2-2-a.md" || got.Children[0].LineCount != 3 {
		t.Errorf("child 0 = %+v", got.Children[0])
	}
	if got.Children[1].Range != testutil.Lines(7, 9) || got.Children[1].LineCount != 2 {
		t.Errorf("child 1 = %+v", got.Children[1])
	}
}

func TestNestedChildrenExpandFirst(t *testing.T) {
	db := testutil.TestDB(t)
	_, files := testutil.TestWorkspace(t)
	testutil.AddNote(t, db, files, "p.md", "p1\np2\np3\n", models.QueueNew)
	testutil.AddExcerpt(t, db, files, "p.md", "p/2-3-b.md", "b1\nb2\n", models.ExtractTextLines, testutil.Lines(2, 3), "h")
	testutil.AddExcerpt(t, db, files, "p/2-3-b.md", "p/2-3-b.1-1-c.md", "c1\nc2\nc3\n", models.ExtractTextLines, testutil.Lines(1, 1), "h")

	got, err := New(db, files, nil).Expand(context.Background(), lib, "p.md")
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if want := "p1\nc1\nc2\nc3\nb2"; got.Content != want {
		t.Errorf("content = %q, want %q", got.Content, want)
	}
	if len(got.Children) != 1 || got.Children[0].Content != "c1\nc2\nc3\nb2" || got.Children[0].LineCount != 4 {
		t.Errorf("children = %+v", got.Children)
	}
}

func TestCycleSentinel(t *testing.T) {
	db := testutil.TestDB(t)
	_, files := testutil.TestWorkspace(t)
	ctx := context.Background()
	testutil.AddNote(t, db, files, "a.md", "a1\na2\n", models.QueueNew)
	testutil.AddNote(t, db, files, "b.md", "b1\nb2\n", models.QueueNew)
	for _, src := range []models.NoteSource{
		{LibraryID: lib, Path: "b.md", ParentPath: "a.md", Type: models.ExtractTextLines, Range: testutil.Lines(1, 1)},
		{LibraryID: lib, Path: "a.md", ParentPath: "b.md", Type: models.ExtractTextLines, Range: testutil.Lines(2, 2)},
	} {
		if err := db.InsertSource(ctx, src); err != nil {
			t.Fatal(err)
		}
	}

	got, err := New(db, files, nil).Expand(ctx, lib, "a.md")
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if want := "b1\n[[cycle: a.md]]\na2"; got.Content != want {
		t.Errorf("content = %q, want %q", got.Content, want)
	}
}

func TestMissingChildLeavesParentUnspliced(t *testing.T) {
	db := testutil.TestDB(t)
	_, files := testutil.TestWorkspace(t)
	testutil.AddNote(t, db, files, "p.md", "p1\np2\np3\n", models.QueueNew)
	testutil.AddExcerpt(t, db, files, "p.md", "p/2-2-gone.md", "x\n", models.ExtractTextLines, testutil.Lines(2, 2), "h")
	if err := files.Delete("p/2-2-gone.md"); err != nil {
		t.Fatal(err)
	}

	got, err := New(db, files, nil).Expand(context.Background(), lib, "p.md")
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if got.Content != "p1\np2\np3" {
		t.Errorf("content = %q", got.Content)
	}
	if len(got.Children) != 1 || !got.Children[0].Missing {
		t.Errorf("children = %+v", got.Children)
	}
}

func TestNonTextChildrenAreListedNotSpliced(t *testing.T) {
	db := testutil.TestDB(t)
	_, files := testutil.TestWorkspace(t)
	testutil.AddNote(t, db, files, "p.md", "p1\np2\n", models.QueueNew)
	testutil.AddExcerpt(t, db, files, "p.md", "p/card.md", "Q: q\nA: a\n", models.ExtractFlashcard, testutil.Lines(1, 2), "h")

	got, err := New(db, files, nil).Expand(context.Background(), lib, "p.md")
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if got.Content != "p1\np2" {
		t.Errorf("content = %q", got.Content)
	}
	if len(got.Children) != 1 || got.Children[0].Type != models.ExtractFlashcard {
		t.Errorf("children = %+v", got.Children)
	}
}
