package registry

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/lectern/internal/apperr"
	"github.com/starford/lectern/internal/models"
)

func testDB(t *testing.T) (*DB, *time.Time) {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	clock := time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return clock }
	return db, &clock
}

func workspace(id, folder string) models.Workspace {
	return models.Workspace{
		LibraryID:  id,
		FolderPath: folder,
		FolderName: filepath.Base(folder),
		StorePath:  filepath.Join(folder, ".lectern", "library.db"),
	}
}

func TestTouchInsertsThenBumps(t *testing.T) {
	db, clock := testDB(t)
	ctx := context.Background()
	first := *clock

	if err := db.Touch(ctx, workspace("a", "/w/books")); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	*clock = clock.Add(time.Hour)
	if err := db.Touch(ctx, workspace("a", "/w/books")); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	got, err := db.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.OpenCount != 2 {
		t.Errorf("open_count = %d, want 2", got.OpenCount)
	}
	if !got.FirstOpened.Equal(first) {
		t.Errorf("first_opened = %v, want %v", got.FirstOpened, first)
	}
	if !got.LastOpened.Equal(first.Add(time.Hour)) {
		t.Errorf("last_opened = %v", got.LastOpened)
	}
	if got.FolderName != "books" {
		t.Errorf("folder_name = %q", got.FolderName)
	}
}

func TestListOrder(t *testing.T) {
	db, clock := testDB(t)
	ctx := context.Background()
	_ = db.Touch(ctx, workspace("a", "/w/a"))
	*clock = clock.Add(time.Minute)
	_ = db.Touch(ctx, workspace("b", "/w/b"))

	list, err := db.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].LibraryID != "b" {
		t.Errorf("list = %+v", list)
	}
}

func TestUpdateStatsAndRemove(t *testing.T) {
	db, _ := testDB(t)
	ctx := context.Background()
	_ = db.Touch(ctx, workspace("a", "/w/a"))

	if err := db.UpdateStats(ctx, "a", 12, 4); err != nil {
		t.Fatalf("UpdateStats: %v", err)
	}
	got, _ := db.ByFolder(ctx, "/w/a")
	if got.TotalFiles != 12 || got.FilesDueToday != 4 {
		t.Errorf("stats = %d/%d", got.TotalFiles, got.FilesDueToday)
	}

	if err := db.Remove(ctx, "a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := db.Get(ctx, "a"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Get after remove: %v", err)
	}
	if err := db.UpdateStats(ctx, "a", 1, 1); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("UpdateStats unknown: %v", err)
	}
}
