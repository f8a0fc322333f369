package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/starford/lectern/internal/apperr"
	"github.com/starford/lectern/internal/scheduler"
	"github.com/starford/lectern/internal/tunables"
)

func TestOpenCreatesLibraryOnce(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "reading")
	if err := os.Mkdir(root, 0o755); err != nil {
		t.Fatal(err)
	}

	w, err := Open(ctx, root, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	id := w.Library.ID
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("library id %q is not a uuid: %v", id, err)
	}
	if w.Library.Name != "reading" {
		t.Errorf("name = %q", w.Library.Name)
	}
	cfg, err := scheduler.LoadConfig(ctx, w.DB, id)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if penalty, err := cfg.RankPenalty(); err != nil || penalty != 5 {
		t.Errorf("tunables not seeded: rank_penalty = %v, %v", penalty, err)
	}
	w.Close()

	again, err := Open(ctx, root, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer again.Close()
	if again.Library.ID != id {
		t.Errorf("library id changed: %s -> %s", id, again.Library.ID)
	}
	if _, err := os.Stat(StorePath(root)); err != nil {
		t.Errorf("store file missing: %v", err)
	}
}

func TestOpenSeedsGivenTunables(t *testing.T) {
	t.Setenv("LECTERN_QUEUE_GLOBAL__RANK_PENALTY", "2")
	tun, err := tunables.Load("")
	if err != nil {
		t.Fatal(err)
	}
	w, err := Open(context.Background(), t.TempDir(), tun)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer w.Close()
	cfg, err := scheduler.LoadConfig(context.Background(), w.DB, w.Library.ID)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if penalty, _ := cfg.RankPenalty(); penalty != 2 {
		t.Errorf("rank_penalty = %v", penalty)
	}
}

func TestOpenExistingRequiresStore(t *testing.T) {
	_, err := OpenExisting(context.Background(), t.TempDir())
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOpenMissingFolder(t *testing.T) {
	if _, err := Open(context.Background(), filepath.Join(t.TempDir(), "nope"), nil); err == nil {
		t.Fatal("expected error for missing folder")
	}
}
