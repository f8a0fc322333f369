package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/lectern/internal/apperr"
	"github.com/starford/lectern/internal/models"
	"github.com/starford/lectern/internal/store"
	"github.com/starford/lectern/internal/tunables"
)

const lib = "lib"

type env struct {
	db    *store.DB
	s     *Scheduler
	clock *time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "library.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if err := db.CreateLibrary(ctx, models.Library{ID: lib, Name: "test"}); err != nil {
		t.Fatalf("CreateLibrary: %v", err)
	}
	for _, row := range tunables.Defaults().Rows(lib) {
		if err := db.SetQueueConfig(ctx, row); err != nil {
			t.Fatalf("SetQueueConfig: %v", err)
		}
	}

	clock := now
	e := &env{db: db, clock: &clock}
	e.s = New(db, WithClock(func() time.Time { return *e.clock }), WithRand(nil))
	return e
}

func (e *env) add(t *testing.T, path string) {
	t.Helper()
	if _, err := e.s.AddToQueue(context.Background(), lib, path); err != nil {
		t.Fatalf("AddToQueue %s: %v", path, err)
	}
}

func (e *env) note(t *testing.T, path string) models.Note {
	t.Helper()
	n, err := e.db.Note(context.Background(), lib, path)
	if err != nil {
		t.Fatalf("Note %s: %v", path, err)
	}
	return n
}

func TestAddToQueue(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	exists, err := e.s.AddToQueue(ctx, lib, "a.md")
	if err != nil || exists {
		t.Fatalf("AddToQueue = %v, %v", exists, err)
	}
	exists, err = e.s.AddToQueue(ctx, lib, "a.md")
	if err != nil || !exists {
		t.Fatalf("second AddToQueue = %v, %v", exists, err)
	}
	n := e.note(t, "a.md")
	if n.Queue != models.QueueNew || n.RotationInterval != 3 {
		t.Errorf("note = %+v", n)
	}
}

func TestNewQueueTransitions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.add(t, "a.md")

	res, err := e.s.RecordFeedback(ctx, lib, "a.md", "skip")
	if err != nil {
		t.Fatalf("skip: %v", err)
	}
	if res.Queue != models.QueueNew || res.NextDueIn != 1 {
		t.Errorf("skip result = %+v", res)
	}

	res, err = e.s.RecordFeedback(ctx, lib, "a.md", "viewed")
	if err != nil {
		t.Fatalf("viewed: %v", err)
	}
	if res.Queue != models.QueueProcessing || res.NextDueIn != 3 {
		t.Errorf("viewed result = %+v", res)
	}
	if n := e.note(t, "a.md"); n.Queue != models.QueueProcessing {
		t.Errorf("membership = %q", n.Queue)
	}
}

func TestProcessingTransitions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.add(t, "a.md")
	if _, err := e.s.MoveToQueue(ctx, lib, "a.md", "processing"); err != nil {
		t.Fatalf("MoveToQueue: %v", err)
	}
	tests := []struct {
		feedback string
		dueIn    int
	}{
		{"skip", 1},
		{"viewed", 3},
		{"again", 0},
	}
	for _, tt := range tests {
		res, err := e.s.RecordFeedback(ctx, lib, "a.md", tt.feedback)
		if err != nil {
			t.Fatalf("%s: %v", tt.feedback, err)
		}
		if res.NextDueIn != tt.dueIn || res.Queue != models.QueueProcessing {
			t.Errorf("%s: result = %+v", tt.feedback, res)
		}
	}
}

func TestIntermediateFeedback(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.add(t, "a.md")
	if _, err := e.s.MoveToQueue(ctx, lib, "a.md", "intermediate"); err != nil {
		t.Fatalf("MoveToQueue: %v", err)
	}
	if n := e.note(t, "a.md"); n.IntermediateInterval != 3 {
		t.Fatalf("seeded interval = %d", n.IntermediateInterval)
	}
	res, err := e.s.RecordFeedback(ctx, lib, "a.md", "increase")
	if err != nil {
		t.Fatalf("increase: %v", err)
	}
	if res.Note.IntermediateInterval != 4 || res.NextDueIn != 4 {
		t.Errorf("result = %+v", res)
	}
}

func TestSpacedFeedbackPersists(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.add(t, "card.md")
	if _, err := e.s.MoveToQueue(ctx, lib, "card.md", "spaced-standard"); err != nil {
		t.Fatalf("MoveToQueue: %v", err)
	}
	if n := e.note(t, "card.md"); n.Easiness != 2.5 {
		t.Fatalf("easiness not seeded: %v", n.Easiness)
	}

	res, err := e.s.RecordFeedback(ctx, lib, "card.md", "good")
	if err != nil {
		t.Fatalf("good: %v", err)
	}
	if res.Note.Interval != 1 || res.Note.ReviewCount != 1 {
		t.Errorf("after first good: %+v", res.Note)
	}
	stored := e.note(t, "card.md")
	if stored.Interval != 1 || stored.ReviewCount != 1 || stored.Rank != 4 {
		t.Errorf("stored = %+v", stored)
	}

	res, err = e.s.RecordFeedback(ctx, lib, "card.md", "again")
	if err != nil {
		t.Fatalf("again: %v", err)
	}
	if res.Note.Interval != 1 || res.Note.Easiness != 2.5 {
		t.Errorf("after again: %+v", res.Note)
	}
}

func TestRecordFeedbackRejectsWithoutMutation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.add(t, "a.md")
	before := e.note(t, "a.md")

	for _, fb := range []string{"bogus", "easy", "increase"} {
		if _, err := e.s.RecordFeedback(ctx, lib, "a.md", fb); !errors.Is(err, apperr.ErrInvalidFeedback) {
			t.Errorf("%s: expected ErrInvalidFeedback, got %v", fb, err)
		}
	}
	if after := e.note(t, "a.md"); after != before {
		t.Errorf("note mutated: %+v -> %+v", before, after)
	}

	if _, err := e.s.MoveToQueue(ctx, lib, "a.md", "limbo"); !errors.Is(err, apperr.ErrUnknownQueue) {
		t.Errorf("MoveToQueue: expected ErrUnknownQueue, got %v", err)
	}
}

func TestArchivedRejectsFeedbackAndIsNeverDue(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.add(t, "a.md")
	if _, err := e.s.MoveToQueue(ctx, lib, "a.md", "archived"); err != nil {
		t.Fatalf("MoveToQueue: %v", err)
	}
	if _, err := e.s.RecordFeedback(ctx, lib, "a.md", "viewed"); !errors.Is(err, apperr.ErrInvalidFeedback) {
		t.Errorf("expected ErrInvalidFeedback, got %v", err)
	}
	due, err := e.s.DueToday(ctx, lib)
	if err != nil {
		t.Fatalf("DueToday: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("archived note is due: %+v", due)
	}
}

func TestMissingConfigIsRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.add(t, "a.md")
	if _, err := e.s.MoveToQueue(ctx, lib, "a.md", "spaced-strict"); err != nil {
		t.Fatalf("MoveToQueue: %v", err)
	}
	if _, err := e.db.Conn().Exec(`DELETE FROM queue_config WHERE queue_name = 'spaced-strict' AND config_key = 'max_ef'`); err != nil {
		t.Fatal(err)
	}
	before := e.note(t, "a.md")
	if _, err := e.s.RecordFeedback(ctx, lib, "a.md", "good"); !errors.Is(err, apperr.ErrMissingConfig) {
		t.Fatalf("expected ErrMissingConfig, got %v", err)
	}
	if after := e.note(t, "a.md"); after != before {
		t.Errorf("note mutated despite missing config")
	}
}

func TestDueTodaySelection(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if err := e.db.SetQueueConfig(ctx, models.QueueConfig{LibraryID: lib, Queue: models.QueueNew, Key: "max_per_day", Value: "2"}); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"n1.md", "n2.md", "n3.md"} {
		e.add(t, p)
		*e.clock = e.clock.Add(time.Minute)
	}
	e.add(t, "i.md")
	if _, err := e.s.MoveToQueue(ctx, lib, "i.md", "intermediate"); err != nil {
		t.Fatal(err)
	}
	e.add(t, "s.md")
	if _, err := e.s.MoveToQueue(ctx, lib, "s.md", "spaced-casual"); err != nil {
		t.Fatal(err)
	}

	due, err := e.s.DueToday(ctx, lib)
	if err != nil {
		t.Fatalf("DueToday: %v", err)
	}
	var paths []string
	for _, n := range due {
		paths = append(paths, n.Path)
	}
	want := []string{"n1.md", "n2.md", "s.md"}
	if len(paths) != len(want) {
		t.Fatalf("due = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("due = %v, want %v", paths, want)
			break
		}
	}

	*e.clock = e.clock.Add(3 * day)
	due, _ = e.s.DueToday(ctx, lib)
	found := false
	for _, n := range due {
		if n.Path == "i.md" {
			found = true
		}
	}
	if !found {
		t.Errorf("intermediate note not due after its interval")
	}
}

func TestForget(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.add(t, "a.md")
	if _, err := e.s.MoveToQueue(ctx, lib, "a.md", "spaced-standard"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.s.RecordFeedback(ctx, lib, "a.md", "easy"); err != nil {
		t.Fatal(err)
	}
	n, err := e.s.Forget(ctx, lib, "a.md")
	if err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if n.Queue != models.QueueNew || n.ReviewCount != 0 || n.Easiness != 0 || n.Rank != 0 {
		t.Errorf("forgotten note = %+v", n)
	}
	if stored := e.note(t, "a.md"); stored.Queue != models.QueueNew || !stored.LastRevisedAt.IsZero() {
		t.Errorf("stored = %+v", stored)
	}
}

func TestEnterExcerptDueOneDayInEveryQueue(t *testing.T) {
	e := newEnv(t)
	cfg, err := LoadConfig(context.Background(), e.db, lib)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	tomorrow := now.Add(24 * time.Hour)

	for _, q := range []models.QueueName{models.QueueIntermediate, models.QueueSpacedStandard, models.QueueProcessing} {
		n, err := EnterExcerpt(models.Note{LibraryID: lib, Path: "c.md"}, q, cfg, now)
		if err != nil {
			t.Fatalf("%s: %v", q, err)
		}
		if !n.DueAt.Equal(tomorrow) || n.Queue != q || !n.LastQueueChange.Equal(now) {
			t.Errorf("%s: note = %+v", q, n)
		}
	}

	n, _ := EnterExcerpt(models.Note{}, models.QueueIntermediate, cfg, now)
	if n.IntermediateInterval != 3 {
		t.Errorf("intermediate interval = %d, want seeded 3", n.IntermediateInterval)
	}
	n, _ = EnterExcerpt(models.Note{}, models.QueueSpacedStandard, cfg, now)
	if n.Easiness != 2.5 {
		t.Errorf("easiness = %v, want seeded 2.5", n.Easiness)
	}

	entered, _ := Enter(models.Note{}, models.QueueIntermediate, cfg, now)
	if !entered.DueAt.Equal(now.Add(3 * 24 * time.Hour)) {
		t.Errorf("Enter due = %v, want the intermediate interval out", entered.DueAt)
	}

	if _, err := EnterExcerpt(models.Note{}, "bogus", cfg, now); !errors.Is(err, apperr.ErrUnknownQueue) {
		t.Errorf("unknown queue err = %v", err)
	}
}
