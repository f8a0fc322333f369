package tunables

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/lectern/internal/apperr"
	"github.com/starford/lectern/internal/models"
)

func TestDefaults(t *testing.T) {
	s := Defaults()
	tests := []struct {
		queue models.QueueName
		key   string
		want  string
	}{
		{models.QueueGlobal, "rank_penalty", "5"},
		{models.QueueGlobal, "flashcard_queue", "spaced-standard"},
		{models.QueueNew, "max_per_day", "20"},
		{models.QueueProcessing, "rotation_interval", "3"},
		{models.QueueIntermediate, "jitter", "0.1"},
		{models.QueueSpacedStandard, "fail_threshold", "3"},
		{models.QueueSpacedStrict, "second_interval", "4"},
		{models.QueueSpacedCasual, "min_ef", "1.3"},
	}
	for _, tt := range tests {
		t.Run(string(tt.queue)+"."+tt.key, func(t *testing.T) {
			got, ok := s.Get(tt.queue, tt.key)
			if !ok {
				t.Fatal("missing")
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoadOverridesFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queues.yaml")
	body := "global:\n  rank_penalty: 9\nnew:\n  max_per_day: 5\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LECTERN_QUEUE_NEW__MAX_PER_DAY", "7")
	t.Setenv("LECTERN_QUEUE_SPACED_STRICT__FAIL_THRESHOLD", "5")

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if v, _ := s.Get(models.QueueGlobal, "rank_penalty"); v != "9" {
		t.Errorf("rank_penalty = %q, want 9", v)
	}
	if v, _ := s.Get(models.QueueNew, "max_per_day"); v != "7" {
		t.Errorf("max_per_day = %q, want env value 7", v)
	}
	if v, _ := s.Get(models.QueueSpacedStrict, "fail_threshold"); v != "5" {
		t.Errorf("fail_threshold = %q, want 5", v)
	}
	if v, _ := s.Get(models.QueueSpacedStrict, "min_ef"); v != "1.3" {
		t.Errorf("untouched default lost: min_ef = %q", v)
	}
}

func TestLoadRejectsUnknownQueue(t *testing.T) {
	t.Setenv("LECTERN_QUEUE_BOGUS__X", "1")
	if _, err := Load(""); !errors.Is(err, apperr.ErrUnknownQueue) {
		t.Fatalf("expected ErrUnknownQueue, got %v", err)
	}
}

func TestRows(t *testing.T) {
	rows := Defaults().Rows("lib")
	if len(rows) != 26 {
		t.Fatalf("expected 26 rows, got %d", len(rows))
	}
	for _, r := range rows {
		if r.LibraryID != "lib" || r.Key == "" {
			t.Errorf("bad row %+v", r)
		}
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"LECTERN_QUEUE_SPACED_CASUAL__MAX_EF": "spaced-casual.max_ef",
		"LECTERN_QUEUE_GLOBAL__RANK_PENALTY":  "global.rank_penalty",
		"LECTERN_QUEUE_NOSEPARATOR":           "",
	}
	for in, want := range tests {
		if got := envKey(in); got != want {
			t.Errorf("envKey(%q) = %q, want %q", in, got, want)
		}
	}
}
