// Package tunables loads the per-queue scheduling parameters a new library
// is seeded with: embedded defaults, then an optional YAML overrides file,
// then LECTERN_QUEUE_* environment variables.
package tunables

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/starford/lectern/internal/apperr"
	"github.com/starford/lectern/internal/models"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// EnvPrefix marks environment overrides, e.g.
// LECTERN_QUEUE_SPACED_STRICT__FAIL_THRESHOLD=3.
const EnvPrefix = "LECTERN_QUEUE_"

// Set is a resolved collection of tunables keyed "<queue>.<key>".
type Set struct {
	k *koanf.Koanf
}

// Load layers defaults, the overrides file (skipped when empty) and the
// environment.
func Load(overridesPath string) (*Set, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(defaultsYAML), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("tunables: load defaults: %w", err)
	}
	if overridesPath != "" {
		if err := k.Load(file.Provider(overridesPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("tunables: load %s: %w", overridesPath, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("tunables: load env: %w", err)
	}

	s := &Set{k: k}
	if err := s.check(); err != nil {
		return nil, err
	}
	return s, nil
}

// Defaults returns the embedded defaults only.
func Defaults() *Set {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(defaultsYAML), yaml.Parser()); err != nil {
		panic(fmt.Sprintf("tunables: embedded defaults: %v", err))
	}
	return &Set{k: k}
}

// envKey maps LECTERN_QUEUE_SPACED_STRICT__FAIL_THRESHOLD to
// spaced-strict.fail_threshold. Variables without "__" are ignored.
func envKey(s string) string {
	queue, key, ok := strings.Cut(strings.TrimPrefix(s, EnvPrefix), "__")
	if !ok || queue == "" || key == "" {
		return ""
	}
	queue = strings.ReplaceAll(strings.ToLower(queue), "_", "-")
	return queue + "." + strings.ToLower(key)
}

func (s *Set) check() error {
	for _, key := range s.k.Keys() {
		queue, _, _ := strings.Cut(key, ".")
		if q := models.QueueName(queue); q != models.QueueGlobal && !q.IsValid() {
			return fmt.Errorf("tunables: %w: %q", apperr.ErrUnknownQueue, queue)
		}
	}
	if fq := s.k.String("global.flashcard_queue"); fq != "" && !models.QueueName(fq).IsSpaced() {
		return fmt.Errorf("tunables: flashcard_queue %q is not a spaced queue", fq)
	}
	return nil
}

// Get returns one value rendered as text.
func (s *Set) Get(queue models.QueueName, key string) (string, bool) {
	path := string(queue) + "." + key
	if !s.k.Exists(path) {
		return "", false
	}
	return s.k.String(path), true
}

// Rows renders the set as QueueConfig records for one library, ordered
// by queue then key.
func (s *Set) Rows(libraryID string) []models.QueueConfig {
	keys := s.k.Keys()
	sort.Strings(keys)

	out := make([]models.QueueConfig, 0, len(keys))
	for _, key := range keys {
		queue, name, ok := strings.Cut(key, ".")
		if !ok {
			continue
		}
		out = append(out, models.QueueConfig{
			LibraryID: libraryID,
			Queue:     models.QueueName(queue),
			Key:       name,
			Value:     s.k.String(key),
		})
	}
	return out
}
