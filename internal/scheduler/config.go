package scheduler

import (
	"context"
	"fmt"
	"strconv"

	"github.com/starford/lectern/internal/apperr"
	"github.com/starford/lectern/internal/models"
)

// ConfigReader loads a library's queue tunables.
type ConfigReader interface {
	AllQueueConfig(ctx context.Context, libraryID string) ([]models.QueueConfig, error)
}

// Config is the set of tunables of one library. Lookups of absent keys
// fail with apperr.ErrMissingConfig.
type Config struct {
	rows map[models.QueueName]map[string]string
}

// LoadConfig reads every tunable of libraryID.
func LoadConfig(ctx context.Context, r ConfigReader, libraryID string) (Config, error) {
	rows, err := r.AllQueueConfig(ctx, libraryID)
	if err != nil {
		return Config{}, fmt.Errorf("scheduler: load config: %w", err)
	}
	return NewConfig(rows), nil
}

// NewConfig indexes config rows by queue and key.
func NewConfig(rows []models.QueueConfig) Config {
	c := Config{rows: make(map[models.QueueName]map[string]string)}
	for _, r := range rows {
		if c.rows[r.Queue] == nil {
			c.rows[r.Queue] = make(map[string]string)
		}
		c.rows[r.Queue][r.Key] = r.Value
	}
	return c
}

func (c Config) value(q models.QueueName, key string) (string, error) {
	v, ok := c.rows[q][key]
	if !ok {
		return "", fmt.Errorf("scheduler: %w: %s.%s", apperr.ErrMissingConfig, q, key)
	}
	return v, nil
}

// Float returns a numeric tunable.
func (c Config) Float(q models.QueueName, key string) (float64, error) {
	v, err := c.value(q, key)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("scheduler: %w: %s.%s=%q is not a number", apperr.ErrMissingConfig, q, key, v)
	}
	return f, nil
}

// Int returns a whole-number tunable.
func (c Config) Int(q models.QueueName, key string) (int, error) {
	f, err := c.Float(q, key)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

// RankPenalty is added to a parent's rank on every extraction.
func (c Config) RankPenalty() (float64, error) {
	return c.Float(models.QueueGlobal, "rank_penalty")
}

// InitialRank is the rank of a freshly added note.
func (c Config) InitialRank() (float64, error) {
	return c.Float(models.QueueGlobal, "initial_rank")
}

// FlashcardQueue is the spaced queue flashcard excerpts enter.
func (c Config) FlashcardQueue() (models.QueueName, error) {
	v, err := c.value(models.QueueGlobal, "flashcard_queue")
	if err != nil {
		return "", err
	}
	q := models.QueueName(v)
	if !q.IsSpaced() {
		return "", fmt.Errorf("scheduler: %w: flashcard_queue %q", apperr.ErrUnknownQueue, v)
	}
	return q, nil
}

// MaxPerDay caps how many new notes are due in one day.
func (c Config) MaxPerDay() (int, error) {
	return c.Int(models.QueueNew, "max_per_day")
}

// RotationInterval is the processing queue's revisit period in days.
func (c Config) RotationInterval() (int, error) {
	return c.Int(models.QueueProcessing, "rotation_interval")
}

// SpacedParams drive the SM-2 update of one spaced queue.
type SpacedParams struct {
	InitialEF      float64
	MinEF          float64
	MaxEF          float64
	FirstInterval  int
	SecondInterval int
	FailThreshold  int
}

// Spaced returns the SM-2 parameters of queue q.
func (c Config) Spaced(q models.QueueName) (SpacedParams, error) {
	var (
		p   SpacedParams
		err error
	)
	floats := []struct {
		key string
		dst *float64
	}{
		{"initial_ef", &p.InitialEF},
		{"min_ef", &p.MinEF},
		{"max_ef", &p.MaxEF},
	}
	for _, f := range floats {
		if *f.dst, err = c.Float(q, f.key); err != nil {
			return SpacedParams{}, err
		}
	}
	ints := []struct {
		key string
		dst *int
	}{
		{"first_interval", &p.FirstInterval},
		{"second_interval", &p.SecondInterval},
		{"fail_threshold", &p.FailThreshold},
	}
	for _, i := range ints {
		if *i.dst, err = c.Int(q, i.key); err != nil {
			return SpacedParams{}, err
		}
	}
	return p, nil
}

// IntermediateParams drive the intermediate queue's interval steps.
type IntermediateParams struct {
	InitialInterval int
	MinInterval     int
	Jitter          float64
}

// Intermediate returns the intermediate queue parameters.
func (c Config) Intermediate() (IntermediateParams, error) {
	var (
		p   IntermediateParams
		err error
	)
	if p.InitialInterval, err = c.Int(models.QueueIntermediate, "initial_interval"); err != nil {
		return IntermediateParams{}, err
	}
	if p.MinInterval, err = c.Int(models.QueueIntermediate, "min_interval"); err != nil {
		return IntermediateParams{}, err
	}
	if p.Jitter, err = c.Float(models.QueueIntermediate, "jitter"); err != nil {
		return IntermediateParams{}, err
	}
	return p, nil
}
