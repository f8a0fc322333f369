package scheduler

import (
	"math"
	"math/rand"
	"time"

	"github.com/starford/lectern/internal/models"
)

const day = 24 * time.Hour

// archiveHorizon pushes archived notes out of every due window.
const archiveHorizon = 9999

// excerptDelay is the wait before a new excerpt's first review.
const excerptDelay = 1

func addDays(t time.Time, days int) time.Time {
	return t.Add(time.Duration(days) * day)
}

// SM2 applies one spaced review of quality q (0..5) to n.
func SM2(n models.Note, q int, p SpacedParams, now time.Time) models.Note {
	if q < p.FailThreshold {
		n.Interval = 1
	} else {
		miss := float64(5 - q)
		delta := 0.1 - miss*(0.08+miss*0.02)
		n.Easiness = clamp(n.Easiness+delta, p.MinEF, p.MaxEF)
		n.Rank += float64(q)
		switch n.ReviewCount {
		case 0:
			n.Interval = p.FirstInterval
		case 1:
			n.Interval = p.SecondInterval
		default:
			n.Interval = int(math.Floor(float64(n.Interval) * n.Easiness))
		}
	}
	n.ReviewCount++
	n.LastRevisedAt = now
	n.DueAt = addDays(now, n.Interval)
	return n
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// StepIntermediate scales an intermediate interval by feedback, then
// applies a uniform jitter of up to +/- p.Jitter and clamps the result to
// p.MinInterval. A nil rng disables jitter.
func StepIntermediate(interval int, fb models.Feedback, p IntermediateParams, rng *rand.Rand) int {
	if interval <= 0 {
		interval = p.InitialInterval
	}
	base := float64(interval)
	switch fb {
	case models.FeedbackDecrease:
		base = math.Floor(base / 1.5)
	case models.FeedbackIncrease:
		base = math.Floor(base * 1.5)
	}
	if rng != nil && p.Jitter > 0 {
		base = math.Round(base * (1 + (rng.Float64()*2-1)*p.Jitter))
	}
	return max(int(base), p.MinInterval)
}
