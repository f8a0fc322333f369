package models

import (
	"fmt"

	"github.com/starford/lectern/internal/apperr"
)

// QueueName identifies a scheduling bucket.
type QueueName string

const (
	QueueNew            QueueName = "new"
	QueueProcessing     QueueName = "processing"
	QueueIntermediate   QueueName = "intermediate"
	QueueSpacedCasual   QueueName = "spaced-casual"
	QueueSpacedStandard QueueName = "spaced-standard"
	QueueSpacedStrict   QueueName = "spaced-strict"
	QueueArchived       QueueName = "archived"

	// QueueGlobal is not a real queue. It namespaces cross-queue config
	// such as rank_penalty.
	QueueGlobal QueueName = "global"
)

// Queues is the fixed catalog every library carries, in display order.
var Queues = []QueueName{
	QueueNew,
	QueueProcessing,
	QueueIntermediate,
	QueueSpacedCasual,
	QueueSpacedStandard,
	QueueSpacedStrict,
	QueueArchived,
}

// ParseQueue returns the queue named s or ErrUnknownQueue.
func ParseQueue(s string) (QueueName, error) {
	q := QueueName(s)
	if !q.IsValid() {
		return "", fmt.Errorf("%w: %q", apperr.ErrUnknownQueue, s)
	}
	return q, nil
}

// IsValid reports whether q is one of the catalog queues.
func (q QueueName) IsValid() bool {
	for _, known := range Queues {
		if q == known {
			return true
		}
	}
	return false
}

// IsSpaced reports whether q runs the SM-2 update.
func (q QueueName) IsSpaced() bool {
	return q == QueueSpacedCasual || q == QueueSpacedStandard || q == QueueSpacedStrict
}

// Feedback is a caller's response to reviewing a note.
type Feedback string

const (
	FeedbackSkip     Feedback = "skip"
	FeedbackViewed   Feedback = "viewed"
	FeedbackAgain    Feedback = "again"
	FeedbackDecrease Feedback = "decrease"
	FeedbackMaintain Feedback = "maintain"
	FeedbackIncrease Feedback = "increase"
	FeedbackHard     Feedback = "hard"
	FeedbackGood     Feedback = "good"
	FeedbackEasy     Feedback = "easy"
)

var feedbackByQueue = map[QueueName][]Feedback{
	QueueNew:            {FeedbackSkip, FeedbackViewed, FeedbackAgain, FeedbackGood},
	QueueProcessing:     {FeedbackSkip, FeedbackViewed, FeedbackAgain},
	QueueIntermediate:   {FeedbackDecrease, FeedbackMaintain, FeedbackIncrease},
	QueueSpacedCasual:   {FeedbackAgain, FeedbackHard, FeedbackGood, FeedbackEasy},
	QueueSpacedStandard: {FeedbackAgain, FeedbackHard, FeedbackGood, FeedbackEasy},
	QueueSpacedStrict:   {FeedbackAgain, FeedbackHard, FeedbackGood, FeedbackEasy},
}

// ParseFeedback validates s as a feedback token accepted by queue q.
func ParseFeedback(q QueueName, s string) (Feedback, error) {
	for _, f := range feedbackByQueue[q] {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q for queue %s", apperr.ErrInvalidFeedback, s, q)
}

// Quality maps spaced-queue feedback to the SM-2 response grade.
func (f Feedback) Quality() (int, bool) {
	switch f {
	case FeedbackAgain:
		return 0, true
	case FeedbackHard:
		return 1, true
	case FeedbackGood:
		return 4, true
	case FeedbackEasy:
		return 5, true
	}
	return 0, false
}
