package grading

import (
	"math"
	"time"

	"github.com/mind-engage/mindengage-grading/internal/question"
)

// Result is the outcome of grading one question response.
// EarnedPoints and IsCorrect are nil while the item waits for a human.
type Result struct {
	QuestionID   string        `json:"question_id"`
	Type         question.Type `json:"type"`
	EarnedPoints *float64      `json:"earned_points"`
	MaxPoints    float64       `json:"max_points"`
	IsCorrect    *bool         `json:"is_correct"`
	NeedsManual  bool          `json:"needs_manual,omitempty"`
	Feedback     string        `json:"feedback,omitempty"`

	// Set on manual grades.
	GradedBy string     `json:"graded_by,omitempty"`
	GradedAt *time.Time `json:"graded_at,omitempty"`
}

// Pending reports whether the result still needs a score.
func (r Result) Pending() bool { return r.EarnedPoints == nil }

// Outcome is a coarse label used for metrics and logs.
func (r Result) Outcome() string {
	switch {
	case r.Pending():
		return "manual"
	case *r.IsCorrect:
		return "correct"
	case *r.EarnedPoints > 0:
		return "partial"
	default:
		return "incorrect"
	}
}

func pending(r Result, feedback string) Result {
	r.EarnedPoints = nil
	r.IsCorrect = nil
	r.NeedsManual = true
	r.Feedback = feedback
	return r
}

// scored fills in earned points for a fraction of MaxPoints.
func scored(r Result, fraction float64, correct bool, feedback string) Result {
	pts := clamp(round4(r.MaxPoints*fraction), 0, r.MaxPoints)
	r.EarnedPoints = &pts
	r.IsCorrect = &correct
	r.NeedsManual = false
	r.Feedback = feedback
	return r
}

func round4(v float64) float64 { return math.Round(v*1e4) / 1e4 }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
