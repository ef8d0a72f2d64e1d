package grading

import (
	"fmt"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-grading/internal/errs"
	"github.com/mind-engage/mindengage-grading/internal/question"
)

// ManualInput is a grader's decision for one question. Either Points or, for
// essays with a rubric, Criteria awards are used.
type ManualInput struct {
	Points   *float64           `json:"points,omitempty"`
	Criteria map[string]float64 `json:"criteria,omitempty"`
	Comment  string             `json:"comment,omitempty"`
}

// ManualGrade produces a human-scored Result. Points outside [0, q.Points]
// are rejected as invalid input rather than clamped.
func ManualGrade(q question.Question, in ManualInput, grader string, at time.Time) (Result, error) {
	var (
		pts   float64
		notes []string
	)
	switch {
	case in.Points != nil:
		pts = *in.Points
	case len(in.Criteria) > 0:
		ek, ok := q.Key.(question.EssayKey)
		if !ok || len(ek.Criteria) == 0 {
			return Result{}, fmt.Errorf("%w: question %s has no rubric", errs.ErrInvalidInput, q.ID)
		}
		var note string
		pts, note = ScoreRubric(ek.Criteria, q.Points, in.Criteria)
		notes = append(notes, note)
	default:
		return Result{}, fmt.Errorf("%w: points or criteria required for question %s", errs.ErrInvalidInput, q.ID)
	}
	if pts < 0 || pts > q.Points {
		return Result{}, fmt.Errorf("%w: %v points outside [0, %v] for question %s", errs.ErrInvalidInput, pts, q.Points, q.ID)
	}
	if c := strings.TrimSpace(in.Comment); c != "" {
		notes = append(notes, c)
	}
	p := round4(pts)
	full := pts >= q.Points
	ts := at.UTC()
	return Result{
		QuestionID:   q.ID,
		Type:         q.Type,
		EarnedPoints: &p,
		MaxPoints:    q.Points,
		IsCorrect:    &full,
		Feedback:     strings.Join(notes, "\n"),
		GradedBy:     grader,
		GradedAt:     &ts,
	}, nil
}
