// Package attempt runs a student's sitting of an approved assessment: start,
// save answers, submit for grading, then manual grading and regrades.
package attempt

import (
	"context"
	"time"

	"github.com/mind-engage/mindengage-grading/internal/question"
	"github.com/mind-engage/mindengage-grading/internal/scoring"
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusSubmitted  Status = "submitted" // graded provisionally, manual items pending
	StatusGraded     Status = "graded"
)

type Attempt struct {
	ID                string     `json:"id"`
	AssessmentID      string     `json:"assessment_id"`
	StudentID         string     `json:"student_id"`
	Status            Status     `json:"status"`
	QuestionIDs       []string   `json:"question_ids"` // resolved pool, in presentation order
	PassingScoreRatio float64    `json:"passing_score_ratio"`
	StartedAt         time.Time  `json:"started_at"`
	SubmittedAt       *time.Time `json:"submitted_at,omitempty"`
}

func (a Attempt) Has(questionID string) bool {
	for _, id := range a.QuestionIDs {
		if id == questionID {
			return true
		}
	}
	return false
}

type ListOpts struct {
	AssessmentID string
	StudentID    string
	Status       Status
	Limit        int
	Offset       int
}

// Store persists attempts, their raw submissions and every result version.
type Store interface {
	CreateAttempt(ctx context.Context, a Attempt) error
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	// SetStatus moves an attempt from one status to another atomically. If
	// the stored status is not from it returns *errs.InvalidTransitionError.
	SetStatus(ctx context.Context, id string, from, to Status, at time.Time) error
	ListAttempts(ctx context.Context, opts ListOpts) ([]Attempt, error)

	// SaveSubmission upserts by (student, question, attempt).
	SaveSubmission(ctx context.Context, s question.Submission) error
	Submissions(ctx context.Context, attemptID string) ([]question.Submission, error)

	// AppendResult stores a new version. A version that already exists is a
	// *errs.StaleStateError.
	AppendResult(ctx context.Context, r scoring.AssessmentResult) error
	LatestResult(ctx context.Context, attemptID string) (scoring.AssessmentResult, error)
	Results(ctx context.Context, attemptID string) ([]scoring.AssessmentResult, error)
}
