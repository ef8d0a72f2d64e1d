// Package scoring combines per-question grades into an assessment result.
package scoring

import (
	"math"
	"time"

	"github.com/mind-engage/mindengage-grading/internal/errs"
	"github.com/mind-engage/mindengage-grading/internal/grading"
	"github.com/mind-engage/mindengage-grading/internal/question"
)

const eps = 1e-9

// AssessmentResult is one version of an attempt's score. Versions are never
// edited: a regrade produces Version+1.
type AssessmentResult struct {
	AttemptID            string           `json:"attempt_id,omitempty"`
	Version              int              `json:"version"`
	Results              []grading.Result `json:"results"`
	TotalScore           float64          `json:"total_score"`
	MaxScore             float64          `json:"max_score"`
	Percentage           float64          `json:"percentage"`
	PassingScoreRatio    float64          `json:"passing_score_ratio"`
	PendingManualGrading bool             `json:"pending_manual_grading"`
	// Passed stays nil while any item is pending.
	Passed    *bool     `json:"passed"`
	Finalized bool      `json:"finalized"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Status is passed, failed or pending; used for metrics and notifications.
func (r AssessmentResult) Status() string {
	switch {
	case r.Passed == nil:
		return "pending"
	case *r.Passed:
		return "passed"
	default:
		return "failed"
	}
}

// Aggregate sums the grades for one attempt. questions is the resolved,
// ordered question list; results may arrive in any order. A question with no
// result or a nil score makes the aggregate provisional.
func Aggregate(questions []question.Question, results []grading.Result, passingScoreRatio float64) (AssessmentResult, error) {
	if math.IsNaN(passingScoreRatio) || passingScoreRatio < 0 || passingScoreRatio > 1 {
		return AssessmentResult{}, errs.InvalidAssessment("passing score ratio %v outside [0, 1]", passingScoreRatio)
	}

	known := make(map[string]struct{}, len(questions))
	maxScore := 0.0
	for _, q := range questions {
		known[q.ID] = struct{}{}
		maxScore += q.Points
	}
	if maxScore <= 0 {
		return AssessmentResult{}, errs.InvalidAssessment("no gradable questions (max score is 0)")
	}

	byID := make(map[string]grading.Result, len(results))
	for _, r := range results {
		if _, ok := known[r.QuestionID]; !ok {
			return AssessmentResult{}, errs.NotFound("question", r.QuestionID)
		}
		if _, dup := byID[r.QuestionID]; dup {
			return AssessmentResult{}, errs.InvalidAssessment("duplicate result for question %s", r.QuestionID)
		}
		byID[r.QuestionID] = r
	}

	out := AssessmentResult{
		Version:           1,
		Results:           make([]grading.Result, 0, len(questions)),
		MaxScore:          round4(maxScore),
		PassingScoreRatio: passingScoreRatio,
	}
	total := 0.0
	for _, q := range questions {
		r, ok := byID[q.ID]
		if !ok {
			r = grading.Result{QuestionID: q.ID, Type: q.Type, NeedsManual: true, Feedback: "not graded yet"}
		}
		r.MaxPoints = q.Points
		if r.EarnedPoints == nil {
			out.PendingManualGrading = true
		} else {
			pts := math.Min(math.Max(*r.EarnedPoints, 0), q.Points)
			r.EarnedPoints = &pts
			total += pts
		}
		out.Results = append(out.Results, r)
	}
	out.TotalScore = math.Min(round4(total), out.MaxScore)
	out.Percentage = round4(out.TotalScore / out.MaxScore * 100)
	if !out.PendingManualGrading {
		passed := out.TotalScore+eps >= passingScoreRatio*out.MaxScore
		out.Passed = &passed
	}
	return out, nil
}

// Regrade aggregates again on top of prev and returns the next version.
func Regrade(prev AssessmentResult, questions []question.Question, results []grading.Result) (AssessmentResult, error) {
	next, err := Aggregate(questions, results, prev.PassingScoreRatio)
	if err != nil {
		return AssessmentResult{}, err
	}
	next.AttemptID = prev.AttemptID
	next.Version = prev.Version + 1
	return next, nil
}

// Finalize marks a complete result final. Pending results cannot be finalized.
func Finalize(r AssessmentResult) (AssessmentResult, error) {
	if r.PendingManualGrading {
		return AssessmentResult{}, errs.InvalidAssessment("cannot finalize while manual grading is pending")
	}
	r.Finalized = true
	return r, nil
}

// Merge overlays updates on base by question id, keeping base order.
// Updates for questions absent from base are appended.
func Merge(base, updates []grading.Result) []grading.Result {
	idx := make(map[string]int, len(base))
	out := make([]grading.Result, len(base))
	copy(out, base)
	for i, r := range out {
		idx[r.QuestionID] = i
	}
	for _, u := range updates {
		if i, ok := idx[u.QuestionID]; ok {
			out[i] = u
			continue
		}
		idx[u.QuestionID] = len(out)
		out = append(out, u)
	}
	return out
}

func round4(v float64) float64 { return math.Round(v*1e4) / 1e4 }
