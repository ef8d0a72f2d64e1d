package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-grading/internal/errs"
	"github.com/mind-engage/mindengage-grading/internal/grading"
	"github.com/mind-engage/mindengage-grading/internal/question"
)

func qs(points ...float64) []question.Question {
	out := make([]question.Question, len(points))
	for i, p := range points {
		out[i] = question.Question{ID: string(rune('a' + i)), Type: question.TypeShortAnswer, Points: p}
	}
	return out
}

func earned(id string, pts float64) grading.Result {
	ok := pts > 0
	return grading.Result{QuestionID: id, EarnedPoints: &pts, IsCorrect: &ok}
}

func pendingResult(id string) grading.Result {
	return grading.Result{QuestionID: id, Type: question.TypeEssay, NeedsManual: true}
}

func TestAggregate(t *testing.T) {
	r, err := Aggregate(qs(10, 10, 10), []grading.Result{earned("c", 10), earned("a", 8), earned("b", 0)}, 0.6)
	require.NoError(t, err)
	assert.Equal(t, 18.0, r.TotalScore)
	assert.Equal(t, 30.0, r.MaxScore)
	assert.Equal(t, 60.0, r.Percentage)
	require.NotNil(t, r.Passed)
	assert.True(t, *r.Passed, "exactly on the threshold passes")
	assert.Equal(t, "passed", r.Status())
	assert.Equal(t, 1, r.Version)

	ids := []string{r.Results[0].QuestionID, r.Results[1].QuestionID, r.Results[2].QuestionID}
	assert.Equal(t, []string{"a", "b", "c"}, ids, "results follow question order")

	r, err = Aggregate(qs(10, 10, 10), []grading.Result{earned("a", 10), earned("b", 7.9999)}, 0.6)
	require.NoError(t, err)
	require.NotNil(t, r.Passed)
	assert.False(t, *r.Passed)
	assert.Equal(t, "failed", r.Status())
}

func TestAggregatePending(t *testing.T) {
	r, err := Aggregate(qs(10, 10), []grading.Result{earned("a", 10), pendingResult("b")}, 0.5)
	require.NoError(t, err)
	assert.True(t, r.PendingManualGrading)
	assert.Nil(t, r.Passed, "no verdict while anything is pending")
	assert.Equal(t, "pending", r.Status())
	assert.Equal(t, 10.0, r.TotalScore)

	// a question with no result at all is pending too
	r, err = Aggregate(qs(10, 10), []grading.Result{earned("a", 10)}, 0.5)
	require.NoError(t, err)
	assert.True(t, r.PendingManualGrading)
	assert.True(t, r.Results[1].NeedsManual)
}

func TestAggregateClampsAndErrors(t *testing.T) {
	r, err := Aggregate(qs(5), []grading.Result{earned("a", 9)}, 0)
	require.NoError(t, err)
	assert.Equal(t, 5.0, r.TotalScore)

	_, err = Aggregate(qs(0, 0), nil, 0.5)
	assert.True(t, errs.IsInvalidAssessment(err))

	_, err = Aggregate(qs(10), []grading.Result{earned("zz", 1)}, 0.5)
	assert.True(t, errs.IsNotFound(err))

	_, err = Aggregate(qs(10), []grading.Result{earned("a", 1), earned("a", 2)}, 0.5)
	assert.True(t, errs.IsInvalidAssessment(err))

	_, err = Aggregate(qs(10), nil, 1.5)
	assert.True(t, errs.IsInvalidAssessment(err))
}

func TestRegradeFinalizeMerge(t *testing.T) {
	questions := qs(10, 10)
	first, err := Aggregate(questions, []grading.Result{earned("a", 10), pendingResult("b")}, 0.7)
	require.NoError(t, err)
	first.AttemptID = "att-1"

	_, err = Finalize(first)
	assert.True(t, errs.IsInvalidAssessment(err))

	merged := Merge(first.Results, []grading.Result{earned("b", 4)})
	require.Len(t, merged, 2)
	assert.Equal(t, "a", merged[0].QuestionID)
	assert.False(t, merged[1].Pending())
	assert.True(t, first.Results[1].Pending(), "merge must not touch the base slice")

	second, err := Regrade(first, questions, merged)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Version)
	assert.Equal(t, "att-1", second.AttemptID)
	assert.Equal(t, 0.7, second.PassingScoreRatio)
	require.NotNil(t, second.Passed)
	assert.True(t, *second.Passed)

	final, err := Finalize(second)
	require.NoError(t, err)
	assert.True(t, final.Finalized)
	assert.False(t, second.Finalized)

	assert.Len(t, Merge(nil, []grading.Result{earned("x", 1)}), 1)
}

func TestAggregatePassBoundary(t *testing.T) {
	cases := []struct {
		name   string
		scores []float64
		passed bool
	}{
		{"18 of 30 passes", []float64{10, 8, 0}, true},
		{"17 of 30 fails", []float64{10, 7, 0}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := Aggregate(qs(10, 10, 10), []grading.Result{
				earned("a", tc.scores[0]), earned("b", tc.scores[1]), earned("c", tc.scores[2]),
			}, 0.6)
			require.NoError(t, err)
			require.NotNil(t, r.Passed)
			assert.Equal(t, tc.passed, *r.Passed)
		})
	}
}

func TestAggregateIsIdempotentAndOrderFree(t *testing.T) {
	questions := qs(10, 5, 10)
	results := []grading.Result{earned("a", 7.5), pendingResult("b"), earned("c", 10)}

	first, err := Aggregate(questions, results, 0.5)
	require.NoError(t, err)
	again, err := Aggregate(questions, results, 0.5)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	permuted := []grading.Result{results[2], results[0], results[1]}
	shuffled, err := Aggregate(questions, permuted, 0.5)
	require.NoError(t, err)
	assert.Equal(t, first, shuffled)
	assert.Equal(t, "b", results[1].QuestionID, "inputs are left as they were")
}

func TestAggregateEssayOnly(t *testing.T) {
	questions := []question.Question{
		{ID: "e1", Type: question.TypeEssay, Points: 10},
		{ID: "e2", Type: question.TypeEssay, Points: 10},
	}
	r, err := Aggregate(questions, []grading.Result{pendingResult("e1"), pendingResult("e2")}, 0.5)
	require.NoError(t, err)
	assert.True(t, r.PendingManualGrading)
	assert.Nil(t, r.Passed)
	assert.Equal(t, "pending", r.Status())
	assert.Zero(t, r.TotalScore)
	assert.Equal(t, 20.0, r.MaxScore)
}
