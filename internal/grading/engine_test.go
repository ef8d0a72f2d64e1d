package grading_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-grading/internal/errs"
	"github.com/mind-engage/mindengage-grading/internal/grading"
	"github.com/mind-engage/mindengage-grading/internal/question"
)

func f64(v float64) *float64 { return &v }

func q(id string, t question.Type, key question.AnswerKey) question.Question {
	return question.Question{ID: id, Type: t, Prompt: "prompt " + id, Points: 10, Key: key}
}

func sub(id string, a question.Answer) question.Submission {
	return question.Submission{QuestionID: id, Answer: a}
}

var (
	mcKey = question.ChoiceKey{
		Options:   []question.Option{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		CorrectID: "a",
	}
	multiKey = question.MultiChoiceKey{
		Options:    []question.Option{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		CorrectIDs: []string{"a", "b"},
	}
	multiPartial = question.MultiChoiceKey{
		Options:       multiKey.Options,
		CorrectIDs:    multiKey.CorrectIDs,
		PartialCredit: true,
	}
)

func TestGrade(t *testing.T) {
	cases := []struct {
		name    string
		q       question.Question
		answer  question.Answer
		points  float64
		correct bool
	}{
		{"choice right", q("q", question.TypeMultipleChoice, mcKey), question.ChoiceAnswer{OptionID: "a"}, 10, true},
		{"choice wrong", q("q", question.TypeMultipleChoice, mcKey), question.ChoiceAnswer{OptionID: "b"}, 0, false},
		{"multi exact", q("q", question.TypeMultipleAnswer, multiKey), question.ChoicesAnswer{OptionIDs: []string{"b", "a"}}, 10, true},
		{"multi subset no partial", q("q", question.TypeMultipleAnswer, multiKey), question.ChoicesAnswer{OptionIDs: []string{"a"}}, 0, false},
		{"multi subset partial", q("q", question.TypeMultipleAnswer, multiPartial), question.ChoicesAnswer{OptionIDs: []string{"a"}}, 5, false},
		{"multi superset partial", q("q", question.TypeMultipleAnswer, multiPartial), question.ChoicesAnswer{OptionIDs: []string{"a", "b", "c"}}, 6.6667, false},
		{"multi one of three partial", q("q", question.TypeMultipleAnswer, question.MultiChoiceKey{
			Options:       []question.Option{{ID: "A"}, {ID: "B"}, {ID: "C"}, {ID: "D"}},
			CorrectIDs:    []string{"A", "C"},
			PartialCredit: true,
		}), question.ChoicesAnswer{OptionIDs: []string{"A", "B"}}, 3.3333, false},
		{"true false", q("q", question.TypeTrueFalse, question.TrueFalseKey{Correct: true}), question.BoolAnswer{Value: true}, 10, true},
		{"text normalized", q("q", question.TypeShortAnswer, question.TextKey{Accepted: []string{"Paris"}}), question.TextAnswer{Text: "  paris "}, 10, true},
		{"text case sensitive", q("q", question.TypeShortAnswer, question.TextKey{Accepted: []string{"Paris"}, CaseSensitive: true}), question.TextAnswer{Text: "paris"}, 0, false},
		{"text pattern", q("q", question.TypeShortAnswer, question.TextKey{Patterns: []string{"colou?r"}}), question.TextAnswer{Text: "Color"}, 10, true},
		{"text empty", q("q", question.TypeShortAnswer, question.TextKey{Accepted: []string{"x"}}), question.TextAnswer{Text: "  "}, 0, false},
		{"numeric on tolerance", q("q", question.TypeNumeric, question.NumericKey{Expected: f64(3.14), Tolerance: 0.01}), question.NumberAnswer{Value: 3.15}, 10, true},
		{"numeric outside", q("q", question.TypeNumeric, question.NumericKey{Expected: f64(3.14), Tolerance: 0.01}), question.NumberAnswer{Value: 3.16}, 0, false},
		{"numeric large exact", q("q", question.TypeNumeric, question.NumericKey{Expected: f64(1e12)}), question.NumberAnswer{Value: 1e12}, 10, true},
		{"numeric large one unit off", q("q", question.TypeNumeric, question.NumericKey{Expected: f64(1e12)}), question.NumberAnswer{Value: 1e12 + 1}, 0, false},
		{"numeric large far off", q("q", question.TypeNumeric, question.NumericKey{Expected: f64(1e12)}), question.NumberAnswer{Value: 1e12 + 500}, 0, false},
		{"numeric large on tolerance", q("q", question.TypeNumeric, question.NumericKey{Expected: f64(1e12), Tolerance: 1}), question.NumberAnswer{Value: 1e12 + 1}, 10, true},
		{"numeric large beyond tolerance", q("q", question.TypeNumeric, question.NumericKey{Expected: f64(1e12), Tolerance: 1}), question.NumberAnswer{Value: 1e12 + 2}, 0, false},
		{"numeric range edge", q("q", question.TypeNumeric, question.NumericKey{Min: f64(1), Max: f64(2)}), question.NumberAnswer{Value: 2}, 10, true},
		{"blanks half", q("q", question.TypeFillBlank, question.BlanksKey{Blanks: [][]string{{"a"}, {"b"}}}), question.BlanksAnswer{Values: []string{"A", "x"}}, 5, false},
		{"matching half", q("q", question.TypeMatching, question.PairsKey{Pairs: map[string]string{"x": "1", "y": "2"}}), question.PairsAnswer{Pairs: map[string]string{"x": "1"}}, 5, false},
		{"sequence half", q("q", question.TypeSequence, question.OrderKey{Order: []string{"a", "b", "c", "d"}}), question.OrderAnswer{Order: []string{"a", "b", "d", "c"}}, 5, false},
		{"drag drop", q("q", question.TypeDragDrop, question.PlacementKey{Zones: []string{"z1", "z2"}, Placements: map[string]string{"i1": "z1", "i2": "z2"}}),
			question.PlacementAnswer{Placements: map[string]string{"i1": "z1", "i2": "z2"}}, 10, true},
		{"hotspot hit", q("q", question.TypeHotspot, question.HotspotKey{Regions: []question.Region{{X: 0, Y: 0, Width: 10, Height: 10}}}),
			question.PointsAnswer{Points: []question.Point{{X: 5, Y: 5}}}, 10, true},
		{"hotspot stray point", q("q", question.TypeHotspot, question.HotspotKey{Regions: []question.Region{{X: 0, Y: 0, Width: 10, Height: 10}}}),
			question.PointsAnswer{Points: []question.Point{{X: 5, Y: 5}, {X: 50, Y: 50}}}, 0, false},
		{"likert in range", q("q", question.TypeLikert, question.ScaleKey{Min: 1, Max: 5}), question.ScaleAnswer{Value: 3}, 10, true},
		{"likert out of range", q("q", question.TypeLikert, question.ScaleKey{Min: 1, Max: 5}), question.ScaleAnswer{Value: 9}, 0, false},
		{"unanswered", q("q", question.TypeMultipleChoice, mcKey), nil, 0, false},
		{"wrong variant", q("q", question.TypeMultipleChoice, mcKey), question.TextAnswer{Text: "a"}, 0, false},
		{"blank essay", q("q", question.TypeEssay, question.EssayKey{}), question.EssayAnswer{Text: "   "}, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			qq := tc.q
			res, err := grading.Grade(&qq, sub("q", tc.answer))
			require.NoError(t, err)
			require.NotNil(t, res.EarnedPoints)
			assert.InDelta(t, tc.points, *res.EarnedPoints, 1e-4)
			assert.Equal(t, tc.correct, *res.IsCorrect)
			assert.Equal(t, 10.0, res.MaxPoints)
		})
	}
}

func TestGradeDeterministic(t *testing.T) {
	qq := q("q", question.TypeMultipleAnswer, multiPartial)
	s := sub("q", question.ChoicesAnswer{OptionIDs: []string{"a", "c"}})
	first, err := grading.Grade(&qq, s)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := grading.Grade(&qq, s)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestGradePending(t *testing.T) {
	essay := q("e", question.TypeEssay, question.EssayKey{Guidance: "look for a thesis"})
	res, err := grading.Grade(&essay, sub("e", question.EssayAnswer{Text: "An argument."}))
	require.NoError(t, err)
	assert.True(t, res.Pending())
	assert.True(t, res.NeedsManual)
	assert.Nil(t, res.IsCorrect)
	assert.Equal(t, "manual", res.Outcome())

	keyless := q("k", question.TypeMultipleChoice, nil)
	res, err = grading.Grade(&keyless, sub("k", question.ChoiceAnswer{OptionID: "a"}))
	require.NoError(t, err)
	assert.True(t, res.Pending())
}

func TestGradeErrors(t *testing.T) {
	_, err := grading.Grade(nil, sub("x", nil))
	assert.True(t, errs.IsNotFound(err))

	mc := q("q", question.TypeMultipleChoice, mcKey)
	_, err = grading.Grade(&mc, sub("other", question.ChoiceAnswer{OptionID: "a"}))
	assert.True(t, errs.IsNotFound(err))

	broken := q("b", question.TypeMultipleChoice, question.ChoiceKey{
		Options:   []question.Option{{ID: "a"}, {ID: "b"}},
		CorrectID: "z",
	})
	_, err = grading.Grade(&broken, sub("b", question.ChoiceAnswer{OptionID: "a"}))
	var ce *errs.ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "b", ce.QuestionID)

	mismatched := q("m", question.TypeNumeric, mcKey)
	_, err = grading.Grade(&mismatched, sub("m", question.NumberAnswer{Value: 1}))
	assert.True(t, errs.IsConfiguration(err))
}

type countingLookup struct {
	qs    map[string]question.Question
	calls atomic.Int32
}

func (l *countingLookup) Get(_ context.Context, id string) (question.Question, error) {
	l.calls.Add(1)
	qq, ok := l.qs[id]
	if !ok {
		return question.Question{}, errs.NotFound("question", id)
	}
	return qq, nil
}

func TestEngineGradeByID(t *testing.T) {
	e := grading.NewEngine()
	l := &countingLookup{qs: map[string]question.Question{"mc": q("mc", question.TypeMultipleChoice, mcKey)}}

	res, err := e.GradeByID(context.Background(), l, sub("mc", question.ChoiceAnswer{OptionID: "a"}))
	require.NoError(t, err)
	assert.Equal(t, "correct", res.Outcome())

	_, err = e.GradeByID(context.Background(), l, sub("gone", nil))
	assert.True(t, errs.IsNotFound(err))
	assert.EqualValues(t, 2, l.calls.Load())
}

func TestEngineGradeAll(t *testing.T) {
	e := grading.NewEngine(grading.WithWorkers(2))
	qs := []question.Question{
		q("mc", question.TypeMultipleChoice, mcKey),
		q("tf", question.TypeTrueFalse, question.TrueFalseKey{Correct: false}),
		q("essay", question.TypeEssay, question.EssayKey{}),
		q("num", question.TypeNumeric, question.NumericKey{Expected: f64(42)}),
	}
	subs := map[string]question.Submission{
		"mc":    sub("mc", question.ChoiceAnswer{OptionID: "a"}),
		"tf":    sub("tf", question.BoolAnswer{Value: true}),
		"essay": sub("essay", question.EssayAnswer{Text: "words"}),
	}
	out, err := e.GradeAll(context.Background(), qs, subs)
	require.NoError(t, err)
	require.Len(t, out, 4)
	for i, r := range out {
		assert.Equal(t, qs[i].ID, r.QuestionID, "results keep question order")
	}
	assert.Equal(t, "correct", out[0].Outcome())
	assert.Equal(t, "incorrect", out[1].Outcome())
	assert.Equal(t, "manual", out[2].Outcome())
	assert.Equal(t, "incorrect", out[3].Outcome(), "unanswered scores zero")

	qs = append(qs, q("bad", question.TypeMultipleChoice, question.ChoiceKey{
		Options: []question.Option{{ID: "a"}, {ID: "b"}}, CorrectID: "x",
	}))
	_, err = e.GradeAll(context.Background(), qs, subs)
	assert.True(t, errs.IsConfiguration(err))
}

func TestManualGrade(t *testing.T) {
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	essay := q("e", question.TypeEssay, question.EssayKey{
		Criteria: []question.Criterion{{Key: "thesis", MaxPoints: 4}, {Key: "evidence", MaxPoints: 6}},
	})

	res, err := grading.ManualGrade(essay, grading.ManualInput{Points: f64(10), Comment: "great"}, "t1", at)
	require.NoError(t, err)
	assert.Equal(t, 10.0, *res.EarnedPoints)
	assert.True(t, *res.IsCorrect)
	assert.Equal(t, "t1", res.GradedBy)
	assert.Equal(t, at, *res.GradedAt)

	res, err = grading.ManualGrade(essay, grading.ManualInput{Criteria: map[string]float64{"thesis": 9, "evidence": 3}}, "t1", at)
	require.NoError(t, err)
	assert.Equal(t, 7.0, *res.EarnedPoints, "each criterion is capped at its maximum")
	assert.False(t, *res.IsCorrect)

	_, err = grading.ManualGrade(essay, grading.ManualInput{Points: f64(11)}, "t1", at)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
	_, err = grading.ManualGrade(essay, grading.ManualInput{}, "t1", at)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	mc := q("mc", question.TypeMultipleChoice, mcKey)
	_, err = grading.ManualGrade(mc, grading.ManualInput{Criteria: map[string]float64{"x": 1}}, "t1", at)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestScoreRubric(t *testing.T) {
	crit := []question.Criterion{{Key: "a", MaxPoints: 3}, {Key: "b", MaxPoints: 3}}
	pts, note := grading.ScoreRubric(crit, 5, map[string]float64{"a": 3, "b": 3})
	assert.Equal(t, 5.0, pts)
	assert.Equal(t, "a:3.00 b:3.00", note)

	pts, _ = grading.ScoreRubric(crit, 0, map[string]float64{"a": -1, "c": 9})
	assert.Zero(t, pts)
}
