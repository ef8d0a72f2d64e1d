package question_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-grading/internal/db"
	"github.com/mind-engage/mindengage-grading/internal/errs"
	"github.com/mind-engage/mindengage-grading/internal/question"
)

func f64(v float64) *float64 { return &v }

func TestNewValidates(t *testing.T) {
	_, err := question.New("q1", question.TypeMultipleChoice, "Pick", 5, question.ChoiceKey{
		Options:   []question.Option{{ID: "a"}, {ID: "b"}},
		CorrectID: "c",
	}, question.Metadata{})
	assert.True(t, errs.IsConfiguration(err))

	_, err = question.New("q2", question.TypeNumeric, "How much", 5, question.NumericKey{Min: f64(3)}, question.Metadata{})
	assert.True(t, errs.IsConfiguration(err), "range needs both ends")

	_, err = question.New("q3", question.TypeTrueFalse, "Yes?", 5, question.ChoiceKey{
		Options:   []question.Option{{ID: "a"}, {ID: "b"}},
		CorrectID: "a",
	}, question.Metadata{})
	assert.True(t, errs.IsConfiguration(err), "key variant must match the type")

	_, err = question.New("q4", question.TypeShortAnswer, "Name", 5, question.TextKey{Patterns: []string{"("}}, question.Metadata{})
	assert.True(t, errs.IsConfiguration(err))

	_, err = question.New("q5", question.TypeEssay, "Discuss", 5, nil, question.Metadata{Difficulty: "brutal"})
	assert.True(t, errs.IsConfiguration(err))

	q, err := question.New("q6", question.TypeMultipleChoice, "Pick", 5, nil, question.Metadata{})
	require.NoError(t, err)
	assert.True(t, q.NeedsManualKey())
	assert.False(t, q.AutoGradable())
}

func TestQuestionJSON(t *testing.T) {
	raw := `{"id":"m1","type":"matching","prompt":"Match","points":4,
		"key":{"pairs":{"cat":"meow","dog":"woof"}},
		"metadata":{"difficulty":"easy","tags":["animals"]}}`
	var q question.Question
	require.NoError(t, json.Unmarshal([]byte(raw), &q))
	k, ok := q.Key.(question.PairsKey)
	require.True(t, ok)
	assert.Equal(t, "woof", k.Pairs["dog"])
	assert.Equal(t, question.DifficultyEasy, q.Meta.Difficulty)

	out, err := json.Marshal(q)
	require.NoError(t, err)
	var back question.Question
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, q.Key, back.Key)

	err = json.Unmarshal([]byte(`{"id":"x","type":"numeric","prompt":"p","points":1,"key":{"expected":1,"bogus":2}}`), &q)
	assert.True(t, errs.IsConfiguration(err), "unknown key fields are rejected")
}

func TestDecodeAnswer(t *testing.T) {
	cases := []struct {
		t    question.Type
		raw  string
		want question.Answer
	}{
		{question.TypeMultipleChoice, `"b"`, question.ChoiceAnswer{OptionID: "b"}},
		{question.TypeMultipleAnswer, `["a","c"]`, question.ChoicesAnswer{OptionIDs: []string{"a", "c"}}},
		{question.TypeTrueFalse, `"true"`, question.BoolAnswer{Value: true}},
		{question.TypeNumeric, `"3.5"`, question.NumberAnswer{Value: 3.5}},
		{question.TypeNumeric, `2`, question.NumberAnswer{Value: 2}},
		{question.TypeHotspot, `{"x":1,"y":2}`, question.PointsAnswer{Points: []question.Point{{X: 1, Y: 2}}}},
		{question.TypeLikert, `4`, question.ScaleAnswer{Value: 4}},
		{question.TypeEssay, `null`, nil},
	}
	for _, tc := range cases {
		got, err := question.DecodeAnswer(tc.t, json.RawMessage(tc.raw))
		require.NoError(t, err, "%s %s", tc.t, tc.raw)
		assert.Equal(t, tc.want, got, "%s %s", tc.t, tc.raw)
	}

	for _, bad := range []struct {
		t   question.Type
		raw string
	}{
		{question.TypeMultipleChoice, `7`},
		{question.TypeTrueFalse, `"maybe"`},
		{question.TypeLikert, `2.5`},
		{question.TypeSequence, `{"a":1}`},
		{"file-upload", `"x"`},
	} {
		_, err := question.DecodeAnswer(bad.t, json.RawMessage(bad.raw))
		assert.ErrorIs(t, err, errs.ErrInvalidInput, "%s %s", bad.t, bad.raw)
	}
}

func storeContract(t *testing.T, s question.Store) {
	ctx := context.Background()
	mc, err := question.New("mc", question.TypeMultipleChoice, "Capital of France?", 2, question.ChoiceKey{
		Options:   []question.Option{{ID: "a", Label: "Paris"}, {ID: "b", Label: "Rome"}},
		CorrectID: "a",
	}, question.Metadata{Difficulty: question.DifficultyEasy, Tags: []string{"geo"}})
	require.NoError(t, err)
	essay, err := question.New("essay", question.TypeEssay, "Discuss the Revolution", 10, nil, question.Metadata{})
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, mc))
	require.NoError(t, s.Put(ctx, essay))

	got, err := s.Get(ctx, "mc")
	require.NoError(t, err)
	assert.Equal(t, mc.Key, got.Key)
	assert.Equal(t, []string{"geo"}, got.Meta.Tags)

	many, err := s.GetMany(ctx, []string{"essay", "mc"})
	require.NoError(t, err)
	require.Len(t, many, 2)
	assert.Equal(t, "essay", many[0].ID)
	assert.Nil(t, many[0].Key)

	_, err = s.GetMany(ctx, []string{"mc", "nope"})
	assert.True(t, errs.IsNotFound(err))
	_, err = s.Get(ctx, "nope")
	assert.True(t, errs.IsNotFound(err))

	list, err := s.List(ctx, question.ListOpts{Q: "france"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "mc", list[0].ID)

	list, err = s.List(ctx, question.ListOpts{Type: question.TypeEssay})
	require.NoError(t, err)
	require.Len(t, list, 1)

	bad := mc
	bad.Points = -1
	assert.True(t, errs.IsConfiguration(s.Put(ctx, bad)))
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, question.NewMemoryStore())
}

func TestSQLStore(t *testing.T) {
	conn, err := db.Open(context.Background(), db.DriverSQLite, "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	storeContract(t, question.NewSQLStore(conn))
}
