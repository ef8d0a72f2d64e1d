package qti_test

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-grading/internal/errs"
	"github.com/mind-engage/mindengage-grading/internal/qti"
	"github.com/mind-engage/mindengage-grading/internal/qti/export"
	"github.com/mind-engage/mindengage-grading/internal/question"
)

func mustQ(t *testing.T, id string, typ question.Type, prompt string, pts float64, key question.AnswerKey) question.Question {
	t.Helper()
	q, err := question.New(id, typ, prompt, pts, key, question.Metadata{})
	require.NoError(t, err)
	return q
}

func f64(v float64) *float64 { return &v }

func TestExportImportRoundTrip(t *testing.T) {
	opts := []question.Option{{ID: "a", Label: "2 < 3"}, {ID: "b", Label: "Fish & chips"}, {ID: "c"}}
	in := []question.Question{
		mustQ(t, "mc", question.TypeMultipleChoice, "Pick <one>", 2, question.ChoiceKey{Options: opts, CorrectID: "b"}),
		mustQ(t, "ma", question.TypeMultipleAnswer, "Pick many", 3, question.MultiChoiceKey{Options: opts, CorrectIDs: []string{"a", "c"}}),
		mustQ(t, "tf", question.TypeTrueFalse, "Sky is blue", 1, question.TrueFalseKey{Correct: true}),
		mustQ(t, "sa", question.TypeShortAnswer, "Capital of France", 1, question.TextKey{Accepted: []string{"Paris", "paris"}}),
		mustQ(t, "num", question.TypeNumeric, "Pi to two places", 1.5, question.NumericKey{Expected: f64(3.14)}),
		mustQ(t, "seq", question.TypeSequence, "Order these", 4, question.OrderKey{Order: []string{"x", "y", "z"}}),
		mustQ(t, "es", question.TypeEssay, "Discuss", 10, question.EssayKey{Guidance: "Look for structure"}),
		mustQ(t, "mt", question.TypeMatching, "Match", 2, question.PairsKey{Pairs: map[string]string{"l": "r"}}),
	}

	pkg, skipped, err := export.BuildPackage(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"mt"}, skipped)

	rep, err := qti.Import(pkg)
	require.NoError(t, err)
	assert.Empty(t, rep.Skipped)
	require.Len(t, rep.Questions, 7)

	got := map[string]question.Question{}
	for _, q := range rep.Questions {
		got[q.ID] = q
	}
	for _, want := range in[:7] {
		q, ok := got[want.ID]
		require.True(t, ok, want.ID)
		assert.Equal(t, want.Type, q.Type, want.ID)
		assert.Equal(t, want.Prompt, q.Prompt, want.ID)
		assert.Equal(t, want.Points, q.Points, want.ID)
	}

	mc := got["mc"].Key.(question.ChoiceKey)
	assert.Equal(t, "b", mc.CorrectID)
	assert.Equal(t, []question.Option{{ID: "a", Label: "2 < 3"}, {ID: "b", Label: "Fish & chips"}, {ID: "c", Label: "c"}}, mc.Options)
	assert.Equal(t, []string{"a", "c"}, got["ma"].Key.(question.MultiChoiceKey).CorrectIDs)
	assert.Equal(t, question.TrueFalseKey{Correct: true}, got["tf"].Key)
	assert.Equal(t, []string{"Paris", "paris"}, got["sa"].Key.(question.TextKey).Accepted)
	assert.InDelta(t, 3.14, *got["num"].Key.(question.NumericKey).Expected, 1e-9)
	assert.Equal(t, []string{"x", "y", "z"}, got["seq"].Key.(question.OrderKey).Order)
	assert.Equal(t, question.EssayKey{Guidance: "Look for structure"}, got["es"].Key)
}

func TestExportNumericRangeGoesKeyless(t *testing.T) {
	q := mustQ(t, "r", question.TypeNumeric, "Between 1 and 2", 1, question.NumericKey{Min: f64(1), Max: f64(2)})
	pkg, _, err := export.BuildPackage([]question.Question{q})
	require.NoError(t, err)

	rep, err := qti.Import(pkg)
	require.NoError(t, err)
	require.Len(t, rep.Questions, 1)
	assert.Equal(t, question.TypeNumeric, rep.Questions[0].Type)
	assert.Nil(t, rep.Questions[0].Key)
	assert.True(t, rep.Questions[0].NeedsManualKey())
}

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

const manifest = `<?xml version="1.0"?>
<manifest xmlns="http://www.imsglobal.org/xsd/imscp_v1p1">
  <resources>
    <resource identifier="i1" type="imsqti_item_xmlv2p1" href="q1.xml"><file href="q1.xml"/></resource>
    <resource identifier="i2" type="imsqti_item_xmlv2p1" href="broken.xml"><file href="broken.xml"/></resource>
    <resource identifier="i3" type="imsqti_item_xmlv2p1" href="missing.xml"/>
    <resource identifier="i4" type="webcontent" href="img/logo.png"/>
  </resources>
</manifest>`

// Authored the way third-party tools write it: prompt inside the
// interaction and the maximum on MAXSCORE.
const foreignItem = `<?xml version="1.0"?>
<assessmentItem xmlns="http://www.imsglobal.org/xsd/imsqti_v2p1" identifier="ext-1" title="Planets">
  <responseDeclaration identifier="RESPONSE" cardinality="single" baseType="identifier">
    <correctResponse><value> B </value></correctResponse>
  </responseDeclaration>
  <outcomeDeclaration identifier="SCORE" cardinality="single" baseType="float"/>
  <outcomeDeclaration identifier="MAXSCORE" cardinality="single" baseType="float">
    <defaultValue><value>4</value></defaultValue>
  </outcomeDeclaration>
  <itemBody>
    <choiceInteraction responseIdentifier="RESPONSE" maxChoices="1">
      <prompt>Which planet is <b>largest</b>?</prompt>
      <simpleChoice identifier="A">Mars</simpleChoice>
      <simpleChoice identifier="B">Jupiter</simpleChoice>
    </choiceInteraction>
  </itemBody>
</assessmentItem>`

func TestImportForeignPackage(t *testing.T) {
	pkg := zipOf(t, map[string]string{
		"imsmanifest.xml": manifest,
		"q1.xml":          foreignItem,
		"broken.xml":      `<assessmentItem identifier="">`,
	})
	rep, err := qti.Import(pkg)
	require.NoError(t, err)

	require.Len(t, rep.Questions, 1)
	q := rep.Questions[0]
	assert.Equal(t, "ext-1", q.ID)
	assert.Equal(t, question.TypeMultipleChoice, q.Type)
	assert.Equal(t, "Which planet is largest?", q.Prompt)
	assert.Equal(t, 4.0, q.Points)
	assert.Equal(t, "B", q.Key.(question.ChoiceKey).CorrectID)

	require.Len(t, rep.Skipped, 2)
	assert.Equal(t, "broken.xml", rep.Skipped[0].Href)
	assert.Equal(t, "missing.xml", rep.Skipped[1].Href)
}

func TestImportRejectsBadPackages(t *testing.T) {
	_, err := qti.Import([]byte("not a zip"))
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	_, err = qti.Import(zipOf(t, map[string]string{"q1.xml": foreignItem}))
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}
