package question

import (
	"encoding/json"
	"time"
)

// Type is the closed set of question kinds the engine knows how to grade.
type Type string

const (
	TypeMultipleChoice Type = "multiple-choice"
	TypeMultipleAnswer Type = "multiple-answer"
	TypeTrueFalse      Type = "true-false"
	TypeShortAnswer    Type = "short-answer"
	TypeNumeric        Type = "numeric"
	TypeEssay          Type = "essay"
	TypeFillBlank      Type = "fill-blank"
	TypeMatching       Type = "matching"
	TypeSequence       Type = "sequence"
	TypeDragDrop       Type = "drag-drop"
	TypeHotspot        Type = "hotspot"
	TypeLikert         Type = "likert"
)

// Types lists every Type in declaration order.
var Types = []Type{
	TypeMultipleChoice, TypeMultipleAnswer, TypeTrueFalse, TypeShortAnswer,
	TypeNumeric, TypeEssay, TypeFillBlank, TypeMatching, TypeSequence,
	TypeDragDrop, TypeHotspot, TypeLikert,
}

func (t Type) Valid() bool {
	for _, k := range Types {
		if k == t {
			return true
		}
	}
	return false
}

// Manual reports whether the type always needs a human grader.
func (t Type) Manual() bool { return t == TypeEssay }

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

type BloomLevel string

const (
	BloomRemember   BloomLevel = "remember"
	BloomUnderstand BloomLevel = "understand"
	BloomApply      BloomLevel = "apply"
	BloomAnalyze    BloomLevel = "analyze"
	BloomEvaluate   BloomLevel = "evaluate"
	BloomCreate     BloomLevel = "create"
)

// Metadata is informational; grading never reads it.
type Metadata struct {
	Difficulty  Difficulty `json:"difficulty,omitempty" validate:"omitempty,oneof=easy medium hard"`
	BloomLevel  BloomLevel `json:"bloom_level,omitempty" validate:"omitempty,oneof=remember understand apply analyze evaluate create"`
	Explanation string     `json:"explanation,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
}

type Question struct {
	ID     string
	Type   Type
	Prompt string
	Points float64
	// Key is nil when the author has not supplied one yet.
	Key  AnswerKey
	Meta Metadata

	CreatedAt time.Time
}

// New builds a question and validates the key against the declared type.
func New(id string, t Type, prompt string, points float64, key AnswerKey, meta Metadata) (Question, error) {
	q := Question{
		ID:        id,
		Type:      t,
		Prompt:    prompt,
		Points:    points,
		Key:       key,
		Meta:      meta,
		CreatedAt: time.Now().UTC(),
	}
	if err := q.Validate(); err != nil {
		return Question{}, err
	}
	return q, nil
}

// NeedsManualKey is true for auto-gradable questions saved without a key.
func (q Question) NeedsManualKey() bool {
	return !q.Type.Manual() && q.Key == nil
}

// AutoGradable reports whether the engine can score the question on its own.
func (q Question) AutoGradable() bool {
	return !q.Type.Manual() && q.Key != nil
}

// Submission is one student's answer to one question within an attempt.
// Stores keep at most one per (student, question, attempt).
type Submission struct {
	ID          string          `json:"id"`
	AttemptID   string          `json:"attempt_id"`
	StudentID   string          `json:"student_id"`
	QuestionID  string          `json:"question_id"`
	// Raw is the answer as the client sent it; Answer is its decoded form.
	Raw         json.RawMessage `json:"answer,omitempty"`
	Answer      Answer          `json:"-"`
	SubmittedAt time.Time       `json:"submitted_at"`
}
