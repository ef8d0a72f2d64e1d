package question

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/mind-engage/mindengage-grading/internal/errs"
)

// wireQuestion is the JSON envelope. The key is decoded into the variant
// struct named by Type, so an ill-shaped key fails at decode time.
type wireQuestion struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Prompt    string          `json:"prompt"`
	Points    float64         `json:"points"`
	Key       json.RawMessage `json:"key,omitempty"`
	Meta      Metadata        `json:"metadata"`
	CreatedAt int64           `json:"created_at,omitempty"`
}

func (q Question) MarshalJSON() ([]byte, error) {
	w := wireQuestion{
		ID:     q.ID,
		Type:   q.Type,
		Prompt: q.Prompt,
		Points: q.Points,
		Meta:   q.Meta,
	}
	if !q.CreatedAt.IsZero() {
		w.CreatedAt = q.CreatedAt.Unix()
	}
	if q.Key != nil {
		raw, err := json.Marshal(q.Key)
		if err != nil {
			return nil, err
		}
		w.Key = raw
	}
	return json.Marshal(w)
}

func (q *Question) UnmarshalJSON(data []byte) error {
	var w wireQuestion
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	key, err := DecodeKey(w.ID, w.Type, w.Key)
	if err != nil {
		return err
	}
	*q = Question{
		ID:     w.ID,
		Type:   w.Type,
		Prompt: w.Prompt,
		Points: w.Points,
		Key:    key,
		Meta:   w.Meta,
	}
	if w.CreatedAt > 0 {
		q.CreatedAt = time.Unix(w.CreatedAt, 0).UTC()
	}
	return nil
}

// DecodeKey decodes raw into the key struct for t. Empty or null raw yields nil.
func DecodeKey(questionID string, t Type, raw json.RawMessage) (AnswerKey, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	switch t {
	case TypeMultipleChoice:
		return decodeKey[ChoiceKey](questionID, t, raw)
	case TypeMultipleAnswer:
		return decodeKey[MultiChoiceKey](questionID, t, raw)
	case TypeTrueFalse:
		return decodeKey[TrueFalseKey](questionID, t, raw)
	case TypeShortAnswer:
		return decodeKey[TextKey](questionID, t, raw)
	case TypeNumeric:
		return decodeKey[NumericKey](questionID, t, raw)
	case TypeEssay:
		return decodeKey[EssayKey](questionID, t, raw)
	case TypeFillBlank:
		return decodeKey[BlanksKey](questionID, t, raw)
	case TypeMatching:
		return decodeKey[PairsKey](questionID, t, raw)
	case TypeSequence:
		return decodeKey[OrderKey](questionID, t, raw)
	case TypeDragDrop:
		return decodeKey[PlacementKey](questionID, t, raw)
	case TypeHotspot:
		return decodeKey[HotspotKey](questionID, t, raw)
	case TypeLikert:
		return decodeKey[ScaleKey](questionID, t, raw)
	default:
		return nil, errs.Config(questionID, "unknown type %q", t)
	}
}

func decodeKey[K AnswerKey](questionID string, t Type, raw json.RawMessage) (AnswerKey, error) {
	var k K
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&k); err != nil {
		return nil, errs.Config(questionID, "answer key for %s: %v", t, err)
	}
	return k, nil
}
