package question

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mind-engage/mindengage-grading/internal/errs"
)

// Answer is a student's response. Like AnswerKey it is a closed set.
type Answer interface {
	answer()
}

type ChoiceAnswer struct{ OptionID string }
type ChoicesAnswer struct{ OptionIDs []string }
type BoolAnswer struct{ Value bool }
type TextAnswer struct{ Text string }
type NumberAnswer struct{ Value float64 }
type EssayAnswer struct{ Text string }
type BlanksAnswer struct{ Values []string }
type PairsAnswer struct{ Pairs map[string]string }
type OrderAnswer struct{ Order []string }
type PlacementAnswer struct{ Placements map[string]string }
type PointsAnswer struct{ Points []Point }
type ScaleAnswer struct{ Value int }

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (ChoiceAnswer) answer()    {}
func (ChoicesAnswer) answer()   {}
func (BoolAnswer) answer()      {}
func (TextAnswer) answer()      {}
func (NumberAnswer) answer()    {}
func (EssayAnswer) answer()     {}
func (BlanksAnswer) answer()    {}
func (PairsAnswer) answer()     {}
func (OrderAnswer) answer()     {}
func (PlacementAnswer) answer() {}
func (PointsAnswer) answer()    {}
func (ScaleAnswer) answer()     {}

// DecodeAnswer turns the client's JSON into the Answer variant for t.
// A null or empty payload decodes to a nil Answer (unanswered).
func DecodeAnswer(t Type, raw json.RawMessage) (Answer, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	bad := func(want string, err error) (Answer, error) {
		return nil, fmt.Errorf("%w: %s answer must be %s: %v", errs.ErrInvalidInput, t, want, err)
	}
	switch t {
	case TypeMultipleChoice:
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return bad("a string option id", err)
		}
		return ChoiceAnswer{OptionID: s}, nil
	case TypeMultipleAnswer:
		var ids []string
		if err := json.Unmarshal(trimmed, &ids); err != nil {
			return bad("an array of option ids", err)
		}
		return ChoicesAnswer{OptionIDs: ids}, nil
	case TypeTrueFalse:
		var v any
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return bad("a boolean", err)
		}
		switch b := v.(type) {
		case bool:
			return BoolAnswer{Value: b}, nil
		case string:
			pb, err := strconv.ParseBool(strings.TrimSpace(b))
			if err != nil {
				return bad("a boolean", err)
			}
			return BoolAnswer{Value: pb}, nil
		}
		return bad("a boolean", fmt.Errorf("got %T", v))
	case TypeShortAnswer:
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return bad("a string", err)
		}
		return TextAnswer{Text: s}, nil
	case TypeEssay:
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return bad("a string", err)
		}
		return EssayAnswer{Text: s}, nil
	case TypeNumeric:
		var v any
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return bad("a number", err)
		}
		switch n := v.(type) {
		case float64:
			return NumberAnswer{Value: n}, nil
		case string:
			f, ok := parseFloatLoose(n)
			if !ok {
				return bad("a number", fmt.Errorf("cannot parse %q", n))
			}
			return NumberAnswer{Value: f}, nil
		}
		return bad("a number", fmt.Errorf("got %T", v))
	case TypeFillBlank:
		var vals []string
		if err := json.Unmarshal(trimmed, &vals); err != nil {
			return bad("an array of strings", err)
		}
		return BlanksAnswer{Values: vals}, nil
	case TypeMatching:
		var m map[string]string
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return bad("an object of left->right pairs", err)
		}
		return PairsAnswer{Pairs: m}, nil
	case TypeSequence:
		var order []string
		if err := json.Unmarshal(trimmed, &order); err != nil {
			return bad("an array of item ids", err)
		}
		return OrderAnswer{Order: order}, nil
	case TypeDragDrop:
		var m map[string]string
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return bad("an object of item->zone placements", err)
		}
		return PlacementAnswer{Placements: m}, nil
	case TypeHotspot:
		if trimmed[0] == '{' {
			var p Point
			if err := json.Unmarshal(trimmed, &p); err != nil {
				return bad("a point or array of points", err)
			}
			return PointsAnswer{Points: []Point{p}}, nil
		}
		var pts []Point
		if err := json.Unmarshal(trimmed, &pts); err != nil {
			return bad("a point or array of points", err)
		}
		return PointsAnswer{Points: pts}, nil
	case TypeLikert:
		var n json.Number
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return bad("an integer", err)
		}
		i, err := n.Int64()
		if err != nil {
			return bad("an integer", err)
		}
		return ScaleAnswer{Value: int(i)}, nil
	default:
		return nil, fmt.Errorf("%w: unknown question type %q", errs.ErrInvalidInput, t)
	}
}

// parseFloatLoose accepts "3.14" as well as "3.14 m".
func parseFloatLoose(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, true
	}
	if sp := strings.Fields(s); len(sp) > 0 {
		if v, err := strconv.ParseFloat(sp[0], 64); err == nil {
			return v, true
		}
	}
	return 0, false
}
