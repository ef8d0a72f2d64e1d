package qti

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/mind-engage/mindengage-grading/internal/errs"
	"github.com/mind-engage/mindengage-grading/internal/qti/parser"
	"github.com/mind-engage/mindengage-grading/internal/question"
)

// ItemError names a package item that could not be turned into a question.
type ItemError struct {
	Href  string `json:"href"`
	Error string `json:"error"`
}

type ImportReport struct {
	Questions []question.Question
	Skipped   []ItemError
}

// Import reads every item listed in the package manifest. Broken items are
// reported in Skipped; the rest are returned validated and ready to store.
func Import(pkg []byte) (ImportReport, error) {
	p, err := parser.Open(bytes.NewReader(pkg), int64(len(pkg)))
	if err != nil {
		return ImportReport{}, fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	}
	var rep ImportReport
	for _, href := range p.ItemHrefs {
		raw, err := p.Read(href)
		if err != nil {
			rep.Skipped = append(rep.Skipped, ItemError{Href: href, Error: err.Error()})
			continue
		}
		it, err := parser.ParseItem(raw)
		if err != nil {
			rep.Skipped = append(rep.Skipped, ItemError{Href: href, Error: err.Error()})
			continue
		}
		q, err := ToQuestion(it)
		if err != nil {
			rep.Skipped = append(rep.Skipped, ItemError{Href: href, Error: err.Error()})
			continue
		}
		rep.Questions = append(rep.Questions, q)
	}
	return rep, nil
}

// ToQuestion maps one parsed item onto the bank's question types. Items
// without a correct response import keyless and wait for an author to add one.
func ToQuestion(it parser.ParsedItem) (question.Question, error) {
	var (
		t   question.Type
		key question.AnswerKey
	)
	switch it.Kind {
	case parser.InteractionChoiceSingle:
		if isTrueFalse(it.Choices) {
			t = question.TypeTrueFalse
			if len(it.Correct) > 0 {
				key = question.TrueFalseKey{Correct: strings.EqualFold(it.Correct[0], "true")}
			}
			break
		}
		t = question.TypeMultipleChoice
		if len(it.Correct) > 0 {
			key = question.ChoiceKey{Options: options(it.Choices), CorrectID: it.Correct[0]}
		}
	case parser.InteractionChoiceMulti:
		t = question.TypeMultipleAnswer
		if len(it.Correct) > 0 {
			key = question.MultiChoiceKey{Options: options(it.Choices), CorrectIDs: it.Correct}
		}
	case parser.InteractionTextEntry:
		if it.BaseType == "float" || it.BaseType == "integer" {
			t = question.TypeNumeric
			if len(it.Correct) > 0 {
				v, err := strconv.ParseFloat(it.Correct[0], 64)
				if err != nil {
					return question.Question{}, errs.Config(it.ID, "numeric correct response %q", it.Correct[0])
				}
				key = question.NumericKey{Expected: &v}
			}
			break
		}
		t = question.TypeShortAnswer
		if len(it.Correct) > 0 {
			key = question.TextKey{Accepted: it.Correct}
		}
	case parser.InteractionOrder:
		t = question.TypeSequence
		if len(it.Correct) > 0 {
			key = question.OrderKey{Order: it.Correct}
		}
	default:
		t = question.TypeEssay
		if it.Guidance != "" {
			key = question.EssayKey{Guidance: it.Guidance}
		}
	}
	return question.New(it.ID, t, it.Prompt, it.Points, key, question.Metadata{})
}

func isTrueFalse(cs []parser.Choice) bool {
	if len(cs) != 2 {
		return false
	}
	a, b := strings.ToLower(cs[0].ID), strings.ToLower(cs[1].ID)
	return (a == "true" && b == "false") || (a == "false" && b == "true")
}

func options(cs []parser.Choice) []question.Option {
	out := make([]question.Option, 0, len(cs))
	for _, c := range cs {
		out = append(out, question.Option{ID: c.ID, Label: c.Label})
	}
	return out
}
