package parser

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

type assessmentItem struct {
	XMLName      xml.Name             `xml:"assessmentItem"`
	Identifier   string               `xml:"identifier,attr"`
	Title        string               `xml:"title,attr"`
	Body         itemBody             `xml:"itemBody"`
	ResponseDecl responseDeclaration  `xml:"responseDeclaration"`
	OutcomeDecls []outcomeDeclaration `xml:"outcomeDeclaration"`
}
type itemBody struct {
	RawXML  string        `xml:",innerxml"`
	Rubrics []rubricBlock `xml:"rubricBlock"`
}
type rubricBlock struct {
	View string `xml:"view,attr"`
	Text string `xml:",chardata"`
}
type responseDeclaration struct {
	Identifier  string `xml:"identifier,attr"`
	Cardinality string `xml:"cardinality,attr"` // single|multiple|ordered
	BaseType    string `xml:"baseType,attr"`
	Correct     struct {
		Values []string `xml:"value"`
	} `xml:"correctResponse"`
}
type outcomeDeclaration struct {
	Identifier    string `xml:"identifier,attr"`
	BaseType      string `xml:"baseType,attr"`
	NormalMaximum string `xml:"normalMaximum,attr"`
	Default       *struct {
		Value string `xml:"value"`
	} `xml:"defaultValue"`
}

type InteractionType string

const (
	InteractionChoiceSingle InteractionType = "choice_single"
	InteractionChoiceMulti  InteractionType = "choice_multi"
	InteractionTextEntry    InteractionType = "text_entry"
	InteractionExtendedText InteractionType = "extended_text"
	InteractionOrder        InteractionType = "order"
)

type ParsedItem struct {
	ID       string
	Title    string
	Prompt   string
	Kind     InteractionType
	BaseType string   // responseDeclaration baseType, e.g. float for numeric entry
	Choices  []Choice // choice and order interactions
	Correct  []string // correct identifiers, strings or the ordered sequence
	Points   float64
	Guidance string // scorer rubric text
}

type Choice struct {
	ID    string
	Label string
}

var interactionTags = []string{
	"<choiceinteraction",
	"<orderinteraction",
	"<textentryinteraction",
	"<extendedtextinteraction",
}

// ParseItem reads one assessmentItem document. The interaction kind is taken
// from the first interaction element in the body; unknown bodies are treated
// as extended text so they land in the bank for manual grading.
func ParseItem(b []byte) (ParsedItem, error) {
	var it assessmentItem
	if err := xml.Unmarshal(b, &it); err != nil {
		return ParsedItem{}, fmt.Errorf("qti: item: %w", err)
	}
	if strings.TrimSpace(it.Identifier) == "" {
		return ParsedItem{}, fmt.Errorf("qti: item without identifier")
	}

	pi := ParsedItem{
		ID:       it.Identifier,
		Title:    it.Title,
		Prompt:   extractPrompt(it.Body.RawXML),
		BaseType: it.ResponseDecl.BaseType,
		Points:   itemPoints(it.OutcomeDecls),
	}
	if pi.Prompt == "" {
		pi.Prompt = it.Title
	}
	for _, rb := range it.Body.Rubrics {
		if rb.View == "" || strings.Contains(rb.View, "scorer") {
			pi.Guidance = strings.TrimSpace(rb.Text)
			break
		}
	}
	for _, v := range it.ResponseDecl.Correct.Values {
		if v = strings.TrimSpace(v); v != "" {
			pi.Correct = append(pi.Correct, v)
		}
	}

	body := strings.ToLower(it.Body.RawXML)
	switch {
	case strings.Contains(body, "<choiceinteraction"):
		if it.ResponseDecl.Cardinality == "multiple" {
			pi.Kind = InteractionChoiceMulti
		} else {
			pi.Kind = InteractionChoiceSingle
		}
		pi.Choices = extractChoices(it.Body.RawXML)
	case strings.Contains(body, "<orderinteraction"):
		pi.Kind = InteractionOrder
		pi.Choices = extractChoices(it.Body.RawXML)
	case strings.Contains(body, "<textentryinteraction"):
		pi.Kind = InteractionTextEntry
	default:
		pi.Kind = InteractionExtendedText
		pi.Correct = nil
	}
	return pi, nil
}

// itemPoints reads SCORE's normalMaximum, then MAXSCORE's default value.
// Items that declare neither are worth one point.
func itemPoints(decls []outcomeDeclaration) float64 {
	for _, d := range decls {
		if d.Identifier == "SCORE" && d.NormalMaximum != "" {
			if p, err := strconv.ParseFloat(d.NormalMaximum, 64); err == nil && p >= 0 {
				return p
			}
		}
	}
	for _, d := range decls {
		if d.Identifier == "MAXSCORE" && d.Default != nil {
			if p, err := strconv.ParseFloat(strings.TrimSpace(d.Default.Value), 64); err == nil && p >= 0 {
				return p
			}
		}
	}
	return 1
}

// extractPrompt keeps the text in front of the first interaction, falling
// back to the interaction's own <prompt>.
func extractPrompt(inner string) string {
	l := strings.ToLower(inner)
	idx := -1
	for _, tag := range interactionTags {
		if i := strings.Index(l, tag); i != -1 && (idx == -1 || i < idx) {
			idx = i
		}
	}
	if idx == -1 {
		return plainText(inner)
	}
	if p := plainText(inner[:idx]); p != "" {
		return p
	}
	return interactionPrompt(inner[idx:])
}

func interactionPrompt(fragment string) string {
	dec := xml.NewDecoder(strings.NewReader(fragment))
	dec.Strict = false
	for {
		t, err := dec.Token()
		if err != nil {
			return ""
		}
		se, ok := t.(xml.StartElement)
		if !ok || !strings.EqualFold(se.Name.Local, "prompt") {
			continue
		}
		var p struct {
			Inner string `xml:",innerxml"`
		}
		if err := dec.DecodeElement(&p, &se); err != nil {
			return ""
		}
		return plainText(p.Inner)
	}
}

// plainText drops markup and resolves entities. Fragments cut mid-element
// are fine; the decoder runs non-strict and stops at the first error.
func plainText(fragment string) string {
	dec := xml.NewDecoder(strings.NewReader(fragment))
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity
	var sb strings.Builder
	skip := 0
	for {
		t, err := dec.Token()
		if err != nil {
			break
		}
		switch tok := t.(type) {
		case xml.StartElement:
			if strings.EqualFold(tok.Name.Local, "rubricBlock") {
				skip++
			}
		case xml.EndElement:
			if strings.EqualFold(tok.Name.Local, "rubricBlock") && skip > 0 {
				skip--
			}
		case xml.CharData:
			if skip == 0 {
				sb.Write(tok)
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

// extractChoices collects <simpleChoice identifier="A">Label</simpleChoice>.
func extractChoices(inner string) []Choice {
	out := []Choice{}
	dec := xml.NewDecoder(strings.NewReader(inner))
	dec.Strict = false
	for {
		t, err := dec.Token()
		if err != nil {
			break
		}
		se, ok := t.(xml.StartElement)
		if !ok || !strings.EqualFold(se.Name.Local, "simpleChoice") {
			continue
		}
		var id string
		for _, a := range se.Attr {
			if strings.EqualFold(a.Name.Local, "identifier") {
				id = a.Value
				break
			}
		}
		var text struct {
			Inner string `xml:",innerxml"`
		}
		if err := dec.DecodeElement(&text, &se); err == nil {
			out = append(out, Choice{ID: id, Label: plainText(text.Inner)})
		}
	}
	return out
}
