package export

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/mind-engage/mindengage-grading/internal/question"
)

const (
	nsQTI      = "http://www.imsglobal.org/xsd/imsqti_v2p1"
	nsContent  = "http://www.imsglobal.org/xsd/imscp_v1p1"
	itemType   = "imsqti_item_xmlv2p1"
	responseID = "RESPONSE"
)

// BuildPackage writes a content package with one item per question.
// Question types with no QTI 2.1 interaction here (fill-blank, matching,
// drag-drop, hotspot, likert) are left out and their ids returned in skipped.
func BuildPackage(qs []question.Question) (pkg []byte, skipped []string, err error) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	mf := imsManifest{Xmlns: nsContent, Identifier: "mindengage-questions"}
	for _, q := range qs {
		item, ok := buildItem(q)
		if !ok {
			skipped = append(skipped, q.ID)
			continue
		}
		// ids are free text; file names are positional
		name := fmt.Sprintf("items/item-%04d.xml", len(mf.Resources)+1)
		mf.Resources = append(mf.Resources, imsResource{
			Identifier: q.ID,
			Type:       itemType,
			Href:       name,
			Files:      []imsFile{{Href: name}},
		})
		if err := writeXML(zw, name, item); err != nil {
			return nil, nil, err
		}
	}
	if err := writeXML(zw, "imsmanifest.xml", mf); err != nil {
		return nil, nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, nil, fmt.Errorf("qti: close zip: %w", err)
	}
	return buf.Bytes(), skipped, nil
}

func writeXML(zw *zip.Writer, name string, v any) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("qti: create %s: %w", name, err)
	}
	if _, err := w.Write([]byte(xml.Header)); err != nil {
		return fmt.Errorf("qti: write %s: %w", name, err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("qti: encode %s: %w", name, err)
	}
	return enc.Close()
}

// --- manifest ---

type imsManifest struct {
	XMLName    xml.Name      `xml:"manifest"`
	Xmlns      string        `xml:"xmlns,attr,omitempty"`
	Identifier string        `xml:"identifier,attr"`
	Resources  []imsResource `xml:"resources>resource"`
}
type imsResource struct {
	Identifier string    `xml:"identifier,attr"`
	Type       string    `xml:"type,attr"`
	Href       string    `xml:"href,attr"`
	Files      []imsFile `xml:"file"`
}
type imsFile struct {
	Href string `xml:"href,attr"`
}

// --- items ---

type assessmentItem struct {
	XMLName    xml.Name             `xml:"assessmentItem"`
	Xmlns      string               `xml:"xmlns,attr"`
	Identifier string               `xml:"identifier,attr"`
	Title      string               `xml:"title,attr"`
	Adaptive   bool                 `xml:"adaptive,attr"`
	TimeDep    bool                 `xml:"timeDependent,attr"`
	Response   *responseDeclaration `xml:"responseDeclaration,omitempty"`
	Outcome    outcomeDeclaration   `xml:"outcomeDeclaration"`
	Body       itemBody             `xml:"itemBody"`
}

type responseDeclaration struct {
	Identifier  string   `xml:"identifier,attr"`
	Cardinality string   `xml:"cardinality,attr"`
	BaseType    string   `xml:"baseType,attr"`
	Correct     []string `xml:"correctResponse>value,omitempty"`
}

type outcomeDeclaration struct {
	Identifier    string `xml:"identifier,attr"`
	Cardinality   string `xml:"cardinality,attr"`
	BaseType      string `xml:"baseType,attr"`
	NormalMaximum string `xml:"normalMaximum,attr"`
}

type itemBody struct {
	Prompt       string           `xml:"p"`
	Choice       *choiceBlock     `xml:"choiceInteraction,omitempty"`
	Order        *choiceBlock     `xml:"orderInteraction,omitempty"`
	TextEntry    *textInteraction `xml:"textEntryInteraction,omitempty"`
	ExtendedText *textInteraction `xml:"extendedTextInteraction,omitempty"`
	Rubric       *rubricBlock     `xml:"rubricBlock,omitempty"`
}

type choiceBlock struct {
	ResponseID string         `xml:"responseIdentifier,attr"`
	Shuffle    bool           `xml:"shuffle,attr"`
	MaxChoices int            `xml:"maxChoices,attr,omitempty"`
	Choices    []simpleChoice `xml:"simpleChoice"`
}

type simpleChoice struct {
	Identifier string `xml:"identifier,attr"`
	Label      string `xml:",chardata"`
}

type textInteraction struct {
	ResponseID string `xml:"responseIdentifier,attr"`
}

type rubricBlock struct {
	View string `xml:"view,attr"`
	Text string `xml:",chardata"`
}

func buildItem(q question.Question) (assessmentItem, bool) {
	item := assessmentItem{
		Xmlns:      nsQTI,
		Identifier: q.ID,
		Title:      q.ID,
		Outcome: outcomeDeclaration{
			Identifier:    "SCORE",
			Cardinality:   "single",
			BaseType:      "float",
			NormalMaximum: strconv.FormatFloat(q.Points, 'f', -1, 64),
		},
		Body: itemBody{Prompt: q.Prompt},
	}
	resp := &responseDeclaration{Identifier: responseID, Cardinality: "single", BaseType: "identifier"}

	switch q.Type {
	case question.TypeMultipleChoice:
		var opts []question.Option
		if k, ok := q.Key.(question.ChoiceKey); ok {
			opts = k.Options
			resp.Correct = []string{k.CorrectID}
		}
		item.Body.Choice = choices(opts, 1)
	case question.TypeMultipleAnswer:
		resp.Cardinality = "multiple"
		var opts []question.Option
		if k, ok := q.Key.(question.MultiChoiceKey); ok {
			opts = k.Options
			resp.Correct = k.CorrectIDs
		}
		item.Body.Choice = choices(opts, 0)
	case question.TypeTrueFalse:
		if k, ok := q.Key.(question.TrueFalseKey); ok {
			resp.Correct = []string{strconv.FormatBool(k.Correct)}
		}
		item.Body.Choice = choices([]question.Option{{ID: "true", Label: "True"}, {ID: "false", Label: "False"}}, 1)
	case question.TypeShortAnswer:
		resp.BaseType = "string"
		if k, ok := q.Key.(question.TextKey); ok {
			resp.Correct = k.Accepted
		}
		item.Body.TextEntry = &textInteraction{ResponseID: responseID}
	case question.TypeNumeric:
		resp.BaseType = "float"
		// ranges and tolerances have no correctResponse form; the item goes
		// out keyless and is re-keyed after import.
		if k, ok := q.Key.(question.NumericKey); ok && k.Expected != nil && k.Tolerance == 0 {
			resp.Correct = []string{strconv.FormatFloat(*k.Expected, 'f', -1, 64)}
		}
		item.Body.TextEntry = &textInteraction{ResponseID: responseID}
	case question.TypeSequence:
		resp.Cardinality = "ordered"
		var opts []question.Option
		if k, ok := q.Key.(question.OrderKey); ok {
			resp.Correct = k.Order
			for _, id := range k.Order {
				opts = append(opts, question.Option{ID: id, Label: id})
			}
		}
		item.Body.Order = choices(opts, 0)
	case question.TypeEssay:
		resp.BaseType = "string"
		item.Body.ExtendedText = &textInteraction{ResponseID: responseID}
		if k, ok := q.Key.(question.EssayKey); ok && k.Guidance != "" {
			item.Body.Rubric = &rubricBlock{View: "scorer", Text: k.Guidance}
		}
	default:
		return assessmentItem{}, false
	}
	item.Response = resp
	return item, true
}

func choices(opts []question.Option, maxChoices int) *choiceBlock {
	cb := &choiceBlock{ResponseID: responseID, MaxChoices: maxChoices}
	for _, o := range opts {
		label := o.Label
		if label == "" {
			label = o.ID
		}
		cb.Choices = append(cb.Choices, simpleChoice{Identifier: o.ID, Label: label})
	}
	return cb
}
