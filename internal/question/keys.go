package question

// AnswerKey is the per-type correct-answer record. The set of implementations
// is closed: one struct per Type, matched exhaustively by the grading engine.
type AnswerKey interface {
	// For reports the question type the key belongs to.
	For() Type
	sealed()
}

type Option struct {
	ID    string `json:"id" validate:"required"`
	Label string `json:"label,omitempty"`
}

// ChoiceKey: exactly one correct option.
type ChoiceKey struct {
	Options   []Option `json:"options" validate:"required,min=2,unique=ID,dive"`
	CorrectID string   `json:"correct_id" validate:"required"`
}

// MultiChoiceKey: a set of correct options. PartialCredit awards the
// Jaccard fraction |correct ∩ submitted| / |correct ∪ submitted|.
type MultiChoiceKey struct {
	Options       []Option `json:"options" validate:"required,min=2,unique=ID,dive"`
	CorrectIDs    []string `json:"correct_ids" validate:"required,min=1,unique,dive,required"`
	PartialCredit bool     `json:"partial_credit,omitempty"`
}

type TrueFalseKey struct {
	Correct bool `json:"correct"`
}

// TextKey accepts any normalized string in Accepted or any full match of a
// Patterns regexp.
type TextKey struct {
	Accepted      []string `json:"accepted,omitempty" validate:"omitempty,dive,required"`
	Patterns      []string `json:"patterns,omitempty" validate:"omitempty,dive,required"`
	CaseSensitive bool     `json:"case_sensitive,omitempty"`
}

// NumericKey is either Expected±Tolerance or an inclusive [Min, Max] range.
type NumericKey struct {
	Expected  *float64 `json:"expected,omitempty"`
	Tolerance float64  `json:"tolerance,omitempty" validate:"gte=0"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
}

func (k NumericKey) IsRange() bool { return k.Min != nil || k.Max != nil }

// EssayKey carries guidance for the human grader only.
type EssayKey struct {
	Guidance string      `json:"guidance,omitempty"`
	Criteria []Criterion `json:"criteria,omitempty" validate:"omitempty,unique=Key,dive"`
	MaxWords int         `json:"max_words,omitempty" validate:"gte=0"`
}

// Criterion is one rubric line a grader awards points against.
type Criterion struct {
	Key       string  `json:"key" validate:"required"`
	Desc      string  `json:"desc,omitempty"`
	MaxPoints float64 `json:"max_points" validate:"gte=0"`
}

// BlanksKey lists the accepted strings for each blank, in order.
type BlanksKey struct {
	Blanks        [][]string `json:"blanks" validate:"required,min=1,dive,min=1,dive,required"`
	CaseSensitive bool       `json:"case_sensitive,omitempty"`
}

// PairsKey maps each left-hand item to its right-hand match.
type PairsKey struct {
	Pairs map[string]string `json:"pairs" validate:"required,min=1,dive,keys,required,endkeys,required"`
}

// OrderKey is the correct sequence of item ids.
type OrderKey struct {
	Order []string `json:"order" validate:"required,min=2,unique,dive,required"`
}

// PlacementKey maps draggable items to drop zones.
type PlacementKey struct {
	Zones      []string          `json:"zones" validate:"required,min=1,unique,dive,required"`
	Placements map[string]string `json:"placements" validate:"required,min=1,dive,keys,required,endkeys,required"`
}

// Region is an axis-aligned rectangle in image coordinates.
type Region struct {
	ID     string  `json:"id,omitempty"`
	X      float64 `json:"x" validate:"gte=0"`
	Y      float64 `json:"y" validate:"gte=0"`
	Width  float64 `json:"width" validate:"gt=0"`
	Height float64 `json:"height" validate:"gt=0"`
}

func (r Region) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.X+r.Width && p.Y >= r.Y && p.Y <= r.Y+r.Height
}

// HotspotKey: every region must be hit and no click may land outside them.
type HotspotKey struct {
	Regions []Region `json:"regions" validate:"required,min=1,dive"`
}

// ScaleKey bounds a likert response; any in-range response earns the points.
type ScaleKey struct {
	Min int `json:"min"`
	Max int `json:"max" validate:"gtfield=Min"`
}

func (ChoiceKey) For() Type      { return TypeMultipleChoice }
func (MultiChoiceKey) For() Type { return TypeMultipleAnswer }
func (TrueFalseKey) For() Type   { return TypeTrueFalse }
func (TextKey) For() Type        { return TypeShortAnswer }
func (NumericKey) For() Type     { return TypeNumeric }
func (EssayKey) For() Type       { return TypeEssay }
func (BlanksKey) For() Type      { return TypeFillBlank }
func (PairsKey) For() Type       { return TypeMatching }
func (OrderKey) For() Type       { return TypeSequence }
func (PlacementKey) For() Type   { return TypeDragDrop }
func (HotspotKey) For() Type     { return TypeHotspot }
func (ScaleKey) For() Type       { return TypeLikert }

func (ChoiceKey) sealed()      {}
func (MultiChoiceKey) sealed() {}
func (TrueFalseKey) sealed()   {}
func (TextKey) sealed()        {}
func (NumericKey) sealed()     {}
func (EssayKey) sealed()       {}
func (BlanksKey) sealed()      {}
func (PairsKey) sealed()       {}
func (OrderKey) sealed()       {}
func (PlacementKey) sealed()   {}
func (HotspotKey) sealed()     {}
func (ScaleKey) sealed()       {}
