package question

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mind-engage/mindengage-grading/internal/errs"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON names instead of Go field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validator exposes the package validator so HTTP bindings share its tag-name rules.
func Validator() *validator.Validate { return validate }

// Validate checks the question's own fields and that its key fits its type.
func (q Question) Validate() error {
	if strings.TrimSpace(q.ID) == "" {
		return errs.Config("", "id is required")
	}
	if !q.Type.Valid() {
		return errs.Config(q.ID, "unknown type %q", q.Type)
	}
	if strings.TrimSpace(q.Prompt) == "" {
		return errs.Config(q.ID, "prompt is required")
	}
	if q.Points < 0 {
		return errs.Config(q.ID, "points must be non-negative, got %v", q.Points)
	}
	if err := validate.Struct(q.Meta); err != nil {
		return errs.Config(q.ID, "metadata: %s", describe(err))
	}
	if q.Key == nil {
		return nil
	}
	return ValidateKey(q.ID, q.Type, q.Key)
}

// ValidateKey checks key shape for the declared type. Every failure is a
// *errs.ConfigurationError.
func ValidateKey(questionID string, t Type, key AnswerKey) error {
	if key == nil {
		return errs.Config(questionID, "answer key is missing")
	}
	if key.For() != t {
		return errs.Config(questionID, "answer key for %s does not match type %s", key.For(), t)
	}
	if err := validate.Struct(key); err != nil {
		return errs.Config(questionID, "answer key: %s", describe(err))
	}
	if err := checkKey(key); err != nil {
		return errs.Config(questionID, "answer key: %s", err)
	}
	return nil
}

// checkKey holds the cross-field rules struct tags cannot express.
func checkKey(key AnswerKey) error {
	switch k := key.(type) {
	case ChoiceKey:
		if !hasOption(k.Options, k.CorrectID) {
			return fmt.Errorf("correct_id %q is not an option", k.CorrectID)
		}
	case MultiChoiceKey:
		for _, id := range k.CorrectIDs {
			if !hasOption(k.Options, id) {
				return fmt.Errorf("correct_ids: %q is not an option", id)
			}
		}
	case TrueFalseKey:
	case TextKey:
		if len(k.Accepted) == 0 && len(k.Patterns) == 0 {
			return errors.New("at least one accepted answer or pattern is required")
		}
		for _, p := range k.Patterns {
			if _, err := regexp.Compile(p); err != nil {
				return fmt.Errorf("pattern %q: %v", p, err)
			}
		}
	case NumericKey:
		if k.IsRange() {
			if k.Min == nil || k.Max == nil {
				return errors.New("range needs both min and max")
			}
			if *k.Min > *k.Max {
				return fmt.Errorf("min %v exceeds max %v", *k.Min, *k.Max)
			}
			return nil
		}
		if k.Expected == nil {
			return errors.New("expected value or range is required")
		}
	case EssayKey:
	case BlanksKey:
	case PairsKey:
	case OrderKey:
	case PlacementKey:
		zones := make(map[string]struct{}, len(k.Zones))
		for _, z := range k.Zones {
			zones[z] = struct{}{}
		}
		for item, z := range k.Placements {
			if _, ok := zones[z]; !ok {
				return fmt.Errorf("placement of %q targets unknown zone %q", item, z)
			}
		}
	case HotspotKey:
	case ScaleKey:
	default:
		return fmt.Errorf("unsupported key %T", key)
	}
	return nil
}

func hasOption(opts []Option, id string) bool {
	for _, o := range opts {
		if o.ID == id {
			return true
		}
	}
	return false
}

// describe flattens validator errors into "field: tag" pairs.
func describe(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error()
	}
	parts := make([]string, 0, len(ve))
	for _, fe := range ve {
		ns := fe.Namespace()
		if i := strings.IndexByte(ns, '.'); i >= 0 {
			ns = ns[i+1:]
		}
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", ns, fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", ns, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
