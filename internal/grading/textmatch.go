package grading

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/mind-engage/mindengage-grading/internal/question"
)

// normalize trims, collapses runs of whitespace to one space and, unless
// caseSensitive, folds case.
func normalize(s string, caseSensitive bool) string {
	out := make([]rune, 0, len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && len(out) > 0 {
			out = append(out, ' ')
		}
		space = false
		if !caseSensitive {
			r = unicode.ToLower(r)
		}
		out = append(out, r)
	}
	return string(out)
}

// matchText reports whether text equals an accepted answer after
// normalization or fully matches one of the patterns.
func matchText(accepted, patterns []string, caseSensitive bool, text string) bool {
	got := normalize(text, caseSensitive)
	for _, a := range accepted {
		if normalize(a, caseSensitive) == got {
			return true
		}
	}
	if len(patterns) == 0 {
		return false
	}
	subject := normalize(text, true)
	for _, p := range patterns {
		expr := `^(?:` + p + `)$`
		if !caseSensitive {
			expr = `(?i)` + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			// keys are validated before grading; an uncompilable pattern never matches
			continue
		}
		if re.MatchString(subject) {
			return true
		}
	}
	return false
}

func gradeText(k question.TextKey, a question.TextAnswer) (float64, bool, string) {
	if strings.TrimSpace(a.Text) == "" {
		return 0, false, "empty answer"
	}
	if matchText(k.Accepted, k.Patterns, k.CaseSensitive, a.Text) {
		return 1, true, ""
	}
	return 0, false, ""
}

// gradeBlanks scores each blank independently; missing blanks are wrong.
func gradeBlanks(k question.BlanksKey, a question.BlanksAnswer) (float64, bool, string) {
	right := 0
	for i, accepted := range k.Blanks {
		if i >= len(a.Values) {
			break
		}
		if strings.TrimSpace(a.Values[i]) != "" && matchText(accepted, nil, k.CaseSensitive, a.Values[i]) {
			right++
		}
	}
	return fraction(right, len(k.Blanks), "blanks")
}
