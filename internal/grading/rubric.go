package grading

import (
	"fmt"
	"strings"

	"github.com/mind-engage/mindengage-grading/internal/question"
)

// ScoreRubric sums awarded points per criterion, clamping each to its
// maximum and the total to max when max > 0.
func ScoreRubric(criteria []question.Criterion, max float64, awarded map[string]float64) (float64, string) {
	total := 0.0
	notes := make([]string, 0, len(criteria))
	for _, c := range criteria {
		v := clamp(awarded[c.Key], 0, c.MaxPoints)
		total += v
		notes = append(notes, fmt.Sprintf("%s:%.2f", c.Key, v))
	}
	if max > 0 && total > max {
		total = max
	}
	return round4(total), strings.Join(notes, " ")
}
