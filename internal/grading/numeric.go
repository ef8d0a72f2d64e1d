package grading

import (
	"fmt"
	"math"

	"github.com/mind-engage/mindengage-grading/internal/question"
)

// eps absorbs float representation error so that an answer exactly on the
// tolerance boundary is accepted.
const eps = 1e-9

// slack is the rounding allowance for comparing v against expected: eps, or
// a few ulps when the magnitudes are so large that eps is below one ulp. It
// never grows with the size of the expected value beyond representation error.
func slack(v, expected float64) float64 {
	m := math.Max(math.Abs(v), math.Abs(expected))
	ulp := math.Nextafter(m, math.Inf(1)) - m
	return math.Max(eps, 4*ulp)
}

// gradeNumeric accepts |v - expected| <= tolerance, or min <= v <= max when
// the key is a range. Both bounds are inclusive.
func gradeNumeric(k question.NumericKey, a question.NumberAnswer) (float64, bool, string) {
	v := a.Value
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, "not a finite number"
	}
	if k.IsRange() {
		if v >= *k.Min-eps && v <= *k.Max+eps {
			return 1, true, ""
		}
		return 0, false, fmt.Sprintf("expected a value between %g and %g", *k.Min, *k.Max)
	}
	if math.Abs(v-*k.Expected) <= k.Tolerance+slack(v, *k.Expected) {
		return 1, true, ""
	}
	return 0, false, ""
}
