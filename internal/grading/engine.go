package grading

import (
	"context"
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mind-engage/mindengage-grading/internal/errs"
	"github.com/mind-engage/mindengage-grading/internal/metrics"
	"github.com/mind-engage/mindengage-grading/internal/question"
)

// Grade scores one submission against its question. It is pure and
// deterministic: the same pair always yields the same Result.
//
// A nil question or a submission for a different question is a
// *errs.NotFoundError; a malformed key is a *errs.ConfigurationError.
func Grade(q *question.Question, s question.Submission) (Result, error) {
	if q == nil {
		return Result{}, errs.NotFound("question", s.QuestionID)
	}
	if s.QuestionID != "" && s.QuestionID != q.ID {
		return Result{}, errs.NotFound("question", s.QuestionID)
	}
	if err := q.Validate(); err != nil {
		return Result{}, err
	}

	res := Result{QuestionID: q.ID, Type: q.Type, MaxPoints: q.Points}
	if q.Type.Manual() {
		if s.Answer == nil || isBlankEssay(s.Answer) {
			return scored(res, 0, false, "no answer submitted"), nil
		}
		return pending(res, "manual grading required"), nil
	}
	if q.Key == nil {
		return pending(res, "no answer key; manual grading required"), nil
	}
	if s.Answer == nil {
		return scored(res, 0, false, "no answer submitted"), nil
	}

	var (
		frac    float64
		correct bool
		fb      string
		ok      bool
	)
	switch k := q.Key.(type) {
	case question.ChoiceKey:
		var a question.ChoiceAnswer
		if a, ok = s.Answer.(question.ChoiceAnswer); ok {
			frac, correct, fb = gradeChoice(k, a)
		}
	case question.MultiChoiceKey:
		var a question.ChoicesAnswer
		if a, ok = s.Answer.(question.ChoicesAnswer); ok {
			frac, correct, fb = gradeMulti(k, a)
		}
	case question.TrueFalseKey:
		var a question.BoolAnswer
		if a, ok = s.Answer.(question.BoolAnswer); ok {
			correct = a.Value == k.Correct
			if correct {
				frac = 1
			}
		}
	case question.TextKey:
		var a question.TextAnswer
		if a, ok = s.Answer.(question.TextAnswer); ok {
			frac, correct, fb = gradeText(k, a)
		}
	case question.NumericKey:
		var a question.NumberAnswer
		if a, ok = s.Answer.(question.NumberAnswer); ok {
			frac, correct, fb = gradeNumeric(k, a)
		}
	case question.BlanksKey:
		var a question.BlanksAnswer
		if a, ok = s.Answer.(question.BlanksAnswer); ok {
			frac, correct, fb = gradeBlanks(k, a)
		}
	case question.PairsKey:
		var a question.PairsAnswer
		if a, ok = s.Answer.(question.PairsAnswer); ok {
			frac, correct, fb = gradeMapping(k.Pairs, a.Pairs, "pairs")
		}
	case question.OrderKey:
		var a question.OrderAnswer
		if a, ok = s.Answer.(question.OrderAnswer); ok {
			frac, correct, fb = gradeOrder(k, a)
		}
	case question.PlacementKey:
		var a question.PlacementAnswer
		if a, ok = s.Answer.(question.PlacementAnswer); ok {
			frac, correct, fb = gradeMapping(k.Placements, a.Placements, "placements")
		}
	case question.HotspotKey:
		var a question.PointsAnswer
		if a, ok = s.Answer.(question.PointsAnswer); ok {
			frac, correct, fb = gradeHotspot(k, a)
		}
	case question.ScaleKey:
		var a question.ScaleAnswer
		if a, ok = s.Answer.(question.ScaleAnswer); ok {
			if a.Value >= k.Min && a.Value <= k.Max {
				frac, correct = 1, true
			} else {
				fb = fmt.Sprintf("response must be between %d and %d", k.Min, k.Max)
			}
		}
	case question.EssayKey:
		// Essay is handled above; an essay key on another type fails Validate.
		return Result{}, errs.Config(q.ID, "essay key on %s question", q.Type)
	default:
		return Result{}, errs.Config(q.ID, "unsupported answer key %T", q.Key)
	}
	if !ok {
		return scored(res, 0, false, fmt.Sprintf("answer does not fit a %s question", q.Type)), nil
	}
	return scored(res, frac, correct, fb), nil
}

func isBlankEssay(a question.Answer) bool {
	e, ok := a.(question.EssayAnswer)
	return ok && normalize(e.Text, true) == ""
}

func gradeChoice(k question.ChoiceKey, a question.ChoiceAnswer) (float64, bool, string) {
	if a.OptionID == k.CorrectID {
		return 1, true, ""
	}
	return 0, false, ""
}

// gradeMulti requires exact set equality for correctness. With partial
// credit it awards |C∩S| / |C∪S|.
func gradeMulti(k question.MultiChoiceKey, a question.ChoicesAnswer) (float64, bool, string) {
	correct := toSet(k.CorrectIDs)
	sub := toSet(a.OptionIDs)
	if setEqual(correct, sub) {
		return 1, true, ""
	}
	if !k.PartialCredit {
		return 0, false, ""
	}
	inter := 0
	for id := range sub {
		if _, ok := correct[id]; ok {
			inter++
		}
	}
	union := len(correct) + len(sub) - inter
	if union == 0 {
		return 0, false, ""
	}
	return float64(inter) / float64(union), false, fmt.Sprintf("%d of %d options overlap", inter, union)
}

// gradeMapping compares each expected left->right entry; extra entries in
// the answer are ignored.
func gradeMapping(want, got map[string]string, noun string) (float64, bool, string) {
	right := 0
	for l, r := range want {
		if got[l] == r {
			right++
		}
	}
	return fraction(right, len(want), noun)
}

func gradeOrder(k question.OrderKey, a question.OrderAnswer) (float64, bool, string) {
	right := 0
	for i, id := range k.Order {
		if i < len(a.Order) && a.Order[i] == id {
			right++
		}
	}
	return fraction(right, len(k.Order), "positions")
}

// gradeHotspot: each region hit at least once, every point inside some region.
func gradeHotspot(k question.HotspotKey, a question.PointsAnswer) (float64, bool, string) {
	if len(a.Points) == 0 {
		return 0, false, "no points selected"
	}
	hit := make([]bool, len(k.Regions))
	for _, p := range a.Points {
		inside := false
		for i, r := range k.Regions {
			if r.Contains(p) {
				hit[i] = true
				inside = true
			}
		}
		if !inside {
			return 0, false, "selection outside the target regions"
		}
	}
	for _, h := range hit {
		if !h {
			return 0, false, "not every target region was selected"
		}
	}
	return 1, true, ""
}

func fraction(right, total int, noun string) (float64, bool, string) {
	if total == 0 {
		return 0, false, ""
	}
	fb := ""
	if right != total {
		fb = fmt.Sprintf("%d/%d %s correct", right, total, noun)
	}
	return float64(right) / float64(total), right == total, fb
}

func toSet(arr []string) map[string]struct{} {
	m := make(map[string]struct{}, len(arr))
	for _, s := range arr {
		m[s] = struct{}{}
	}
	return m
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// Lookup resolves question ids; question.Store satisfies it.
type Lookup interface {
	Get(ctx context.Context, id string) (question.Question, error)
}

// Engine wraps Grade with lookups, parallel fan-out, logging and metrics.
type Engine struct {
	log     *zap.Logger
	metrics *metrics.Metrics
	workers int
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option       { return func(e *Engine) { e.log = l } }
func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// WithWorkers bounds GradeAll concurrency; n <= 0 means GOMAXPROCS.
func WithWorkers(n int) Option { return func(e *Engine) { e.workers = n } }

func NewEngine(opts ...Option) *Engine {
	e := &Engine{log: zap.NewNop()}
	for _, o := range opts {
		o(e)
	}
	if e.workers <= 0 {
		e.workers = runtime.GOMAXPROCS(0)
	}
	return e
}

func (e *Engine) Grade(q *question.Question, s question.Submission) (Result, error) {
	res, err := Grade(q, s)
	if err != nil {
		e.log.Warn("grade failed", zap.String("question_id", s.QuestionID), zap.Error(err))
		return Result{}, err
	}
	e.metrics.ObserveGrade(string(res.Type), res.Outcome())
	return res, nil
}

// GradeByID looks the question up first; a dangling id is a *errs.NotFoundError.
func (e *Engine) GradeByID(ctx context.Context, lookup Lookup, s question.Submission) (Result, error) {
	q, err := lookup.Get(ctx, s.QuestionID)
	if err != nil {
		if errs.IsNotFound(err) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("lookup question %s: %w", s.QuestionID, err)
	}
	return e.Grade(&q, s)
}

// GradeAll grades every question in qs against subs (keyed by question id)
// in parallel. Results come back in question order; unanswered questions are
// graded with a nil answer. The first error cancels the rest.
func (e *Engine) GradeAll(ctx context.Context, qs []question.Question, subs map[string]question.Submission) ([]Result, error) {
	out := make([]Result, len(qs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range qs {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, ok := subs[qs[i].ID]
			if !ok {
				s = question.Submission{QuestionID: qs[i].ID}
			}
			res, err := e.Grade(&qs[i], s)
			if err != nil {
				return err
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
