package review

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-grading/internal/errs"
	"github.com/mind-engage/mindengage-grading/internal/metrics"
	"github.com/mind-engage/mindengage-grading/internal/notify"
	"github.com/mind-engage/mindengage-grading/internal/pool"
	"github.com/mind-engage/mindengage-grading/internal/question"
	"github.com/mind-engage/mindengage-grading/internal/rbac"
)

// Draft is the author-editable part of an assessment.
type Draft struct {
	Title             string      `json:"title" validate:"required"`
	Content           string      `json:"content"`
	QuestionIDs       []string    `json:"question_ids" validate:"omitempty,unique,dive,required"`
	PassingScoreRatio float64     `json:"passing_score_ratio" validate:"gte=0,lte=1"`
	Pool              pool.Policy `json:"pool"`
}

// QuestionLookup resolves referenced questions; question.Store satisfies it.
type QuestionLookup interface {
	GetMany(ctx context.Context, ids []string) ([]question.Question, error)
}

type Service struct {
	store     Store
	questions QuestionLookup
	notifier  notify.Notifier
	metrics   *metrics.Metrics
	log       *zap.Logger
	autoClaim bool
	now       func() time.Time
}

type Option func(*Service)

func WithNotifier(n notify.Notifier) Option { return func(s *Service) { s.notifier = n } }
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }
func WithLogger(l *zap.Logger) Option       { return func(s *Service) { s.log = l } }
func WithQuestions(q QuestionLookup) Option { return func(s *Service) { s.questions = q } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithAutoClaim moves submitted assessments straight into coordinator review.
func WithAutoClaim(on bool) Option { return func(s *Service) { s.autoClaim = on } }

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		notifier: notify.Nop{},
		log:      zap.NewNop(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create stores a new draft owned by author.
func (s *Service) Create(ctx context.Context, author Actor, d Draft) (ReviewableAssessment, error) {
	if !rbac.Can(author.Role, "assessment:create") || author.ID == "" {
		return ReviewableAssessment{}, fmt.Errorf("%w: role %q may not create assessments", errs.ErrInvalidInput, author.Role)
	}
	if err := s.checkDraft(ctx, d); err != nil {
		return ReviewableAssessment{}, err
	}
	now := s.now().UTC()
	a := ReviewableAssessment{
		ID:                uuid.NewString(),
		AuthorID:          author.ID,
		Title:             strings.TrimSpace(d.Title),
		Content:           d.Content,
		QuestionIDs:       append([]string(nil), d.QuestionIDs...),
		PassingScoreRatio: d.PassingScoreRatio,
		Pool:              d.Pool,
		Status:            StatusDraft,
		Version:           1,
		Cycle:             1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.Create(ctx, a); err != nil {
		return ReviewableAssessment{}, err
	}
	s.log.Info("assessment created", zap.String("assessment_id", a.ID), zap.String("author_id", a.AuthorID))
	return a, nil
}

// Update edits a draft. Only the author may edit, and only in draft.
func (s *Service) Update(ctx context.Context, id string, expectedVersion int64, actor Actor, d Draft) (ReviewableAssessment, error) {
	cur, err := s.load(ctx, id, expectedVersion)
	if err != nil {
		return ReviewableAssessment{}, err
	}
	if cur.Status != StatusDraft {
		return ReviewableAssessment{}, &errs.InvalidTransitionError{
			From: string(cur.Status), To: string(cur.Status), Reason: "content can only be edited in draft",
		}
	}
	if actor.ID != cur.AuthorID || !rbac.Can(actor.Role, "assessment:edit") {
		return ReviewableAssessment{}, &errs.InvalidTransitionError{
			From: string(cur.Status), To: string(cur.Status), Reason: "only the author may edit",
		}
	}
	if err := s.checkDraft(ctx, d); err != nil {
		return ReviewableAssessment{}, err
	}
	next := cur
	next.Title = strings.TrimSpace(d.Title)
	next.Content = d.Content
	next.QuestionIDs = append([]string(nil), d.QuestionIDs...)
	next.PassingScoreRatio = d.PassingScoreRatio
	next.Pool = d.Pool
	next.Version++
	next.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, next, cur.Version); err != nil {
		return ReviewableAssessment{}, err
	}
	return next, nil
}

// Transition moves assessment id to target. expectedVersion is the version
// the caller last saw; 0 accepts whatever is current. Of two concurrent
// calls from the same version exactly one succeeds and the other gets
// *errs.StaleStateError.
func (s *Service) Transition(ctx context.Context, id string, expectedVersion int64, target Status, actor Actor, note string) (ReviewableAssessment, error) {
	cur, err := s.load(ctx, id, expectedVersion)
	if err != nil {
		return ReviewableAssessment{}, err
	}
	next, err := s.apply(ctx, cur, target, actor, note)
	if err != nil {
		return ReviewableAssessment{}, err
	}
	if s.autoClaim && next.Status == StatusSubmitted {
		claimed, err := s.apply(ctx, next, StatusCoordinatorReview, System, "auto-claimed")
		if err != nil {
			// the submit itself is committed; report it and leave the claim to a coordinator
			s.log.Warn("auto-claim failed", zap.String("assessment_id", id), zap.Error(err))
			return next, nil
		}
		next = claimed
	}
	return next, nil
}

func (s *Service) apply(ctx context.Context, cur ReviewableAssessment, target Status, actor Actor, note string) (ReviewableAssessment, error) {
	next, err := Transition(cur, target, actor, note, s.now())
	if err != nil {
		return ReviewableAssessment{}, err
	}
	if err := s.store.Update(ctx, next, cur.Version); err != nil {
		if errs.IsStale(err) {
			s.log.Info("stale transition", zap.String("assessment_id", cur.ID),
				zap.String("from", string(cur.Status)), zap.String("to", string(target)), zap.Error(err))
		}
		return ReviewableAssessment{}, err
	}
	s.metrics.ObserveTransition(string(cur.Status), string(target))
	s.log.Info("assessment transition",
		zap.String("assessment_id", cur.ID),
		zap.String("from", string(cur.Status)),
		zap.String("to", string(target)),
		zap.String("actor_id", actor.ID),
		zap.Int64("version", next.Version),
	)
	rec := next.History[len(next.History)-1]
	ev := notify.Event{Type: notify.TypeReviewTransition, Key: cur.ID, At: rec.At, Data: rec}
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.log.Error("notify transition", zap.String("assessment_id", cur.ID), zap.Error(err))
	}
	return next, nil
}

func (s *Service) load(ctx context.Context, id string, expectedVersion int64) (ReviewableAssessment, error) {
	cur, err := s.store.Get(ctx, id)
	if err != nil {
		return ReviewableAssessment{}, err
	}
	if expectedVersion != 0 && cur.Version != expectedVersion {
		return ReviewableAssessment{}, &errs.StaleStateError{ID: id, Expected: expectedVersion, Actual: cur.Version}
	}
	return cur, nil
}

func (s *Service) Get(ctx context.Context, id string) (ReviewableAssessment, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) History(ctx context.Context, id string) ([]TransitionRecord, error) {
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return a.History, nil
}

func (s *Service) List(ctx context.Context, opts ListOpts) ([]ReviewableAssessment, error) {
	return s.store.List(ctx, opts)
}

// Assignable returns the assessment only if it is approved.
func (s *Service) Assignable(ctx context.Context, id string) (ReviewableAssessment, error) {
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return ReviewableAssessment{}, err
	}
	if a.Status != StatusApproved {
		return ReviewableAssessment{}, &errs.InvalidTransitionError{
			From: string(a.Status), To: "assigned", Reason: "only approved assessments can be assigned",
		}
	}
	return a, nil
}

func (s *Service) checkDraft(ctx context.Context, d Draft) error {
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("%w: title is required", errs.ErrInvalidInput)
	}
	if math.IsNaN(d.PassingScoreRatio) || d.PassingScoreRatio < 0 || d.PassingScoreRatio > 1 {
		return fmt.Errorf("%w: passing_score_ratio %v outside [0, 1]", errs.ErrInvalidInput, d.PassingScoreRatio)
	}
	seen := make(map[string]struct{}, len(d.QuestionIDs))
	for _, id := range d.QuestionIDs {
		if id == "" {
			return fmt.Errorf("%w: empty question id", errs.ErrInvalidInput)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: question %s listed twice", errs.ErrInvalidInput, id)
		}
		seen[id] = struct{}{}
	}
	if s.questions != nil && len(d.QuestionIDs) > 0 {
		if _, err := s.questions.GetMany(ctx, d.QuestionIDs); err != nil {
			return err
		}
	}
	return nil
}
