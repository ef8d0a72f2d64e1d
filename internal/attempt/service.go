package attempt

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-grading/internal/errs"
	"github.com/mind-engage/mindengage-grading/internal/grading"
	"github.com/mind-engage/mindengage-grading/internal/metrics"
	"github.com/mind-engage/mindengage-grading/internal/notify"
	"github.com/mind-engage/mindengage-grading/internal/pool"
	"github.com/mind-engage/mindengage-grading/internal/question"
	"github.com/mind-engage/mindengage-grading/internal/review"
	"github.com/mind-engage/mindengage-grading/internal/scoring"
)

// Assessments hands out only approved assessments; *review.Service fits.
type Assessments interface {
	Assignable(ctx context.Context, id string) (review.ReviewableAssessment, error)
}

// Questions is the read side of question.Store.
type Questions interface {
	Get(ctx context.Context, id string) (question.Question, error)
	GetMany(ctx context.Context, ids []string) ([]question.Question, error)
}

type Service struct {
	store       Store
	assessments Assessments
	questions   Questions
	engine      *grading.Engine
	notifier    notify.Notifier
	metrics     *metrics.Metrics
	log         *zap.Logger
	now         func() time.Time
}

type Option func(*Service)

func WithNotifier(n notify.Notifier) Option { return func(s *Service) { s.notifier = n } }
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }
func WithLogger(l *zap.Logger) Option       { return func(s *Service) { s.log = l } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(store Store, assessments Assessments, questions Questions, engine *grading.Engine, opts ...Option) *Service {
	s := &Service{
		store:       store,
		assessments: assessments,
		questions:   questions,
		engine:      engine,
		notifier:    notify.Nop{},
		log:         zap.NewNop(),
		now:         time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.engine == nil {
		s.engine = grading.NewEngine(grading.WithLogger(s.log), grading.WithMetrics(s.metrics))
	}
	return s
}

// Start opens an attempt on an approved assessment. The question pool is
// resolved once, seeded by the attempt id, and stored on the attempt.
func (s *Service) Start(ctx context.Context, assessmentID, studentID string) (Attempt, error) {
	if studentID == "" {
		return Attempt{}, fmt.Errorf("%w: student id is required", errs.ErrInvalidInput)
	}
	as, err := s.assessments.Assignable(ctx, assessmentID)
	if err != nil {
		return Attempt{}, err
	}
	qs, err := s.questions.GetMany(ctx, as.QuestionIDs)
	if err != nil {
		return Attempt{}, err
	}
	id := uuid.NewString()
	resolved, err := pool.Resolve(qs, as.Pool, pool.Seed(id))
	if err != nil {
		return Attempt{}, err
	}
	ids := make([]string, len(resolved))
	for i, q := range resolved {
		ids[i] = q.ID
	}
	a := Attempt{
		ID:                id,
		AssessmentID:      as.ID,
		StudentID:         studentID,
		Status:            StatusInProgress,
		QuestionIDs:       ids,
		PassingScoreRatio: as.PassingScoreRatio,
		StartedAt:         s.now().UTC(),
	}
	if err := s.store.CreateAttempt(ctx, a); err != nil {
		return Attempt{}, err
	}
	s.log.Info("attempt started",
		zap.String("attempt_id", a.ID),
		zap.String("assessment_id", a.AssessmentID),
		zap.String("student_id", studentID),
		zap.Int("questions", len(ids)),
	)
	return a, nil
}

func (s *Service) Get(ctx context.Context, id string) (Attempt, error) {
	return s.store.GetAttempt(ctx, id)
}

func (s *Service) List(ctx context.Context, opts ListOpts) ([]Attempt, error) {
	return s.store.ListAttempts(ctx, opts)
}

// SaveAnswer records (or replaces) the student's answer to one question.
// The answer shape is checked against the question type now so Submit never
// sees a malformed one.
func (s *Service) SaveAnswer(ctx context.Context, attemptID, studentID, questionID string, raw json.RawMessage) (question.Submission, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return question.Submission{}, err
	}
	if a.StudentID != studentID {
		return question.Submission{}, errs.NotFound("attempt", attemptID)
	}
	if a.Status != StatusInProgress {
		return question.Submission{}, &errs.InvalidTransitionError{
			From: string(a.Status), To: string(a.Status), Reason: "attempt no longer accepts answers",
		}
	}
	if !a.Has(questionID) {
		return question.Submission{}, errs.NotFound("question", questionID)
	}
	q, err := s.questions.Get(ctx, questionID)
	if err != nil {
		return question.Submission{}, err
	}
	ans, err := question.DecodeAnswer(q.Type, raw)
	if err != nil {
		return question.Submission{}, err
	}
	sub := question.Submission{
		ID:          uuid.NewString(),
		AttemptID:   attemptID,
		StudentID:   studentID,
		QuestionID:  questionID,
		Raw:         raw,
		Answer:      ans,
		SubmittedAt: s.now().UTC(),
	}
	if err := s.store.SaveSubmission(ctx, sub); err != nil {
		return question.Submission{}, err
	}
	return sub, nil
}

// Submit closes the attempt, grades every question in parallel and stores
// result version 1. Manual items leave the result provisional.
func (s *Service) Submit(ctx context.Context, attemptID string) (scoring.AssessmentResult, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return scoring.AssessmentResult{}, err
	}
	now := s.now().UTC()
	if err := s.store.SetStatus(ctx, a.ID, StatusInProgress, StatusSubmitted, now); err != nil {
		if !errs.IsInvalidTransition(err) || !s.ungraded(ctx, a) {
			return scoring.AssessmentResult{}, err
		}
		// an earlier submit closed the attempt but failed before storing a result
		s.log.Warn("resuming interrupted submit", zap.String("attempt_id", a.ID))
	}
	qs, err := s.questions.GetMany(ctx, a.QuestionIDs)
	if err != nil {
		return scoring.AssessmentResult{}, err
	}
	subs, err := s.loadSubmissions(ctx, a, qs)
	if err != nil {
		return scoring.AssessmentResult{}, err
	}
	results, err := s.engine.GradeAll(ctx, qs, subs)
	if err != nil {
		return scoring.AssessmentResult{}, err
	}
	res, err := scoring.Aggregate(qs, results, a.PassingScoreRatio)
	if err != nil {
		return scoring.AssessmentResult{}, err
	}
	res.AttemptID = a.ID
	res.CreatedAt = now
	if err := s.store.AppendResult(ctx, res); err != nil {
		return scoring.AssessmentResult{}, err
	}
	if !res.PendingManualGrading {
		if err := s.store.SetStatus(ctx, a.ID, StatusSubmitted, StatusGraded, now); err != nil {
			return scoring.AssessmentResult{}, err
		}
	}

	typ := notify.TypeGradeCompleted
	if res.PendingManualGrading {
		typ = notify.TypeGradePending
	}
	s.publish(ctx, typ, a, res)
	return res, nil
}

// ApplyManualGrades scores items by hand and stores the next result
// version. With finalize the new version must be complete and is marked
// final; final results accept no further grades.
func (s *Service) ApplyManualGrades(ctx context.Context, attemptID, grader string, grades map[string]grading.ManualInput, finalize bool) (scoring.AssessmentResult, error) {
	if len(grades) == 0 && !finalize {
		return scoring.AssessmentResult{}, fmt.Errorf("%w: no grades given", errs.ErrInvalidInput)
	}
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return scoring.AssessmentResult{}, err
	}
	if a.Status == StatusInProgress {
		return scoring.AssessmentResult{}, &errs.InvalidTransitionError{
			From: string(a.Status), To: string(StatusGraded), Reason: "attempt has not been submitted",
		}
	}
	prev, err := s.store.LatestResult(ctx, attemptID)
	if err != nil {
		return scoring.AssessmentResult{}, err
	}
	// a final version is never touched; regrading it appends the next one
	if prev.Finalized && len(grades) == 0 {
		return scoring.AssessmentResult{}, fmt.Errorf("%w: result is already final", errs.ErrInvalidInput)
	}
	qs, err := s.questions.GetMany(ctx, a.QuestionIDs)
	if err != nil {
		return scoring.AssessmentResult{}, err
	}
	byID := make(map[string]question.Question, len(qs))
	for _, q := range qs {
		byID[q.ID] = q
	}

	now := s.now().UTC()
	qids := make([]string, 0, len(grades))
	for qid := range grades {
		qids = append(qids, qid)
	}
	sort.Strings(qids)
	updates := make([]grading.Result, 0, len(grades))
	for _, qid := range qids {
		q, ok := byID[qid]
		if !ok {
			return scoring.AssessmentResult{}, errs.NotFound("question", qid)
		}
		r, err := grading.ManualGrade(q, grades[qid], grader, now)
		if err != nil {
			return scoring.AssessmentResult{}, err
		}
		s.metrics.ObserveGrade(string(q.Type), r.Outcome())
		updates = append(updates, r)
	}

	next, err := scoring.Regrade(prev, qs, scoring.Merge(prev.Results, updates))
	if err != nil {
		return scoring.AssessmentResult{}, err
	}
	if finalize {
		if next, err = scoring.Finalize(next); err != nil {
			return scoring.AssessmentResult{}, err
		}
	}
	next.CreatedAt = now
	if err := s.store.AppendResult(ctx, next); err != nil {
		return scoring.AssessmentResult{}, err
	}
	if !next.PendingManualGrading && a.Status == StatusSubmitted {
		if err := s.store.SetStatus(ctx, a.ID, StatusSubmitted, StatusGraded, now); err != nil && !errs.IsInvalidTransition(err) {
			return scoring.AssessmentResult{}, err
		}
	}
	s.log.Info("manual grades applied",
		zap.String("attempt_id", a.ID),
		zap.String("grader", grader),
		zap.Int("items", len(updates)),
		zap.Int("version", next.Version),
		zap.Bool("finalized", next.Finalized),
	)
	s.publish(ctx, notify.TypeGradeRevised, a, next)
	return next, nil
}

// Result is the latest version.
func (s *Service) Result(ctx context.Context, attemptID string) (scoring.AssessmentResult, error) {
	return s.store.LatestResult(ctx, attemptID)
}

// ResultHistory lists every version, oldest first.
func (s *Service) ResultHistory(ctx context.Context, attemptID string) ([]scoring.AssessmentResult, error) {
	return s.store.Results(ctx, attemptID)
}

func (s *Service) ungraded(ctx context.Context, a Attempt) bool {
	if a.Status != StatusSubmitted {
		return false
	}
	_, err := s.store.LatestResult(ctx, a.ID)
	return errs.IsNotFound(err)
}

func (s *Service) loadSubmissions(ctx context.Context, a Attempt, qs []question.Question) (map[string]question.Submission, error) {
	stored, err := s.store.Submissions(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	types := make(map[string]question.Type, len(qs))
	for _, q := range qs {
		types[q.ID] = q.Type
	}
	out := make(map[string]question.Submission, len(stored))
	for _, sub := range stored {
		t, ok := types[sub.QuestionID]
		if !ok {
			continue
		}
		ans, err := question.DecodeAnswer(t, sub.Raw)
		if err != nil {
			// the question changed type after the answer was saved
			s.log.Warn("stored answer no longer decodes; grading as unanswered",
				zap.String("attempt_id", a.ID), zap.String("question_id", sub.QuestionID), zap.Error(err))
			ans = nil
		}
		sub.Answer = ans
		out[sub.QuestionID] = sub
	}
	return out, nil
}

// Summary is the latest stored result of an attempt in event form.
func (s *Service) Summary(ctx context.Context, attemptID string) (notify.ResultData, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return notify.ResultData{}, err
	}
	r, err := s.store.LatestResult(ctx, attemptID)
	if err != nil {
		return notify.ResultData{}, err
	}
	return summarize(a, r), nil
}

func summarize(a Attempt, r scoring.AssessmentResult) notify.ResultData {
	return notify.ResultData{
		AttemptID:    a.ID,
		AssessmentID: a.AssessmentID,
		StudentID:    a.StudentID,
		Version:      r.Version,
		TotalScore:   r.TotalScore,
		MaxScore:     r.MaxScore,
		Status:       r.Status(),
		Finalized:    r.Finalized,
	}
}

func (s *Service) publish(ctx context.Context, typ string, a Attempt, r scoring.AssessmentResult) {
	s.metrics.ObserveResult(r.Status())
	s.log.Info("result stored",
		zap.String("attempt_id", a.ID),
		zap.Int("version", r.Version),
		zap.Float64("total", r.TotalScore),
		zap.Float64("max", r.MaxScore),
		zap.String("status", r.Status()),
	)
	ev := notify.Event{
		Type: typ,
		Key:  a.ID,
		At:   r.CreatedAt,
		Data: summarize(a, r),
	}
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.log.Error("notify result", zap.String("attempt_id", a.ID), zap.String("type", typ), zap.Error(err))
	}
}
