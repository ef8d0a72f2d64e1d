package gradebook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-grading/internal/errs"
	"github.com/mind-engage/mindengage-grading/internal/metrics"
	"github.com/mind-engage/mindengage-grading/internal/notify"
)

const linkKind = "gradebook link"

type Syncer struct {
	store   Store
	ags     AGSClient
	results Results
	now     func() time.Time
	log     *zap.Logger
	metrics *metrics.Metrics
}

type Option func(*Syncer)

func WithResults(r Results) Option          { return func(s *Syncer) { s.results = r } }
func WithLogger(l *zap.Logger) Option       { return func(s *Syncer) { s.log = l } }
func WithClock(now func() time.Time) Option { return func(s *Syncer) { s.now = now } }
func WithMetrics(m *metrics.Metrics) Option { return func(s *Syncer) { s.metrics = m } }

func New(store Store, ags AGSClient, opts ...Option) *Syncer {
	s := &Syncer{
		store: store,
		ags:   ags,
		now:   func() time.Time { return time.Now().UTC() },
		log:   zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetResults attaches the result source after construction. The attempt
// service publishes through the syncer, so it is built afterwards.
func (s *Syncer) SetResults(r Results) { s.results = r }

// Link stores or replaces the binding of an assessment to a platform
// line-items container. A rebind forgets the previously found line item.
func (s *Syncer) Link(ctx context.Context, l Link) (Link, error) {
	if l.AssessmentID == "" || l.LineItemsURL == "" {
		return Link{}, fmt.Errorf("%w: assessment_id and lineitems_url are required", errs.ErrInvalidInput)
	}
	l.UpdatedAt = s.now()
	if err := s.store.PutLink(ctx, l); err != nil {
		return Link{}, err
	}
	if err := s.store.UpsertLineItem(ctx, BoundLineItem{AssessmentID: l.AssessmentID}); err != nil {
		return Link{}, err
	}
	return l, nil
}

// EnsureLineItem returns the assessment's line item, adopting a matching
// one already on the platform or creating it.
func (s *Syncer) EnsureLineItem(ctx context.Context, assessmentID string, scoreMax float64) (BoundLineItem, error) {
	if li, err := s.store.FindLineItem(ctx, assessmentID); err == nil && li.URL != "" {
		return li, nil
	} else if err != nil && !errs.IsNotFound(err) {
		return BoundLineItem{}, err
	}
	link, err := s.store.GetLink(ctx, assessmentID)
	if err != nil {
		return BoundLineItem{}, err
	}

	items, err := s.ags.ListLineItems(ctx, link.LineItemsURL, map[string]string{
		"resource_id":      assessmentID,
		"resource_link_id": link.ResourceLinkID,
	})
	if err != nil {
		// listing is optional for some platforms; fall through to create
		s.log.Warn("list line items", zap.String("assessment_id", assessmentID), zap.Error(err))
	}
	for _, it := range items {
		if it.ResourceID == assessmentID && it.ResourceLinkID == link.ResourceLinkID {
			li := BoundLineItem{AssessmentID: assessmentID, URL: it.ID, Label: it.Label, ScoreMax: it.ScoreMaximum}
			return li, s.store.UpsertLineItem(ctx, li)
		}
	}

	label := link.Label
	if label == "" {
		label = assessmentID
	}
	created, err := s.ags.CreateLineItem(ctx, link.LineItemsURL, CreateLineItemReq{
		Label: label, ScoreMaximum: scoreMax, ResourceID: assessmentID, ResourceLinkID: link.ResourceLinkID,
	})
	if err != nil {
		return BoundLineItem{}, fmt.Errorf("create line item: %w", err)
	}
	li := BoundLineItem{AssessmentID: assessmentID, URL: created.ID, Label: created.Label, ScoreMax: created.ScoreMaximum}
	return li, s.store.UpsertLineItem(ctx, li)
}

// Sync posts one result version to the platform. Assessments without a link
// return *errs.NotFoundError before any state is written.
func (s *Syncer) Sync(ctx context.Context, r notify.ResultData) (err error) {
	if _, err := s.store.GetLink(ctx, r.AssessmentID); err != nil {
		return err
	}
	if err := s.store.MarkSync(ctx, r.AttemptID, r.Version, SyncPending, "", s.now()); err != nil {
		return err
	}
	defer func() {
		status, msg, outcome := SyncOK, "", "ok"
		if err != nil {
			status, msg, outcome = SyncFailed, err.Error(), "failed"
		}
		s.metrics.ObserveGradebookSync(outcome)
		if merr := s.store.MarkSync(ctx, r.AttemptID, r.Version, status, msg, s.now()); merr != nil {
			s.log.Error("mark gradebook sync", zap.String("attempt_id", r.AttemptID), zap.Error(merr))
		}
	}()

	li, err := s.EnsureLineItem(ctx, r.AssessmentID, r.MaxScore)
	if err != nil {
		return err
	}
	userID, err := s.store.PlatformUserID(ctx, r.StudentID)
	if err != nil {
		if errs.IsNotFound(err) {
			return fmt.Errorf("%w: no platform user mapping for %s", errs.ErrInvalidInput, r.StudentID)
		}
		return err
	}

	progress := ProgressFullyGraded
	if !r.Finalized && r.Status == "pending" {
		progress = ProgressPendingManual
	}
	if err := s.ags.PostScore(ctx, li.URL, Score{
		UserID:           userID,
		ScoreGiven:       r.TotalScore,
		ScoreMaximum:     r.MaxScore,
		ActivityProgress: "Completed",
		GradingProgress:  progress,
		Timestamp:        s.now(),
	}); err != nil {
		return fmt.Errorf("post score: %w", err)
	}
	s.log.Info("score passed back",
		zap.String("attempt_id", r.AttemptID),
		zap.Int("version", r.Version),
		zap.String("progress", progress),
	)
	return nil
}

// Resync posts the attempt's latest result again.
func (s *Syncer) Resync(ctx context.Context, attemptID string) (SyncState, error) {
	if s.results == nil {
		return SyncState{}, errors.New("gradebook: resync needs a result source")
	}
	r, err := s.results.Summary(ctx, attemptID)
	if err != nil {
		return SyncState{}, err
	}
	if err := s.Sync(ctx, r); err != nil {
		return SyncState{}, err
	}
	return s.store.SyncState(ctx, attemptID)
}

func (s *Syncer) State(ctx context.Context, attemptID string) (SyncState, error) {
	return s.store.SyncState(ctx, attemptID)
}

func (s *Syncer) MapUser(ctx context.Context, studentID, platformUserID string) error {
	if studentID == "" || platformUserID == "" {
		return fmt.Errorf("%w: student and platform user ids are required", errs.ErrInvalidInput)
	}
	return s.store.PutPlatformUser(ctx, studentID, platformUserID)
}

// Notify makes the syncer a notifier: every grade event of a linked
// assessment is passed back, unlinked ones are ignored.
func (s *Syncer) Notify(ctx context.Context, e notify.Event) error {
	switch e.Type {
	case notify.TypeGradeCompleted, notify.TypeGradePending, notify.TypeGradeRevised:
	default:
		return nil
	}
	var r notify.ResultData
	switch d := e.Data.(type) {
	case notify.ResultData:
		r = d
	case *notify.ResultData:
		r = *d
	default:
		return nil
	}
	err := s.Sync(ctx, r)
	var nf *errs.NotFoundError
	if errors.As(err, &nf) && nf.Kind == linkKind {
		return nil
	}
	return err
}
