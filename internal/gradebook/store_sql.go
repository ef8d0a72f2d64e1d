package gradebook

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-grading/internal/errs"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

func (s *SQLStore) GetLink(ctx context.Context, assessmentID string) (Link, error) {
	var (
		l  Link
		at int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT assessment_id, lineitems_url, resource_link_id, label, updated_at
		FROM gradebook_links WHERE assessment_id=$1`, assessmentID).
		Scan(&l.AssessmentID, &l.LineItemsURL, &l.ResourceLinkID, &l.Label, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return Link{}, errs.NotFound(linkKind, assessmentID)
	}
	if err != nil {
		return Link{}, errors.Wrap(err, "query gradebook link")
	}
	l.UpdatedAt = time.Unix(at, 0).UTC()
	return l, nil
}

func (s *SQLStore) PutLink(ctx context.Context, l Link) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO gradebook_links (assessment_id, lineitems_url, resource_link_id, label, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (assessment_id) DO UPDATE SET
			lineitems_url=EXCLUDED.lineitems_url,
			resource_link_id=EXCLUDED.resource_link_id,
			label=EXCLUDED.label,
			updated_at=EXCLUDED.updated_at`,
		l.AssessmentID, l.LineItemsURL, l.ResourceLinkID, l.Label, l.UpdatedAt.Unix())
	return errors.Wrap(err, "upsert gradebook link")
}

func (s *SQLStore) FindLineItem(ctx context.Context, assessmentID string) (BoundLineItem, error) {
	var li BoundLineItem
	err := s.db.QueryRowContext(ctx, `SELECT assessment_id, line_item_url, label, score_max
		FROM gradebook_line_items WHERE assessment_id=$1`, assessmentID).
		Scan(&li.AssessmentID, &li.URL, &li.Label, &li.ScoreMax)
	if errors.Is(err, sql.ErrNoRows) {
		return BoundLineItem{}, errs.NotFound("line item", assessmentID)
	}
	return li, errors.Wrap(err, "query line item")
}

func (s *SQLStore) UpsertLineItem(ctx context.Context, li BoundLineItem) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO gradebook_line_items (assessment_id, line_item_url, label, score_max)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (assessment_id) DO UPDATE SET
			line_item_url=EXCLUDED.line_item_url,
			label=EXCLUDED.label,
			score_max=EXCLUDED.score_max`,
		li.AssessmentID, li.URL, li.Label, li.ScoreMax)
	return errors.Wrap(err, "upsert line item")
}

func (s *SQLStore) PlatformUserID(ctx context.Context, studentID string) (string, error) {
	var sub string
	err := s.db.QueryRowContext(ctx, `SELECT platform_user_id FROM gradebook_users WHERE student_id=$1`, studentID).Scan(&sub)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errs.NotFound("platform user", studentID)
	}
	return sub, errors.Wrap(err, "query platform user")
}

func (s *SQLStore) PutPlatformUser(ctx context.Context, studentID, platformUserID string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO gradebook_users (student_id, platform_user_id)
		VALUES ($1,$2)
		ON CONFLICT (student_id) DO UPDATE SET platform_user_id=EXCLUDED.platform_user_id`,
		studentID, platformUserID)
	return errors.Wrap(err, "upsert platform user")
}

func (s *SQLStore) MarkSync(ctx context.Context, attemptID string, version int, status SyncStatus, lastErr string, at time.Time) error {
	bump := 0
	if status == SyncFailed {
		bump = 1
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO gradebook_sync (attempt_id, version, status, retries, last_error, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (attempt_id) DO UPDATE SET
			version=EXCLUDED.version,
			status=EXCLUDED.status,
			retries=gradebook_sync.retries+EXCLUDED.retries,
			last_error=EXCLUDED.last_error,
			updated_at=EXCLUDED.updated_at`,
		attemptID, version, string(status), bump, lastErr, at.Unix())
	return errors.Wrap(err, "mark gradebook sync")
}

func (s *SQLStore) SyncState(ctx context.Context, attemptID string) (SyncState, error) {
	var (
		st     SyncState
		status string
		at     int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT attempt_id, version, status, retries, last_error, updated_at
		FROM gradebook_sync WHERE attempt_id=$1`, attemptID).
		Scan(&st.AttemptID, &st.Version, &status, &st.Retries, &st.LastError, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return SyncState{}, errs.NotFound("gradebook sync", attemptID)
	}
	if err != nil {
		return SyncState{}, errors.Wrap(err, "query gradebook sync")
	}
	st.Status = SyncStatus(status)
	st.UpdatedAt = time.Unix(at, 0).UTC()
	return st, nil
}
