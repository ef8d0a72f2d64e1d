package review

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-grading/internal/db"
	"github.com/mind-engage/mindengage-grading/internal/errs"
)

// SQLStore persists assessments in the assessments table and their history
// in review_transitions.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

const assessmentCols = `id,author_id,title,content,question_ids_json,passing_ratio,pool_json,status,version,cycle,
	coordinator_note,coordinator_approved_at,admin_note,admin_approved_at,created_at,updated_at`

func (s *SQLStore) Create(ctx context.Context, a ReviewableAssessment) error {
	qids, pool, err := encodeLists(a)
	if err != nil {
		return err
	}
	return db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO assessments (`+assessmentCols+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
			ON CONFLICT (id) DO NOTHING`,
			a.ID, a.AuthorID, a.Title, a.Content, qids, a.PassingScoreRatio, pool, string(a.Status),
			a.Version, a.Cycle, a.CoordinatorNote, unixPtr(a.CoordinatorApprovedAt), a.AdminNote,
			unixPtr(a.AdminApprovedAt), a.CreatedAt.Unix(), a.UpdatedAt.Unix())
		if err != nil {
			return errors.Wrap(err, "insert assessment")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: assessment %s already exists", errs.ErrInvalidInput, a.ID)
		}
		return appendHistory(ctx, tx, a.ID, a.History)
	})
}

func (s *SQLStore) Get(ctx context.Context, id string) (ReviewableAssessment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+assessmentCols+` FROM assessments WHERE id=$1`, id)
	a, err := scanAssessment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ReviewableAssessment{}, errs.NotFound("assessment", id)
	}
	if err != nil {
		return ReviewableAssessment{}, err
	}
	a.History, err = s.history(ctx, id)
	return a, err
}

// Update writes next only when the row still carries expectedVersion.
func (s *SQLStore) Update(ctx context.Context, next ReviewableAssessment, expectedVersion int64) error {
	qids, pool, err := encodeLists(next)
	if err != nil {
		return err
	}
	return db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE assessments SET
			title=$1, content=$2, question_ids_json=$3, passing_ratio=$4, pool_json=$5, status=$6,
			version=$7, cycle=$8, coordinator_note=$9, coordinator_approved_at=$10,
			admin_note=$11, admin_approved_at=$12, updated_at=$13
			WHERE id=$14 AND version=$15`,
			next.Title, next.Content, qids, next.PassingScoreRatio, pool, string(next.Status),
			next.Version, next.Cycle, next.CoordinatorNote, unixPtr(next.CoordinatorApprovedAt),
			next.AdminNote, unixPtr(next.AdminApprovedAt), next.UpdatedAt.Unix(),
			next.ID, expectedVersion)
		if err != nil {
			return errors.Wrap(err, "update assessment")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "rows affected")
		}
		if n == 0 {
			var actual int64
			err := tx.QueryRowContext(ctx, `SELECT version FROM assessments WHERE id=$1`, next.ID).Scan(&actual)
			if errors.Is(err, sql.ErrNoRows) {
				return errs.NotFound("assessment", next.ID)
			}
			if err != nil {
				return errors.Wrap(err, "read version")
			}
			return &errs.StaleStateError{ID: next.ID, Expected: expectedVersion, Actual: actual}
		}

		var stored int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM review_transitions WHERE assessment_id=$1`, next.ID).Scan(&stored); err != nil {
			return errors.Wrap(err, "count history")
		}
		if stored > len(next.History) {
			return errs.InvalidAssessment("history for %s would shrink from %d to %d records", next.ID, stored, len(next.History))
		}
		return appendHistory(ctx, tx, next.ID, next.History[stored:])
	})
}

func (s *SQLStore) List(ctx context.Context, opts ListOpts) ([]ReviewableAssessment, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	var (
		where []string
		args  []any
	)
	if opts.Status != "" {
		args = append(args, string(opts.Status))
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	if opts.AuthorID != "" {
		args = append(args, opts.AuthorID)
		where = append(where, fmt.Sprintf("author_id=$%d", len(args)))
	}
	if q := strings.TrimSpace(opts.Q); q != "" {
		args = append(args, "%"+strings.ToLower(q)+"%")
		where = append(where, fmt.Sprintf("LOWER(title) LIKE $%d", len(args)))
	}
	query := `SELECT ` + assessmentCols + ` FROM assessments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(` ORDER BY updated_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list assessments")
	}
	defer rows.Close()
	out := []ReviewableAssessment{}
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, errors.Wrap(rows.Err(), "iterate assessments")
}

func (s *SQLStore) history(ctx context.Context, id string) ([]TransitionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT from_status,to_status,actor_id,actor_role,note,at,cycle
		FROM review_transitions WHERE assessment_id=$1 ORDER BY seq`, id)
	if err != nil {
		return nil, errors.Wrap(err, "query history")
	}
	defer rows.Close()
	var out []TransitionRecord
	for rows.Next() {
		var (
			r        TransitionRecord
			from, to string
			at       int64
		)
		if err := rows.Scan(&from, &to, &r.ActorID, &r.ActorRole, &r.Note, &at, &r.Cycle); err != nil {
			return nil, errors.Wrap(err, "scan history")
		}
		r.From, r.To = Status(from), Status(to)
		r.At = time.Unix(at, 0).UTC()
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "iterate history")
}

func appendHistory(ctx context.Context, tx *sql.Tx, id string, recs []TransitionRecord) error {
	for _, r := range recs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO review_transitions
			(assessment_id,cycle,from_status,to_status,actor_id,actor_role,note,at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			id, r.Cycle, string(r.From), string(r.To), r.ActorID, r.ActorRole, r.Note, r.At.Unix()); err != nil {
			return errors.Wrap(err, "insert history")
		}
	}
	return nil
}

func encodeLists(a ReviewableAssessment) (string, string, error) {
	qids := a.QuestionIDs
	if qids == nil {
		qids = []string{}
	}
	qb, err := json.Marshal(qids)
	if err != nil {
		return "", "", errors.Wrap(err, "marshal question ids")
	}
	pb, err := json.Marshal(a.Pool)
	if err != nil {
		return "", "", errors.Wrap(err, "marshal pool")
	}
	return string(qb), string(pb), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssessment(r rowScanner) (ReviewableAssessment, error) {
	var (
		a                  ReviewableAssessment
		status, qids, pool string
		coordAt, adminAt   sql.NullInt64
		created, updated   int64
	)
	if err := r.Scan(&a.ID, &a.AuthorID, &a.Title, &a.Content, &qids, &a.PassingScoreRatio, &pool,
		&status, &a.Version, &a.Cycle, &a.CoordinatorNote, &coordAt, &a.AdminNote, &adminAt,
		&created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return a, err
		}
		return a, errors.Wrap(err, "scan assessment")
	}
	a.Status = Status(status)
	if err := json.Unmarshal([]byte(qids), &a.QuestionIDs); err != nil {
		return a, errors.Wrapf(err, "assessment %s question ids", a.ID)
	}
	if pool != "" {
		if err := json.Unmarshal([]byte(pool), &a.Pool); err != nil {
			return a, errors.Wrapf(err, "assessment %s pool", a.ID)
		}
	}
	a.CoordinatorApprovedAt = fromUnix(coordAt)
	a.AdminApprovedAt = fromUnix(adminAt)
	a.CreatedAt = time.Unix(created, 0).UTC()
	a.UpdatedAt = time.Unix(updated, 0).UTC()
	return a, nil
}

func unixPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func fromUnix(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}
