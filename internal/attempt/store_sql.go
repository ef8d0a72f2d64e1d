package attempt

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
	"github.com/mind-engage/mindengage-grading/internal/question"
	"github.com/mind-engage/mindengage-grading/internal/scoring"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

const attemptCols = `id,assessment_id,student_id,status,question_ids_json,passing_ratio,started_at,submitted_at`

func (s *SQLStore) CreateAttempt(ctx context.Context, a Attempt) error {
	qids, err := json.Marshal(a.QuestionIDs)
	if err != nil {
		return errors.Wrap(err, "marshal question ids")
	}
	var submitted any
	if a.SubmittedAt != nil {
		submitted = a.SubmittedAt.Unix()
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO attempts (`+attemptCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, a.AssessmentID, a.StudentID, string(a.Status), string(qids), a.PassingScoreRatio,
		a.StartedAt.Unix(), submitted)
	return errors.Wrap(err, "insert attempt")
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM attempts WHERE id=$1`, id)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, errs.NotFound("attempt", id)
	}
	return a, err
}

func (s *SQLStore) SetStatus(ctx context.Context, id string, from, to Status, at time.Time) error {
	return db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var (
			res sql.Result
			err error
		)
		if to == StatusSubmitted {
			res, err = tx.ExecContext(ctx, `UPDATE attempts SET status=$1, submitted_at=$2 WHERE id=$3 AND status=$4`,
				string(to), at.Unix(), id, string(from))
		} else {
			res, err = tx.ExecContext(ctx, `UPDATE attempts SET status=$1 WHERE id=$2 AND status=$3`,
				string(to), id, string(from))
		}
		if err != nil {
			return errors.Wrap(err, "update attempt status")
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return nil
		}
		var cur string
		err = tx.QueryRowContext(ctx, `SELECT status FROM attempts WHERE id=$1`, id).Scan(&cur)
		if errors.Is(err, sql.ErrNoRows) {
			return errs.NotFound("attempt", id)
		}
		if err != nil {
			return errors.Wrap(err, "read attempt status")
		}
		return &errs.InvalidTransitionError{From: cur, To: string(to), Reason: "attempt is " + cur}
	})
}

func (s *SQLStore) ListAttempts(ctx context.Context, opts ListOpts) ([]Attempt, error) {
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
	if opts.AssessmentID != "" {
		args = append(args, opts.AssessmentID)
		where = append(where, fmt.Sprintf("assessment_id=$%d", len(args)))
	}
	if opts.StudentID != "" {
		args = append(args, opts.StudentID)
		where = append(where, fmt.Sprintf("student_id=$%d", len(args)))
	}
	if opts.Status != "" {
		args = append(args, string(opts.Status))
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	query := `SELECT ` + attemptCols + ` FROM attempts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(` ORDER BY started_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list attempts")
	}
	defer rows.Close()
	out := []Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, errors.Wrap(rows.Err(), "iterate attempts")
}

func (s *SQLStore) SaveSubmission(ctx context.Context, sub question.Submission) error {
	raw := string(sub.Raw)
	if raw == "" {
		raw = "null"
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO submissions (id,attempt_id,student_id,question_id,answer_json,submitted_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (student_id, question_id, attempt_id) DO UPDATE SET
			answer_json=EXCLUDED.answer_json, submitted_at=EXCLUDED.submitted_at`,
		sub.ID, sub.AttemptID, sub.StudentID, sub.QuestionID, raw, sub.SubmittedAt.Unix())
	return errors.Wrap(err, "save submission")
}

func (s *SQLStore) Submissions(ctx context.Context, attemptID string) ([]question.Submission, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,attempt_id,student_id,question_id,answer_json,submitted_at
		FROM submissions WHERE attempt_id=$1 ORDER BY question_id`, attemptID)
	if err != nil {
		return nil, errors.Wrap(err, "query submissions")
	}
	defer rows.Close()
	var out []question.Submission
	for rows.Next() {
		var (
			sub question.Submission
			raw string
			at  int64
		)
		if err := rows.Scan(&sub.ID, &sub.AttemptID, &sub.StudentID, &sub.QuestionID, &raw, &at); err != nil {
			return nil, errors.Wrap(err, "scan submission")
		}
		sub.Raw = json.RawMessage(raw)
		sub.SubmittedAt = time.Unix(at, 0).UTC()
		out = append(out, sub)
	}
	return out, errors.Wrap(rows.Err(), "iterate submissions")
}

func (s *SQLStore) AppendResult(ctx context.Context, r scoring.AssessmentResult) error {
	body, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "marshal result")
	}
	return db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var latest int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(version), 0) FROM assessment_results WHERE attempt_id=$1`, r.AttemptID).Scan(&latest); err != nil {
			return errors.Wrap(err, "read latest version")
		}
		if r.Version != latest+1 {
			return &errs.StaleStateError{ID: r.AttemptID, Expected: int64(r.Version - 1), Actual: int64(latest)}
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO assessment_results
			(attempt_id,version,total_score,max_score,pending,finalized,result_json,created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (attempt_id, version) DO NOTHING`,
			r.AttemptID, r.Version, r.TotalScore, r.MaxScore, r.PendingManualGrading, r.Finalized,
			string(body), r.CreatedAt.Unix())
		if err != nil {
			return errors.Wrap(err, "insert result")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &errs.StaleStateError{ID: r.AttemptID, Expected: int64(r.Version - 1), Actual: int64(r.Version)}
		}
		return nil
	})
}

func (s *SQLStore) LatestResult(ctx context.Context, attemptID string) (scoring.AssessmentResult, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT result_json FROM assessment_results
		WHERE attempt_id=$1 ORDER BY version DESC LIMIT 1`, attemptID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return scoring.AssessmentResult{}, errs.NotFound("result", attemptID)
	}
	if err != nil {
		return scoring.AssessmentResult{}, errors.Wrap(err, "query result")
	}
	var r scoring.AssessmentResult
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return scoring.AssessmentResult{}, errors.Wrap(err, "decode result")
	}
	return r, nil
}

func (s *SQLStore) Results(ctx context.Context, attemptID string) ([]scoring.AssessmentResult, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT result_json FROM assessment_results
		WHERE attempt_id=$1 ORDER BY version`, attemptID)
	if err != nil {
		return nil, errors.Wrap(err, "query results")
	}
	defer rows.Close()
	var out []scoring.AssessmentResult
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, errors.Wrap(err, "scan result")
		}
		var r scoring.AssessmentResult
		if err := json.Unmarshal([]byte(body), &r); err != nil {
			return nil, errors.Wrap(err, "decode result")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate results")
	}
	if len(out) == 0 {
		return nil, errs.NotFound("result", attemptID)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(r rowScanner) (Attempt, error) {
	var (
		a            Attempt
		status, qids string
		started      int64
		submitted    sql.NullInt64
	)
	if err := r.Scan(&a.ID, &a.AssessmentID, &a.StudentID, &status, &qids, &a.PassingScoreRatio,
		&started, &submitted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return a, err
		}
		return a, errors.Wrap(err, "scan attempt")
	}
	a.Status = Status(status)
	if err := json.Unmarshal([]byte(qids), &a.QuestionIDs); err != nil {
		return a, errors.Wrapf(err, "attempt %s question ids", a.ID)
	}
	a.StartedAt = time.Unix(started, 0).UTC()
	if submitted.Valid {
		t := time.Unix(submitted.Int64, 0).UTC()
		a.SubmittedAt = &t
	}
	return a, nil
}
