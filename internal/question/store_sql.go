package question

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-grading/internal/errs"
)

// SQLStore keeps one row per question with the metadata in plain columns and
// the variant key as its own typed JSON record.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const questionCols = `id,type,prompt,points,difficulty,bloom_level,explanation,tags_json,key_json,created_at`

func (s *SQLStore) Put(ctx context.Context, q Question) error {
	if err := q.Validate(); err != nil {
		return err
	}
	var keyJSON string
	if q.Key != nil {
		raw, err := json.Marshal(q.Key)
		if err != nil {
			return errors.Wrap(err, "marshal key")
		}
		keyJSON = string(raw)
	}
	tags, err := json.Marshal(q.Meta.Tags)
	if err != nil {
		return errors.Wrap(err, "marshal tags")
	}
	created := q.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO questions (`+questionCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET type=EXCLUDED.type, prompt=EXCLUDED.prompt, points=EXCLUDED.points,
			difficulty=EXCLUDED.difficulty, bloom_level=EXCLUDED.bloom_level, explanation=EXCLUDED.explanation,
			tags_json=EXCLUDED.tags_json, key_json=EXCLUDED.key_json`,
		q.ID, string(q.Type), q.Prompt, q.Points, string(q.Meta.Difficulty), string(q.Meta.BloomLevel),
		q.Meta.Explanation, string(tags), keyJSON, created.Unix())
	return errors.Wrap(err, "put question")
}

func (s *SQLStore) Get(ctx context.Context, id string) (Question, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+questionCols+` FROM questions WHERE id=$1`, id)
	q, err := scanQuestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Question{}, errs.NotFound("question", id)
	}
	return q, err
}

// GetMany preserves the order of ids.
func (s *SQLStore) GetMany(ctx context.Context, ids []string) ([]Question, error) {
	if len(ids) == 0 {
		return []Question{}, nil
	}
	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+questionCols+` FROM questions WHERE id IN (`+strings.Join(ph, ",")+`)`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query questions")
	}
	defer rows.Close()

	byID := make(map[string]Question, len(ids))
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		byID[q.ID] = q
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate questions")
	}
	out := make([]Question, 0, len(ids))
	for _, id := range ids {
		q, ok := byID[id]
		if !ok {
			return nil, errs.NotFound("question", id)
		}
		out = append(out, q)
	}
	return out, nil
}

func (s *SQLStore) List(ctx context.Context, opts ListOpts) ([]Question, error) {
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
	if opts.Type != "" {
		args = append(args, string(opts.Type))
		where = append(where, fmt.Sprintf("type=$%d", len(args)))
	}
	if q := strings.TrimSpace(opts.Q); q != "" {
		args = append(args, "%"+strings.ToLower(q)+"%")
		where = append(where, fmt.Sprintf("LOWER(prompt) LIKE $%d", len(args)))
	}
	query := `SELECT ` + questionCols + ` FROM questions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(` ORDER BY id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list questions")
	}
	defer rows.Close()
	out := []Question{}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, errors.Wrap(rows.Err(), "iterate questions")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(r rowScanner) (Question, error) {
	var (
		q                           Question
		typ, diff, bloom, tags, key string
		created                     int64
	)
	if err := r.Scan(&q.ID, &typ, &q.Prompt, &q.Points, &diff, &bloom, &q.Meta.Explanation, &tags, &key, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Question{}, err
		}
		return Question{}, errors.Wrap(err, "scan question")
	}
	q.Type = Type(typ)
	q.Meta.Difficulty = Difficulty(diff)
	q.Meta.BloomLevel = BloomLevel(bloom)
	if tags != "" && tags != "null" {
		if err := json.Unmarshal([]byte(tags), &q.Meta.Tags); err != nil {
			return Question{}, errors.Wrapf(err, "question %s tags", q.ID)
		}
	}
	k, err := DecodeKey(q.ID, q.Type, json.RawMessage(key))
	if err != nil {
		return Question{}, err
	}
	q.Key = k
	q.CreatedAt = time.Unix(created, 0).UTC()
	return q, nil
}
