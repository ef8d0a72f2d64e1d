package question

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/mind-engage/mindengage-grading/internal/errs"
)

type ListOpts struct {
	Type   Type
	Q      string // substring match on prompt
	Limit  int
	Offset int
}

// Store persists questions. Get and GetMany return *errs.NotFoundError for
// unknown ids.
type Store interface {
	Put(ctx context.Context, q Question) error
	Get(ctx context.Context, id string) (Question, error)
	GetMany(ctx context.Context, ids []string) ([]Question, error)
	List(ctx context.Context, opts ListOpts) ([]Question, error)
}

type MemoryStore struct {
	mu        sync.RWMutex
	questions map[string]Question
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{questions: map[string]Question{}}
}

func (m *MemoryStore) Put(_ context.Context, q Question) error {
	if err := q.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.questions[q.ID] = q
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.questions[id]
	if !ok {
		return Question{}, errs.NotFound("question", id)
	}
	return q, nil
}

// GetMany preserves the order of ids.
func (m *MemoryStore) GetMany(_ context.Context, ids []string) ([]Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Question, 0, len(ids))
	for _, id := range ids {
		q, ok := m.questions[id]
		if !ok {
			return nil, errs.NotFound("question", id)
		}
		out = append(out, q)
	}
	return out, nil
}

func (m *MemoryStore) List(_ context.Context, opts ListOpts) ([]Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	needle := strings.ToLower(strings.TrimSpace(opts.Q))
	out := make([]Question, 0, len(m.questions))
	for _, q := range m.questions {
		if opts.Type != "" && q.Type != opts.Type {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(q.Prompt), needle) {
			continue
		}
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, opts.Limit, opts.Offset), nil
}

func page(qs []Question, limit, offset int) []Question {
	if offset < 0 {
		offset = 0
	}
	if offset > len(qs) {
		return []Question{}
	}
	qs = qs[offset:]
	if limit > 0 && limit < len(qs) {
		qs = qs[:limit]
	}
	return qs
}
