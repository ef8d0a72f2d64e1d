package review

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mind-engage/mindengage-grading/internal/errs"
)

type ListOpts struct {
	Status   Status
	AuthorID string
	Q        string
	Limit    int
	Offset   int
}

// Store persists assessments. Update is a compare-and-swap on Version: it
// writes next only if the stored version still equals expectedVersion and
// otherwise returns *errs.StaleStateError. History records in next beyond
// those already stored are appended.
type Store interface {
	Create(ctx context.Context, a ReviewableAssessment) error
	Get(ctx context.Context, id string) (ReviewableAssessment, error)
	Update(ctx context.Context, next ReviewableAssessment, expectedVersion int64) error
	List(ctx context.Context, opts ListOpts) ([]ReviewableAssessment, error)
}

// MemoryStore keeps assessments in a map. The mutex only makes the CAS atomic.
type MemoryStore struct {
	mu   sync.Mutex
	byID map[string]ReviewableAssessment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]ReviewableAssessment)}
}

func (m *MemoryStore) Create(_ context.Context, a ReviewableAssessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[a.ID]; ok {
		return fmt.Errorf("%w: assessment %s already exists", errs.ErrInvalidInput, a.ID)
	}
	m.byID[a.ID] = clone(a)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (ReviewableAssessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return ReviewableAssessment{}, errs.NotFound("assessment", id)
	}
	return clone(a), nil
}

func (m *MemoryStore) Update(_ context.Context, next ReviewableAssessment, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byID[next.ID]
	if !ok {
		return errs.NotFound("assessment", next.ID)
	}
	if cur.Version != expectedVersion {
		return &errs.StaleStateError{ID: next.ID, Expected: expectedVersion, Actual: cur.Version}
	}
	m.byID[next.ID] = clone(next)
	return nil
}

func (m *MemoryStore) List(_ context.Context, opts ListOpts) ([]ReviewableAssessment, error) {
	m.mu.Lock()
	out := make([]ReviewableAssessment, 0, len(m.byID))
	q := strings.ToLower(strings.TrimSpace(opts.Q))
	for _, a := range m.byID {
		if opts.Status != "" && a.Status != opts.Status {
			continue
		}
		if opts.AuthorID != "" && a.AuthorID != opts.AuthorID {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(a.Title), q) {
			continue
		}
		out = append(out, clone(a))
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, opts.Limit, opts.Offset), nil
}

func clone(a ReviewableAssessment) ReviewableAssessment {
	a.QuestionIDs = append([]string(nil), a.QuestionIDs...)
	a.History = append([]TransitionRecord(nil), a.History...)
	return a
}

func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
