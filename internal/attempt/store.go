package attempt

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mind-engage/mindengage-grading/internal/errs"
	"github.com/mind-engage/mindengage-grading/internal/question"
	"github.com/mind-engage/mindengage-grading/internal/scoring"
)

type subKey struct{ attempt, student, question string }

type MemoryStore struct {
	mu       sync.RWMutex
	attempts map[string]Attempt
	subs     map[subKey]question.Submission
	results  map[string][]scoring.AssessmentResult
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		attempts: map[string]Attempt{},
		subs:     map[subKey]question.Submission{},
		results:  map[string][]scoring.AssessmentResult{},
	}
}

func (m *MemoryStore) CreateAttempt(_ context.Context, a Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.QuestionIDs = append([]string(nil), a.QuestionIDs...)
	m.attempts[a.ID] = a
	return nil
}

func (m *MemoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, errs.NotFound("attempt", id)
	}
	a.QuestionIDs = append([]string(nil), a.QuestionIDs...)
	return a, nil
}

func (m *MemoryStore) SetStatus(_ context.Context, id string, from, to Status, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return errs.NotFound("attempt", id)
	}
	if a.Status != from {
		return &errs.InvalidTransitionError{From: string(a.Status), To: string(to), Reason: "attempt is " + string(a.Status)}
	}
	a.Status = to
	if to == StatusSubmitted {
		t := at.UTC()
		a.SubmittedAt = &t
	}
	m.attempts[id] = a
	return nil
}

func (m *MemoryStore) ListAttempts(_ context.Context, opts ListOpts) ([]Attempt, error) {
	m.mu.RLock()
	out := make([]Attempt, 0, len(m.attempts))
	for _, a := range m.attempts {
		if opts.AssessmentID != "" && a.AssessmentID != opts.AssessmentID {
			continue
		}
		if opts.StudentID != "" && a.StudentID != opts.StudentID {
			continue
		}
		if opts.Status != "" && a.Status != opts.Status {
			continue
		}
		out = append(out, a)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return []Attempt{}, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *MemoryStore) SaveSubmission(_ context.Context, s question.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := subKey{s.AttemptID, s.StudentID, s.QuestionID}
	if prev, ok := m.subs[k]; ok {
		s.ID = prev.ID
	}
	m.subs[k] = s
	return nil
}

func (m *MemoryStore) Submissions(_ context.Context, attemptID string) ([]question.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []question.Submission
	for k, s := range m.subs {
		if k.attempt == attemptID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

func (m *MemoryStore) AppendResult(_ context.Context, r scoring.AssessmentResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := m.results[r.AttemptID]
	latest := 0
	if n := len(versions); n > 0 {
		latest = versions[n-1].Version
	}
	if r.Version != latest+1 {
		return &errs.StaleStateError{ID: r.AttemptID, Expected: int64(r.Version - 1), Actual: int64(latest)}
	}
	m.results[r.AttemptID] = append(versions, r)
	return nil
}

func (m *MemoryStore) LatestResult(_ context.Context, attemptID string) (scoring.AssessmentResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	versions := m.results[attemptID]
	if len(versions) == 0 {
		return scoring.AssessmentResult{}, errs.NotFound("result", attemptID)
	}
	return versions[len(versions)-1], nil
}

func (m *MemoryStore) Results(_ context.Context, attemptID string) ([]scoring.AssessmentResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	versions := m.results[attemptID]
	if len(versions) == 0 {
		return nil, errs.NotFound("result", attemptID)
	}
	return append([]scoring.AssessmentResult(nil), versions...), nil
}
