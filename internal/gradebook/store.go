package gradebook

import (
	"context"
	"sync"
	"time"

	"github.com/mind-engage/mindengage-grading/internal/errs"
)

type MemoryStore struct {
	mu        sync.RWMutex
	links     map[string]Link
	lineItems map[string]BoundLineItem
	users     map[string]string
	syncs     map[string]SyncState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		links:     map[string]Link{},
		lineItems: map[string]BoundLineItem{},
		users:     map[string]string{},
		syncs:     map[string]SyncState{},
	}
}

func (m *MemoryStore) GetLink(_ context.Context, assessmentID string) (Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.links[assessmentID]
	if !ok {
		return Link{}, errs.NotFound(linkKind, assessmentID)
	}
	return l, nil
}

func (m *MemoryStore) PutLink(_ context.Context, l Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[l.AssessmentID] = l
	return nil
}

func (m *MemoryStore) FindLineItem(_ context.Context, assessmentID string) (BoundLineItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	li, ok := m.lineItems[assessmentID]
	if !ok {
		return BoundLineItem{}, errs.NotFound("line item", assessmentID)
	}
	return li, nil
}

func (m *MemoryStore) UpsertLineItem(_ context.Context, li BoundLineItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lineItems[li.AssessmentID] = li
	return nil
}

func (m *MemoryStore) PlatformUserID(_ context.Context, studentID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, ok := m.users[studentID]
	if !ok {
		return "", errs.NotFound("platform user", studentID)
	}
	return sub, nil
}

func (m *MemoryStore) PutPlatformUser(_ context.Context, studentID, platformUserID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[studentID] = platformUserID
	return nil
}

func (m *MemoryStore) MarkSync(_ context.Context, attemptID string, version int, status SyncStatus, lastErr string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.syncs[attemptID]
	st.AttemptID, st.Version, st.Status, st.LastError, st.UpdatedAt = attemptID, version, status, lastErr, at
	if status == SyncFailed {
		st.Retries++
	}
	m.syncs[attemptID] = st
	return nil
}

func (m *MemoryStore) SyncState(_ context.Context, attemptID string) (SyncState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.syncs[attemptID]
	if !ok {
		return SyncState{}, errs.NotFound("gradebook sync", attemptID)
	}
	return st, nil
}
