// Package store holds impersonation contexts keyed by administrator.
package store

import (
	"context"
	"sync"
	"time"

	"warden/internal/impersonation/models"
	id "warden/pkg/domain"
	"warden/pkg/platform/sentinel"
)

// InMemoryStore is for single-instance deployments and tests. Expired
// contexts behave as absent.
type InMemoryStore struct {
	mu       sync.Mutex
	contexts map[id.SubjectID]*models.Context
	now      func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{contexts: make(map[id.SubjectID]*models.Context), now: time.Now}
}

// PutIfAbsent stores c unless the administrator already holds a live context.
func (s *InMemoryStore) PutIfAbsent(_ context.Context, c *models.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.liveLocked(c.AdminID); ok {
		return sentinel.ErrConflict
	}
	cp := *c
	s.contexts[c.AdminID] = &cp
	return nil
}

// Replace overwrites a live context, keeping its expiry.
func (s *InMemoryStore) Replace(_ context.Context, c *models.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.liveLocked(c.AdminID)
	if !ok {
		return sentinel.ErrNotFound
	}
	cp := *c
	cp.ExpiresAt = existing.ExpiresAt
	s.contexts[c.AdminID] = &cp
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, adminID id.SubjectID) (*models.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.liveLocked(adminID)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// Take removes and returns the context. Of two concurrent callers only one succeeds.
func (s *InMemoryStore) Take(_ context.Context, adminID id.SubjectID) (*models.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.liveLocked(adminID)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	delete(s.contexts, adminID)
	return c, nil
}

func (s *InMemoryStore) liveLocked(adminID id.SubjectID) (*models.Context, bool) {
	c, ok := s.contexts[adminID]
	if !ok {
		return nil, false
	}
	if c.IsExpired(s.now()) {
		delete(s.contexts, adminID)
		return nil, false
	}
	return c, true
}
