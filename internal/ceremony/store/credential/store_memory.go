package credential

import (
	"context"
	"slices"
	"sync"
	"time"

	"warden/internal/ceremony/models"
	id "warden/pkg/domain"
	"warden/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu          sync.RWMutex
	credentials map[id.CredentialID]*models.Credential
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{credentials: make(map[id.CredentialID]*models.Credential)}
}

// Create fails with sentinel.ErrConflict when the credential ID is taken by anyone.
func (s *InMemoryStore) Create(_ context.Context, c *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.credentials[c.ID]; exists {
		return sentinel.ErrConflict
	}
	s.credentials[c.ID] = clone(c)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, credentialID id.CredentialID) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.credentials[credentialID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(c), nil
}

func (s *InMemoryStore) ListBySubject(_ context.Context, subjectID id.SubjectID) ([]*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Credential
	for _, c := range s.credentials {
		if c.SubjectID == subjectID {
			out = append(out, clone(c))
		}
	}
	slices.SortFunc(out, func(a, b *models.Credential) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

// RecordUse stores the new counter only if it still advances the stored one.
// A lost race reports sentinel.ErrInvalidState.
func (s *InMemoryStore) RecordUse(_ context.Context, credentialID id.CredentialID, signCount uint32, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.credentials[credentialID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if (signCount != 0 || c.SignCount != 0) && signCount <= c.SignCount {
		return sentinel.ErrInvalidState
	}
	c.SignCount = signCount
	c.LastUsedAt = &usedAt
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, subjectID id.SubjectID, credentialID id.CredentialID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.credentials[credentialID]
	if !ok || c.SubjectID != subjectID {
		return sentinel.ErrNotFound
	}
	delete(s.credentials, credentialID)
	return nil
}

func clone(c *models.Credential) *models.Credential {
	cp := *c
	cp.PublicKey = slices.Clone(c.PublicKey)
	if c.LastUsedAt != nil {
		t := *c.LastUsedAt
		cp.LastUsedAt = &t
	}
	return &cp
}
