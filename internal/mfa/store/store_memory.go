// Package store persists TOTP enrollments and recovery codes.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"warden/internal/mfa/models"
	id "warden/pkg/domain"
	"warden/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu          sync.Mutex
	enrollments map[id.SubjectID]*models.Enrollment
	codes       map[uuid.UUID]*models.RecoveryCode
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		enrollments: make(map[id.SubjectID]*models.Enrollment),
		codes:       make(map[uuid.UUID]*models.RecoveryCode),
	}
}

// SavePending stores a new unconfirmed secret, replacing any earlier
// unconfirmed one. A confirmed enrollment yields sentinel.ErrConflict.
func (s *InMemoryStore) SavePending(_ context.Context, e *models.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.enrollments[e.SubjectID]; ok && existing.Confirmed {
		return sentinel.ErrConflict
	}
	stored := *e
	stored.Confirmed = false
	stored.LastUsedStep = 0
	s.enrollments[e.SubjectID] = &stored
	return nil
}

func (s *InMemoryStore) FindEnrollment(_ context.Context, subjectID id.SubjectID) (*models.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.enrollments[subjectID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *e
	return &out, nil
}

// ConsumeStep records step as used when it is newer than the last accepted
// one, optionally confirming the enrollment. It reports false for a replay.
func (s *InMemoryStore) ConsumeStep(_ context.Context, subjectID id.SubjectID, step int64, confirm bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.enrollments[subjectID]
	if !ok {
		return false, sentinel.ErrNotFound
	}
	if step <= e.LastUsedStep {
		return false, nil
	}
	e.LastUsedStep = step
	e.Confirmed = e.Confirmed || confirm
	return true, nil
}

func (s *InMemoryStore) DeleteEnrollment(_ context.Context, subjectID id.SubjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.enrollments, subjectID)
	for codeID, c := range s.codes {
		if c.SubjectID == subjectID {
			delete(s.codes, codeID)
		}
	}
	return nil
}

// ReplaceRecoveryCodes drops every code of the subject and stores codes.
func (s *InMemoryStore) ReplaceRecoveryCodes(_ context.Context, subjectID id.SubjectID, codes []*models.RecoveryCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for codeID, c := range s.codes {
		if c.SubjectID == subjectID {
			delete(s.codes, codeID)
		}
	}
	for _, c := range codes {
		stored := *c
		s.codes[c.ID] = &stored
	}
	return nil
}

func (s *InMemoryStore) ListUnusedRecoveryCodes(_ context.Context, subjectID id.SubjectID) ([]*models.RecoveryCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.RecoveryCode
	for _, c := range s.codes {
		if c.SubjectID == subjectID && c.UsedAt == nil {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

// MarkRecoveryCodeUsed reports false when the code was already used.
func (s *InMemoryStore) MarkRecoveryCodeUsed(_ context.Context, codeID uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[codeID]
	if !ok {
		return false, sentinel.ErrNotFound
	}
	if c.UsedAt != nil {
		return false, nil
	}
	c.UsedAt = &at
	return true, nil
}
