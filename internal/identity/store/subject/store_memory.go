package subject

import (
	"context"
	"strings"
	"sync"

	"warden/internal/identity/models"
	id "warden/pkg/domain"
	"warden/pkg/platform/sentinel"
)

// InMemoryStore is a subject directory for dev and tests.
type InMemoryStore struct {
	mu       sync.RWMutex
	subjects map[id.SubjectID]*models.Subject
	byEmail  map[string]id.SubjectID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		subjects: make(map[id.SubjectID]*models.Subject),
		byEmail:  make(map[string]id.SubjectID),
	}
}

// Save inserts or replaces a subject. A different subject already holding
// the email is a conflict.
func (s *InMemoryStore) Save(_ context.Context, subject *models.Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(subject.Email)
	if owner, ok := s.byEmail[email]; ok && owner != subject.ID {
		return sentinel.ErrConflict
	}
	if prev, ok := s.subjects[subject.ID]; ok {
		delete(s.byEmail, strings.ToLower(prev.Email))
	}
	cp := *subject
	s.subjects[subject.ID] = &cp
	s.byEmail[email] = subject.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, subjectID id.SubjectID) (*models.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subject, ok := s.subjects[subjectID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *subject
	return &cp, nil
}

func (s *InMemoryStore) FindByEmail(ctx context.Context, email string) (*models.Subject, error) {
	s.mu.RLock()
	subjectID, ok := s.byEmail[strings.ToLower(email)]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.FindByID(ctx, subjectID)
}

// RoleOf satisfies the authz role store.
func (s *InMemoryStore) RoleOf(ctx context.Context, subjectID id.SubjectID) (models.Role, error) {
	subject, err := s.FindByID(ctx, subjectID)
	if err != nil {
		return "", err
	}
	return subject.Role, nil
}
