// Package store persists security alerts.
package store

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"warden/internal/alert/models"
	id "warden/pkg/domain"
	"warden/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	alerts map[id.AlertID]*models.Alert
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{alerts: make(map[id.AlertID]*models.Alert)}
}

func (s *InMemoryStore) Insert(_ context.Context, a *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.alerts[a.ID]; exists {
		return sentinel.ErrConflict
	}
	s.alerts[a.ID] = cloneAlert(a)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, alertID id.AlertID) (*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[alertID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneAlert(a), nil
}

// Resolve sets resolved_at once; later calls leave it unchanged and report false.
func (s *InMemoryStore) Resolve(_ context.Context, alertID id.AlertID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[alertID]
	if !ok {
		return false, sentinel.ErrNotFound
	}
	if a.ResolvedAt != nil {
		return false, nil
	}
	a.ResolvedAt = &at
	return true, nil
}

func (s *InMemoryStore) ListUnresolved(_ context.Context, subjectID id.SubjectID) ([]*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Alert
	for _, a := range s.alerts {
		if a.SubjectID == subjectID && a.ResolvedAt == nil {
			out = append(out, cloneAlert(a))
		}
	}
	slices.SortFunc(out, func(a, b *models.Alert) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) HasUnresolved(_ context.Context, subjectID id.SubjectID, alertType models.Type) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.alerts {
		if a.SubjectID == subjectID && a.Type == alertType && a.ResolvedAt == nil {
			return true, nil
		}
	}
	return false, nil
}

func cloneAlert(a *models.Alert) *models.Alert {
	cp := *a
	cp.Metadata = maps.Clone(a.Metadata)
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		cp.ResolvedAt = &t
	}
	return &cp
}
