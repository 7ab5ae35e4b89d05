// Package store persists session records.
package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"warden/internal/session/models"
	id "warden/pkg/domain"
	"warden/pkg/platform/sentinel"
)

type deviceKey struct {
	subject     id.SubjectID
	fingerprint string
}

// InMemoryStore keeps every session ever created; the active index holds at
// most one live session per (subject, fingerprint).
type InMemoryStore struct {
	mu        sync.Mutex
	sessions  map[id.SessionID]*models.Session
	active    map[deviceKey]id.SessionID
	firstSeen map[deviceKey]time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions:  make(map[id.SessionID]*models.Session),
		active:    make(map[deviceKey]id.SessionID),
		firstSeen: make(map[deviceKey]time.Time),
	}
}

func (s *InMemoryStore) Upsert(_ context.Context, req models.TrackRequest) (*models.TrackResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := deviceKey{subject: req.SubjectID, fingerprint: req.Fingerprint}

	if sid, ok := s.active[key]; ok {
		sess := s.sessions[sid]
		if req.Now.After(sess.LastActiveAt) {
			sess.LastActiveAt = req.Now
		}
		if req.UserAgent != "" {
			sess.UserAgent = req.UserAgent
		}
		if req.IPAddress != "" {
			sess.IPAddress = req.IPAddress
		}
		return &models.TrackResult{Session: cloneSession(sess)}, nil
	}

	firstSeen, seen := s.firstSeen[key]
	if !seen {
		firstSeen = req.Now
		s.firstSeen[key] = firstSeen
	}
	sess := &models.Session{
		ID:                id.NewSessionID(),
		SubjectID:         req.SubjectID,
		DeviceFingerprint: req.Fingerprint,
		UserAgent:         req.UserAgent,
		IPAddress:         req.IPAddress,
		CreatedAt:         req.Now,
		FirstSeenAt:       firstSeen,
		LastActiveAt:      req.Now,
		Active:            true,
	}
	s.sessions[sess.ID] = sess
	s.active[key] = sess.ID
	return &models.TrackResult{Session: cloneSession(sess), Created: true, NewDevice: !seen}, nil
}

func (s *InMemoryStore) FindByID(_ context.Context, sessionID id.SessionID) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneSession(sess), nil
}

func (s *InMemoryStore) ListActive(_ context.Context, subjectID id.SubjectID) ([]*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Session
	for _, sess := range s.sessions {
		if sess.Active && sess.SubjectID == subjectID {
			out = append(out, cloneSession(sess))
		}
	}
	slices.SortFunc(out, func(a, b *models.Session) int { return b.LastActiveAt.Compare(a.LastActiveAt) })
	return out, nil
}

// Deactivate reports whether the session was active before the call.
func (s *InMemoryStore) Deactivate(_ context.Context, sessionID id.SessionID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return false, sentinel.ErrNotFound
	}
	if !sess.Active {
		return false, nil
	}
	s.deactivateLocked(sess, at)
	return true, nil
}

func (s *InMemoryStore) DeactivateOthers(_ context.Context, subjectID id.SubjectID, keep id.SessionID, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sess := range s.sessions {
		if sess.ID == keep || sess.SubjectID != subjectID || !sess.Active {
			continue
		}
		s.deactivateLocked(sess, at)
		n++
	}
	return n, nil
}

func (s *InMemoryStore) deactivateLocked(sess *models.Session, at time.Time) {
	sess.Active = false
	sess.TerminatedAt = &at
	delete(s.active, deviceKey{subject: sess.SubjectID, fingerprint: sess.DeviceFingerprint})
}

func (s *InMemoryStore) SetTrustedUntil(_ context.Context, sessionID id.SessionID, until *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if until == nil {
		sess.TrustedUntil = nil
		return nil
	}
	t := *until
	sess.TrustedUntil = &t
	return nil
}

// ActiveSubjectsSince lists subjects with an active session touched at or after since.
func (s *InMemoryStore) ActiveSubjectsSince(_ context.Context, since time.Time) ([]id.SubjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[id.SubjectID]struct{})
	var out []id.SubjectID
	for _, sess := range s.sessions {
		if !sess.Active || sess.LastActiveAt.Before(since) {
			continue
		}
		if _, ok := seen[sess.SubjectID]; !ok {
			seen[sess.SubjectID] = struct{}{}
			out = append(out, sess.SubjectID)
		}
	}
	return out, nil
}

func cloneSession(s *models.Session) *models.Session {
	cp := *s
	if s.TrustedUntil != nil {
		t := *s.TrustedUntil
		cp.TrustedUntil = &t
	}
	if s.TerminatedAt != nil {
		t := *s.TerminatedAt
		cp.TerminatedAt = &t
	}
	return &cp
}
