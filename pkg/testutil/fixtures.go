package testutil

import (
	"time"

	"github.com/google/uuid"

	identity "warden/internal/identity/models"
	session "warden/internal/session/models"
	id "warden/pkg/domain"
)

// TestIDs provides fixed IDs for deterministic test data.
var TestIDs = struct {
	SubjectID1 id.SubjectID
	SubjectID2 id.SubjectID
	AdminID    id.SubjectID
	SessionID1 id.SessionID
	SessionID2 id.SessionID
}{
	SubjectID1: id.SubjectID(uuid.MustParse("11111111-1111-1111-1111-111111111111")),
	SubjectID2: id.SubjectID(uuid.MustParse("22222222-2222-2222-2222-222222222222")),
	AdminID:    id.SubjectID(uuid.MustParse("aaaa0000-0000-0000-0000-000000000001")),
	SessionID1: id.SessionID(uuid.MustParse("eeee0000-0000-0000-0000-000000000001")),
	SessionID2: id.SessionID(uuid.MustParse("eeee0000-0000-0000-0000-000000000002")),
}

// SubjectBuilder builds directory subjects with sensible defaults.
type SubjectBuilder struct {
	subject *identity.Subject
}

func NewSubjectBuilder() *SubjectBuilder {
	return &SubjectBuilder{
		subject: &identity.Subject{
			ID:          id.NewSubjectID(),
			Email:       "test-" + uuid.NewString()[:8] + "@example.com",
			DisplayName: "Test Subject",
			Role:        identity.RoleUser,
			CreatedAt:   time.Now(),
		},
	}
}

func (b *SubjectBuilder) WithID(subjectID id.SubjectID) *SubjectBuilder {
	b.subject.ID = subjectID
	return b
}

func (b *SubjectBuilder) WithEmail(email string) *SubjectBuilder {
	b.subject.Email = email
	return b
}

func (b *SubjectBuilder) Admin() *SubjectBuilder {
	b.subject.Role = identity.RoleAdmin
	return b
}

func (b *SubjectBuilder) Build() *identity.Subject {
	return b.subject
}

// SessionBuilder builds active session records.
type SessionBuilder struct {
	session *session.Session
}

func NewSessionBuilder() *SessionBuilder {
	now := time.Now()
	return &SessionBuilder{
		session: &session.Session{
			ID:                id.NewSessionID(),
			SubjectID:         TestIDs.SubjectID1,
			DeviceFingerprint: "fp-" + uuid.NewString()[:8],
			UserAgent:         "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			IPAddress:         "192.0.2.10",
			CreatedAt:         now,
			FirstSeenAt:       now,
			LastActiveAt:      now,
			Active:            true,
		},
	}
}

func (b *SessionBuilder) WithID(sessionID id.SessionID) *SessionBuilder {
	b.session.ID = sessionID
	return b
}

func (b *SessionBuilder) WithSubjectID(subjectID id.SubjectID) *SessionBuilder {
	b.session.SubjectID = subjectID
	return b
}

func (b *SessionBuilder) WithFingerprint(fingerprint string) *SessionBuilder {
	b.session.DeviceFingerprint = fingerprint
	return b
}

func (b *SessionBuilder) TrustedUntil(t time.Time) *SessionBuilder {
	b.session.TrustedUntil = &t
	return b
}

func (b *SessionBuilder) Terminated(at time.Time) *SessionBuilder {
	b.session.Active = false
	b.session.TerminatedAt = &at
	return b
}

func (b *SessionBuilder) Build() *session.Session {
	return b.session
}
