// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"encoding/base64"

	"github.com/google/uuid"

	dErrors "warden/pkg/domain-errors"
)

// Distinct ID types - compiler prevents passing SubjectID where SessionID is expected.
type (
	SubjectID uuid.UUID
	SessionID uuid.UUID
	AlertID   uuid.UUID
)

// CredentialID is the authenticator-chosen credential identifier, carried as base64url.
type CredentialID string

// MaxCredentialIDBytes bounds decoded credential IDs (WebAuthn allows up to 1023 bytes).
const MaxCredentialIDBytes = 1023

// Parse functions - use at trust boundaries (handlers, API inputs).

func ParseSubjectID(s string) (SubjectID, error) {
	id, err := parseUUID(s, "subject ID")
	return SubjectID(id), err
}

func ParseSessionID(s string) (SessionID, error) {
	id, err := parseUUID(s, "session ID")
	return SessionID(id), err
}

func ParseAlertID(s string) (AlertID, error) {
	id, err := parseUUID(s, "alert ID")
	return AlertID(id), err
}

// ParseCredentialID accepts unpadded base64url of 16 to 1023 raw bytes.
func ParseCredentialID(s string) (CredentialID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "credential ID cannot be empty")
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return "", dErrors.New(dErrors.CodeBadRequest, "invalid credential ID encoding")
	}
	if len(raw) < 16 || len(raw) > MaxCredentialIDBytes {
		return "", dErrors.New(dErrors.CodeBadRequest, "invalid credential ID length")
	}
	return CredentialID(s), nil
}

func NewSubjectID() SubjectID { return SubjectID(uuid.New()) }
func NewSessionID() SessionID { return SessionID(uuid.New()) }
func NewAlertID() AlertID     { return AlertID(uuid.New()) }

// String methods - for logging and debugging.

func (id SubjectID) String() string    { return uuid.UUID(id).String() }
func (id SessionID) String() string    { return uuid.UUID(id).String() }
func (id AlertID) String() string      { return uuid.UUID(id).String() }
func (id CredentialID) String() string { return string(id) }

// IsNil checks - used for service-layer validation.

func (id SubjectID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id AlertID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id CredentialID) IsNil() bool { return id == "" }

// parseUUID is the shared validation logic.
// Nil UUIDs are allowed here; services reject them with IsNil so that
// lookups keep returning uniform not-found errors.
func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "invalid "+label+" format")
	}
	return id, nil
}

// MarshalText renders IDs as canonical UUID strings in JSON and logs.

func (id SubjectID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id SessionID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id AlertID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }

func (id *SubjectID) UnmarshalText(b []byte) error {
	parsed, err := ParseSubjectID(string(b))
	*id = parsed
	return err
}

func (id *SessionID) UnmarshalText(b []byte) error {
	parsed, err := ParseSessionID(string(b))
	*id = parsed
	return err
}

func (id *AlertID) UnmarshalText(b []byte) error {
	parsed, err := ParseAlertID(string(b))
	*id = parsed
	return err
}
