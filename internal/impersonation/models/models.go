package models

import (
	"time"

	id "warden/pkg/domain"
)

// Context retains what an administrator needs to get their own identity back.
// It lives in the context store only between Start and Stop.
type Context struct {
	AdminID        id.SubjectID `json:"admin_id"`
	TargetID       id.SubjectID `json:"target_id"`
	AdminSessionID id.SessionID `json:"admin_session_id"`
	// SessionID identifies the impersonated session.
	SessionID        id.SessionID `json:"session_id"`
	AccessTokenID    string       `json:"access_jti,omitempty"`
	AccessExpiresAt  time.Time    `json:"access_expires_at"`
	RefreshTokenID   string       `json:"refresh_jti,omitempty"`
	RefreshExpiresAt time.Time    `json:"refresh_expires_at"`
	IssuedAt         time.Time    `json:"issued_at"`
	ExpiresAt        time.Time    `json:"expires_at"`
}

func (c *Context) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Status is what an administrator sees about their own impersonation.
type Status struct {
	Active    bool          `json:"active"`
	TargetID  *id.SubjectID `json:"target_subject_id,omitempty"`
	IssuedAt  *time.Time    `json:"issued_at,omitempty"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty"`
}
