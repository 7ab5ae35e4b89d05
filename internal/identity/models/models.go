package models

import (
	"time"

	id "warden/pkg/domain"
)

// Role is a subject's privilege level as held by the role store.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Subject is a principal known to the directory. Warden never stores passwords.
type Subject struct {
	ID          id.SubjectID
	Email       string
	DisplayName string
	Role        Role
	CreatedAt   time.Time
}

// TokenUse distinguishes access from refresh tokens signed with the same key.
type TokenUse string

const (
	TokenUseAccess  TokenUse = "access"
	TokenUseRefresh TokenUse = "refresh"
)

// IssueRequest describes the identity a new token pair should carry.
type IssueRequest struct {
	SubjectID id.SubjectID
	SessionID id.SessionID
	// ActorID marks the pair as impersonated on behalf of this administrator.
	ActorID id.SubjectID
	// ShortLived caps the refresh token lifetime at the access token lifetime.
	ShortLived bool
}

// TokenPair is returned to clients; the IDs and expiries stay server-side.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`

	SubjectID        id.SubjectID `json:"-"`
	SessionID        id.SessionID `json:"-"`
	ActorID          id.SubjectID `json:"-"`
	AccessTokenID    string       `json:"-"`
	RefreshTokenID   string       `json:"-"`
	AccessExpiresAt  time.Time    `json:"-"`
	RefreshExpiresAt time.Time    `json:"-"`
}

// Claims is the validated content of a token.
type Claims struct {
	SubjectID id.SubjectID
	SessionID id.SessionID
	ActorID   id.SubjectID
	Use       TokenUse
	JTI       string
	ExpiresAt time.Time
}

// IsImpersonated reports whether an administrator is acting through this token.
func (c *Claims) IsImpersonated() bool {
	return !c.ActorID.IsNil()
}
