package models

import (
	"time"

	"github.com/go-webauthn/webauthn/webauthn"

	id "warden/pkg/domain"
)

// Purpose scopes a challenge to one ceremony kind.
type Purpose string

const (
	PurposeRegistration   Purpose = "registration"
	PurposeAuthentication Purpose = "authentication"
)

func (p Purpose) IsValid() bool {
	return p == PurposeRegistration || p == PurposeAuthentication
}

// Challenge is a single-use random value bound to one ceremony attempt.
// Value doubles as the challenge reference clients echo back.
type Challenge struct {
	Value   string
	Purpose Purpose
	// SubjectID is nil for discoverable-credential authentication.
	SubjectID id.SubjectID
	// Label is the device name requested at registration start.
	Label     string
	CreatedAt time.Time
	ExpiresAt time.Time
	// Session is the relying party state the finish step verifies against.
	// Session.Challenge equals Value.
	Session *webauthn.SessionData
}

func (c *Challenge) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// ConsumeRequest selects the challenge to delete. A non-nil SubjectID only
// matches challenges scoped to that subject or unscoped ones.
type ConsumeRequest struct {
	Value     string
	Purpose   Purpose
	SubjectID id.SubjectID
	// RequireSubject rejects unscoped challenges.
	RequireSubject bool
	Now            time.Time
}

// Matches reports whether c satisfies the request, including expiry.
func (r ConsumeRequest) Matches(c *Challenge) bool {
	if c.Value != r.Value || c.Purpose != r.Purpose || c.IsExpired(r.Now) {
		return false
	}
	if c.SubjectID.IsNil() {
		return !r.RequireSubject
	}
	return r.SubjectID.IsNil() || c.SubjectID == r.SubjectID
}

// Algorithm is a COSE algorithm identifier.
type Algorithm int

const (
	AlgES256 Algorithm = -7
	AlgEdDSA Algorithm = -8
)

// SupportedAlgorithms is the preference order offered to authenticators.
var SupportedAlgorithms = []Algorithm{AlgES256, AlgEdDSA}

func (a Algorithm) IsSupported() bool {
	return a == AlgES256 || a == AlgEdDSA
}

func (a Algorithm) String() string {
	switch a {
	case AlgES256:
		return "ES256"
	case AlgEdDSA:
		return "EdDSA"
	default:
		return "unsupported"
	}
}

// Credential is a verified public key enrolled by a subject.
type Credential struct {
	ID        id.CredentialID
	SubjectID id.SubjectID
	PublicKey []byte // COSE_Key
	Algorithm Algorithm
	SignCount uint32
	// BackupEligible is fixed at registration; assertions must repeat it.
	BackupEligible bool
	DisplayName    string
	CreatedAt      time.Time
	LastUsedAt     *time.Time
}

// RelyingParty identifies this service to authenticators.
type RelyingParty struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SubjectRef is the user entity in registration options.
type SubjectRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// CeremonyOptions are returned by both start operations.
type CeremonyOptions struct {
	Challenge          string            `json:"challenge"`
	RelyingParty       RelyingParty      `json:"rp"`
	Subject            *SubjectRef       `json:"subject,omitempty"`
	Algorithms         []Algorithm       `json:"algorithms,omitempty"`
	ExcludeCredentials []id.CredentialID `json:"exclude_credentials,omitempty"`
	AllowCredentials   []id.CredentialID `json:"allow_credentials,omitempty"`
	UserVerification   string            `json:"user_verification"`
	TimeoutMs          int64             `json:"timeout_ms"`
	ExpiresAt          time.Time         `json:"expires_at"`
	// PublicKey is the same request shaped for navigator.credentials.
	PublicKey any `json:"public_key,omitempty"`
}

// AttestationResponse is the authenticator output for registration. The
// attestation object carries the new COSE key in its authenticator data.
type AttestationResponse struct {
	CredentialID      id.CredentialID
	ClientDataJSON    []byte
	AttestationObject []byte
	Transports        []string
}

// AssertionResponse is the authenticator output for authentication.
type AssertionResponse struct {
	CredentialID      id.CredentialID
	ClientDataJSON    []byte
	AuthenticatorData []byte
	Signature         []byte
	// UserHandle is set by discoverable credentials.
	UserHandle []byte
}
