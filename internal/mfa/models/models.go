package models

import (
	"time"

	"github.com/google/uuid"

	id "warden/pkg/domain"
)

// Enrollment is a subject's TOTP secret. It only counts as a second factor
// once Confirmed. LastUsedStep is the newest accepted time step; codes at or
// before it are replays.
type Enrollment struct {
	SubjectID    id.SubjectID
	Secret       string
	Confirmed    bool
	LastUsedStep int64
	CreatedAt    time.Time
}

// RecoveryCode is a bcrypt-hashed single-use fallback code.
type RecoveryCode struct {
	ID        uuid.UUID
	SubjectID id.SubjectID
	CodeHash  string
	CreatedAt time.Time
	UsedAt    *time.Time
}

// Setup is returned when enrollment starts. The secret is shown once.
type Setup struct {
	Secret string `json:"secret"`
	URL    string `json:"otpauth_url"`
}

type Status struct {
	Enrolled               bool `json:"enrolled"`
	Confirmed              bool `json:"confirmed"`
	RecoveryCodesRemaining int  `json:"recovery_codes_remaining"`
}
