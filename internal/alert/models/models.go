package models

import (
	"time"

	id "warden/pkg/domain"
)

// Type classifies a security alert.
type Type string

const (
	TypeNewDevice        Type = "new_device"
	TypeImpossibleTravel Type = "impossible_travel"
	TypeMultipleFailures Type = "multiple_failures"
	TypeRecoveryCodeUsed Type = "recovery_code_used"
)

func (t Type) IsValid() bool {
	switch t {
	case TypeNewDevice, TypeImpossibleTravel, TypeMultipleFailures, TypeRecoveryCodeUsed:
		return true
	}
	return false
}

// Alert is append-only apart from ResolvedAt, which is set at most once.
type Alert struct {
	ID         id.AlertID        `json:"id"`
	SubjectID  id.SubjectID      `json:"subject_id"`
	Type       Type              `json:"alert_type"`
	CreatedAt  time.Time         `json:"created_at"`
	ResolvedAt *time.Time        `json:"resolved_at,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func (a *Alert) IsResolved() bool {
	return a.ResolvedAt != nil
}
