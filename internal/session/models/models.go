package models

import (
	"time"

	alert "warden/internal/alert/models"
	id "warden/pkg/domain"
)

// Session is one device's activity record for a subject. Records are never
// deleted; termination clears Active.
type Session struct {
	ID                id.SessionID `json:"session_id"`
	SubjectID         id.SubjectID `json:"subject_id"`
	DeviceFingerprint string       `json:"-"`
	UserAgent         string       `json:"user_agent"`
	IPAddress         string       `json:"-"`
	CreatedAt         time.Time    `json:"created_at"`
	// FirstSeenAt is when this subject first used the fingerprint, across
	// terminated sessions too.
	FirstSeenAt  time.Time  `json:"first_seen_at"`
	LastActiveAt time.Time  `json:"last_active_at"`
	Active       bool       `json:"active"`
	TrustedUntil *time.Time `json:"trusted_until,omitempty"`
	TerminatedAt *time.Time `json:"terminated_at,omitempty"`
}

// IsTrusted is independent of Active.
func (s *Session) IsTrusted(now time.Time) bool {
	return s.TrustedUntil != nil && now.Before(*s.TrustedUntil)
}

// TrackRequest is one observation of a subject on a device.
type TrackRequest struct {
	SubjectID   id.SubjectID
	Fingerprint string
	UserAgent   string
	IPAddress   string
	Now         time.Time
}

// TrackResult reports the upserted record and whether the fingerprint had
// never been seen for the subject before.
type TrackResult struct {
	Session   *Session
	Created   bool
	NewDevice bool
}

// DetectorPolicy holds the thresholds the detector applies.
type DetectorPolicy struct {
	StaleAfter      time.Duration
	MaxConcurrent   int
	NewDeviceWindow time.Duration
	TravelWindow    time.Duration
}

// DefaultPolicy matches the recommended thresholds.
var DefaultPolicy = DetectorPolicy{
	StaleAfter:      30 * 24 * time.Hour,
	MaxConcurrent:   5,
	NewDeviceWindow: 24 * time.Hour,
	TravelWindow:    time.Hour,
}

// AnomalyReport is computed from the active sessions of one subject.
type AnomalyReport struct {
	SubjectID         id.SubjectID   `json:"subject_id"`
	GeneratedAt       time.Time      `json:"generated_at"`
	ActiveSessions    int            `json:"active_sessions"`
	DeviceCount       int            `json:"device_count"`
	DeviceSignatures  []string       `json:"device_signatures"`
	LocationCount     int            `json:"location_count"`
	MultipleBrowsers  bool           `json:"multiple_browsers"`
	MultipleLocations bool           `json:"multiple_locations"`
	NewDevice         bool           `json:"new_device"`
	NewDeviceSessions []id.SessionID `json:"new_device_sessions,omitempty"`
	StaleSessions     []id.SessionID `json:"stale_sessions,omitempty"`
	ExceedsConcurrent bool           `json:"exceeds_concurrent"`
	ImpossibleTravel  bool           `json:"impossible_travel"`
	SuggestedAlerts   []alert.Type   `json:"suggested_alerts,omitempty"`
}
