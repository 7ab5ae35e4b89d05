package models

import (
	"time"

	id "warden/pkg/domain"
)

// AllowlistEntry exempts one caller identity from every route-class limit.
type AllowlistEntry struct {
	Prefix     KeyPrefix
	Identifier string
	Reason     string
	ExpiresAt  *time.Time
	CreatedAt  time.Time
	CreatedBy  id.SubjectID
}

// ActiveAt reports whether the entry still applies at now. Entries without
// an expiry never lapse.
func (e *AllowlistEntry) ActiveAt(now time.Time) bool {
	return e.ExpiresAt == nil || now.Before(*e.ExpiresAt)
}
