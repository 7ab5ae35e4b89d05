package models

import (
	"time"
)

// RouteClass groups endpoints that share one limit.
type RouteClass string

const (
	ClassLogin         RouteClass = "login"
	ClassRecovery      RouteClass = "recovery"
	ClassImpersonation RouteClass = "impersonation"
	ClassMFA           RouteClass = "mfa"
)

func (c RouteClass) IsValid() bool {
	switch c {
	case ClassLogin, ClassRecovery, ClassImpersonation, ClassMFA:
		return true
	}
	return false
}

// Policy is a fixed-window quota.
type Policy struct {
	Max    int
	Window time.Duration
}

// Counter is the stored state of one key. Count only grows until
// WindowExpiresAt; the next increment after that starts a new window at 1.
type Counter struct {
	Key             string
	Count           int
	WindowExpiresAt time.Time
}

// Result is the outcome of a single check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
	// Bypassed is set when the caller is allowlisted and nothing was counted.
	Bypassed bool
}

// RetryAfterSeconds rounds up so clients never retry before the reset.
func (r *Result) RetryAfterSeconds() int {
	if r.RetryAfter <= 0 {
		return 0
	}
	return int((r.RetryAfter + time.Second - 1) / time.Second)
}
