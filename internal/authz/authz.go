// Package authz answers whether a subject holds a role.
package authz

import (
	"context"
	"errors"

	"warden/internal/identity/models"
	id "warden/pkg/domain"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/sentinel"
)

// RoleStore resolves a subject's current role.
// Error Contract: returns sentinel.ErrNotFound for unknown subjects.
type RoleStore interface {
	RoleOf(ctx context.Context, subjectID id.SubjectID) (models.Role, error)
}

// RequireRole fails with PrivilegeDenied unless the subject holds role.
// Unknown subjects are denied; store failures are reported as unavailable.
func RequireRole(ctx context.Context, roles RoleStore, subjectID id.SubjectID, role models.Role) error {
	if subjectID.IsNil() {
		return denied()
	}
	got, err := roles.RoleOf(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) || dErrors.HasCode(err, dErrors.CodeNotFound) {
			return denied()
		}
		return dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to resolve role")
	}
	if got != role {
		return denied()
	}
	return nil
}

func denied() error {
	return dErrors.NewReason(dErrors.CodePrivilegeDenied, dErrors.ReasonInsufficientPrivilege, "insufficient privilege")
}
