package authz

//go:generate mockgen -source=authz.go -destination=mocks/mocks.go -package=mocks RoleStore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warden/internal/identity/models"
	"warden/internal/identity/store/subject"
	id "warden/pkg/domain"
	dErrors "warden/pkg/domain-errors"
)

type failingRoles struct{}

func (failingRoles) RoleOf(context.Context, id.SubjectID) (models.Role, error) {
	return "", errors.New("connection refused")
}

func TestRequireRole(t *testing.T) {
	ctx := context.Background()
	store := subject.NewInMemoryStore()
	admin := &models.Subject{ID: id.NewSubjectID(), Email: "admin@example.com", Role: models.RoleAdmin}
	user := &models.Subject{ID: id.NewSubjectID(), Email: "user@example.com", Role: models.RoleUser}
	require.NoError(t, store.Save(ctx, admin))
	require.NoError(t, store.Save(ctx, user))

	tests := []struct {
		name    string
		roles   RoleStore
		subject id.SubjectID
		check   func(t *testing.T, err error)
	}{
		{"admin holds admin", store, admin.ID, func(t *testing.T, err error) { assert.NoError(t, err) }},
		{"user lacks admin", store, user.ID, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, dErrors.ErrInsufficientPrivilege)
		}},
		{"unknown subject is denied", store, id.NewSubjectID(), func(t *testing.T, err error) {
			assert.ErrorIs(t, err, dErrors.ErrInsufficientPrivilege)
		}},
		{"nil subject is denied", store, id.SubjectID{}, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, dErrors.ErrInsufficientPrivilege)
		}},
		{"store failure is unavailable", failingRoles{}, admin.ID, func(t *testing.T, err error) {
			assert.True(t, dErrors.HasCode(err, dErrors.CodeUpstreamUnavailable))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, RequireRole(ctx, tt.roles, tt.subject, models.RoleAdmin))
		})
	}
}
