package credential

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warden/internal/ceremony/models"
	id "warden/pkg/domain"
	"warden/pkg/platform/sentinel"
)

func newCredential(subject id.SubjectID, credID string) *models.Credential {
	return &models.Credential{
		ID:          id.CredentialID(credID),
		SubjectID:   subject,
		PublicKey:   []byte{1, 2, 3},
		Algorithm:   models.AlgES256,
		DisplayName: "key",
		CreatedAt:   time.Now(),
	}
}

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	alice := id.NewSubjectID()
	bob := id.NewSubjectID()

	require.NoError(t, s.Create(ctx, newCredential(alice, "cred-a")))
	require.NoError(t, s.Create(ctx, newCredential(alice, "cred-b")))

	t.Run("credential ids are globally unique", func(t *testing.T) {
		assert.ErrorIs(t, s.Create(ctx, newCredential(alice, "cred-a")), sentinel.ErrConflict)
		assert.ErrorIs(t, s.Create(ctx, newCredential(bob, "cred-a")), sentinel.ErrConflict)
		list, err := s.ListBySubject(ctx, alice)
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})

	t.Run("record use requires an advancing counter", func(t *testing.T) {
		now := time.Now()
		require.NoError(t, s.RecordUse(ctx, "cred-a", 3, now))
		assert.ErrorIs(t, s.RecordUse(ctx, "cred-a", 3, now), sentinel.ErrInvalidState)
		got, err := s.FindByID(ctx, "cred-a")
		require.NoError(t, err)
		assert.Equal(t, uint32(3), got.SignCount)
		require.NotNil(t, got.LastUsedAt)
	})

	t.Run("only the owner can delete", func(t *testing.T) {
		assert.ErrorIs(t, s.Delete(ctx, bob, "cred-b"), sentinel.ErrNotFound)
		require.NoError(t, s.Delete(ctx, alice, "cred-b"))
		_, err := s.FindByID(ctx, "cred-b")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestPostgresStore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewPostgres(db)
	ctx := context.Background()
	subject := id.NewSubjectID()

	t.Run("duplicate insert is a conflict", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO credentials").WillReturnResult(sqlmock.NewResult(0, 0))
		assert.ErrorIs(t, s.Create(ctx, newCredential(subject, "dup")), sentinel.ErrConflict)
	})

	t.Run("stale counter update is rejected", func(t *testing.T) {
		mock.ExpectExec("UPDATE credentials").
			WithArgs("cred", int64(7), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))
		assert.ErrorIs(t, s.RecordUse(ctx, "cred", 7, time.Now()), sentinel.ErrInvalidState)
	})

	t.Run("backup eligibility is stored and read back", func(t *testing.T) {
		c := newCredential(subject, "synced")
		c.BackupEligible = true
		mock.ExpectExec("INSERT INTO credentials").
			WithArgs("synced", sqlmock.AnyArg(), c.PublicKey, int(models.AlgES256), int64(0), true, "key", c.CreatedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, s.Create(ctx, c))

		mock.ExpectQuery("SELECT credential_id").WithArgs("synced").
			WillReturnRows(sqlmock.NewRows([]string{"credential_id", "subject_id", "public_key", "algorithm", "sign_count", "backup_eligible", "display_name", "created_at", "last_used_at"}).
				AddRow("synced", subject.String(), c.PublicKey, int64(models.AlgES256), int64(4), true, "key", c.CreatedAt, nil))
		got, err := s.FindByID(ctx, "synced")
		require.NoError(t, err)
		assert.True(t, got.BackupEligible)
		assert.Equal(t, uint32(4), got.SignCount)
		assert.Equal(t, subject, got.SubjectID)
	})

	t.Run("missing credential is not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT credential_id").WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"credential_id"}))
		_, err := s.FindByID(ctx, "missing")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}
