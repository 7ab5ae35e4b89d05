package challenge

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warden/internal/ceremony/models"
	id "warden/pkg/domain"
	"warden/pkg/platform/sentinel"
)

type store interface {
	Save(ctx context.Context, c *models.Challenge) error
	Consume(ctx context.Context, req models.ConsumeRequest) (*models.Challenge, error)
}

func userHandle(subject id.SubjectID) []byte {
	u := uuid.UUID(subject)
	return u[:]
}

func newChallenge(value string, purpose models.Purpose, subject id.SubjectID, now time.Time, ttl time.Duration) *models.Challenge {
	return &models.Challenge{
		Value:     value,
		Purpose:   purpose,
		SubjectID: subject,
		Label:     "laptop",
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Session: &webauthn.SessionData{
			Challenge:        value,
			RelyingPartyID:   "warden.example",
			UserID:           userHandle(subject),
			UserVerification: protocol.VerificationPreferred,
		},
	}
}

// exerciseStore runs the behaviours every backend must share.
func exerciseStore(t *testing.T, s store) {
	ctx := context.Background()
	now := time.Now()
	alice := id.NewSubjectID()
	bob := id.NewSubjectID()

	t.Run("consumed exactly once", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, newChallenge("once", models.PurposeRegistration, alice, now, 5*time.Minute)))
		req := models.ConsumeRequest{Value: "once", Purpose: models.PurposeRegistration, SubjectID: alice, RequireSubject: true, Now: now}

		got, err := s.Consume(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, alice, got.SubjectID)
		assert.Equal(t, "laptop", got.Label)
		require.NotNil(t, got.Session)
		assert.Equal(t, "once", got.Session.Challenge)
		assert.Equal(t, userHandle(alice), got.Session.UserID)
		assert.Equal(t, protocol.VerificationPreferred, got.Session.UserVerification)

		_, err = s.Consume(ctx, req)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("duplicate value conflicts", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, newChallenge("dup", models.PurposeAuthentication, alice, now, time.Minute)))
		err := s.Save(ctx, newChallenge("dup", models.PurposeAuthentication, alice, now, time.Minute))
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("wrong purpose does not consume", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, newChallenge("purpose", models.PurposeRegistration, alice, now, time.Minute)))
		_, err := s.Consume(ctx, models.ConsumeRequest{Value: "purpose", Purpose: models.PurposeAuthentication, Now: now})
		assert.ErrorIs(t, err, sentinel.ErrNotFound)

		_, err = s.Consume(ctx, models.ConsumeRequest{Value: "purpose", Purpose: models.PurposeRegistration, SubjectID: alice, Now: now})
		assert.NoError(t, err)
	})

	t.Run("other subject does not consume", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, newChallenge("scoped", models.PurposeAuthentication, alice, now, time.Minute)))
		_, err := s.Consume(ctx, models.ConsumeRequest{Value: "scoped", Purpose: models.PurposeAuthentication, SubjectID: bob, Now: now})
		assert.ErrorIs(t, err, sentinel.ErrNotFound)

		got, err := s.Consume(ctx, models.ConsumeRequest{Value: "scoped", Purpose: models.PurposeAuthentication, Now: now})
		require.NoError(t, err)
		assert.Equal(t, alice, got.SubjectID)
	})

	t.Run("unscoped challenge rejected when a subject is required", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, newChallenge("open", models.PurposeAuthentication, id.SubjectID{}, now, time.Minute)))
		_, err := s.Consume(ctx, models.ConsumeRequest{Value: "open", Purpose: models.PurposeAuthentication, RequireSubject: true, Now: now})
		assert.ErrorIs(t, err, sentinel.ErrNotFound)

		got, err := s.Consume(ctx, models.ConsumeRequest{Value: "open", Purpose: models.PurposeAuthentication, SubjectID: bob, Now: now})
		require.NoError(t, err)
		assert.True(t, got.SubjectID.IsNil())
	})

	t.Run("challenge without a session", func(t *testing.T) {
		c := newChallenge("bare", models.PurposeAuthentication, alice, now, time.Minute)
		c.Session = nil
		require.NoError(t, s.Save(ctx, c))
		got, err := s.Consume(ctx, models.ConsumeRequest{Value: "bare", Purpose: models.PurposeAuthentication, Now: now})
		require.NoError(t, err)
		assert.Nil(t, got.Session)
	})

	t.Run("expired challenge is never returned", func(t *testing.T) {
		past := now.Add(-10 * time.Minute)
		require.NoError(t, s.Save(ctx, newChallenge("stale", models.PurposeRegistration, alice, past, 10*time.Minute-time.Second)))
		_, err := s.Consume(ctx, models.ConsumeRequest{Value: "stale", Purpose: models.PurposeRegistration, SubjectID: alice, Now: now})
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("concurrent consumers see one winner", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, newChallenge("race", models.PurposeAuthentication, alice, now, time.Minute)))
		var wins atomic.Int32
		var wg sync.WaitGroup
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.Consume(ctx, models.ConsumeRequest{Value: "race", Purpose: models.PurposeAuthentication, Now: now}); err == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})
}

func TestInMemoryStore(t *testing.T) {
	s := NewInMemoryStore()
	exerciseStore(t, s)

	t.Run("reaper removes expired rows only", func(t *testing.T) {
		now := time.Now()
		fresh := NewInMemoryStore()
		require.NoError(t, fresh.Save(context.Background(), newChallenge("a", models.PurposeRegistration, id.NewSubjectID(), now.Add(-time.Hour), time.Minute)))
		require.NoError(t, fresh.Save(context.Background(), newChallenge("b", models.PurposeRegistration, id.NewSubjectID(), now, time.Minute)))
		n, err := fresh.DeleteExpired(context.Background(), now)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	exerciseStore(t, NewRedis(client))

	t.Run("key ttl tracks challenge expiry", func(t *testing.T) {
		now := time.Now()
		s := NewRedis(client)
		require.NoError(t, s.Save(context.Background(), newChallenge("ttl", models.PurposeRegistration, id.NewSubjectID(), now, 5*time.Minute)))
		assert.True(t, mr.Exists(keyPrefix+"ttl"))
		assert.Greater(t, mr.TTL(keyPrefix+"ttl"), 4*time.Minute)
	})
}

func TestPostgresStore_Consume(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewPostgres(db)
	now := time.Now()

	columns := []string{"value", "purpose", "subject_id", "label", "created_at", "expires_at", "session"}

	t.Run("returns the deleted row", func(t *testing.T) {
		subject := id.NewSubjectID()
		mock.ExpectQuery("DELETE FROM challenges").
			WithArgs("value", "registration", now, sqlmock.AnyArg(), true).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("value", "registration", subject.String(), "key", now, now.Add(time.Minute),
					[]byte(`{"challenge":"value","rpId":"warden.example","userVerification":"required"}`)))

		got, err := s.Consume(context.Background(), models.ConsumeRequest{
			Value: "value", Purpose: models.PurposeRegistration, SubjectID: subject, RequireSubject: true, Now: now,
		})
		require.NoError(t, err)
		assert.Equal(t, subject, got.SubjectID)
		assert.Equal(t, models.PurposeRegistration, got.Purpose)
		require.NotNil(t, got.Session)
		assert.Equal(t, "value", got.Session.Challenge)
		assert.Equal(t, protocol.VerificationRequired, got.Session.UserVerification)
	})

	t.Run("row saved before sessions were stored", func(t *testing.T) {
		mock.ExpectQuery("DELETE FROM challenges").
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("old", "authentication", nil, "", now, now.Add(time.Minute), nil))
		got, err := s.Consume(context.Background(), models.ConsumeRequest{Value: "old", Purpose: models.PurposeAuthentication, Now: now})
		require.NoError(t, err)
		assert.Nil(t, got.Session)
	})

	t.Run("unreadable session is an error", func(t *testing.T) {
		mock.ExpectQuery("DELETE FROM challenges").
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("bad", "authentication", nil, "", now, now.Add(time.Minute), []byte("{")))
		_, err := s.Consume(context.Background(), models.ConsumeRequest{Value: "bad", Purpose: models.PurposeAuthentication, Now: now})
		require.Error(t, err)
		assert.NotErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("no row is not found", func(t *testing.T) {
		mock.ExpectQuery("DELETE FROM challenges").
			WillReturnRows(sqlmock.NewRows(columns))
		_, err := s.Consume(context.Background(), models.ConsumeRequest{Value: "gone", Purpose: models.PurposeAuthentication, Now: now})
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}
