package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warden/internal/session/models"
	id "warden/pkg/domain"
	"warden/pkg/platform/sentinel"
)

func TestInMemoryStore_Upsert(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	subject := id.NewSubjectID()
	t0 := time.Now()

	first, err := s.Upsert(ctx, models.TrackRequest{SubjectID: subject, Fingerprint: "fp", UserAgent: "ua", Now: t0})
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.True(t, first.NewDevice)

	t.Run("re-tracking refreshes the same record", func(t *testing.T) {
		for i := 1; i <= 3; i++ {
			res, err := s.Upsert(ctx, models.TrackRequest{SubjectID: subject, Fingerprint: "fp", Now: t0.Add(time.Duration(i) * time.Minute)})
			require.NoError(t, err)
			assert.False(t, res.Created)
			assert.Equal(t, first.Session.ID, res.Session.ID)
		}
		active, err := s.ListActive(ctx, subject)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, t0.Add(3*time.Minute), active[0].LastActiveAt)
		assert.Equal(t, "ua", active[0].UserAgent, "empty user agent keeps the stored one")
	})

	t.Run("out of order observations never move last_active_at backwards", func(t *testing.T) {
		res, err := s.Upsert(ctx, models.TrackRequest{SubjectID: subject, Fingerprint: "fp", Now: t0})
		require.NoError(t, err)
		assert.Equal(t, t0.Add(3*time.Minute), res.Session.LastActiveAt)
	})

	t.Run("terminated sessions are not revived and the device is not new", func(t *testing.T) {
		changed, err := s.Deactivate(ctx, first.Session.ID, t0.Add(time.Hour))
		require.NoError(t, err)
		assert.True(t, changed)

		res, err := s.Upsert(ctx, models.TrackRequest{SubjectID: subject, Fingerprint: "fp", Now: t0.Add(2 * time.Hour)})
		require.NoError(t, err)
		assert.True(t, res.Created)
		assert.False(t, res.NewDevice)
		assert.NotEqual(t, first.Session.ID, res.Session.ID)
		assert.Equal(t, t0, res.Session.FirstSeenAt)

		old, err := s.FindByID(ctx, first.Session.ID)
		require.NoError(t, err)
		assert.False(t, old.Active)
	})
}

func TestInMemoryStore_ConcurrentDevices(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	subject := id.NewSubjectID()
	fingerprints := []string{"a", "b", "c", "d"}

	var wg sync.WaitGroup
	for range 10 {
		for _, fp := range fingerprints {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Upsert(ctx, models.TrackRequest{SubjectID: subject, Fingerprint: fp, Now: time.Now()})
				assert.NoError(t, err)
			}()
		}
	}
	wg.Wait()

	active, err := s.ListActive(ctx, subject)
	require.NoError(t, err)
	assert.Len(t, active, len(fingerprints))
}

func TestInMemoryStore_DeactivateOthers(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	subject := id.NewSubjectID()
	other := id.NewSubjectID()
	now := time.Now()

	keep, err := s.Upsert(ctx, models.TrackRequest{SubjectID: subject, Fingerprint: "keep", Now: now})
	require.NoError(t, err)
	for _, fp := range []string{"x", "y"} {
		_, err := s.Upsert(ctx, models.TrackRequest{SubjectID: subject, Fingerprint: fp, Now: now})
		require.NoError(t, err)
	}
	_, err = s.Upsert(ctx, models.TrackRequest{SubjectID: other, Fingerprint: "x", Now: now})
	require.NoError(t, err)

	n, err := s.DeactivateOthers(ctx, subject, keep.Session.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	active, err := s.ListActive(ctx, subject)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, keep.Session.ID, active[0].ID)

	otherActive, err := s.ListActive(ctx, other)
	require.NoError(t, err)
	assert.Len(t, otherActive, 1)
}

func TestInMemoryStore_NotFound(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.Deactivate(context.Background(), id.NewSessionID(), time.Now())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	assert.ErrorIs(t, s.SetTrustedUntil(context.Background(), id.NewSessionID(), nil), sentinel.ErrNotFound)
}

func TestPostgresStore_Upsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewPostgres(db)

	subject := id.NewSubjectID()
	sid := id.NewSessionID()
	now := time.Now()
	columns := []string{"id", "subject_id", "device_fingerprint", "user_agent", "ip_address", "created_at",
		"first_seen_at", "last_active_at", "active", "trusted_until", "terminated_at", "inserted"}

	mock.ExpectQuery(`(?s)INSERT INTO sessions .* ON CONFLICT \(subject_id, device_fingerprint\) WHERE active`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "fp", "ua", "192.0.2.1", now).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(sid.String(), subject.String(), "fp", "ua", "192.0.2.1", now, now, now, true, nil, nil, true))

	res, err := s.Upsert(context.Background(), models.TrackRequest{
		SubjectID: subject, Fingerprint: "fp", UserAgent: "ua", IPAddress: "192.0.2.1", Now: now,
	})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.True(t, res.NewDevice)
	assert.Equal(t, sid, res.Session.ID)

	mock.ExpectQuery("WITH target AS").WillReturnRows(sqlmock.NewRows([]string{"exists"}))
	_, err = s.Deactivate(context.Background(), sid, now)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}
