package reaper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warden/internal/ceremony/metrics"
	"warden/internal/ceremony/models"
	challengeStore "warden/internal/ceremony/store/challenge"
	"warden/internal/identity/store/revocation"
	id "warden/pkg/domain"
)

type failingStore struct{}

func (failingStore) DeleteExpired(context.Context, time.Time) (int, error) {
	return 0, errors.New("database unavailable")
}

func TestReaper_RunOnce(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	challenges := challengeStore.NewInMemoryStore()
	require.NoError(t, challenges.Save(ctx, &models.Challenge{
		Value: "expired", Purpose: models.PurposeRegistration, SubjectID: id.NewSubjectID(),
		CreatedAt: now.Add(-10 * time.Minute), ExpiresAt: now.Add(-5 * time.Minute),
	}))
	require.NoError(t, challenges.Save(ctx, &models.Challenge{
		Value: "live", Purpose: models.PurposeAuthentication,
		CreatedAt: now, ExpiresAt: now.Add(5 * time.Minute),
	}))
	revoked := revocation.NewInMemory()
	require.NoError(t, revoked.Revoke(ctx, "old-jti", now.Add(-time.Minute)))

	m := metrics.New(prometheus.NewRegistry())
	r, err := New(challenges, WithRevocations(revoked), WithMetrics(m), WithInterval(time.Second))
	require.NoError(t, err)

	res, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DeletedChallenges)
	assert.Equal(t, 1, res.DeletedRevocations)
	assert.Equal(t, float64(1), promtest.ToFloat64(m.ChallengesReaped))

	_, err = challenges.Consume(ctx, models.ConsumeRequest{Value: "live", Purpose: models.PurposeAuthentication, Now: now})
	assert.NoError(t, err, "unexpired challenges survive the sweep")
}

func TestReaper_RunOnce_ContinuesAfterFailure(t *testing.T) {
	revoked := revocation.NewInMemory()
	require.NoError(t, revoked.Revoke(context.Background(), "old-jti", time.Now().Add(-time.Minute)))

	r, err := New(failingStore{}, WithRevocations(revoked))
	require.NoError(t, err)

	res, err := r.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete expired challenges")
	assert.Equal(t, 1, res.DeletedRevocations)
}

func TestReaper_StartStopsOnCancel(t *testing.T) {
	r, err := New(challengeStore.NewInMemoryStore(), WithInterval(10*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Start(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
}

func TestNew_RequiresChallengeStore(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}
