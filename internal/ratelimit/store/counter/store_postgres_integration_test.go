//go:build integration

package counter_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"warden/internal/ratelimit/store/counter"
	"warden/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *counter.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = counter.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "rate_limits"))
}

// Concurrent increments on one key must each observe a distinct count.
func (s *PostgresStoreSuite) TestConcurrentIncrement() {
	ctx := context.Background()
	now := time.Now()
	const goroutines = 50

	var wg sync.WaitGroup
	var errs atomic.Int32
	seen := make([]atomic.Bool, goroutines+1)
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := s.store.Increment(ctx, "login:ip:203.0.113.7", time.Minute, now)
			if err != nil {
				errs.Add(1)
				return
			}
			if c.Count >= 1 && c.Count <= goroutines {
				seen[c.Count].Store(true)
			}
		}()
	}
	wg.Wait()

	s.Zero(errs.Load())
	for n := 1; n <= goroutines; n++ {
		s.True(seen[n].Load(), "count %d was never returned", n)
	}
}

func (s *PostgresStoreSuite) TestExpiredWindowRestarts() {
	ctx := context.Background()
	t0 := time.Now().Add(-time.Hour)

	_, err := s.store.Increment(ctx, "mfa:subject:x", time.Minute, t0)
	s.Require().NoError(err)
	_, err = s.store.Increment(ctx, "mfa:subject:x", time.Minute, t0)
	s.Require().NoError(err)

	c, err := s.store.Increment(ctx, "mfa:subject:x", time.Minute, t0.Add(2*time.Minute))
	s.Require().NoError(err)
	s.Equal(1, c.Count)

	n, err := s.store.DeleteExpired(ctx, t0.Add(10*time.Minute))
	s.Require().NoError(err)
	s.Equal(1, n)
}
