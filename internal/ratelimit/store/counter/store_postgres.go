package counter

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"warden/internal/ratelimit/models"
)

// incrementQuery resets an expired window and increments in one statement;
// the row lock taken by ON CONFLICT serializes concurrent callers.
const incrementQuery = `
	INSERT INTO rate_limits (key, count, window_expires_at)
	VALUES ($1, 1, $3)
	ON CONFLICT (key) DO UPDATE SET
		count = CASE WHEN rate_limits.window_expires_at <= $2 THEN 1 ELSE rate_limits.count + 1 END,
		window_expires_at = CASE WHEN rate_limits.window_expires_at <= $2 THEN $3 ELSE rate_limits.window_expires_at END
	RETURNING count, window_expires_at
`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Increment(ctx context.Context, key string, window time.Duration, now time.Time) (*models.Counter, error) {
	c := &models.Counter{Key: key}
	err := s.db.QueryRowContext(ctx, incrementQuery, key, now, now.Add(window)).Scan(&c.Count, &c.WindowExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("increment rate limit counter: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) Reset(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM rate_limits WHERE key = $1`, key); err != nil {
		return fmt.Errorf("reset rate limit counter: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rate_limits WHERE window_expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired rate limit counters: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired rate limit counters: %w", err)
	}
	return int(n), nil
}
