package revocation

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresList persists revoked JTIs in revoked_tokens.
type PostgresList struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresList {
	return &PostgresList{db: db}
}

func (l *PostgresList) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO revoked_tokens (jti, expires_at) VALUES ($1, $2)
		ON CONFLICT (jti) DO UPDATE SET expires_at = GREATEST(revoked_tokens.expires_at, EXCLUDED.expires_at)`,
		jti, expiresAt)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (l *PostgresList) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := l.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = $1 AND expires_at > now())`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check token revocation: %w", err)
	}
	return revoked, nil
}

func (l *PostgresList) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired revocations: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
