package allowlist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"warden/internal/ratelimit/models"
	id "warden/pkg/domain"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Add(ctx context.Context, entry *models.AllowlistEntry) error {
	if entry == nil {
		return errors.New("allowlist entry is required")
	}
	query := `
		INSERT INTO rate_limit_allowlist (prefix, identifier, reason, expires_at, created_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (prefix, identifier) DO UPDATE SET
			reason = EXCLUDED.reason,
			expires_at = EXCLUDED.expires_at,
			created_at = EXCLUDED.created_at,
			created_by = EXCLUDED.created_by
	`
	_, err := s.db.ExecContext(ctx, query,
		string(entry.Prefix),
		entry.Identifier,
		entry.Reason,
		entry.ExpiresAt,
		entry.CreatedAt,
		uuid.UUID(entry.CreatedBy),
	)
	if err != nil {
		return fmt.Errorf("add allowlist entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Remove(ctx context.Context, prefix models.KeyPrefix, identifier string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rate_limit_allowlist WHERE prefix = $1 AND identifier = $2`, string(prefix), identifier)
	if err != nil {
		return false, fmt.Errorf("remove allowlist entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove allowlist entry: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) IsAllowlisted(ctx context.Context, prefix models.KeyPrefix, identifier string, now time.Time) (bool, error) {
	if identifier == "" {
		return false, nil
	}
	query := `
		SELECT 1
		FROM rate_limit_allowlist
		WHERE prefix = $1 AND identifier = $2
		  AND (expires_at IS NULL OR expires_at > $3)
	`
	var exists int
	if err := s.db.QueryRowContext(ctx, query, string(prefix), identifier, now).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check allowlist: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) List(ctx context.Context, now time.Time) ([]*models.AllowlistEntry, error) {
	query := `
		SELECT prefix, identifier, reason, expires_at, created_at, created_by
		FROM rate_limit_allowlist
		WHERE expires_at IS NULL OR expires_at > $1
		ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("list allowlist entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.AllowlistEntry
	for rows.Next() {
		var (
			entry     models.AllowlistEntry
			prefix    string
			expiresAt sql.NullTime
			createdBy uuid.UUID
		)
		if err := rows.Scan(&prefix, &entry.Identifier, &entry.Reason, &expiresAt, &entry.CreatedAt, &createdBy); err != nil {
			return nil, fmt.Errorf("scan allowlist entry: %w", err)
		}
		entry.Prefix = models.KeyPrefix(prefix)
		entry.CreatedBy = id.SubjectID(createdBy)
		if expiresAt.Valid {
			entry.ExpiresAt = &expiresAt.Time
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate allowlist entries: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rate_limit_allowlist WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired allowlist entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired allowlist entries: %w", err)
	}
	return int(n), nil
}
