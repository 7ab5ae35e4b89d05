package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"warden/internal/ceremony/models"
	id "warden/pkg/domain"
	"warden/pkg/platform/sentinel"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create relies on the primary key; ON CONFLICT DO NOTHING turns a duplicate
// into zero affected rows instead of an aborted statement.
func (s *PostgresStore) Create(ctx context.Context, c *models.Credential) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (credential_id, subject_id, public_key, algorithm, sign_count, backup_eligible, display_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (credential_id) DO NOTHING`,
		c.ID.String(), uuid.UUID(c.SubjectID), c.PublicKey, int(c.Algorithm), int64(c.SignCount), c.BackupEligible, c.DisplayName, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("create credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create credential: %w", err)
	}
	if n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

const credentialColumns = `credential_id, subject_id, public_key, algorithm, sign_count, backup_eligible, display_name, created_at, last_used_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanCredential(row scanner) (*models.Credential, error) {
	var (
		c         models.Credential
		rawID     string
		subject   uuid.UUID
		algorithm int
		signCount int64
		lastUsed  sql.NullTime
	)
	if err := row.Scan(&rawID, &subject, &c.PublicKey, &algorithm, &signCount, &c.BackupEligible, &c.DisplayName, &c.CreatedAt, &lastUsed); err != nil {
		return nil, err
	}
	c.ID = id.CredentialID(rawID)
	c.SubjectID = id.SubjectID(subject)
	c.Algorithm = models.Algorithm(algorithm)
	c.SignCount = uint32(signCount)
	if lastUsed.Valid {
		c.LastUsedAt = &lastUsed.Time
	}
	return &c, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, credentialID id.CredentialID) (*models.Credential, error) {
	c, err := scanCredential(s.db.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE credential_id = $1`, credentialID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find credential: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subjectID id.SubjectID) ([]*models.Credential, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE subject_id = $1 ORDER BY created_at`, uuid.UUID(subjectID))
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()
	var out []*models.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RecordUse advances sign_count in the same statement that checks it, so two
// concurrent assertions carrying the same counter cannot both succeed.
func (s *PostgresStore) RecordUse(ctx context.Context, credentialID id.CredentialID, signCount uint32, usedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE credentials
		SET sign_count = $2, last_used_at = $3
		WHERE credential_id = $1 AND (sign_count < $2 OR ($2 = 0 AND sign_count = 0))`,
		credentialID.String(), int64(signCount), usedAt)
	if err != nil {
		return fmt.Errorf("record credential use: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record credential use: %w", err)
	}
	if n == 0 {
		return sentinel.ErrInvalidState
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, subjectID id.SubjectID, credentialID id.CredentialID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM credentials WHERE credential_id = $1 AND subject_id = $2`, credentialID.String(), uuid.UUID(subjectID))
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
