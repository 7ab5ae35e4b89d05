package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"warden/internal/mfa/models"
	id "warden/pkg/domain"
	"warden/pkg/platform/sentinel"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) SavePending(ctx context.Context, e *models.Enrollment) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO totp_enrollments (subject_id, secret, confirmed, last_used_step, created_at)
		VALUES ($1, $2, FALSE, 0, $3)
		ON CONFLICT (subject_id) DO UPDATE
		SET secret = EXCLUDED.secret, last_used_step = 0, created_at = EXCLUDED.created_at
		WHERE totp_enrollments.confirmed = FALSE`,
		uuid.UUID(e.SubjectID), e.Secret, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("save totp enrollment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save totp enrollment: %w", err)
	}
	if n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) FindEnrollment(ctx context.Context, subjectID id.SubjectID) (*models.Enrollment, error) {
	e := &models.Enrollment{SubjectID: subjectID}
	err := s.db.QueryRowContext(ctx, `
		SELECT secret, confirmed, last_used_step, created_at
		FROM totp_enrollments WHERE subject_id = $1`,
		uuid.UUID(subjectID)).Scan(&e.Secret, &e.Confirmed, &e.LastUsedStep, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find totp enrollment: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) ConsumeStep(ctx context.Context, subjectID id.SubjectID, step int64, confirm bool) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE totp_enrollments
		SET last_used_step = $2, confirmed = confirmed OR $3
		WHERE subject_id = $1 AND last_used_step < $2`,
		uuid.UUID(subjectID), step, confirm)
	if err != nil {
		return false, fmt.Errorf("consume totp step: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume totp step: %w", err)
	}
	return n == 1, nil
}

func (s *PostgresStore) DeleteEnrollment(ctx context.Context, subjectID id.SubjectID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mfa delete: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if _, err := tx.ExecContext(ctx, `DELETE FROM recovery_codes WHERE subject_id = $1`, uuid.UUID(subjectID)); err != nil {
		return fmt.Errorf("delete recovery codes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM totp_enrollments WHERE subject_id = $1`, uuid.UUID(subjectID)); err != nil {
		return fmt.Errorf("delete totp enrollment: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mfa delete: %w", err)
	}
	return nil
}

func (s *PostgresStore) ReplaceRecoveryCodes(ctx context.Context, subjectID id.SubjectID, codes []*models.RecoveryCode) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin recovery code replace: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if _, err := tx.ExecContext(ctx, `DELETE FROM recovery_codes WHERE subject_id = $1`, uuid.UUID(subjectID)); err != nil {
		return fmt.Errorf("delete recovery codes: %w", err)
	}
	for _, c := range codes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO recovery_codes (id, subject_id, code_hash, created_at)
			VALUES ($1, $2, $3, $4)`,
			c.ID, uuid.UUID(c.SubjectID), c.CodeHash, c.CreatedAt); err != nil {
			return fmt.Errorf("insert recovery code: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit recovery code replace: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListUnusedRecoveryCodes(ctx context.Context, subjectID id.SubjectID) ([]*models.RecoveryCode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code_hash, created_at
		FROM recovery_codes WHERE subject_id = $1 AND used_at IS NULL`,
		uuid.UUID(subjectID))
	if err != nil {
		return nil, fmt.Errorf("list recovery codes: %w", err)
	}
	defer rows.Close()

	var out []*models.RecoveryCode
	for rows.Next() {
		c := &models.RecoveryCode{SubjectID: subjectID}
		if err := rows.Scan(&c.ID, &c.CodeHash, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan recovery code: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recovery codes: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) MarkRecoveryCodeUsed(ctx context.Context, codeID uuid.UUID, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE recovery_codes SET used_at = $2 WHERE id = $1 AND used_at IS NULL`, codeID, at)
	if err != nil {
		return false, fmt.Errorf("mark recovery code used: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark recovery code used: %w", err)
	}
	return n == 1, nil
}
