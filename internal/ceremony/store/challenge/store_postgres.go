package challenge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"warden/internal/ceremony/models"
	id "warden/pkg/domain"
	"warden/pkg/platform/sentinel"
)

// PostgresStore consumes challenges with a single conditional DELETE ... RETURNING.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, c *models.Challenge) error {
	session, err := encodeSession(c.Session)
	if err != nil {
		return fmt.Errorf("save challenge: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO challenges (value, purpose, subject_id, label, created_at, expires_at, session)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.Value, string(c.Purpose), nullableSubject(c.SubjectID), c.Label, c.CreatedAt, c.ExpiresAt, session)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("save challenge: %w", err)
	}
	return nil
}

// Consume deletes the challenge only if every condition of req holds.
func (s *PostgresStore) Consume(ctx context.Context, req models.ConsumeRequest) (*models.Challenge, error) {
	var (
		c       models.Challenge
		purpose string
		subject uuid.NullUUID
		session []byte
	)
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM challenges
		WHERE value = $1
		  AND purpose = $2
		  AND expires_at > $3
		  AND (
		        (subject_id IS NULL AND NOT $5)
		     OR (subject_id IS NOT NULL AND ($4::uuid IS NULL OR subject_id = $4))
		  )
		RETURNING value, purpose, subject_id, label, created_at, expires_at, session`,
		req.Value, string(req.Purpose), req.Now, nullableSubject(req.SubjectID), req.RequireSubject,
	).Scan(&c.Value, &purpose, &subject, &c.Label, &c.CreatedAt, &c.ExpiresAt, &session)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("consume challenge: %w", err)
	}
	c.Purpose = models.Purpose(purpose)
	if subject.Valid {
		c.SubjectID = id.SubjectID(subject.UUID)
	}
	if c.Session, err = decodeSession(session); err != nil {
		return nil, fmt.Errorf("consume challenge: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM challenges WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired challenges: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func nullableSubject(subjectID id.SubjectID) uuid.NullUUID {
	if subjectID.IsNil() {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(subjectID), Valid: true}
}
