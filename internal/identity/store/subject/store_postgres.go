package subject

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"warden/internal/identity/models"
	id "warden/pkg/domain"
	"warden/pkg/platform/sentinel"
)

// PostgresStore reads and writes the subjects table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, subject *models.Subject) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subjects (id, email, display_name, role, created_at)
		VALUES ($1, lower($2), $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			display_name = EXCLUDED.display_name,
			role = EXCLUDED.role`,
		uuid.UUID(subject.ID), subject.Email, subject.DisplayName, string(subject.Role), subject.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("save subject: %w", err)
	}
	return nil
}

const subjectColumns = `id, email, display_name, role, created_at`

func scanSubject(row *sql.Row) (*models.Subject, error) {
	var (
		subject models.Subject
		rawID   uuid.UUID
		role    string
	)
	if err := row.Scan(&rawID, &subject.Email, &subject.DisplayName, &role, &subject.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan subject: %w", err)
	}
	subject.ID = id.SubjectID(rawID)
	subject.Role = models.Role(role)
	return &subject, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, subjectID id.SubjectID) (*models.Subject, error) {
	return scanSubject(s.db.QueryRowContext(ctx,
		`SELECT `+subjectColumns+` FROM subjects WHERE id = $1`, uuid.UUID(subjectID)))
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.Subject, error) {
	return scanSubject(s.db.QueryRowContext(ctx,
		`SELECT `+subjectColumns+` FROM subjects WHERE email = lower($1)`, email))
}

func (s *PostgresStore) RoleOf(ctx context.Context, subjectID id.SubjectID) (models.Role, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `SELECT role FROM subjects WHERE id = $1`, uuid.UUID(subjectID)).Scan(&role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", sentinel.ErrNotFound
		}
		return "", fmt.Errorf("read role: %w", err)
	}
	return models.Role(role), nil
}
