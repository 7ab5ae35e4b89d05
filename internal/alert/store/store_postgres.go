package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"warden/internal/alert/models"
	id "warden/pkg/domain"
	"warden/pkg/platform/sentinel"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, a *models.Alert) error {
	metadata, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("marshal alert metadata: %w", err)
	}
	if a.Metadata == nil {
		metadata = []byte("{}")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, subject_id, alert_type, created_at, metadata)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.UUID(a.ID), uuid.UUID(a.SubjectID), string(a.Type), a.CreatedAt, metadata)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

const alertColumns = `id, subject_id, alert_type, created_at, resolved_at, metadata`

type scanner interface {
	Scan(dest ...any) error
}

func scanAlert(row scanner) (*models.Alert, error) {
	var (
		a         models.Alert
		alertID   uuid.UUID
		subjectID uuid.UUID
		alertType string
		resolved  sql.NullTime
		metadata  []byte
	)
	if err := row.Scan(&alertID, &subjectID, &alertType, &a.CreatedAt, &resolved, &metadata); err != nil {
		return nil, err
	}
	a.ID = id.AlertID(alertID)
	a.SubjectID = id.SubjectID(subjectID)
	a.Type = models.Type(alertType)
	if resolved.Valid {
		a.ResolvedAt = &resolved.Time
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &a.Metadata); err != nil {
			return nil, fmt.Errorf("decode alert metadata: %w", err)
		}
	}
	return &a, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, alertID id.AlertID) (*models.Alert, error) {
	a, err := scanAlert(s.db.QueryRowContext(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE id = $1`, uuid.UUID(alertID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find alert: %w", err)
	}
	return a, nil
}

// Resolve only touches unresolved rows, so resolution is monotonic. A zero
// row count is disambiguated with a lookup.
func (s *PostgresStore) Resolve(ctx context.Context, alertID id.AlertID, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET resolved_at = $2 WHERE id = $1 AND resolved_at IS NULL`, uuid.UUID(alertID), at)
	if err != nil {
		return false, fmt.Errorf("resolve alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resolve alert: %w", err)
	}
	if n > 0 {
		return true, nil
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM alerts WHERE id = $1)`, uuid.UUID(alertID)).Scan(&exists); err != nil {
		return false, fmt.Errorf("resolve alert: %w", err)
	}
	if !exists {
		return false, sentinel.ErrNotFound
	}
	return false, nil
}

func (s *PostgresStore) ListUnresolved(ctx context.Context, subjectID id.SubjectID) ([]*models.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+alertColumns+` FROM alerts
		WHERE subject_id = $1 AND resolved_at IS NULL
		ORDER BY created_at DESC`, uuid.UUID(subjectID))
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()
	var out []*models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) HasUnresolved(ctx context.Context, subjectID id.SubjectID, alertType models.Type) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM alerts WHERE subject_id = $1 AND alert_type = $2 AND resolved_at IS NULL)`,
		uuid.UUID(subjectID), string(alertType)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check unresolved alerts: %w", err)
	}
	return exists, nil
}
