package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"warden/internal/session/models"
	id "warden/pkg/domain"
	"warden/pkg/platform/sentinel"
)

// PostgresStore relies on the partial unique index over active
// (subject_id, device_fingerprint) rows to make tracking a single upsert.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const sessionColumns = `id, subject_id, device_fingerprint, user_agent, ip_address, created_at, first_seen_at, last_active_at, active, trusted_until, terminated_at`

// Upsert inserts a session or refreshes the live one. first_seen_at is
// carried over from earlier terminated sessions of the same device.
// (xmax = 0) is true only for freshly inserted rows.
func (s *PostgresStore) Upsert(ctx context.Context, req models.TrackRequest) (*models.TrackResult, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO sessions (id, subject_id, device_fingerprint, user_agent, ip_address, created_at, first_seen_at, last_active_at, active)
		VALUES (
			$1, $2, $3, $4, $5, $6,
			COALESCE((SELECT MIN(p.first_seen_at) FROM sessions p WHERE p.subject_id = $2 AND p.device_fingerprint = $3), $6),
			$6, TRUE
		)
		ON CONFLICT (subject_id, device_fingerprint) WHERE active
		DO UPDATE SET
			last_active_at = GREATEST(sessions.last_active_at, EXCLUDED.last_active_at),
			user_agent = COALESCE(NULLIF(EXCLUDED.user_agent, ''), sessions.user_agent),
			ip_address = COALESCE(NULLIF(EXCLUDED.ip_address, ''), sessions.ip_address)
		RETURNING `+sessionColumns+`, (xmax = 0) AS inserted`,
		uuid.UUID(id.NewSessionID()), uuid.UUID(req.SubjectID), req.Fingerprint, req.UserAgent, req.IPAddress, req.Now)

	var inserted bool
	sess, err := scanSession(row, &inserted)
	if err != nil {
		return nil, fmt.Errorf("upsert session: %w", err)
	}
	return &models.TrackResult{
		Session:   sess,
		Created:   inserted,
		NewDevice: inserted && sess.FirstSeenAt.Equal(sess.CreatedAt),
	}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner, extra ...any) (*models.Session, error) {
	var (
		sess       models.Session
		sid        uuid.UUID
		subject    uuid.UUID
		trusted    sql.NullTime
		terminated sql.NullTime
	)
	dest := []any{&sid, &subject, &sess.DeviceFingerprint, &sess.UserAgent, &sess.IPAddress,
		&sess.CreatedAt, &sess.FirstSeenAt, &sess.LastActiveAt, &sess.Active, &trusted, &terminated}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	sess.ID = id.SessionID(sid)
	sess.SubjectID = id.SubjectID(subject)
	if trusted.Valid {
		sess.TrustedUntil = &trusted.Time
	}
	if terminated.Valid {
		sess.TerminatedAt = &terminated.Time
	}
	return &sess, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, uuid.UUID(sessionID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) ListActive(ctx context.Context, subjectID id.SubjectID) ([]*models.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE subject_id = $1 AND active ORDER BY last_active_at DESC`,
		uuid.UUID(subjectID))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var out []*models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Deactivate distinguishes a missing session from one already terminated.
func (s *PostgresStore) Deactivate(ctx context.Context, sessionID id.SessionID, at time.Time) (bool, error) {
	var wasActive bool
	err := s.db.QueryRowContext(ctx, `
		WITH target AS (
			SELECT id, active FROM sessions WHERE id = $1 FOR UPDATE
		), updated AS (
			UPDATE sessions SET active = FALSE, terminated_at = $2
			FROM target WHERE sessions.id = target.id AND target.active
			RETURNING sessions.id
		)
		SELECT EXISTS (SELECT 1 FROM updated) FROM target`,
		uuid.UUID(sessionID), at).Scan(&wasActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, sentinel.ErrNotFound
		}
		return false, fmt.Errorf("deactivate session: %w", err)
	}
	return wasActive, nil
}

func (s *PostgresStore) DeactivateOthers(ctx context.Context, subjectID id.SubjectID, keep id.SessionID, at time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET active = FALSE, terminated_at = $3
		WHERE subject_id = $1 AND id <> $2 AND active`,
		uuid.UUID(subjectID), uuid.UUID(keep), at)
	if err != nil {
		return 0, fmt.Errorf("deactivate other sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deactivate other sessions: %w", err)
	}
	return int(n), nil
}

func (s *PostgresStore) SetTrustedUntil(ctx context.Context, sessionID id.SessionID, until *time.Time) error {
	var value sql.NullTime
	if until != nil {
		value = sql.NullTime{Time: *until, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET trusted_until = $2 WHERE id = $1`, uuid.UUID(sessionID), value)
	if err != nil {
		return fmt.Errorf("set session trust: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set session trust: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ActiveSubjectsSince(ctx context.Context, since time.Time) ([]id.SubjectID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT subject_id FROM sessions WHERE active AND last_active_at >= $1`, since)
	if err != nil {
		return nil, fmt.Errorf("list active subjects: %w", err)
	}
	defer rows.Close()
	var out []id.SubjectID
	for rows.Next() {
		var subject uuid.UUID
		if err := rows.Scan(&subject); err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		out = append(out, id.SubjectID(subject))
	}
	return out, rows.Err()
}
