package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	id "warden/pkg/domain"
	audit "warden/pkg/platform/audit"
)

// Store implements audit.Store using PostgreSQL.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func nullableSubject(s id.SubjectID) *uuid.UUID {
	if s.IsNil() {
		return nil
	}
	u := uuid.UUID(s)
	return &u
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, occurred_at, subject_id, actor_id, action, decision, reason, request_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.New(),
		event.Timestamp,
		nullableSubject(event.SubjectID),
		nullableSubject(event.ActorID),
		string(event.Action),
		event.Decision,
		event.Reason,
		event.RequestID,
		metadata,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *Store) ListBySubject(ctx context.Context, subjectID id.SubjectID, limit int) ([]audit.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT occurred_at, subject_id, actor_id, action, decision, reason, request_id, metadata
		FROM audit_events
		WHERE subject_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2`, uuid.UUID(subjectID), limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			event    audit.Event
			subject  *uuid.UUID
			actor    *uuid.UUID
			action   string
			metadata []byte
		)
		if err := rows.Scan(&event.Timestamp, &subject, &actor, &action, &event.Decision, &event.Reason, &event.RequestID, &metadata); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Action = audit.AuditEvent(action)
		if subject != nil {
			event.SubjectID = id.SubjectID(*subject)
		}
		if actor != nil {
			event.ActorID = id.SubjectID(*actor)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata: %w", err)
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
