package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "warden/pkg/domain"
	audit "warden/pkg/platform/audit"
)

func TestStore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := New(db)

	subject := id.NewSubjectID()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	t.Run("append writes a null actor for direct actions", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO audit_events").
			WithArgs(sqlmock.AnyArg(), now, sqlmock.AnyArg(), nil, "alert_raised", "", "", "req-1", []byte(`{"alert_type":"new_device"}`)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := store.Append(context.Background(), audit.Event{
			Timestamp: now, SubjectID: subject, Action: audit.EventAlertRaised, RequestID: "req-1",
			Metadata: map[string]string{"alert_type": "new_device"},
		})
		require.NoError(t, err)
	})

	t.Run("list decodes rows newest first", func(t *testing.T) {
		actor := uuid.New()
		rows := sqlmock.NewRows([]string{"occurred_at", "subject_id", "actor_id", "action", "decision", "reason", "request_id", "metadata"}).
			AddRow(now, uuid.UUID(subject), actor, "impersonation_started", "granted", "", "req-2", []byte(`{}`))
		mock.ExpectQuery("SELECT occurred_at").WithArgs(uuid.UUID(subject), 100).WillReturnRows(rows)

		events, err := store.ListBySubject(context.Background(), subject, 0)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, audit.EventImpersonationStarted, events[0].Action)
		assert.Equal(t, id.SubjectID(actor), events[0].ActorID)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}
