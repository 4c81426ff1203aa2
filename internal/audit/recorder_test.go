package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stagepass/internal/logger"
	"stagepass/internal/models"
	"stagepass/internal/testutil"
)

func message(t *testing.T, event models.ReservationEvent) kafka.Message {
	t.Helper()
	b, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Topic: "reservation-events", Key: []byte(event.ConcertID), Value: b}
}

func TestHandle_RecordsLifecycle(t *testing.T) {
	r := NewRecorder(testutil.NewTestDB(t), logger.Nop())
	ctx := context.Background()
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, r.Handle(ctx, message(t, models.ReservationEvent{
		Type: models.EventReservationCreated, ReservationNumber: "RSV-1", ConcertID: "c1", UserID: "u1", NumTickets: 2, Timestamp: at,
	})))
	require.NoError(t, r.Handle(ctx, message(t, models.ReservationEvent{
		Type: models.EventReservationCancelled, ReservationNumber: "RSV-1", ConcertID: "c1", UserID: "u1", NumTickets: 2, Timestamp: at.Add(time.Hour),
	})))

	var history []models.ReservationAuditEntry
	err := r.DB.NewSelect().
		Model(&history).
		Where("reservation_number = ?", "RSV-1").
		Order("occurred_at ASC", "id ASC").
		Scan(ctx)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.EventReservationCreated, history[0].Action)
	assert.Equal(t, models.EventReservationCancelled, history[1].Action)
	assert.Equal(t, 2, history[1].NumTickets)
}

func TestHandle_SkipsMalformed(t *testing.T) {
	r := NewRecorder(testutil.NewTestDB(t), logger.Nop())

	assert.NoError(t, r.Handle(context.Background(), kafka.Message{Value: []byte("not json")}))
	assert.NoError(t, r.Handle(context.Background(), message(t, models.ReservationEvent{NumTickets: 1})))

	n, err := r.DB.NewSelect().Model((*models.ReservationAuditEntry)(nil)).Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRecord_DefaultsTimestamp(t *testing.T) {
	r := NewRecorder(testutil.NewTestDB(t), logger.Nop())
	require.NoError(t, r.Record(context.Background(), models.ReservationEvent{
		Type: models.EventConcertDeleted, ConcertID: "c9", NumTickets: 3,
	}))

	var entry models.ReservationAuditEntry
	require.NoError(t, r.DB.NewSelect().Model(&entry).Where("concert_id = ?", "c9").Scan(context.Background()))
	assert.False(t, entry.OccurredAt.IsZero())
}
