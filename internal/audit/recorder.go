package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/uptrace/bun"

	"stagepass/internal/logger"
	"stagepass/internal/models"
)

// Recorder appends reservation events to the reservation_audit table.
// Reservations are deleted on cancel, so this is the only history kept.
type Recorder struct {
	DB     bun.IDB
	Logger *logger.Logger
}

func NewRecorder(db bun.IDB, log *logger.Logger) *Recorder {
	return &Recorder{DB: db, Logger: log}
}

// Handle is a kafka.Handler. Malformed messages are logged and skipped so a
// single bad payload cannot stall the consumer group.
func (r *Recorder) Handle(ctx context.Context, msg kafka.Message) error {
	var event models.ReservationEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		r.Logger.Warn("AUDIT", fmt.Sprintf("Skipping malformed message at %s/%d: %v", msg.Topic, msg.Offset, err))
		return nil
	}
	if event.Type == "" || event.ConcertID == "" {
		r.Logger.Warn("AUDIT", fmt.Sprintf("Skipping message without type or concert at %s/%d", msg.Topic, msg.Offset))
		return nil
	}
	return r.Record(ctx, event)
}

func (r *Recorder) Record(ctx context.Context, event models.ReservationEvent) error {
	occurred := event.Timestamp
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	entry := &models.ReservationAuditEntry{
		Action:            event.Type,
		ReservationNumber: event.ReservationNumber,
		ConcertID:         event.ConcertID,
		UserID:            event.UserID,
		NumTickets:        event.NumTickets,
		OccurredAt:        occurred,
	}
	if _, err := r.DB.NewInsert().Model(entry).Exec(ctx); err != nil {
		return fmt.Errorf("%w: insert audit entry: %v", models.ErrStorageFailure, err)
	}
	r.Logger.LogReservation(event.Type, event.ReservationNumber, fmt.Sprintf("audited concert=%s tickets=%d", event.ConcertID, event.NumTickets))
	return nil
}
