package reservation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stagepass/internal/kafka"
	"stagepass/internal/logger"
	"stagepass/internal/metrics"
	"stagepass/internal/models"
	"stagepass/internal/reservation/db"
	resredis "stagepass/internal/reservation/redis"
	"stagepass/internal/utils"
)

type DBLayer interface {
	Reserve(ctx context.Context, r *models.Reservation) (db.Inventory, error)
	Cancel(ctx context.Context, userID, reservationNumber string) (*db.CancelResult, error)
	GetReservation(ctx context.Context, userID, reservationNumber string) (*models.Reservation, error)
	GetNumAvail(ctx context.Context, concertID string) (int, error)
	ListReservationsByUser(ctx context.Context, userID string) ([]models.ReservationListing, error)
	ListConcertsByOrganizer(ctx context.Context, username string) ([]models.OrganizerConcert, error)
}

type IdempotencyStore interface {
	Claim(ctx context.Context, userID, key, fingerprint string) (resredis.ClaimState, string, error)
	Complete(ctx context.Context, userID, key, fingerprint, reservationNumber string) error
	Release(ctx context.Context, userID, key string) error
}

// AvailabilityNotifier receives the inventory left after each change along
// with the concert's inventory version.
type AvailabilityNotifier interface {
	Emit(concertID string, numAvail int, version int64)
}

type PassRenderer interface {
	PNG(r models.Reservation) ([]byte, error)
}

const (
	maxIdempotencyKeyLen = 128
	// numberAttempts bounds retries after a reservation number collision.
	numberAttempts = 3
)

type ReservationService struct {
	DB          DBLayer
	Idempotency IdempotencyStore
	Kafka       kafka.Publisher
	Topic       string
	Notifier    AvailabilityNotifier
	Passes      PassRenderer
	Logger      *logger.Logger

	now       func() time.Time
	newNumber func() string
}

func NewReservationService(store DBLayer, idem IdempotencyStore, publisher kafka.Publisher, topic string, notifier AvailabilityNotifier, passes PassRenderer, log *logger.Logger) *ReservationService {
	if publisher == nil {
		publisher = kafka.NopPublisher{}
	}
	return &ReservationService{
		DB:          store,
		Idempotency: idem,
		Kafka:       publisher,
		Topic:       topic,
		Notifier:    notifier,
		Passes:      passes,
		Logger:      log,
		now:         time.Now,
		newNumber:   utils.GenerateReservationNumber,
	}
}

func requireIdentity(identity models.Identity) error {
	if identity.ID == "" {
		return fmt.Errorf("%w: no caller identity", models.ErrUnauthenticated)
	}
	return nil
}

// Reserve takes quantity tickets for concertID out of inventory on behalf of
// identity. A non-empty idempotencyKey makes retries of the same submit
// return the reservation created by the first attempt.
func (s *ReservationService) Reserve(ctx context.Context, identity models.Identity, concertID string, quantity int, idempotencyKey string) (*models.ReservationResult, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}
	concertID = strings.TrimSpace(concertID)
	if concertID == "" {
		return nil, fmt.Errorf("%w: concertId is required", models.ErrInvalidRequest)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: numTickets must be a positive integer", models.ErrInvalidRequest)
	}
	if len(idempotencyKey) > maxIdempotencyKeyLen {
		return nil, fmt.Errorf("%w: Idempotency-Key too long", models.ErrInvalidRequest)
	}

	claimed := false
	fingerprint := fmt.Sprintf("%s:%d", concertID, quantity)
	if idempotencyKey != "" && s.Idempotency != nil {
		state, number, err := s.Idempotency.Claim(ctx, identity.ID, idempotencyKey, fingerprint)
		switch {
		case err != nil:
			s.Logger.Warn("RESERVATION", fmt.Sprintf("Idempotency unavailable, reserving without it: %v", err))
		case state == resredis.InFlight:
			return nil, fmt.Errorf("%w: a request with this Idempotency-Key is still in progress", models.ErrConflict)
		case state == resredis.Mismatch:
			return nil, fmt.Errorf("%w: this Idempotency-Key was already used for a different request", models.ErrConflict)
		case state == resredis.Completed:
			return s.replay(ctx, identity, number)
		default:
			claimed = true
		}
	}

	r := &models.Reservation{
		UserID:     identity.ID,
		ConcertID:  concertID,
		NumTickets: quantity,
		Status:     models.StatusReserved,
		ReservedAt: s.now().UTC(),
	}

	var inv db.Inventory
	var err error
	for attempt := 1; attempt <= numberAttempts; attempt++ {
		r.ReservationNumber = s.newNumber()
		inv, err = s.DB.Reserve(ctx, r)
		if !errors.Is(err, db.ErrDuplicateNumber) {
			break
		}
		s.Logger.Warn("RESERVATION", fmt.Sprintf("Reservation number %s taken, retrying (attempt %d)", r.ReservationNumber, attempt))
	}
	if errors.Is(err, db.ErrDuplicateNumber) {
		err = fmt.Errorf("%w: %v", models.ErrStorageFailure, err)
	}
	if err != nil {
		if claimed {
			if rerr := s.Idempotency.Release(ctx, identity.ID, idempotencyKey); rerr != nil {
				s.Logger.Warn("RESERVATION", fmt.Sprintf("Failed to release idempotency key: %v", rerr))
			}
		}
		metrics.ObserveReservation("reserve", resultLabel(err))
		return nil, err
	}

	if claimed {
		if err := s.Idempotency.Complete(ctx, identity.ID, idempotencyKey, fingerprint, r.ReservationNumber); err != nil {
			s.Logger.Warn("RESERVATION", fmt.Sprintf("Failed to record idempotency key: %v", err))
		}
	}

	metrics.ObserveReservation("reserve", "ok")
	metrics.AddTicketsReserved(quantity)
	s.Logger.LogReservation("RESERVE", r.ReservationNumber,
		fmt.Sprintf("user=%s concert=%s tickets=%d remaining=%d", identity.ID, concertID, quantity, inv.Remaining))

	s.afterCommit(ctx, models.ReservationEvent{
		Type:              models.EventReservationCreated,
		ReservationNumber: r.ReservationNumber,
		ConcertID:         concertID,
		UserID:            identity.ID,
		NumTickets:        quantity,
		Remaining:         inv.Remaining,
		InventoryVersion:  inv.Version,
		Timestamp:         r.ReservedAt,
	}, true)

	return &models.ReservationResult{Reservation: *r, Remaining: inv.Remaining}, nil
}

func (s *ReservationService) replay(ctx context.Context, identity models.Identity, number string) (*models.ReservationResult, error) {
	r, err := s.DB.GetReservation(ctx, identity.ID, number)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w: the reservation made with this Idempotency-Key was cancelled", models.ErrConflict)
	}
	if err != nil {
		return nil, err
	}

	remaining, err := s.DB.GetNumAvail(ctx, r.ConcertID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	s.Logger.LogReservation("REPLAY", r.ReservationNumber, "returned existing reservation for retried request")
	return &models.ReservationResult{Reservation: *r, Remaining: remaining, Replayed: true}, nil
}

// Cancel deletes the caller's reservation and returns its tickets to the
// concert. Reservations the caller does not own are reported as not found.
func (s *ReservationService) Cancel(ctx context.Context, identity models.Identity, reservationNumber string) (*models.Reservation, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}
	reservationNumber = strings.TrimSpace(reservationNumber)
	if reservationNumber == "" {
		return nil, fmt.Errorf("%w: reservation number is required", models.ErrInvalidRequest)
	}

	res, err := s.DB.Cancel(ctx, identity.ID, reservationNumber)
	if err != nil {
		metrics.ObserveReservation("cancel", resultLabel(err))
		return nil, err
	}

	metrics.ObserveReservation("cancel", "ok")
	s.Logger.LogReservation("CANCEL", reservationNumber,
		fmt.Sprintf("user=%s concert=%s tickets=%d concertFound=%t", identity.ID, res.Reservation.ConcertID, res.Reservation.NumTickets, res.ConcertFound))

	if res.ConcertFound {
		metrics.AddTicketsReleased(res.Reservation.NumTickets)
	}
	s.afterCommit(ctx, models.ReservationEvent{
		Type:              models.EventReservationCancelled,
		ReservationNumber: reservationNumber,
		ConcertID:         res.Reservation.ConcertID,
		UserID:            identity.ID,
		NumTickets:        res.Reservation.NumTickets,
		Remaining:         res.Inventory.Remaining,
		InventoryVersion:  res.Inventory.Version,
		Timestamp:         s.now().UTC(),
	}, res.ConcertFound)

	return &res.Reservation, nil
}

func (s *ReservationService) ListForUser(ctx context.Context, identity models.Identity) ([]models.ReservationListing, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}
	return s.DB.ListReservationsByUser(ctx, identity.ID)
}

func (s *ReservationService) ListForOrganizer(ctx context.Context, identity models.Identity) ([]models.OrganizerConcert, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}
	if !identity.Organizer {
		return nil, fmt.Errorf("%w: organizer account required", models.ErrForbidden)
	}
	return s.DB.ListConcertsByOrganizer(ctx, identity.Username)
}

// GetPass renders the door pass QR code for one of the caller's reservations.
func (s *ReservationService) GetPass(ctx context.Context, identity models.Identity, reservationNumber string) ([]byte, error) {
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}
	r, err := s.DB.GetReservation(ctx, identity.ID, reservationNumber)
	if err != nil {
		return nil, err
	}
	png, err := s.Passes.PNG(*r)
	if err != nil {
		return nil, fmt.Errorf("render pass: %w", err)
	}
	return png, nil
}

// afterCommit runs the notifications that follow a committed change. None of
// them can fail the operation.
func (s *ReservationService) afterCommit(ctx context.Context, event models.ReservationEvent, notify bool) {
	if notify && s.Notifier != nil {
		s.Notifier.Emit(event.ConcertID, event.Remaining, event.InventoryVersion)
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.Kafka.Publish(pubCtx, s.Topic, event.ConcertID, event); err != nil {
		metrics.ObserveSideChannelFailure("kafka")
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish %s for %s: %v", event.Type, event.ReservationNumber, err))
	}
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, models.ErrInsufficientInventory):
		return "insufficient"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrInvalidRequest):
		return "invalid"
	default:
		return "error"
	}
}
