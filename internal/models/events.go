package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	EventReservationCreated   = "reservation.created"
	EventReservationCancelled = "reservation.cancelled"
	EventConcertDeleted       = "concert.deleted"
)

// ReservationEvent is published after a reservation mutation commits.
type ReservationEvent struct {
	Type              string    `json:"type"`
	ReservationNumber string    `json:"reservation_number,omitempty"`
	ConcertID         string    `json:"concert_id"`
	UserID            string    `json:"user_id,omitempty"`
	NumTickets        int       `json:"num_tickets"`
	Remaining         int       `json:"remaining"`
	InventoryVersion  int64     `json:"inventory_version,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// AvailabilityUpdate is broadcast to availability stream subscribers.
// Version orders updates for one concert; a lower version is stale.
type AvailabilityUpdate struct {
	ConcertID string `json:"concertId"`
	NumAvail  int    `json:"numAvail"`
	SoldOut   bool   `json:"soldOut"`
	Version   int64  `json:"version"`
}

// ReservationAuditEntry is one row of the out-of-band reservation history.
type ReservationAuditEntry struct {
	bun.BaseModel `bun:"table:reservation_audit"`

	ID                int64     `bun:"id,pk,autoincrement" json:"id"`
	Action            string    `bun:"action,notnull" json:"action"`
	ReservationNumber string    `bun:"reservation_number" json:"reservationNumber,omitempty"`
	ConcertID         string    `bun:"concert_id,notnull" json:"concertId"`
	UserID            string    `bun:"user_id" json:"userId,omitempty"`
	NumTickets        int       `bun:"num_tickets" json:"numTickets"`
	OccurredAt        time.Time `bun:"occurred_at,notnull" json:"occurredAt"`
}
