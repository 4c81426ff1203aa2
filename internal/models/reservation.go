package models

import (
	"time"

	"github.com/uptrace/bun"
)

type ReservationStatus string

const StatusReserved ReservationStatus = "Reserved"

type Reservation struct {
	bun.BaseModel `bun:"table:reservations"`

	ReservationNumber string            `bun:"reservation_number,pk" json:"reservationNumber"`
	UserID            string            `bun:"user_id,notnull" json:"-"`
	ConcertID         string            `bun:"concert_id,notnull" json:"concertId"`
	NumTickets        int               `bun:"num_tickets,notnull" json:"numTickets"`
	Status            ReservationStatus `bun:"status,notnull" json:"status"`
	ReservedAt        time.Time         `bun:"reserved_at,notnull" json:"reservedAt"`
}

type ReservationRequest struct {
	ConcertID  string `json:"concertId"`
	NumTickets int    `json:"numTickets"`
}

// ConcertSnapshot is the display data joined onto a reservation listing.
type ConcertSnapshot struct {
	Artist       string    `json:"artist"`
	VenueName    string    `json:"venueName,omitempty"`
	VenueAddress string    `json:"venueAddress,omitempty"`
	StartsAt     time.Time `json:"startsAt"`
	TicketType   string    `json:"ticketType"`
	UnitPrice    float64   `json:"unitPrice"`
}

// ReservationListing is one entry of a user's ticket list. When the concert
// or its venue is gone the matching Unavailable flag is set and the snapshot
// fields it would have supplied stay empty.
type ReservationListing struct {
	Reservation
	Concert            *ConcertSnapshot `json:"concert"`
	ConcertUnavailable bool             `json:"concertUnavailable"`
	VenueUnavailable   bool             `json:"venueUnavailable"`
	TotalPrice         *float64         `json:"totalPrice"`
}

// ReservationResult is returned by a successful reserve.
type ReservationResult struct {
	Reservation Reservation `json:"reservation"`
	Remaining   int         `json:"remaining"`
	Replayed    bool        `json:"replayed,omitempty"`
}

// OrganizerConcert is a concert owned by the caller with its venue joined in.
type OrganizerConcert struct {
	Concert
	VenueUnavailable bool `json:"venueUnavailable,omitempty"`
}
