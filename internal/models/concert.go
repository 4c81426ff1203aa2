package models

import (
	"math"
	"time"

	"github.com/uptrace/bun"
)

// TicketClass is the single ticket tier a concert sells.
type TicketClass struct {
	Type     string  `bun:"type" json:"type"`
	Price    float64 `bun:"price" json:"price"`
	NumAvail int     `bun:"num_avail" json:"numAvail"`
}

type Concert struct {
	bun.BaseModel `bun:"table:concerts"`

	ID          string      `bun:"id,pk" json:"id"`
	Artist      string      `bun:"artist,notnull" json:"artist"`
	VenueID     string      `bun:"venue_id,notnull" json:"venueId"`
	Tour        string      `bun:"tour" json:"tour"`
	StartsAt    time.Time   `bun:"starts_at,notnull" json:"startsAt"`
	Description string      `bun:"description" json:"description"`
	Genre       string      `bun:"genre" json:"genre"`
	Rules       string      `bun:"rules" json:"rules"`
	Organizer   string      `bun:"organizer,notnull" json:"organizer"`
	ImageURL    string      `bun:"image_url" json:"imageUrl,omitempty"`
	Tickets     TicketClass `bun:"embed:ticket_" json:"tickets"`
	// Allotment is numAvail plus every ticket held by a live reservation.
	Allotment int `bun:"allotment,notnull" json:"-"`
	// InventoryVersion grows by one with every committed change to numAvail.
	InventoryVersion int64     `bun:"inventory_version,notnull,default:0" json:"-"`
	CreatedAt        time.Time `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt        time.Time `bun:"updated_at,nullzero" json:"updatedAt,omitempty"`

	Venue *Venue `bun:"-" json:"venue,omitempty"`
}

// Reserved returns the number of tickets currently held by reservations.
func (c *Concert) Reserved() int {
	return c.Allotment - c.Tickets.NumAvail
}

// ConcertRequest is the organizer payload for creating or editing a concert.
type ConcertRequest struct {
	Artist      string      `json:"artist"`
	VenueID     string      `json:"venueId"`
	Tour        string      `json:"tour"`
	StartsAt    time.Time   `json:"startsAt"`
	Description string      `json:"description"`
	Genre       string      `json:"genre"`
	Rules       string      `json:"rules"`
	ImageURL    string      `json:"imageUrl"`
	Tickets     TicketClass `json:"tickets"`
}

type ConcertFilter struct {
	Genre   string
	VenueID string
}

// LineTotal prices quantity tickets at unitPrice, rounded to cents.
func LineTotal(unitPrice float64, quantity int) float64 {
	cents := math.Round(unitPrice * 100)
	return cents * float64(quantity) / 100
}
