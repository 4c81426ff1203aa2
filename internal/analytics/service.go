package analytics

import (
	"context"
	"fmt"
	"time"

	"stagepass/internal/models"
)

type DBLayer interface {
	ConcertsByOrganizer(ctx context.Context, username string) ([]models.Concert, error)
	ReservationCounts(ctx context.Context, concertIDs []string) (map[string]ReservationCount, error)
}

// Service handles analytics operations
type Service struct {
	db DBLayer
}

func NewService(db DBLayer) *Service {
	return &Service{db: db}
}

// ConcertSummary is the sales picture of one concert at request time.
type ConcertSummary struct {
	ConcertID        string    `json:"concertId"`
	Artist           string    `json:"artist"`
	StartsAt         time.Time `json:"startsAt"`
	Allotment        int       `json:"allotment"`
	TicketsReserved  int       `json:"ticketsReserved"`
	TicketsRemaining int       `json:"ticketsRemaining"`
	ReservationCount int       `json:"reservationCount"`
	ProjectedRevenue float64   `json:"projectedRevenue"`
}

type OrganizerSummary struct {
	Organizer        string           `json:"organizer"`
	Concerts         []ConcertSummary `json:"concerts"`
	TotalReserved    int              `json:"totalReserved"`
	ProjectedRevenue float64          `json:"projectedRevenue"`
}

// OrganizerSummary reports reservations and payable-at-door revenue for
// every concert the caller organizes.
func (s *Service) OrganizerSummary(ctx context.Context, identity models.Identity) (*OrganizerSummary, error) {
	if !identity.Organizer {
		return nil, fmt.Errorf("%w: organizer account required", models.ErrForbidden)
	}

	concerts, err := s.db.ConcertsByOrganizer(ctx, identity.Username)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(concerts))
	for _, c := range concerts {
		ids = append(ids, c.ID)
	}
	counts, err := s.db.ReservationCounts(ctx, ids)
	if err != nil {
		return nil, err
	}

	summary := &OrganizerSummary{Organizer: identity.Username, Concerts: make([]ConcertSummary, 0, len(concerts))}
	var cents float64
	for _, c := range concerts {
		count := counts[c.ID]
		revenue := models.LineTotal(c.Tickets.Price, count.NumTickets)
		summary.Concerts = append(summary.Concerts, ConcertSummary{
			ConcertID:        c.ID,
			Artist:           c.Artist,
			StartsAt:         c.StartsAt,
			Allotment:        c.Allotment,
			TicketsReserved:  count.NumTickets,
			TicketsRemaining: c.Tickets.NumAvail,
			ReservationCount: count.Count,
			ProjectedRevenue: revenue,
		})
		summary.TotalReserved += count.NumTickets
		cents += revenue * 100
	}
	summary.ProjectedRevenue = float64(int64(cents+0.5)) / 100
	return summary, nil
}
