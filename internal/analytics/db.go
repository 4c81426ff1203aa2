package analytics

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"stagepass/internal/models"
)

// DB handles analytics database operations
type DB struct {
	bun *bun.DB
}

func NewDB(db *bun.DB) *DB {
	return &DB{bun: db}
}

// ReservationCount is the live reservation tally of one concert.
type ReservationCount struct {
	ConcertID  string `bun:"concert_id"`
	Count      int    `bun:"reservation_count"`
	NumTickets int    `bun:"num_tickets"`
}

func (db *DB) ConcertsByOrganizer(ctx context.Context, username string) ([]models.Concert, error) {
	concerts := []models.Concert{}
	err := db.bun.NewSelect().
		Model(&concerts).
		Where("organizer = ?", username).
		Order("starts_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list organizer concerts: %v", models.ErrStorageFailure, err)
	}
	return concerts, nil
}

// ReservationCounts groups the live reservations of the given concerts.
func (db *DB) ReservationCounts(ctx context.Context, concertIDs []string) (map[string]ReservationCount, error) {
	counts := make(map[string]ReservationCount, len(concertIDs))
	if len(concertIDs) == 0 {
		return counts, nil
	}

	var rows []ReservationCount
	err := db.bun.NewSelect().
		ColumnExpr("r.concert_id").
		ColumnExpr("COUNT(*) AS reservation_count").
		ColumnExpr("COALESCE(SUM(r.num_tickets), 0) AS num_tickets").
		TableExpr("reservations AS r").
		Where("r.concert_id IN (?)", bun.In(concertIDs)).
		GroupExpr("r.concert_id").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("%w: count reservations: %v", models.ErrStorageFailure, err)
	}
	for _, row := range rows {
		counts[row.ConcertID] = row
	}
	return counts, nil
}
