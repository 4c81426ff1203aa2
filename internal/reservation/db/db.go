package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"stagepass/internal/database"
	"stagepass/internal/models"
)

// ErrDuplicateNumber reports that the reservation number is already taken.
// The transaction is rolled back, so the caller may retry with a new number.
var ErrDuplicateNumber = errors.New("reservation number already in use")

type DB struct {
	Bun *bun.DB
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", models.ErrStorageFailure, op, err)
}

// Inventory is a concert's ticket count as of one committed change.
type Inventory struct {
	Remaining int
	Version   int64
}

func readInventory(ctx context.Context, tx bun.Tx, concertID string, out *Inventory) error {
	err := tx.NewSelect().
		Model((*models.Concert)(nil)).
		Column("ticket_num_avail", "inventory_version").
		Where("id = ?", concertID).
		Scan(ctx, &out.Remaining, &out.Version)
	if err != nil {
		return storageErr("read inventory", err)
	}
	return nil
}

// Reserve decrements the concert inventory and inserts r in one transaction.
// The decrement only applies while enough tickets remain, so concurrent
// callers can never drive numAvail below zero. It returns the tickets left.
func (d *DB) Reserve(ctx context.Context, r *models.Reservation) (Inventory, error) {
	var inv Inventory
	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Concert)(nil)).
			Set("ticket_num_avail = ticket_num_avail - ?", r.NumTickets).
			Set("inventory_version = inventory_version + 1").
			Where("id = ?", r.ConcertID).
			Where("ticket_num_avail >= ?", r.NumTickets).
			Exec(ctx)
		if err != nil {
			return storageErr("decrement inventory", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			exists, err := tx.NewSelect().
				Model((*models.Concert)(nil)).
				Where("id = ?", r.ConcertID).
				Exists(ctx)
			if err != nil {
				return storageErr("check concert", err)
			}
			if !exists {
				return fmt.Errorf("%w: concert %s", models.ErrNotFound, r.ConcertID)
			}
			return fmt.Errorf("%w: fewer than %d tickets left", models.ErrInsufficientInventory, r.NumTickets)
		}

		if _, err := tx.NewInsert().Model(r).Exec(ctx); err != nil {
			if database.IsUniqueViolation(err) {
				return fmt.Errorf("%w: %s", ErrDuplicateNumber, r.ReservationNumber)
			}
			return storageErr("insert reservation", err)
		}
		return readInventory(ctx, tx, r.ConcertID, &inv)
	})
	if err != nil {
		return Inventory{}, err
	}
	return inv, nil
}

// CancelResult describes what a committed cancellation changed.
type CancelResult struct {
	Reservation  models.Reservation
	Inventory    Inventory
	ConcertFound bool
}

// Cancel deletes the reservation owned by userID and returns its tickets to
// the concert if the concert still exists.
func (d *DB) Cancel(ctx context.Context, userID, reservationNumber string) (*CancelResult, error) {
	var out CancelResult
	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		err := tx.NewSelect().
			Model(&out.Reservation).
			Where("reservation_number = ?", reservationNumber).
			Where("user_id = ?", userID).
			Limit(1).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: reservation %s", models.ErrNotFound, reservationNumber)
		}
		if err != nil {
			return storageErr("load reservation", err)
		}

		res, err := tx.NewDelete().
			Model((*models.Reservation)(nil)).
			Where("reservation_number = ?", reservationNumber).
			Where("user_id = ?", userID).
			Exec(ctx)
		if err != nil {
			return storageErr("delete reservation", err)
		}
		// A concurrent cancel already removed it; don't restore twice.
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: reservation %s", models.ErrNotFound, reservationNumber)
		}

		res, err = tx.NewUpdate().
			Model((*models.Concert)(nil)).
			Set("ticket_num_avail = ticket_num_avail + ?", out.Reservation.NumTickets).
			Set("inventory_version = inventory_version + 1").
			Where("id = ?", out.Reservation.ConcertID).
			Exec(ctx)
		if err != nil {
			return storageErr("restore inventory", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		out.ConcertFound = true
		return readInventory(ctx, tx, out.Reservation.ConcertID, &out.Inventory)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetReservation returns the reservation only if userID owns it.
func (d *DB) GetReservation(ctx context.Context, userID, reservationNumber string) (*models.Reservation, error) {
	var r models.Reservation
	err := d.Bun.NewSelect().
		Model(&r).
		Where("reservation_number = ?", reservationNumber).
		Where("user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: reservation %s", models.ErrNotFound, reservationNumber)
	}
	if err != nil {
		return nil, storageErr("load reservation", err)
	}
	return &r, nil
}

// ListReservationsByUser returns the user's reservations newest first with
// concert and venue details attached. Rows whose concert or venue is gone are
// kept and flagged.
func (d *DB) ListReservationsByUser(ctx context.Context, userID string) ([]models.ReservationListing, error) {
	var reservations []models.Reservation
	err := d.Bun.NewSelect().
		Model(&reservations).
		Where("user_id = ?", userID).
		Order("reserved_at DESC", "reservation_number DESC").
		Scan(ctx)
	if err != nil {
		return nil, storageErr("list reservations", err)
	}
	if len(reservations) == 0 {
		return []models.ReservationListing{}, nil
	}

	concertIDs := make([]string, 0, len(reservations))
	for _, r := range reservations {
		concertIDs = append(concertIDs, r.ConcertID)
	}
	concerts, err := d.concertsByID(ctx, concertIDs)
	if err != nil {
		return nil, err
	}

	venueIDs := make([]string, 0, len(concerts))
	for _, c := range concerts {
		venueIDs = append(venueIDs, c.VenueID)
	}
	venues, err := d.venuesByID(ctx, venueIDs)
	if err != nil {
		return nil, err
	}

	result := make([]models.ReservationListing, len(reservations))
	for i, r := range reservations {
		entry := models.ReservationListing{Reservation: r}
		c, ok := concerts[r.ConcertID]
		if !ok {
			entry.ConcertUnavailable = true
			entry.VenueUnavailable = true
			result[i] = entry
			continue
		}

		snap := &models.ConcertSnapshot{
			Artist:     c.Artist,
			StartsAt:   c.StartsAt,
			TicketType: c.Tickets.Type,
			UnitPrice:  c.Tickets.Price,
		}
		if v, ok := venues[c.VenueID]; ok {
			snap.VenueName = v.Name
			snap.VenueAddress = v.Address
		} else {
			entry.VenueUnavailable = true
		}
		total := models.LineTotal(c.Tickets.Price, r.NumTickets)
		entry.Concert = snap
		entry.TotalPrice = &total
		result[i] = entry
	}
	return result, nil
}

// ListConcertsByOrganizer returns the concerts organized by username with
// their venues attached.
func (d *DB) ListConcertsByOrganizer(ctx context.Context, username string) ([]models.OrganizerConcert, error) {
	var concerts []models.Concert
	err := d.Bun.NewSelect().
		Model(&concerts).
		Where("organizer = ?", username).
		Order("starts_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, storageErr("list organizer concerts", err)
	}
	if len(concerts) == 0 {
		return []models.OrganizerConcert{}, nil
	}

	venueIDs := make([]string, 0, len(concerts))
	for _, c := range concerts {
		venueIDs = append(venueIDs, c.VenueID)
	}
	venues, err := d.venuesByID(ctx, venueIDs)
	if err != nil {
		return nil, err
	}

	result := make([]models.OrganizerConcert, len(concerts))
	for i, c := range concerts {
		if v, ok := venues[c.VenueID]; ok {
			c.Venue = v
			result[i] = models.OrganizerConcert{Concert: c}
		} else {
			result[i] = models.OrganizerConcert{Concert: c, VenueUnavailable: true}
		}
	}
	return result, nil
}

func (d *DB) concertsByID(ctx context.Context, ids []string) (map[string]models.Concert, error) {
	var concerts []models.Concert
	err := d.Bun.NewSelect().
		Model(&concerts).
		Where("id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, storageErr("load concerts", err)
	}
	out := make(map[string]models.Concert, len(concerts))
	for _, c := range concerts {
		out[c.ID] = c
	}
	return out, nil
}

func (d *DB) venuesByID(ctx context.Context, ids []string) (map[string]*models.Venue, error) {
	out := make(map[string]*models.Venue)
	if len(ids) == 0 {
		return out, nil
	}
	var venues []models.Venue
	err := d.Bun.NewSelect().
		Model(&venues).
		Where("id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, storageErr("load venues", err)
	}
	for i := range venues {
		out[venues[i].ID] = &venues[i]
	}
	return out, nil
}

func (d *DB) GetNumAvail(ctx context.Context, concertID string) (int, error) {
	var n int
	err := d.Bun.NewSelect().
		Model((*models.Concert)(nil)).
		Column("ticket_num_avail").
		Where("id = ?", concertID).
		Scan(ctx, &n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: concert %s", models.ErrNotFound, concertID)
	}
	if err != nil {
		return 0, storageErr("read inventory", err)
	}
	return n, nil
}
