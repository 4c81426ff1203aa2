package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"stagepass/internal/models"
)

type DB struct {
	Bun *bun.DB
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", models.ErrStorageFailure, op, err)
}

// ---------------- VENUES ----------------

func (d *DB) CreateVenue(ctx context.Context, v *models.Venue) error {
	if _, err := d.Bun.NewInsert().Model(v).Exec(ctx); err != nil {
		return storageErr("insert venue", err)
	}
	return nil
}

func (d *DB) ListVenues(ctx context.Context) ([]models.Venue, error) {
	venues := []models.Venue{}
	err := d.Bun.NewSelect().
		Model(&venues).
		Order("name ASC", "created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, storageErr("list venues", err)
	}
	return venues, nil
}

func (d *DB) VenueExists(ctx context.Context, id string) (bool, error) {
	exists, err := d.Bun.NewSelect().
		Model((*models.Venue)(nil)).
		Where("id = ?", id).
		Exists(ctx)
	if err != nil {
		return false, storageErr("check venue", err)
	}
	return exists, nil
}

// ---------------- CONCERTS ----------------

func (d *DB) CreateConcert(ctx context.Context, c *models.Concert) error {
	if _, err := d.Bun.NewInsert().Model(c).Exec(ctx); err != nil {
		return storageErr("insert concert", err)
	}
	return nil
}

// ListConcerts returns concerts in start order, optionally narrowed by genre
// and venue, with venues attached.
func (d *DB) ListConcerts(ctx context.Context, filter models.ConcertFilter) ([]models.Concert, error) {
	concerts := []models.Concert{}
	q := d.Bun.NewSelect().Model(&concerts)
	if filter.Genre != "" {
		q = q.Where("genre = ?", filter.Genre)
	}
	if filter.VenueID != "" {
		q = q.Where("venue_id = ?", filter.VenueID)
	}
	if err := q.Order("starts_at ASC").Scan(ctx); err != nil {
		return nil, storageErr("list concerts", err)
	}
	if err := d.attachVenues(ctx, concerts); err != nil {
		return nil, err
	}
	return concerts, nil
}

func (d *DB) GetConcert(ctx context.Context, id string) (*models.Concert, error) {
	c, err := getConcert(ctx, d.Bun, id)
	if err != nil {
		return nil, err
	}
	list := []models.Concert{*c}
	if err := d.attachVenues(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

func getConcert(ctx context.Context, db bun.IDB, id string) (*models.Concert, error) {
	var c models.Concert
	err := db.NewSelect().
		Model(&c).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: concert %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, storageErr("load concert", err)
	}
	return &c, nil
}

// ownedConcert loads the concert and checks username organizes it.
func ownedConcert(ctx context.Context, db bun.IDB, id, username string) (*models.Concert, error) {
	c, err := getConcert(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if c.Organizer != username {
		return nil, fmt.Errorf("%w: concert %s belongs to another organizer", models.ErrForbidden, id)
	}
	return c, nil
}

// UpdateConcert applies the editable fields of in to the concert owned by
// username. The new numAvail may not be less than the tickets currently held
// by reservations; the check and the write are a single conditional update
// so a reservation committed concurrently is always accounted for.
func (d *DB) UpdateConcert(ctx context.Context, username string, in *models.Concert) (*models.Concert, error) {
	var out *models.Concert
	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := ownedConcert(ctx, tx, in.ID, username); err != nil {
			return err
		}

		newAvail := in.Tickets.NumAvail
		res, err := tx.NewUpdate().
			Model((*models.Concert)(nil)).
			Set("artist = ?", in.Artist).
			Set("venue_id = ?", in.VenueID).
			Set("tour = ?", in.Tour).
			Set("starts_at = ?", in.StartsAt).
			Set("description = ?", in.Description).
			Set("genre = ?", in.Genre).
			Set("rules = ?", in.Rules).
			Set("image_url = ?", in.ImageURL).
			Set("ticket_type = ?", in.Tickets.Type).
			Set("ticket_price = ?", in.Tickets.Price).
			Set("allotment = ? + (allotment - ticket_num_avail)", newAvail).
			Set("ticket_num_avail = ?", newAvail).
			Set("inventory_version = inventory_version + 1").
			Set("updated_at = ?", time.Now().UTC()).
			Where("id = ?", in.ID).
			Where("organizer = ?", username).
			Where("(allotment - ticket_num_avail) <= ?", newAvail).
			Exec(ctx)
		if err != nil {
			return storageErr("update concert", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			current, err := getConcert(ctx, tx, in.ID)
			if err != nil {
				return err
			}
			return fmt.Errorf("%w: numAvail %d is below the %d tickets already reserved",
				models.ErrInvalidRequest, newAvail, current.Reserved())
		}

		out, err = getConcert(ctx, tx, in.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteConcert removes the concert owned by username together with every
// reservation against it in one transaction. It returns the number of
// reservations removed. The venue is left untouched.
//
// The concert row is locked before the reservations are read, so a Reserve
// racing the delete either commits first and has its reservation removed
// here, or waits on the lock and then finds the concert gone.
func (d *DB) DeleteConcert(ctx context.Context, username, id string) (int, error) {
	var removed int
	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Concert)(nil)).
			Set("ticket_num_avail = ticket_num_avail").
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return storageErr("lock concert", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: concert %s", models.ErrNotFound, id)
		}
		if _, err := ownedConcert(ctx, tx, id, username); err != nil {
			return err
		}

		res, err = tx.NewDelete().
			Model((*models.Reservation)(nil)).
			Where("concert_id = ?", id).
			Exec(ctx)
		if err != nil {
			return storageErr("delete reservations", err)
		}
		n, _ := res.RowsAffected()
		removed = int(n)

		if _, err := tx.NewDelete().
			Model((*models.Concert)(nil)).
			Where("id = ?", id).
			Where("organizer = ?", username).
			Exec(ctx); err != nil {
			return storageErr("delete concert", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (d *DB) attachVenues(ctx context.Context, concerts []models.Concert) error {
	if len(concerts) == 0 {
		return nil
	}
	ids := make([]string, 0, len(concerts))
	for _, c := range concerts {
		ids = append(ids, c.VenueID)
	}

	var venues []models.Venue
	err := d.Bun.NewSelect().
		Model(&venues).
		Where("id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return storageErr("load venues", err)
	}

	byID := make(map[string]*models.Venue, len(venues))
	for i := range venues {
		byID[venues[i].ID] = &venues[i]
	}
	for i := range concerts {
		concerts[i].Venue = byID[concerts[i].VenueID]
	}
	return nil
}
