package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"stagepass/internal/models"
)

// NewTestDB returns a bun DB over a private in-memory SQLite database with
// every table created. One connection keeps all goroutines on the same
// database and serializes transactions.
func NewTestDB(t *testing.T) *bun.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	for _, model := range []interface{}{
		(*models.User)(nil),
		(*models.Venue)(nil),
		(*models.Concert)(nil),
		(*models.Reservation)(nil),
		(*models.ReservationAuditEntry)(nil),
	} {
		_, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx)
		require.NoError(t, err)
	}
	return db
}

func SeedVenue(t *testing.T, db *bun.DB, name string) *models.Venue {
	t.Helper()
	v := &models.Venue{
		ID:        uuid.NewString(),
		Name:      name,
		Address:   name + " Street 1",
		CreatedAt: time.Now().UTC(),
	}
	_, err := db.NewInsert().Model(v).Exec(context.Background())
	require.NoError(t, err)
	return v
}

// SeedConcert inserts a concert with numAvail tickets at price and no
// reservations.
func SeedConcert(t *testing.T, db *bun.DB, venueID, organizer string, numAvail int, price float64) *models.Concert {
	t.Helper()
	c := &models.Concert{
		ID:          uuid.NewString(),
		Artist:      "The Testers",
		VenueID:     venueID,
		Tour:        "World Tour",
		StartsAt:    time.Now().Add(30 * 24 * time.Hour).UTC().Truncate(time.Second),
		Description: "A night of assertions",
		Genre:       "rock",
		Organizer:   organizer,
		Tickets:     models.TicketClass{Type: "General", Price: price, NumAvail: numAvail},
		Allotment:   numAvail,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := db.NewInsert().Model(c).Exec(context.Background())
	require.NoError(t, err)
	return c
}

func SeedUser(t *testing.T, db *bun.DB, username string, organizer bool) *models.User {
	t.Helper()
	u := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
		Organizer:    organizer,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := db.NewInsert().Model(u).Exec(context.Background())
	require.NoError(t, err)
	return u
}

func NumAvail(t *testing.T, db *bun.DB, concertID string) int {
	t.Helper()
	var n int
	err := db.NewSelect().Model((*models.Concert)(nil)).
		Column("ticket_num_avail").
		Where("id = ?", concertID).
		Scan(context.Background(), &n)
	require.NoError(t, err)
	return n
}
