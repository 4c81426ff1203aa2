package db

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stagepass/internal/models"
	"stagepass/internal/testutil"
)

func reserve(t *testing.T, d *DB, concertID, number string, n int) {
	t.Helper()
	ctx := context.Background()
	_, err := d.Bun.NewUpdate().Model((*models.Concert)(nil)).
		Set("ticket_num_avail = ticket_num_avail - ?", n).
		Where("id = ?", concertID).
		Exec(ctx)
	require.NoError(t, err)
	_, err = d.Bun.NewInsert().Model(&models.Reservation{
		ReservationNumber: number, UserID: "fan", ConcertID: concertID, NumTickets: n,
		Status: models.StatusReserved, ReservedAt: time.Now().UTC(),
	}).Exec(ctx)
	require.NoError(t, err)
}

func TestListConcerts_FiltersAndAttachesVenue(t *testing.T) {
	bunDB := testutil.NewTestDB(t)
	d := &DB{Bun: bunDB}
	arena := testutil.SeedVenue(t, bunDB, "Arena")
	club := testutil.SeedVenue(t, bunDB, "Club")
	rock := testutil.SeedConcert(t, bunDB, arena.ID, "org", 10, 20)
	jazz := testutil.SeedConcert(t, bunDB, club.ID, "org", 10, 20)
	_, err := bunDB.NewUpdate().Model((*models.Concert)(nil)).Set("genre = ?", "jazz").Where("id = ?", jazz.ID).Exec(context.Background())
	require.NoError(t, err)

	all, err := d.ListConcerts(context.Background(), models.ConcertFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byGenre, err := d.ListConcerts(context.Background(), models.ConcertFilter{Genre: "jazz"})
	require.NoError(t, err)
	require.Len(t, byGenre, 1)
	assert.Equal(t, jazz.ID, byGenre[0].ID)
	require.NotNil(t, byGenre[0].Venue)
	assert.Equal(t, "Club", byGenre[0].Venue.Name)

	byVenue, err := d.ListConcerts(context.Background(), models.ConcertFilter{VenueID: arena.ID})
	require.NoError(t, err)
	require.Len(t, byVenue, 1)
	assert.Equal(t, rock.ID, byVenue[0].ID)
}

func TestGetConcert_NotFound(t *testing.T) {
	d := &DB{Bun: testutil.NewTestDB(t)}

	_, err := d.GetConcert(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUpdateConcert_GuardsReservedTickets(t *testing.T) {
	bunDB := testutil.NewTestDB(t)
	d := &DB{Bun: bunDB}
	venue := testutil.SeedVenue(t, bunDB, "Arena")
	c := testutil.SeedConcert(t, bunDB, venue.ID, "org", 10, 20)
	reserve(t, d, c.ID, "RSV-1", 4)

	edit := *c
	edit.Tickets.NumAvail = 3
	_, err := d.UpdateConcert(context.Background(), "org", &edit)
	assert.ErrorIs(t, err, models.ErrInvalidRequest)
	assert.Equal(t, 6, testutil.NumAvail(t, bunDB, c.ID))

	edit.Tickets.NumAvail = 4
	edit.Artist = "Renamed"
	updated, err := d.UpdateConcert(context.Background(), "org", &edit)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Artist)
	assert.Equal(t, 4, updated.Tickets.NumAvail)
	assert.Equal(t, 8, updated.Allotment)
	assert.Equal(t, 4, updated.Reserved())
}

func TestUpdateConcert_OwnerOnly(t *testing.T) {
	bunDB := testutil.NewTestDB(t)
	d := &DB{Bun: bunDB}
	venue := testutil.SeedVenue(t, bunDB, "Arena")
	c := testutil.SeedConcert(t, bunDB, venue.ID, "org", 10, 20)

	edit := *c
	edit.Artist = "Hijacked"
	_, err := d.UpdateConcert(context.Background(), "someone-else", &edit)
	assert.ErrorIs(t, err, models.ErrForbidden)

	got, err := d.GetConcert(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Artist, got.Artist)
}

func TestDeleteConcert_CascadesReservations(t *testing.T) {
	bunDB := testutil.NewTestDB(t)
	d := &DB{Bun: bunDB}
	ctx := context.Background()
	venue := testutil.SeedVenue(t, bunDB, "Arena")
	c := testutil.SeedConcert(t, bunDB, venue.ID, "org", 10, 20)
	other := testutil.SeedConcert(t, bunDB, venue.ID, "org", 10, 20)
	reserve(t, d, c.ID, "RSV-1", 2)
	reserve(t, d, c.ID, "RSV-2", 1)
	reserve(t, d, other.ID, "RSV-3", 1)

	_, err := d.DeleteConcert(ctx, "intruder", c.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)

	removed, err := d.DeleteConcert(ctx, "org", c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = d.GetConcert(ctx, c.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	left, err := bunDB.NewSelect().Model((*models.Reservation)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, left)

	exists, err := d.VenueExists(ctx, venue.ID)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestDeleteConcert_Missing(t *testing.T) {
	d := &DB{Bun: testutil.NewTestDB(t)}

	_, err := d.DeleteConcert(context.Background(), "org", "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDeleteConcert_ForbiddenLeavesConcert(t *testing.T) {
	bunDB := testutil.NewTestDB(t)
	d := &DB{Bun: bunDB}
	ctx := context.Background()
	venue := testutil.SeedVenue(t, bunDB, "Arena")
	c := testutil.SeedConcert(t, bunDB, venue.ID, "org", 10, 20)
	reserve(t, d, c.ID, "RSV-1", 4)

	_, err := d.DeleteConcert(ctx, "intruder", c.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)
	assert.Equal(t, 6, testutil.NumAvail(t, bunDB, c.ID))

	n, err := bunDB.NewSelect().Model((*models.Reservation)(nil)).Where("concert_id = ?", c.ID).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestVenues(t *testing.T) {
	d := &DB{Bun: testutil.NewTestDB(t)}
	ctx := context.Background()

	for _, name := range []string{"Zed Hall", "Arena", "Arena"} {
		require.NoError(t, d.CreateVenue(ctx, &models.Venue{ID: uuid.NewString(), Name: name, Address: "x", CreatedAt: time.Now()}))
	}
	venues, err := d.ListVenues(ctx)
	require.NoError(t, err)
	require.Len(t, venues, 3)
	assert.Equal(t, "Arena", venues[0].Name)
	assert.Equal(t, "Zed Hall", venues[2].Name)
}
