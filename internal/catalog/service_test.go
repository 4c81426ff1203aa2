package catalog_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"stagepass/internal/catalog"
	"stagepass/internal/catalog/db"
	"stagepass/internal/logger"
	"stagepass/internal/models"
	"stagepass/internal/reservation"
	resdb "stagepass/internal/reservation/db"
	"stagepass/internal/reservation/pass"
	"stagepass/internal/testutil"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	return m.Called(topic, key, payload).Error(0)
}

func (m *MockPublisher) Close() error { return nil }

var organizer = models.Identity{ID: "u-org", Username: "promoter", Organizer: true}

func validRequest(venueID string, numAvail int) models.ConcertRequest {
	return models.ConcertRequest{
		Artist:      "The Band",
		VenueID:     venueID,
		Tour:        "Reunion",
		StartsAt:    time.Now().Add(48 * time.Hour),
		Description: "Live",
		Genre:       "rock",
		Tickets:     models.TicketClass{Type: "GA", Price: 49.999, NumAvail: numAvail},
	}
}

type fixture struct {
	catalog *catalog.CatalogService
	engine  *reservation.ReservationService
	pub     *MockPublisher
	venue   *models.Venue
}

func newFixture(t *testing.T) *fixture {
	bunDB := testutil.NewTestDB(t)
	pub := new(MockPublisher)
	return &fixture{
		catalog: catalog.NewCatalogService(&db.DB{Bun: bunDB}, pub, "concert-events", logger.Nop()),
		engine:  reservation.NewReservationService(&resdb.DB{Bun: bunDB}, nil, nil, "reservation-events", nil, pass.NewGenerator("s"), logger.Nop()),
		pub:     pub,
		venue:   testutil.SeedVenue(t, bunDB, "Arena"),
	}
}

func TestCreateConcert(t *testing.T) {
	f := newFixture(t)

	c, err := f.catalog.CreateConcert(context.Background(), organizer, validRequest(f.venue.ID, 100))
	require.NoError(t, err)
	assert.Equal(t, "promoter", c.Organizer)
	assert.Equal(t, 100, c.Allotment)
	assert.Equal(t, 50.0, c.Tickets.Price)

	got, err := f.catalog.GetConcert(context.Background(), c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Venue)
	assert.Equal(t, "Arena", got.Venue.Name)
}

func TestCreateConcert_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.catalog.CreateConcert(ctx, models.Identity{ID: "fan", Username: "fan"}, validRequest(f.venue.ID, 10))
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = f.catalog.CreateConcert(ctx, organizer, validRequest("no-such-venue", 10))
	assert.ErrorIs(t, err, models.ErrNotFound)

	bad := validRequest(f.venue.ID, 0)
	_, err = f.catalog.CreateConcert(ctx, organizer, bad)
	assert.ErrorIs(t, err, models.ErrInvalidRequest)

	bad = validRequest(f.venue.ID, 10)
	bad.Tickets.Price = -1
	_, err = f.catalog.CreateConcert(ctx, organizer, bad)
	assert.ErrorIs(t, err, models.ErrInvalidRequest)

	bad = validRequest(f.venue.ID, 10)
	bad.Artist = "  "
	_, err = f.catalog.CreateConcert(ctx, organizer, bad)
	assert.ErrorContains(t, err, "artist")
}

func TestUpdateConcert_CannotGoBelowReserved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, err := f.catalog.CreateConcert(ctx, organizer, validRequest(f.venue.ID, 10))
	require.NoError(t, err)

	_, err = f.engine.Reserve(ctx, models.Identity{ID: "fan"}, c.ID, 6, "")
	require.NoError(t, err)

	_, err = f.catalog.UpdateConcert(ctx, organizer, c.ID, validRequest(f.venue.ID, 5))
	assert.ErrorIs(t, err, models.ErrInvalidRequest)

	updated, err := f.catalog.UpdateConcert(ctx, organizer, c.ID, validRequest(f.venue.ID, 6))
	require.NoError(t, err)
	assert.Equal(t, 6, updated.Tickets.NumAvail)
	assert.Equal(t, 12, updated.Allotment)

	closed, err := f.catalog.UpdateConcert(ctx, organizer, c.ID, validRequest(f.venue.ID, 0))
	require.NoError(t, err)
	assert.Equal(t, 0, closed.Tickets.NumAvail)
	assert.Equal(t, 6, closed.Reserved())
}

func TestDeleteConcert_ThenCancelIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fan := models.Identity{ID: "fan", Username: "fan"}
	c, err := f.catalog.CreateConcert(ctx, organizer, validRequest(f.venue.ID, 10))
	require.NoError(t, err)
	res, err := f.engine.Reserve(ctx, fan, c.ID, 2, "")
	require.NoError(t, err)

	f.pub.On("Publish", "concert-events", c.ID, mock.MatchedBy(func(e models.ReservationEvent) bool {
		return e.Type == models.EventConcertDeleted && e.NumTickets == 1
	})).Return(nil)

	require.NoError(t, f.catalog.DeleteConcert(ctx, organizer, c.ID))
	f.pub.AssertExpectations(t)

	_, err = f.engine.Cancel(ctx, fan, res.Reservation.ReservationNumber)
	assert.ErrorIs(t, err, models.ErrNotFound)

	list, err := f.engine.ListForUser(ctx, fan)
	require.NoError(t, err)
	assert.Empty(t, list)

	venues, err := f.catalog.ListVenues(ctx)
	require.NoError(t, err)
	assert.Len(t, venues, 1)
}

func TestDeleteConcert_OtherOrganizerForbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, err := f.catalog.CreateConcert(ctx, organizer, validRequest(f.venue.ID, 10))
	require.NoError(t, err)

	rival := models.Identity{ID: "u-rival", Username: "rival", Organizer: true}
	err = f.catalog.DeleteConcert(ctx, rival, c.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)
	f.pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateVenue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.catalog.CreateVenue(ctx, organizer, models.VenueRequest{Name: "Arena", Address: "Elsewhere 2"})
	require.NoError(t, err)

	_, err = f.catalog.CreateVenue(ctx, organizer, models.VenueRequest{Name: "", Address: "x"})
	assert.ErrorIs(t, err, models.ErrInvalidRequest)

	_, err = f.catalog.CreateVenue(ctx, models.Identity{ID: "fan"}, models.VenueRequest{Name: "x", Address: "y"})
	assert.ErrorIs(t, err, models.ErrForbidden)

	venues, err := f.catalog.ListVenues(ctx)
	require.NoError(t, err)
	assert.Len(t, venues, 2)
}
