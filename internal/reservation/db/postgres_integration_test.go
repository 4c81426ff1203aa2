//go:build integration

package db_test

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	catalogdb "stagepass/internal/catalog/db"
	"stagepass/internal/database/migrations"
	"stagepass/internal/logger"
	"stagepass/internal/models"
	"stagepass/internal/reservation/db"
)

func startPostgres(t *testing.T) *bun.DB {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "stagepass",
				"POSTGRES_PASSWORD": "stagepass",
				"POSTGRES_DB":       "stagepass",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://stagepass:stagepass@%s:%s/stagepass?sslmode=disable", host, port.Port())
	sqldb, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	require.NoError(t, sqldb.PingContext(ctx))

	runner := migrations.NewRunner(sqldb, logger.Nop())
	require.NoError(t, runner.MigrateUp())

	bunDB := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { _ = bunDB.Close() })
	return bunDB
}

func seedPostgresConcert(t *testing.T, bunDB *bun.DB, numAvail int) *models.Concert {
	t.Helper()
	ctx := context.Background()

	venue := &models.Venue{ID: uuid.NewString(), Name: "Hall", Address: "1 Road", CreatedAt: time.Now().UTC()}
	_, err := bunDB.NewInsert().Model(venue).Exec(ctx)
	require.NoError(t, err)
	concert := &models.Concert{
		ID: uuid.NewString(), Artist: "Band", VenueID: venue.ID, Tour: "T", StartsAt: time.Now().Add(time.Hour).UTC(),
		Description: "d", Organizer: "promoter", Tickets: models.TicketClass{Type: "GA", Price: 10, NumAvail: numAvail},
		Allotment: numAvail, CreatedAt: time.Now().UTC(),
	}
	_, err = bunDB.NewInsert().Model(concert).Exec(ctx)
	require.NoError(t, err)
	return concert
}

func countReservations(t *testing.T, bunDB *bun.DB, concertID string) int {
	t.Helper()
	n, err := bunDB.NewSelect().Model((*models.Reservation)(nil)).
		Where("concert_id = ?", concertID).
		Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestPostgres_ConcurrentReserveNeverOversells(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Postgres integration test in short mode")
	}
	bunDB := startPostgres(t)
	ctx := context.Background()
	concert := seedPostgresConcert(t, bunDB, 50)

	store := &db.DB{Bun: bunDB}
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Reserve(ctx, &models.Reservation{
				ReservationNumber: fmt.Sprintf("RSV-PG-%03d", i),
				UserID:            fmt.Sprintf("user-%d", i),
				ConcertID:         concert.ID,
				NumTickets:        2,
				Status:            models.StatusReserved,
				ReservedAt:        time.Now().UTC(),
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else {
				assert.ErrorIs(t, err, models.ErrInsufficientInventory)
				rejected++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 25, succeeded)
	assert.Equal(t, 15, rejected)

	left, err := store.GetNumAvail(ctx, concert.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, left)

	var reserved int
	require.NoError(t, bunDB.NewSelect().Model((*models.Reservation)(nil)).
		ColumnExpr("COALESCE(SUM(num_tickets), 0)").
		Where("concert_id = ?", concert.ID).
		Scan(ctx, &reserved))
	assert.Equal(t, 50, reserved)
}

func TestPostgres_DeleteRacingReservesLeavesNoOrphans(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Postgres integration test in short mode")
	}
	bunDB := startPostgres(t)
	ctx := context.Background()
	store := &db.DB{Bun: bunDB}
	catalog := &catalogdb.DB{Bun: bunDB}

	for round := 0; round < 10; round++ {
		concert := seedPostgresConcert(t, bunDB, 100)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
			removed   int
			deleteErr error
		)
		start := make(chan struct{})
		for i := 0; i < 30; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				_, err := store.Reserve(ctx, &models.Reservation{
					ReservationNumber: fmt.Sprintf("RSV-DEL-%d-%03d", round, i),
					UserID:            fmt.Sprintf("user-%d", i),
					ConcertID:         concert.ID,
					NumTickets:        1,
					Status:            models.StatusReserved,
					ReservedAt:        time.Now().UTC(),
				})
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					succeeded++
				} else {
					assert.ErrorIs(t, err, models.ErrNotFound)
				}
			}(i)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			n, err := catalog.DeleteConcert(ctx, "promoter", concert.ID)
			mu.Lock()
			removed, deleteErr = n, err
			mu.Unlock()
		}()
		close(start)
		wg.Wait()

		require.NoError(t, deleteErr)
		assert.Equal(t, succeeded, removed, "round %d: every committed reservation is removed with the concert", round)
		assert.Zero(t, countReservations(t, bunDB, concert.ID), "round %d: orphaned reservations", round)
		_, err := store.GetNumAvail(ctx, concert.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)
	}
}

func TestPostgres_ReservationRequiresConcert(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Postgres integration test in short mode")
	}
	bunDB := startPostgres(t)
	ctx := context.Background()
	concert := seedPostgresConcert(t, bunDB, 5)

	_, err := bunDB.NewInsert().Model(&models.Reservation{
		ReservationNumber: "RSV-NO-CONCERT", UserID: "u1", ConcertID: uuid.NewString(),
		NumTickets: 1, Status: models.StatusReserved, ReservedAt: time.Now().UTC(),
	}).Exec(ctx)
	assert.Error(t, err)

	store := &db.DB{Bun: bunDB}
	_, err = store.Reserve(ctx, &models.Reservation{
		ReservationNumber: "RSV-CASCADE", UserID: "u1", ConcertID: concert.ID,
		NumTickets: 1, Status: models.StatusReserved, ReservedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	_, err = bunDB.NewDelete().Model((*models.Concert)(nil)).Where("id = ?", concert.ID).Exec(ctx)
	require.NoError(t, err)
	assert.Zero(t, countReservations(t, bunDB, concert.ID))
}

func TestPostgres_MigrationsAreReversible(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Postgres integration test in short mode")
	}
	bunDB := startPostgres(t)

	runner := migrations.NewRunner(bunDB.DB, logger.Nop())
	require.NoError(t, runner.MigrateDown())
	require.NoError(t, runner.MigrateUp())

	_, err := bunDB.NewSelect().Model((*models.Concert)(nil)).Count(context.Background())
	assert.NoError(t, err)
}
