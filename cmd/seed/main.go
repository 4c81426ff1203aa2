package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"stagepass/internal/auth"
	"stagepass/internal/catalog"
	catalogdb "stagepass/internal/catalog/db"
	"stagepass/internal/config"
	"stagepass/internal/database/migrations"
	"stagepass/internal/logger"
	"stagepass/internal/models"
	"stagepass/internal/users"
	usersdb "stagepass/internal/users/db"
)

func main() {
	reset := flag.Bool("reset", false, "drop and recreate the schema before seeding")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	log, err := logger.New(logger.Options{Name: "seed", Level: logger.INFO})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Close()

	ctx := context.Background()

	sqldb, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
	}
	defer sqldb.Close()
	if err := sqldb.PingContext(ctx); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to database: %v", err))
	}

	runner := migrations.NewRunner(sqldb, log)
	if err := runner.Initialize(); err != nil {
		log.Fatal("MIGRATION", err.Error())
	}
	if *reset {
		log.Info("MIGRATION", "Dropping schema...")
		if err := runner.MigrateDown(); err != nil {
			log.Fatal("MIGRATION", err.Error())
		}
	}
	if err := runner.MigrateUp(); err != nil {
		log.Fatal("MIGRATION", err.Error())
	}

	db := bun.NewDB(sqldb, pgdialect.New())
	if err := seedData(ctx, db, cfg, log); err != nil {
		log.Fatal("SEED", err.Error())
	}
	log.Info("SEED", "Done.")
}

func seedData(ctx context.Context, db *bun.DB, cfg *config.Config, log *logger.Logger) error {
	userService := users.NewUserService(&usersdb.DB{Bun: db}, auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL), log)
	catalogService := catalog.NewCatalogService(&catalogdb.DB{Bun: db}, nil, cfg.Kafka.Topics.ConcertEvents, log)

	accounts := []models.RegisterRequest{
		{Username: "alice", Email: "alice@example.com", Password: "password", Organizer: false},
		{Username: "bob", Email: "bob@example.com", Password: "password", Organizer: false},
		{Username: "promoter", Email: "promoter@example.com", Password: "password", Organizer: true},
	}
	var organizer *models.User
	for _, req := range accounts {
		u, err := userService.Register(ctx, req)
		if errors.Is(err, models.ErrConflict) {
			log.Warn("SEED", "Seed users already exist, run with -reset to reseed")
			return nil
		}
		if err != nil {
			return fmt.Errorf("register %s: %w", req.Username, err)
		}
		if u.Organizer {
			organizer = u
		}
	}
	identity := models.Identity{ID: organizer.ID, Username: organizer.Username, Organizer: true}

	venues := []models.VenueRequest{
		{Name: "The Roundhouse", Address: "Chalk Farm Rd, London"},
		{Name: "Paradiso", Address: "Weteringschans 6, Amsterdam"},
	}
	var venueIDs []string
	for _, req := range venues {
		v, err := catalogService.CreateVenue(ctx, identity, req)
		if err != nil {
			return fmt.Errorf("create venue %s: %w", req.Name, err)
		}
		venueIDs = append(venueIDs, v.ID)
	}

	concerts := []models.ConcertRequest{
		{
			Artist: "Northern Lights", VenueID: venueIDs[0], Tour: "Aurora Tour",
			StartsAt: time.Now().AddDate(0, 1, 0), Description: "An evening of synth-pop.", Genre: "pop",
			Rules: "No re-entry.", Tickets: models.TicketClass{Type: "General Admission", Price: 45, NumAvail: 500},
		},
		{
			Artist: "Iron Orchard", VenueID: venueIDs[1], Tour: "Harvest",
			StartsAt: time.Now().AddDate(0, 2, 0), Description: "Heavy riffs, loud amps.", Genre: "rock",
			Tickets: models.TicketClass{Type: "Standing", Price: 32.5, NumAvail: 300},
		},
	}
	for _, req := range concerts {
		if _, err := catalogService.CreateConcert(ctx, identity, req); err != nil {
			return fmt.Errorf("create concert %s: %w", req.Artist, err)
		}
	}
	return nil
}
