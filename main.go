package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"stagepass/internal/analytics"
	analytics_api "stagepass/internal/analytics/api"
	"stagepass/internal/auth"
	"stagepass/internal/catalog"
	"stagepass/internal/catalog/catalog_api"
	catalogdb "stagepass/internal/catalog/db"
	"stagepass/internal/config"
	"stagepass/internal/database/migrations"
	"stagepass/internal/kafka"
	"stagepass/internal/logger"
	"stagepass/internal/metrics"
	"stagepass/internal/reservation"
	resdb "stagepass/internal/reservation/db"
	"stagepass/internal/reservation/pass"
	resredis "stagepass/internal/reservation/redis"
	"stagepass/internal/reservation/reservation_api"
	"stagepass/internal/sse"
	"stagepass/internal/users"
	usersdb "stagepass/internal/users/db"
	"stagepass/internal/users/users_api"
	"stagepass/internal/utils"
)

func verifyConnections(cfg config.DatabaseConfig, logger *logger.Logger) *bun.DB {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		logger.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err != nil {
			logger.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		logger.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		sqldb.Close()
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	logger.Info("DATABASE", "PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

func runMigrations(sqldb *sql.DB, logger *logger.Logger) {
	runner := migrations.NewRunner(sqldb, logger)
	if err := runner.Initialize(); err != nil {
		logger.Fatal("MIGRATION", fmt.Sprintf("Failed to initialize migrations: %v", err))
	}
	if err := runner.MigrateUp(); err != nil {
		logger.Fatal("MIGRATION", fmt.Sprintf("Failed to apply migrations: %v", err))
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, ".env file not found, using environment variables")
	}

	cfg := config.Load()
	log, err := logger.New(logger.Options{Name: "stagepass", Dir: cfg.Log.Dir, Level: logger.ParseLevel(cfg.Log.Level)})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	if err := cfg.Validate(); err != nil {
		log.Fatal("CONFIG", err.Error())
	}
	log.Info("APP", "Starting StagePass initialization")

	ctx := context.Background()

	bunDB := verifyConnections(cfg.Database, log)
	defer bunDB.Close()
	if cfg.Database.AutoMigrate {
		runMigrations(bunDB.DB, log)
	}

	// Redis backs the identity cache and reserve idempotency. Both degrade
	// to direct store reads when it is unreachable.
	var (
		identityCache auth.IdentityCache
		idempotency   reservation.IdempotencyStore
		redisClient   *redis.Client
	)
	redisClient, err = auth.InitializeRedis(cfg.Redis, log)
	if err != nil {
		log.Warn("REDIS", "Continuing without identity cache and idempotency keys")
	} else {
		defer redisClient.Close()
		identityCache = auth.NewRedisIdentityCache(redisClient, cfg.Auth.IdentityCacheTTL)
		idempotency = resredis.NewIdempotency(redisClient, cfg.Reserve.IdempotencyTTL, log)
	}

	var publisher kafka.Publisher = kafka.NopPublisher{}
	if cfg.Kafka.Enabled {
		topics := []string{cfg.Kafka.Topics.ReservationEvents, cfg.Kafka.Topics.ConcertEvents}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics, log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers, log)
		defer producer.Close()
		publisher = producer
		log.Info("KAFKA", fmt.Sprintf("Kafka producer initialized for %v", cfg.Kafka.Brokers))
	} else {
		log.Info("KAFKA", "Kafka disabled, events will not be published")
	}

	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	verifiers := []auth.Verifier{tokens}
	if cfg.Auth.OIDCIssuer != "" {
		oidcVerifier, err := auth.NewOIDCVerifier(ctx, cfg.Auth.OIDCIssuer, cfg.Auth.OIDCClientID)
		if err != nil {
			log.Fatal("AUTH", fmt.Sprintf("Failed to discover OIDC issuer %s: %v", cfg.Auth.OIDCIssuer, err))
		}
		verifiers = append(verifiers, oidcVerifier)
		log.Info("AUTH", fmt.Sprintf("Accepting OIDC tokens from %s", cfg.Auth.OIDCIssuer))
	}

	userStore := &usersdb.DB{Bun: bunDB}
	gate := auth.NewGate(userStore, identityCache, log, verifiers...)
	emitter := sse.NewAvailabilityEmitter()

	userService := users.NewUserService(userStore, tokens, log)
	catalogService := catalog.NewCatalogService(&catalogdb.DB{Bun: bunDB}, publisher, cfg.Kafka.Topics.ConcertEvents, log)
	reservationService := reservation.NewReservationService(
		&resdb.DB{Bun: bunDB},
		idempotency,
		publisher,
		cfg.Kafka.Topics.ReservationEvents,
		emitter,
		pass.NewGenerator(cfg.Reserve.PassSecret),
		log,
	)
	analyticsService := analytics.NewService(analytics.NewDB(bunDB))

	userHandler := users_api.NewHandler(userService, log)
	catalogHandler := catalog_api.NewHandler(catalogService, log)
	availabilityHandler := catalog_api.NewAvailabilityHandler(catalogService, emitter, log)
	reservationHandler := reservation_api.NewHandler(reservationService, log)
	analyticsHandler := analytics_api.NewHandler(analyticsService, log)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.HTTPMetricsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := bunDB.PingContext(r.Context()); err != nil {
			utils.WriteJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("database unreachable", "STORAGE_FAILURE"))
			return
		}
		utils.WriteSuccess(w, http.StatusOK, "ok", nil)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		// --- Public Routes ---
		r.Post("/register", userHandler.Register)
		r.Post("/login", userHandler.Login)
		r.Get("/AllConcerts", catalogHandler.AllConcerts)
		r.Get("/ConcertDetails/{id}", catalogHandler.ConcertDetails)
		r.Get("/ConcertDetails/{id}/availability", availabilityHandler.Stream)
		r.Get("/ConcertsByVenue/{venueId}", catalogHandler.ConcertsByVenue)
		r.Get("/venues", catalogHandler.Venues)

		// --- Protected Routes ---
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(gate, log))

			r.Post("/reserveTickets", reservationHandler.ReserveTickets)
			r.Delete("/reserveTickets/{id}", reservationHandler.CancelReservation)
			r.Get("/reserveTickets/{id}/pass", reservationHandler.GetPass)
			r.Get("/user/tickets", reservationHandler.UserTickets)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireOrganizer)

				r.Post("/venues", catalogHandler.CreateVenue)
				r.Post("/NewConcert", catalogHandler.NewConcert)
				r.Put("/ConcertDetails/{id}", catalogHandler.UpdateConcert)
				r.Delete("/ConcertDetails/{id}", catalogHandler.DeleteConcert)
				r.Get("/YourConcerts", reservationHandler.YourConcerts)
				r.Get("/YourConcerts/analytics", analyticsHandler.OrganizerSummary)
			})
		})
	})
	log.Info("ROUTER", "Routes registered under /api")

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("StagePass running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "StagePass shutdown complete")
	}
}
