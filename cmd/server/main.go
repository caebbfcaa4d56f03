package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/member-dashboard-api/internal/api"
	"github.com/member-dashboard-api/internal/config"
	"github.com/member-dashboard-api/internal/database"
	"github.com/member-dashboard-api/internal/identity"
	"github.com/member-dashboard-api/internal/metrics"
	"github.com/member-dashboard-api/internal/realtime"
	"github.com/member-dashboard-api/internal/repository"
	"github.com/member-dashboard-api/internal/service"
	"github.com/member-dashboard-api/pkg/logger"
)

func main() {
	// Initialize logger
	log := logger.New()
	log.Info().Msg("Starting Member Dashboard API server...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log = logger.NewWithWriter(os.Stdout, cfg.Env, cfg.Log.Level, cfg.Log.Format)

	// Initialize database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// Run migrations
	migrationsPath := os.Getenv("MIGRATIONS_PATH")
	if migrationsPath == "" {
		migrationsPath = "./migrations"
	}
	if err := db.RunMigrations(migrationsPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	repos := repository.New(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	m.WatchDB(db.DB)
	deps := service.Deps{
		Identity: identity.New(repos.Account, repos.Credential, cfg.Auth, log),
		Metrics:  m,
	}
	opts := api.Options{
		Metrics:     m,
		HealthCheck: db.HealthCheck,
	}

	// Start the live member feed
	if cfg.Realtime.Enabled {
		hub := realtime.NewHub(repos.Member, log)
		go hub.Run(ctx)

		listener := realtime.NewListener(cfg.Database.GetDSN(), cfg.Realtime, hub, log)
		go func() {
			if err := listener.Run(ctx); err != nil {
				log.Error().Err(err).Msg("Change listener stopped")
			}
		}()

		members := &realtime.MemberSet{}
		sub, err := hub.Subscribe(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load member snapshot")
		}
		go members.Follow(ctx, sub)

		deps.Notifier = hub
		deps.Snapshot = members
		opts.Stream = hub
		opts.Subscribers = hub.Subscribers
		log.Info().Str("channel", cfg.Realtime.Channel).Msg("Live member feed started")
	}

	// Initialize services
	services := service.NewServices(repos, deps, cfg, log)

	// Initialize router
	router := api.NewRouter(services, opts, cfg, log)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.ReadTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Stop the live feed; open streams get a close frame
	cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited gracefully")
}
