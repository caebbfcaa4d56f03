package main

import (
	"fmt"
	"os"

	"github.com/member-dashboard-api/internal/config"
	"github.com/member-dashboard-api/internal/database"
	"github.com/member-dashboard-api/pkg/logger"
	"github.com/rs/zerolog"
)

func connectDB(log zerolog.Logger) connectFunc {
	return func() (migrator, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("load configuration: %w", err)
		}
		db, err := database.New(&cfg.Database, log)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		return db, nil
	}
}

func main() {
	log := logger.New()

	if err := newRootCmd(connectDB(log)).Execute(); err != nil {
		log.Error().Err(err).Msg("Migration failed")
		os.Exit(1)
	}
}
