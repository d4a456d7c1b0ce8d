package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jonathan/letterlab/internal/config"
	"github.com/jonathan/letterlab/internal/db"
	"github.com/jonathan/letterlab/internal/db/memory"
	"github.com/jonathan/letterlab/internal/logging"
)

// loadApp reads the configuration and builds the logger shared by every command
func loadApp() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(logging.Options{
		Production: cfg.Production(),
		FilePath:   cfg.LogFile,
		Level:      cfg.LogLevel,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger, nil
}

// openStore connects to the configured store. PostgreSQL is migrated on open.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (db.Store, error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("using in-memory store; data is lost on exit")
		return memory.New(), nil
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}
