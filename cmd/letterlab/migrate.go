package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/letterlab/internal/config"
	"github.com/jonathan/letterlab/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long:  "Apply every pending schema migration to the PostgreSQL database in DATABASE_URL.",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadApp()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Store != config.StorePostgres {
		return fmt.Errorf("migrate requires the postgres store, got %q", cfg.Store)
	}

	database, err := db.Connect(cmd.Context(), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.Migrate(cmd.Context()); err != nil {
		return err
	}
	logger.Info("migrations applied")
	return nil
}
