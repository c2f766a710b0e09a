package main

import (
	"context"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/taleforge/sceneengine/internal/store"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Apply the SQLite schema to the configured database. Safe to run repeatedly.`,
		RunE:  runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	cmd.Printf("Opening %s...\n", cfg.DBPath)
	// NewDB migrates on open; running Migrate again keeps the command explicit.
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.Migrate(context.Background(), db); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}

	cmd.Println("Migrations completed successfully")
	return nil
}
