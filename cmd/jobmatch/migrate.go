package main

import (
	"fmt"

	"github.com/jonathan/job-matcher/internal/db"
	"github.com/jonathan/job-matcher/internal/listings/sqlitestore"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Applies pending PostgreSQL migrations when DATABASE_URL is set and prepares
the SQLite listing store when listings.backend is sqlite.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sqlite := cfg.Listings.Backend == "sqlite"
	if cfg.Database.URL == "" && !sqlite {
		return cfg.RequireDatabase()
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if cfg.Database.URL != "" {
		database, err := db.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close()

		applied, err := database.Migrate(ctx, logger)
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			_, _ = fmt.Fprintln(out, "postgres: schema is up to date")
		}
		for _, name := range applied {
			_, _ = fmt.Fprintf(out, "postgres: applied %s\n", name)
		}
	}

	if sqlite {
		store, err := sqlitestore.Open(ctx, cfg.Listings.SQLitePath)
		if err != nil {
			return err
		}
		if err := store.Close(); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "sqlite: listing store ready at %s\n", cfg.Listings.SQLitePath)
	}
	return nil
}
