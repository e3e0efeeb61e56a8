package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dustline/internal/logging"
	"github.com/dustline/internal/storage"
)

// MigrateCmd manages the Postgres attribution schema
var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the Postgres attribution schema",
	Long: `Apply, roll back or inspect the Postgres migrations that create the
local attribution table.

Examples:
  dustline migrate up         # Apply all pending migrations
  dustline migrate down       # Roll back the last migration
  dustline migrate version    # Show the current schema version`,
}

var migrationsPathFlag string

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn, err := postgresDSN()
		if err != nil {
			return err
		}
		logging.Info("Running Postgres migrations...")
		if err := storage.RunMigrations(dsn, migrationsPathFlag); err != nil {
			return err
		}
		logging.Info("Postgres migrations completed successfully")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the last migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn, err := postgresDSN()
		if err != nil {
			return err
		}
		logging.Info("Rolling back Postgres migration...")
		if err := storage.RollbackMigrations(dsn, migrationsPathFlag); err != nil {
			return err
		}
		logging.Info("Postgres rollback completed successfully")
		return nil
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn, err := postgresDSN()
		if err != nil {
			return err
		}
		version, dirty, err := storage.MigrationVersion(dsn, migrationsPathFlag)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Postgres version: %d, dirty: %v\n", version, dirty)
		return nil
	},
}

func init() {
	MigrateCmd.PersistentFlags().StringVar(&migrationsPathFlag, "path", storage.DefaultMigrationsPath, "Directory holding the migration files")
	MigrateCmd.AddCommand(migrateUpCmd)
	MigrateCmd.AddCommand(migrateDownCmd)
	MigrateCmd.AddCommand(migrateVersionCmd)
}

func postgresDSN() (string, error) {
	if !cfg.Database.Postgres.Enabled() {
		return "", errors.New("POSTGRES_HOST is not set")
	}
	return cfg.Database.Postgres.DSN(), nil
}
