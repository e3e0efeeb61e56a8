package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dustline/internal/logging"
	"github.com/dustline/internal/storage"
)

// EntitiesCmd loads and queries the local attribution table
var EntitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "Load and query the local attribution table",
	Long: `Manage the known-entity table consulted before any external attribution
service.

Examples:
  dustline entities import data/entities.json   # Load a file into Postgres
  dustline entities lookup 1A1zP1eP5QGefi2...   # Show the stored label
  dustline entities count                       # Number of labeled addresses`,
}

var batchSizeFlag int

var entitiesImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Load an entities file into the Postgres table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Database.Postgres.Enabled() {
			return fmt.Errorf("POSTGRES_HOST is not set")
		}
		store, err := storage.LoadEntitiesFile(args[0])
		if err != nil {
			return err
		}

		db, err := storage.NewPostgresDB(cmd.Context(), &cfg.Database.Postgres)
		if err != nil {
			return err
		}
		defer db.Close()

		records := store.Records()
		written, err := storage.NewEntityRepository(db).UpsertBatch(cmd.Context(), records, batchSizeFlag)
		if err != nil {
			return err
		}
		logging.WithFields(map[string]interface{}{
			"file":    args[0],
			"records": written,
		}).Info("entities imported")
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d addresses\n", written)
		return nil
	},
}

var entitiesLookupCmd = &cobra.Command{
	Use:   "lookup <address>",
	Short: "Show the local label of an address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newStack(cmd.Context(), "")
		if err != nil {
			return err
		}
		defer rt.Close()

		rec, err := rt.labels.Lookup(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if rec == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "not found")
			return nil
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

var entitiesCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Count labeled addresses",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newStack(cmd.Context(), "")
		if err != nil {
			return err
		}
		defer rt.Close()

		n, err := rt.labels.Count(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d\n", n)
		return nil
	},
}

func init() {
	entitiesImportCmd.Flags().IntVar(&batchSizeFlag, "batch-size", 1000, "Rows per insert batch")
	EntitiesCmd.AddCommand(entitiesImportCmd)
	EntitiesCmd.AddCommand(entitiesLookupCmd)
	EntitiesCmd.AddCommand(entitiesCountCmd)
}
