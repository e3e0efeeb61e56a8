// Package main provides the dustline command-line entry point.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dustline/cmd/dustline/commands"
)

var rootCmd = &cobra.Command{
	Use:   "dustline",
	Short: "DustLine - Bitcoin forensic tracing cost estimator",
	Long: `DustLine - estimate what it would cost a forensic analyst to trace funds
from a Bitcoin address.

It walks the transaction graph around an address, attributes the addresses it
finds to known entities, classifies each transaction's structure and prices the
trace in analyst hours and dollars.

Available commands:
  estimate - Estimate the tracing cost for one address
  serve    - Start the HTTP API server
  migrate  - Manage the Postgres attribution schema
  entities - Load and query the local attribution table

Examples:
  dustline estimate bc1q...                           # Forward trace, default bounds
  dustline estimate bc1q... --depth 8 --direction both
  dustline serve                                      # Start the API on SERVER_PORT
  dustline migrate up                                 # Apply Postgres migrations`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return commands.Initialize()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&commands.LogLevelFlag, "log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")

	rootCmd.AddCommand(commands.EstimateCmd)
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.MigrateCmd)
	rootCmd.AddCommand(commands.EntitiesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
