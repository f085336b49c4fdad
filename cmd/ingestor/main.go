// Command ingestor is the CLI surface (spec §6): ingest, query, list-jobs,
// and status, wired over the C1-C9 core packages. Grounded on the
// teacher's cmd/cryptorun/main.go: a cobra root command, zerolog installed
// once at startup, subcommands registered in main and implemented in
// sibling cmd_*.go files.
package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/databento-ingest/tsdb-ingestor/internal/logging"
)

const appName = "ingestor"

var (
	flagLogLevel     string
	flagLogJSON      bool
	flagSystemConfig string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   appName,
		Short: "Ingest and query historical Databento market data",
		Long: `ingestor drives the Databento historical ingestion pipeline:
fetch chunked vendor records, map and validate them, and upsert them into
a time-partitioned Postgres-compatible store. Use "query" to read back
stored data by symbol and time range.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initLogging()
		},
	}

	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "force structured JSON log output")
	rootCmd.PersistentFlags().StringVar(&flagSystemConfig, "system-config", "config/system.yaml", "path to the system config YAML (retry, validation, storage, quarantine settings)")

	rootCmd.AddCommand(newIngestCmd())
	rootCmd.AddCommand(newQueryCmd())
	rootCmd.AddCommand(newListJobsCmd())
	rootCmd.AddCommand(newStatusCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg(appName + " command failed")
		os.Exit(1)
	}
}

func initLogging() {
	logging.Init(logging.Options{JSON: flagLogJSON, Level: flagLogLevel})
}
