package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/databento-ingest/tsdb-ingestor/internal/config"
	"github.com/databento-ingest/tsdb-ingestor/internal/httpapi"
	"github.com/databento-ingest/tsdb-ingestor/internal/storage/postgres"
)

// newStatusCmd reports the health of the pipeline's dependencies (spec §6
// "status": "Health check of dependencies"), exiting non-zero if any check
// fails. It reuses httpapi.CheckAll rather than starting a server.
func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Health check of dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := config.LoadSystemConfig(flagSystemConfig)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			checks := map[string]httpapi.Checker{
				"database":   databaseCheck(sys),
				"quarantine": quarantineCheck(sys),
			}

			results := httpapi.CheckAll(ctx, checks)
			unhealthy := false
			for name, err := range results {
				if err != nil {
					unhealthy = true
					fmt.Printf("%-12s UNHEALTHY: %v\n", name, err)
					continue
				}
				fmt.Printf("%-12s HEALTHY\n", name)
			}
			if unhealthy {
				return fmt.Errorf("one or more dependencies are unhealthy")
			}
			return nil
		},
	}
	return cmd
}

func databaseCheck(sys config.SystemConfig) httpapi.Checker {
	return func(ctx context.Context) error {
		secrets, err := config.LoadDatabaseSecrets()
		if err != nil {
			return fmt.Errorf("database secrets: %w", err)
		}
		dsn := postgres.DSN(secrets, sys.Storage.SSLMode)
		db, err := postgres.Connect(ctx, dsn, sys.Storage)
		if err != nil {
			return err
		}
		return db.Close()
	}
}

// quarantineCheck verifies the quarantine base directory exists and is
// writable, without leaving a trace file behind.
func quarantineCheck(sys config.SystemConfig) httpapi.Checker {
	return func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := os.MkdirAll(sys.Quarantine.BaseDir, 0o755); err != nil {
			return fmt.Errorf("quarantine base dir %q: %w", sys.Quarantine.BaseDir, err)
		}
		probe := filepath.Join(sys.Quarantine.BaseDir, ".status-probe")
		f, err := os.Create(probe)
		if err != nil {
			return fmt.Errorf("quarantine base dir %q not writable: %w", sys.Quarantine.BaseDir, err)
		}
		f.Close()
		return os.Remove(probe)
	}
}
