package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/databento-ingest/tsdb-ingestor/internal/config"
)

// DSN builds a Postgres connection string from secrets read only from the
// environment (spec §6) plus the YAML-configured pool shape, matching the
// teacher's db.Config.DSN field but assembled here rather than passed in
// from YAML, since secrets never appear there.
func DSN(secrets config.DatabaseSecrets, sslMode string) string {
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s sslmode=%s",
		secrets.Host, secrets.Port, secrets.DB, secrets.User, secrets.Password, sslMode)
}

// Connect opens a pool against dsn, applies pool sizing from cfg, and
// verifies connectivity with a bounded ping before returning, grounded on
// the teacher's db.NewManager (internal/infrastructure/db/connection.go):
// open, configure pool limits, ping once at startup so a bad DSN fails
// fast rather than on the first query.
func Connect(ctx context.Context, dsn string, cfg config.StorageConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}
