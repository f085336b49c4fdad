package main

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/databento-ingest/tsdb-ingestor/internal/config"
	"github.com/databento-ingest/tsdb-ingestor/internal/model"
	"github.com/databento-ingest/tsdb-ingestor/internal/rules"
	"github.com/databento-ingest/tsdb-ingestor/internal/storage"
	"github.com/databento-ingest/tsdb-ingestor/internal/storage/postgres"
)

// defaultExchange names the exchange instrument_mapping rows are upserted
// under when a batch carries no exchange column of its own. Databento's
// historical endpoint is exchange-scoped per dataset, not per record, so a
// single configured default covers every schema.
const defaultExchange = "databento"

// openStorage wires a *sqlx.DB and the C7/C9 table specs shared by the
// ingest and query commands, grounded on the teacher's
// db.NewManager/db.Config pairing (internal/infrastructure/db/connection.go).
func openStorage(ctx context.Context, sys config.SystemConfig) (*sqlx.DB, map[model.TargetTable]storage.TableSpec, error) {
	secrets, err := config.LoadDatabaseSecrets()
	if err != nil {
		return nil, nil, fmt.Errorf("database secrets: %w", err)
	}
	dsn := postgres.DSN(secrets, sys.Storage.SSLMode)
	db, err := postgres.Connect(ctx, dsn, sys.Storage)
	if err != nil {
		return nil, nil, err
	}
	return db, storage.DefaultTableSpecs(defaultExchange), nil
}

// loadRuleEngine loads and compiles the vendor field-mapping config for a
// job run. No column allowlist is supplied here: the natural-key and
// column shape per target table is fixed by schema.sql, not discovered at
// runtime, so an operator who mis-maps a column finds out from a
// rejected INSERT rather than a second, YAML-declared allowlist that
// could drift from the DDL.
func loadRuleEngine(rulesPath string) (*rules.Engine, error) {
	cfg, err := rules.LoadMappingConfig(rulesPath, nil)
	if err != nil {
		return nil, err
	}
	return rules.NewEngine(cfg)
}
