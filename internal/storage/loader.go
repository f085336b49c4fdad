// Package storage defines the Storage Loader (C7) contract: one
// time-partitioned table per schema plus an instrument_mapping table for
// symbol resolution, loaded via per-batch transactional upsert.
package storage

import (
	"context"

	"github.com/databento-ingest/tsdb-ingestor/internal/model"
)

// TableSpec names the destination shape for one schema's StandardizedRecord
// rows: which table they upsert into, which columns form the natural key
// for ON CONFLICT, and which columns carry instrument/symbol identity for
// resolution against instrument_mapping (spec §4.6).
type TableSpec struct {
	Table              string
	NaturalKeyColumns  []string
	InstrumentIDColumn string
	SymbolColumn       string
	ExchangeColumn     string
	DefaultExchange    string
}

// Loader is the C7 Storage Loader contract. A single call loads one batch
// inside one transaction; on any error the whole batch is rolled back and
// the caller (Orchestrator) must route it to Quarantine with stage=load.
type Loader interface {
	LoadBatch(ctx context.Context, spec TableSpec, rows []model.StandardizedRecord) (LoadStats, error)
}

// LoadStats reports how many rows a LoadBatch call touched.
type LoadStats struct {
	Upserted         int
	InstrumentsResolved int
}

// DefaultTableSpecs returns the TableSpec for every schema's target table,
// matching the DDL in internal/storage/postgres/schema.sql column-for-
// column. defaultExchange names the exchange recorded in
// instrument_mapping when a row carries no exchange column of its own
// (spec §4.6: "A separate instrument_mapping(symbol, exchange) ->
// instrument_id table"). Shared by the CLI (C7 wiring) and the Query
// Layer (C9) so both sides of the read/write boundary agree on table and
// natural-key shape.
func DefaultTableSpecs(defaultExchange string) map[model.TargetTable]TableSpec {
	return map[model.TargetTable]TableSpec{
		model.TableOHLCV: {
			Table:              "ohlcv",
			NaturalKeyColumns:  []string{"instrument_id", "ts_event", "granularity"},
			InstrumentIDColumn: "instrument_id",
			SymbolColumn:       "symbol",
			DefaultExchange:    defaultExchange,
		},
		model.TableTrades: {
			Table:              "trades",
			NaturalKeyColumns:  []string{"instrument_id", "ts_event", "sequence"},
			InstrumentIDColumn: "instrument_id",
			SymbolColumn:       "symbol",
			DefaultExchange:    defaultExchange,
		},
		model.TableTBBO: {
			Table:              "tbbo",
			NaturalKeyColumns:  []string{"instrument_id", "ts_event"},
			InstrumentIDColumn: "instrument_id",
			SymbolColumn:       "symbol",
			DefaultExchange:    defaultExchange,
		},
		model.TableStatistics: {
			Table:              "statistics",
			NaturalKeyColumns:  []string{"instrument_id", "ts_event", "stat_type"},
			InstrumentIDColumn: "instrument_id",
			SymbolColumn:       "symbol",
			DefaultExchange:    defaultExchange,
		},
		model.TableDefinition: {
			Table:              "definitions",
			NaturalKeyColumns:  []string{"instrument_id", "ts_event"},
			InstrumentIDColumn: "instrument_id",
			SymbolColumn:       "raw_symbol",
			DefaultExchange:    defaultExchange,
		},
	}
}
