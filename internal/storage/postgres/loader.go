// Package postgres implements the C7 Storage Loader against TimescaleDB
// (Postgres-wire-compatible), grounded on the teacher's
// internal/persistence/postgres/trades_repo.go: sqlx.DB + lib/pq, a
// transaction per batch, one dynamically built multi-row INSERT ... ON
// CONFLICT statement executed per batch, and pq.Error code inspection for
// conflict handling.
package postgres

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/databento-ingest/tsdb-ingestor/internal/model"
	"github.com/databento-ingest/tsdb-ingestor/internal/storage"
)

// Loader is the Postgres/TimescaleDB Storage Loader.
type Loader struct {
	db *sqlx.DB
}

// NewLoader builds a Loader over an open connection pool. The pool is
// shared across components (spec §5); the loader holds a connection only
// for the duration of one batch's transaction.
func NewLoader(db *sqlx.DB) *Loader {
	return &Loader{db: db}
}

// LoadBatch resolves any missing instrument_id, then upserts the batch in
// one transaction with ON CONFLICT (natural_key) DO UPDATE SET (spec
// §4.6). On any failure the transaction rolls back in full and the error
// is returned for the caller to quarantine the batch.
func (l *Loader) LoadBatch(ctx context.Context, spec storage.TableSpec, rows []model.StandardizedRecord) (storage.LoadStats, error) {
	if len(rows) == 0 {
		return storage.LoadStats{}, nil
	}

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return storage.LoadStats{}, fmt.Errorf("failed to begin load transaction: %w", err)
	}
	defer tx.Rollback()

	stats := storage.LoadStats{}
	if spec.SymbolColumn != "" && spec.InstrumentIDColumn != "" {
		resolved, err := resolveInstrumentIDs(ctx, tx, spec, rows)
		if err != nil {
			return storage.LoadStats{}, fmt.Errorf("instrument resolution failed: %w", err)
		}
		stats.InstrumentsResolved = resolved
	}

	query, args, err := buildUpsert(spec, rows)
	if err != nil {
		return storage.LoadStats{}, err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			return storage.LoadStats{}, fmt.Errorf("load upsert rejected (pq code %s): %w", pqErr.Code, err)
		}
		return storage.LoadStats{}, fmt.Errorf("load upsert failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return storage.LoadStats{}, fmt.Errorf("failed to commit load transaction: %w", err)
	}
	stats.Upserted = len(rows)
	return stats, nil
}

// columnOrder returns a stable, deterministic column ordering for a batch,
// derived from the union of keys across all rows. A stable order keeps
// generated SQL and its bound args reproducible across identical batches
// (needed for the idempotency property spec §8 requires).
func columnOrder(rows []model.StandardizedRecord) []string {
	seen := map[string]bool{}
	var cols []string
	for _, r := range rows {
		for k := range r.Cols {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	return cols
}

func buildUpsert(spec storage.TableSpec, rows []model.StandardizedRecord) (string, []interface{}, error) {
	if len(spec.NaturalKeyColumns) == 0 {
		return "", nil, fmt.Errorf("table %q has no natural key columns configured", spec.Table)
	}
	cols := columnOrder(rows)
	if len(cols) == 0 {
		return "", nil, fmt.Errorf("batch for table %q has no columns", spec.Table)
	}

	var placeholders []string
	var args []interface{}
	argN := 1
	for _, row := range rows {
		var rowPlaceholders []string
		for _, col := range cols {
			v, ok := row.Cols[col]
			if !ok {
				v = nil
			}
			rowPlaceholders = append(rowPlaceholders, fmt.Sprintf("$%d", argN))
			args = append(args, v)
			argN++
		}
		placeholders = append(placeholders, "("+strings.Join(rowPlaceholders, ", ")+")")
	}

	var updateSet []string
	for _, col := range cols {
		if containsString(spec.NaturalKeyColumns, col) {
			continue
		}
		updateSet = append(updateSet, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}

	conflictAction := "DO NOTHING"
	if len(updateSet) > 0 {
		conflictAction = "DO UPDATE SET " + strings.Join(updateSet, ", ")
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES %s ON CONFLICT (%s) %s",
		spec.Table,
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(spec.NaturalKeyColumns, ", "),
		conflictAction,
	)
	return query, args, nil
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
