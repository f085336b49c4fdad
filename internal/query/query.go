// Package query implements the Query Layer (C9): symbol-resolved,
// range-filtered reads across the fact tables the Storage Loader (C7)
// writes. Grounded on the teacher's
// internal/persistence/postgres/trades_repo.go ListBySymbol/Count family —
// a *sqlx.DB held directly, one method per read shape, QueryxContext plus
// Columns/SliceScan rather than a generated ORM.
package query

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/databento-ingest/tsdb-ingestor/internal/model"
	"github.com/databento-ingest/tsdb-ingestor/internal/storage"
)

// SymbolResolutionError reports that one or more requested symbols have no
// instrument_mapping entry (spec §4.8: "unknown symbols fail with
// SymbolResolution").
type SymbolResolutionError struct {
	Unknown []string
}

func (e *SymbolResolutionError) Error() string {
	return fmt.Sprintf("unresolvable symbols: %v", e.Unknown)
}

// Row is one result row keyed by target column name, mirroring the shape
// StandardizedRecord uses on the write path.
type Row map[string]interface{}

// Reader is the C9 Query Layer over a Postgres/TimescaleDB store.
type Reader struct {
	db         *sqlx.DB
	tableSpecs map[model.TargetTable]storage.TableSpec
	timeout    time.Duration
}

// NewReader builds a Reader. tableSpecs must carry the same table/column
// names the Loader (C7) was configured with, since both read and write
// sides must agree on where a schema's rows live.
func NewReader(db *sqlx.DB, tableSpecs map[model.TargetTable]storage.TableSpec, timeout time.Duration) *Reader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Reader{db: db, tableSpecs: tableSpecs, timeout: timeout}
}

// ResolveSymbols maps symbols to instrument_id via instrument_mapping
// (spec §4.8: "Inputs are symbols ... the layer resolves to instrument_id
// via the mapping table"). A symbol with no row in any exchange is
// unresolvable and collected into a SymbolResolutionError; the error is
// returned alongside whatever did resolve, so a caller willing to proceed
// on a partial set still can.
func (r *Reader) ResolveSymbols(ctx context.Context, symbols []string) (map[string]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if len(symbols) == 0 {
		return map[string]int64{}, nil
	}

	query, args, err := sqlx.In(`SELECT symbol, instrument_id FROM instrument_mapping WHERE symbol IN (?)`, symbols)
	if err != nil {
		return nil, fmt.Errorf("failed to build symbol resolution query: %w", err)
	}
	query = r.db.Rebind(query)

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve symbols: %w", err)
	}
	defer rows.Close()

	resolved := make(map[string]int64, len(symbols))
	for rows.Next() {
		var symbol string
		var instrumentID int64
		if err := rows.Scan(&symbol, &instrumentID); err != nil {
			return nil, fmt.Errorf("failed to scan instrument_mapping row: %w", err)
		}
		resolved[symbol] = instrumentID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read instrument_mapping rows: %w", err)
	}

	var unknown []string
	for _, s := range symbols {
		if _, ok := resolved[s]; !ok {
			unknown = append(unknown, s)
		}
	}
	if len(unknown) > 0 {
		return resolved, &SymbolResolutionError{Unknown: unknown}
	}
	return resolved, nil
}

// AvailableSymbols lists distinct symbols in instrument_mapping, optionally
// filtered by exchange and by asset (the symbol's root, i.e. the segment
// before the first '.', so a continuous-contract symbol like "ES.c.0"
// matches asset "ES").
func (r *Reader) AvailableSymbols(ctx context.Context, asset, exchange string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT DISTINCT symbol FROM instrument_mapping WHERE 1 = 1`
	var args []interface{}
	argN := 1
	if exchange != "" {
		query += fmt.Sprintf(" AND exchange = $%d", argN)
		args = append(args, exchange)
		argN++
	}
	if asset != "" {
		query += fmt.Sprintf(" AND split_part(symbol, '.', 1) = $%d", argN)
		args = append(args, asset)
		argN++
	}
	query += " ORDER BY symbol"

	var symbols []string
	if err := r.db.SelectContext(ctx, &symbols, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list available symbols: %w", err)
	}
	return symbols, nil
}

// Query reads rows for a schema's target table, filtered to the given
// symbols (resolved to instrument_id first) and an inclusive, day-grain
// date range, ordered ascending by ts_event (spec §4.8). limit <= 0 means
// unbounded.
func (r *Reader) Query(ctx context.Context, schema model.Schema, symbols []string, startDate, endDate time.Time, limit int) ([]Row, error) {
	descriptor, err := model.Describe(schema)
	if err != nil {
		return nil, err
	}
	spec, ok := r.tableSpecs[descriptor.TargetTable]
	if !ok {
		return nil, fmt.Errorf("no table spec configured for target table %q", descriptor.TargetTable)
	}

	resolved, err := r.ResolveSymbols(ctx, symbols)
	if err != nil {
		return nil, err
	}
	instrumentIDs := make([]int64, 0, len(resolved))
	for _, id := range resolved {
		instrumentIDs = append(instrumentIDs, id)
	}
	sort.Slice(instrumentIDs, func(i, j int) bool { return instrumentIDs[i] < instrumentIDs[j] })

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rangeStart := startOfDay(startDate)
	rangeEnd := endOfDay(endDate)

	baseQuery := fmt.Sprintf(
		`SELECT * FROM %s WHERE instrument_id IN (?) AND ts_event >= ? AND ts_event <= ? ORDER BY ts_event ASC`,
		spec.Table,
	)
	if limit > 0 {
		baseQuery += fmt.Sprintf(" LIMIT %d", limit)
	}
	query, args, err := sqlx.In(baseQuery, instrumentIDs, rangeStart, rangeEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to build query for table %q: %w", spec.Table, err)
	}
	query = r.db.Rebind(query)

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query table %q: %w", spec.Table, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		cols, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("failed to scan row from table %q: %w", spec.Table, err)
		}
		colNames, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("failed to read column names for table %q: %w", spec.Table, err)
		}
		row := make(Row, len(colNames))
		for i, name := range colNames {
			row[name] = cols[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows from table %q: %w", spec.Table, err)
	}
	return out, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999999999, time.UTC)
}
