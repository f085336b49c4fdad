package query

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/databento-ingest/tsdb-ingestor/internal/model"
	"github.com/databento-ingest/tsdb-ingestor/internal/storage"
)

func newMockReader(t *testing.T) (*Reader, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	specs := map[model.TargetTable]storage.TableSpec{
		model.TableOHLCV: {Table: "ohlcv", NaturalKeyColumns: []string{"instrument_id", "ts_event", "granularity"}},
	}
	return NewReader(sqlxDB, specs, 5*time.Second), mock, func() { db.Close() }
}

func TestResolveSymbolsReturnsMapping(t *testing.T) {
	r, mock, closeFn := newMockReader(t)
	defer closeFn()

	mock.ExpectQuery(`SELECT symbol, instrument_id FROM instrument_mapping`).
		WithArgs("ES.c.0").
		WillReturnRows(sqlmock.NewRows([]string{"symbol", "instrument_id"}).AddRow("ES.c.0", int64(42)))

	resolved, err := r.ResolveSymbols(context.Background(), []string{"ES.c.0"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"ES.c.0": 42}, resolved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveSymbolsReportsUnknown(t *testing.T) {
	r, mock, closeFn := newMockReader(t)
	defer closeFn()

	mock.ExpectQuery(`SELECT symbol, instrument_id FROM instrument_mapping`).
		WithArgs("ES.c.0", "BOGUS").
		WillReturnRows(sqlmock.NewRows([]string{"symbol", "instrument_id"}).AddRow("ES.c.0", int64(42)))

	resolved, err := r.ResolveSymbols(context.Background(), []string{"ES.c.0", "BOGUS"})
	require.Error(t, err)
	var symErr *SymbolResolutionError
	require.ErrorAs(t, err, &symErr)
	assert.Equal(t, []string{"BOGUS"}, symErr.Unknown)
	assert.Equal(t, int64(42), resolved["ES.c.0"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveSymbolsEmptyInputIsNoop(t *testing.T) {
	r, mock, closeFn := newMockReader(t)
	defer closeFn()
	resolved, err := r.ResolveSymbols(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, resolved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailableSymbolsFiltersByAssetAndExchange(t *testing.T) {
	r, mock, closeFn := newMockReader(t)
	defer closeFn()

	mock.ExpectQuery(`SELECT DISTINCT symbol FROM instrument_mapping`).
		WithArgs("GLBX", "ES").
		WillReturnRows(sqlmock.NewRows([]string{"symbol"}).AddRow("ES.c.0").AddRow("ES.c.1"))

	symbols, err := r.AvailableSymbols(context.Background(), "ES", "GLBX")
	require.NoError(t, err)
	assert.Equal(t, []string{"ES.c.0", "ES.c.1"}, symbols)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryOrdersAscendingByTsEventWithinInclusiveRange(t *testing.T) {
	r, mock, closeFn := newMockReader(t)
	defer closeFn()

	mock.ExpectQuery(`SELECT symbol, instrument_id FROM instrument_mapping`).
		WithArgs("ES.c.0").
		WillReturnRows(sqlmock.NewRows([]string{"symbol", "instrument_id"}).AddRow("ES.c.0", int64(7)))

	mock.ExpectQuery(`SELECT \* FROM ohlcv WHERE instrument_id IN`).
		WithArgs(int64(7), startOfDay(day(2024, 1, 1)), endOfDay(day(2024, 1, 31))).
		WillReturnRows(sqlmock.NewRows([]string{"instrument_id", "ts_event", "close_price"}).
			AddRow(int64(7), day(2024, 1, 2), "105").
			AddRow(int64(7), day(2024, 1, 3), "106"))

	rows, err := r.Query(context.Background(), model.SchemaOHLCV, []string{"ES.c.0"}, day(2024, 1, 1), day(2024, 1, 31), 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "105", rows[0]["close_price"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryFailsFastOnUnresolvableSymbol(t *testing.T) {
	r, mock, closeFn := newMockReader(t)
	defer closeFn()

	mock.ExpectQuery(`SELECT symbol, instrument_id FROM instrument_mapping`).
		WithArgs("BOGUS").
		WillReturnRows(sqlmock.NewRows([]string{"symbol", "instrument_id"}))

	_, err := r.Query(context.Background(), model.SchemaOHLCV, []string{"BOGUS"}, day(2024, 1, 1), day(2024, 1, 31), 0)
	require.Error(t, err)
	var symErr *SymbolResolutionError
	require.ErrorAs(t, err, &symErr)
	require.NoError(t, mock.ExpectationsWereMet())
}

func day(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}
