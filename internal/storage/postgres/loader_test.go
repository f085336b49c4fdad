package postgres

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/databento-ingest/tsdb-ingestor/internal/model"
	"github.com/databento-ingest/tsdb-ingestor/internal/storage"
)

func newMockLoader(t *testing.T) (*Loader, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return NewLoader(sqlxDB), mock, func() { db.Close() }
}

func TestLoadBatchUpsertsWithoutInstrumentResolution(t *testing.T) {
	loader, mock, closeFn := newMockLoader(t)
	defer closeFn()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO ohlcv`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	spec := storage.TableSpec{Table: "ohlcv", NaturalKeyColumns: []string{"instrument_id", "ts_event", "granularity"}}
	rows := []model.StandardizedRecord{{Schema: model.TableOHLCV, Cols: map[string]interface{}{
		"instrument_id": int64(1), "ts_event": "2024-01-15T00:00:00Z", "granularity": "1d", "open_price": "100",
	}}}

	stats, err := loader.LoadBatch(context.Background(), spec, rows)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Upserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadBatchResolvesInstrumentIDBeforeUpsert(t *testing.T) {
	loader, mock, closeFn := newMockLoader(t)
	defer closeFn()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO instrument_mapping`).
		WithArgs("ES.c.0", "GLBX").
		WillReturnRows(sqlmock.NewRows([]string{"instrument_id"}).AddRow(int64(42)))
	mock.ExpectExec(`INSERT INTO ohlcv`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	spec := storage.TableSpec{
		Table: "ohlcv", NaturalKeyColumns: []string{"instrument_id", "ts_event", "granularity"},
		InstrumentIDColumn: "instrument_id", SymbolColumn: "symbol", DefaultExchange: "GLBX",
	}
	rows := []model.StandardizedRecord{{Schema: model.TableOHLCV, Cols: map[string]interface{}{
		"symbol": "ES.c.0", "ts_event": "2024-01-15T00:00:00Z", "granularity": "1d",
	}}}

	stats, err := loader.LoadBatch(context.Background(), spec, rows)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.InstrumentsResolved)
	assert.Equal(t, int64(42), rows[0].Cols["instrument_id"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadBatchRollsBackOnUpsertFailure(t *testing.T) {
	loader, mock, closeFn := newMockLoader(t)
	defer closeFn()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO ohlcv`).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	spec := storage.TableSpec{Table: "ohlcv", NaturalKeyColumns: []string{"instrument_id", "ts_event", "granularity"}}
	rows := []model.StandardizedRecord{{Schema: model.TableOHLCV, Cols: map[string]interface{}{
		"instrument_id": int64(1), "ts_event": "2024-01-15T00:00:00Z", "granularity": "1d",
	}}}

	_, err := loader.LoadBatch(context.Background(), spec, rows)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadBatchEmptyRowsIsNoop(t *testing.T) {
	loader, mock, closeFn := newMockLoader(t)
	defer closeFn()
	stats, err := loader.LoadBatch(context.Background(), storage.TableSpec{Table: "ohlcv"}, nil)
	require.NoError(t, err)
	assert.Equal(t, storage.LoadStats{}, stats)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildUpsertIsDeterministicAcrossCalls(t *testing.T) {
	spec := storage.TableSpec{Table: "ohlcv", NaturalKeyColumns: []string{"instrument_id"}}
	rows := []model.StandardizedRecord{{Cols: map[string]interface{}{"b": 1, "a": 2, "instrument_id": int64(1)}}}
	q1, args1, err := buildUpsert(spec, rows)
	require.NoError(t, err)
	q2, args2, err := buildUpsert(spec, rows)
	require.NoError(t, err)
	assert.Equal(t, q1, q2)
	assert.Equal(t, args1, args2)
}
