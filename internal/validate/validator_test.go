package validate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/databento-ingest/tsdb-ingestor/internal/model"
)

var testFieldMappings = map[string]string{
	"ts_event": "ts_event", "instrument_id": "instrument_id", "symbol": "symbol",
	"open": "open_price", "high": "high_price", "low": "low_price", "close": "close_price",
	"volume": "volume", "trade_count": "trade_count",
}

func validOHLCVRow(t *testing.T) Row {
	t.Helper()
	typed := model.TypedRecord{
		Schema: model.SchemaOHLCV,
		OHLCV: &model.OHLCVRecord{
			RecordHeader: model.RecordHeader{
				TSEvent: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
				InstrumentID: 7, Symbol: "ES.c.0",
			},
			Granularity: model.Granularity1d,
			Open: decimal.NewFromInt(100), High: decimal.NewFromInt(110),
			Low: decimal.NewFromInt(95), Close: decimal.NewFromInt(105), Volume: 500,
		},
	}
	std := model.StandardizedRecord{Schema: model.TableOHLCV, Cols: map[string]interface{}{
		"ts_event": typed.OHLCV.TSEvent, "instrument_id": int64(typed.OHLCV.InstrumentID),
		"symbol": typed.OHLCV.Symbol, "open_price": typed.OHLCV.Open, "high_price": typed.OHLCV.High,
		"low_price": typed.OHLCV.Low, "close_price": typed.OHLCV.Close, "volume": typed.OHLCV.Volume,
		"trade_count": nil,
	}}
	return Row{Typed: typed, Standardized: std}
}

func TestValidateBatchAcceptsValidRow(t *testing.T) {
	v := NewValidator(testFieldMappings, []string{"ES.c.0"}, 0, true)
	res, err := v.ValidateBatch("job1", []Row{validOHLCVRow(t)})
	require.NoError(t, err)
	assert.Len(t, res.Survivors, 1)
	assert.Empty(t, res.Quarantined)
}

func TestValidateBatchQuarantinesBusinessInvariantViolation(t *testing.T) {
	row := validOHLCVRow(t)
	row.Typed.OHLCV.High = decimal.NewFromInt(10) // now High < max(O,C,L)
	v := NewValidator(testFieldMappings, []string{"ES.c.0"}, 0, true)
	res, err := v.ValidateBatch("job1", []Row{row})
	require.NoError(t, err)
	assert.Empty(t, res.Survivors)
	require.Len(t, res.Quarantined, 1)
	assert.Equal(t, model.StageValidate, res.Quarantined[0].Stage)
	assert.Equal(t, "business_invariant", res.Quarantined[0].RuleName)
}

func TestValidateBatchQuarantinesDtypeViolation(t *testing.T) {
	row := validOHLCVRow(t)
	row.Standardized.Cols["volume"] = 500.0 // float64 in an int64 column: forbidden
	v := NewValidator(testFieldMappings, []string{"ES.c.0"}, 0, true)
	res, err := v.ValidateBatch("job1", []Row{row})
	require.NoError(t, err)
	assert.Empty(t, res.Survivors)
	require.Len(t, res.Quarantined, 1)
	assert.Equal(t, "dtype_coercion", res.Quarantined[0].RuleName)
}

func TestValidateBatchRepairsMissingSymbolWhenUnambiguous(t *testing.T) {
	row := validOHLCVRow(t)
	row.Typed.OHLCV.Symbol = ""
	row.Standardized.Cols["symbol"] = "" // blank on the destination column too, the value LoadBatch actually sees
	v := NewValidator(testFieldMappings, []string{"ES.c.0"}, 0, true)
	res, err := v.ValidateBatch("job1", []Row{row})
	require.NoError(t, err)
	require.Len(t, res.Survivors, 1)
	assert.EqualValues(t, 1, res.RepairedSymbols)
	assert.Equal(t, "ES.c.0", res.Survivors[0].Typed.Header().Symbol)
	v2, ok := res.Survivors[0].Standardized.Get("symbol")
	require.True(t, ok)
	assert.Equal(t, "ES.c.0", v2)
}

func TestValidateBatchAbortsWhenFailuresExceedCap(t *testing.T) {
	bad := validOHLCVRow(t)
	bad.Typed.OHLCV.Volume = -1
	v := NewValidator(testFieldMappings, []string{"ES.c.0"}, 1, true)
	_, err := v.ValidateBatch("job1", []Row{bad, bad, bad})
	require.Error(t, err)
	var abortErr *ErrBatchAborted
	require.ErrorAs(t, err, &abortErr)
	assert.Equal(t, 3, abortErr.FailureCount)
}

func TestValidateBatchRejectsUTCNaiveTimestamp(t *testing.T) {
	row := validOHLCVRow(t)
	loc := time.FixedZone("EST", -5*60*60)
	row.Standardized.Cols["ts_event"] = time.Date(2024, 1, 15, 0, 0, 0, 0, loc)
	v := NewValidator(testFieldMappings, []string{"ES.c.0"}, 0, true)
	res, err := v.ValidateBatch("job1", []Row{row})
	require.NoError(t, err)
	assert.Empty(t, res.Survivors)
	require.Len(t, res.Quarantined, 1)
}

func TestValidateBatchFatalWhenQuarantineDisabled(t *testing.T) {
	row := validOHLCVRow(t)
	row.Typed.OHLCV.High = decimal.NewFromInt(10) // violates H >= max(O,C,L)
	v := NewValidator(testFieldMappings, []string{"ES.c.0"}, 0, false)
	_, err := v.ValidateBatch("job1", []Row{row})
	require.Error(t, err)
	var disabled *ErrQuarantineDisabled
	require.ErrorAs(t, err, &disabled)
	assert.Equal(t, "business_invariant", disabled.RuleName)
}

func TestValidateBatchMissingRequiredColumnFails(t *testing.T) {
	row := validOHLCVRow(t)
	delete(row.Standardized.Cols, "close_price")
	v := NewValidator(testFieldMappings, []string{"ES.c.0"}, 0, true)
	res, err := v.ValidateBatch("job1", []Row{row})
	require.NoError(t, err)
	assert.Empty(t, res.Survivors)
	require.Len(t, res.Quarantined, 1)
}
