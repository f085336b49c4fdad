package databento

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/databento-ingest/tsdb-ingestor/internal/config"
	"github.com/databento-ingest/tsdb-ingestor/internal/model"
)

type fakeVendorClient struct {
	bodies map[string]string // keyed by chunk start date
	err    error
}

func (f *fakeVendorClient) FetchRange(ctx context.Context, req RangeRequest) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	key := req.Start.Format("2006-01-02")
	body, ok := f.bodies[key]
	if !ok {
		body = ""
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func testJob(t *testing.T) config.Job {
	t.Helper()
	return config.Job{
		Name: "es-ohlcv", Dataset: "GLBX.MDP3", Schema: model.SchemaOHLCV,
		Symbols: []string{"ES.c.0"}, SymbolType: config.SymbolTypeContinuous,
		StartDate: day(2024, 1, 15), EndDate: day(2024, 1, 15), ChunkDays: 1,
	}
}

func TestAdapterFetchHappyPath(t *testing.T) {
	ndjson := `{"ts_event":"2024-01-15T00:00:00Z","instrument_id":1,"symbol":"ES.c.0","granularity":"1d","open":"100","high":"110","low":"95","close":"105","volume":1000}
`
	client := &fakeVendorClient{bodies: map[string]string{"2024-01-15": ndjson}}
	adapter := NewAdapter(client, testJob(t))

	it, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	defer it.Close()

	res, more, err := it.Next()
	require.NoError(t, err)
	require.True(t, more)
	require.NotNil(t, res.Record)
	assert.Equal(t, model.SchemaOHLCV, res.Record.Schema)

	_, more, err = it.Next()
	require.NoError(t, err)
	assert.False(t, more)
}

func TestAdapterQuarantinesUndecodableRecord(t *testing.T) {
	ndjson := `{"ts_event":"2024-01-15T00:00:00Z","instrument_id":1,"symbol":"ES.c.0"}
`
	client := &fakeVendorClient{bodies: map[string]string{"2024-01-15": ndjson}}
	adapter := NewAdapter(client, testJob(t))

	it, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	defer it.Close()

	res, more, err := it.Next()
	require.NoError(t, err)
	require.True(t, more)
	require.Nil(t, res.Record)
	require.NotNil(t, res.Quarantine)
	assert.Equal(t, model.StagePydantic, res.Quarantine.Stage)
}

func TestAdapterEmptyChunkProducesZeroRecords(t *testing.T) {
	client := &fakeVendorClient{bodies: map[string]string{}}
	adapter := NewAdapter(client, testJob(t))

	it, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	_, more, err := it.Next()
	require.NoError(t, err)
	assert.False(t, more)
}

func TestAdapterSymbolReconstructedWhenAbsentAndUnambiguous(t *testing.T) {
	ndjson := `{"ts_event":"2024-01-15T00:00:00Z","instrument_id":1,"granularity":"1d","open":"1","high":"1","low":"1","close":"1","volume":0}
`
	client := &fakeVendorClient{bodies: map[string]string{"2024-01-15": ndjson}}
	adapter := NewAdapter(client, testJob(t))
	it, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	res, more, err := it.Next()
	require.NoError(t, err)
	require.True(t, more)
	require.NotNil(t, res.Record)
	assert.Equal(t, "ES.c.0", res.Record.Header().Symbol)
}

func TestAdapterCancellationStopsCleanly(t *testing.T) {
	client := &fakeVendorClient{bodies: map[string]string{}}
	adapter := NewAdapter(client, testJob(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	it, err := adapter.Fetch(ctx)
	require.NoError(t, err)
	_, _, err = it.Next()
	require.Error(t, err)
}

func TestDecodeRecordRejectsMissingTimestamp(t *testing.T) {
	_, err := DecodeRecord(model.SchemaOHLCV, RawRecord{"instrument_id": 1.0}, nil)
	require.Error(t, err)
}

func TestDecodeRecordStripsNULBytesFromStrings(t *testing.T) {
	raw := RawRecord{
		"ts_event": time.Now().UTC().Format(time.RFC3339),
		"instrument_id": 1.0,
		"raw_symbol": "ESH4\x00",
		"min_price_increment": "0.25",
		"display_factor": "1",
		"activation": time.Now().UTC().Format(time.RFC3339),
		"expiration": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
		"unit_of_measure_qty": "50",
	}
	rec, err := DecodeRecord(model.SchemaDefinition, raw, nil)
	require.NoError(t, err)
	assert.Equal(t, "ESH4", rec.Definition.RawSymbol)
}

func TestDecodeDefinitionCarriesNonLoadBearingFieldsInExtra(t *testing.T) {
	raw := RawRecord{
		"ts_event":             time.Now().UTC().Format(time.RFC3339),
		"instrument_id":        1.0,
		"raw_symbol":           "ESH4",
		"min_price_increment":  "0.25",
		"display_factor":       "1",
		"activation":           time.Now().UTC().Format(time.RFC3339),
		"expiration":           time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
		"unit_of_measure_qty":  "50",
		"exchange":             "XCME",
		"channel_id":           5.0,
		"group":                "ES\x00",
	}
	rec, err := DecodeRecord(model.SchemaDefinition, raw, nil)
	require.NoError(t, err)
	require.NotNil(t, rec.Definition.Extra)
	assert.Equal(t, "XCME", rec.Definition.Extra["exchange"])
	assert.Equal(t, 5.0, rec.Definition.Extra["channel_id"])
	assert.Equal(t, "ES", rec.Definition.Extra["group"]) // NUL-stripped like every other string field
	_, hasRawSymbol := rec.Definition.Extra["raw_symbol"]
	assert.False(t, hasRawSymbol, "load-bearing fields must not be duplicated into Extra")
}
