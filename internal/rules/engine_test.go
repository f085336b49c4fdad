package rules

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/databento-ingest/tsdb-ingestor/internal/model"
)

func ohlcvRecord(t *testing.T) model.TypedRecord {
	t.Helper()
	return model.TypedRecord{
		Schema: model.SchemaOHLCV,
		OHLCV: &model.OHLCVRecord{
			RecordHeader: model.RecordHeader{
				TSEvent: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
				InstrumentID: 42, Symbol: "ES.c.0",
			},
			Granularity: model.Granularity1d,
			Open: decimal.NewFromInt(100), High: decimal.NewFromInt(110),
			Low: decimal.NewFromInt(95), Close: decimal.NewFromInt(105),
			Volume: 1000,
		},
	}
}

func testMappingConfig() MappingConfig {
	return MappingConfig{
		SchemaMappings: map[string]SchemaMapping{
			"ohlcv": {
				TargetSchema: "ohlcv",
				Defaults:     map[string]interface{}{"source": "databento"},
				FieldMappings: map[string]string{
					"ts_event": "ts_event", "instrument_id": "instrument_id",
					"symbol": "symbol", "open": "open_price", "high": "high_price",
					"low": "low_price", "close": "close_price", "volume": "volume",
				},
				Transformations: map[string]TransformRule{
					"volume_non_negative": {Fields: []string{"volume"}, Rule: "value >= 0"},
					"high_at_least_low":   {Rule: "high >= low"},
				},
			},
		},
	}
}

func TestEngineAppliesDefaultsThenFieldMappings(t *testing.T) {
	eng, err := NewEngine(testMappingConfig())
	require.NoError(t, err)
	std, violation, err := eng.Apply(ohlcvRecord(t))
	require.NoError(t, err)
	require.Nil(t, violation)
	assert.Equal(t, model.TableOHLCV, std.Schema)
	v, ok := std.Get("source")
	require.True(t, ok)
	assert.Equal(t, "databento", v)
	v, ok = std.Get("open_price")
	require.True(t, ok)
	assert.Equal(t, decimal.NewFromInt(100), v)
}

func TestEngineUnknownSourceAttributeIsConfigError(t *testing.T) {
	cfg := testMappingConfig()
	m := cfg.SchemaMappings["ohlcv"]
	m.FieldMappings["does_not_exist"] = "whatever"
	cfg.SchemaMappings["ohlcv"] = m
	eng, err := NewEngine(cfg)
	require.NoError(t, err)
	_, _, err = eng.Apply(ohlcvRecord(t))
	require.Error(t, err)
}

func TestEnginePerFieldTransformationViolation(t *testing.T) {
	cfg := testMappingConfig()
	rec := ohlcvRecord(t)
	rec.OHLCV.Volume = -5
	eng, err := NewEngine(cfg)
	require.NoError(t, err)
	std, violation, err := eng.Apply(rec)
	require.NoError(t, err)
	assert.Equal(t, model.StandardizedRecord{}, std)
	require.NotNil(t, violation)
	assert.Equal(t, "volume_non_negative", violation.RuleName)
}

func TestEngineGlobalTransformationViolation(t *testing.T) {
	cfg := testMappingConfig()
	rec := ohlcvRecord(t)
	rec.OHLCV.Low = decimal.NewFromInt(200) // violates "high >= low"
	eng, err := NewEngine(cfg)
	require.NoError(t, err)
	_, violation, err := eng.Apply(rec)
	require.NoError(t, err)
	require.NotNil(t, violation)
	assert.Equal(t, "high_at_least_low", violation.RuleName)
}

func TestEngineConditionalMappingAppliesWhenRuleMatches(t *testing.T) {
	cfg := testMappingConfig()
	cfg.ConditionalMappings = []ConditionalMapping{
		{Rule: "granularity == '1d'", Column: "bar_kind", Value: "daily"},
	}
	eng, err := NewEngine(cfg)
	require.NoError(t, err)
	std, violation, err := eng.Apply(ohlcvRecord(t))
	require.NoError(t, err)
	require.Nil(t, violation)
	v, ok := std.Get("bar_kind")
	require.True(t, ok)
	assert.Equal(t, "daily", v)
}

func TestEngineMapsDefinitionExtraToJSONColumn(t *testing.T) {
	cfg := MappingConfig{
		SchemaMappings: map[string]SchemaMapping{
			"definition": {
				TargetSchema: "definitions",
				FieldMappings: map[string]string{
					"raw_symbol": "raw_symbol", "extra": "extra",
				},
			},
		},
	}
	rec := model.TypedRecord{
		Schema: model.SchemaDefinition,
		Definition: &model.DefinitionRecord{
			RecordHeader: model.RecordHeader{
				TSEvent: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
				InstrumentID: 1, Symbol: "ESH4",
			},
			RawSymbol: "ESH4",
			Extra:     map[string]interface{}{"exchange": "XCME"},
		},
	}
	eng, err := NewEngine(cfg)
	require.NoError(t, err)
	std, violation, err := eng.Apply(rec)
	require.NoError(t, err)
	require.Nil(t, violation)
	v, ok := std.Get("extra")
	require.True(t, ok)
	assert.JSONEq(t, `{"exchange":"XCME"}`, v.(string))
}

func TestEngineMissingSchemaMappingIsError(t *testing.T) {
	eng, err := NewEngine(MappingConfig{SchemaMappings: map[string]SchemaMapping{
		"trades": {TargetSchema: "trades"},
	}})
	require.NoError(t, err)
	_, _, err = eng.Apply(ohlcvRecord(t))
	require.Error(t, err)
}
