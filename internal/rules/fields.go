package rules

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/databento-ingest/tsdb-ingestor/internal/model"
)

func dref(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return *d
}

func iref(i *int64) interface{} {
	if i == nil {
		return nil
	}
	return *i
}

// ToFieldMap flattens a TypedRecord into the named-attribute view that
// field_mappings/transformations address (spec §4.3's src_attr names),
// mirroring the way the teacher unmarshals a vendor payload into a bag of
// named fields before mapping it onto a persistence model
// (internal/providers/kraken/client.go's KrakenResponse.Result).
func ToFieldMap(rec model.TypedRecord) map[string]interface{} {
	h := rec.Header()
	out := map[string]interface{}{
		"ts_event":      h.TSEvent,
		"instrument_id": int64(h.InstrumentID),
		"symbol":        h.Symbol,
	}
	switch rec.Schema {
	case model.SchemaOHLCV:
		r := rec.OHLCV
		out["granularity"] = string(r.Granularity)
		out["open"] = r.Open
		out["high"] = r.High
		out["low"] = r.Low
		out["close"] = r.Close
		out["volume"] = r.Volume
		if r.TradeCount != nil {
			out["trade_count"] = *r.TradeCount
		} else {
			out["trade_count"] = nil
		}
	case model.SchemaTrades:
		r := rec.Trade
		out["price"] = r.Price
		out["size"] = r.Size
		out["side"] = string(r.Side)
		out["depth"] = int64(r.Depth)
		out["sequence"] = int64(r.Sequence)
	case model.SchemaTBBO:
		r := rec.TBBO
		out["price"] = r.Price
		out["size"] = r.Size
		out["side"] = string(r.Side)
		out["bid_px"] = dref(r.BidPx)
		out["ask_px"] = dref(r.AskPx)
		out["bid_sz"] = iref(r.BidSize)
		out["ask_sz"] = iref(r.AskSize)
	case model.SchemaStatistics:
		r := rec.Statistic
		out["stat_type"] = int64(r.StatType)
		out["price"] = dref(r.Price)
		out["quantity"] = iref(r.Quantity)
		out["update_action"] = int64(r.UpdateAction)
		out["sequence"] = int64(r.Sequence)
	case model.SchemaDefinition:
		r := rec.Definition
		out["raw_symbol"] = r.RawSymbol
		out["instrument_class"] = r.InstrumentClass
		out["min_price_increment"] = r.MinPriceIncrement
		out["display_factor"] = r.DisplayFactor
		out["activation"] = r.Activation
		out["expiration"] = r.Expiration
		out["high_limit_price"] = dref(r.HighLimitPrice)
		out["low_limit_price"] = dref(r.LowLimitPrice)
		out["unit_of_measure_qty"] = r.UnitOfMeasureQty
		out["leg_count"] = int64(r.LegCount)
		out["extra"] = encodeExtra(r.Extra)
	}
	return out
}

// encodeExtra marshals the Definition schema's pass-through vendor fields
// (model.DefinitionRecord.Extra) to a JSON string so a field_mappings entry
// can carry it straight into a JSONB destination column without the Rule
// Engine or Validator needing to know its shape. An empty/absent Extra
// maps to nil rather than the literal string "null", so the column stays
// nullable instead of holding a JSON null.
func encodeExtra(extra map[string]interface{}) interface{} {
	if len(extra) == 0 {
		return nil
	}
	b, err := json.Marshal(extra)
	if err != nil {
		return nil
	}
	return string(b)
}
