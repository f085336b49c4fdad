// decode.go turns one raw vendor record (already schema-routed) into a
// TypedRecord. Construction failures are reported, never panicked on —
// the caller quarantines with stage=pydantic and keeps draining the chunk
// (spec §4.2 step 3, §7 "Decode" error kind).
package databento

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/databento-ingest/tsdb-ingestor/internal/model"
)

// RawRecord is the vendor's native wire structure for one record: a loose
// field bag, the way the teacher's kraken client unmarshals into
// map-shaped KrakenResponse.Result before further typing
// (internal/providers/kraken/client.go).
type RawRecord map[string]interface{}

func stripNUL(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}

func getString(r RawRecord, key string) (string, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	return stripNUL(s), true
}

func getFloat(r RawRecord, key string) (float64, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func getInt64(r RawRecord, key string) (int64, bool) {
	f, ok := getFloat(r, key)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

func getDecimal(r RawRecord, key string) (decimal.Decimal, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return decimal.Decimal{}, false
	}
	switch n := v.(type) {
	case string:
		d, err := decimal.NewFromString(n)
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	case float64:
		return decimal.NewFromFloat(n), true
	}
	return decimal.Decimal{}, false
}

func getTime(r RawRecord, key string) (time.Time, bool) {
	s, ok := getString(r, key)
	if ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC(), true
		}
	}
	if n, ok := getInt64(r, key); ok {
		// Vendor convention: nanoseconds since epoch, UTC.
		return time.Unix(0, n).UTC(), true
	}
	return time.Time{}, false
}

// reconstructSymbol implements the "symbol may be absent on per-record
// payloads" adapter quirk (spec §4.2 edge cases): if exactly one job
// symbol is possible, fill it in; otherwise leave empty and defer repair
// to the Rule Engine/Validator (C4/C5).
func reconstructSymbol(raw RawRecord, jobSymbols []string) string {
	if s, ok := getString(raw, "symbol"); ok && s != "" {
		return s
	}
	if len(jobSymbols) == 1 {
		return jobSymbols[0]
	}
	return ""
}

func decodeHeader(raw RawRecord, jobSymbols []string) (model.RecordHeader, error) {
	ts, ok := getTime(raw, "ts_event")
	if !ok {
		return model.RecordHeader{}, fmt.Errorf("missing or unparseable ts_event")
	}
	instrumentID, ok := getInt64(raw, "instrument_id")
	if !ok {
		return model.RecordHeader{}, fmt.Errorf("missing instrument_id")
	}
	return model.RecordHeader{
		TSEvent:      ts,
		InstrumentID: uint32(instrumentID),
		Symbol:       reconstructSymbol(raw, jobSymbols),
	}, nil
}

// DecodeRecord constructs a TypedRecord of the given schema from a raw
// vendor record. Any field that fails to parse aborts construction for
// this record only (the chunk continues).
func DecodeRecord(schema model.Schema, raw RawRecord, jobSymbols []string) (model.TypedRecord, error) {
	header, err := decodeHeader(raw, jobSymbols)
	if err != nil {
		return model.TypedRecord{}, err
	}

	switch schema {
	case model.SchemaOHLCV:
		return decodeOHLCV(header, raw)
	case model.SchemaTrades:
		return decodeTrade(header, raw)
	case model.SchemaTBBO:
		return decodeTBBO(header, raw)
	case model.SchemaStatistics:
		return decodeStatistic(header, raw)
	case model.SchemaDefinition:
		return decodeDefinition(header, raw)
	default:
		return model.TypedRecord{}, fmt.Errorf("unsupported schema %q", schema)
	}
}

func decodeOHLCV(h model.RecordHeader, raw RawRecord) (model.TypedRecord, error) {
	gran, _ := getString(raw, "granularity")
	open, ok1 := getDecimal(raw, "open")
	high, ok2 := getDecimal(raw, "high")
	low, ok3 := getDecimal(raw, "low")
	closeP, ok4 := getDecimal(raw, "close")
	volume, ok5 := getInt64(raw, "volume")
	if !(ok1 && ok2 && ok3 && ok4 && ok5) {
		return model.TypedRecord{}, fmt.Errorf("ohlcv record missing required OHLCV/volume fields")
	}
	var tradeCount *int64
	if tc, ok := getInt64(raw, "trade_count"); ok {
		tradeCount = &tc
	}
	rec := &model.OHLCVRecord{
		RecordHeader: h,
		Granularity:  model.Granularity(gran),
		Open:         open, High: high, Low: low, Close: closeP,
		Volume:     volume,
		TradeCount: tradeCount,
	}
	return model.TypedRecord{Schema: model.SchemaOHLCV, OHLCV: rec}, nil
}

func decodeTrade(h model.RecordHeader, raw RawRecord) (model.TypedRecord, error) {
	price, ok1 := getDecimal(raw, "price")
	size, ok2 := getInt64(raw, "size")
	side, _ := getString(raw, "side")
	if !(ok1 && ok2) {
		return model.TypedRecord{}, fmt.Errorf("trade record missing price/size")
	}
	depth, _ := getInt64(raw, "depth")
	sequence, _ := getInt64(raw, "sequence")
	rec := &model.TradeRecord{
		RecordHeader: h, Price: price, Size: size, Side: model.TradeSide(side),
		Depth: int32(depth), Sequence: uint64(sequence),
	}
	return model.TypedRecord{Schema: model.SchemaTrades, Trade: rec}, nil
}

func decodeTBBO(h model.RecordHeader, raw RawRecord) (model.TypedRecord, error) {
	price, ok1 := getDecimal(raw, "price")
	size, ok2 := getInt64(raw, "size")
	side, _ := getString(raw, "side")
	if !(ok1 && ok2) {
		return model.TypedRecord{}, fmt.Errorf("tbbo record missing price/size")
	}
	rec := &model.TBBORecord{RecordHeader: h, Price: price, Size: size, Side: model.TradeSide(side)}
	if bp, ok := getDecimal(raw, "bid_px"); ok {
		rec.BidPx = &bp
	}
	if ap, ok := getDecimal(raw, "ask_px"); ok {
		rec.AskPx = &ap
	}
	if bs, ok := getInt64(raw, "bid_sz"); ok {
		rec.BidSize = &bs
	}
	if as, ok := getInt64(raw, "ask_sz"); ok {
		rec.AskSize = &as
	}
	return model.TypedRecord{Schema: model.SchemaTBBO, TBBO: rec}, nil
}

func decodeStatistic(h model.RecordHeader, raw RawRecord) (model.TypedRecord, error) {
	statType, ok := getInt64(raw, "stat_type")
	if !ok {
		return model.TypedRecord{}, fmt.Errorf("statistic record missing stat_type")
	}
	action, ok := getInt64(raw, "update_action")
	if !ok {
		return model.TypedRecord{}, fmt.Errorf("statistic record missing update_action")
	}
	rec := &model.StatisticRecord{
		RecordHeader: h, StatType: int32(statType), UpdateAction: model.UpdateAction(action),
	}
	if seq, ok := getInt64(raw, "sequence"); ok {
		rec.Sequence = uint64(seq)
	}
	if p, ok := getDecimal(raw, "price"); ok {
		rec.Price = &p
	}
	if q, ok := getInt64(raw, "quantity"); ok {
		rec.Quantity = &q
	}
	return model.TypedRecord{Schema: model.SchemaStatistics, Statistic: rec}, nil
}

// definitionLoadBearingKeys names every raw key decodeDefinition already
// consumes into a typed field. Databento's definition schema carries ≥60
// fields (spec §3, §4.2); everything not in this set is vendor metadata no
// invariant references, and is carried through verbatim via Extra rather
// than dropped.
var definitionLoadBearingKeys = map[string]bool{
	"ts_event": true, "instrument_id": true, "symbol": true,
	"raw_symbol": true, "instrument_class": true,
	"min_price_increment": true, "display_factor": true,
	"activation": true, "expiration": true,
	"high_limit_price": true, "low_limit_price": true,
	"unit_of_measure_qty": true, "leg_count": true, "legs": true,
}

func decodeDefinition(h model.RecordHeader, raw RawRecord) (model.TypedRecord, error) {
	rawSymbol, ok := getString(raw, "raw_symbol")
	if !ok {
		return model.TypedRecord{}, fmt.Errorf("definition record missing raw_symbol")
	}
	instrumentClass, _ := getString(raw, "instrument_class")
	minIncr, ok1 := getDecimal(raw, "min_price_increment")
	displayFactor, ok2 := getDecimal(raw, "display_factor")
	activation, ok3 := getTime(raw, "activation")
	expiration, ok4 := getTime(raw, "expiration")
	unitQty, ok5 := getDecimal(raw, "unit_of_measure_qty")
	if !(ok1 && ok2 && ok3 && ok4 && ok5) {
		return model.TypedRecord{}, fmt.Errorf("definition record missing required metadata fields")
	}
	rec := &model.DefinitionRecord{
		RecordHeader:      h,
		RawSymbol:         rawSymbol,
		InstrumentClass:   instrumentClass,
		MinPriceIncrement: minIncr,
		DisplayFactor:     displayFactor,
		Activation:        activation,
		Expiration:        expiration,
		UnitOfMeasureQty:  unitQty,
	}
	if hp, ok := getDecimal(raw, "high_limit_price"); ok {
		rec.HighLimitPrice = &hp
	}
	if lp, ok := getDecimal(raw, "low_limit_price"); ok {
		rec.LowLimitPrice = &lp
	}
	legCount, _ := getInt64(raw, "leg_count")
	rec.LegCount = int32(legCount)
	if legsRaw, ok := raw["legs"].([]interface{}); ok {
		for _, lr := range legsRaw {
			lm, ok := lr.(map[string]interface{})
			if !ok {
				continue
			}
			leg := model.DefinitionLeg{}
			if iid, ok := getInt64(RawRecord(lm), "instrument_id"); ok {
				leg.InstrumentID = uint32(iid)
			}
			if ratio, ok := getDecimal(RawRecord(lm), "ratio"); ok {
				leg.Ratio = ratio
			}
			if side, ok := getString(RawRecord(lm), "side"); ok {
				leg.Side = model.TradeSide(side)
			}
			rec.Legs = append(rec.Legs, leg)
		}
	}

	for key, v := range raw {
		if definitionLoadBearingKeys[key] {
			continue
		}
		if s, ok := v.(string); ok {
			v = stripNUL(s)
		}
		if rec.Extra == nil {
			rec.Extra = make(map[string]interface{})
		}
		rec.Extra[key] = v
	}

	return model.TypedRecord{Schema: model.SchemaDefinition, Definition: rec}, nil
}
