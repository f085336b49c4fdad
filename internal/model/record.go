// Package model defines the per-schema typed record registry (C2): the
// tagged sum type over Databento schemas that the adapter constructs and
// every downstream stage passes by value.
package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Schema identifies a Databento record shape.
type Schema string

const (
	SchemaOHLCV      Schema = "ohlcv"
	SchemaTrades     Schema = "trades"
	SchemaTBBO       Schema = "tbbo"
	SchemaStatistics Schema = "statistics"
	SchemaDefinition Schema = "definition"
)

// Granularity enumerates the OHLCV bar widths the vendor supports.
type Granularity string

const (
	Granularity1s  Granularity = "1s"
	Granularity1m  Granularity = "1m"
	Granularity5m  Granularity = "5m"
	Granularity15m Granularity = "15m"
	Granularity1h  Granularity = "1h"
	Granularity1d  Granularity = "1d"
)

func (g Granularity) Valid() bool {
	switch g {
	case Granularity1s, Granularity1m, Granularity5m, Granularity15m, Granularity1h, Granularity1d:
		return true
	}
	return false
}

// TradeSide enumerates aggressor side on a Trade/TBBO record.
type TradeSide string

const (
	SideAsk  TradeSide = "A"
	SideBid  TradeSide = "B"
	SideNone TradeSide = "N"
)

func (s TradeSide) Valid() bool {
	switch s {
	case SideAsk, SideBid, SideNone:
		return true
	}
	return false
}

// UpdateAction enumerates the Statistic record's add/delete semantics.
type UpdateAction int

const (
	UpdateActionNew    UpdateAction = 1
	UpdateActionDelete UpdateAction = 2
)

func (a UpdateAction) Valid() bool {
	return a == UpdateActionNew || a == UpdateActionDelete
}

// RecordHeader carries the fields every TypedRecord variant shares.
type RecordHeader struct {
	TSEvent      time.Time
	InstrumentID uint32
	Symbol       string
}

func (h RecordHeader) validate() error {
	if h.TSEvent.Location() != time.UTC {
		return fmt.Errorf("ts_event must be UTC-normalized, got location %s", h.TSEvent.Location())
	}
	return nil
}

// OHLCVRecord is the OHLCV schema variant.
type OHLCVRecord struct {
	RecordHeader
	Granularity Granularity
	Open        decimal.Decimal
	High        decimal.Decimal
	Low         decimal.Decimal
	Close       decimal.Decimal
	Volume      int64
	TradeCount  *int64 // nullable
}

// Validate enforces the OHLCV business invariants from spec §3/§4.4.
func (r OHLCVRecord) Validate() error {
	if err := r.RecordHeader.validate(); err != nil {
		return err
	}
	if !r.Granularity.Valid() {
		return fmt.Errorf("invalid granularity %q", r.Granularity)
	}
	if r.Volume < 0 {
		return fmt.Errorf("volume must be >= 0, got %d", r.Volume)
	}
	maxOCL := decimal.Max(r.Open, r.Close, r.Low)
	minOCH := decimal.Min(r.Open, r.Close, r.High)
	if r.High.LessThan(maxOCL) {
		return fmt.Errorf("high %s must be >= max(open,close,low) %s", r.High, maxOCL)
	}
	if r.Low.GreaterThan(minOCH) {
		return fmt.Errorf("low %s must be <= min(open,close,high) %s", r.Low, minOCH)
	}
	return nil
}

// TradeRecord is the Trade schema variant.
type TradeRecord struct {
	RecordHeader
	Price    decimal.Decimal
	Size     int64
	Side     TradeSide
	Depth    int32
	Sequence uint64
}

func (r TradeRecord) Validate() error {
	if err := r.RecordHeader.validate(); err != nil {
		return err
	}
	if !r.Price.IsPositive() {
		return fmt.Errorf("price must be > 0, got %s", r.Price)
	}
	if r.Size <= 0 {
		return fmt.Errorf("size must be > 0, got %d", r.Size)
	}
	if !r.Side.Valid() {
		return fmt.Errorf("invalid side %q", r.Side)
	}
	return nil
}

// TBBORecord is the TBBO schema variant: a trade plus the best bid/ask at
// event time.
type TBBORecord struct {
	RecordHeader
	Price   decimal.Decimal
	Size    int64
	Side    TradeSide
	BidPx   *decimal.Decimal
	AskPx   *decimal.Decimal
	BidSize *int64
	AskSize *int64
}

func (r TBBORecord) Validate() error {
	if err := r.RecordHeader.validate(); err != nil {
		return err
	}
	if !r.Price.IsPositive() {
		return fmt.Errorf("price must be > 0, got %s", r.Price)
	}
	if r.Size <= 0 {
		return fmt.Errorf("size must be > 0, got %d", r.Size)
	}
	if r.BidPx != nil && r.AskPx != nil && r.BidPx.GreaterThan(*r.AskPx) {
		return fmt.Errorf("bid_px %s must be <= ask_px %s", r.BidPx, r.AskPx)
	}
	if r.BidSize != nil && *r.BidSize <= 0 {
		return fmt.Errorf("bid_size must be positive when present, got %d", *r.BidSize)
	}
	if r.AskSize != nil && *r.AskSize <= 0 {
		return fmt.Errorf("ask_size must be positive when present, got %d", *r.AskSize)
	}
	return nil
}

// StatisticRecord is the Statistic schema variant.
type StatisticRecord struct {
	RecordHeader
	StatType     int32
	Price        *decimal.Decimal
	Quantity     *int64
	UpdateAction UpdateAction
	Sequence     uint64
}

// AllowedStatTypes is the bounded, vendor-defined domain for StatType.
// Databento documents stat_type 1-11; unknown values are rejected rather
// than silently accepted.
var AllowedStatTypes = map[int32]bool{
	1: true, 2: true, 3: true, 4: true, 5: true, 6: true,
	7: true, 8: true, 9: true, 10: true, 11: true,
}

func (r StatisticRecord) Validate() error {
	if err := r.RecordHeader.validate(); err != nil {
		return err
	}
	if !AllowedStatTypes[r.StatType] {
		return fmt.Errorf("stat_type %d outside allowed domain", r.StatType)
	}
	if r.Price != nil && !r.Price.IsPositive() {
		return fmt.Errorf("price must be > 0 or null, got %s", r.Price)
	}
	if r.Quantity != nil && *r.Quantity < 0 {
		return fmt.Errorf("quantity must be >= 0 or null, got %d", *r.Quantity)
	}
	if !r.UpdateAction.Valid() {
		return fmt.Errorf("invalid update_action %d", r.UpdateAction)
	}
	return nil
}

// DefinitionRecord is the Definition schema variant: instrument metadata.
// Only the fields load-bearing for validation/storage are modeled
// explicitly; vendor fields not referenced by any invariant are carried in
// Extra for pass-through storage.
type DefinitionRecord struct {
	RecordHeader
	RawSymbol          string
	InstrumentClass    string
	MinPriceIncrement  decimal.Decimal
	DisplayFactor      decimal.Decimal
	Activation         time.Time
	Expiration         time.Time
	HighLimitPrice     *decimal.Decimal
	LowLimitPrice      *decimal.Decimal
	UnitOfMeasureQty   decimal.Decimal
	LegCount           int32
	Legs               []DefinitionLeg
	Extra              map[string]interface{}
}

// DefinitionLeg models one leg of a multi-leg instrument (spread,
// strategy). Required iff LegCount > 0.
type DefinitionLeg struct {
	InstrumentID uint32
	Ratio        decimal.Decimal
	Side         TradeSide
}

func (r DefinitionRecord) Validate() error {
	if err := r.RecordHeader.validate(); err != nil {
		return err
	}
	if r.RawSymbol == "" {
		return fmt.Errorf("raw_symbol is required")
	}
	if !r.MinPriceIncrement.IsPositive() {
		return fmt.Errorf("min_price_increment must be > 0, got %s", r.MinPriceIncrement)
	}
	if !r.DisplayFactor.IsPositive() {
		return fmt.Errorf("display_factor must be > 0, got %s", r.DisplayFactor)
	}
	if r.Activation.After(r.Expiration) {
		return fmt.Errorf("activation %s must be <= expiration %s", r.Activation, r.Expiration)
	}
	if !r.UnitOfMeasureQty.IsPositive() {
		return fmt.Errorf("unit_of_measure_qty must be > 0, got %s", r.UnitOfMeasureQty)
	}
	if r.HighLimitPrice != nil && r.LowLimitPrice != nil && r.HighLimitPrice.LessThan(*r.LowLimitPrice) {
		return fmt.Errorf("high_limit_price %s must be >= low_limit_price %s", r.HighLimitPrice, r.LowLimitPrice)
	}
	if r.LegCount < 0 {
		return fmt.Errorf("leg_count must be >= 0, got %d", r.LegCount)
	}
	if r.LegCount > 0 && len(r.Legs) == 0 {
		return fmt.Errorf("leg_count %d requires leg fields", r.LegCount)
	}
	if r.LegCount == 0 && len(r.Legs) > 0 {
		return fmt.Errorf("leg_count is 0 but %d leg fields were supplied", len(r.Legs))
	}
	return nil
}

// TypedRecord is the tagged sum over schema variants. Exactly one of the
// pointer fields is non-nil; Schema names which.
type TypedRecord struct {
	Schema     Schema
	OHLCV      *OHLCVRecord
	Trade      *TradeRecord
	TBBO       *TBBORecord
	Statistic  *StatisticRecord
	Definition *DefinitionRecord
}

// Header returns the common header of whichever variant is set.
func (t TypedRecord) Header() RecordHeader {
	switch t.Schema {
	case SchemaOHLCV:
		return t.OHLCV.RecordHeader
	case SchemaTrades:
		return t.Trade.RecordHeader
	case SchemaTBBO:
		return t.TBBO.RecordHeader
	case SchemaStatistics:
		return t.Statistic.RecordHeader
	case SchemaDefinition:
		return t.Definition.RecordHeader
	default:
		return RecordHeader{}
	}
}

// Validate dispatches to the variant's own Validate.
func (t TypedRecord) Validate() error {
	switch t.Schema {
	case SchemaOHLCV:
		if t.OHLCV == nil {
			return fmt.Errorf("ohlcv schema tagged but OHLCV is nil")
		}
		return t.OHLCV.Validate()
	case SchemaTrades:
		if t.Trade == nil {
			return fmt.Errorf("trades schema tagged but Trade is nil")
		}
		return t.Trade.Validate()
	case SchemaTBBO:
		if t.TBBO == nil {
			return fmt.Errorf("tbbo schema tagged but TBBO is nil")
		}
		return t.TBBO.Validate()
	case SchemaStatistics:
		if t.Statistic == nil {
			return fmt.Errorf("statistics schema tagged but Statistic is nil")
		}
		return t.Statistic.Validate()
	case SchemaDefinition:
		if t.Definition == nil {
			return fmt.Errorf("definition schema tagged but Definition is nil")
		}
		return t.Definition.Validate()
	default:
		return fmt.Errorf("unknown schema %q", t.Schema)
	}
}

// NaturalKey returns the per-schema uniqueness tuple (spec §3 invariants).
// The loader's ON CONFLICT clause uses TableSpec.NaturalKeyColumns instead;
// for trades those columns also include sequence, which NaturalKey omits.
func (t TypedRecord) NaturalKey() (instrumentID uint32, tsEvent time.Time, disambiguator string) {
	h := t.Header()
	switch t.Schema {
	case SchemaOHLCV:
		return h.InstrumentID, h.TSEvent, string(t.OHLCV.Granularity)
	case SchemaStatistics:
		return h.InstrumentID, h.TSEvent, fmt.Sprintf("%d", t.Statistic.StatType)
	default:
		return h.InstrumentID, h.TSEvent, ""
	}
}
