package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func header() RecordHeader {
	return RecordHeader{
		TSEvent:      time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC),
		InstrumentID: 42,
		Symbol:       "ES.c.0",
	}
}

func d(s string) decimal.Decimal {
	v, _ := decimal.NewFromString(s)
	return v
}

func TestOHLCVValidate(t *testing.T) {
	ok := OHLCVRecord{
		RecordHeader: header(), Granularity: Granularity1d,
		Open: d("100"), High: d("110"), Low: d("95"), Close: d("105"), Volume: 1000,
	}
	require.NoError(t, ok.Validate())

	bad := ok
	bad.High = d("90") // below close
	require.Error(t, bad.Validate())

	badVol := ok
	badVol.Volume = -1
	require.Error(t, badVol.Validate())

	naive := ok
	naive.TSEvent = time.Date(2024, 1, 15, 0, 0, 0, 0, time.Local)
	require.Error(t, naive.Validate())
}

func TestTradeValidate(t *testing.T) {
	ok := TradeRecord{RecordHeader: header(), Price: d("10.5"), Size: 5, Side: SideAsk}
	require.NoError(t, ok.Validate())

	bad := ok
	bad.Price = d("0")
	require.Error(t, bad.Validate())

	badSide := ok
	badSide.Side = "X"
	require.Error(t, badSide.Validate())
}

func TestTBBOValidate(t *testing.T) {
	bid := d("10.0")
	ask := d("10.5")
	ok := TBBORecord{RecordHeader: header(), Price: d("10.2"), Size: 1, BidPx: &bid, AskPx: &ask}
	require.NoError(t, ok.Validate())

	inverted := ok
	invertedBid := d("11.0")
	inverted.BidPx = &invertedBid
	require.Error(t, inverted.Validate())
}

func TestStatisticValidate(t *testing.T) {
	qty := int64(5)
	ok := StatisticRecord{RecordHeader: header(), StatType: 1, Quantity: &qty, UpdateAction: UpdateActionNew}
	require.NoError(t, ok.Validate())

	bad := ok
	bad.StatType = 999
	require.Error(t, bad.Validate())
}

func TestDefinitionValidate(t *testing.T) {
	ok := DefinitionRecord{
		RecordHeader:      header(),
		RawSymbol:         "ESH4",
		MinPriceIncrement: d("0.25"),
		DisplayFactor:     d("1"),
		Activation:        time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		Expiration:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		UnitOfMeasureQty:  d("50"),
		LegCount:          0,
	}
	require.NoError(t, ok.Validate())

	badActivation := ok
	badActivation.Activation, badActivation.Expiration = badActivation.Expiration, badActivation.Activation
	require.Error(t, badActivation.Validate())

	badLegs := ok
	badLegs.LegCount = 2
	require.Error(t, badLegs.Validate()) // legs missing

	goodLegs := ok
	goodLegs.LegCount = 2
	goodLegs.Legs = []DefinitionLeg{{InstrumentID: 1, Ratio: d("1")}, {InstrumentID: 2, Ratio: d("-1")}}
	require.NoError(t, goodLegs.Validate())
}

func TestTypedRecordNaturalKey(t *testing.T) {
	tr := TypedRecord{Schema: SchemaOHLCV, OHLCV: &OHLCVRecord{RecordHeader: header(), Granularity: Granularity1d}}
	id, ts, disambig := tr.NaturalKey()
	assert.Equal(t, uint32(42), id)
	assert.Equal(t, header().TSEvent, ts)
	assert.Equal(t, "1d", disambig)
}
