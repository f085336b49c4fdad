package validate

import "github.com/databento-ingest/tsdb-ingestor/internal/model"

// RepairSymbol implements the C5 repair policy (spec §4.4): a missing
// symbol may be repaired from the job's symbols when exactly one symbol is
// possible. It returns the repaired record and whether a repair happened;
// all other missing-required-column cases are the caller's responsibility
// to fail.
func RepairSymbol(rec model.TypedRecord, jobSymbols []string) (model.TypedRecord, bool) {
	if rec.Header().Symbol != "" {
		return rec, false
	}
	if len(jobSymbols) != 1 {
		return rec, false
	}
	repaired := rec
	switch rec.Schema {
	case model.SchemaOHLCV:
		h := *rec.OHLCV
		h.Symbol = jobSymbols[0]
		repaired.OHLCV = &h
	case model.SchemaTrades:
		h := *rec.Trade
		h.Symbol = jobSymbols[0]
		repaired.Trade = &h
	case model.SchemaTBBO:
		h := *rec.TBBO
		h.Symbol = jobSymbols[0]
		repaired.TBBO = &h
	case model.SchemaStatistics:
		h := *rec.Statistic
		h.Symbol = jobSymbols[0]
		repaired.Statistic = &h
	case model.SchemaDefinition:
		h := *rec.Definition
		h.Symbol = jobSymbols[0]
		repaired.Definition = &h
	default:
		return rec, false
	}
	return repaired, true
}
