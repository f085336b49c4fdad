package validate

// sourceFieldKinds maps the closed set of source attribute names the
// adapter/rule engine produce (internal/rules.ToFieldMap) to their dtype
// kind, so a ColumnSpec for the Rule Engine's destination columns can be
// derived from the mapping config without re-declaring dtypes in YAML.
var sourceFieldKinds = map[string]DtypeKind{
	"ts_event":            DtypeTimestamp,
	"activation":          DtypeTimestamp,
	"expiration":          DtypeTimestamp,
	"instrument_id":       DtypeInt64,
	"symbol":              DtypeString,
	"side":                DtypeString,
	"granularity":         DtypeString,
	"raw_symbol":          DtypeString,
	"instrument_class":    DtypeString,
	"open":                DtypeDecimal,
	"high":                DtypeDecimal,
	"low":                 DtypeDecimal,
	"close":               DtypeDecimal,
	"price":               DtypeDecimal,
	"bid_px":              DtypeDecimal,
	"ask_px":              DtypeDecimal,
	"min_price_increment": DtypeDecimal,
	"display_factor":      DtypeDecimal,
	"unit_of_measure_qty": DtypeDecimal,
	"high_limit_price":    DtypeDecimal,
	"low_limit_price":     DtypeDecimal,
	"volume":              DtypeInt64,
	"size":                DtypeInt64,
	"depth":               DtypeInt64,
	"sequence":            DtypeInt64,
	"trade_count":         DtypeInt64,
	"stat_type":           DtypeInt64,
	"quantity":            DtypeInt64,
	"update_action":       DtypeInt64,
	"leg_count":           DtypeInt64,
	"bid_sz":              DtypeInt64,
	"ask_sz":              DtypeInt64,
	"extra":               DtypeString,
}

// nullableSourceFields are source attributes whose value may legitimately
// be absent on a given record (optional vendor fields), so the derived
// ColumnSpec allows null without it being a missing-required-column error.
var nullableSourceFields = map[string]bool{
	"trade_count": true, "bid_px": true, "ask_px": true, "bid_sz": true,
	"ask_sz": true, "price": true, "quantity": true,
	"high_limit_price": true, "low_limit_price": true, "symbol": true,
	"extra": true,
}

// BuildColumnSpecs derives the dtype contract for a schema's destination
// columns from its field_mappings, keyed by destination column name.
func BuildColumnSpecs(fieldMappings map[string]string) map[string]ColumnSpec {
	specs := make(map[string]ColumnSpec, len(fieldMappings))
	for srcAttr, dst := range fieldMappings {
		kind, known := sourceFieldKinds[srcAttr]
		if !known {
			kind = DtypeString
		}
		specs[dst] = ColumnSpec{Name: dst, Kind: kind, Nullable: nullableSourceFields[srcAttr]}
	}
	return specs
}
