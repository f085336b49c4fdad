package model

import "fmt"

// TargetTable names the time-partitioned table a schema's rows land in.
type TargetTable string

const (
	TableOHLCV      TargetTable = "ohlcv"
	TableTrades     TargetTable = "trades"
	TableTBBO       TargetTable = "tbbo"
	TableStatistics TargetTable = "statistics"
	TableDefinition TargetTable = "definitions"
)

// ModelDescriptor is the per-schema registration: which TypedRecord variant
// a schema decodes into and which target table it upserts into. This is
// the Record Model Registry (C2) — a single typed, read-only table built
// once per process, mirroring the teacher's SchemaValidator.RegisterSchema
// bookkeeping (internal/data/validate/schema.go) but keyed by our closed
// set of Databento schemas instead of a free-form schema name.
type ModelDescriptor struct {
	Schema      Schema
	TargetTable TargetTable
}

var registry = map[Schema]ModelDescriptor{
	SchemaOHLCV:      {Schema: SchemaOHLCV, TargetTable: TableOHLCV},
	SchemaTrades:     {Schema: SchemaTrades, TargetTable: TableTrades},
	SchemaTBBO:       {Schema: SchemaTBBO, TargetTable: TableTBBO},
	SchemaStatistics: {Schema: SchemaStatistics, TargetTable: TableStatistics},
	SchemaDefinition: {Schema: SchemaDefinition, TargetTable: TableDefinition},
}

// Describe returns the registered descriptor for a schema, or an error if
// the schema is unknown — a configuration error per spec §4.3 ("missing
// destination column ... is a configuration error at load time").
func Describe(s Schema) (ModelDescriptor, error) {
	d, ok := registry[s]
	if !ok {
		return ModelDescriptor{}, fmt.Errorf("unknown schema %q", s)
	}
	return d, nil
}

// Schemas returns the closed set of supported schema identifiers.
func Schemas() []Schema {
	out := make([]Schema, 0, len(registry))
	for s := range registry {
		out = append(out, s)
	}
	return out
}

// ParseSchema validates a user/config-supplied schema string against the
// registry, used by Config loading (C1) and the CLI.
func ParseSchema(s string) (Schema, error) {
	candidate := Schema(s)
	if _, ok := registry[candidate]; !ok {
		return "", fmt.Errorf("unrecognized schema %q (supported: %v)", s, Schemas())
	}
	return candidate, nil
}
