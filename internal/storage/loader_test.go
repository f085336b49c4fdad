package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/databento-ingest/tsdb-ingestor/internal/model"
)

func TestDefaultTableSpecs_CoversEveryTargetTable(t *testing.T) {
	specs := DefaultTableSpecs("databento")
	for _, schema := range model.Schemas() {
		descriptor, err := model.Describe(schema)
		assert.NoError(t, err)
		spec, ok := specs[descriptor.TargetTable]
		assert.Truef(t, ok, "missing table spec for %s", descriptor.TargetTable)
		assert.NotEmpty(t, spec.Table)
		assert.NotEmpty(t, spec.NaturalKeyColumns)
		assert.Equal(t, "databento", spec.DefaultExchange)
	}
}

func TestDefaultTableSpecs_DefinitionUsesRawSymbolColumn(t *testing.T) {
	specs := DefaultTableSpecs("databento")
	assert.Equal(t, "raw_symbol", specs[model.TableDefinition].SymbolColumn)
}
