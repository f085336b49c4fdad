// Package validate implements the Schema Validator (C5): dtype coercion
// checks and per-schema business invariants run against a batch of
// StandardizedRecord rows before they reach the Storage Loader (C7).
// Grounded on the teacher's internal/data/validate/schema.go, which runs a
// SchemaValidator.Validate pass over a typed record before it is allowed
// into persistence.
package validate

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DtypeKind names the column dtype the validator enforces (spec §4.4's
// "Dtype coercion (normative)" rules).
type DtypeKind int

const (
	DtypeString DtypeKind = iota
	DtypeInt64
	DtypeDecimal
	DtypeTimestamp
)

// ColumnSpec declares one StandardizedRecord column's expected dtype.
type ColumnSpec struct {
	Name     string
	Kind     DtypeKind
	Nullable bool
}

// CheckColumn enforces the dtype coercion invariants for one column value:
// nullable ints must arrive as a nullable container (nil or int64, never a
// float standing in for a missing value), decimals must retain full
// precision (never float64), and timestamps must be UTC (never a naive
// zero-location time.Time).
func CheckColumn(spec ColumnSpec, v interface{}) error {
	if v == nil {
		if spec.Nullable {
			return nil
		}
		return fmt.Errorf("column %q is required but null", spec.Name)
	}
	switch spec.Kind {
	case DtypeInt64:
		if _, ok := v.(int64); !ok {
			return fmt.Errorf("column %q must be a nullable int64 container, got %T (naive float-with-NaN inference is forbidden)", spec.Name, v)
		}
	case DtypeDecimal:
		if _, ok := v.(decimal.Decimal); !ok {
			return fmt.Errorf("column %q must retain full decimal precision, got %T (binary floating point is forbidden)", spec.Name, v)
		}
	case DtypeTimestamp:
		t, ok := v.(time.Time)
		if !ok {
			return fmt.Errorf("column %q must be a time.Time, got %T", spec.Name, v)
		}
		if t.Location() != time.UTC {
			return fmt.Errorf("column %q timestamp must be UTC-normalized, got location %s (naive timestamps are rejected)", spec.Name, t.Location())
		}
	case DtypeString:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("column %q must be a string, got %T", spec.Name, v)
		}
	}
	return nil
}
