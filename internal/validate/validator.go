package validate

import (
	"fmt"

	"github.com/databento-ingest/tsdb-ingestor/internal/model"
)

// Row pairs a TypedRecord with the StandardizedRecord the Rule Engine
// produced from it, the unit the Validator checks together: business
// invariants against the typed variant (schema-intrinsic, independent of
// destination column naming), dtype coercion against the mapped columns.
type Row struct {
	Typed        model.TypedRecord
	Standardized model.StandardizedRecord
}

// Validator is the C5 Schema Validator for one schema.
type Validator struct {
	columnSpecs       map[string]ColumnSpec
	symbolColumn      string
	jobSymbols        []string
	maxErrorsPerBatch int
	quarantineEnabled bool
}

// NewValidator builds a Validator for one schema's destination columns.
// symbolColumn is derived from fieldMappings' own "symbol" entry, so a
// repaired symbol (see RepairSymbol) can be written back into the same
// destination column the Rule Engine mapped it to.
// quarantineEnabled mirrors spec §4.1's validation.quarantine_enabled: when
// false, a row that would otherwise be quarantined is fatal for the batch
// instead (ErrQuarantineDisabled), the way skip_validation_errors governs
// the Rule Engine's own violations one stage earlier.
func NewValidator(fieldMappings map[string]string, jobSymbols []string, maxErrorsPerBatch int, quarantineEnabled bool) *Validator {
	return &Validator{
		columnSpecs:       BuildColumnSpecs(fieldMappings),
		symbolColumn:      fieldMappings["symbol"],
		jobSymbols:        jobSymbols,
		maxErrorsPerBatch: maxErrorsPerBatch,
		quarantineEnabled: quarantineEnabled,
	}
}

// ErrQuarantineDisabled is returned when validation.quarantine_enabled is
// false and a row would otherwise have been quarantined (spec §4.1: "If
// false, failures are fatal").
type ErrQuarantineDisabled struct {
	RuleName    string
	ErrorDetail string
}

func (e *ErrQuarantineDisabled) Error() string {
	return fmt.Sprintf("validation failure is fatal (quarantine_enabled=false): %s: %s", e.RuleName, e.ErrorDetail)
}

// BatchResult is the outcome of validating one batch.
type BatchResult struct {
	Survivors       []Row
	Quarantined     []model.QuarantineEntry
	RepairedSymbols int64
}

// ErrBatchAborted is returned when the number of failing rows in a batch
// exceeds MaxErrorsPerBatch (spec §4.4 "Failure handling"); a limit of 0
// disables the check.
type ErrBatchAborted struct {
	FailureCount int
	Limit        int
}

func (e *ErrBatchAborted) Error() string {
	return fmt.Sprintf("batch aborted: %d validation failures exceeds max_errors_per_batch=%d", e.FailureCount, e.Limit)
}

// ValidateBatch runs dtype coercion, symbol repair, and business checks
// over every row, partitioning survivors from quarantined rows. If the
// number of quarantined rows exceeds a positive maxErrorsPerBatch, it
// returns ErrBatchAborted and the batch must be treated as fatal for the
// chunk; maxErrorsPerBatch == 0 means no limit.
func (v *Validator) ValidateBatch(jobName string, rows []Row) (BatchResult, error) {
	result := BatchResult{}
	for _, row := range rows {
		repaired, didRepair := RepairSymbol(row.Typed, v.jobSymbols)
		if didRepair {
			result.RepairedSymbols++
			row.Typed = repaired
			if v.symbolColumn != "" {
				if row.Standardized.Cols == nil {
					row.Standardized.Cols = map[string]interface{}{}
				}
				row.Standardized.Cols[v.symbolColumn] = repaired.Header().Symbol
			}
		}

		if err := row.Typed.Validate(); err != nil {
			if !v.quarantineEnabled {
				return result, &ErrQuarantineDisabled{RuleName: "business_invariant", ErrorDetail: err.Error()}
			}
			result.Quarantined = append(result.Quarantined, model.QuarantineEntry{
				JobName: jobName, Stage: model.StageValidate,
				RuleName: "business_invariant", ErrorDetail: err.Error(),
			})
			continue
		}

		if err := v.checkColumns(row.Standardized); err != nil {
			if !v.quarantineEnabled {
				return result, &ErrQuarantineDisabled{RuleName: "dtype_coercion", ErrorDetail: err.Error()}
			}
			result.Quarantined = append(result.Quarantined, model.QuarantineEntry{
				JobName: jobName, Stage: model.StageValidate,
				RuleName: "dtype_coercion", ErrorDetail: err.Error(),
			})
			continue
		}

		result.Survivors = append(result.Survivors, row)
	}

	if v.maxErrorsPerBatch > 0 && len(result.Quarantined) > v.maxErrorsPerBatch {
		return result, &ErrBatchAborted{FailureCount: len(result.Quarantined), Limit: v.maxErrorsPerBatch}
	}
	return result, nil
}

func (v *Validator) checkColumns(std model.StandardizedRecord) error {
	for name, spec := range v.columnSpecs {
		val, present := std.Get(name)
		if !present {
			if spec.Nullable {
				continue
			}
			return fmt.Errorf("required column %q missing from standardized record", name)
		}
		if err := CheckColumn(spec, val); err != nil {
			return err
		}
	}
	return nil
}
