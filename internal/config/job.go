package config

import (
	"fmt"
	"time"

	"github.com/databento-ingest/tsdb-ingestor/internal/model"
)

// SymbolType enumerates the symbology a job's symbols are expressed in
// (spec §3).
type SymbolType string

const (
	SymbolTypeContinuous   SymbolType = "continuous"
	SymbolTypeParent       SymbolType = "parent"
	SymbolTypeNative       SymbolType = "native"
	SymbolTypeInstrumentID SymbolType = "instrument_id"
)

func (t SymbolType) Valid() bool {
	switch t {
	case SymbolTypeContinuous, SymbolTypeParent, SymbolTypeNative, SymbolTypeInstrumentID:
		return true
	}
	return false
}

// CalendarFilter is a pluggable market-calendar hook. Its concrete
// implementation (holiday/weekend heuristics) is an external collaborator
// per spec §1 "out of scope"; the core only needs the contract.
type CalendarFilter interface {
	// HasTradingDay reports whether [start, end) contains at least one
	// trading day, used by the adapter to skip whole chunks (spec §4.2.1).
	HasTradingDay(start, end time.Time) bool
}

// Job is an immutable, accepted ingestion job definition (spec §3).
type Job struct {
	Name          string
	Vendor        string
	Dataset       string
	Schema        model.Schema
	Symbols       []string
	SymbolType    SymbolType
	StartDate     time.Time
	EndDate       time.Time
	ChunkDays     int
	CalendarFilter CalendarFilter // optional
}

// Validate enforces job-level invariants that must hold before a job is
// accepted (spec §6: "start <= end is enforced").
func (j Job) Validate() error {
	if j.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if j.Dataset == "" {
		return fmt.Errorf("job %q: dataset is required", j.Name)
	}
	if _, err := model.Describe(j.Schema); err != nil {
		return fmt.Errorf("job %q: %w", j.Name, err)
	}
	if len(j.Symbols) == 0 {
		return fmt.Errorf("job %q: at least one symbol is required", j.Name)
	}
	if !j.SymbolType.Valid() {
		return fmt.Errorf("job %q: invalid symbol_type %q", j.Name, j.SymbolType)
	}
	if j.StartDate.After(j.EndDate) {
		return fmt.Errorf("job %q: start_date %s must be <= end_date %s", j.Name, j.StartDate, j.EndDate)
	}
	if j.ChunkDays <= 0 {
		return fmt.Errorf("job %q: chunk_days must be positive, got %d", j.Name, j.ChunkDays)
	}
	return nil
}

// JobSpec is the on-disk YAML shape for a configured job (used by
// `list-jobs` and `ingest --job`). Schema/SymbolType are strings here and
// parsed/validated on load, matching the teacher's layered
// load-then-Validate() pattern (internal/config/providers.go).
type JobSpec struct {
	Name       string   `yaml:"name"`
	Vendor     string   `yaml:"vendor"`
	Dataset    string   `yaml:"dataset"`
	Schema     string   `yaml:"schema"`
	Symbols    []string `yaml:"symbols"`
	SymbolType string   `yaml:"symbol_type"`
	StartDate  string   `yaml:"start_date"`
	EndDate    string   `yaml:"end_date"`
	ChunkDays  int      `yaml:"chunk_days"`
}

const isoDateLayout = "2006-01-02"

// ToJob parses and validates a JobSpec into an immutable Job. Parse
// failures are Config errors, fatal at load time (spec §4.1, §7).
func (js JobSpec) ToJob(cal CalendarFilter) (Job, error) {
	schema, err := model.ParseSchema(js.Schema)
	if err != nil {
		return Job{}, fmt.Errorf("job %q: %w", js.Name, err)
	}
	start, err := time.ParseInLocation(isoDateLayout, js.StartDate, time.UTC)
	if err != nil {
		return Job{}, fmt.Errorf("job %q: invalid start_date %q: %w", js.Name, js.StartDate, err)
	}
	end, err := time.ParseInLocation(isoDateLayout, js.EndDate, time.UTC)
	if err != nil {
		return Job{}, fmt.Errorf("job %q: invalid end_date %q: %w", js.Name, js.EndDate, err)
	}
	chunkDays := js.ChunkDays
	if chunkDays == 0 {
		chunkDays = DefaultChunkingConfig().ChunkDays
	}
	job := Job{
		Name:           js.Name,
		Vendor:         js.Vendor,
		Dataset:        js.Dataset,
		Schema:         schema,
		Symbols:        js.Symbols,
		SymbolType:     SymbolType(js.SymbolType),
		StartDate:      start,
		EndDate:        end,
		ChunkDays:      chunkDays,
		CalendarFilter: cal,
	}
	if err := job.Validate(); err != nil {
		return Job{}, err
	}
	return job, nil
}
