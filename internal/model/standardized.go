package model

import "time"

// StandardizedRecord is the Rule Engine's output: a dictionary keyed by
// target column names for the schema's target table (spec §3). The
// orchestrator threads it from the Rule Engine (C4) to the Validator (C5)
// to the Loader (C7) without further reshaping.
type StandardizedRecord struct {
	Schema TargetTable
	Cols   map[string]interface{}
}

// Get returns a column value and whether it was present.
func (s StandardizedRecord) Get(col string) (interface{}, bool) {
	v, ok := s.Cols[col]
	return v, ok
}

// QuarantineStage names the pipeline stage that rejected a record.
type QuarantineStage string

const (
	StagePydantic  QuarantineStage = "pydantic"
	StageTransform QuarantineStage = "transform"
	StageValidate  QuarantineStage = "validate"
	StageLoad      QuarantineStage = "load"
)

// QuarantineEntry is a persisted rejected-record record (C6).
type QuarantineEntry struct {
	ID          string
	JobName     string
	Stage       QuarantineStage
	RuleName    string
	ErrorDetail string
	Payload     map[string]interface{}
	ReceivedAt  time.Time
}

// JobRunStats aggregates per-run counters emitted by the Orchestrator (C8).
type JobRunStats struct {
	RunID              string
	JobName            string
	Fetched            int64
	ValidatedPydantic  int64
	Transformed        int64
	ValidatedBusiness  int64
	Stored             int64
	Quarantined        int64
	Errors             int64
	ChunkCount         int64
	RepairedSymbols    int64
	StartedAt          time.Time
	FinishedAt         time.Time
}

// Duration returns wall-clock duration of the run.
func (s JobRunStats) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Accounted reports whether every fetched record was either stored,
// quarantined, or counted as an error — the spec §8 "exactly one of
// {advances, quarantined, fatal-abort}" invariant, checked in aggregate.
func (s JobRunStats) Accounted() bool {
	return s.Stored+s.Quarantined+s.Errors >= s.Fetched
}
