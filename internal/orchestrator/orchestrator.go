// Package orchestrator implements the Pipeline Orchestrator (C8): the
// per-job driving loop wiring the Vendor Adapter (C3) through the Rule
// Engine (C4), Schema Validator (C5), and Storage Loader (C7), routing
// rejects to the Quarantine Sink (C6) and aggregating JobRunStats.
// Grounded on the teacher's internal/scheduler/scheduler.go: a job-driving
// loop that reads config, runs a unit of work, and reports a structured
// result, generalized from "run one scan job" to "drain one ingest job's
// adapter to completion."
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/databento-ingest/tsdb-ingestor/internal/adapter/databento"
	"github.com/databento-ingest/tsdb-ingestor/internal/config"
	"github.com/databento-ingest/tsdb-ingestor/internal/model"
	"github.com/databento-ingest/tsdb-ingestor/internal/quarantine"
	"github.com/databento-ingest/tsdb-ingestor/internal/rules"
	"github.com/databento-ingest/tsdb-ingestor/internal/storage"
	"github.com/databento-ingest/tsdb-ingestor/internal/validate"
)

// State names one phase of the per-batch state machine (spec §4.7). The
// transactional/state-machine unit here is a load batch bounded by
// StorageConfig.BatchRows, not the raw vendor chunk: chunking (C3) paginates
// the vendor fetch, while batching (here) bounds loader memory and
// transaction size — the two are independent knobs, and conflating them
// would force chunk_days to double as a throughput tuning parameter. This
// resolves spec §9's open question on transactional granularity.
type State string

const (
	StatePlanned             State = "PLANNED"
	StateFetching            State = "FETCHING"
	StateTransforming        State = "TRANSFORMING"
	StateValidating          State = "VALIDATING"
	StateLoading             State = "LOADING"
	StateDone                State = "DONE"
	StateQuarantinedPartial  State = "QUARANTINED_PARTIAL"
	StateFailed              State = "FAILED"
)

// Orchestrator is the C8 Pipeline Orchestrator.
type Orchestrator struct {
	engine     *rules.Engine
	validation config.ValidationConfig
	tableSpecs map[model.TargetTable]storage.TableSpec
	loader     storage.Loader
	sink       *quarantine.Sink
	batchRows  int
}

// New builds an Orchestrator. tableSpecs must have an entry for every
// target table a configured schema_mappings entry can produce.
func New(engine *rules.Engine, validation config.ValidationConfig, tableSpecs map[model.TargetTable]storage.TableSpec, loader storage.Loader, sink *quarantine.Sink, batchRows int) *Orchestrator {
	if batchRows <= 0 {
		batchRows = 1000
	}
	return &Orchestrator{
		engine: engine, validation: validation, tableSpecs: tableSpecs,
		loader: loader, sink: sink, batchRows: batchRows,
	}
}

// Run drains one job's adapter to completion, returning aggregated stats.
// A non-nil error means the job is FAILED; Run itself never panics on a
// per-record or per-batch failure — those are routed to Quarantine and the
// run continues (spec §4.7 "never silently drops a record").
func (o *Orchestrator) Run(ctx context.Context, client databento.VendorClient, job config.Job) (model.JobRunStats, error) {
	stats := model.JobRunStats{RunID: uuid.NewString(), JobName: job.Name, StartedAt: nowFn()}
	state := StatePlanned

	mapping, ok := o.engine.SchemaMapping(job.Schema)
	if !ok {
		return stats, fmt.Errorf("no rule engine mapping configured for schema %q", job.Schema)
	}
	descriptor, err := model.Describe(job.Schema)
	if err != nil {
		return stats, err
	}
	tableSpec, ok := o.tableSpecs[descriptor.TargetTable]
	if !ok {
		return stats, fmt.Errorf("no table spec configured for target table %q", descriptor.TargetTable)
	}

	validator := validate.NewValidator(mapping.FieldMappings, job.Symbols, o.validation.MaxErrorsPerBatch, o.validation.QuarantineEnabled)

	adapter := databento.NewAdapter(client, job)
	it, err := adapter.Fetch(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to plan fetch: %w", err)
	}
	defer it.Close()

	state = StateFetching
	quarantinedAny := false
	pending := make([]model.TypedRecord, 0, o.batchRows)

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		didQuarantine, err := o.processBatch(ctx, job, mapping, tableSpec, validator, pending, &stats)
		pending = pending[:0]
		if err != nil {
			return err
		}
		if didQuarantine {
			quarantinedAny = true
		}
		return nil
	}

	for {
		res, more, err := it.Next()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				stats.FinishedAt = nowFn()
				log.Info().Str("job", job.Name).Msg("ingest cancelled cleanly, no partial batch flushed")
				return stats, nil
			}
			stats.FinishedAt = nowFn()
			stats.Errors++
			return stats, fmt.Errorf("job %q failed (state=%s): %w", job.Name, state, err)
		}
		if !more {
			break
		}
		stats.Fetched++
		if res.Quarantine != nil {
			if err := o.sink.Record(ctx, stampReceived(*res.Quarantine)); err != nil {
				stats.FinishedAt = nowFn()
				return stats, fmt.Errorf("failed to record quarantine entry: %w", err)
			}
			stats.Quarantined++
			quarantinedAny = true
			continue
		}
		stats.ValidatedPydantic++
		pending = append(pending, *res.Record)
		if len(pending) >= o.batchRows {
			if err := flush(); err != nil {
				stats.FinishedAt = nowFn()
				return stats, err
			}
		}
	}
	if err := flush(); err != nil {
		stats.FinishedAt = nowFn()
		return stats, err
	}

	stats.FinishedAt = nowFn()
	if quarantinedAny {
		state = StateQuarantinedPartial
	} else {
		state = StateDone
	}
	log.Info().Str("job", job.Name).Str("final_state", string(state)).
		Int64("fetched", stats.Fetched).Int64("stored", stats.Stored).
		Int64("quarantined", stats.Quarantined).Msg("job run complete")
	return stats, nil
}

// processBatch runs one batch through transform, validate, and load,
// returning whether anything in it was quarantined. A returned error means
// the job must be marked FAILED (spec §4.7's FAILED transitions).
func (o *Orchestrator) processBatch(ctx context.Context, job config.Job, mapping rules.SchemaMapping, spec storage.TableSpec, validator *validate.Validator, batch []model.TypedRecord, stats *model.JobRunStats) (bool, error) {
	quarantinedAny := false
	skipOnViolation := o.engine.GlobalSettings().SkipValidationErrors

	rows := make([]validate.Row, 0, len(batch))
	for _, rec := range batch {
		std, violation, err := o.engine.Apply(rec)
		if err != nil {
			return quarantinedAny, fmt.Errorf("rule engine error: %w", err)
		}
		if violation != nil {
			if !skipOnViolation {
				return quarantinedAny, fmt.Errorf("transformation rule violated and skip_validation_errors is false: %w", violation)
			}
			if err := o.sink.Record(ctx, stampReceived(model.QuarantineEntry{
				JobName: job.Name, Stage: model.StageTransform,
				RuleName: violation.RuleName, ErrorDetail: violation.Error(),
			})); err != nil {
				return quarantinedAny, fmt.Errorf("failed to record quarantine entry: %w", err)
			}
			stats.Quarantined++
			quarantinedAny = true
			continue
		}
		stats.Transformed++
		rows = append(rows, validate.Row{Typed: rec, Standardized: std})
	}

	result, err := validator.ValidateBatch(job.Name, rows)
	stats.RepairedSymbols += result.RepairedSymbols
	for _, q := range result.Quarantined {
		if err := o.sink.Record(ctx, stampReceived(q)); err != nil {
			return quarantinedAny, fmt.Errorf("failed to record quarantine entry: %w", err)
		}
		stats.Quarantined++
		quarantinedAny = true
	}
	if err != nil {
		var aborted *validate.ErrBatchAborted
		if errors.As(err, &aborted) {
			return quarantinedAny, fmt.Errorf("validation batch aborted: %w", err)
		}
		var disabled *validate.ErrQuarantineDisabled
		if errors.As(err, &disabled) {
			return quarantinedAny, fmt.Errorf("validation failure is fatal: %w", err)
		}
		return quarantinedAny, err
	}
	stats.ValidatedBusiness += int64(len(result.Survivors))

	if len(result.Survivors) == 0 {
		return quarantinedAny, nil
	}

	loadRows := make([]model.StandardizedRecord, 0, len(result.Survivors))
	for _, r := range result.Survivors {
		loadRows = append(loadRows, r.Standardized)
	}
	loadStats, err := o.loader.LoadBatch(ctx, spec, loadRows)
	if err != nil {
		log.Warn().Err(err).Str("job", job.Name).Msg("load batch failed, quarantining and continuing")
		for range loadRows {
			if qerr := o.sink.Record(ctx, stampReceived(model.QuarantineEntry{
				JobName: job.Name, Stage: model.StageLoad, ErrorDetail: err.Error(),
			})); qerr != nil {
				return quarantinedAny, fmt.Errorf("failed to record quarantine entry after load failure: %w", qerr)
			}
		}
		stats.Quarantined += int64(len(loadRows))
		quarantinedAny = true
		return quarantinedAny, nil
	}
	stats.Stored += int64(loadStats.Upserted)
	return quarantinedAny, nil
}

func stampReceived(entry model.QuarantineEntry) model.QuarantineEntry {
	if entry.ReceivedAt.IsZero() {
		entry.ReceivedAt = nowFn()
	}
	return entry
}

// nowFn is overridable in tests.
var nowFn = time.Now
