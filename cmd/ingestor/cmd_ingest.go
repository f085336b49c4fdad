package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/databento-ingest/tsdb-ingestor/internal/adapter/databento"
	"github.com/databento-ingest/tsdb-ingestor/internal/config"
	"github.com/databento-ingest/tsdb-ingestor/internal/metrics"
	"github.com/databento-ingest/tsdb-ingestor/internal/model"
	"github.com/databento-ingest/tsdb-ingestor/internal/orchestrator"
	"github.com/databento-ingest/tsdb-ingestor/internal/quarantine"
	"github.com/databento-ingest/tsdb-ingestor/internal/storage/postgres"
)

func newIngestCmd() *cobra.Command {
	var (
		vendorAPI       string
		rulesConfigPath string
		jobsFilePath    string
		jobName         string
		dataset         string
		schemaName      string
		symbolsCSV      []string
		symbolType      string
		startDateStr    string
		endDateStr      string
		force           bool
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run one ingestion job",
		Long: `Run a single ingestion job, either named from the configured jobs file
(--job) or described entirely on the command line (--dataset --schema
--symbols --start-date --end-date --stype-in).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := config.LoadSystemConfig(flagSystemConfig)
			if err != nil {
				return err
			}

			job, err := resolveJob(jobsFilePath, jobName, vendorAPI, dataset, schemaName, symbolsCSV, symbolType, startDateStr, endDateStr, sys.Chunking.ChunkDays)
			if err != nil {
				return err
			}
			if !force {
				if err := confirmDateRangeSane(job); err != nil {
					return err
				}
			}

			vendor, err := config.LoadVendorSecrets()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			db, tableSpecs, err := openStorage(ctx, sys)
			if err != nil {
				return err
			}
			defer db.Close()

			engine, err := loadRuleEngine(rulesConfigPath)
			if err != nil {
				return err
			}

			guard := databento.NewGuard(sys.Retry, 5, 1)
			client := databento.NewHTTPClient("", vendor.APIKey, guard)
			loader := postgres.NewLoader(db)
			sink := quarantine.NewSink(quarantine.NewFileMedium(sys.Quarantine.BaseDir))

			reg := metrics.NewRegistry(prometheus.NewRegistry())
			orch := orchestrator.New(engine, sys.Validation, tableSpecs, loader, sink, sys.Storage.BatchRows)

			start := time.Now()
			stats, runErr := orch.Run(ctx, client, job)
			reg.ObserveRun(job.Name, finalState(stats, runErr), stats.Fetched, stats.Transformed, stats.ValidatedBusiness, stats.Stored, stats.Quarantined, time.Since(start).Seconds())

			printJobSummary(job.Name, stats, runErr)
			if runErr != nil {
				return runErr
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&vendorAPI, "api", "databento", "vendor adapter to use for an ad hoc job (spec §1 §4.2: only databento is supported)")
	cmd.Flags().StringVar(&rulesConfigPath, "rules", "config/rules.yaml", "path to the vendor field-mapping rules YAML")
	cmd.Flags().StringVar(&jobsFilePath, "jobs-file", "config/jobs.yaml", "path to the jobs YAML used by --job")
	cmd.Flags().StringVar(&jobName, "job", "", "named job from the jobs file (mutually exclusive with the ad hoc flags below)")
	cmd.Flags().StringVar(&dataset, "dataset", "", "vendor dataset id (ad hoc job)")
	cmd.Flags().StringVar(&schemaName, "schema", "", "record schema (ohlcv|trades|tbbo|statistics|definition)")
	cmd.Flags().StringSliceVar(&symbolsCSV, "symbols", nil, "comma-delimited or repeated --symbols flags")
	cmd.Flags().StringVar(&symbolType, "stype-in", "native", "symbol_type (continuous|parent|native|instrument_id)")
	cmd.Flags().StringVar(&startDateStr, "start-date", "", "ISO start date (YYYY-MM-DD), inclusive")
	cmd.Flags().StringVar(&endDateStr, "end-date", "", "ISO end date (YYYY-MM-DD), inclusive")
	cmd.Flags().BoolVar(&force, "force", false, "skip the date-range sanity confirmation")

	return cmd
}

// resolveJob builds a config.Job either from the named jobs file or from
// the ad hoc flag set (spec §6 "ingest" key flags).
func resolveJob(jobsFilePath, jobName, vendorAPI, dataset, schemaName string, symbols []string, symbolType, startDateStr, endDateStr string, defaultChunkDays int) (config.Job, error) {
	if jobName != "" {
		jf, err := config.LoadJobsFile(jobsFilePath)
		if err != nil {
			return config.Job{}, err
		}
		spec, err := jf.FindJob(jobName)
		if err != nil {
			return config.Job{}, err
		}
		return spec.ToJob(nil)
	}

	if vendorAPI != "databento" {
		return config.Job{}, fmt.Errorf("unsupported --api %q (only 'databento' is supported, spec §1 non-goals)", vendorAPI)
	}
	if dataset == "" || schemaName == "" || startDateStr == "" || endDateStr == "" || len(symbols) == 0 {
		return config.Job{}, fmt.Errorf("either --job or all of --dataset --schema --symbols --start-date --end-date are required")
	}
	spec := config.JobSpec{
		Name:       fmt.Sprintf("%s-%s-adhoc", dataset, schemaName),
		Vendor:     vendorAPI,
		Dataset:    dataset,
		Schema:     schemaName,
		Symbols:    normalizeSymbols(symbols),
		SymbolType: symbolType,
		StartDate:  startDateStr,
		EndDate:    endDateStr,
		ChunkDays:  defaultChunkDays,
	}
	return spec.ToJob(nil)
}

// normalizeSymbols splits any comma-delimited entries a repeated --symbols
// flag produced (spec §6: "Symbols may be comma-delimited or repeated
// flags").
func normalizeSymbols(raw []string) []string {
	var out []string
	for _, r := range raw {
		for _, part := range strings.Split(r, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func confirmDateRangeSane(job config.Job) error {
	if job.EndDate.Sub(job.StartDate) > 366*24*time.Hour {
		return fmt.Errorf("job %q spans more than a year (%s to %s); re-run with --force to proceed", job.Name, job.StartDate.Format("2006-01-02"), job.EndDate.Format("2006-01-02"))
	}
	return nil
}

func finalState(stats model.JobRunStats, runErr error) string {
	switch {
	case runErr != nil:
		return "FAILED"
	case stats.Quarantined > 0:
		return "QUARANTINED_PARTIAL"
	default:
		return "DONE"
	}
}

func printJobSummary(jobName string, stats model.JobRunStats, runErr error) {
	log.Info().Str("job", jobName).
		Int64("fetched", stats.Fetched).
		Int64("transformed", stats.Transformed).
		Int64("validated", stats.ValidatedBusiness).
		Int64("stored", stats.Stored).
		Int64("quarantined", stats.Quarantined).
		Int64("repaired_symbols", stats.RepairedSymbols).
		Dur("duration", stats.Duration()).
		Str("final_state", finalState(stats, runErr)).
		Msg("ingest job summary")
}
