// Package metrics defines the Prometheus metrics the pipeline emits per
// stage (spec §4.7's fetch/transform/validate/load/quarantine counters),
// grounded on the teacher's internal/interfaces/http/metrics.go
// MetricsRegistry: one struct holding CounterVec/HistogramVec fields,
// registered into a dedicated prometheus.Registry rather than the global
// default so tests can build an isolated Registry per case.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry holds every metric the ingestor emits.
type Registry struct {
	FetchedRecords     *prometheus.CounterVec
	TransformedRecords *prometheus.CounterVec
	ValidatedRecords   *prometheus.CounterVec
	StoredRecords      *prometheus.CounterVec
	QuarantinedRecords *prometheus.CounterVec

	StageDuration *prometheus.HistogramVec
	JobDuration   *prometheus.HistogramVec

	JobsInFlight prometheus.Gauge
}

// NewRegistry builds and registers every metric against reg.
func NewRegistry(reg *prometheus.Registry) *Registry {
	m := &Registry{
		FetchedRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingestor_fetched_records_total",
			Help: "Total records pulled from the vendor adapter, by job.",
		}, []string{"job"}),

		TransformedRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingestor_transformed_records_total",
			Help: "Total records that passed the rule engine, by job.",
		}, []string{"job"}),

		ValidatedRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingestor_validated_records_total",
			Help: "Total records that passed business-rule validation, by job.",
		}, []string{"job"}),

		StoredRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingestor_stored_records_total",
			Help: "Total records upserted into storage, by job.",
		}, []string{"job"}),

		QuarantinedRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingestor_quarantined_records_total",
			Help: "Total records routed to quarantine, by job and stage.",
		}, []string{"job", "stage"}),

		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ingestor_stage_duration_seconds",
			Help:    "Duration of one pipeline stage invocation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),

		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ingestor_job_duration_seconds",
			Help:    "Wall-clock duration of a complete job run.",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 300, 900, 1800},
		}, []string{"job", "final_state"}),

		JobsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ingestor_jobs_in_flight",
			Help: "Number of jobs currently running.",
		}),
	}

	reg.MustRegister(
		m.FetchedRecords, m.TransformedRecords, m.ValidatedRecords,
		m.StoredRecords, m.QuarantinedRecords, m.StageDuration,
		m.JobDuration, m.JobsInFlight,
	)
	return m
}

// ObserveRun records one completed job's aggregate stats. Called once by
// the Orchestrator's caller (the ingest CLI command) after Run returns.
// The quarantined count is not recorded here: QuarantinedRecords is
// labelled by stage, which the aggregate does not carry.
func (m *Registry) ObserveRun(job string, finalState string, fetched, transformed, validated, stored, quarantined int64, seconds float64) {
	m.FetchedRecords.WithLabelValues(job).Add(float64(fetched))
	m.TransformedRecords.WithLabelValues(job).Add(float64(transformed))
	m.ValidatedRecords.WithLabelValues(job).Add(float64(validated))
	m.StoredRecords.WithLabelValues(job).Add(float64(stored))
	m.JobDuration.WithLabelValues(job, finalState).Observe(seconds)
}
