// Package quarantine implements the Quarantine Sink (C6): an append-only,
// at-least-once store for rejected records, pluggable over storage medium.
// Grounded on the teacher's internal/data/cold package (cold/csv.go,
// cold/parquet.go), which writes immutable, date-partitioned files under a
// base directory rather than mutating in place.
package quarantine

import (
	"context"
	"time"

	"github.com/databento-ingest/tsdb-ingestor/internal/model"
)

// Medium is the pluggable storage contract a Sink writes through (spec
// §4.5: "Storage medium is pluggable"). FileMedium is the default.
type Medium interface {
	// Write appends entry under the given job/validation partition key and
	// day. Must be safe to call concurrently for different jobs and must
	// never overwrite a prior entry's file (at-least-once append).
	Write(ctx context.Context, partition string, day time.Time, entry model.QuarantineEntry) error
	// Prune removes entries older than cutoff for the given partition,
	// returning the number of items the medium removed (FileMedium counts
	// whole day-partition directories, not individual entries).
	Prune(ctx context.Context, partition string, cutoff time.Time) (int, error)
}

// Sink is the C6 Quarantine Sink.
type Sink struct {
	medium Medium
}

// NewSink builds a Sink over the given storage medium.
func NewSink(medium Medium) *Sink {
	return &Sink{medium: medium}
}

// Record persists one QuarantineEntry, keyed by job name and received_at
// (spec §4.5's contract). A zero ReceivedAt is stamped with now by the
// caller before this is invoked — Record never synthesizes a timestamp
// itself since that would make retries non-idempotent on replay.
func (s *Sink) Record(ctx context.Context, entry model.QuarantineEntry) error {
	partition := entry.JobName
	if partition == "" {
		partition = string(entry.Stage)
	}
	return s.medium.Write(ctx, partition, entry.ReceivedAt, entry)
}

// Prune removes entries older than the retention window for one partition
// (job name or validation stage), implementing the spec §4.5 age-based
// pruning requirement.
func (s *Sink) Prune(ctx context.Context, partition string, retention time.Duration) (int, error) {
	cutoff := nowFn().Add(-retention)
	return s.medium.Prune(ctx, partition, cutoff)
}

// nowFn is overridable in tests; production code always calls time.Now.
var nowFn = time.Now
