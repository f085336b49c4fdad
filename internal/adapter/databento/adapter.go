// Package databento implements the Vendor Adapter (C3): a chunked,
// retrying fetch from Databento's historical range endpoint, yielding a
// lazy, pull-based sequence of TypedRecords. The pull contract follows
// the remediation in spec §9 ("Generator-based streaming across stages →
// pull-based iterator contract between adapter and orchestrator") rather
// than a push/channel model: the Orchestrator calls Next exactly as fast
// as it can drain a chunk, and backpressure is implicit.
package databento

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/databento-ingest/tsdb-ingestor/internal/config"
	"github.com/databento-ingest/tsdb-ingestor/internal/model"
)

// FetchResult is one item yielded by the adapter: either a successfully
// decoded record, or a quarantine entry describing why decoding failed
// (spec §4.2 step 3). Exactly one of the two is non-nil.
type FetchResult struct {
	Record     *model.TypedRecord
	Quarantine *model.QuarantineEntry
}

// Adapter is the C3 vendor adapter.
type Adapter struct {
	client VendorClient
	job    config.Job
}

// NewAdapter builds an Adapter for one job.
func NewAdapter(client VendorClient, job config.Job) *Adapter {
	return &Adapter{client: client, job: job}
}

// RecordIterator is the adapter's lazy sequence contract: finite, not
// restartable, must be drained (or Close'd) before release (spec §4.2).
type RecordIterator struct {
	ctx        context.Context
	adapter    *Adapter
	chunks     []Chunk
	chunkIdx   int
	decoder    *NDJSONDecoder
	body       io.ReadCloser
	fetchErr   error
	closed     bool
}

// Fetch plans chunks for the job and returns an iterator over its
// records. No network call happens until the first Next.
func (a *Adapter) Fetch(ctx context.Context) (*RecordIterator, error) {
	chunks := SplitChunks(a.job.StartDate, a.job.EndDate, a.job.ChunkDays)
	if a.job.CalendarFilter != nil {
		chunks = FilterTradingChunks(chunks, a.job.CalendarFilter.HasTradingDay)
	}
	return &RecordIterator{ctx: ctx, adapter: a, chunks: chunks}, nil
}

// Next returns the next FetchResult, or (zero, false, nil) when the
// sequence is exhausted. A non-nil error is fatal for the job (spec §7:
// non-retryable adapter errors abort).
func (it *RecordIterator) Next() (FetchResult, bool, error) {
	if it.closed {
		return FetchResult{}, false, fmt.Errorf("iterator already closed")
	}
	for {
		if err := it.ctx.Err(); err != nil {
			it.teardownCurrentChunk()
			return FetchResult{}, false, err
		}

		if it.decoder == nil {
			if !it.advanceChunk() {
				return FetchResult{}, false, nil
			}
			if it.fetchErr != nil {
				err := it.fetchErr
				it.fetchErr = nil
				return FetchResult{}, false, fmt.Errorf("chunk %d: %w", it.chunkIdx-1, err)
			}
			continue
		}

		raw, err := it.decoder.Next()
		if errors.Is(err, io.EOF) {
			it.teardownCurrentChunk()
			continue
		}
		if err != nil {
			it.teardownCurrentChunk()
			return FetchResult{}, false, fmt.Errorf("chunk %d: malformed vendor stream: %w", it.chunkIdx-1, err)
		}

		rec, decodeErr := DecodeRecord(it.adapter.job.Schema, raw, it.adapter.job.Symbols)
		if decodeErr != nil {
			log.Warn().Err(decodeErr).Str("job", it.adapter.job.Name).Msg("decode failure, quarantining record")
			return FetchResult{Quarantine: &model.QuarantineEntry{
				JobName:     it.adapter.job.Name,
				Stage:       model.StagePydantic,
				ErrorDetail: decodeErr.Error(),
				Payload:     raw,
			}}, true, nil
		}
		return FetchResult{Record: &rec}, true, nil
	}
}

// advanceChunk opens the next chunk's vendor stream. Returns false when no
// chunks remain.
func (it *RecordIterator) advanceChunk() bool {
	if it.chunkIdx >= len(it.chunks) {
		return false
	}
	chunk := it.chunks[it.chunkIdx]
	it.chunkIdx++

	body, err := it.adapter.client.FetchRange(it.ctx, RangeRequest{
		Dataset:    it.adapter.job.Dataset,
		Schema:     string(it.adapter.job.Schema),
		Symbols:    it.adapter.job.Symbols,
		SymbolType: string(it.adapter.job.SymbolType),
		Start:      chunk.Start,
		End:        chunk.End,
	})
	if err != nil {
		it.fetchErr = err
		it.decoder = nil
		it.body = nil
		return true // let Next() observe fetchErr and return it
	}
	it.body = body
	it.decoder = NewNDJSONDecoder(body)
	return true
}

// teardownCurrentChunk closes the in-flight chunk's stream. No partial
// chunk state is left observable (spec §5 cancellation semantics).
func (it *RecordIterator) teardownCurrentChunk() {
	if it.body != nil {
		_ = it.body.Close()
	}
	it.body = nil
	it.decoder = nil
}

// Close releases any in-flight chunk resources. Safe to call multiple
// times.
func (it *RecordIterator) Close() error {
	if it.closed {
		return nil
	}
	it.teardownCurrentChunk()
	it.closed = true
	return nil
}
