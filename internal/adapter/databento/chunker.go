package databento

import "time"

// Chunk is a contiguous, half-open date sub-range ([Start, End)) processed
// as a unit by the pipeline (spec §4.2 step 1, glossary "Chunk").
type Chunk struct {
	Start time.Time
	End   time.Time
	Index int
}

// SplitChunks splits [start, end] into contiguous half-open chunks of
// width chunkDays, with a final partial chunk if the range doesn't divide
// evenly. end is treated as inclusive at day granularity (spec §6), so the
// last chunk's End is end + 1 day.
func SplitChunks(start, end time.Time, chunkDays int) []Chunk {
	if chunkDays <= 0 {
		chunkDays = 1
	}
	endExclusive := end.AddDate(0, 0, 1)
	var chunks []Chunk
	cur := start
	idx := 0
	for cur.Before(endExclusive) {
		next := cur.AddDate(0, 0, chunkDays)
		if next.After(endExclusive) {
			next = endExclusive
		}
		chunks = append(chunks, Chunk{Start: cur, End: next, Index: idx})
		cur = next
		idx++
	}
	return chunks
}

// FilterTradingChunks drops whole chunks where no day in [c.Start, c.End)
// is a trading day, per the optional calendar filter (spec §4.2 step 1).
// A nil filter passes every chunk through unfiltered.
func FilterTradingChunks(chunks []Chunk, hasTradingDay func(start, end time.Time) bool) []Chunk {
	if hasTradingDay == nil {
		return chunks
	}
	out := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		if hasTradingDay(c.Start, c.End) {
			out = append(out, c)
		}
	}
	return out
}
