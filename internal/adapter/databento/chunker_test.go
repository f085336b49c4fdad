package databento

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSplitChunksEvenDivision(t *testing.T) {
	chunks := SplitChunks(day(2024, 1, 1), day(2024, 1, 4), 2)
	require.Len(t, chunks, 2)
	assert.True(t, chunks[0].Start.Equal(day(2024, 1, 1)))
	assert.True(t, chunks[0].End.Equal(day(2024, 1, 3)))
	assert.True(t, chunks[1].Start.Equal(day(2024, 1, 3)))
	assert.True(t, chunks[1].End.Equal(day(2024, 1, 5)))
}

func TestSplitChunksPartialFinal(t *testing.T) {
	chunks := SplitChunks(day(2024, 1, 1), day(2024, 1, 5), 2)
	require.Len(t, chunks, 3)
	last := chunks[len(chunks)-1]
	assert.True(t, last.End.Equal(day(2024, 1, 6)))
	assert.True(t, last.Start.Before(last.End))
}

func TestSplitChunksSingleDay(t *testing.T) {
	chunks := SplitChunks(day(2024, 1, 15), day(2024, 1, 15), 1)
	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].Start.Equal(day(2024, 1, 15)))
	assert.True(t, chunks[0].End.Equal(day(2024, 1, 16)))
}

func TestFilterTradingChunksSkipsNonTradingWholeChunks(t *testing.T) {
	chunks := SplitChunks(day(2024, 1, 1), day(2024, 1, 4), 1)
	// Pretend only Jan 2 is a trading day.
	filtered := FilterTradingChunks(chunks, func(start, end time.Time) bool {
		return start.Equal(day(2024, 1, 2))
	})
	require.Len(t, filtered, 1)
	assert.True(t, filtered[0].Start.Equal(day(2024, 1, 2)))
}

func TestFilterTradingChunksNilPassesThrough(t *testing.T) {
	chunks := SplitChunks(day(2024, 1, 1), day(2024, 1, 2), 1)
	assert.Equal(t, chunks, FilterTradingChunks(chunks, nil))
}
