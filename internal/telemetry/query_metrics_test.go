package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		latency time.Duration
		want    LatencyBucket
	}{
		{5 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{75 * time.Millisecond, BucketP100},
		{499 * time.Millisecond, BucketP500},
		{2 * time.Second, BucketP1000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LatencyToBucket(tt.latency), tt.latency.String())
	}
}

func TestCircularBuffer_EvictsOldest(t *testing.T) {
	// Given: a buffer of three
	b := NewCircularBuffer[int](3)

	// When: five items are added
	for i := 1; i <= 5; i++ {
		b.Add(i)
	}

	// Then: the last three remain, oldest first
	assert.Equal(t, []int{3, 4, 5}, b.Items())
	assert.Equal(t, 3, b.Size())
}

func TestCircularBuffer_EmptyReturnsEmptySlice(t *testing.T) {
	b := NewCircularBuffer[string](0)
	assert.NotNil(t, b.Items())
	assert.Empty(t, b.Items())
}

func TestQueryMetrics_Record(t *testing.T) {
	// Given: a collector
	m := NewQueryMetrics(DefaultQueryMetricsConfig())

	// When: recording a mix of queries
	m.Record(QueryEvent{Query: "2024 invoices", Mode: "hybrid", ResultCount: 4, Latency: 20 * time.Millisecond})
	m.Record(QueryEvent{Query: "2024 Invoices ", Mode: "hybrid", ResultCount: 4, Latency: 5 * time.Millisecond})
	m.Record(QueryEvent{Query: "passport scan", Mode: "vector", ResultCount: 0, Latency: time.Second, Degraded: true})

	// Then: the snapshot reflects every event
	s := m.Snapshot()
	assert.Equal(t, int64(3), s.TotalQueries)
	assert.Equal(t, int64(2), s.ModeCounts["hybrid"])
	assert.Equal(t, int64(1), s.ModeCounts["vector"])
	assert.Equal(t, int64(1), s.ZeroResultCount)
	assert.Equal(t, []string{"passport scan"}, s.ZeroResultQueries)
	assert.Equal(t, int64(1), s.DegradedCount)
	assert.Equal(t, int64(1), s.ExactRepeatCount)
	assert.InDelta(t, 33.33, s.ZeroResultPercentage(), 0.01)

	require.NotEmpty(t, s.TopTerms)
	assert.Equal(t, "2024", s.TopTerms[0].Term)
	assert.Equal(t, int64(2), s.TopTerms[0].Count)
}
