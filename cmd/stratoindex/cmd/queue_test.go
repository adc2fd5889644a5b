package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/stratoindex/internal/logging"
	"github.com/Aman-CERP/stratoindex/internal/queue"
	"github.com/Aman-CERP/stratoindex/internal/ui"
)

func TestQueueCmd_StatsFlushLifecycle(t *testing.T) {
	// Given: two items persisted in the queue
	dataDir := isolate(t)
	seedQueue(t, dataDir, "/docs/invoice.pdf", "/docs/report.txt")

	// When: reading stats
	out, err := runCmd(t, "queue", "stats", "--json")

	// Then: both are queued
	require.NoError(t, err)
	var stats queue.Stats
	decode(t, out, &stats)
	assert.Equal(t, 2, stats.Queued)

	// When: flushing with plain output
	out, err = runCmd(t, "queue", "flush", "--plain")

	// Then: both are written
	require.NoError(t, err)
	assert.Contains(t, out, "Flush ok: 2/2 processed")
	assert.NotContains(t, out, "still queued")

	// And: the queue is empty and the store holds them
	out, err = runCmd(t, "queue", "stats", "--json")
	require.NoError(t, err)
	decode(t, out, &stats)
	assert.Zero(t, stats.Queued)
	assert.Equal(t, int64(2), stats.Processed)

	out, err = runCmd(t, "status", "--json")
	require.NoError(t, err)
	var info ui.StatusInfo
	decode(t, out, &info)
	assert.Equal(t, 2, info.Vectors.Files)
	assert.True(t, info.Vectors.Durable)
	assert.Positive(t, info.DBSize)
}

func TestQueueCmd_FlushJSON(t *testing.T) {
	dataDir := isolate(t)
	seedQueue(t, dataDir, "/docs/a.pdf")

	out, err := runCmd(t, "queue", "flush", "--json")

	require.NoError(t, err)
	var res queue.FlushResult
	decode(t, out, &res)
	assert.Equal(t, queue.FlushOK, res.Status)
	assert.Equal(t, 1, res.Processed)
}

func TestQueueCmd_FlushEmpty(t *testing.T) {
	isolate(t)

	out, err := runCmd(t, "queue", "flush", "--plain")

	require.NoError(t, err)
	assert.Contains(t, out, "Flush empty")
}

func TestQueueCmd_EmptyListings(t *testing.T) {
	isolate(t)

	out, err := runCmd(t, "queue", "failed")
	require.NoError(t, err)
	assert.Contains(t, out, "No failed items")

	out, err = runCmd(t, "queue", "dead-letters")
	require.NoError(t, err)
	assert.Contains(t, out, "No dead letters")

	out, err = runCmd(t, "queue", "dead-letters", "--clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Cleared 0 dead letters")

	out, err = runCmd(t, "queue", "requeue")
	require.NoError(t, err)
	assert.Contains(t, out, "Requeued 0 failed items")

	out, err = runCmd(t, "queue", "failed", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestQueueCmd_LockedDataDir(t *testing.T) {
	// Given: another process holds the data directory
	dataDir := isolate(t)
	held, err := openStack(t.Context(), testConfig(t, dataDir), logging.Discard(), stackOptions{})
	require.NoError(t, err)
	defer func() { _ = held.Close() }()

	// When: a command opens it locally
	_, err = runCmd(t, "queue", "stats", "--local")

	// Then: it reports the lock
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in use")
}
