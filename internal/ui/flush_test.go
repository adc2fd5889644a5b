package ui

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/stratoindex/internal/queue"
	"github.com/Aman-CERP/stratoindex/internal/store"
)

var badID = store.NamespaceFile.Prefix() + "/docs/bad.pdf"

// rejectingSink accepts everything except ids listed in bad.
type rejectingSink struct {
	bad map[string]bool
}

func (s *rejectingSink) Upsert(_ context.Context, _ store.Namespace, rec store.Record) store.Result {
	if s.bad[rec.ID] {
		return store.Structural(store.ReasonInvalidVector, errors.New("vector rejected"))
	}
	return store.Ok()
}

// recordingRenderer captures renderer calls.
type recordingRenderer struct {
	events   []ProgressEvent
	errors   []ErrorEvent
	complete *CompletionStats
}

func (r *recordingRenderer) Start(context.Context) error { return nil }
func (r *recordingRenderer) UpdateProgress(e ProgressEvent) { r.events = append(r.events, e) }
func (r *recordingRenderer) AddError(e ErrorEvent) { r.errors = append(r.errors, e) }
func (r *recordingRenderer) Complete(s CompletionStats) { r.complete = &s }
func (r *recordingRenderer) Stop() error { return nil }

func newTestQueue(t *testing.T, sink queue.Sink) *queue.Queue {
	t.Helper()
	cfg := queue.DefaultConfig()
	cfg.Dimension = 3
	q, err := queue.New(sink, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func enqueue(t *testing.T, q *queue.Queue, ids ...string) {
	t.Helper()
	for _, id := range ids {
		res := q.Enqueue(queue.Item{ID: id, Vector: []float32{0.1, 0.2, 0.3}, Type: queue.ItemFile})
		require.True(t, res.Success, id)
	}
}

func TestRunFlush_ReportsEveryItem(t *testing.T) {
	// Given: three queued items, one of which the store rejects
	q := newTestQueue(t, &rejectingSink{bad: map[string]bool{badID: true}})
	enqueue(t, q, "/docs/a.pdf", "/docs/b.pdf", "/docs/bad.pdf")
	r := &recordingRenderer{}

	// When: flushing through the renderer
	res := RunFlush(context.Background(), r, q)

	// Then: one progress event per item follows the opening event
	require.NotNil(t, res)
	assert.Equal(t, queue.FlushPartial, res.Status)
	require.Len(t, r.events, 4)
	assert.Equal(t, 3, r.events[0].Total)
	assert.Equal(t, 3, r.events[3].Current)

	// And: the rejected item is reported as an error
	require.Len(t, r.errors, 1)
	assert.Equal(t, badID, r.errors[0].ItemID)
	assert.False(t, r.errors[0].IsWarn)

	// And: the summary matches the result
	require.NotNil(t, r.complete)
	assert.Equal(t, "partial", r.complete.Status)
	assert.Equal(t, 3, r.complete.Attempted)
	assert.Equal(t, 2, r.complete.Processed)
	assert.Equal(t, 1, r.complete.Failed)
}

func TestRunFlush_EmptyQueue(t *testing.T) {
	q := newTestQueue(t, &rejectingSink{})
	r := &recordingRenderer{}

	res := RunFlush(context.Background(), r, q)

	assert.Equal(t, queue.FlushEmpty, res.Status)
	require.NotNil(t, r.complete)
	assert.Equal(t, "empty", r.complete.Status)
	assert.Empty(t, r.errors)
}

func TestRunFlush_PlainOutput(t *testing.T) {
	q := newTestQueue(t, &rejectingSink{})
	enqueue(t, q, "/docs/a.pdf")
	buf := &bytes.Buffer{}

	RunFlush(context.Background(), NewPlainRenderer(NewConfig(buf)), q)

	assert.Contains(t, buf.String(), "[FLUSH] 1/1 "+store.NamespaceFile.Prefix()+"/docs/a.pdf")
	assert.Contains(t, buf.String(), "Flush ok: 1/1 processed")
}

func TestCompletionFrom_NilResult(t *testing.T) {
	stats := CompletionFrom(nil, 5)

	assert.Equal(t, 5, stats.Remaining)
	assert.Empty(t, stats.Status)
}
