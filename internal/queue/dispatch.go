package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	serrors "github.com/Aman-CERP/stratoindex/internal/errors"
	"github.com/Aman-CERP/stratoindex/internal/store"
	"github.com/Aman-CERP/stratoindex/internal/telemetry"
)

// FlushOption adjusts a single flush.
type FlushOption func(*flushOptions)

type flushOptions struct {
	progress chan<- Progress
}

// WithProgress sends one Progress per completed item to ch. Sends block,
// so the caller must drain ch until Flush returns; a cancelled context
// unblocks them.
func WithProgress(ch chan<- Progress) FlushOption {
	return func(o *flushOptions) {
		o.progress = ch
	}
}

// Flush dispatches every queued item plus the transient failures due for
// retry. It never returns an error: each item's outcome is in the result.
func (q *Queue) Flush(ctx context.Context, opts ...FlushOption) *FlushResult {
	o := flushOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	start := time.Now()
	res := &FlushResult{}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		res.Status = FlushEmpty
		return res
	}
	items := q.takePendingLocked()
	prior := make(map[string]*FailedItem)
	retry := make([]string, 0, len(q.failed))
	for id, fi := range q.failed {
		if fi.Kind == FailureTransient {
			retry = append(retry, id)
		}
	}
	sort.Strings(retry)
	for _, id := range retry {
		fi := q.failed[id]
		prior[id] = fi
		items = append(items, fi.Item)
		delete(q.failed, id)
	}
	for _, it := range items {
		q.inFlight[it.ID] = it
	}
	q.mu.Unlock()

	res.Attempted = len(items)
	if len(items) == 0 {
		res.Status = FlushEmpty
		return res
	}

	ctx, span := telemetry.StartSpan(ctx, "queue.flush", attribute.Int("queue.items", len(items)))
	defer span.End()

	run := &flushRun{q: q, ctx: ctx, prior: prior, res: res, total: len(items), progress: o.progress}
	for _, g := range groupByNamespace(items) {
		for startIdx := 0; startIdx < len(g.items); startIdx += q.cfg.BatchSize {
			end := min(startIdx+q.cfg.BatchSize, len(g.items))
			q.dispatchBatch(ctx, run, g.ns, g.items[startIdx:end])
		}
	}

	res.Duration = time.Since(start)
	res.Status = flushStatus(res)
	sort.Slice(res.Failures, func(i, j int) bool { return res.Failures[i].ID < res.Failures[j].ID })

	q.mu.Lock()
	q.processed += int64(res.Processed)
	q.lastFlush = time.Now()
	hooks := q.hooks
	q.mu.Unlock()

	q.save()

	span.SetAttributes(
		attribute.Int("queue.processed", res.Processed),
		attribute.Int("queue.failed", res.Failed),
		attribute.Int("queue.dead_lettered", res.DeadLettered),
	)
	q.logger.Info("queue_flushed",
		slog.String("status", string(res.Status)),
		slog.Int("attempted", res.Attempted),
		slog.Int("processed", res.Processed),
		slog.Int("failed", res.Failed),
		slog.Int("dead_lettered", res.DeadLettered),
		slog.Int("dropped", res.Dropped),
		slog.Duration("duration", res.Duration))

	if res.Processed > 0 {
		for _, h := range hooks {
			h(res)
		}
	}
	return res
}

func flushStatus(res *FlushResult) FlushStatus {
	failures := res.Failed + res.DeadLettered
	switch {
	case res.Attempted == 0:
		return FlushEmpty
	case failures == 0:
		return FlushOK
	case res.Processed == 0:
		return FlushFailed
	default:
		return FlushPartial
	}
}

type nsGroup struct {
	ns    store.Namespace
	items []Item
}

func groupByNamespace(items []Item) []nsGroup {
	byNS := make(map[store.Namespace][]Item)
	for _, it := range items {
		ns, _ := it.Type.namespace()
		byNS[ns] = append(byNS[ns], it)
	}
	groups := make([]nsGroup, 0, len(byNS))
	for _, ns := range store.Namespaces {
		if len(byNS[ns]) > 0 {
			groups = append(groups, nsGroup{ns: ns, items: byNS[ns]})
		}
	}
	return groups
}

// dispatchBatch offers items to the batch write and falls back to
// per-item writes unless the batch failed structurally.
func (q *Queue) dispatchBatch(ctx context.Context, run *flushRun, ns store.Namespace, items []Item) {
	if bs, ok := q.sink.(BatchSink); ok {
		recs := make([]store.Record, len(items))
		for i, it := range items {
			recs[i] = toRecord(it)
		}
		br := callGuarded(ctx, q.cfg.BatchTimeout,
			func(c context.Context) store.BatchResult { return bs.UpsertBatch(c, ns, recs) },
			func(err error) store.BatchResult { return store.BatchResult{Result: store.Transient(store.ReasonTimeout, err)} })

		switch br.Outcome {
		case store.OutcomeOK:
			for _, it := range items {
				run.complete(it, store.Ok())
			}
			return
		case store.OutcomeStructural:
			q.logger.Warn("queue_batch_structural_failure",
				slog.String("namespace", string(ns)),
				slog.Int("items", len(items)),
				slog.String("reason", br.Reason),
				slog.Bool("requires_rebuild", br.RequiresRebuild))
			for _, it := range items {
				run.complete(it, br.Result)
			}
			return
		default:
			q.logger.Debug("queue_batch_fallback",
				slog.String("namespace", string(ns)),
				slog.Int("items", len(items)),
				slog.String("reason", br.Reason))
		}
	}
	q.dispatchEach(ctx, run, ns, items)
}

func (q *Queue) dispatchEach(ctx context.Context, run *flushRun, ns store.Namespace, items []Item) {
	var wg sync.WaitGroup
	for _, it := range items {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			r := callGuarded(ctx, q.cfg.ItemTimeout,
				func(c context.Context) store.Result { return q.sink.Upsert(c, ns, toRecord(it)) },
				func(err error) store.Result { return store.Transient(store.ReasonTimeout, err) })
			run.complete(it, r)
		}
		if err := q.pool.Submit(task); err != nil {
			wg.Done()
			run.complete(it, store.Transient("worker_pool", err))
		}
	}
	wg.Wait()
}

// callGuarded runs fn with a timeout and returns onErr's value if fn does
// not return in time, even when fn ignores its context. A panic in fn is
// reported through onErr too.
func callGuarded[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) T, onErr func(error) T) T {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan T, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- onErr(fmt.Errorf("store call panicked: %v", r))
			}
		}()
		done <- fn(cctx)
	}()

	select {
	case r := <-done:
		return r
	case <-cctx.Done():
		select {
		case r := <-done:
			return r
		default:
		}
		return onErr(serrors.New(serrors.ErrCodeStoreTimeout, "store call timed out", cctx.Err()))
	}
}

func toRecord(it Item) store.Record {
	meta := copyMeta(it.Meta)
	if it.Model != "" {
		if meta == nil {
			meta = make(map[string]any, 1)
		}
		if _, set := meta["model"]; !set {
			meta["model"] = it.Model
		}
	}
	return store.Record{ID: it.ID, Vector: it.Vector, Metadata: meta, UpdatedAt: it.UpdatedAt}
}

// flushRun collects per-item outcomes of one flush.
type flushRun struct {
	q        *Queue
	ctx      context.Context
	prior    map[string]*FailedItem
	progress chan<- Progress
	total    int

	mu        sync.Mutex
	completed int
	res       *FlushResult
}

func (r *flushRun) complete(it Item, sr store.Result) {
	r.q.mu.Lock()
	outcome, failure := r.q.applyLocked(it, sr, r.prior[it.ID])
	r.q.mu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	switch outcome {
	case OutcomeOK:
		r.res.Processed++
	case OutcomeFailed:
		r.res.Failed++
	case OutcomeDeadLetter:
		r.res.DeadLettered++
	case OutcomeDropped:
		r.res.Dropped++
	}
	if failure != nil {
		r.res.Failures = append(r.res.Failures, *failure)
	}

	r.completed++
	if r.progress == nil {
		return
	}
	p := Progress{Completed: r.completed, Total: r.total, ID: it.ID, Outcome: outcome, Err: sr.Err}
	select {
	case r.progress <- p:
	case <-r.ctx.Done():
	}
}

// applyLocked records the outcome of one dispatch. must hold mu.
func (q *Queue) applyLocked(it Item, sr store.Result, prior *FailedItem) (Outcome, *ItemFailure) {
	_, removed := q.removed[it.ID]
	delete(q.inFlight, it.ID)
	delete(q.removed, it.ID)

	if sr.OK() {
		return OutcomeOK, nil
	}

	kind := FailureTransient
	if sr.Outcome == store.OutcomeStructural {
		kind = FailureStructural
	}
	msg := resultError(sr)
	f := &ItemFailure{ID: it.ID, Error: msg, Kind: kind, RequiresRebuild: sr.RequiresRebuild}

	if removed {
		f.Dropped = true
		q.logger.Debug("queue_failure_dropped", slog.String("id", it.ID), slog.String("error", msg))
		return OutcomeDropped, f
	}

	now := time.Now().UTC()
	fi := &FailedItem{ID: it.ID, FirstFailedAt: now}
	if prior != nil {
		cp := *prior
		fi = &cp
	}
	fi.Error = msg
	fi.LastAttempt = now
	fi.Kind = kind
	fi.RequiresRebuild = sr.RequiresRebuild
	fi.Item = it
	if kind == FailureTransient {
		fi.Retries++
	}
	f.Retries = fi.Retries

	// Newer data for this id was enqueued during the flush; it owns the id.
	if _, superseded := q.pending[it.ID]; superseded {
		return OutcomeFailed, f
	}

	if kind == FailureTransient && fi.Retries > q.cfg.MaxRetries {
		q.dead = append(q.dead, DeadLetter{
			ID:                it.ID,
			Error:             msg,
			Meta:              copyMeta(it.Meta),
			FirstFailedAt:     fi.FirstFailedAt,
			Retries:           fi.Retries,
			PermanentlyFailed: true,
		})
		if over := len(q.dead) - q.cfg.MaxDeadLetters; over > 0 {
			q.dead = append([]DeadLetter(nil), q.dead[over:]...)
		}
		f.DeadLettered = true
		q.logger.Warn("queue_item_dead_lettered",
			slog.String("id", it.ID),
			slog.Int("retries", fi.Retries),
			slog.String("error", msg))
		return OutcomeDeadLetter, f
	}

	q.failed[it.ID] = fi
	q.logger.Debug("queue_item_failed",
		slog.String("id", it.ID),
		slog.String("kind", string(kind)),
		slog.Int("retries", fi.Retries),
		slog.String("error", msg))
	return OutcomeFailed, f
}

func resultError(sr store.Result) string {
	switch {
	case sr.Err != nil:
		return sr.Err.Error()
	case sr.Reason != "":
		return sr.Reason
	default:
		return "unknown store failure"
	}
}
