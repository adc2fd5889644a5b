// Package queue buffers embedding-ready items and dispatches them to the
// vector store.
//
// Dispatch is batch-first: each group of items of one type is offered to
// the sink's batch write. A structural batch failure (for example a
// dimension mismatch) fails every item of the batch; a transient one, a
// timeout or a sink without a batch method falls back to per-item writes
// on a bounded worker pool. Transient per-item failures are retried on
// later flushes until MaxRetries is exceeded, then dead-lettered.
// Structural failures are parked until RequeueFailed.
//
// An id lives in at most one of the queue, the failed map and the
// dead-letter list. All three are persisted through a persist.Dir.
package queue

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/Aman-CERP/stratoindex/internal/logging"
	"github.com/Aman-CERP/stratoindex/internal/persist"
	"github.com/Aman-CERP/stratoindex/internal/store"
)

// State file names inside the data directory.
const (
	QueueFile      = "queue.json"
	FailedFile     = "failed.json"
	DeadLetterFile = "dead_letter.json"
)

// FlushHook is called after every flush that wrote at least one item. It
// runs on the flushing goroutine, so slow work belongs in its own goroutine.
type FlushHook func(res *FlushResult)

// Queue is the embedding ingestion queue.
type Queue struct {
	cfg    Config
	sink   Sink
	dir    *persist.Dir
	logger *slog.Logger
	pool   *ants.Pool

	mu       sync.Mutex
	pending  map[string]Item
	order    []string
	failed   map[string]*FailedItem
	dead     []DeadLetter
	inFlight map[string]Item
	removed  map[string]struct{}
	hooks    []FlushHook

	processed int64
	lastFlush time.Time
	closed    bool

	flushMu   sync.Mutex
	wake      chan struct{}
	stop      chan struct{}
	closeOnce sync.Once
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// WithDir persists state under dir and loads any state already there.
func WithDir(dir *persist.Dir) Option {
	return func(q *Queue) {
		q.dir = dir
	}
}

// WithFlushHook registers a hook run after flushes that wrote items.
func WithFlushHook(h FlushHook) Option {
	return func(q *Queue) {
		if h != nil {
			q.hooks = append(q.hooks, h)
		}
	}
}

// AddFlushHook registers a hook after construction, for components built
// on top of the queue's sink.
func (q *Queue) AddFlushHook(h FlushHook) {
	if h == nil {
		return
	}
	q.mu.Lock()
	q.hooks = append(q.hooks, h)
	q.mu.Unlock()
}

// New creates a queue writing to sink.
func New(sink Sink, cfg Config, opts ...Option) (*Queue, error) {
	if sink == nil {
		return nil, errors.New("queue: sink is required")
	}
	cfg = cfg.withDefaults()

	pool, err := ants.NewPool(cfg.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	q := &Queue{
		cfg:      cfg,
		sink:     sink,
		logger:   logging.Discard(),
		pool:     pool,
		pending:  make(map[string]Item),
		failed:   make(map[string]*FailedItem),
		inFlight: make(map[string]Item),
		removed:  make(map[string]struct{}),
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}

	if q.dir != nil {
		q.load()
	}
	return q, nil
}

// Enqueue validates item and adds it to the queue. Re-enqueueing a queued
// id replaces it in place; enqueueing an id that is failed or
// dead-lettered discards the old failure record.
func (q *Queue) Enqueue(item Item) EnqueueResult {
	ns, ok := item.Type.namespace()
	if !ok {
		return EnqueueResult{Reason: ReasonInvalidType}
	}
	if item.Type == "" {
		if got, _, prefixed := store.SplitID(strings.TrimSpace(item.ID)); prefixed {
			ns = got
		}
		item.Type = ItemType(ns)
	}
	id, err := store.QualifyID(ns, item.ID)
	if err != nil {
		return EnqueueResult{Reason: ReasonInvalidID}
	}

	if len(item.Vector) == 0 {
		return EnqueueResult{Reason: ReasonInvalidVector}
	}
	if dim := q.dimension(); dim > 0 && len(item.Vector) != dim {
		return EnqueueResult{Reason: ReasonInvalidVector}
	}

	var warnings []string
	vec, replaced := store.SanitizeVector(item.Vector)
	if replaced > 0 {
		warnings = append(warnings, WarningSanitized)
		q.logger.Warn("vector_sanitized", slog.String("id", id), slog.Int("components", replaced))
	}

	item.ID = id
	item.Vector = vec
	item.Meta = copyMeta(item.Meta)
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = time.Now().UTC()
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return EnqueueResult{Reason: ReasonClosed}
	}
	if _, exists := q.pending[id]; !exists {
		if len(q.pending) >= q.cfg.MaxQueueSize {
			q.mu.Unlock()
			return EnqueueResult{Reason: ReasonQueueFull}
		}
		q.order = append(q.order, id)
	}
	q.pending[id] = item
	delete(q.failed, id)
	q.dropDeadLocked(id)
	full := len(q.pending) >= q.cfg.BatchSize
	q.mu.Unlock()

	if full {
		select {
		case q.wake <- struct{}{}:
		default:
		}
	}
	return EnqueueResult{Success: true, Warnings: warnings}
}

func (q *Queue) dimension() int {
	if q.cfg.Dimension > 0 {
		return q.cfg.Dimension
	}
	if d, ok := q.sink.(dimensioned); ok {
		return d.Dimension()
	}
	return 0
}

// must hold mu
func (q *Queue) dropDeadLocked(id string) bool {
	for i, d := range q.dead {
		if d.ID == id {
			q.dead = append(q.dead[:i], q.dead[i+1:]...)
			return true
		}
	}
	return false
}

// must hold mu; empties the queue, returning items in enqueue order.
func (q *Queue) takePendingLocked() []Item {
	items := q.pendingSnapshotLocked()
	q.pending = make(map[string]Item)
	q.order = nil
	return items
}

// must hold mu; returns queued items in enqueue order.
func (q *Queue) pendingSnapshotLocked() []Item {
	items := make([]Item, 0, len(q.pending))
	seen := make(map[string]struct{}, len(q.pending))
	for _, id := range q.order {
		if _, dup := seen[id]; dup {
			continue
		}
		if it, ok := q.pending[id]; ok {
			seen[id] = struct{}{}
			items = append(items, it)
		}
	}
	return items
}

// RemoveByPath drops queued, failed and dead-lettered items for path (a
// file path or an id). Items currently being dispatched are marked so a
// failure for them is discarded rather than retried. Returns the number of
// items removed without dispatch.
func (q *Queue) RemoveByPath(path string) int {
	p := store.NormalizePath(path)
	if _, key, ok := store.SplitID(strings.TrimSpace(path)); ok {
		p = store.NormalizePath(key)
	}
	if p == "" {
		return 0
	}

	q.mu.Lock()
	removed := 0
	for id, it := range q.pending {
		if matchesPath(id, it.Meta, p) {
			delete(q.pending, id)
			removed++
		}
	}
	for id, fi := range q.failed {
		if matchesPath(id, fi.Item.Meta, p) {
			delete(q.failed, id)
			removed++
		}
	}
	kept := q.dead[:0]
	for _, d := range q.dead {
		if matchesPath(d.ID, d.Meta, p) {
			removed++
			continue
		}
		kept = append(kept, d)
	}
	q.dead = kept
	for id, it := range q.inFlight {
		if matchesPath(id, it.Meta, p) {
			q.removed[id] = struct{}{}
		}
	}
	q.mu.Unlock()

	if removed > 0 {
		q.logger.Info("queue_items_removed", slog.String("path", p), slog.Int("removed", removed))
	}
	q.save()
	return removed
}

// matchesPath reports whether an item id or its meta path refers to p.
// Chunks of p ("chunk:p#n") match as well.
func matchesPath(id string, meta map[string]any, p string) bool {
	_, key, _ := store.SplitID(id)
	if key == p || strings.HasPrefix(key, p+"#") {
		return true
	}
	if mp, ok := meta["path"].(string); ok && mp != "" {
		return store.NormalizePath(mp) == p
	}
	return false
}

// RequeueFailed moves parked structural failures back into the queue,
// typically after the store was reset for a new embedding model. Returns
// the number of items requeued.
func (q *Queue) RequeueFailed() int {
	q.mu.Lock()
	n := 0
	ids := make([]string, 0, len(q.failed))
	for id, fi := range q.failed {
		if fi.Kind == FailureStructural {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, exists := q.pending[id]; !exists {
			q.order = append(q.order, id)
		}
		q.pending[id] = q.failed[id].Item
		delete(q.failed, id)
		n++
	}
	q.mu.Unlock()

	if n > 0 {
		q.logger.Info("queue_failed_requeued", slog.Int("items", n))
		q.save()
	}
	return n
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Stats reports queue sizes.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Stats{
		Queued:      len(q.pending),
		DeadLetters: len(q.dead),
		InFlight:    len(q.inFlight),
		Processed:   q.processed,
		LastFlush:   q.lastFlush,
	}
	for _, fi := range q.failed {
		if fi.Kind == FailureStructural {
			s.Parked++
		} else {
			s.Failed++
		}
	}
	return s
}

// FailedItems returns the failed map sorted by id.
func (q *Queue) FailedItems() []FailedItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]FailedItem, 0, len(q.failed))
	for _, fi := range q.failed {
		out = append(out, *fi)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DeadLetters returns the dead-letter list, oldest first.
func (q *Queue) DeadLetters() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]DeadLetter(nil), q.dead...)
}

// ClearDeadLetters empties the dead-letter list and returns how many
// entries were dropped.
func (q *Queue) ClearDeadLetters() int {
	q.mu.Lock()
	n := len(q.dead)
	q.dead = nil
	q.mu.Unlock()

	if n > 0 {
		q.save()
	}
	return n
}

// Close stops Run, waits for an in-progress flush, persists state and
// releases the worker pool. Queued items are kept for the next start.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		close(q.stop)
	})

	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	q.save()
	q.pool.Release()
	return nil
}

func copyMeta(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
