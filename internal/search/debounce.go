package search

import (
	"context"
	"sync"
	"time"

	serrors "github.com/Aman-CERP/stratoindex/internal/errors"
)

// DefaultDebounce is the default rebuild debounce window.
const DefaultDebounce = 500 * time.Millisecond

// ErrShuttingDown is returned to waiters when the coordinator closes.
var ErrShuttingDown = serrors.New(serrors.ErrCodeShuttingDown, "search coordinator is shutting down", nil)

// debounceCall is one debounce window: every Trigger inside it waits on
// done and reads the same val and err.
type debounceCall[T any] struct {
	done    chan struct{}
	waiters int
	val     T
	err     error
}

// Debouncer coalesces bursts of Trigger calls into one run of fn. Each
// Trigger resets the timer; when it fires, fn runs once on the timer
// goroutine and every caller from that window gets its result. Runs never
// overlap: a window that fires while the previous run is still going
// waits for it.
type Debouncer[T any] struct {
	delay      time.Duration
	fn         func(context.Context) (T, error)
	onShutdown func() T

	ctx    context.Context
	cancel context.CancelFunc

	runMu sync.Mutex // serializes fn

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	pending *debounceCall[T]
	closed  bool
	wg      sync.WaitGroup
}

// NewDebouncer creates a debouncer running fn after delay of quiet.
// onShutdown, if set, supplies the value handed to waiters on Close.
func NewDebouncer[T any](delay time.Duration, fn func(context.Context) (T, error), onShutdown func() T) *Debouncer[T] {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Debouncer[T]{
		delay:      delay,
		fn:         fn,
		onShutdown: onShutdown,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Trigger joins the current window, resets its timer and waits for the
// shared result. If ctx ends first Trigger returns ctx.Err(); the run
// still happens for the other waiters.
func (d *Debouncer[T]) Trigger(ctx context.Context) (T, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return d.shutdownValue(), ErrShuttingDown
	}
	if d.pending == nil {
		d.pending = &debounceCall[T]{done: make(chan struct{})}
	}
	call := d.pending
	call.waiters++
	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
	d.mu.Unlock()

	select {
	case <-call.done:
		return call.val, call.err
	case <-ctx.Done():
		d.mu.Lock()
		if call.waiters > 0 {
			call.waiters--
		}
		d.mu.Unlock()
		var zero T
		return zero, ctx.Err()
	}
}

// fire runs fn for the window if gen is still the latest reset. A timer
// that Stop could not catch sees a newer gen and does nothing.
func (d *Debouncer[T]) fire(gen uint64) {
	d.mu.Lock()
	if d.closed || gen != d.gen || d.pending == nil {
		d.mu.Unlock()
		return
	}
	call := d.pending
	d.pending = nil
	d.timer = nil
	d.wg.Add(1)
	d.mu.Unlock()
	defer d.wg.Done()

	d.runMu.Lock()
	call.val, call.err = d.fn(d.ctx)
	d.runMu.Unlock()
	close(call.done)
}

// Pending reports whether a window is waiting for its timer.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// Waiting returns the number of callers in the pending window.
func (d *Debouncer[T]) Waiting() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil {
		return 0
	}
	return d.pending.waiters
}

// Close stops the timer, resolves waiters of the pending window with
// ErrShuttingDown, cancels a running fn and waits for it to return.
// Safe to call more than once.
func (d *Debouncer[T]) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	call := d.pending
	d.pending = nil
	d.mu.Unlock()

	if call != nil {
		call.val, call.err = d.shutdownValue(), ErrShuttingDown
		close(call.done)
	}

	d.cancel()
	d.wg.Wait()
}

func (d *Debouncer[T]) shutdownValue() T {
	if d.onShutdown != nil {
		return d.onShutdown()
	}
	var zero T
	return zero
}
