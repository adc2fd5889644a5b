package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// plainEvery throttles dispatch lines so large flushes stay readable.
const plainEvery = 100

// PlainRenderer writes one line per update.
type PlainRenderer struct {
	mu     sync.Mutex
	out    io.Writer
	errors int
	warns  int
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(ctx context.Context) error {
	return nil
}

// UpdateProgress implements Renderer.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Stage == StageDispatching && event.Total > 0 &&
		event.Current != event.Total && event.Current%plainEvery != 0 {
		return
	}

	msg := event.Message
	if msg == "" {
		msg = event.ItemID
	}

	switch {
	case event.Total > 0:
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d %s\n", event.Stage.Icon(), event.Current, event.Total, msg)
	case msg != "":
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), msg)
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
		r.warns++
	} else {
		r.errors++
	}

	if event.ItemID != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.ItemID, event.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Flush %s: %d/%d processed in %s",
		stats.Status, stats.Processed, stats.Attempted, stats.Duration.Round(100*time.Millisecond))

	if stats.Failed > 0 || stats.DeadLettered > 0 || stats.Dropped > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d failed, %d dead-lettered, %d dropped)",
			stats.Failed, stats.DeadLettered, stats.Dropped)
	}
	_, _ = fmt.Fprintln(r.out)

	if stats.Remaining > 0 {
		_, _ = fmt.Fprintf(r.out, "%d items still queued\n", stats.Remaining)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}

var _ Renderer = (*PlainRenderer)(nil)
