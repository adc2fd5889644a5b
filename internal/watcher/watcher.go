// Package watcher reports changes to a fixed set of files, such as the
// analysis-history export the lexical index is built from.
//
// fsnotify watches each file's directory, so editors and exporters that
// replace a file by rename are still seen. When fsnotify is unavailable the
// watcher polls size and modification time instead. Events are debounced:
//
//	w, err := watcher.New([]string{historyPath}, watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	go func() { _ = w.Start(ctx) }()
//	for batch := range w.Events() {
//	    // rebuild
//	}
package watcher

import (
	"log/slog"
	"time"
)

// Operation is a file change kind.
type Operation int

const (
	// OpCreate indicates the file appeared.
	OpCreate Operation = iota
	// OpModify indicates the file content changed.
	OpModify
	// OpDelete indicates the file is gone.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is a change to one watched file.
type FileEvent struct {
	// Path is the absolute path of the watched file.
	Path      string
	Operation Operation
	Timestamp time.Time
}

// Options configures a Watcher.
type Options struct {
	// DebounceWindow coalesces bursts of events. Default: 200ms.
	DebounceWindow time.Duration
	// PollInterval is used when fsnotify is unavailable. Default: 2s.
	PollInterval time.Duration
	// ForcePolling skips fsnotify.
	ForcePolling bool
	// EventBufferSize bounds queued batches. Default: 16.
	EventBufferSize int
	Logger          *slog.Logger
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  200 * time.Millisecond,
		PollInterval:    2 * time.Second,
		EventBufferSize: 16,
	}
}

// WithDefaults fills unset fields.
func (o Options) WithDefaults() Options {
	def := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = def.DebounceWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = def.PollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = def.EventBufferSize
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
