package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a fixed set of files with fsnotify, falling back to
// polling.
type Watcher struct {
	paths     map[string]struct{}
	ordered   []string
	opts      Options
	logger    *slog.Logger
	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer
	errors    chan error
	stopCh    chan struct{}
	stopOnce  sync.Once
	polling   atomic.Bool
}

// New creates a watcher for paths. Each path is made absolute.
func New(paths []string, opts Options) (*Watcher, error) {
	if len(paths) == 0 {
		return nil, errors.New("watcher: no paths")
	}
	opts = opts.WithDefaults()

	w := &Watcher{
		paths:     make(map[string]struct{}, len(paths)),
		opts:      opts,
		logger:    opts.Logger,
		debouncer: NewDebouncer(opts.DebounceWindow, opts.EventBufferSize, opts.Logger),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve absolute path: %w", err)
		}
		if _, dup := w.paths[abs]; !dup {
			w.paths[abs] = struct{}{}
			w.ordered = append(w.ordered, abs)
		}
	}

	if !opts.ForcePolling {
		if err := w.initFsnotify(); err != nil {
			w.logger.Warn("fsnotify unavailable, polling instead", slog.String("error", err.Error()))
		}
	}
	if w.fsWatcher == nil {
		w.polling.Store(true)
	}
	return w, nil
}

func (w *Watcher) initFsnotify() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dirs := make(map[string]struct{})
	for _, p := range w.ordered {
		dirs[filepath.Dir(p)] = struct{}{}
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	w.fsWatcher = fsw
	return nil
}

// Polling reports whether the watcher fell back to polling.
func (w *Watcher) Polling() bool {
	return w.polling.Load()
}

// Start runs the watcher until ctx ends or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	defer w.Stop()

	if w.fsWatcher == nil {
		return w.ignoreStop(poll(ctx, w.ordered, w.opts.PollInterval, w.stopCh, w.debouncer.Add))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *Watcher) ignoreStop(err error) error {
	select {
	case <-w.stopCh:
		return nil
	default:
		return err
	}
}

// handle maps an fsnotify event on a watched directory to a file event.
func (w *Watcher) handle(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if _, ok := w.paths[path]; !ok {
		return
	}

	var op Operation
	switch {
	case ev.Has(fsnotify.Create):
		op = OpCreate
	case ev.Has(fsnotify.Write):
		op = OpModify
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		op = OpDelete
	default:
		return
	}
	w.debouncer.Add(FileEvent{Path: path, Operation: op, Timestamp: time.Now()})
}

func (w *Watcher) emitError(err error) {
	select {
	case w.errors <- err:
	default:
		w.logger.Warn("watcher_error_dropped", slog.String("error", err.Error()))
	}
}

// Events returns debounced batches. The channel closes on Stop.
func (w *Watcher) Events() <-chan []FileEvent {
	return w.debouncer.Output()
}

// Errors returns non-fatal watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Stop releases resources. Safe to call multiple times.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.debouncer.Stop()
		if w.fsWatcher != nil {
			err = w.fsWatcher.Close()
		}
	})
	return err
}
