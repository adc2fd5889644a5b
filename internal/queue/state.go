package queue

import (
	"log/slog"

	"github.com/Aman-CERP/stratoindex/internal/persist"
)

// load restores state from the data directory. Unreadable files are
// logged and treated as empty; persist.Dir already backed up corrupt ones.
func (q *Queue) load() {
	var items []Item
	var failed map[string]*FailedItem
	var dead []DeadLetter

	q.loadFile(QueueFile, &items)
	q.loadFile(FailedFile, &failed)
	q.loadFile(DeadLetterFile, &dead)

	q.mu.Lock()
	defer q.mu.Unlock()

	// Precedence when files disagree: queue, then failed, then dead letters.
	for _, it := range items {
		if it.ID == "" || len(it.Vector) == 0 {
			continue
		}
		if _, ok := it.Type.namespace(); !ok {
			continue
		}
		if _, dup := q.pending[it.ID]; !dup {
			q.order = append(q.order, it.ID)
		}
		q.pending[it.ID] = it
	}
	for id, fi := range failed {
		if fi == nil || id == "" {
			continue
		}
		if _, queued := q.pending[id]; queued {
			continue
		}
		fi.ID = id
		if fi.Kind == "" {
			fi.Kind = FailureTransient
		}
		q.failed[id] = fi
	}
	for _, d := range dead {
		if d.ID == "" {
			continue
		}
		if _, queued := q.pending[d.ID]; queued {
			continue
		}
		if _, isFailed := q.failed[d.ID]; isFailed {
			continue
		}
		q.dead = append(q.dead, d)
	}
	if over := len(q.dead) - q.cfg.MaxDeadLetters; over > 0 {
		q.dead = q.dead[over:]
	}

	q.logger.Info("queue_state_loaded",
		slog.Int("queued", len(q.pending)),
		slog.Int("failed", len(q.failed)),
		slog.Int("dead_letters", len(q.dead)))
}

func (q *Queue) loadFile(name string, v any) {
	status, err := q.dir.Load(name, v)
	if err != nil {
		q.logger.Warn("queue_state_load_failed", slog.String("file", name), slog.String("error", err.Error()))
		return
	}
	if status == persist.LoadRecovered {
		q.logger.Warn("queue_state_recovered", slog.String("file", name))
	}
}

// save writes all three collections. Items being dispatched are saved as
// queued so a crash mid-flush does not lose them. Errors are logged; the
// in-memory state stays authoritative.
func (q *Queue) save() {
	if q.dir == nil {
		return
	}

	q.mu.Lock()
	items := make([]Item, 0, len(q.inFlight)+len(q.pending))
	for id, it := range q.inFlight {
		if _, removed := q.removed[id]; removed {
			continue
		}
		if _, queued := q.pending[id]; queued {
			continue
		}
		items = append(items, it)
	}
	items = append(items, q.pendingSnapshotLocked()...)
	failed := make(map[string]FailedItem, len(q.failed))
	for id, fi := range q.failed {
		failed[id] = *fi
	}
	dead := append([]DeadLetter{}, q.dead...)
	q.mu.Unlock()

	for _, f := range []struct {
		name string
		v    any
	}{
		{QueueFile, items},
		{FailedFile, failed},
		{DeadLetterFile, dead},
	} {
		if err := q.dir.Save(f.name, f.v); err != nil {
			q.logger.Warn("queue_state_save_failed", slog.String("file", f.name), slog.String("error", err.Error()))
		}
	}
}
