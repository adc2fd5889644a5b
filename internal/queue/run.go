package queue

import (
	"context"
	"time"
)

// Run flushes every FlushInterval, and as soon as the queue reaches
// BatchSize, until ctx is done or Close is called.
func (q *Queue) Run(ctx context.Context) error {
	ticker := time.NewTicker(q.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.stop:
			return nil
		case <-ticker.C:
		case <-q.wake:
		}

		if q.hasWork() {
			q.Flush(ctx)
		}
	}
}

func (q *Queue) hasWork() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) > 0 {
		return true
	}
	for _, fi := range q.failed {
		if fi.Kind == FailureTransient {
			return true
		}
	}
	return false
}
