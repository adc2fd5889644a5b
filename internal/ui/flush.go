package ui

import (
	"context"

	"github.com/Aman-CERP/stratoindex/internal/queue"
)

// Flusher is the part of the queue a flush display needs.
type Flusher interface {
	Len() int
	Flush(ctx context.Context, opts ...queue.FlushOption) *queue.FlushResult
}

// RunFlush flushes q while feeding progress into r. The renderer is
// completed but not stopped.
func RunFlush(ctx context.Context, r Renderer, q Flusher) *queue.FlushResult {
	r.UpdateProgress(ProgressEvent{Stage: StageDispatching, Total: q.Len(), Message: "dispatching"})

	ch := make(chan queue.Progress, 64)
	done := make(chan *queue.FlushResult, 1)
	go func() {
		defer close(ch)
		done <- q.Flush(ctx, queue.WithProgress(ch))
	}()

	for p := range ch {
		r.UpdateProgress(ProgressEvent{
			Stage:   StageDispatching,
			Current: p.Completed,
			Total:   p.Total,
			ItemID:  p.ID,
		})
		switch p.Outcome {
		case queue.OutcomeFailed, queue.OutcomeDeadLetter:
			r.AddError(ErrorEvent{ItemID: p.ID, Err: p.Err})
		case queue.OutcomeDropped:
			r.AddError(ErrorEvent{ItemID: p.ID, Err: p.Err, IsWarn: true})
		}
	}

	res := <-done
	r.Complete(CompletionFrom(res, q.Len()))
	return res
}

// CompletionFrom converts a flush result for display.
func CompletionFrom(res *queue.FlushResult, remaining int) CompletionStats {
	if res == nil {
		return CompletionStats{Remaining: remaining}
	}
	return CompletionStats{
		Status:       string(res.Status),
		Attempted:    res.Attempted,
		Processed:    res.Processed,
		Failed:       res.Failed,
		DeadLettered: res.DeadLettered,
		Dropped:      res.Dropped,
		Duration:     res.Duration,
		Remaining:    remaining,
	}
}
