package queue

import (
	"context"
	"sync"

	"github.com/Aman-CERP/stratoindex/internal/store"
)

// itemSink records single upserts. itemFn decides each result.
type itemSink struct {
	mu      sync.Mutex
	dim     int
	records map[string]store.Record
	calls   int
	itemFn  func(ctx context.Context, rec store.Record) store.Result
}

func newItemSink(dim int) *itemSink {
	return &itemSink{dim: dim, records: make(map[string]store.Record)}
}

func (s *itemSink) Upsert(ctx context.Context, ns store.Namespace, rec store.Record) store.Result {
	s.mu.Lock()
	s.calls++
	fn := s.itemFn
	s.mu.Unlock()

	if fn != nil {
		if res := fn(ctx, rec); !res.OK() {
			return res
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return store.Ok()
}

func (s *itemSink) Dimension() int {
	return s.dim
}

func (s *itemSink) record(id string) (store.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	return r, ok
}

func (s *itemSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *itemSink) itemCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// batchSink adds the batch write. batchFn decides the batch result; nil
// writes every record.
type batchSink struct {
	*itemSink
	batchCalls int
	batchFn    func(recs []store.Record) store.BatchResult
}

func newBatchSink(dim int) *batchSink {
	return &batchSink{itemSink: newItemSink(dim)}
}

func (s *batchSink) UpsertBatch(ctx context.Context, ns store.Namespace, recs []store.Record) store.BatchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchCalls++
	if s.batchFn != nil {
		if res := s.batchFn(recs); !res.OK() {
			return res
		}
	}
	for _, r := range recs {
		s.records[r.ID] = r
	}
	return store.BatchResult{Result: store.Ok(), Upserted: len(recs)}
}
