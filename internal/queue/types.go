package queue

import (
	"context"
	"time"

	"github.com/Aman-CERP/stratoindex/internal/store"
)

// ItemType selects the store namespace an item is written to.
type ItemType string

const (
	ItemFile   ItemType = "file"
	ItemFolder ItemType = "folder"
	ItemChunk  ItemType = "chunk"
)

func (t ItemType) namespace() (store.Namespace, bool) {
	switch t {
	case ItemFile, "":
		return store.NamespaceFile, true
	case ItemFolder:
		return store.NamespaceFolder, true
	case ItemChunk:
		return store.NamespaceChunk, true
	default:
		return "", false
	}
}

// Item is an embedding waiting to be written to the store.
type Item struct {
	ID        string         `json:"id"`
	Vector    []float32      `json:"vector"`
	Meta      map[string]any `json:"meta,omitempty"`
	Model     string         `json:"model,omitempty"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Type      ItemType       `json:"type"`
}

// Enqueue rejection reasons.
const (
	ReasonInvalidVector = "invalid_vector_format"
	ReasonInvalidID     = "invalid_id"
	ReasonInvalidType   = "invalid_item_type"
	ReasonQueueFull     = "queue_full"
	ReasonClosed        = "queue_closed"
)

// WarningSanitized is returned when non-finite components were zeroed.
const WarningSanitized = "vector_sanitized"

// EnqueueResult reports whether an item was accepted.
type EnqueueResult struct {
	Success  bool     `json:"success"`
	Reason   string   `json:"reason,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// FailureKind separates failures that retrying can fix from those it cannot.
type FailureKind string

const (
	FailureTransient  FailureKind = "transient"
	FailureStructural FailureKind = "structural"
)

// FailedItem is an item whose last dispatch failed. Transient failures are
// retried on the next flush; structural ones are parked until RequeueFailed.
type FailedItem struct {
	ID              string      `json:"id"`
	Error           string      `json:"error"`
	Retries         int         `json:"retries"`
	LastAttempt     time.Time   `json:"lastAttempt"`
	FirstFailedAt   time.Time   `json:"firstFailedAt"`
	Kind            FailureKind `json:"kind"`
	RequiresRebuild bool        `json:"requiresRebuild,omitempty"`
	Item            Item        `json:"item"`
}

// DeadLetter is an item that exhausted its retries.
type DeadLetter struct {
	ID                string         `json:"id"`
	Error             string         `json:"error"`
	Meta              map[string]any `json:"meta,omitempty"`
	FirstFailedAt     time.Time      `json:"firstFailedAt"`
	Retries           int            `json:"retries"`
	PermanentlyFailed bool           `json:"permanentlyFailed"`
}

// Outcome is the result of dispatching one item.
type Outcome string

const (
	OutcomeOK         Outcome = "ok"
	OutcomeFailed     Outcome = "failed"
	OutcomeDeadLetter Outcome = "dead_letter"
	// OutcomeDropped means the item failed after its path was removed.
	OutcomeDropped Outcome = "dropped"
)

// Progress is sent once per completed item. Completed increases by one
// with every update of a flush.
type Progress struct {
	Completed int
	Total     int
	ID        string
	Outcome   Outcome
	Err       error
}

// FlushStatus summarizes a flush.
type FlushStatus string

const (
	FlushOK      FlushStatus = "ok"
	FlushPartial FlushStatus = "partial"
	FlushFailed  FlushStatus = "failed"
	FlushEmpty   FlushStatus = "empty"
)

// ItemFailure describes one item that did not reach the store.
type ItemFailure struct {
	ID              string      `json:"id"`
	Error           string      `json:"error"`
	Kind            FailureKind `json:"kind"`
	Retries         int         `json:"retries"`
	RequiresRebuild bool        `json:"requiresRebuild,omitempty"`
	DeadLettered    bool        `json:"deadLettered,omitempty"`
	Dropped         bool        `json:"dropped,omitempty"`
}

// FlushResult is the outcome of one flush. Every attempted item is counted
// exactly once in Processed, Failed, DeadLettered or Dropped.
type FlushResult struct {
	Status       FlushStatus   `json:"status"`
	Attempted    int           `json:"attempted"`
	Processed    int           `json:"processed"`
	Failed       int           `json:"failed"`
	DeadLettered int           `json:"deadLettered"`
	Dropped      int           `json:"dropped"`
	Failures     []ItemFailure `json:"failures,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// Stats describes the queue state.
type Stats struct {
	Queued      int       `json:"queued"`
	Failed      int       `json:"failed"`
	Parked      int       `json:"parked"`
	DeadLetters int       `json:"deadLetters"`
	InFlight    int       `json:"inFlight"`
	Processed   int64     `json:"processed"`
	LastFlush   time.Time `json:"lastFlush,omitempty"`
}

// Sink receives single records. *store.VectorStore satisfies it.
type Sink interface {
	Upsert(ctx context.Context, ns store.Namespace, rec store.Record) store.Result
}

// BatchSink is the optional all-or-nothing batch write.
type BatchSink interface {
	UpsertBatch(ctx context.Context, ns store.Namespace, recs []store.Record) store.BatchResult
}

// dimensioned is implemented by sinks that know their active dimension.
type dimensioned interface {
	Dimension() int
}
