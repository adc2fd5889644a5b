// Package store provides the vector store and the lexical index.
//
// The vector store keeps namespaced records (files, folders, text chunks)
// in memory for brute-force cosine search and writes every mutation
// through to SQLite when a path is configured. The lexical index is a
// rebuildable BM25 projection of the analysis history with interchangeable
// backends.
package store

import (
	"context"
	"time"
)

// Namespace separates record kinds that share a dimension but are queried
// independently.
type Namespace string

const (
	// NamespaceFile holds one record per analyzed file.
	NamespaceFile Namespace = "file"
	// NamespaceFolder holds one record per smart folder.
	NamespaceFolder Namespace = "folder"
	// NamespaceChunk holds text chunks; Metadata["fileId"] names the parent file.
	NamespaceChunk Namespace = "chunk"
)

// Namespaces lists every namespace in a stable order.
var Namespaces = []Namespace{NamespaceFile, NamespaceFolder, NamespaceChunk}

// Prefix returns the id prefix for the namespace (e.g. "file:").
func (n Namespace) Prefix() string {
	return string(n) + ":"
}

// Record is a stored embedding.
type Record struct {
	// ID is namespaced ("file:/docs/a.pdf").
	ID        string         `json:"id"`
	Vector    []float32      `json:"vector"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Match is a similarity search hit.
type Match struct {
	ID        string         `json:"id"`
	Score     float64        `json:"score"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Outcome tags a write result.
type Outcome int

const (
	// OutcomeOK means the write was applied.
	OutcomeOK Outcome = iota
	// OutcomeStructural means the write can never succeed as-is
	// (dimension mismatch, malformed vector).
	OutcomeStructural
	// OutcomeTransient means the write may succeed later (I/O, timeout).
	OutcomeTransient
)

// String returns a string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeStructural:
		return "structural"
	case OutcomeTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Failure reasons carried by Result.Reason.
const (
	ReasonDimensionMismatch = "dimension_mismatch"
	ReasonInvalidVector     = "invalid_vector"
	ReasonInvalidID         = "invalid_id"
	ReasonPersistFailed     = "persist_failed"
	ReasonClosed            = "store_closed"
	ReasonTimeout           = "timeout"
)

// Result is the tagged outcome of an upsert.
type Result struct {
	Outcome         Outcome `json:"outcome"`
	Reason          string  `json:"reason,omitempty"`
	RequiresRebuild bool    `json:"requiresRebuild,omitempty"`
	Err             error   `json:"-"`
}

// OK reports whether the write was applied.
func (r Result) OK() bool {
	return r.Outcome == OutcomeOK
}

// Ok returns a successful result.
func Ok() Result {
	return Result{Outcome: OutcomeOK}
}

// Structural returns a non-retryable failure.
func Structural(reason string, err error) Result {
	return Result{
		Outcome:         OutcomeStructural,
		Reason:          reason,
		RequiresRebuild: reason == ReasonDimensionMismatch,
		Err:             err,
	}
}

// Transient returns a retryable failure.
func Transient(reason string, err error) Result {
	return Result{Outcome: OutcomeTransient, Reason: reason, Err: err}
}

// BatchResult is the outcome of a batch upsert. A batch is all-or-nothing.
type BatchResult struct {
	Result
	Upserted int `json:"upserted"`
}

// PathUpdate re-keys a record after a file move or rename.
type PathUpdate struct {
	// OldID is the current id or path.
	OldID string `json:"oldId"`
	// NewID defaults to the namespace prefix plus NewPath.
	NewID   string `json:"newId,omitempty"`
	NewPath string `json:"newPath"`
	// NewName defaults to the base name of NewPath.
	NewName string `json:"newName,omitempty"`
}

// Stats summarizes the vector store.
type Stats struct {
	Files         int       `json:"files"`
	Folders       int       `json:"folders"`
	Chunks        int       `json:"chunks"`
	Dimension     int       `json:"dimension"`
	Durable       bool      `json:"durable"`
	MinSimilarity float64   `json:"minSimilarity"`
	LastUpdated   time.Time `json:"lastUpdated,omitempty"`
}

// LexicalFields are the searchable fields of an analysis-history entry.
type LexicalFields struct {
	Subject       string   `json:"subject,omitempty"`
	Summary       string   `json:"summary,omitempty"`
	Category      string   `json:"category,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	Keywords      []string `json:"keywords,omitempty"`
	ExtractedText string   `json:"extractedText,omitempty"`
}

// LexicalDocument is one indexed document. It is never persisted.
type LexicalDocument struct {
	ID        string        `json:"id"`
	Path      string        `json:"path,omitempty"`
	Name      string        `json:"name,omitempty"`
	Fields    LexicalFields `json:"fields"`
	Timestamp time.Time     `json:"timestamp"`
}

// LexicalResult is a lexical search hit.
type LexicalResult struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// LexicalIndex is a BM25-style index built once from a full document set.
type LexicalIndex interface {
	// Index adds documents. Re-indexing an id replaces it.
	Index(ctx context.Context, docs []*LexicalDocument) error

	// Search returns hits ordered by descending score.
	Search(ctx context.Context, query string, limit int) ([]*LexicalResult, error)

	// Count returns the number of indexed documents.
	Count() int

	// Close releases resources.
	Close() error
}

// FieldBoosts weights each field's term frequencies.
type FieldBoosts struct {
	Subject       float64
	Summary       float64
	Category      float64
	Tags          float64
	Keywords      float64
	ExtractedText float64
	Name          float64
}

// BM25Config configures lexical scoring.
type BM25Config struct {
	// K1 controls term frequency saturation (typical: 1.2-2.0).
	K1 float64

	// B controls document length normalization (0-1, typical: 0.75).
	B float64

	Boosts FieldBoosts

	StopWords []string

	// MinTokenLength drops shorter tokens.
	MinTokenLength int
}

// DefaultBM25Config returns default BM25 configuration.
func DefaultBM25Config() BM25Config {
	return BM25Config{
		K1: 1.2,
		B:  0.75,
		Boosts: FieldBoosts{
			Subject:       2.0,
			Name:          2.0,
			Tags:          1.5,
			Keywords:      1.5,
			Category:      1.2,
			Summary:       1.0,
			ExtractedText: 0.5,
		},
		StopWords:      DefaultStopWords,
		MinTokenLength: 2,
	}
}

// DefaultStopWords are common English words that carry no search signal.
var DefaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by", "for", "from",
	"has", "have", "in", "into", "is", "it", "its", "my", "of", "on", "or",
	"our", "that", "the", "their", "this", "to", "was", "were", "will",
	"with", "your", "find", "show", "me", "all",
}
