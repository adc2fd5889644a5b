package store

import (
	"context"
	"fmt"
)

// LexicalBackend names a lexical index implementation.
type LexicalBackend string

const (
	// LexicalBackendMemory is the in-process BM25 scorer (default).
	LexicalBackendMemory LexicalBackend = "memory"

	// LexicalBackendSQLite uses an in-memory SQLite FTS5 table.
	LexicalBackendSQLite LexicalBackend = "sqlite"

	// LexicalBackendBleve uses a memory-only Bleve index.
	LexicalBackendBleve LexicalBackend = "bleve"
)

// NewLexicalIndex creates an empty lexical index for the named backend.
// Every backend is rebuilt from scratch; none persists to disk.
//
// backend options:
//   - "memory" (default): pure Go BM25 with field boosts
//   - "sqlite": SQLite FTS5 with per-column bm25() weights
//   - "bleve": Bleve with boosted per-field match queries
func NewLexicalIndex(ctx context.Context, backend string, cfg BM25Config) (LexicalIndex, error) {
	switch LexicalBackend(backend) {
	case LexicalBackendMemory, "":
		return NewMemoryLexicalIndex(cfg), nil
	case LexicalBackendSQLite:
		return NewSQLiteLexicalIndex(ctx, cfg)
	case LexicalBackendBleve:
		return NewBleveLexicalIndex(cfg)
	default:
		return nil, fmt.Errorf("unknown lexical backend: %s (valid options: memory, sqlite, bleve)", backend)
	}
}
