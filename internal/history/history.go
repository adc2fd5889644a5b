// Package history reads the analysis history that feeds the lexical index.
//
// The history is owned by the analysis pipeline. This package only reads
// it: a Source returns every entry, and Documents projects entries onto
// lexical documents keyed by the same file ids the vector store uses.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Aman-CERP/stratoindex/internal/store"
)

// Entry is one analysis record for a file.
type Entry struct {
	ID            string    `json:"id"`
	Path          string    `json:"path"`
	Name          string    `json:"name,omitempty"`
	Subject       string    `json:"subject,omitempty"`
	Summary       string    `json:"summary,omitempty"`
	Category      string    `json:"category,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	Keywords      []string  `json:"keywords,omitempty"`
	ExtractedText string    `json:"extractedText,omitempty"`
	AnalyzedAt    time.Time `json:"analyzedAt"`
}

// Source supplies the full analysis history.
type Source interface {
	Entries(ctx context.Context) ([]Entry, error)
}

// MemorySource is an in-memory Source.
type MemorySource struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemorySource returns a source holding entries.
func NewMemorySource(entries ...Entry) *MemorySource {
	return &MemorySource{entries: append([]Entry(nil), entries...)}
}

// Add appends entries.
func (m *MemorySource) Add(entries ...Entry) {
	m.mu.Lock()
	m.entries = append(m.entries, entries...)
	m.mu.Unlock()
}

// Entries returns a copy of the history.
func (m *MemorySource) Entries(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Entry(nil), m.entries...), nil
}

// JSONFileSource reads a JSON export of the history. The file holds
// either an array of entries or an object with an "entries" array.
// A missing file is an empty history.
type JSONFileSource struct {
	path string
}

// NewJSONFileSource returns a source for path.
func NewJSONFileSource(path string) *JSONFileSource {
	return &JSONFileSource{path: path}
}

// Path returns the file path.
func (s *JSONFileSource) Path() string {
	return s.path
}

// Entries reads and decodes the file on every call.
func (s *JSONFileSource) Entries(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history %s: %w", s.path, err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err == nil {
		return entries, nil
	}

	var wrapped struct {
		Entries []Entry `json:"entries"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse history %s: %w", s.path, err)
	}
	return wrapped.Entries, nil
}

// Documents projects entries onto lexical documents: one per normalized
// path, the most recently analyzed entry wins, extracted text is cut to
// maxTextChars runes (0 means unlimited). Entries without a path are
// skipped. Documents are ordered by id.
func Documents(entries []Entry, maxTextChars int) []*store.LexicalDocument {
	latest := make(map[string]Entry, len(entries))
	for _, e := range entries {
		path := store.NormalizePath(e.Path)
		if path == "" {
			continue
		}
		if cur, ok := latest[path]; ok && !e.AnalyzedAt.After(cur.AnalyzedAt) {
			continue
		}
		latest[path] = e
	}

	docs := make([]*store.LexicalDocument, 0, len(latest))
	for path, e := range latest {
		name := e.Name
		if name == "" {
			name = filepath.Base(filepath.FromSlash(path))
		}
		docs = append(docs, &store.LexicalDocument{
			ID:   store.FileID(path),
			Path: path,
			Name: name,
			Fields: store.LexicalFields{
				Subject:       e.Subject,
				Summary:       e.Summary,
				Category:      e.Category,
				Tags:          append([]string(nil), e.Tags...),
				Keywords:      append([]string(nil), e.Keywords...),
				ExtractedText: truncateRunes(e.ExtractedText, maxTextChars),
			},
			Timestamp: e.AnalyzedAt,
		})
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
