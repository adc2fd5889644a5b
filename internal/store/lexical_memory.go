package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
)

// MemoryLexicalIndex is an in-process BM25 index. Field boosts scale term
// frequencies and document length, so a term in the subject counts for
// more than the same term in extracted text.
type MemoryLexicalIndex struct {
	mu       sync.RWMutex
	cfg      BM25Config
	an       analyzer
	docs     map[string]*memDoc
	postings map[string]map[string]float64
	totalLen float64
	closed   bool
}

type memDoc struct {
	length float64
	terms  map[string]float64
}

// NewMemoryLexicalIndex creates an empty in-memory index.
func NewMemoryLexicalIndex(cfg BM25Config) *MemoryLexicalIndex {
	return &MemoryLexicalIndex{
		cfg:      cfg,
		an:       newAnalyzer(cfg),
		docs:     make(map[string]*memDoc),
		postings: make(map[string]map[string]float64),
	}
}

// Index adds documents, replacing any with the same id.
func (m *MemoryLexicalIndex) Index(ctx context.Context, docs []*LexicalDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("index is closed")
	}

	for i, doc := range docs {
		if doc == nil || doc.ID == "" {
			continue
		}
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		m.removeLocked(doc.ID)

		d := &memDoc{terms: make(map[string]float64)}
		for _, f := range weightedFields(doc, m.cfg.Boosts) {
			for _, t := range m.an.terms(f.text) {
				d.terms[t] += f.boost
				d.length += f.boost
			}
		}
		if d.length == 0 {
			continue
		}

		m.docs[doc.ID] = d
		m.totalLen += d.length
		for t, tf := range d.terms {
			p, ok := m.postings[t]
			if !ok {
				p = make(map[string]float64)
				m.postings[t] = p
			}
			p[doc.ID] = tf
		}
	}
	return nil
}

// must hold mu
func (m *MemoryLexicalIndex) removeLocked(id string) {
	d, ok := m.docs[id]
	if !ok {
		return
	}
	for t := range d.terms {
		delete(m.postings[t], id)
		if len(m.postings[t]) == 0 {
			delete(m.postings, t)
		}
	}
	m.totalLen -= d.length
	delete(m.docs, id)
}

// Search scores documents with BM25:
// idf(t) * tf*(k1+1) / (tf + k1*(1-b+b*len/avglen)), summed over query
// terms, with idf(t) = ln(1 + (N-df+0.5)/(df+0.5)).
func (m *MemoryLexicalIndex) Search(ctx context.Context, query string, limit int) ([]*LexicalResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("index is closed")
	}

	terms := uniqueTerms(m.an.terms(query))
	n := float64(len(m.docs))
	if len(terms) == 0 || n == 0 {
		return []*LexicalResult{}, nil
	}
	avgLen := m.totalLen / n
	k1, b := m.cfg.K1, m.cfg.B

	scores := make(map[string]float64)
	matched := make(map[string][]string)
	for _, t := range terms {
		p := m.postings[t]
		if len(p) == 0 {
			continue
		}
		df := float64(len(p))
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		for id, tf := range p {
			norm := 1 - b + b*m.docs[id].length/avgLen
			scores[id] += idf * tf * (k1 + 1) / (tf + k1*norm)
			matched[id] = append(matched[id], t)
		}
	}

	results := make([]*LexicalResult, 0, len(scores))
	for id, s := range scores {
		results = append(results, &LexicalResult{DocID: id, Score: s, MatchedTerms: matched[id]})
	}
	sortLexical(results)

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Count returns the number of indexed documents.
func (m *MemoryLexicalIndex) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// Close releases the index.
func (m *MemoryLexicalIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.docs = nil
	m.postings = nil
	return nil
}

func sortLexical(results []*LexicalResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})
}

type weightedText struct {
	name  string
	text  string
	boost float64
}

// weightedFields flattens a document into boosted field texts.
func weightedFields(doc *LexicalDocument, boosts FieldBoosts) []weightedText {
	f := doc.Fields
	out := []weightedText{
		{"name", doc.Name, boosts.Name},
		{"subject", f.Subject, boosts.Subject},
		{"summary", f.Summary, boosts.Summary},
		{"category", f.Category, boosts.Category},
		{"tags", strings.Join(f.Tags, " "), boosts.Tags},
		{"keywords", strings.Join(f.Keywords, " "), boosts.Keywords},
		{"text", f.ExtractedText, boosts.ExtractedText},
	}
	kept := out[:0]
	for _, w := range out {
		if w.text != "" && w.boost > 0 {
			kept = append(kept, w)
		}
	}
	return kept
}

var _ LexicalIndex = (*MemoryLexicalIndex)(nil)
