package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"
)

const (
	// TermTokenizerType is the registered type of the compound-aware tokenizer.
	TermTokenizerType = "strato_terms"

	// StopFilterType is the registered type of the stop word filter.
	StopFilterType = "strato_stop"

	termTokenizerName = "strato_terms_cfg"
	stopFilterName    = "strato_stop_cfg"
	analyzerName      = "strato_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(TermTokenizerType, termTokenizerConstructor)
	_ = registry.RegisterTokenFilter(StopFilterType, stopFilterConstructor)
}

// BleveLexicalIndex wraps an in-memory Bleve index.
type BleveLexicalIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	boosts FieldBoosts
	closed bool
}

// bleveDocument is the indexed shape of a LexicalDocument.
type bleveDocument struct {
	Name     string `json:"name"`
	Subject  string `json:"subject"`
	Summary  string `json:"summary"`
	Category string `json:"category"`
	Tags     string `json:"tags"`
	Keywords string `json:"keywords"`
	Text     string `json:"text"`
}

// NewBleveLexicalIndex creates a memory-only Bleve index.
func NewBleveLexicalIndex(cfg BM25Config) (*BleveLexicalIndex, error) {
	m, err := newIndexMapping(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}
	idx, err := bleve.NewMemOnly(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}
	return &BleveLexicalIndex{index: idx, boosts: cfg.Boosts}, nil
}

func newIndexMapping(cfg BM25Config) (*mapping.IndexMappingImpl, error) {
	m := bleve.NewIndexMapping()

	if err := m.AddCustomTokenizer(termTokenizerName, map[string]interface{}{
		"type":       TermTokenizerType,
		"min_length": float64(cfg.MinTokenLength),
	}); err != nil {
		return nil, fmt.Errorf("failed to add tokenizer: %w", err)
	}

	stop := make([]interface{}, len(cfg.StopWords))
	for i, w := range cfg.StopWords {
		stop[i] = w
	}
	if err := m.AddCustomTokenFilter(stopFilterName, map[string]interface{}{
		"type":       StopFilterType,
		"stop_words": stop,
	}); err != nil {
		return nil, fmt.Errorf("failed to add stop filter: %w", err)
	}

	if err := m.AddCustomAnalyzer(analyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     termTokenizerName,
		"token_filters": []string{stopFilterName},
	}); err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}

	m.DefaultAnalyzer = analyzerName
	return m, nil
}

// Index adds documents, replacing any with the same id.
func (b *BleveLexicalIndex) Index(ctx context.Context, docs []*LexicalDocument) error {
	if len(docs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("index is closed")
	}

	batch := b.index.NewBatch()
	for _, doc := range docs {
		if doc == nil || doc.ID == "" {
			continue
		}
		f := doc.Fields
		bd := bleveDocument{
			Name:     doc.Name,
			Subject:  f.Subject,
			Summary:  f.Summary,
			Category: f.Category,
			Tags:     strings.Join(f.Tags, " "),
			Keywords: strings.Join(f.Keywords, " "),
			Text:     f.ExtractedText,
		}
		if err := batch.Index(doc.ID, bd); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

// Search runs one boosted match query per field and ORs them together.
func (b *BleveLexicalIndex) Search(ctx context.Context, queryStr string, limit int) ([]*LexicalResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if strings.TrimSpace(queryStr) == "" {
		return []*LexicalResult{}, nil
	}
	if limit <= 0 {
		n, _ := b.index.DocCount()
		limit = int(n)
		if limit == 0 {
			return []*LexicalResult{}, nil
		}
	}

	fields := []struct {
		name  string
		boost float64
	}{
		{"name", b.boosts.Name},
		{"subject", b.boosts.Subject},
		{"summary", b.boosts.Summary},
		{"category", b.boosts.Category},
		{"tags", b.boosts.Tags},
		{"keywords", b.boosts.Keywords},
		{"text", b.boosts.ExtractedText},
	}
	var queries []query.Query
	for _, f := range fields {
		if f.boost <= 0 {
			continue
		}
		mq := bleve.NewMatchQuery(queryStr)
		mq.SetField(f.name)
		mq.SetBoost(f.boost)
		queries = append(queries, mq)
	}

	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(queries...))
	req.Size = limit
	req.IncludeLocations = true

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]*LexicalResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		results = append(results, &LexicalResult{
			DocID:        hit.ID,
			Score:        hit.Score,
			MatchedTerms: matchedTerms(hit),
		})
	}
	sortLexical(results)
	return results, nil
}

// Count returns the number of indexed documents.
func (b *BleveLexicalIndex) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0
	}
	n, _ := b.index.DocCount()
	return int(n)
}

// Close closes the index.
func (b *BleveLexicalIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}

func matchedTerms(hit *search.DocumentMatch) []string {
	seen := make(map[string]struct{})
	for _, locations := range hit.Locations {
		for term := range locations {
			seen[term] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for term := range seen {
		out = append(out, term)
	}
	sort.Strings(out)
	return out
}

var _ LexicalIndex = (*BleveLexicalIndex)(nil)

func termTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	minLen := 1
	if v, ok := config["min_length"].(float64); ok && v > 0 {
		minLen = int(v)
	}
	return &termTokenizer{minLen: minLen}, nil
}

// termTokenizer adapts Tokenize to Bleve. Offsets are best effort; only
// terms and positions matter for scoring.
type termTokenizer struct {
	minLen int
}

// Tokenize implements analysis.Tokenizer.
func (t *termTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	lower := strings.ToLower(text)
	tokens := Tokenize(text, t.minLen)

	stream := make(analysis.TokenStream, 0, len(tokens))
	offset := 0
	for i, tok := range tokens {
		if offset > len(lower) {
			offset = len(lower)
		}
		start := offset
		if j := strings.Index(lower[offset:], tok); j >= 0 {
			start = offset + j
		}
		end := start + len(tok)
		if end > len(text) {
			end = len(text)
		}
		stream = append(stream, &analysis.Token{
			Term:     []byte(tok),
			Start:    start,
			End:      end,
			Position: i + 1,
			Type:     analysis.AlphaNumeric,
		})
		offset = end
	}
	return stream
}

func stopFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	var words []string
	if raw, ok := config["stop_words"].([]interface{}); ok {
		for _, w := range raw {
			if s, ok := w.(string); ok {
				words = append(words, s)
			}
		}
	}
	return &stopFilter{stopWords: BuildStopWordMap(words)}, nil
}

type stopFilter struct {
	stopWords map[string]struct{}
}

// Filter implements analysis.TokenFilter.
func (f *stopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	out := make(analysis.TokenStream, 0, len(input))
	for _, tok := range input {
		if _, stop := f.stopWords[string(tok.Term)]; !stop {
			out = append(out, tok)
		}
	}
	return out
}
