package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
)

// SQLiteLexicalIndex keeps documents in an in-memory SQLite FTS5 table and
// ranks them with the built-in bm25() function using per-column weights.
// Text is run through the shared analyzer before insertion so both
// backends agree on what a term is.
type SQLiteLexicalIndex struct {
	mu       sync.RWMutex
	db       *sql.DB
	an       analyzer
	weights  []float64
	docTerms map[string]map[string]struct{}
	closed   bool
}

// ftsColumns are the indexed columns in declaration order after doc_id.
var ftsColumns = []string{"name", "subject", "summary", "category", "tags", "keywords", "body"}

// NewSQLiteLexicalIndex opens an in-memory FTS5 index.
func NewSQLiteLexicalIndex(ctx context.Context, cfg BM25Config) (*SQLiteLexicalIndex, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open lexical database: %w", err)
	}
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	schema := fmt.Sprintf(`CREATE VIRTUAL TABLE fts USING fts5(
		doc_id UNINDEXED, %s,
		tokenize='unicode61'
	)`, strings.Join(ftsColumns, ", "))
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create fts table: %w", err)
	}

	b := cfg.Boosts
	return &SQLiteLexicalIndex{
		db: db,
		an: newAnalyzer(cfg),
		// doc_id first, then ftsColumns order.
		weights:  []float64{0, b.Name, b.Subject, b.Summary, b.Category, b.Tags, b.Keywords, b.ExtractedText},
		docTerms: make(map[string]map[string]struct{}),
	}, nil
}

// Index adds documents, replacing any with the same id.
func (s *SQLiteLexicalIndex) Index(ctx context.Context, docs []*LexicalDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	del, err := tx.PrepareContext(ctx, `DELETE FROM fts WHERE doc_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete: %w", err)
	}
	defer func() { _ = del.Close() }()

	ins, err := tx.PrepareContext(ctx, `INSERT INTO fts (doc_id, `+strings.Join(ftsColumns, ", ")+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = ins.Close() }()

	pending := make(map[string]map[string]struct{})
	for _, doc := range docs {
		if doc == nil || doc.ID == "" {
			continue
		}
		if _, err := del.ExecContext(ctx, doc.ID); err != nil {
			return fmt.Errorf("failed to delete %s: %w", doc.ID, err)
		}

		cols := make(map[string]string, len(ftsColumns))
		terms := make(map[string]struct{})
		for _, f := range weightedFields(doc, FieldBoosts{1, 1, 1, 1, 1, 1, 1}) {
			ts := s.an.terms(f.text)
			for _, t := range ts {
				terms[t] = struct{}{}
			}
			cols[f.name] = strings.Join(ts, " ")
		}
		if len(terms) == 0 {
			pending[doc.ID] = nil
			continue
		}

		if _, err := ins.ExecContext(ctx, doc.ID,
			cols["name"], cols["subject"], cols["summary"], cols["category"],
			cols["tags"], cols["keywords"], cols["text"]); err != nil {
			return fmt.Errorf("failed to insert %s: %w", doc.ID, err)
		}
		pending[doc.ID] = terms
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	for id, terms := range pending {
		if terms == nil {
			delete(s.docTerms, id)
			continue
		}
		s.docTerms[id] = terms
	}
	return nil
}

// Search runs an OR query over the analyzed query terms.
func (s *SQLiteLexicalIndex) Search(ctx context.Context, query string, limit int) ([]*LexicalResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("index is closed")
	}

	terms := uniqueTerms(s.an.terms(query))
	if len(terms) == 0 || len(s.docTerms) == 0 {
		return []*LexicalResult{}, nil
	}
	if limit <= 0 {
		limit = len(s.docTerms)
	}

	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	match := strings.Join(quoted, " OR ")

	args := make([]any, 0, len(s.weights)+2)
	placeholders := make([]string, len(s.weights))
	for i, w := range s.weights {
		placeholders[i] = "?"
		args = append(args, w)
	}
	args = append(args, match, limit)

	// bm25() is lower-is-better; negate for descending scores.
	q := `SELECT doc_id, -bm25(fts, ` + strings.Join(placeholders, ", ") + `) AS score
		FROM fts WHERE fts MATCH ? ORDER BY score DESC, doc_id ASC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return []*LexicalResult{}, nil
		}
		return nil, fmt.Errorf("lexical query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]*LexicalResult, 0, limit)
	for rows.Next() {
		var r LexicalResult
		if err := rows.Scan(&r.DocID, &r.Score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		for _, t := range terms {
			if _, ok := s.docTerms[r.DocID][t]; ok {
				r.MatchedTerms = append(r.MatchedTerms, t)
			}
		}
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lexical query failed: %w", err)
	}
	return results, nil
}

// Count returns the number of indexed documents.
func (s *SQLiteLexicalIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docTerms)
}

// Close drops the in-memory database.
func (s *SQLiteLexicalIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.docTerms = nil
	return s.db.Close()
}

var _ LexicalIndex = (*SQLiteLexicalIndex)(nil)
