package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lexicalBackends = []string{"memory", "sqlite", "bleve"}

func newLexical(t *testing.T, backend string) LexicalIndex {
	t.Helper()
	idx, err := NewLexicalIndex(context.Background(), backend, DefaultBM25Config())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func historyDocs() []*LexicalDocument {
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return []*LexicalDocument{
		{
			ID: FileID("/docs/invoice-march.pdf"), Path: "/docs/invoice-march.pdf", Name: "invoice-march.pdf",
			Fields: LexicalFields{
				Subject:  "Invoice for consulting services",
				Category: "Finance",
				Tags:     []string{"invoice", "billing"},
				Keywords: []string{"payment", "due"},
			},
			Timestamp: ts,
		},
		{
			ID: FileID("/docs/nda.pdf"), Path: "/docs/nda.pdf", Name: "nda.pdf",
			Fields: LexicalFields{
				Subject:       "Mutual non-disclosure agreement",
				Category:      "Legal",
				Tags:          []string{"contract"},
				ExtractedText: "The parties agree to keep the invoice terms confidential.",
			},
			Timestamp: ts,
		},
		{
			ID: FileID("/photos/beach.jpg"), Path: "/photos/beach.jpg", Name: "beach.jpg",
			Fields: LexicalFields{
				Subject:  "Sunset at the beach",
				Category: "Photos",
				Tags:     []string{"vacation"},
			},
			Timestamp: ts,
		},
	}
}

func TestLexicalIndex_Search_RanksBoostedFieldsFirst(t *testing.T) {
	for _, backend := range lexicalBackends {
		t.Run(backend, func(t *testing.T) {
			// Given: an index over the history documents
			idx := newLexical(t, backend)
			require.NoError(t, idx.Index(context.Background(), historyDocs()))
			assert.Equal(t, 3, idx.Count())

			// When: searching for a term in a subject and in extracted text
			results, err := idx.Search(context.Background(), "invoice", 10)
			require.NoError(t, err)

			// Then: the subject/tag hit outranks the body hit
			require.Len(t, results, 2)
			assert.Equal(t, FileID("/docs/invoice-march.pdf"), results[0].DocID)
			assert.Equal(t, FileID("/docs/nda.pdf"), results[1].DocID)
			assert.Greater(t, results[0].Score, results[1].Score)
			assert.Contains(t, results[0].MatchedTerms, "invoice")
		})
	}
}

func TestLexicalIndex_Search_EmptyAndStopWordQueries(t *testing.T) {
	for _, backend := range lexicalBackends {
		t.Run(backend, func(t *testing.T) {
			idx := newLexical(t, backend)
			require.NoError(t, idx.Index(context.Background(), historyDocs()))

			results, err := idx.Search(context.Background(), "   ", 10)
			require.NoError(t, err)
			assert.NotNil(t, results)
			assert.Empty(t, results)

			results, err = idx.Search(context.Background(), "zebra", 10)
			require.NoError(t, err)
			assert.Empty(t, results)
		})
	}
}

func TestLexicalIndex_Search_SplitsCompoundNames(t *testing.T) {
	for _, backend := range lexicalBackends {
		t.Run(backend, func(t *testing.T) {
			// Given: a document whose only signal is a compound file name
			idx := newLexical(t, backend)
			require.NoError(t, idx.Index(context.Background(), []*LexicalDocument{
				{ID: FileID("/scans/TaxReturn_2024.pdf"), Name: "TaxReturn_2024.pdf"},
			}))

			// When: searching for one part of the name
			results, err := idx.Search(context.Background(), "return", 10)
			require.NoError(t, err)

			// Then: it is found
			require.Len(t, results, 1)
			assert.Equal(t, FileID("/scans/TaxReturn_2024.pdf"), results[0].DocID)
		})
	}
}

func TestLexicalIndex_Index_ReplacesSameID(t *testing.T) {
	for _, backend := range lexicalBackends {
		t.Run(backend, func(t *testing.T) {
			// Given: a document indexed twice with different subjects
			ctx := context.Background()
			idx := newLexical(t, backend)
			id := FileID("/docs/a.pdf")
			require.NoError(t, idx.Index(ctx, []*LexicalDocument{{ID: id, Fields: LexicalFields{Subject: "quarterly budget"}}}))
			require.NoError(t, idx.Index(ctx, []*LexicalDocument{{ID: id, Fields: LexicalFields{Subject: "holiday schedule"}}}))

			// Then: only the latest text matches
			assert.Equal(t, 1, idx.Count())
			results, err := idx.Search(ctx, "budget", 10)
			require.NoError(t, err)
			assert.Empty(t, results)

			results, err = idx.Search(ctx, "holiday", 10)
			require.NoError(t, err)
			assert.Len(t, results, 1)
		})
	}
}

func TestLexicalIndex_Search_RespectsLimit(t *testing.T) {
	for _, backend := range lexicalBackends {
		t.Run(backend, func(t *testing.T) {
			idx := newLexical(t, backend)
			docs := make([]*LexicalDocument, 0, 5)
			for _, p := range []string{"/a", "/b", "/c", "/d", "/e"} {
				docs = append(docs, &LexicalDocument{ID: FileID(p), Fields: LexicalFields{Summary: "receipt"}})
			}
			require.NoError(t, idx.Index(context.Background(), docs))

			results, err := idx.Search(context.Background(), "receipt", 2)
			require.NoError(t, err)
			assert.Len(t, results, 2)
		})
	}
}

func TestLexicalIndex_Closed(t *testing.T) {
	for _, backend := range lexicalBackends {
		t.Run(backend, func(t *testing.T) {
			idx, err := NewLexicalIndex(context.Background(), backend, DefaultBM25Config())
			require.NoError(t, err)
			require.NoError(t, idx.Close())

			_, err = idx.Search(context.Background(), "invoice", 10)
			assert.Error(t, err)
		})
	}
}

func TestNewLexicalIndex_UnknownBackend(t *testing.T) {
	_, err := NewLexicalIndex(context.Background(), "elastic", DefaultBM25Config())
	assert.ErrorContains(t, err, "unknown lexical backend")
}

func TestMemoryLexicalIndex_RareTermsScoreHigher(t *testing.T) {
	// Given: "tax" appears in every document, "audit" in one
	idx := NewMemoryLexicalIndex(DefaultBM25Config())
	require.NoError(t, idx.Index(context.Background(), []*LexicalDocument{
		{ID: "file:/1", Fields: LexicalFields{Summary: "tax audit letter"}},
		{ID: "file:/2", Fields: LexicalFields{Summary: "tax form"}},
		{ID: "file:/3", Fields: LexicalFields{Summary: "tax receipt"}},
	}))

	// When: searching for both terms
	results, err := idx.Search(context.Background(), "tax audit", 10)
	require.NoError(t, err)

	// Then: the document with the rare term wins and all scores are positive
	require.Len(t, results, 3)
	assert.Equal(t, "file:/1", results[0].DocID)
	for _, r := range results {
		assert.Greater(t, r.Score, 0.0)
	}
	assert.ElementsMatch(t, []string{"tax", "audit"}, results[0].MatchedTerms)
}
