package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/stratoindex/internal/search"
)

func TestWriter_Status_PrintsIconAndMessage(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing a status message
	w.Status("→", "Opening vector store...")

	// Then: output contains icon and message
	assert.Equal(t, "→ Opening vector store...\n", buf.String())
}

func TestWriter_Status_NoIconIndents(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Status("", "detail")

	assert.Equal(t, "  detail\n", buf.String())
}

func TestWriter_Levels(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWithColor(buf, false)

	w.Successf("flushed %d items", 3)
	w.Warningf("%d items parked", 1)
	w.Errorf("store %s", "closed")

	out := buf.String()
	assert.Contains(t, out, "✓ flushed 3 items\n")
	assert.Contains(t, out, "⚠ 1 items parked\n")
	assert.Contains(t, out, "✗ store closed\n")
}

func TestNew_NoColorForBuffers(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Success("done")

	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestWriter_Code_IndentsLines(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Code("a: 1\nb: 2")

	assert.Equal(t, "\n  a: 1\n  b: 2\n\n", buf.String())
}

func TestWriter_Table_AlignsColumns(t *testing.T) {
	// Given: rows of uneven width
	buf := &bytes.Buffer{}
	w := NewWithColor(buf, false)

	// When: printing a table
	w.Table([][]string{
		{"ID", "RETRIES", "ERROR"},
		{"file:/docs/a.pdf", "3", "timeout"},
		{"file:/b", "10", "closed"},
	})

	// Then: columns line up and trailing cells are not padded
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Equal(t, []string{
		"ID                RETRIES  ERROR",
		"file:/docs/a.pdf  3        timeout",
		"file:/b           10       closed",
	}, lines)
}

func TestWriter_Table_Empty(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Table(nil)

	assert.Empty(t, buf.String())
}

func TestWriter_SearchResults(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWithColor(buf, false)

	w.SearchResults(&search.Response{
		Results: []*search.Result{
			{ID: "file:/docs/tax-2024.pdf", Path: "/docs/tax-2024.pdf", Score: 1, InBothLists: true, MatchedTerms: []string{"tax"}},
			{ID: "file:/docs/lease.pdf", Score: 0.4, Source: search.SourceGraph, Edge: "references", Via: "file:/docs/tax-2024.pdf"},
		},
		Meta: search.Meta{Mode: search.ModeHybrid, VectorHits: 2, LexicalHits: 1, Duration: 3 * time.Millisecond},
	})

	out := buf.String()
	assert.Contains(t, out, " 1. 1.000  /docs/tax-2024.pdf")
	assert.Contains(t, out, "vector+lexical | terms: tax")
	assert.Contains(t, out, " 2. 0.400  file:/docs/lease.pdf")
	assert.Contains(t, out, "graph references via file:/docs/tax-2024.pdf")
	assert.Contains(t, out, "hybrid search, 2 vector / 1 lexical hits in 3ms")
}

func TestWriter_SearchResults_EmptyAndDegraded(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWithColor(buf, false)

	w.SearchResults(&search.Response{
		Meta: search.Meta{Mode: search.ModeHybrid, Degraded: []string{search.LegVector}, LexicalStale: true},
	})

	out := buf.String()
	assert.Contains(t, out, "No results")
	assert.Contains(t, out, "Degraded: vector unavailable")
	assert.Contains(t, out, "Lexical index is stale")
}

func TestWriter_SearchResults_Nil(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).SearchResults(nil)

	assert.Equal(t, "⚠ No results\n", buf.String())
}
