package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/stratoindex/internal/search"
)

func TestSearchCmd_LocalBM25(t *testing.T) {
	// Given: an analysis history with one invoice
	dataDir := isolate(t)
	writeHistory(t, dataDir, invoiceEntry())

	// When: searching by keyword
	out, err := runCmd(t, "search", "plumber", "invoice", "--mode", "bm25", "--format", "json", "--local")

	// Then: the invoice is found through the lexical leg
	require.NoError(t, err)
	var resp search.Response
	decode(t, out, &resp)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "file:/docs/invoice.pdf", resp.Results[0].ID)
	assert.Equal(t, search.ModeBM25, resp.Meta.Mode)
	assert.Equal(t, "plumber invoice", resp.Meta.Query)
}

func TestSearchCmd_HybridText(t *testing.T) {
	// Given: a stored vector and matching history
	dataDir := isolate(t)
	writeHistory(t, dataDir, invoiceEntry())
	seedQueue(t, dataDir, "/docs/invoice.pdf")
	_, err := runCmd(t, "queue", "flush", "--plain")
	require.NoError(t, err)

	// When: searching with text output
	out, err := runCmd(t, "search", "invoice")

	// Then: the file is listed with its search summary
	require.NoError(t, err)
	assert.Contains(t, out, "invoice.pdf")
	assert.Contains(t, out, "hybrid search")
}

func TestSearchCmd_BadFlags(t *testing.T) {
	isolate(t)

	_, err := runCmd(t, "search", "x", "--format", "xml")
	assert.Error(t, err)

	_, err = runCmd(t, "search", "x", "--mode", "fuzzy")
	assert.Error(t, err)

	_, err = runCmd(t, "search")
	assert.Error(t, err)
}

func TestSearchOptions_ToSearch(t *testing.T) {
	so, err := searchOptions{limit: 3, mode: "vector", noGraph: true}.toSearch()

	require.NoError(t, err)
	assert.Equal(t, 3, so.TopK)
	assert.Equal(t, search.ModeVector, so.Mode)
	require.NotNil(t, so.GraphExpansion)
	assert.False(t, *so.GraphExpansion)
}

func TestRebuildCmd_Local(t *testing.T) {
	dataDir := isolate(t)
	writeHistory(t, dataDir, invoiceEntry())

	out, err := runCmd(t, "rebuild", "--json")
	require.NoError(t, err)
	var res search.BuildResult
	decode(t, out, &res)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Indexed)

	out, err = runCmd(t, "rebuild", "--debounced", "--reason", "test")
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed 1 documents")
}
