package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/Aman-CERP/stratoindex/internal/errors"
	"github.com/Aman-CERP/stratoindex/internal/embed"
	"github.com/Aman-CERP/stratoindex/internal/queue"
	"github.com/Aman-CERP/stratoindex/internal/search"
	"github.com/Aman-CERP/stratoindex/internal/store"
	"github.com/Aman-CERP/stratoindex/internal/telemetry"
)

type fakeSearcher struct {
	searchFn  func(ctx context.Context, query string, opts search.Options) (*search.Response, error)
	rebuildFn func(ctx context.Context, reason string) (*search.BuildResult, error)
	stats     search.IndexStats

	lastQuery string
	lastOpts  search.Options
}

func (f *fakeSearcher) Search(ctx context.Context, query string, opts search.Options) (*search.Response, error) {
	f.lastQuery, f.lastOpts = query, opts
	if f.searchFn != nil {
		return f.searchFn(ctx, query, opts)
	}
	return &search.Response{Meta: search.Meta{Query: query, Mode: search.ModeHybrid}}, nil
}

func (f *fakeSearcher) InvalidateAndRebuild(ctx context.Context, reason string) (*search.BuildResult, error) {
	if f.rebuildFn != nil {
		return f.rebuildFn(ctx, reason)
	}
	return &search.BuildResult{Success: true, Trigger: "debounced"}, nil
}

func (f *fakeSearcher) Stats() search.IndexStats { return f.stats }

type fakeVectors struct{ err error }

func (v fakeVectors) GetStats(context.Context) (store.Stats, error) {
	return store.Stats{Files: 12, Chunks: 40, Dimension: 256, Durable: true}, v.err
}

type fakeQueue struct{}

func (fakeQueue) Stats() queue.Stats {
	return queue.Stats{Queued: 3, Failed: 1, DeadLetters: 2, Processed: 99}
}

func newTestServer(t *testing.T, s Searcher, opts ...Option) *Server {
	t.Helper()
	srv, err := NewServer(s, opts...)
	require.NoError(t, err)
	return srv
}

func taxResponse() *search.Response {
	return &search.Response{
		Results: []*search.Result{
			{
				ID: "file:/docs/tax-2024.pdf", Path: "/docs/tax-2024.pdf", Name: "tax-2024.pdf",
				Score: 1, InBothLists: true, MatchedTerms: []string{"tax"}, Source: search.SourceFused,
			},
			{
				ID: "file:/docs/w2.pdf", Path: "/docs/w2.pdf", Name: "w2.pdf",
				Score: 0.4, Source: search.SourceGraph, Via: "file:/docs/tax-2024.pdf", Edge: "same_folder",
			},
		},
		Meta: search.Meta{Mode: search.ModeHybrid, Degraded: []string{search.LegLexical}},
	}
}

func TestNewServer_RequiresSearcher(t *testing.T) {
	_, err := NewServer(nil)
	assert.Error(t, err)
}

func TestSearchFiles_ReturnsMarkdown(t *testing.T) {
	// Given: a searcher returning a fused hit and a graph neighbor
	fs := &fakeSearcher{searchFn: func(context.Context, string, search.Options) (*search.Response, error) {
		return taxResponse(), nil
	}}
	srv := newTestServer(t, fs)

	// When: calling search_files
	result, err := srv.CallTool(context.Background(), ToolSearchFiles, map[string]any{
		"query": "  tax return ",
		"limit": float64(5),
	})

	// Then: markdown lists both files and flags the degraded leg
	require.NoError(t, err)
	text, ok := result.(string)
	require.True(t, ok, "expected string result, got %T", result)
	assert.Contains(t, text, `## Files matching "tax return"`)
	assert.Contains(t, text, "tax-2024.pdf (score: 1.00)")
	assert.Contains(t, text, "found by both keyword and semantic search")
	assert.Contains(t, text, "related to file:/docs/tax-2024.pdf (same_folder)")
	assert.Contains(t, text, "Degraded: lexical")
	assert.Equal(t, "tax return", fs.lastQuery)
	assert.Equal(t, 5, fs.lastOpts.TopK)
	assert.Nil(t, fs.lastOpts.Weights)
}

func TestSearchFiles_PassesOptions(t *testing.T) {
	fs := &fakeSearcher{}
	srv := newTestServer(t, fs)

	_, err := srv.CallTool(context.Background(), ToolSearchFiles, map[string]any{
		"query":           "lease",
		"mode":            "bm25",
		"limit":           float64(500),
		"vector_weight":   0.2,
		"lexical_weight":  0.8,
		"graph_expansion": true,
	})

	require.NoError(t, err)
	assert.Equal(t, search.ModeBM25, fs.lastOpts.Mode)
	assert.Equal(t, search.MaxTopK, fs.lastOpts.TopK)
	require.NotNil(t, fs.lastOpts.Weights)
	assert.Equal(t, search.Weights{Vector: 0.2, Lexical: 0.8}, *fs.lastOpts.Weights)
	require.NotNil(t, fs.lastOpts.GraphExpansion)
	assert.True(t, *fs.lastOpts.GraphExpansion)
}

func TestSearchFiles_EmptyQuery(t *testing.T) {
	fs := &fakeSearcher{}
	srv := newTestServer(t, fs)

	for _, q := range []any{"", "   ", nil} {
		_, err := srv.CallTool(context.Background(), ToolSearchFiles, map[string]any{"query": q})

		var me *MCPError
		require.ErrorAs(t, err, &me)
		assert.Equal(t, ErrCodeInvalidParams, me.Code)
	}
	assert.Empty(t, fs.lastQuery, "searcher is never called")
}

func TestSearchFiles_NoResults(t *testing.T) {
	srv := newTestServer(t, &fakeSearcher{})

	result, err := srv.CallTool(context.Background(), ToolSearchFiles, map[string]any{"query": "nothing"})

	require.NoError(t, err)
	assert.Equal(t, `No files found for "nothing"`, result)
}

func TestSearchFiles_MapsSearchErrors(t *testing.T) {
	fs := &fakeSearcher{searchFn: func(context.Context, string, search.Options) (*search.Response, error) {
		return nil, serrors.New(serrors.ErrCodeSearchFailed, "all search legs failed", errors.New("boom"))
	}}
	srv := newTestServer(t, fs)

	_, err := srv.CallTool(context.Background(), ToolSearchFiles, map[string]any{"query": "tax"})

	var me *MCPError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, ErrCodeSearchFailed, me.Code)
}

func TestCallTool_UnknownTool(t *testing.T) {
	srv := newTestServer(t, &fakeSearcher{})

	_, err := srv.CallTool(context.Background(), "search_code", nil)

	var me *MCPError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, ErrCodeMethodNotFound, me.Code)
}

func TestIndexStats_CollectsAllSources(t *testing.T) {
	// Given: a server wired to every stats source
	built := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	fs := &fakeSearcher{stats: search.IndexStats{Backend: "bleve", Indexed: 7, Built: true, BuiltAt: built, Builds: 2}}
	srv := newTestServer(t, fs,
		WithVectorStats(fakeVectors{}),
		WithQueueStats(fakeQueue{}),
		WithEmbedder(embed.NewCachedEmbedder(embed.NewStaticEmbedder(embed.StaticDimensions), 10)))

	// When: calling index_stats
	result, err := srv.CallTool(context.Background(), ToolIndexStats, nil)

	// Then: every section is filled
	require.NoError(t, err)
	out, ok := result.(*IndexStatsOutput)
	require.True(t, ok)
	assert.Equal(t, "bleve", out.Lexical.Backend)
	assert.Equal(t, 7, out.Lexical.Documents)
	assert.Equal(t, "2026-05-01T12:00:00Z", out.Lexical.BuiltAt)
	require.NotNil(t, out.Vectors)
	assert.Equal(t, 12, out.Vectors.Files)
	require.NotNil(t, out.Queue)
	assert.Equal(t, 2, out.Queue.DeadLetters)
	require.NotNil(t, out.Embeddings)
	assert.Equal(t, embed.StaticDimensions, out.Embeddings.Dimensions)
	assert.True(t, out.Embeddings.Available)
}

func TestIndexStats_VectorStatsFailureIsOmitted(t *testing.T) {
	srv := newTestServer(t, &fakeSearcher{}, WithVectorStats(fakeVectors{err: errors.New("closed")}))

	result, err := srv.CallTool(context.Background(), ToolIndexStats, nil)

	require.NoError(t, err)
	out := result.(*IndexStatsOutput)
	assert.Nil(t, out.Vectors)
	assert.Nil(t, out.Queue)
	assert.Empty(t, out.Lexical.BuiltAt)
}

func TestRebuildIndex(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		var gotReason string
		fs := &fakeSearcher{rebuildFn: func(_ context.Context, reason string) (*search.BuildResult, error) {
			gotReason = reason
			return &search.BuildResult{Success: true, Indexed: 4, BuildID: "b1", Duration: 1500 * time.Millisecond}, nil
		}}
		srv := newTestServer(t, fs)

		result, err := srv.CallTool(context.Background(), ToolRebuildIndex, map[string]any{})

		require.NoError(t, err)
		out := result.(*RebuildOutput)
		assert.True(t, out.Success)
		assert.Equal(t, 4, out.Indexed)
		assert.Equal(t, int64(1500), out.DurationMS)
		assert.Equal(t, "mcp_request", gotReason)
	})

	t.Run("failure is reported in the output", func(t *testing.T) {
		fs := &fakeSearcher{rebuildFn: func(context.Context, string) (*search.BuildResult, error) {
			return &search.BuildResult{Reason: search.ReasonHistoryFailed, Error: "history unavailable"},
				serrors.New(serrors.ErrCodeIndexBuild, "build failed", nil)
		}}
		srv := newTestServer(t, fs)

		result, err := srv.CallTool(context.Background(), ToolRebuildIndex, map[string]any{"reason": "manual"})

		require.NoError(t, err)
		out := result.(*RebuildOutput)
		assert.False(t, out.Success)
		assert.Equal(t, search.ReasonHistoryFailed, out.Reason)
	})

	t.Run("no result maps the error", func(t *testing.T) {
		fs := &fakeSearcher{rebuildFn: func(context.Context, string) (*search.BuildResult, error) {
			return nil, context.DeadlineExceeded
		}}
		srv := newTestServer(t, fs)

		_, err := srv.CallTool(context.Background(), ToolRebuildIndex, nil)

		var me *MCPError
		require.ErrorAs(t, err, &me)
		assert.Equal(t, ErrCodeTimeout, me.Code)
	})
}

func TestQueryMetricsResource(t *testing.T) {
	srv := newTestServer(t, &fakeSearcher{})
	_, err := srv.queryMetricsJSON()
	require.Error(t, err, "metrics not attached yet")

	m := telemetry.NewQueryMetrics(telemetry.DefaultQueryMetricsConfig())
	m.Record(telemetry.QueryEvent{Query: "tax return", Mode: "hybrid", ResultCount: 0, Latency: 5 * time.Millisecond})
	srv.SetMetrics(m)

	content, err := srv.queryMetricsJSON()
	require.NoError(t, err)

	var out QueryMetricsOutput
	require.NoError(t, json.Unmarshal(content, &out))
	assert.Equal(t, int64(1), out.Summary.TotalQueries)
	assert.Equal(t, 100.0, out.Summary.ZeroResultPct)
	assert.Equal(t, int64(1), out.ModeCounts["hybrid"])
	assert.Equal(t, []string{"tax return"}, out.ZeroResultQueries)
}

func TestToSearchResultOutput(t *testing.T) {
	resp := taxResponse()

	fused := ToSearchResultOutput(resp.Results[0])
	assert.Equal(t, "application/pdf", fused.MimeType)
	assert.Equal(t, "matched: tax; found by both keyword and semantic search", fused.MatchReason)

	neighbor := ToSearchResultOutput(resp.Results[1])
	assert.Equal(t, search.SourceGraph, neighbor.Source)

	assert.Equal(t, SearchResultOutput{}, ToSearchResultOutput(nil))
}
