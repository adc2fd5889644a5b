package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/stratoindex/internal/embed"
	"github.com/Aman-CERP/stratoindex/internal/logging"
	"github.com/Aman-CERP/stratoindex/internal/queue"
	"github.com/Aman-CERP/stratoindex/internal/search"
	"github.com/Aman-CERP/stratoindex/internal/store"
	"github.com/Aman-CERP/stratoindex/internal/telemetry"
	"github.com/Aman-CERP/stratoindex/pkg/version"
)

// Tool names.
const (
	ToolSearchFiles  = "search_files"
	ToolIndexStats   = "index_stats"
	ToolRebuildIndex = "rebuild_index"
)

// Searcher is the part of the search coordinator the server needs.
type Searcher interface {
	Search(ctx context.Context, query string, opts search.Options) (*search.Response, error)
	InvalidateAndRebuild(ctx context.Context, reason string) (*search.BuildResult, error)
	Stats() search.IndexStats
}

// VectorStats reports vector store counts. *store.VectorStore satisfies it.
type VectorStats interface {
	GetStats(ctx context.Context) (store.Stats, error)
}

// QueueStats reports ingestion queue counts. *queue.Queue satisfies it.
type QueueStats interface {
	Stats() queue.Stats
}

// Server bridges MCP clients to the search coordinator.
type Server struct {
	mcp      *mcp.Server
	searcher Searcher
	vectors  VectorStats
	queue    QueueStats
	embedder embed.Embedder
	logger   *slog.Logger

	metrics *telemetry.QueryMetrics

	mu sync.RWMutex
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithVectorStats adds vector store counts to index_stats.
func WithVectorStats(v VectorStats) Option {
	return func(s *Server) { s.vectors = v }
}

// WithQueueStats adds queue counts to index_stats.
func WithQueueStats(q QueueStats) Option {
	return func(s *Server) { s.queue = q }
}

// WithEmbedder adds embedder status to index_stats.
func WithEmbedder(e embed.Embedder) Option {
	return func(s *Server) { s.embedder = e }
}

// SearchInput defines the input schema for the search_files tool.
type SearchInput struct {
	Query          string  `json:"query" jsonschema:"what to look for, in natural language or keywords"`
	Limit          int     `json:"limit,omitempty" jsonschema:"maximum number of files, default 10"`
	Mode           string  `json:"mode,omitempty" jsonschema:"hybrid, vector or bm25; default hybrid"`
	VectorWeight   float64 `json:"vector_weight,omitempty" jsonschema:"weight of semantic similarity in hybrid mode"`
	LexicalWeight  float64 `json:"lexical_weight,omitempty" jsonschema:"weight of keyword relevance in hybrid mode"`
	GraphExpansion *bool   `json:"graph_expansion,omitempty" jsonschema:"also return files related to the top hits"`
}

// SearchOutput defines the output schema for the search_files tool.
type SearchOutput struct {
	Results      []SearchResultOutput `json:"results" jsonschema:"matching files, best first"`
	Mode         string               `json:"mode"`
	Degraded     []string             `json:"degraded,omitempty" jsonschema:"search legs that failed"`
	LexicalStale bool                 `json:"lexical_stale,omitempty" jsonschema:"true while the keyword index is being rebuilt"`
	GraphAdded   int                  `json:"graph_added,omitempty" jsonschema:"number of related files added by graph expansion"`
}

// SearchResultOutput is one file in a search_files response.
type SearchResultOutput struct {
	ID           string   `json:"id"`
	Path         string   `json:"path"`
	Name         string   `json:"name,omitempty"`
	MimeType     string   `json:"mime_type,omitempty"`
	Score        float64  `json:"score" jsonschema:"relevance between 0 and 1"`
	MatchReason  string   `json:"match_reason,omitempty"`
	MatchedTerms []string `json:"matched_terms,omitempty"`
	InBothLists  bool     `json:"in_both_lists,omitempty"`
	Source       string   `json:"source" jsonschema:"fused or graph"`
}

// IndexStatsInput takes no parameters.
type IndexStatsInput struct{}

// IndexStatsOutput defines the output schema for the index_stats tool.
type IndexStatsOutput struct {
	Lexical    LexicalStatsOutput    `json:"lexical"`
	Vectors    *VectorStatsOutput    `json:"vectors,omitempty"`
	Queue      *QueueStatsOutput     `json:"queue,omitempty"`
	Embeddings *EmbeddingStatsOutput `json:"embeddings,omitempty"`
}

// LexicalStatsOutput describes the keyword index.
type LexicalStatsOutput struct {
	Backend   string `json:"backend"`
	Documents int    `json:"documents"`
	Built     bool   `json:"built"`
	BuiltAt   string `json:"built_at,omitempty"`
	Stale     bool   `json:"stale"`
	Builds    int64  `json:"builds"`
	LastError string `json:"last_error,omitempty"`
}

// VectorStatsOutput describes the vector store.
type VectorStatsOutput struct {
	Files     int  `json:"files"`
	Folders   int  `json:"folders"`
	Chunks    int  `json:"chunks"`
	Dimension int  `json:"dimension"`
	Durable   bool `json:"durable"`
}

// QueueStatsOutput describes the ingestion queue.
type QueueStatsOutput struct {
	Queued      int   `json:"queued"`
	Failed      int   `json:"failed"`
	DeadLetters int   `json:"dead_letters"`
	Processed   int64 `json:"processed"`
}

// EmbeddingStatsOutput describes the active embedder.
type EmbeddingStatsOutput struct {
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Available  bool   `json:"available"`
	CacheHits  int64  `json:"cache_hits,omitempty"`
	CacheSize  int    `json:"cache_size,omitempty"`
}

// RebuildInput defines the input schema for the rebuild_index tool.
type RebuildInput struct {
	Reason string `json:"reason,omitempty" jsonschema:"why the rebuild is requested, for logs"`
}

// RebuildOutput defines the output schema for the rebuild_index tool.
type RebuildOutput struct {
	Success    bool   `json:"success"`
	Indexed    int    `json:"indexed"`
	Reason     string `json:"reason,omitempty"`
	Error      string `json:"error,omitempty"`
	BuildID    string `json:"build_id,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// NewServer creates an MCP server backed by searcher.
func NewServer(searcher Searcher, opts ...Option) (*Server, error) {
	if searcher == nil {
		return nil, errors.New("searcher is required")
	}

	s := &Server{
		searcher: searcher,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    version.Name,
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// SetMetrics attaches query metrics and registers the query_metrics resource.
func (s *Server) SetMetrics(m *telemetry.QueryMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m
	if m != nil {
		s.registerQueryMetricsResource()
	}
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Handler serves MCP over streamable HTTP.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
}

// CallTool invokes a tool by name with loosely typed arguments. search_files
// returns markdown; the other tools return their output struct.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case ToolSearchFiles:
		in := SearchInput{}
		in.Query, _ = args["query"].(string)
		in.Mode, _ = args["mode"].(string)
		if l, ok := args["limit"].(float64); ok {
			in.Limit = int(l)
		}
		if w, ok := args["vector_weight"].(float64); ok {
			in.VectorWeight = w
		}
		if w, ok := args["lexical_weight"].(float64); ok {
			in.LexicalWeight = w
		}
		if g, ok := args["graph_expansion"].(bool); ok {
			in.GraphExpansion = &g
		}
		resp, err := s.search(ctx, in)
		if err != nil {
			return nil, err
		}
		return FormatSearchResults(strings.TrimSpace(in.Query), resp), nil
	case ToolIndexStats:
		return s.indexStats(ctx), nil
	case ToolRebuildIndex:
		reason, _ := args["reason"].(string)
		return s.rebuild(ctx, reason)
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func (s *Server) search(ctx context.Context, in SearchInput) (*search.Response, error) {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return nil, NewInvalidParamsError("query cannot be empty or whitespace only")
	}

	opts := search.Options{
		Mode:           search.Mode(in.Mode),
		TopK:           clampLimit(in.Limit, 10, 1, search.MaxTopK),
		GraphExpansion: in.GraphExpansion,
	}
	if in.VectorWeight > 0 || in.LexicalWeight > 0 {
		opts.Weights = &search.Weights{Vector: in.VectorWeight, Lexical: in.LexicalWeight}
	}

	requestID := uuid.NewString()[:8]
	start := time.Now()
	s.logger.Info("search_files started",
		slog.String("request_id", requestID),
		slog.String("query", query),
		slog.Int("limit", opts.TopK))

	resp, err := s.searcher.Search(ctx, query, opts)
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("search_files failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	s.logger.Info("search_files completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(resp.Results)),
		slog.Any("degraded", resp.Meta.Degraded))
	return resp, nil
}

func (s *Server) indexStats(ctx context.Context) *IndexStatsOutput {
	st := s.searcher.Stats()
	out := &IndexStatsOutput{
		Lexical: LexicalStatsOutput{
			Backend:   st.Backend,
			Documents: st.Indexed,
			Built:     st.Built,
			Stale:     st.Stale,
			Builds:    st.Builds,
			LastError: st.LastErr,
		},
	}
	if !st.BuiltAt.IsZero() {
		out.Lexical.BuiltAt = st.BuiltAt.UTC().Format(time.RFC3339)
	}

	if s.vectors != nil {
		vs, err := s.vectors.GetStats(ctx)
		if err != nil {
			s.logger.Warn("vector stats unavailable", slog.String("error", err.Error()))
		} else {
			out.Vectors = &VectorStatsOutput{
				Files:     vs.Files,
				Folders:   vs.Folders,
				Chunks:    vs.Chunks,
				Dimension: vs.Dimension,
				Durable:   vs.Durable,
			}
		}
	}

	if s.queue != nil {
		qs := s.queue.Stats()
		out.Queue = &QueueStatsOutput{
			Queued:      qs.Queued,
			Failed:      qs.Failed,
			DeadLetters: qs.DeadLetters,
			Processed:   qs.Processed,
		}
	}

	if s.embedder != nil {
		info := embed.GetInfo(ctx, s.embedder)
		out.Embeddings = &EmbeddingStatsOutput{
			Model:      info.Model,
			Dimensions: info.Dimensions,
			Available:  info.Available,
		}
		if info.Cache != nil {
			out.Embeddings.CacheHits = info.Cache.Hits
			out.Embeddings.CacheSize = info.Cache.Size
		}
	}
	return out
}

func (s *Server) rebuild(ctx context.Context, reason string) (*RebuildOutput, error) {
	if reason == "" {
		reason = "mcp_request"
	}
	res, err := s.searcher.InvalidateAndRebuild(ctx, reason)
	if res == nil {
		return nil, MapError(err)
	}
	out := &RebuildOutput{
		Success:    res.Success,
		Indexed:    res.Indexed,
		Reason:     res.Reason,
		Error:      res.Error,
		BuildID:    res.BuildID,
		DurationMS: res.Duration.Milliseconds(),
	}
	if err != nil {
		s.logger.Warn("rebuild_index failed",
			slog.String("reason", res.Reason),
			slog.String("error", err.Error()))
	}
	return out, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolSearchFiles,
		Description: "Find analyzed files by meaning and by keyword. Combines semantic similarity with BM25 over subjects, summaries, tags and extracted text.",
	}, s.mcpSearchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolIndexStats,
		Description: "Report keyword index, vector store, queue and embedder status.",
	}, s.mcpIndexStatsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolRebuildIndex,
		Description: "Rebuild the keyword index from the analysis history. Requests arriving close together share one rebuild.",
	}, s.mcpRebuildHandler)

	s.logger.Debug("MCP tools registered", slog.Int("count", 3))
}

func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	resp, err := s.search(ctx, input)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	out := SearchOutput{
		Results:      make([]SearchResultOutput, 0, len(resp.Results)),
		Mode:         string(resp.Meta.Mode),
		Degraded:     resp.Meta.Degraded,
		LexicalStale: resp.Meta.LexicalStale,
		GraphAdded:   resp.Meta.Graph.Added,
	}
	for _, r := range resp.Results {
		out.Results = append(out.Results, ToSearchResultOutput(r))
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: FormatSearchResults(strings.TrimSpace(input.Query), resp)}},
	}, out, nil
}

func (s *Server) mcpIndexStatsHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatsInput) (
	*mcp.CallToolResult,
	*IndexStatsOutput,
	error,
) {
	return nil, s.indexStats(ctx), nil
}

func (s *Server) mcpRebuildHandler(ctx context.Context, _ *mcp.CallToolRequest, input RebuildInput) (
	*mcp.CallToolResult,
	*RebuildOutput,
	error,
) {
	out, err := s.rebuild(ctx, input.Reason)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

// ToSearchResultOutput converts a search result to the tool output format.
func ToSearchResultOutput(r *search.Result) SearchResultOutput {
	if r == nil {
		return SearchResultOutput{}
	}
	return SearchResultOutput{
		ID:           r.ID,
		Path:         r.Path,
		Name:         r.Name,
		MimeType:     MimeTypeForPath(r.Path),
		Score:        r.Score,
		MatchReason:  matchReason(r),
		MatchedTerms: r.MatchedTerms,
		InBothLists:  r.InBothLists,
		Source:       r.Source,
	}
}

// Serve runs the server over stdio until ctx is canceled.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}
