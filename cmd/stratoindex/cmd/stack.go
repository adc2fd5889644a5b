package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/Aman-CERP/stratoindex/internal/config"
	"github.com/Aman-CERP/stratoindex/internal/embed"
	"github.com/Aman-CERP/stratoindex/internal/graph"
	"github.com/Aman-CERP/stratoindex/internal/history"
	"github.com/Aman-CERP/stratoindex/internal/persist"
	"github.com/Aman-CERP/stratoindex/internal/queue"
	"github.com/Aman-CERP/stratoindex/internal/search"
	"github.com/Aman-CERP/stratoindex/internal/store"
	"github.com/Aman-CERP/stratoindex/internal/telemetry"
)

// VectorsFileName is the SQLite vector database inside the data directory.
const VectorsFileName = "vectors.db"

// HistoryFileName is the default analysis-history export inside the data
// directory.
const HistoryFileName = "history.json"

// stack is the set of components opened over one data directory.
type stack struct {
	cfg     *config.Config
	logger  *slog.Logger
	dir     *persist.Dir
	vectors *store.VectorStore
	queue   *queue.Queue

	// Set when opened with search.
	embedder embed.Embedder
	history  *history.JSONFileSource
	search   *search.Coordinator
	metrics  *telemetry.QueryMetrics
	graph    graph.Source
	// tags is the memory graph derived from history, refreshed on change.
	tags *graph.MemoryGraph

	closers []func() error
}

type stackOptions struct {
	search bool
}

// historyPath returns the configured history export, defaulting to the
// data directory.
func historyPath(cfg *config.Config) string {
	if cfg.Paths.HistoryFile != "" {
		return cfg.Paths.HistoryFile
	}
	return filepath.Join(cfg.Paths.DataDir, HistoryFileName)
}

// openStack locks the data directory and opens the store and queue, and
// with opts.search the embedder and coordinator as well. On error
// everything already opened is closed.
func openStack(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts stackOptions) (_ *stack, err error) {
	s := &stack{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	s.dir, err = persist.Open(cfg.Paths.DataDir, persist.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, s.dir.Close)

	vcfg := store.DefaultVectorStoreConfig(cfg.Embeddings.Dimensions)
	vcfg.MinSimilarity = cfg.Store.MinSimilarity
	if cfg.Store.Backend == "sqlite" {
		vcfg.Path = s.dir.File(VectorsFileName)
	}
	s.vectors, err = store.NewVectorStore(ctx, vcfg, store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}
	s.closers = append(s.closers, s.vectors.Close)

	s.queue, err = queue.New(s.vectors, queue.ConfigFrom(cfg),
		queue.WithLogger(logger),
		queue.WithDir(s.dir),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create queue: %w", err)
	}
	s.closers = append(s.closers, s.queue.Close)

	if !opts.search {
		return s, nil
	}

	s.embedder, err = embed.NewEmbedder(ctx, cfg.Embeddings, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	s.closers = append(s.closers, s.embedder.Close)

	s.history = history.NewJSONFileSource(historyPath(cfg))

	s.graph, err = s.openGraph(ctx)
	if err != nil {
		return nil, err
	}

	s.metrics = telemetry.NewQueryMetrics(telemetry.QueryMetricsConfig{
		RecentQueriesCapacity: cfg.Telemetry.RecentQueries,
	})

	searchOpts := []search.Option{
		search.WithLogger(logger),
		search.WithMetrics(s.metrics),
	}
	if s.graph != nil {
		searchOpts = append(searchOpts, search.WithGraph(s.graph))
	}
	s.search, err = search.New(search.ConfigFrom(cfg), s.vectors, s.embedder, s.history, searchOpts...)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, s.search.Close)
	s.queue.AddFlushHook(s.rebuildAfterFlush(ctx))

	return s, nil
}

// rebuildAfterFlush returns a queue hook that invalidates the lexical index
// once new embeddings are written. The debounced rebuild is awaited off the
// flush path.
func (s *stack) rebuildAfterFlush(ctx context.Context) queue.FlushHook {
	return func(res *queue.FlushResult) {
		go func() {
			br, err := s.search.InvalidateAndRebuild(ctx, QueueFlushedReason)
			if err != nil {
				if !errors.Is(err, search.ErrShuttingDown) && !errors.Is(err, context.Canceled) {
					s.logger.Warn("lexical rebuild after flush failed", slog.String("error", err.Error()))
				}
				return
			}
			s.logger.Debug("lexical index rebuilt after flush",
				slog.Int("processed", res.Processed),
				slog.Int("indexed", br.Indexed))
		}()
	}
}

// openGraph returns the configured relationship source, or nil when graph
// expansion is disabled. The memory backend links files that share tags
// in the analysis history.
func (s *stack) openGraph(ctx context.Context) (graph.Source, error) {
	g := s.cfg.Graph
	if !g.Enabled {
		return nil, nil
	}

	switch g.Backend {
	case "neo4j":
		src, err := graph.NewNeo4jSource(ctx, graph.Neo4jConfig{
			URI:      g.Neo4jURI,
			User:     g.Neo4jUser,
			Password: g.Neo4jPassword,
		}, graph.WithLogger(s.logger))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to neo4j: %w", err)
		}
		s.closers = append(s.closers, func() error { return src.Close(context.Background()) })
		return src, nil
	default:
		s.tags = graph.NewMemoryGraph()
		s.refreshTags(ctx)
		return s.tags, nil
	}
}

// refreshTags rebuilds the tag graph from the current history. A history
// read failure keeps the previous edges.
func (s *stack) refreshTags(ctx context.Context) {
	if s.tags == nil {
		return
	}
	entries, err := s.history.Entries(ctx)
	if err != nil {
		s.logger.Warn("tag graph not refreshed", slog.String("error", err.Error()))
		return
	}
	s.tags.Replace(history.TagGraph(entries))
	s.logger.Debug("tag graph refreshed", slog.Int("edges", s.tags.EdgeCount()))
}

// Close releases components in reverse order of opening.
func (s *stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
