package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Aman-CERP/stratoindex/internal/embed"
	serrors "github.com/Aman-CERP/stratoindex/internal/errors"
	"github.com/Aman-CERP/stratoindex/internal/graph"
	"github.com/Aman-CERP/stratoindex/internal/history"
	"github.com/Aman-CERP/stratoindex/internal/logging"
	"github.com/Aman-CERP/stratoindex/internal/store"
	"github.com/Aman-CERP/stratoindex/internal/telemetry"
)

// VectorSearcher is the read side of the vector store.
type VectorSearcher interface {
	Query(ctx context.Context, ns store.Namespace, vector []float32, topK int, opts ...store.QueryOption) ([]store.Match, error)
}

// Coordinator serves hybrid search over the vector store and a lexical
// index it builds from the analysis history. It never writes to the store.
type Coordinator struct {
	cfg      Config
	vectors  VectorSearcher
	embedder embed.Embedder
	history  history.Source
	graph    graph.Source
	metrics  *telemetry.QueryMetrics
	logger   *slog.Logger
	fusion   *RRFFusion

	ctx    context.Context
	cancel context.CancelFunc

	// idxMu guards the index pointer; searches hold it for reading while
	// they query the index, so a swapped-out index is never closed under
	// a reader.
	idxMu   sync.RWMutex
	index   store.LexicalIndex
	indexed int
	builtAt time.Time
	lastErr string

	buildMu  sync.Mutex
	builds   atomic.Int64
	dirtyGen atomic.Uint64
	cleanGen atomic.Uint64

	sf        singleflight.Group
	debouncer *Debouncer[*BuildResult]

	closeOnce sync.Once
	closed    atomic.Bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithGraph sets the relationship graph used for expansion.
func WithGraph(g graph.Source) Option {
	return func(c *Coordinator) {
		c.graph = g
	}
}

// WithMetrics records every search into m.
func WithMetrics(m *telemetry.QueryMetrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// New creates a coordinator. The embedder is wrapped in a query cache
// unless it already is one. The lexical index is built lazily on first
// use or by BuildLexicalIndex.
func New(cfg Config, vectors VectorSearcher, embedder embed.Embedder, hist history.Source, opts ...Option) (*Coordinator, error) {
	if vectors == nil {
		return nil, serrors.InternalError("search coordinator requires a vector store", nil)
	}
	if embedder == nil {
		return nil, serrors.InternalError("search coordinator requires an embedder", nil)
	}
	if hist == nil {
		return nil, serrors.InternalError("search coordinator requires a history source", nil)
	}
	if _, ok := embedder.(*embed.CachedEmbedder); !ok {
		embedder = embed.NewCachedEmbedder(embedder, embed.DefaultEmbeddingCacheSize)
	}

	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		cfg:      cfg,
		vectors:  vectors,
		embedder: embedder,
		history:  hist,
		logger:   logging.Discard(),
		fusion:   NewRRFFusion(cfg.RRFConstant),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.debouncer = NewDebouncer(cfg.Debounce,
		func(ctx context.Context) (*BuildResult, error) {
			return c.rebuild(ctx, "debounced")
		},
		shutdownResult,
	)
	return c, nil
}

// BuildLexicalIndex builds the lexical index now. Concurrent calls share
// one build. A caller whose ctx ends stops waiting; the build goes on.
func (c *Coordinator) BuildLexicalIndex(ctx context.Context) (*BuildResult, error) {
	if c.closed.Load() {
		return shutdownResult(), ErrShuttingDown
	}

	ch := c.sf.DoChan("build", func() (any, error) {
		return c.rebuild(c.ctx, "direct")
	})
	select {
	case res := <-ch:
		br, _ := res.Val.(*BuildResult)
		return br, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// InvalidateAndRebuild marks the index stale and schedules a debounced
// rebuild. Every call within one debounce window gets the same result.
func (c *Coordinator) InvalidateAndRebuild(ctx context.Context, reason string) (*BuildResult, error) {
	if c.closed.Load() {
		return shutdownResult(), ErrShuttingDown
	}
	c.dirtyGen.Add(1)
	c.logger.Debug("lexical index invalidated", slog.String("reason", reason))
	return c.debouncer.Trigger(ctx)
}

func shutdownResult() *BuildResult {
	return &BuildResult{Success: false, Reason: ReasonShuttingDown, Error: ErrShuttingDown.Error()}
}

// rebuild builds a fresh index off to the side and swaps it in. Physical
// builds are serialized.
func (c *Coordinator) rebuild(ctx context.Context, trigger string) (*BuildResult, error) {
	c.buildMu.Lock()
	defer c.buildMu.Unlock()

	gen := c.dirtyGen.Load()
	start := time.Now()
	result := &BuildResult{BuildID: uuid.New().String(), Trigger: trigger}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RebuildTimeout)
	defer cancel()
	ctx, span := telemetry.StartSpan(ctx, "search.build",
		attribute.String("trigger", trigger),
		attribute.String("backend", c.cfg.LexicalBackend))
	defer span.End()

	fail := func(reason string, err error) (*BuildResult, error) {
		if errors.Is(err, context.DeadlineExceeded) {
			reason = ReasonTimeout
		}
		if c.closed.Load() || errors.Is(err, context.Canceled) {
			reason = ReasonShuttingDown
		}
		result.Reason = reason
		result.Error = err.Error()
		result.Duration = time.Since(start)
		c.idxMu.Lock()
		c.lastErr = err.Error()
		c.idxMu.Unlock()
		telemetry.RecordError(span, err)
		c.logger.Warn("lexical index build failed",
			slog.String("build_id", result.BuildID),
			slog.String("reason", reason),
			slog.String("error", err.Error()))
		return result, serrors.New(serrors.ErrCodeIndexBuild, "lexical index build failed", err).
			WithDetail("reason", reason)
	}

	entries, err := c.history.Entries(ctx)
	if err != nil {
		return fail(ReasonHistoryFailed, err)
	}
	docs := history.Documents(entries, c.cfg.MaxTextChars)

	idx, err := store.NewLexicalIndex(ctx, c.cfg.LexicalBackend, c.cfg.BM25)
	if err != nil {
		return fail(ReasonIndexFailed, err)
	}
	if err := idx.Index(ctx, docs); err != nil {
		_ = idx.Close()
		return fail(ReasonIndexFailed, err)
	}
	if err := ctx.Err(); err != nil {
		_ = idx.Close()
		return fail(ReasonIndexFailed, err)
	}

	c.idxMu.Lock()
	if c.closed.Load() {
		c.idxMu.Unlock()
		_ = idx.Close()
		return fail(ReasonShuttingDown, ErrShuttingDown)
	}
	old := c.index
	c.index = idx
	c.indexed = idx.Count()
	c.builtAt = time.Now().UTC()
	c.lastErr = ""
	builtAt := c.builtAt
	c.idxMu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	c.cleanGen.Store(gen)
	c.builds.Add(1)

	result.Success = true
	result.Indexed = idx.Count()
	result.BuiltAt = builtAt
	result.Duration = time.Since(start)
	span.SetAttributes(attribute.Int("indexed", result.Indexed))
	c.logger.Info("lexical index built",
		slog.String("build_id", result.BuildID),
		slog.String("trigger", trigger),
		slog.Int("documents", result.Indexed),
		slog.Duration("duration", result.Duration))
	return result, nil
}

// stale reports whether an invalidation arrived after the last build began.
func (c *Coordinator) stale() bool {
	return c.dirtyGen.Load() > c.cleanGen.Load()
}

// Search runs the query in the requested mode. One failing leg degrades
// to the other; only when every requested leg fails is an error returned.
// Graph failures never fail the search.
func (c *Coordinator) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	start := time.Now()
	if c.closed.Load() {
		return nil, ErrShuttingDown
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, serrors.New(serrors.ErrCodeQueryEmpty, "query must not be empty", nil)
	}
	mode := opts.Mode
	if mode == "" {
		mode = c.cfg.DefaultMode
	}
	mode, err := ParseMode(string(mode))
	if err != nil {
		return nil, err
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = c.cfg.MaxResults
	}
	topK = min(topK, MaxTopK)

	weights := c.cfg.Weights
	if opts.Weights != nil {
		if !opts.Weights.valid() {
			return nil, serrors.ValidationError("weights must be finite, non-negative and not both zero", nil)
		}
		weights = *opts.Weights
	}
	switch mode {
	case ModeVector:
		weights = Weights{Vector: 1}
	case ModeBM25:
		weights = Weights{Lexical: 1}
	}

	includeChunks := c.cfg.IncludeChunks
	if opts.IncludeChunks != nil {
		includeChunks = *opts.IncludeChunks
	}
	graphCfg := c.cfg.Graph
	if opts.GraphExpansion != nil {
		graphCfg.Enabled = *opts.GraphExpansion
	}

	ctx, span := telemetry.StartSpan(ctx, "search.query",
		attribute.String("mode", string(mode)),
		attribute.Int("top_k", topK))
	defer span.End()

	meta := Meta{Query: query, Mode: mode, TopK: topK}
	fetchK := topK * 2

	var (
		g          errgroup.Group
		vecHits    []store.Match
		lexHits    []*store.LexicalResult
		vecErr     error
		lexErr     error
		lexStale   bool
		lexBuiltAt time.Time
	)
	if mode.runsVector() {
		g.Go(func() error {
			legCtx, cancel := context.WithTimeout(ctx, c.cfg.SearchTimeout)
			defer cancel()
			vecHits, vecErr = c.vectorLeg(legCtx, query, fetchK, includeChunks)
			return nil
		})
	}
	if mode.runsLexical() {
		g.Go(func() error {
			legCtx, cancel := context.WithTimeout(ctx, c.cfg.SearchTimeout)
			defer cancel()
			lexHits, lexStale, lexBuiltAt, lexErr = c.lexicalLeg(legCtx, query, fetchK)
			return nil
		})
	}
	_ = g.Wait()

	meta.VectorHits, meta.LexicalHits = len(vecHits), len(lexHits)
	meta.LexicalStale, meta.LexicalBuiltAt = lexStale, lexBuiltAt
	if vecErr != nil {
		meta.Degraded = append(meta.Degraded, LegVector)
		meta.VectorError = vecErr.Error()
	}
	if lexErr != nil {
		meta.Degraded = append(meta.Degraded, LegLexical)
		meta.LexicalError = lexErr.Error()
	}

	vecFailed := !mode.runsVector() || vecErr != nil
	lexFailed := !mode.runsLexical() || lexErr != nil
	if vecFailed && lexFailed {
		cause := errors.Join(vecErr, lexErr)
		telemetry.RecordError(span, cause)
		c.record(query, mode, 0, time.Since(start), true)
		return nil, serrors.New(serrors.ErrCodeSearchFailed, "all search legs failed", cause)
	}
	if len(meta.Degraded) > 0 {
		c.logger.Warn("search degraded",
			slog.String("mode", string(mode)),
			slog.Any("failed_legs", meta.Degraded))
	}

	results := c.fusion.Fuse(vecHits, lexHits, weights)
	results, meta.Graph = expandGraph(ctx, c.graph, results, graphCfg)
	if meta.Graph.Error != "" {
		c.logger.Warn("graph expansion failed", slog.String("error", meta.Graph.Error))
	}
	if len(results) > topK {
		results = results[:topK]
	}

	meta.Duration = time.Since(start)
	span.SetAttributes(attribute.Int("results", len(results)))
	c.record(query, mode, len(results), meta.Duration, len(meta.Degraded) > 0)

	return &Response{Results: results, Meta: meta}, nil
}

func (c *Coordinator) record(query string, mode Mode, n int, latency time.Duration, degraded bool) {
	if c.metrics == nil {
		return
	}
	c.metrics.Record(telemetry.QueryEvent{
		Query:       query,
		Mode:        string(mode),
		ResultCount: n,
		Latency:     latency,
		Degraded:    degraded,
		Timestamp:   time.Now(),
	})
}

// vectorLeg embeds the query and ranks files, folding chunk hits into
// their parent file when includeChunks is set.
func (c *Coordinator) vectorLeg(ctx context.Context, query string, k int, includeChunks bool) ([]store.Match, error) {
	vec, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	files, err := c.vectors.Query(ctx, store.NamespaceFile, vec, k)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	if !includeChunks {
		return files, nil
	}

	chunks, err := c.vectors.Query(ctx, store.NamespaceChunk, vec, k)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	return collapseChunks(files, chunks, k), nil
}

// collapseChunks merges chunk matches into their parent file ids, keeping
// the best score per file.
func collapseChunks(files, chunks []store.Match, k int) []store.Match {
	best := make(map[string]int, len(files)+len(chunks))
	out := make([]store.Match, 0, len(files)+len(chunks))
	for _, m := range files {
		best[m.ID] = len(out)
		out = append(out, m)
	}
	for _, m := range chunks {
		parent := parentFileID(m)
		if parent == "" {
			continue
		}
		if i, ok := best[parent]; ok {
			if m.Score > out[i].Score {
				out[i].Score = m.Score
			}
			continue
		}
		m.ID = parent
		best[parent] = len(out)
		out = append(out, m)
	}
	sortMatches(out)
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// sortMatches orders like the store: score, newer first, then id.
func sortMatches(ms []store.Match) {
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].Score != ms[j].Score {
			return ms[i].Score > ms[j].Score
		}
		if !ms[i].UpdatedAt.Equal(ms[j].UpdatedAt) {
			return ms[i].UpdatedAt.After(ms[j].UpdatedAt)
		}
		return ms[i].ID < ms[j].ID
	})
}

func parentFileID(m store.Match) string {
	if id, ok := m.Metadata["fileId"].(string); ok && id != "" {
		if qid, err := store.QualifyID(store.NamespaceFile, id); err == nil {
			return qid
		}
	}
	ns, key, ok := store.SplitID(m.ID)
	if !ok || ns != store.NamespaceChunk {
		return ""
	}
	if i := strings.LastIndexByte(key, '#'); i > 0 {
		key = key[:i]
	}
	return store.FileID(key)
}

// lexicalLeg searches the current index, building it first if none
// exists yet. A stale index is served as is.
func (c *Coordinator) lexicalLeg(ctx context.Context, query string, k int) ([]*store.LexicalResult, bool, time.Time, error) {
	c.idxMu.RLock()
	built := c.index != nil
	c.idxMu.RUnlock()

	if !built {
		if _, err := c.BuildLexicalIndex(ctx); err != nil {
			return nil, false, time.Time{}, fmt.Errorf("build lexical index: %w", err)
		}
	}

	c.idxMu.RLock()
	defer c.idxMu.RUnlock()
	if c.index == nil {
		return nil, false, time.Time{}, serrors.New(serrors.ErrCodeIndexBuild, "lexical index unavailable", nil)
	}
	hits, err := c.index.Search(ctx, query, k)
	if err != nil {
		return nil, false, time.Time{}, fmt.Errorf("lexical search: %w", err)
	}
	return hits, c.stale(), c.builtAt, nil
}

// Stats describes the lexical index.
func (c *Coordinator) Stats() IndexStats {
	c.idxMu.RLock()
	defer c.idxMu.RUnlock()
	return IndexStats{
		Backend: c.cfg.LexicalBackend,
		Indexed: c.indexed,
		Built:   c.index != nil,
		BuiltAt: c.builtAt,
		Stale:   c.stale() || c.debouncer.Pending(),
		Builds:  c.builds.Load(),
		LastErr: c.lastErr,
	}
}

// Config returns the effective configuration.
func (c *Coordinator) Config() Config {
	return c.cfg
}

// Close resolves pending rebuild waiters with ErrShuttingDown, cancels a
// running build and releases the index. Safe to call more than once.
func (c *Coordinator) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.debouncer.Close()
		c.cancel()

		// Wait out a direct build that may still hold buildMu.
		c.buildMu.Lock()
		c.idxMu.Lock()
		if c.index != nil {
			err = c.index.Close()
			c.index = nil
		}
		c.idxMu.Unlock()
		c.buildMu.Unlock()
	})
	return err
}
