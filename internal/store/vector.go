package store

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	serrors "github.com/Aman-CERP/stratoindex/internal/errors"
	"github.com/Aman-CERP/stratoindex/internal/logging"
)

// DefaultMinSimilarity is the relevance floor applied to queries.
const DefaultMinSimilarity = 0.15

// DefaultTopK is used when a query asks for zero or fewer results.
const DefaultTopK = 10

// VectorStoreConfig configures a VectorStore.
type VectorStoreConfig struct {
	// Dimension is the expected vector length. 0 adopts the length of the
	// first record written (or the persisted dimension).
	Dimension int

	// MinSimilarity excludes weaker matches even when topK is not reached.
	MinSimilarity float64

	// Path is the SQLite database file. Empty keeps everything in memory.
	Path string
}

// DefaultVectorStoreConfig returns the default configuration.
func DefaultVectorStoreConfig(dimension int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimension:     dimension,
		MinSimilarity: DefaultMinSimilarity,
	}
}

type entry struct {
	rec  Record
	norm float64
}

// VectorStore is a namespaced brute-force cosine store.
type VectorStore struct {
	mu          sync.RWMutex
	cfg         VectorStoreConfig
	dimension   int
	collections map[Namespace]map[string]*entry
	lastUpdated time.Time
	db          *sqliteVectors
	closed      bool
	logger      *slog.Logger
}

// VectorStoreOption configures a VectorStore.
type VectorStoreOption func(*VectorStore)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) VectorStoreOption {
	return func(s *VectorStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewVectorStore opens a store, loading persisted records when cfg.Path is set.
func NewVectorStore(ctx context.Context, cfg VectorStoreConfig, opts ...VectorStoreOption) (*VectorStore, error) {
	if cfg.MinSimilarity < -1 || cfg.MinSimilarity > 1 {
		return nil, fmt.Errorf("min similarity must be between -1 and 1, got %f", cfg.MinSimilarity)
	}

	s := &VectorStore{
		cfg:         cfg,
		dimension:   cfg.Dimension,
		collections: make(map[Namespace]map[string]*entry, len(Namespaces)),
		logger:      logging.Discard(),
	}
	for _, ns := range Namespaces {
		s.collections[ns] = make(map[string]*entry)
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.Path == "" {
		return s, nil
	}

	db, err := openSQLiteVectors(ctx, cfg.Path, s.logger)
	if err != nil {
		return nil, err
	}
	s.db = db

	if err := s.load(ctx); err != nil {
		_ = db.close()
		return nil, err
	}
	return s, nil
}

func (s *VectorStore) load(ctx context.Context) error {
	dim, err := s.db.dimension(ctx)
	if err != nil {
		return err
	}

	switch {
	case dim == 0 && s.cfg.Dimension > 0:
		if err := s.db.setDimension(ctx, s.cfg.Dimension); err != nil {
			return err
		}
	case dim > 0 && s.cfg.Dimension > 0 && dim != s.cfg.Dimension:
		// Keep the persisted collection; writes of the configured size will
		// report dimension_mismatch until the operator resets the store.
		s.logger.Warn("vector_store_dimension_mismatch",
			slog.Int("persisted", dim),
			slog.Int("configured", s.cfg.Dimension))
		s.dimension = dim
	case dim > 0:
		s.dimension = dim
	}

	loaded := 0
	err = s.db.each(ctx, func(ns Namespace, rec Record) {
		s.collections[ns][rec.ID] = &entry{rec: rec, norm: vectorNorm(rec.Vector)}
		if rec.UpdatedAt.After(s.lastUpdated) {
			s.lastUpdated = rec.UpdatedAt
		}
		loaded++
	})
	if err != nil {
		return err
	}

	s.logger.Info("vector_store_loaded",
		slog.String("path", s.cfg.Path),
		slog.Int("records", loaded),
		slog.Int("dimension", s.dimension))
	return nil
}

// Dimension returns the active dimension (0 while still unset).
func (s *VectorStore) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

// UpsertFile stores or replaces a file record.
func (s *VectorStore) UpsertFile(ctx context.Context, rec Record) Result {
	return s.Upsert(ctx, NamespaceFile, rec)
}

// UpsertFolder stores or replaces a folder record.
func (s *VectorStore) UpsertFolder(ctx context.Context, rec Record) Result {
	return s.Upsert(ctx, NamespaceFolder, rec)
}

// UpsertChunk stores or replaces a chunk record.
func (s *VectorStore) UpsertChunk(ctx context.Context, rec Record) Result {
	return s.Upsert(ctx, NamespaceChunk, rec)
}

// UpsertFiles writes file records as one all-or-nothing batch.
func (s *VectorStore) UpsertFiles(ctx context.Context, recs []Record) BatchResult {
	return s.UpsertBatch(ctx, NamespaceFile, recs)
}

// UpsertFolders writes folder records as one all-or-nothing batch.
func (s *VectorStore) UpsertFolders(ctx context.Context, recs []Record) BatchResult {
	return s.UpsertBatch(ctx, NamespaceFolder, recs)
}

// UpsertChunks writes chunk records as one all-or-nothing batch.
func (s *VectorStore) UpsertChunks(ctx context.Context, recs []Record) BatchResult {
	return s.UpsertBatch(ctx, NamespaceChunk, recs)
}

// Upsert stores rec in ns, replacing any record with the same id.
func (s *VectorStore) Upsert(ctx context.Context, ns Namespace, rec Record) Result {
	return s.UpsertBatch(ctx, ns, []Record{rec}).Result
}

// UpsertBatch validates every record, then writes all of them or none.
func (s *VectorStore) UpsertBatch(ctx context.Context, ns Namespace, recs []Record) BatchResult {
	if len(recs) == 0 {
		return BatchResult{Result: Ok()}
	}
	if err := ctx.Err(); err != nil {
		return BatchResult{Result: Transient(ReasonTimeout, err)}
	}

	prepared := make([]Record, 0, len(recs))
	for _, rec := range recs {
		p, res := prepareRecord(ns, rec)
		if !res.OK() {
			return BatchResult{Result: res}
		}
		prepared = append(prepared, p)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return BatchResult{Result: Transient(ReasonClosed, serrors.New(serrors.ErrCodeStoreClosed, "store is closed", nil))}
	}

	dim := s.dimension
	if dim == 0 {
		dim = len(prepared[0].Vector)
	}
	for _, rec := range prepared {
		if len(rec.Vector) != dim {
			err := serrors.New(serrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("vector dimension %d does not match collection dimension %d", len(rec.Vector), dim), nil).
				WithDetail("id", rec.ID).
				WithSuggestion("reset the store and re-embed with the active model")
			return BatchResult{Result: Structural(ReasonDimensionMismatch, err)}
		}
	}

	if s.db != nil {
		if s.dimension == 0 {
			if err := s.db.setDimension(ctx, dim); err != nil {
				return BatchResult{Result: Transient(ReasonPersistFailed, err)}
			}
		}
		if err := s.db.put(ctx, ns, prepared); err != nil {
			s.logger.Warn("vector_store_write_failed",
				slog.String("namespace", string(ns)),
				slog.Int("records", len(prepared)),
				slog.String("error", err.Error()))
			return BatchResult{Result: Transient(ReasonPersistFailed, err)}
		}
	}

	s.dimension = dim
	coll := s.collections[ns]
	for _, rec := range prepared {
		coll[rec.ID] = &entry{rec: rec, norm: vectorNorm(rec.Vector)}
		if rec.UpdatedAt.After(s.lastUpdated) {
			s.lastUpdated = rec.UpdatedAt
		}
	}

	return BatchResult{Result: Ok(), Upserted: len(prepared)}
}

// prepareRecord canonicalizes the id and copies the payload so later
// caller mutations cannot reach stored state.
func prepareRecord(ns Namespace, rec Record) (Record, Result) {
	id, err := QualifyID(ns, rec.ID)
	if err != nil {
		return Record{}, Structural(ReasonInvalidID, serrors.New(serrors.ErrCodeInvalidID, err.Error(), err))
	}
	if len(rec.Vector) == 0 || !IsFinite(rec.Vector) {
		return Record{}, Structural(ReasonInvalidVector,
			serrors.New(serrors.ErrCodeInvalidVector, "vector is empty or has non-finite components", nil).
				WithDetail("id", id))
	}

	out := Record{
		ID:        id,
		Vector:    append([]float32(nil), rec.Vector...),
		Metadata:  copyMetadata(rec.Metadata),
		UpdatedAt: rec.UpdatedAt,
	}
	if out.UpdatedAt.IsZero() {
		out.UpdatedAt = time.Now().UTC()
	}
	return out, Ok()
}

func copyMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// QueryOption adjusts a similarity query.
type QueryOption func(*queryOptions)

type queryOptions struct {
	minSimilarity *float64
}

// WithMinSimilarity overrides the store's relevance floor for one query.
func WithMinSimilarity(v float64) QueryOption {
	return func(o *queryOptions) {
		o.minSimilarity = &v
	}
}

// QuerySimilarFiles returns the topK most similar file records.
func (s *VectorStore) QuerySimilarFiles(ctx context.Context, vector []float32, topK int, opts ...QueryOption) ([]Match, error) {
	return s.Query(ctx, NamespaceFile, vector, topK, opts...)
}

// QueryFoldersByEmbedding returns the topK most similar folder records.
func (s *VectorStore) QueryFoldersByEmbedding(ctx context.Context, vector []float32, topK int, opts ...QueryOption) ([]Match, error) {
	return s.Query(ctx, NamespaceFolder, vector, topK, opts...)
}

// QuerySimilarChunks returns the topK most similar chunk records.
func (s *VectorStore) QuerySimilarChunks(ctx context.Context, vector []float32, topK int, opts ...QueryOption) ([]Match, error) {
	return s.Query(ctx, NamespaceChunk, vector, topK, opts...)
}

// Query ranks ns by cosine similarity to vector: descending score, ties
// by most recent UpdatedAt, then by id. Matches below the floor are dropped.
func (s *VectorStore) Query(ctx context.Context, ns Namespace, vector []float32, topK int, opts ...QueryOption) ([]Match, error) {
	o := queryOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	floor := s.cfg.MinSimilarity
	if o.minSimilarity != nil {
		floor = *o.minSimilarity
	}

	if len(vector) == 0 {
		return nil, serrors.New(serrors.ErrCodeInvalidVector, "query vector is empty", nil)
	}
	if !IsFinite(vector) {
		vector, _ = SanitizeVector(vector)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, serrors.New(serrors.ErrCodeStoreClosed, "store is closed", nil)
	}
	if s.dimension == 0 {
		return []Match{}, nil
	}
	if len(vector) != s.dimension {
		return nil, serrors.New(serrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("query dimension %d does not match collection dimension %d", len(vector), s.dimension), nil)
	}

	qnorm := vectorNorm(vector)
	coll := s.collections[ns]
	matches := make([]Match, 0, min(len(coll), topK*2))

	checked := 0
	for _, e := range coll {
		checked++
		if checked%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		score := cosineWithNorms(vector, e.rec.Vector, qnorm, e.norm)
		if math.IsNaN(score) || score < floor {
			continue
		}
		matches = append(matches, Match{
			ID:        e.rec.ID,
			Score:     score,
			Metadata:  copyMetadata(e.rec.Metadata),
			UpdatedAt: e.rec.UpdatedAt,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if !matches[i].UpdatedAt.Equal(matches[j].UpdatedAt) {
			return matches[i].UpdatedAt.After(matches[j].UpdatedAt)
		}
		return matches[i].ID < matches[j].ID
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Get returns a copy of the record with the given id.
func (s *VectorStore) Get(id string) (Record, bool) {
	ns := NamespaceOf(id)
	qid, err := QualifyID(ns, id)
	if err != nil {
		return Record{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.collections[ns][qid]
	if !ok {
		return Record{}, false
	}
	rec := e.rec
	rec.Vector = append([]float32(nil), e.rec.Vector...)
	rec.Metadata = copyMetadata(e.rec.Metadata)
	return rec, true
}

// DeleteFileEmbedding removes a file record and its chunks. Returns false
// when the file was not stored.
func (s *VectorStore) DeleteFileEmbedding(ctx context.Context, id string) (bool, error) {
	fid, err := QualifyID(NamespaceFile, id)
	if err != nil {
		return false, serrors.New(serrors.ErrCodeInvalidID, err.Error(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, serrors.New(serrors.ErrCodeStoreClosed, "store is closed", nil)
	}

	_, found := s.collections[NamespaceFile][fid]
	chunks := s.chunksOfLocked(fid)

	if s.db != nil {
		if err := s.db.delete(ctx, NamespaceFile, []string{fid}); err != nil {
			return false, err
		}
		if err := s.db.delete(ctx, NamespaceChunk, chunks); err != nil {
			return false, err
		}
	}

	delete(s.collections[NamespaceFile], fid)
	for _, cid := range chunks {
		delete(s.collections[NamespaceChunk], cid)
	}
	return found, nil
}

// DeleteFolderEmbedding removes a folder record.
func (s *VectorStore) DeleteFolderEmbedding(ctx context.Context, id string) (bool, error) {
	fid, err := QualifyID(NamespaceFolder, id)
	if err != nil {
		return false, serrors.New(serrors.ErrCodeInvalidID, err.Error(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, serrors.New(serrors.ErrCodeStoreClosed, "store is closed", nil)
	}
	_, found := s.collections[NamespaceFolder][fid]
	if !found {
		return false, nil
	}
	if s.db != nil {
		if err := s.db.delete(ctx, NamespaceFolder, []string{fid}); err != nil {
			return false, err
		}
	}
	delete(s.collections[NamespaceFolder], fid)
	return true, nil
}

// must hold mu
func (s *VectorStore) chunksOfLocked(fileID string) []string {
	var ids []string
	for id, e := range s.collections[NamespaceChunk] {
		if parent, _ := e.rec.Metadata["fileId"].(string); parent == fileID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// UpdateFilePaths re-keys records after moves or renames. The vector is
// kept as-is; metadata "path" and "name" are rewritten. Chunks of a moved
// file follow it. Returns the number of file or folder records re-keyed;
// unknown old ids are skipped.
//
// The batch is applied as one step against the state before the call, so
// chains (a->b, b->c) and swaps (a->b, b->a) keep every record. A target id
// held by a record that is not moving away, or claimed by two updates,
// fails the whole batch with ErrCodePathConflict and nothing changes.
func (s *VectorStore) UpdateFilePaths(ctx context.Context, updates []PathUpdate) (int, error) {
	if len(updates) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, serrors.New(serrors.ErrCodeStoreClosed, "store is closed", nil)
	}

	type rekey struct {
		ns      Namespace
		oldID   string
		newID   string
		newPath string
		newName string
		e       *entry
	}

	var plan []rekey
	leaving := make(map[string]struct{}, len(updates))
	for _, u := range updates {
		ns := NamespaceOf(u.OldID)
		oldID, err := QualifyID(ns, u.OldID)
		if err != nil {
			continue
		}
		e, ok := s.collections[ns][oldID]
		if !ok {
			continue
		}
		if _, dup := leaving[oldID]; dup {
			return 0, serrors.New(serrors.ErrCodePathConflict, "record is moved twice in one batch", nil).
				WithDetail("oldId", oldID)
		}

		newPath := NormalizePath(u.NewPath)
		newID := u.NewID
		if newID == "" {
			newID = newPath
		}
		newID, err = QualifyID(ns, newID)
		if err != nil {
			return 0, serrors.New(serrors.ErrCodeInvalidID, err.Error(), err).WithDetail("oldId", oldID)
		}

		leaving[oldID] = struct{}{}
		plan = append(plan, rekey{ns: ns, oldID: oldID, newID: newID, newPath: newPath, newName: u.NewName, e: e})
	}

	claimed := make(map[string]string, len(plan))
	for _, p := range plan {
		if other, ok := claimed[p.newID]; ok {
			return 0, serrors.New(serrors.ErrCodePathConflict, "two records would share one id", nil).
				WithDetail("newId", p.newID).WithDetail("oldId", p.oldID).WithDetail("otherOldId", other)
		}
		claimed[p.newID] = p.oldID
		if _, taken := s.collections[p.ns][p.newID]; taken {
			if _, moving := leaving[p.newID]; !moving {
				return 0, serrors.New(serrors.ErrCodePathConflict, "target id belongs to another record", nil).
					WithDetail("newId", p.newID).WithDetail("oldId", p.oldID)
			}
		}
	}

	var moves []move
	for _, p := range plan {
		rec := p.e.rec
		rec.ID = p.newID
		rec.Metadata = copyMetadata(p.e.rec.Metadata)
		if rec.Metadata == nil {
			rec.Metadata = make(map[string]any)
		}
		if p.newPath != "" {
			rec.Metadata["path"] = p.newPath
			name := p.newName
			if name == "" {
				name = path.Base(p.newPath)
			}
			rec.Metadata["name"] = name
		}
		moves = append(moves, move{ns: p.ns, oldID: p.oldID, rec: rec})

		if p.ns == NamespaceFile {
			moves = append(moves, s.chunkMovesLocked(p.oldID, p.newID, p.newPath)...)
		}
	}

	if len(moves) == 0 {
		return 0, nil
	}

	if s.db != nil {
		if err := s.db.rename(ctx, moves); err != nil {
			return 0, err
		}
	}

	for _, m := range moves {
		delete(s.collections[m.ns], m.oldID)
	}
	updated := 0
	for _, m := range moves {
		s.collections[m.ns][m.rec.ID] = &entry{rec: m.rec, norm: vectorNorm(m.rec.Vector)}
		if m.ns != NamespaceChunk {
			updated++
		}
	}

	s.logger.Debug("vector_store_paths_updated", slog.Int("updated", updated), slog.Int("moves", len(moves)))
	return updated, nil
}

// must hold mu
func (s *VectorStore) chunkMovesLocked(oldFileID, newFileID, newPath string) []move {
	_, oldKey, _ := SplitID(oldFileID)
	_, newKey, _ := SplitID(newFileID)
	oldPrefix := NamespaceChunk.Prefix() + oldKey + "#"

	var moves []move
	for _, cid := range s.chunksOfLocked(oldFileID) {
		e := s.collections[NamespaceChunk][cid]
		rec := e.rec
		rec.Metadata = copyMetadata(e.rec.Metadata)
		rec.Metadata["fileId"] = newFileID
		if newPath != "" {
			rec.Metadata["path"] = newPath
		}
		if strings.HasPrefix(cid, oldPrefix) {
			rec.ID = NamespaceChunk.Prefix() + newKey + "#" + strings.TrimPrefix(cid, oldPrefix)
		}
		moves = append(moves, move{ns: NamespaceChunk, oldID: cid, rec: rec})
	}
	return moves
}

// GetStats reports collection sizes and configuration.
func (s *VectorStore) GetStats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Stats{}, serrors.New(serrors.ErrCodeStoreClosed, "store is closed", nil)
	}
	return Stats{
		Files:         len(s.collections[NamespaceFile]),
		Folders:       len(s.collections[NamespaceFolder]),
		Chunks:        len(s.collections[NamespaceChunk]),
		Dimension:     s.dimension,
		Durable:       s.db != nil,
		MinSimilarity: s.cfg.MinSimilarity,
		LastUpdated:   s.lastUpdated,
	}, nil
}

// Reset drops every record and forgets the dimension, so the next write
// defines it again. Used after an embedding model change.
func (s *VectorStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return serrors.New(serrors.ErrCodeStoreClosed, "store is closed", nil)
	}
	if s.db != nil {
		if err := s.db.reset(ctx); err != nil {
			return err
		}
	}
	for _, ns := range Namespaces {
		s.collections[ns] = make(map[string]*entry)
	}
	s.dimension = s.cfg.Dimension
	if s.db != nil && s.dimension > 0 {
		if err := s.db.setDimension(ctx, s.dimension); err != nil {
			return err
		}
	}
	s.lastUpdated = time.Time{}
	s.logger.Info("vector_store_reset", slog.Int("dimension", s.dimension))
	return nil
}

// Close releases the database. Later calls return store-closed errors.
func (s *VectorStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.db != nil {
		return s.db.close()
	}
	return nil
}
