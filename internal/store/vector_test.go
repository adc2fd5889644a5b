package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/Aman-CERP/stratoindex/internal/errors"
)

func newMemoryStore(t *testing.T, dim int) *VectorStore {
	t.Helper()
	s, err := NewVectorStore(context.Background(), DefaultVectorStoreConfig(dim))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func fileCount(t *testing.T, s *VectorStore) int {
	t.Helper()
	stats, err := s.GetStats(context.Background())
	require.NoError(t, err)
	return stats.Files
}

func TestVectorStore_QuerySimilarFiles_RanksByCosine(t *testing.T) {
	// Given: a finance document, a legal document and a near-duplicate invoice
	ctx := context.Background()
	s := newMemoryStore(t, 3)

	res := s.UpsertFiles(ctx, []Record{
		{ID: "/docs/invoice-march.pdf", Vector: []float32{1, 0.1, 0}, Metadata: map[string]any{"category": "finance"}},
		{ID: "/docs/invoice-april.pdf", Vector: []float32{0.9, 0.2, 0}, Metadata: map[string]any{"category": "finance"}},
		{ID: "/docs/nda.pdf", Vector: []float32{0, 0.1, 1}, Metadata: map[string]any{"category": "legal"}},
	})
	require.True(t, res.OK())
	assert.Equal(t, 3, res.Upserted)

	// When: querying with a finance-like vector
	matches, err := s.QuerySimilarFiles(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)

	// Then: finance documents come first and the legal one falls under the floor
	require.Len(t, matches, 2)
	assert.Equal(t, "file:/docs/invoice-march.pdf", matches[0].ID)
	assert.Equal(t, "file:/docs/invoice-april.pdf", matches[1].ID)
	assert.Greater(t, matches[0].Score, matches[1].Score)
	assert.Greater(t, matches[0].Score, 0.9)
	assert.Greater(t, matches[1].Score, 0.9)
	assert.Equal(t, "finance", matches[0].Metadata["category"])
}

func TestVectorStore_Query_MinSimilarityOverride(t *testing.T) {
	// Given: a store with an orthogonal record
	ctx := context.Background()
	s := newMemoryStore(t, 2)
	require.True(t, s.UpsertFile(ctx, Record{ID: "/a", Vector: []float32{0, 1}}).OK())

	// When: the per-query floor is lowered below zero
	matches, err := s.QuerySimilarFiles(ctx, []float32{1, 0}, 5, WithMinSimilarity(-1))
	require.NoError(t, err)

	// Then: the orthogonal record is returned with score 0
	require.Len(t, matches, 1)
	assert.InDelta(t, 0, matches[0].Score, 1e-9)

	// And: the default floor hides it
	matches, err = s.QuerySimilarFiles(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestVectorStore_Upsert_IsIdempotent(t *testing.T) {
	// Given: a stored file
	ctx := context.Background()
	s := newMemoryStore(t, 2)
	rec := Record{ID: "/docs/a.txt", Vector: []float32{1, 1}}
	require.True(t, s.UpsertFile(ctx, rec).OK())

	// When: the same record is written again
	require.True(t, s.UpsertFile(ctx, rec).OK())

	// Then: there is still one record
	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Files)
}

func TestVectorStore_Upsert_DimensionMismatchIsStructural(t *testing.T) {
	// Given: a store whose dimension was adopted from the first write
	ctx := context.Background()
	s := newMemoryStore(t, 0)
	require.True(t, s.UpsertFile(ctx, Record{ID: "/a", Vector: []float32{1, 0, 0}}).OK())
	assert.Equal(t, 3, s.Dimension())

	// When: a vector of another size is written
	res := s.UpsertFile(ctx, Record{ID: "/b", Vector: []float32{1, 0}})

	// Then: it is a structural failure that asks for a rebuild
	assert.Equal(t, OutcomeStructural, res.Outcome)
	assert.Equal(t, ReasonDimensionMismatch, res.Reason)
	assert.True(t, res.RequiresRebuild)
	assert.Equal(t, serrors.ErrCodeDimensionMismatch, serrors.GetCode(res.Err))

	_, ok := s.Get("/b")
	assert.False(t, ok)
}

func TestVectorStore_UpsertBatch_AllOrNothing(t *testing.T) {
	// Given: a batch with one bad vector
	ctx := context.Background()
	s := newMemoryStore(t, 2)

	// When: the batch is written
	res := s.UpsertFiles(ctx, []Record{
		{ID: "/ok", Vector: []float32{1, 0}},
		{ID: "/bad", Vector: []float32{float32(math.NaN()), 0}},
	})

	// Then: nothing was stored
	assert.Equal(t, OutcomeStructural, res.Outcome)
	assert.Equal(t, ReasonInvalidVector, res.Reason)
	assert.Zero(t, res.Upserted)
	_, ok := s.Get("/ok")
	assert.False(t, ok)
}

func TestVectorStore_Upsert_RejectsForeignNamespace(t *testing.T) {
	s := newMemoryStore(t, 2)

	res := s.UpsertFile(context.Background(), Record{ID: "folder:taxes", Vector: []float32{1, 0}})

	assert.Equal(t, OutcomeStructural, res.Outcome)
	assert.Equal(t, ReasonInvalidID, res.Reason)
}

func TestVectorStore_Query_TiesPreferNewerThenID(t *testing.T) {
	// Given: three records with identical vectors
	ctx := context.Background()
	s := newMemoryStore(t, 2)
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := old.Add(time.Hour)
	require.True(t, s.UpsertFiles(ctx, []Record{
		{ID: "/b", Vector: []float32{1, 0}, UpdatedAt: old},
		{ID: "/a", Vector: []float32{1, 0}, UpdatedAt: old},
		{ID: "/c", Vector: []float32{1, 0}, UpdatedAt: newer},
	}).OK())

	// When: querying
	matches, err := s.QuerySimilarFiles(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)

	// Then: newest first, then by id
	require.Len(t, matches, 3)
	assert.Equal(t, "file:/c", matches[0].ID)
	assert.Equal(t, "file:/a", matches[1].ID)
	assert.Equal(t, "file:/b", matches[2].ID)
}

func TestVectorStore_Query_Namespaces(t *testing.T) {
	// Given: a file and a folder with the same vector
	ctx := context.Background()
	s := newMemoryStore(t, 2)
	require.True(t, s.UpsertFile(ctx, Record{ID: "/docs/tax.pdf", Vector: []float32{1, 0}}).OK())
	require.True(t, s.UpsertFolder(ctx, Record{ID: "Taxes", Vector: []float32{1, 0}}).OK())

	// When: querying folders
	matches, err := s.QueryFoldersByEmbedding(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)

	// Then: only the folder is returned
	require.Len(t, matches, 1)
	assert.Equal(t, "folder:Taxes", matches[0].ID)
}

func TestVectorStore_Query_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(t, 2)
	require.True(t, s.UpsertFile(ctx, Record{ID: "/a", Vector: []float32{1, 0}}).OK())

	_, err := s.QuerySimilarFiles(ctx, []float32{1, 0, 0}, 10)

	assert.Equal(t, serrors.ErrCodeDimensionMismatch, serrors.GetCode(err))
}

func TestVectorStore_Query_EmptyStoreReturnsEmpty(t *testing.T) {
	s := newMemoryStore(t, 0)

	matches, err := s.QuerySimilarFiles(context.Background(), []float32{1, 0}, 10)

	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestVectorStore_DeleteFileEmbedding_RemovesChunks(t *testing.T) {
	// Given: a file with two chunks and an unrelated chunk
	ctx := context.Background()
	s := newMemoryStore(t, 2)
	fid := FileID("/docs/report.pdf")
	require.True(t, s.UpsertFile(ctx, Record{ID: fid, Vector: []float32{1, 0}}).OK())
	require.True(t, s.UpsertChunks(ctx, []Record{
		{ID: ChunkID("/docs/report.pdf", 0), Vector: []float32{1, 0}, Metadata: map[string]any{"fileId": fid}},
		{ID: ChunkID("/docs/report.pdf", 1), Vector: []float32{0, 1}, Metadata: map[string]any{"fileId": fid}},
		{ID: ChunkID("/docs/other.pdf", 0), Vector: []float32{0, 1}, Metadata: map[string]any{"fileId": FileID("/docs/other.pdf")}},
	}).OK())

	// When: the file is deleted
	found, err := s.DeleteFileEmbedding(ctx, "/docs/report.pdf")
	require.NoError(t, err)

	// Then: its chunks are gone and the other chunk remains
	assert.True(t, found)
	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Files)
	assert.Equal(t, 1, stats.Chunks)

	// And: deleting again reports not found
	found, err = s.DeleteFileEmbedding(ctx, "/docs/report.pdf")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestVectorStore_UpdateFilePaths_RekeysAndKeepsVector(t *testing.T) {
	// Given: a file with one chunk
	ctx := context.Background()
	s := newMemoryStore(t, 2)
	fid := FileID("/inbox/scan.pdf")
	require.True(t, s.UpsertFile(ctx, Record{
		ID: fid, Vector: []float32{0.6, 0.8},
		Metadata: map[string]any{"path": "/inbox/scan.pdf", "name": "scan.pdf", "category": "finance"},
	}).OK())
	require.True(t, s.UpsertChunk(ctx, Record{
		ID: ChunkID("/inbox/scan.pdf", 0), Vector: []float32{1, 0},
		Metadata: map[string]any{"fileId": fid},
	}).OK())

	before, err := s.QuerySimilarFiles(ctx, []float32{0.8, 0.6}, 1)
	require.NoError(t, err)
	require.Len(t, before, 1)

	// When: the file is moved
	n, err := s.UpdateFilePaths(ctx, []PathUpdate{
		{OldID: fid, NewPath: "/finance/2024/invoice.pdf"},
		{OldID: "/does/not/exist", NewPath: "/x"},
	})
	require.NoError(t, err)

	// Then: one record was re-keyed with the same vector and new metadata
	assert.Equal(t, 1, n)
	_, ok := s.Get(fid)
	assert.False(t, ok)

	rec, ok := s.Get("file:/finance/2024/invoice.pdf")
	require.True(t, ok)
	assert.Equal(t, []float32{0.6, 0.8}, rec.Vector)
	assert.Equal(t, "/finance/2024/invoice.pdf", rec.Metadata["path"])
	assert.Equal(t, "invoice.pdf", rec.Metadata["name"])
	assert.Equal(t, "finance", rec.Metadata["category"])

	// And: the chunk followed its file
	chunk, ok := s.Get(ChunkID("/finance/2024/invoice.pdf", 0))
	require.True(t, ok)
	assert.Equal(t, "file:/finance/2024/invoice.pdf", chunk.Metadata["fileId"])

	// And: the same query scores the record identically under its new id
	after, err := s.QuerySimilarFiles(ctx, []float32{0.8, 0.6}, 1)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, "file:/finance/2024/invoice.pdf", after[0].ID)
	assert.InDelta(t, before[0].Score, after[0].Score, 1e-12)
}

func TestVectorStore_UpdateFilePaths_ChainKeepsBothRecords(t *testing.T) {
	// Given: two files where one is moved onto the other's old path
	ctx := context.Background()
	s := newMemoryStore(t, 2)
	require.True(t, s.UpsertFile(ctx, Record{ID: "/a", Vector: []float32{1, 0}}).OK())
	require.True(t, s.UpsertFile(ctx, Record{ID: "/b", Vector: []float32{0, 1}}).OK())

	// When: a->b and b->c are applied in one batch
	n, err := s.UpdateFilePaths(ctx, []PathUpdate{
		{OldID: "/a", NewPath: "/b"},
		{OldID: "/b", NewPath: "/c"},
	})
	require.NoError(t, err)

	// Then: both payloads survive under their new ids
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, fileCount(t, s))
	b, ok := s.Get("/b")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 0}, b.Vector)
	c, ok := s.Get("/c")
	require.True(t, ok)
	assert.Equal(t, []float32{0, 1}, c.Vector)
	_, ok = s.Get("/a")
	assert.False(t, ok)
}

func TestVectorStore_UpdateFilePaths_SwapExchangesRecords(t *testing.T) {
	// Given: two files
	ctx := context.Background()
	s := newMemoryStore(t, 2)
	require.True(t, s.UpsertFile(ctx, Record{ID: "/a", Vector: []float32{1, 0}}).OK())
	require.True(t, s.UpsertFile(ctx, Record{ID: "/b", Vector: []float32{0, 1}}).OK())

	// When: their paths are swapped
	n, err := s.UpdateFilePaths(ctx, []PathUpdate{
		{OldID: "/a", NewPath: "/b"},
		{OldID: "/b", NewPath: "/a"},
	})
	require.NoError(t, err)

	// Then: each id now holds the other vector
	assert.Equal(t, 2, n)
	a, ok := s.Get("/a")
	require.True(t, ok)
	assert.Equal(t, []float32{0, 1}, a.Vector)
	assert.Equal(t, "/a", a.Metadata["path"])
	b, ok := s.Get("/b")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 0}, b.Vector)
}

func TestVectorStore_UpdateFilePaths_RejectsOccupiedTarget(t *testing.T) {
	// Given: two files that stay where they are apart from one move
	ctx := context.Background()
	s := newMemoryStore(t, 2)
	require.True(t, s.UpsertFile(ctx, Record{ID: "/a", Vector: []float32{1, 0}}).OK())
	require.True(t, s.UpsertFile(ctx, Record{ID: "/b", Vector: []float32{0, 1}}).OK())
	require.True(t, s.UpsertFile(ctx, Record{ID: "/c", Vector: []float32{1, 1}}).OK())

	// When: /a is moved onto /b, which is not moving
	n, err := s.UpdateFilePaths(ctx, []PathUpdate{
		{OldID: "/c", NewPath: "/d"},
		{OldID: "/a", NewPath: "/b"},
	})

	// Then: the batch is rejected and nothing changed
	require.Error(t, err)
	assert.Equal(t, serrors.ErrCodePathConflict, serrors.GetCode(err))
	assert.Equal(t, 0, n)
	b, ok := s.Get("/b")
	require.True(t, ok)
	assert.Equal(t, []float32{0, 1}, b.Vector)
	_, ok = s.Get("/c")
	assert.True(t, ok)
	_, ok = s.Get("/d")
	assert.False(t, ok)
}

func TestVectorStore_UpdateFilePaths_RejectsSharedTarget(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(t, 2)
	require.True(t, s.UpsertFile(ctx, Record{ID: "/a", Vector: []float32{1, 0}}).OK())
	require.True(t, s.UpsertFile(ctx, Record{ID: "/b", Vector: []float32{0, 1}}).OK())

	_, err := s.UpdateFilePaths(ctx, []PathUpdate{
		{OldID: "/a", NewPath: "/c"},
		{OldID: "/b", NewPath: "/c"},
	})

	assert.Equal(t, serrors.ErrCodePathConflict, serrors.GetCode(err))
	assert.Equal(t, 2, fileCount(t, s))
}

func TestVectorStore_SQLite_ChainSurvivesReopen(t *testing.T) {
	// Given: a durable store with two files
	ctx := context.Background()
	cfg := DefaultVectorStoreConfig(2)
	cfg.Path = filepath.Join(t.TempDir(), "vectors.db")
	s, err := NewVectorStore(ctx, cfg)
	require.NoError(t, err)
	require.True(t, s.UpsertFile(ctx, Record{ID: "/a", Vector: []float32{1, 0}}).OK())
	require.True(t, s.UpsertFile(ctx, Record{ID: "/b", Vector: []float32{0, 1}}).OK())

	// When: a chain move is applied and the store reopened
	_, err = s.UpdateFilePaths(ctx, []PathUpdate{
		{OldID: "/a", NewPath: "/b"},
		{OldID: "/b", NewPath: "/c"},
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := NewVectorStore(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	// Then: the database holds both records
	assert.Equal(t, 2, fileCount(t, s2))
	b, ok := s2.Get("/b")
	require.True(t, ok)
	assert.InDeltaSlice(t, []float32{1, 0}, b.Vector, 1e-6)
	c, ok := s2.Get("/c")
	require.True(t, ok)
	assert.InDeltaSlice(t, []float32{0, 1}, c.Vector, 1e-6)
}

func TestVectorStore_Get_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(t, 2)
	require.True(t, s.UpsertFile(ctx, Record{ID: "/a", Vector: []float32{1, 0}}).OK())

	rec, ok := s.Get("/a")
	require.True(t, ok)
	rec.Vector[0] = 42

	again, _ := s.Get("/a")
	assert.Equal(t, float32(1), again.Vector[0])
}

func TestVectorStore_SQLite_PersistsAcrossReopen(t *testing.T) {
	// Given: a durable store with records in two namespaces
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vectors.db")
	cfg := DefaultVectorStoreConfig(0)
	cfg.Path = path

	s, err := NewVectorStore(ctx, cfg)
	require.NoError(t, err)
	require.True(t, s.UpsertFile(ctx, Record{ID: "/docs/a.pdf", Vector: []float32{0.5, 0.5, 0}, Metadata: map[string]any{"name": "a.pdf"}}).OK())
	require.True(t, s.UpsertFolder(ctx, Record{ID: "Finance", Vector: []float32{0, 0, 1}}).OK())
	_, err = s.UpdateFilePaths(ctx, []PathUpdate{{OldID: "/docs/a.pdf", NewPath: "/docs/b.pdf"}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// When: the store is reopened
	s2, err := NewVectorStore(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	// Then: records, metadata and dimension survived
	assert.Equal(t, 3, s2.Dimension())
	rec, ok := s2.Get("/docs/b.pdf")
	require.True(t, ok)
	assert.InDeltaSlice(t, []float32{0.5, 0.5, 0}, rec.Vector, 1e-6)
	assert.Equal(t, "b.pdf", rec.Metadata["name"])
	_, ok = s2.Get("folder:Finance")
	assert.True(t, ok)

	stats, err := s2.GetStats(ctx)
	require.NoError(t, err)
	assert.True(t, stats.Durable)
	assert.Equal(t, 1, stats.Files)
	assert.Equal(t, 1, stats.Folders)
}

func TestVectorStore_Reset_ForgetsDimension(t *testing.T) {
	// Given: a durable store holding 3-d vectors
	ctx := context.Background()
	cfg := DefaultVectorStoreConfig(0)
	cfg.Path = filepath.Join(t.TempDir(), "vectors.db")
	s, err := NewVectorStore(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	require.True(t, s.UpsertFile(ctx, Record{ID: "/a", Vector: []float32{1, 0, 0}}).OK())

	// When: the store is reset
	require.NoError(t, s.Reset(ctx))

	// Then: a different dimension can be written
	assert.True(t, s.UpsertFile(ctx, Record{ID: "/a", Vector: []float32{1, 0}}).OK())
	assert.Equal(t, 2, s.Dimension())
}

func TestVectorStore_Closed(t *testing.T) {
	ctx := context.Background()
	s, err := NewVectorStore(ctx, DefaultVectorStoreConfig(2))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	res := s.UpsertFile(ctx, Record{ID: "/a", Vector: []float32{1, 0}})
	assert.Equal(t, OutcomeTransient, res.Outcome)
	assert.Equal(t, ReasonClosed, res.Reason)

	_, err = s.QuerySimilarFiles(ctx, []float32{1, 0}, 1)
	assert.Equal(t, serrors.ErrCodeStoreClosed, serrors.GetCode(err))
}

func TestNewVectorStore_RejectsBadMinSimilarity(t *testing.T) {
	cfg := DefaultVectorStoreConfig(2)
	cfg.MinSimilarity = 1.5

	_, err := NewVectorStore(context.Background(), cfg)

	assert.Error(t, err)
}
