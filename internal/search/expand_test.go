package search

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/stratoindex/internal/graph"
)

type failingGraph struct{}

func (failingGraph) Neighbors(context.Context, []string, int) ([]graph.Edge, error) {
	return nil, errors.New("graph down")
}

func seedResults(ids ...string) []*Result {
	out := make([]*Result, len(ids))
	for i, id := range ids {
		out[i] = &Result{ID: id, Score: 1.0 / float64(i+1), Source: SourceFused}
	}
	return out
}

func enabledGraph() GraphConfig {
	cfg := DefaultGraphConfig()
	cfg.Enabled = true
	return cfg
}

func TestExpandGraph_DisabledReturnsInputUnchanged(t *testing.T) {
	in := seedResults("file:/a")

	out, meta := expandGraph(context.Background(), graph.NewMemoryGraph(), in, DefaultGraphConfig())

	assert.Equal(t, in, out)
	assert.Equal(t, GraphMeta{Enabled: false, Reason: GraphReasonDisabled}, meta)
}

func TestExpandGraph_NoSource(t *testing.T) {
	in := seedResults("file:/a")

	out, meta := expandGraph(context.Background(), nil, in, enabledGraph())

	assert.Equal(t, in, out)
	assert.Equal(t, GraphReasonNoSource, meta.Reason)
	assert.False(t, meta.Enabled)
}

func TestExpandGraph_NeighborScoreIsSeedTimesWeightTimesDecay(t *testing.T) {
	// Given a seed with score 1 linked to an unseen file
	g := graph.NewMemoryGraph()
	g.AddEdge("file:/a", "file:/n", 0.8, "similar")

	// When expanding one hop with decay 0.5
	out, meta := expandGraph(context.Background(), g, seedResults("file:/a"), enabledGraph())

	// Then the neighbor is appended with 1 × 0.8 × 0.5
	require.Len(t, out, 2)
	n := out[1]
	assert.Equal(t, "file:/n", n.ID)
	assert.InDelta(t, 0.4, n.Score, 1e-12)
	assert.Equal(t, SourceGraph, n.Source)
	assert.Equal(t, "file:/a", n.Via)
	assert.Equal(t, 1, n.Hop)
	assert.Equal(t, "/n", n.Path)
	assert.Equal(t, 1, meta.Added)
	assert.Equal(t, 1, meta.Seeds)
}

func TestExpandGraph_ZeroWeightsNeverProduceNaN(t *testing.T) {
	// Given edges whose weights are all zero
	g := graph.NewMemoryGraph()
	g.AddEdge("file:/a", "file:/x", 0, "")
	g.AddEdge("file:/b", "file:/y", 0, "")
	in := seedResults("file:/a", "file:/b")
	in[1].Score = 0

	// When expanding
	out, meta := expandGraph(context.Background(), g, in, enabledGraph())

	// Then nothing is added, seeds keep their scores and nothing is NaN
	assert.Len(t, out, 2)
	assert.Equal(t, 0, meta.Added)
	assert.Equal(t, 1.0, out[0].Score)
	for _, r := range out {
		assert.False(t, math.IsNaN(r.Score))
	}
}

func TestExpandGraph_BadWeightsContributeNothing(t *testing.T) {
	g := graph.NewMemoryGraph()
	g.AddEdge("file:/a", "file:/nan", math.NaN(), "")
	g.AddEdge("file:/a", "file:/neg", -2, "")
	g.AddEdge("file:/a", "file:/inf", math.Inf(1), "")

	out, meta := expandGraph(context.Background(), g, seedResults("file:/a"), enabledGraph())

	assert.Len(t, out, 1)
	assert.Equal(t, 0, meta.Added)
	assert.Equal(t, 3, meta.Edges)
}

func TestExpandGraph_TwoHopsDecayTwice(t *testing.T) {
	g := graph.NewMemoryGraph()
	g.AddEdge("file:/a", "file:/b", 1.0, "")
	g.AddEdge("file:/b", "file:/c", 0.5, "")
	cfg := enabledGraph()
	cfg.Hops = 2

	out, _ := expandGraph(context.Background(), g, seedResults("file:/a"), cfg)

	require.Len(t, out, 3)
	assert.Equal(t, "file:/b", out[1].ID)
	assert.InDelta(t, 0.5, out[1].Score, 1e-12)
	assert.Equal(t, "file:/c", out[2].ID)
	assert.InDelta(t, 1.0*1.0*0.5*0.5*0.5, out[2].Score, 1e-12)
	assert.Equal(t, 2, out[2].Hop)
	assert.Equal(t, "file:/a", out[2].Via)
}

func TestExpandGraph_ExistingResultsAreNotRescored(t *testing.T) {
	g := graph.NewMemoryGraph()
	g.AddEdge("file:/a", "file:/b", 1.0, "")
	in := seedResults("file:/a", "file:/b")

	out, meta := expandGraph(context.Background(), g, in, enabledGraph())

	require.Len(t, out, 2)
	assert.Equal(t, 0.5, out[1].Score)
	assert.Equal(t, SourceFused, out[1].Source)
	assert.Equal(t, 0, meta.Added)
}

func TestExpandGraph_Caps(t *testing.T) {
	// Given a seed with many neighbors
	g := graph.NewMemoryGraph()
	for i, id := range []string{"file:/n1", "file:/n2", "file:/n3", "file:/n4", "file:/n5"} {
		g.AddEdge("file:/a", id, 0.1*float64(i+1), "")
	}
	g.AddEdge("file:/b", "file:/m", 1, "")

	t.Run("max neighbors keeps strongest", func(t *testing.T) {
		cfg := enabledGraph()
		cfg.MaxNeighbors = 2
		out, meta := expandGraph(context.Background(), g, seedResults("file:/a"), cfg)
		require.Len(t, out, 3)
		assert.Equal(t, "file:/n5", out[1].ID)
		assert.Equal(t, "file:/n4", out[2].ID)
		assert.Equal(t, 2, meta.Added)
	})

	t.Run("max edges bounds the walk", func(t *testing.T) {
		cfg := enabledGraph()
		cfg.MaxEdges = 3
		_, meta := expandGraph(context.Background(), g, seedResults("file:/a"), cfg)
		assert.Equal(t, 3, meta.Edges)
		assert.Equal(t, 3, meta.Added)
	})

	t.Run("max seeds limits expansion roots", func(t *testing.T) {
		cfg := enabledGraph()
		cfg.MaxSeeds = 1
		out, meta := expandGraph(context.Background(), g, seedResults("file:/a", "file:/b"), cfg)
		assert.Equal(t, 1, meta.Seeds)
		for _, r := range out {
			assert.NotEqual(t, "file:/m", r.ID)
		}
	})
}

func TestExpandGraph_SourceErrorKeepsFusedList(t *testing.T) {
	in := seedResults("file:/a", "file:/b")

	out, meta := expandGraph(context.Background(), failingGraph{}, in, enabledGraph())

	assert.Equal(t, in, out)
	assert.True(t, meta.Enabled)
	assert.Equal(t, "graph down", meta.Error)
}
