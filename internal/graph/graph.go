// Package graph supplies file-to-file relationship edges for search
// expansion. Sources are read-only.
package graph

import (
	"context"
	"math"
	"sort"
	"sync"
)

// Edge is a weighted relationship between two file ids. Weights are
// expected to be non-negative; expansion treats anything else as zero.
type Edge struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Weight float64 `json:"weight"`
	Kind   string  `json:"kind,omitempty"`
}

// Source returns edges leaving any of ids, strongest first, at most limit
// (0 means unlimited).
type Source interface {
	Neighbors(ctx context.Context, ids []string, limit int) ([]Edge, error)
}

// MemoryGraph is an undirected in-memory Source.
type MemoryGraph struct {
	mu  sync.RWMutex
	adj map[string]map[string]Edge
}

// NewMemoryGraph creates an empty graph.
func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{adj: make(map[string]map[string]Edge)}
}

// AddEdge links a and b in both directions. Adding an existing pair
// replaces its weight and kind. Self-loops are ignored.
func (g *MemoryGraph) AddEdge(a, b string, weight float64, kind string) {
	if a == "" || b == "" || a == b {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.link(a, b, weight, kind)
	g.link(b, a, weight, kind)
}

// must hold mu
func (g *MemoryGraph) link(from, to string, weight float64, kind string) {
	out, ok := g.adj[from]
	if !ok {
		out = make(map[string]Edge)
		g.adj[from] = out
	}
	out[to] = Edge{Source: from, Target: to, Weight: weight, Kind: kind}
}

// RemoveNode drops id and every edge touching it.
func (g *MemoryGraph) RemoveNode(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for to := range g.adj[id] {
		delete(g.adj[to], id)
		if len(g.adj[to]) == 0 {
			delete(g.adj, to)
		}
	}
	delete(g.adj, id)
}

// Replace swaps in other's edges. other must not be used afterwards.
func (g *MemoryGraph) Replace(other *MemoryGraph) {
	other.mu.Lock()
	adj := other.adj
	other.adj = make(map[string]map[string]Edge)
	other.mu.Unlock()

	g.mu.Lock()
	g.adj = adj
	g.mu.Unlock()
}

// EdgeCount returns the number of undirected edges.
func (g *MemoryGraph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, out := range g.adj {
		n += len(out)
	}
	return n / 2
}

// Neighbors implements Source.
func (g *MemoryGraph) Neighbors(ctx context.Context, ids []string, limit int) ([]Edge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.RLock()
	var edges []Edge
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		for _, e := range g.adj[id] {
			edges = append(edges, e)
		}
	}
	g.mu.RUnlock()

	SortEdges(edges)
	if limit > 0 && len(edges) > limit {
		edges = edges[:limit]
	}
	return edges, nil
}

// SortEdges orders edges by descending usable weight, then source and
// target for determinism.
func SortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		wi, wj := UsableWeight(edges[i].Weight), UsableWeight(edges[j].Weight)
		if wi != wj {
			return wi > wj
		}
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})
}

// UsableWeight maps negative and non-finite weights to zero.
func UsableWeight(w float64) float64 {
	if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
		return 0
	}
	return w
}

var _ Source = (*MemoryGraph)(nil)
