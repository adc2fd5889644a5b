package search

import (
	"context"
	"math"
	"sort"

	"github.com/Aman-CERP/stratoindex/internal/graph"
)

// GraphConfig bounds graph expansion.
type GraphConfig struct {
	Enabled      bool
	MaxSeeds     int
	MaxEdges     int
	MaxNeighbors int
	Hops         int
	Decay        float64
}

// DefaultGraphConfig returns the default expansion bounds (disabled).
func DefaultGraphConfig() GraphConfig {
	return GraphConfig{
		MaxSeeds:     10,
		MaxEdges:     200,
		MaxNeighbors: 20,
		Hops:         1,
		Decay:        0.5,
	}
}

// expandGraph walks up to cfg.Hops hops out from the top cfg.MaxSeeds
// results. A neighbor reached over an edge scores parent × weight × decay,
// so after h hops the score is seed × (product of weights) × decay^h.
// Unusable weights contribute nothing. Existing results keep their scores;
// only new files are added, at most cfg.MaxNeighbors of them. On a source
// error the input is returned unchanged with meta.Error set.
func expandGraph(ctx context.Context, src graph.Source, results []*Result, cfg GraphConfig) ([]*Result, GraphMeta) {
	if !cfg.Enabled {
		return results, GraphMeta{Enabled: false, Reason: GraphReasonDisabled}
	}
	if src == nil {
		return results, GraphMeta{Enabled: false, Reason: GraphReasonNoSource}
	}
	meta := GraphMeta{Enabled: true}
	if len(results) == 0 || cfg.MaxSeeds <= 0 {
		meta.Reason = GraphReasonNoSeeds
		return results, meta
	}

	hops := max(cfg.Hops, 1)
	decay := graph.UsableWeight(cfg.Decay)

	seeds := results[:min(cfg.MaxSeeds, len(results))]
	meta.Seeds = len(seeds)

	known := make(map[string]struct{}, len(results))
	for _, r := range results {
		known[r.ID] = struct{}{}
	}

	frontier := make(map[string]float64, len(seeds))
	origin := make(map[string]string, len(seeds))
	for _, s := range seeds {
		frontier[s.ID] = finiteOrZero(s.Score)
		origin[s.ID] = s.ID
	}

	added := make(map[string]*Result)
	edgeBudget := cfg.MaxEdges

	for hop := 1; hop <= hops && len(frontier) > 0; hop++ {
		if cfg.MaxEdges > 0 && edgeBudget <= 0 {
			break
		}
		ids := make([]string, 0, len(frontier))
		for id := range frontier {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		limit := 0
		if cfg.MaxEdges > 0 {
			limit = edgeBudget
		}
		edges, err := src.Neighbors(ctx, ids, limit)
		if err != nil {
			meta.Error = err.Error()
			return results, meta
		}
		if limit > 0 && len(edges) > limit {
			edges = edges[:limit]
		}
		edgeBudget -= len(edges)
		meta.Edges += len(edges)

		next := make(map[string]float64)
		for _, e := range edges {
			parent, ok := frontier[e.Source]
			if !ok {
				continue
			}
			score := parent * graph.UsableWeight(e.Weight) * decay
			if score <= 0 || math.IsNaN(score) || math.IsInf(score, 0) {
				continue
			}
			if _, dup := known[e.Target]; dup {
				continue
			}

			if cur, ok := added[e.Target]; ok {
				if score <= cur.Score {
					continue
				}
				cur.Score, cur.Via, cur.Hop, cur.Edge = score, origin[e.Source], hop, e.Kind
			} else {
				r := &Result{
					ID:     e.Target,
					Score:  score,
					Source: SourceGraph,
					Via:    origin[e.Source],
					Hop:    hop,
					Edge:   e.Kind,
				}
				fillLocation(r)
				added[e.Target] = r
			}
			if score > next[e.Target] {
				next[e.Target] = score
				origin[e.Target] = origin[e.Source]
			}
		}
		frontier = next
	}

	neighbors := make([]*Result, 0, len(added))
	for _, r := range added {
		neighbors = append(neighbors, r)
	}
	sortByScore(neighbors)
	if cfg.MaxNeighbors > 0 && len(neighbors) > cfg.MaxNeighbors {
		neighbors = neighbors[:cfg.MaxNeighbors]
	}
	meta.Added = len(neighbors)
	if len(neighbors) == 0 {
		return results, meta
	}

	merged := make([]*Result, 0, len(results)+len(neighbors))
	merged = append(merged, results...)
	merged = append(merged, neighbors...)
	sortByScore(merged)
	return merged, meta
}

// sortByScore orders by descending score, fused results before graph
// neighbors on ties, then id.
func sortByScore(rs []*Result) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].Score != rs[j].Score {
			return rs[i].Score > rs[j].Score
		}
		if rs[i].Source != rs[j].Source {
			return rs[i].Source == SourceFused
		}
		return rs[i].ID < rs[j].ID
	})
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
