package history

import (
	"sort"
	"strings"

	"github.com/Aman-CERP/stratoindex/internal/graph"
)

// EdgeKindSharedTags marks edges derived from overlapping tags.
const EdgeKindSharedTags = "shared_tags"

// TagGraph links files whose latest entries share tags. The weight is the
// Jaccard overlap of the two tag sets. Tags are compared case-insensitively.
func TagGraph(entries []Entry) *graph.MemoryGraph {
	g := graph.NewMemoryGraph()

	tags := make(map[string]map[string]struct{})
	for _, doc := range Documents(entries, 1) {
		set := make(map[string]struct{}, len(doc.Fields.Tags))
		for _, t := range doc.Fields.Tags {
			if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
				set[t] = struct{}{}
			}
		}
		if len(set) > 0 {
			tags[doc.ID] = set
		}
	}

	byTag := make(map[string][]string)
	for id, set := range tags {
		for t := range set {
			byTag[t] = append(byTag[t], id)
		}
	}

	linked := make(map[[2]string]struct{})
	for _, ids := range byTag {
		sort.Strings(ids)
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				pair := [2]string{ids[i], ids[j]}
				if _, done := linked[pair]; done {
					continue
				}
				linked[pair] = struct{}{}
				g.AddEdge(ids[i], ids[j], jaccard(tags[ids[i]], tags[ids[j]]), EdgeKindSharedTags)
			}
		}
	}
	return g
}

func jaccard(a, b map[string]struct{}) float64 {
	shared := 0
	for t := range a {
		if _, ok := b[t]; ok {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}
