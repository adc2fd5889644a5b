package search

import (
	"path/filepath"
	"sort"

	"github.com/Aman-CERP/stratoindex/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter.
const DefaultRRFConstant = 60

// RRFFusion combines vector and lexical rankings using Reciprocal Rank
// Fusion:
//
//	RRF(d) = w_vector/(k + rank_vector(d)) + w_lexical/(k + rank_lexical(d))
//
// Ranks are 1-indexed. A list that does not contain d contributes 0.
type RRFFusion struct {
	K int
}

// NewRRFFusion creates an RRF fusion with k; k <= 0 uses 60.
func NewRRFFusion(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

// Fuse merges the two ranked lists. Results are sorted by RRF score, then
// presence in both lists, then vector score, lexical score and id. Score
// is the RRF score divided by the top result's.
func (f *RRFFusion) Fuse(vec []store.Match, lex []*store.LexicalResult, w Weights) []*Result {
	if len(vec) == 0 && len(lex) == 0 {
		return []*Result{}
	}

	byID := make(map[string]*Result, len(vec)+len(lex))
	get := func(id string) *Result {
		if r, ok := byID[id]; ok {
			return r
		}
		r := &Result{ID: id, Source: SourceFused}
		byID[id] = r
		return r
	}

	for i, m := range vec {
		r := get(m.ID)
		r.VectorScore = m.Score
		r.VectorRank = i + 1
		r.Metadata = m.Metadata
		r.RRFScore += w.Vector / float64(f.K+i+1)
	}

	for i, l := range lex {
		r := get(l.DocID)
		r.LexicalScore = l.Score
		r.LexicalRank = i + 1
		r.MatchedTerms = l.MatchedTerms
		r.RRFScore += w.Lexical / float64(f.K+i+1)
		if r.VectorRank > 0 {
			r.InBothLists = true
		}
	}

	results := make([]*Result, 0, len(byID))
	for _, r := range byID {
		fillLocation(r)
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return compareFused(results[i], results[j]) })

	if top := results[0].RRFScore; top > 0 {
		for _, r := range results {
			r.Score = r.RRFScore / top
		}
	}
	return results
}

func compareFused(a, b *Result) bool {
	if a.RRFScore != b.RRFScore {
		return a.RRFScore > b.RRFScore
	}
	if a.InBothLists != b.InBothLists {
		return a.InBothLists
	}
	if a.VectorScore != b.VectorScore {
		return a.VectorScore > b.VectorScore
	}
	if a.LexicalScore != b.LexicalScore {
		return a.LexicalScore > b.LexicalScore
	}
	return a.ID < b.ID
}

// fillLocation sets Path and Name from metadata, falling back to the id.
func fillLocation(r *Result) {
	if p, ok := r.Metadata["path"].(string); ok && p != "" {
		r.Path = p
	} else if _, key, ok := store.SplitID(r.ID); ok {
		r.Path = key
	}
	if n, ok := r.Metadata["name"].(string); ok && n != "" {
		r.Name = n
	} else if r.Path != "" {
		r.Name = filepath.Base(filepath.FromSlash(r.Path))
	}
}
