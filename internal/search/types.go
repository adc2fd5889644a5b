// Package search provides the hybrid search coordinator. It owns the
// lexical index built from the analysis history, runs vector and lexical
// search concurrently, fuses both rankings with Reciprocal Rank Fusion
// (RRF) and optionally expands the fused list across a relationship graph.
package search

import (
	"fmt"
	"math"
	"strings"
	"time"

	serrors "github.com/Aman-CERP/stratoindex/internal/errors"
)

// Mode selects which legs a search runs.
type Mode string

const (
	// ModeHybrid runs vector and lexical search and fuses them.
	ModeHybrid Mode = "hybrid"
	// ModeVector runs vector search only.
	ModeVector Mode = "vector"
	// ModeBM25 runs lexical search only.
	ModeBM25 Mode = "bm25"
)

// ParseMode parses a mode name. Empty means hybrid.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeHybrid:
		return ModeHybrid, nil
	case ModeVector:
		return ModeVector, nil
	case ModeBM25, "lexical":
		return ModeBM25, nil
	default:
		return "", serrors.New(serrors.ErrCodeInvalidMode,
			fmt.Sprintf("unknown search mode %q", s), nil).
			WithSuggestion("use hybrid, vector or bm25")
	}
}

func (m Mode) runsVector() bool  { return m == ModeHybrid || m == ModeVector }
func (m Mode) runsLexical() bool { return m == ModeHybrid || m == ModeBM25 }

// Weights configures the relative importance of the two legs.
type Weights struct {
	// Vector is the weight for similarity search (default: 0.65).
	Vector float64 `json:"vector"`

	// Lexical is the weight for keyword search (default: 0.35).
	Lexical float64 `json:"lexical"`
}

// DefaultWeights returns the default search weights.
func DefaultWeights() Weights {
	return Weights{Vector: 0.65, Lexical: 0.35}
}

// valid reports whether both weights are finite, non-negative and not
// both zero.
func (w Weights) valid() bool {
	ok := func(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0 }
	return ok(w.Vector) && ok(w.Lexical) && w.Vector+w.Lexical > 0
}

// Options configures a single search.
type Options struct {
	// Mode defaults to the coordinator's configured mode.
	Mode Mode `json:"mode,omitempty"`

	// TopK bounds the result count (default: configured max results, cap 100).
	TopK int `json:"topK,omitempty"`

	// Weights overrides the configured weights.
	Weights *Weights `json:"weights,omitempty"`

	// GraphExpansion overrides whether graph expansion runs.
	GraphExpansion *bool `json:"graphExpansion,omitempty"`

	// IncludeChunks overrides whether chunk hits are folded into files.
	IncludeChunks *bool `json:"includeChunks,omitempty"`
}

// MaxTopK caps Options.TopK.
const MaxTopK = 100

// Result sources.
const (
	SourceFused = "fused"
	SourceGraph = "graph"
)

// Result is one search hit, always a file.
type Result struct {
	ID   string `json:"id"`
	Path string `json:"path,omitempty"`
	Name string `json:"name,omitempty"`

	// Score is the RRF score normalized to the top result (0-1]. Graph
	// neighbors carry their propagated score on the same scale.
	Score float64 `json:"score"`

	// RRFScore is the raw fused score.
	RRFScore float64 `json:"rrfScore"`

	VectorScore  float64 `json:"vectorScore,omitempty"`
	VectorRank   int     `json:"vectorRank,omitempty"`
	LexicalScore float64 `json:"lexicalScore,omitempty"`
	LexicalRank  int     `json:"lexicalRank,omitempty"`
	InBothLists  bool    `json:"inBothLists,omitempty"`

	MatchedTerms []string       `json:"matchedTerms,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`

	// Source is SourceFused or SourceGraph.
	Source string `json:"source"`
	// Via is the seed a graph neighbor was reached from.
	Via  string `json:"via,omitempty"`
	Hop  int    `json:"hop,omitempty"`
	Edge string `json:"edge,omitempty"`
}

// Graph expansion reasons.
const (
	GraphReasonDisabled = "disabled"
	GraphReasonNoSource = "no_graph_source"
	GraphReasonNoSeeds  = "no_seeds"
)

// GraphMeta reports what graph expansion did.
type GraphMeta struct {
	Enabled bool   `json:"enabled"`
	Reason  string `json:"reason,omitempty"`
	Seeds   int    `json:"seeds,omitempty"`
	Edges   int    `json:"edges,omitempty"`
	Added   int    `json:"added,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Leg names used in Meta.Degraded.
const (
	LegVector  = "vector"
	LegLexical = "lexical"
)

// Meta describes how a search was served.
type Meta struct {
	Query string `json:"query"`
	Mode  Mode   `json:"mode"`
	TopK  int    `json:"topK"`

	// Degraded names the legs that failed; results came from the rest.
	Degraded     []string `json:"degraded,omitempty"`
	VectorError  string   `json:"vectorError,omitempty"`
	LexicalError string   `json:"lexicalError,omitempty"`

	VectorHits  int `json:"vectorHits"`
	LexicalHits int `json:"lexicalHits"`

	// LexicalStale is set when the lexical index predates a pending rebuild.
	LexicalStale   bool      `json:"lexicalStale,omitempty"`
	LexicalBuiltAt time.Time `json:"lexicalBuiltAt,omitempty"`

	Graph    GraphMeta     `json:"graph"`
	Duration time.Duration `json:"duration"`
}

// Response is the outcome of a search.
type Response struct {
	Results []*Result `json:"results"`
	Meta    Meta      `json:"meta"`
}

// Build failure reasons.
const (
	ReasonShuttingDown  = "shutting_down"
	ReasonHistoryFailed = "history_failed"
	ReasonIndexFailed   = "index_failed"
	ReasonTimeout       = "timeout"
)

// BuildResult is the outcome of a lexical index build.
type BuildResult struct {
	Success  bool          `json:"success"`
	Indexed  int           `json:"indexed"`
	Reason   string        `json:"reason,omitempty"`
	Error    string        `json:"error,omitempty"`
	BuildID  string        `json:"buildId,omitempty"`
	Trigger  string        `json:"trigger,omitempty"`
	BuiltAt  time.Time     `json:"builtAt,omitempty"`
	Duration time.Duration `json:"duration"`
}

// IndexStats describes the lexical index.
type IndexStats struct {
	Backend string    `json:"backend"`
	Indexed int       `json:"indexed"`
	Built   bool      `json:"built"`
	BuiltAt time.Time `json:"builtAt,omitempty"`
	Stale   bool      `json:"stale"`
	Builds  int64     `json:"builds"`
	LastErr string    `json:"lastError,omitempty"`
}
