package search

import (
	"time"

	"github.com/Aman-CERP/stratoindex/internal/config"
	"github.com/Aman-CERP/stratoindex/internal/store"
)

// Config configures a Coordinator.
type Config struct {
	DefaultMode Mode
	Weights     Weights
	RRFConstant int
	// MaxResults is the default TopK.
	MaxResults int

	LexicalBackend string
	BM25           store.BM25Config
	// MaxTextChars truncates extracted text per document (0 = unlimited).
	MaxTextChars int

	// IncludeChunks folds chunk hits into their parent file.
	IncludeChunks bool

	Debounce       time.Duration
	RebuildTimeout time.Duration
	SearchTimeout  time.Duration

	Graph GraphConfig
}

// DefaultConfig returns the default coordinator configuration.
func DefaultConfig() Config {
	return Config{
		DefaultMode:    ModeHybrid,
		Weights:        DefaultWeights(),
		RRFConstant:    DefaultRRFConstant,
		MaxResults:     20,
		LexicalBackend: string(store.LexicalBackendMemory),
		BM25:           store.DefaultBM25Config(),
		MaxTextChars:   5000,
		Debounce:       DefaultDebounce,
		RebuildTimeout: 60 * time.Second,
		SearchTimeout:  5 * time.Second,
		Graph:          DefaultGraphConfig(),
	}
}

// ConfigFrom maps the file configuration onto a coordinator Config.
func ConfigFrom(c *config.Config) Config {
	def := DefaultConfig()
	mode, err := ParseMode(c.Search.DefaultMode)
	if err != nil {
		mode = def.DefaultMode
	}
	return Config{
		DefaultMode:    mode,
		Weights:        Weights{Vector: c.Search.VectorWeight, Lexical: c.Search.LexicalWeight},
		RRFConstant:    c.Search.RRFConstant,
		MaxResults:     c.Search.MaxResults,
		LexicalBackend: c.Search.LexicalBackend,
		BM25:           def.BM25,
		MaxTextChars:   c.Search.MaxTextChars,
		IncludeChunks:  c.Search.IncludeChunks,
		Debounce:       config.Duration(c.Search.Debounce, def.Debounce),
		RebuildTimeout: config.Duration(c.Search.RebuildTimeout, def.RebuildTimeout),
		SearchTimeout:  config.Duration(c.Search.SearchTimeout, def.SearchTimeout),
		Graph: GraphConfig{
			Enabled:      c.Graph.Enabled,
			MaxSeeds:     c.Graph.MaxSeeds,
			MaxEdges:     c.Graph.MaxEdges,
			MaxNeighbors: c.Graph.MaxNeighbors,
			Hops:         c.Graph.Hops,
			Decay:        c.Graph.Decay,
		},
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.DefaultMode == "" {
		c.DefaultMode = def.DefaultMode
	}
	if !c.Weights.valid() {
		c.Weights = def.Weights
	}
	if c.RRFConstant <= 0 {
		c.RRFConstant = def.RRFConstant
	}
	if c.MaxResults <= 0 {
		c.MaxResults = def.MaxResults
	}
	if c.MaxResults > MaxTopK {
		c.MaxResults = MaxTopK
	}
	if c.LexicalBackend == "" {
		c.LexicalBackend = def.LexicalBackend
	}
	if c.BM25.K1 <= 0 {
		c.BM25 = def.BM25
	}
	if c.Debounce <= 0 {
		c.Debounce = def.Debounce
	}
	if c.RebuildTimeout <= 0 {
		c.RebuildTimeout = def.RebuildTimeout
	}
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = def.SearchTimeout
	}
	return c
}
