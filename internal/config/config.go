// Package config provides configuration loading for stratoindex.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the name of the config file inside the data directory.
const ConfigFileName = "config.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STRATOINDEX_"

// Config is the complete configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Queue      QueueConfig      `yaml:"queue" json:"queue"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Graph      GraphConfig      `yaml:"graph" json:"graph"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" json:"telemetry"`
}

// PathsConfig locates durable state and collaborator inputs.
type PathsConfig struct {
	// DataDir holds queue state, the vector database and the lock file.
	DataDir string `yaml:"data_dir" json:"data_dir"`
	// HistoryFile is the analysis-history JSON export read by the lexical index.
	HistoryFile string `yaml:"history_file" json:"history_file"`
}

// EmbeddingsConfig configures the query embedder.
type EmbeddingsConfig struct {
	// Provider is "static" or "ollama".
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"`
	Timeout    string `yaml:"timeout" json:"timeout"`
}

// QueueConfig configures the embedding queue.
type QueueConfig struct {
	BatchSize      int    `yaml:"batch_size" json:"batch_size"`
	Concurrency    int    `yaml:"concurrency" json:"concurrency"`
	MaxRetries     int    `yaml:"max_retries" json:"max_retries"`
	MaxQueueSize   int    `yaml:"max_queue_size" json:"max_queue_size"`
	MaxDeadLetters int    `yaml:"max_dead_letters" json:"max_dead_letters"`
	FlushInterval  string `yaml:"flush_interval" json:"flush_interval"`
	ItemTimeout    string `yaml:"item_timeout" json:"item_timeout"`
	BatchTimeout   string `yaml:"batch_timeout" json:"batch_timeout"`
}

// StoreConfig configures the vector store.
type StoreConfig struct {
	// Backend is "sqlite" (durable) or "memory".
	Backend       string  `yaml:"backend" json:"backend"`
	MinSimilarity float64 `yaml:"min_similarity" json:"min_similarity"`
}

// SearchConfig configures the hybrid coordinator.
type SearchConfig struct {
	DefaultMode    string  `yaml:"default_mode" json:"default_mode"`
	VectorWeight   float64 `yaml:"vector_weight" json:"vector_weight"`
	LexicalWeight  float64 `yaml:"lexical_weight" json:"lexical_weight"`
	RRFConstant    int     `yaml:"rrf_constant" json:"rrf_constant"`
	MaxResults     int     `yaml:"max_results" json:"max_results"`
	LexicalBackend string  `yaml:"lexical_backend" json:"lexical_backend"`
	MaxTextChars   int     `yaml:"max_text_chars" json:"max_text_chars"`
	IncludeChunks  bool    `yaml:"include_chunks" json:"include_chunks"`
	Debounce       string  `yaml:"debounce" json:"debounce"`
	RebuildTimeout string  `yaml:"rebuild_timeout" json:"rebuild_timeout"`
	SearchTimeout  string  `yaml:"search_timeout" json:"search_timeout"`
}

// GraphConfig configures relationship-graph expansion.
type GraphConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Backend is "memory" or "neo4j".
	Backend       string  `yaml:"backend" json:"backend"`
	MaxSeeds      int     `yaml:"max_seeds" json:"max_seeds"`
	MaxEdges      int     `yaml:"max_edges" json:"max_edges"`
	MaxNeighbors  int     `yaml:"max_neighbors" json:"max_neighbors"`
	Hops          int     `yaml:"hops" json:"hops"`
	Decay         float64 `yaml:"decay" json:"decay"`
	Neo4jURI      string  `yaml:"neo4j_uri" json:"neo4j_uri"`
	Neo4jUser     string  `yaml:"neo4j_user" json:"neo4j_user"`
	Neo4jPassword string  `yaml:"neo4j_password" json:"-"`
}

// ServerConfig configures the IPC surface.
type ServerConfig struct {
	// Transport is "http" or "stdio" (MCP).
	Transport string `yaml:"transport" json:"transport"`
	Addr      string `yaml:"addr" json:"addr"`
	Token     string `yaml:"token" json:"-"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// TelemetryConfig configures trace export. An empty endpoint disables it.
type TelemetryConfig struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
	// RecentQueries bounds the query-metrics ring buffer.
	RecentQueries int `yaml:"recent_queries" json:"recent_queries"`
}

// NewConfig returns a configuration with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DataDir: DefaultDataDir(),
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "static",
			Model:      "static-hash",
			Dimensions: 256,
			OllamaHost: "http://localhost:11434",
			CacheSize:  1000,
			Timeout:    "30s",
		},
		Queue: QueueConfig{
			BatchSize:      50,
			Concurrency:    4,
			MaxRetries:     3,
			MaxQueueSize:   10000,
			MaxDeadLetters: 1000,
			FlushInterval:  "5s",
			ItemTimeout:    "30s",
			BatchTimeout:   "2m",
		},
		Store: StoreConfig{
			Backend:       "sqlite",
			MinSimilarity: 0.15,
		},
		Search: SearchConfig{
			DefaultMode:    "hybrid",
			VectorWeight:   0.65,
			LexicalWeight:  0.35,
			RRFConstant:    60,
			MaxResults:     20,
			LexicalBackend: "memory",
			MaxTextChars:   5000,
			Debounce:       "500ms",
			RebuildTimeout: "60s",
			SearchTimeout:  "5s",
		},
		Graph: GraphConfig{
			Backend:      "memory",
			MaxSeeds:     10,
			MaxEdges:     200,
			MaxNeighbors: 20,
			Hops:         1,
			Decay:        0.5,
		},
		Server: ServerConfig{
			Transport: "http",
			Addr:      "127.0.0.1:7421",
			LogLevel:  "info",
		},
		Telemetry: TelemetryConfig{
			SampleRate:    1.0,
			RecentQueries: 100,
		},
	}
}

// DefaultDataDir returns ~/.stratoindex, or a temp-dir fallback.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".stratoindex")
	}
	return filepath.Join(home, ".stratoindex")
}

// GetUserConfigPath returns the XDG user config path.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "stratoindex", ConfigFileName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "stratoindex", ConfigFileName)
	}
	return filepath.Join(home, ".config", "stratoindex", ConfigFileName)
}

// Load builds the effective configuration:
// defaults, then user config, then explicit file (or <data_dir>/config.yaml),
// then STRATOINDEX_* environment variables, then validation.
func Load(explicitPath string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	// The data dir may itself be overridden, so resolve it before looking
	// for the data-dir config.
	if v := os.Getenv(EnvPrefix + "DATA_DIR"); v != "" {
		cfg.Paths.DataDir = v
	}

	path := explicitPath
	if path == "" {
		path = filepath.Join(cfg.Paths.DataDir, ConfigFileName)
	}
	if fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	} else if explicitPath != "" {
		return nil, fmt.Errorf("config file not found: %s", explicitPath)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith copies every non-zero field of other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	setString(&c.Paths.DataDir, other.Paths.DataDir)
	setString(&c.Paths.HistoryFile, other.Paths.HistoryFile)

	setString(&c.Embeddings.Provider, other.Embeddings.Provider)
	setString(&c.Embeddings.Model, other.Embeddings.Model)
	setInt(&c.Embeddings.Dimensions, other.Embeddings.Dimensions)
	setString(&c.Embeddings.OllamaHost, other.Embeddings.OllamaHost)
	setInt(&c.Embeddings.CacheSize, other.Embeddings.CacheSize)
	setString(&c.Embeddings.Timeout, other.Embeddings.Timeout)

	setInt(&c.Queue.BatchSize, other.Queue.BatchSize)
	setInt(&c.Queue.Concurrency, other.Queue.Concurrency)
	setInt(&c.Queue.MaxRetries, other.Queue.MaxRetries)
	setInt(&c.Queue.MaxQueueSize, other.Queue.MaxQueueSize)
	setInt(&c.Queue.MaxDeadLetters, other.Queue.MaxDeadLetters)
	setString(&c.Queue.FlushInterval, other.Queue.FlushInterval)
	setString(&c.Queue.ItemTimeout, other.Queue.ItemTimeout)
	setString(&c.Queue.BatchTimeout, other.Queue.BatchTimeout)

	setString(&c.Store.Backend, other.Store.Backend)
	setFloat(&c.Store.MinSimilarity, other.Store.MinSimilarity)

	setString(&c.Search.DefaultMode, other.Search.DefaultMode)
	// 0 is not a practical weight, so only non-zero values merge; use the
	// env vars for an explicit zero.
	setFloat(&c.Search.VectorWeight, other.Search.VectorWeight)
	setFloat(&c.Search.LexicalWeight, other.Search.LexicalWeight)
	setInt(&c.Search.RRFConstant, other.Search.RRFConstant)
	setInt(&c.Search.MaxResults, other.Search.MaxResults)
	setString(&c.Search.LexicalBackend, other.Search.LexicalBackend)
	setInt(&c.Search.MaxTextChars, other.Search.MaxTextChars)
	if other.Search.IncludeChunks {
		c.Search.IncludeChunks = true
	}
	setString(&c.Search.Debounce, other.Search.Debounce)
	setString(&c.Search.RebuildTimeout, other.Search.RebuildTimeout)
	setString(&c.Search.SearchTimeout, other.Search.SearchTimeout)

	if other.Graph.Enabled {
		c.Graph.Enabled = true
	}
	setString(&c.Graph.Backend, other.Graph.Backend)
	setInt(&c.Graph.MaxSeeds, other.Graph.MaxSeeds)
	setInt(&c.Graph.MaxEdges, other.Graph.MaxEdges)
	setInt(&c.Graph.MaxNeighbors, other.Graph.MaxNeighbors)
	setInt(&c.Graph.Hops, other.Graph.Hops)
	setFloat(&c.Graph.Decay, other.Graph.Decay)
	setString(&c.Graph.Neo4jURI, other.Graph.Neo4jURI)
	setString(&c.Graph.Neo4jUser, other.Graph.Neo4jUser)
	setString(&c.Graph.Neo4jPassword, other.Graph.Neo4jPassword)

	setString(&c.Server.Transport, other.Server.Transport)
	setString(&c.Server.Addr, other.Server.Addr)
	setString(&c.Server.Token, other.Server.Token)
	setString(&c.Server.LogLevel, other.Server.LogLevel)

	setString(&c.Telemetry.OTLPEndpoint, other.Telemetry.OTLPEndpoint)
	setFloat(&c.Telemetry.SampleRate, other.Telemetry.SampleRate)
	setInt(&c.Telemetry.RecentQueries, other.Telemetry.RecentQueries)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

// applyEnvOverrides applies STRATOINDEX_* variables. Weights accept an
// explicit zero here.
func (c *Config) applyEnvOverrides() {
	env := func(name string) string { return os.Getenv(EnvPrefix + name) }

	if v := env("DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := env("HISTORY_FILE"); v != "" {
		c.Paths.HistoryFile = v
	}
	if v := env("EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := env("EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := env("EMBEDDINGS_DIMENSIONS"); v != "" {
		if d, err := strconv.Atoi(v); err == nil && d > 0 {
			c.Embeddings.Dimensions = d
		}
	}
	if v := env("OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := env("VECTOR_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.VectorWeight = w
		}
	}
	if v := env("LEXICAL_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.LexicalWeight = w
		}
	}
	if v := env("RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}
	if v := env("LEXICAL_BACKEND"); v != "" {
		c.Search.LexicalBackend = v
	}
	if v := env("GRAPH_ENABLED"); v != "" {
		c.Graph.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := env("NEO4J_URI"); v != "" {
		c.Graph.Neo4jURI = v
	}
	if v := env("NEO4J_USER"); v != "" {
		c.Graph.Neo4jUser = v
	}
	if v := env("NEO4J_PASSWORD"); v != "" {
		c.Graph.Neo4jPassword = v
	}
	if v := env("TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
	if v := env("ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := env("TOKEN"); v != "" {
		c.Server.Token = v
	}
	if v := env("LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := env("OTLP_ENDPOINT"); v != "" {
		c.Telemetry.OTLPEndpoint = v
	}
}

func parseFloat64(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Paths.DataDir == "" {
		return fmt.Errorf("paths.data_dir must not be empty")
	}

	if c.Search.VectorWeight < 0 || c.Search.VectorWeight > 1 {
		return fmt.Errorf("search.vector_weight must be between 0 and 1, got %f", c.Search.VectorWeight)
	}
	if c.Search.LexicalWeight < 0 || c.Search.LexicalWeight > 1 {
		return fmt.Errorf("search.lexical_weight must be between 0 and 1, got %f", c.Search.LexicalWeight)
	}
	if sum := c.Search.VectorWeight + c.Search.LexicalWeight; math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("search.vector_weight + search.lexical_weight must equal 1.0, got %.2f", sum)
	}
	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("search.rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}
	if !oneOf(c.Search.DefaultMode, "hybrid", "vector", "bm25") {
		return fmt.Errorf("search.default_mode must be 'hybrid', 'vector' or 'bm25', got %s", c.Search.DefaultMode)
	}
	if !oneOf(c.Search.LexicalBackend, "memory", "sqlite", "bleve") {
		return fmt.Errorf("search.lexical_backend must be 'memory', 'sqlite' or 'bleve', got %s", c.Search.LexicalBackend)
	}

	if c.Store.MinSimilarity < -1 || c.Store.MinSimilarity > 1 {
		return fmt.Errorf("store.min_similarity must be between -1 and 1, got %f", c.Store.MinSimilarity)
	}
	if !oneOf(c.Store.Backend, "sqlite", "memory") {
		return fmt.Errorf("store.backend must be 'sqlite' or 'memory', got %s", c.Store.Backend)
	}

	if c.Embeddings.Dimensions < 0 {
		return fmt.Errorf("embeddings.dimensions must be non-negative, got %d", c.Embeddings.Dimensions)
	}
	if !oneOf(c.Embeddings.Provider, "static", "ollama") {
		return fmt.Errorf("embeddings.provider must be 'static' or 'ollama', got %s", c.Embeddings.Provider)
	}

	if c.Queue.Concurrency < 1 || c.Queue.Concurrency > 8 {
		return fmt.Errorf("queue.concurrency must be between 1 and 8, got %d", c.Queue.Concurrency)
	}
	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("queue.max_retries must be non-negative, got %d", c.Queue.MaxRetries)
	}
	if c.Queue.BatchSize <= 0 {
		return fmt.Errorf("queue.batch_size must be positive, got %d", c.Queue.BatchSize)
	}

	for name, v := range map[string]string{
		"queue.flush_interval":   c.Queue.FlushInterval,
		"queue.item_timeout":     c.Queue.ItemTimeout,
		"queue.batch_timeout":    c.Queue.BatchTimeout,
		"search.debounce":        c.Search.Debounce,
		"search.rebuild_timeout": c.Search.RebuildTimeout,
		"search.search_timeout":  c.Search.SearchTimeout,
		"embeddings.timeout":     c.Embeddings.Timeout,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s must be a duration (e.g. \"500ms\"), got %q", name, v)
		}
	}

	if c.Graph.Decay < 0 || c.Graph.Decay > 1 {
		return fmt.Errorf("graph.decay must be between 0 and 1, got %f", c.Graph.Decay)
	}
	if c.Graph.Hops < 1 || c.Graph.Hops > 3 {
		return fmt.Errorf("graph.hops must be between 1 and 3, got %d", c.Graph.Hops)
	}
	if !oneOf(c.Graph.Backend, "memory", "neo4j") {
		return fmt.Errorf("graph.backend must be 'memory' or 'neo4j', got %s", c.Graph.Backend)
	}
	if c.Graph.Enabled && c.Graph.Backend == "neo4j" && c.Graph.Neo4jURI == "" {
		return fmt.Errorf("graph.neo4j_uri is required when graph.backend is 'neo4j'")
	}

	if !oneOf(c.Server.Transport, "http", "stdio") {
		return fmt.Errorf("server.transport must be 'http' or 'stdio', got %s", c.Server.Transport)
	}
	if !oneOf(c.Server.LogLevel, "debug", "info", "warn", "error") {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be between 0 and 1, got %f", c.Telemetry.SampleRate)
	}

	return nil
}

func oneOf(v string, allowed ...string) bool {
	v = strings.ToLower(v)
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// Duration parses a validated duration field, falling back when empty.
func Duration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
