package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Aman-CERP/stratoindex/internal/config"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderStatic uses hash-based embeddings. No network, always available.
	ProviderStatic ProviderType = "static"

	// ProviderOllama uses the Ollama HTTP API.
	ProviderOllama ProviderType = "ollama"
)

// ParseProvider parses a provider name, defaulting to static.
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ollama":
		return ProviderOllama
	default:
		return ProviderStatic
	}
}

// String returns the provider name.
func (p ProviderType) String() string {
	return string(p)
}

// ValidProviders lists the provider names.
func ValidProviders() []string {
	return []string{string(ProviderStatic), string(ProviderOllama)}
}

// IsValidProvider reports whether s names a provider.
func IsValidProvider(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, p := range ValidProviders() {
		if s == p {
			return true
		}
	}
	return false
}

// NewEmbedder creates the configured embedder wrapped in a query cache.
// A CacheSize below zero disables the cache. There is no silent fallback
// from Ollama to static: an unreachable Ollama is an error.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingsConfig, logger *slog.Logger) (Embedder, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		embedder Embedder
		err      error
	)
	switch ParseProvider(cfg.Provider) {
	case ProviderOllama:
		embedder, err = NewOllamaEmbedder(ctx, OllamaConfig{
			Host:       cfg.OllamaHost,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    config.Duration(cfg.Timeout, DefaultOllamaTimeout),
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("ollama unavailable: %w\n\nTo fix:\n  1. Start Ollama: ollama serve\n  2. Or use static embeddings: STRATOINDEX_EMBEDDINGS_PROVIDER=static", err)
		}
	default:
		embedder = NewStaticEmbedder(cfg.Dimensions)
	}

	logger.Info("embedder ready",
		slog.String("provider", ParseProvider(cfg.Provider).String()),
		slog.String("model", embedder.ModelName()),
		slog.Int("dimensions", embedder.Dimensions()))

	if cfg.CacheSize < 0 {
		return embedder, nil
	}
	return NewCachedEmbedder(embedder, cfg.CacheSize), nil
}

// EmbedderInfo describes an embedder for status output.
type EmbedderInfo struct {
	Provider   string      `json:"provider"`
	Model      string      `json:"model"`
	Dimensions int         `json:"dimensions"`
	Available  bool        `json:"available"`
	Cache      *CacheStats `json:"cache,omitempty"`
}

// GetInfo returns status information, probing availability with a short
// timeout.
func GetInfo(ctx context.Context, embedder Embedder) EmbedderInfo {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	info := EmbedderInfo{
		Model:      embedder.ModelName(),
		Dimensions: embedder.Dimensions(),
		Available:  embedder.Available(probeCtx),
	}

	inner := embedder
	if c, ok := embedder.(*CachedEmbedder); ok {
		stats := c.Stats()
		info.Cache = &stats
		inner = c.Inner()
	}
	switch inner.(type) {
	case *OllamaEmbedder:
		info.Provider = string(ProviderOllama)
	default:
		info.Provider = string(ProviderStatic)
	}
	return info
}
