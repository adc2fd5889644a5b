package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	serrors "github.com/Aman-CERP/stratoindex/internal/errors"
)

// Ollama API constants
const (
	// DefaultOllamaHost is the default Ollama API endpoint
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is the default embedding model.
	DefaultOllamaModel = "nomic-embed-text"

	// DefaultOllamaTimeout bounds a single embed request.
	DefaultOllamaTimeout = 30 * time.Second

	// OllamaPoolSize for connection pool
	OllamaPoolSize = 4
)

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	// Host is the Ollama API endpoint (default: http://localhost:11434)
	Host string

	// Model is the embedding model to use.
	Model string

	// Dimensions overrides auto-detection (0 = auto-detect).
	Dimensions int

	// Timeout for a single API request.
	Timeout time.Duration

	// Retry controls backoff for transient failures.
	Retry serrors.RetryConfig

	// SkipHealthCheck skips the model and dimension probe at construction.
	SkipHealthCheck bool

	Logger *slog.Logger
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

type ollamaModelList struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// statusError is a non-2xx reply from Ollama.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("ollama returned status %d: %s", e.status, e.body)
}

// retryable reports whether a request error is worth retrying: network
// errors, 5xx and 429 are; other statuses are not.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.status >= 500 || se.status == http.StatusTooManyRequests
	}
	return true
}

// OllamaEmbedder generates embeddings using Ollama's HTTP API.
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OllamaConfig
	breaker   *serrors.CircuitBreaker
	logger    *slog.Logger

	mu        sync.RWMutex
	modelName string
	dims      int
	closed    bool
}

// NewOllamaEmbedder creates an Ollama embedder. Unless SkipHealthCheck is
// set it verifies the model is installed and detects its dimension.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultOllamaTimeout
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry = serrors.DefaultRetryConfig()
	}
	cfg.Retry.ShouldRetry = retryable
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	// No client-level timeout: each request carries its own context deadline.
	transport := &http.Transport{
		MaxIdleConns:        OllamaPoolSize,
		MaxIdleConnsPerHost: OllamaPoolSize,
		IdleConnTimeout:     30 * time.Second,
	}

	e := &OllamaEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		breaker:   serrors.NewCircuitBreaker("ollama", serrors.WithMaxFailures(5), serrors.WithResetTimeout(30*time.Second)),
		logger:    cfg.Logger,
		modelName: cfg.Model,
		dims:      cfg.Dimensions,
	}

	if !cfg.SkipHealthCheck {
		if err := e.probe(ctx); err != nil {
			transport.CloseIdleConnections()
			return nil, serrors.New(serrors.ErrCodeEmbeddingFailed, "ollama is not ready", err).
				WithSuggestion("start Ollama and run: ollama pull " + cfg.Model)
		}
	}
	if e.dims == 0 {
		e.dims = StaticDimensions
	}

	return e, nil
}

// probe resolves the installed model name and, if needed, the dimension.
func (e *OllamaEmbedder) probe(ctx context.Context) error {
	name, err := e.findModel(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.modelName = name
	e.mu.Unlock()

	if e.config.Dimensions > 0 {
		return nil
	}
	vecs, err := e.embedOnce(ctx, []string{"dimension probe"})
	if err != nil {
		return fmt.Errorf("failed to detect embedding dimensions: %w", err)
	}

	e.mu.Lock()
	e.dims = len(vecs[0])
	e.mu.Unlock()
	return nil
}

// findModel matches the configured model against /api/tags, ignoring tags.
func (e *OllamaEmbedder) findModel(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to connect to Ollama: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &statusError{status: resp.StatusCode, body: string(body)}
	}

	var list ollamaModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	want := strings.ToLower(e.config.Model)
	wantBase := strings.Split(want, ":")[0]
	for _, m := range list.Models {
		name := strings.ToLower(m.Name)
		if name == want {
			return m.Name, nil
		}
	}
	for _, m := range list.Models {
		if strings.Split(strings.ToLower(m.Name), ":")[0] == wantBase {
			return m.Name, nil
		}
	}
	return "", fmt.Errorf("model %s is not installed", e.config.Model)
}

// Embed generates the embedding for a single text. Blank text yields a
// zero vector without a request.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds non-blank texts in one request, with retry and the
// circuit breaker.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	closed, dims := e.closed, e.dims
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("embedder is closed")
	}

	results := make([][]float32, len(texts))
	var idx []int
	var inputs []string
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, dims)
			continue
		}
		idx = append(idx, i)
		inputs = append(inputs, text)
	}
	if len(inputs) == 0 {
		return results, nil
	}

	start := time.Now()
	vecs, err := serrors.CircuitExecute(e.breaker, func() ([][]float32, error) {
		return serrors.RetryWithResult(ctx, e.config.Retry, func() ([][]float32, error) {
			return e.embedOnce(ctx, inputs)
		})
	})
	if err != nil {
		e.logger.Warn("ollama embed failed",
			slog.Int("texts", len(inputs)),
			slog.String("breaker", e.breaker.State().String()),
			slog.String("error", err.Error()))
		return nil, serrors.New(serrors.ErrCodeEmbeddingFailed, "embedding request failed", err)
	}

	for j, i := range idx {
		results[i] = normalizeVector(vecs[j])
	}
	e.logger.Debug("ollama embed",
		slog.Int("texts", len(inputs)),
		slog.Duration("duration", time.Since(start)))
	return results, nil
}

func (e *OllamaEmbedder) embedOnce(ctx context.Context, inputs []string) ([][]float32, error) {
	rctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	body, err := json.Marshal(ollamaEmbedRequest{Model: e.ModelName(), Input: inputs})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(rctx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(respBody))}
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Embeddings) != len(inputs) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(result.Embeddings), len(inputs))
	}
	for i, v := range result.Embeddings {
		if len(v) == 0 {
			return nil, fmt.Errorf("empty embedding returned for input %d", i)
		}
	}
	return result.Embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *OllamaEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// ModelName returns the resolved model name.
func (e *OllamaEmbedder) ModelName() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.modelName
}

// Available reports whether Ollama answers and the breaker is not open.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed || e.breaker.State() == serrors.StateOpen {
		return false
	}
	_, err := e.findModel(ctx)
	return err == nil
}

// Close releases idle connections.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}

var _ Embedder = (*OllamaEmbedder)(nil)
