package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Aman-CERP/stratoindex/internal/queue"
	"github.com/Aman-CERP/stratoindex/internal/search"
	"github.com/Aman-CERP/stratoindex/internal/store"
)

const defaultClientTimeout = 2 * time.Minute

// Client calls a running server's HTTP API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for baseURL ("http://127.0.0.1:7421" or a
// bare host:port).
func NewClient(baseURL, token string) *Client {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: defaultClientTimeout},
	}
}

// APIError is a non-2xx response.
type APIError struct {
	Status     int    `json:"-"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       string `json:"code,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%s] %s (HTTP %d)", e.Code, e.Message, e.Status)
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
}

// IsRunning reports whether a server answers /healthz within a second.
func (c *Client) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil) == nil
}

// Search runs a search.
func (c *Client) Search(ctx context.Context, query string, opts search.Options) (*search.Response, error) {
	var resp search.Response
	if err := c.do(ctx, http.MethodPost, "/v1/search/", SearchRequest{Query: query, Options: opts}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Rebuild rebuilds the lexical index. The result is returned even when
// the build failed.
func (c *Client) Rebuild(ctx context.Context, req RebuildRequest) (*search.BuildResult, error) {
	var res search.BuildResult
	err := c.do(ctx, http.MethodPost, "/v1/search/rebuild", req, &res)
	if err != nil && res.Reason == "" && !res.Success {
		return nil, err
	}
	return &res, err
}

// IndexStats returns lexical index state.
func (c *Client) IndexStats(ctx context.Context) (search.IndexStats, error) {
	var s search.IndexStats
	err := c.do(ctx, http.MethodGet, "/v1/search/stats", nil, &s)
	return s, err
}

// QueueStats returns queue counters.
func (c *Client) QueueStats(ctx context.Context) (queue.Stats, error) {
	var s queue.Stats
	err := c.do(ctx, http.MethodGet, "/v1/queue/stats", nil, &s)
	return s, err
}

// VectorStats returns vector store counters.
func (c *Client) VectorStats(ctx context.Context) (store.Stats, error) {
	var s store.Stats
	err := c.do(ctx, http.MethodGet, "/v1/embeddings/stats", nil, &s)
	return s, err
}

// Flush flushes the server's queue.
func (c *Client) Flush(ctx context.Context) (*queue.FlushResult, error) {
	var res queue.FlushResult
	if err := c.do(ctx, http.MethodPost, "/v1/queue/flush", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Requeue moves failed items back to the queue.
func (c *Client) Requeue(ctx context.Context) (int, error) {
	var out struct {
		Requeued int `json:"requeued"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/queue/requeue", nil, &out)
	return out.Requeued, err
}

// FailedItems lists failed items without vectors.
func (c *Client) FailedItems(ctx context.Context) ([]queue.FailedItem, error) {
	var out struct {
		Failed []queue.FailedItem `json:"failed"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/queue/failed", nil, &out)
	return out.Failed, err
}

// DeadLetters lists dead letters.
func (c *Client) DeadLetters(ctx context.Context) ([]queue.DeadLetter, error) {
	var out struct {
		DeadLetters []queue.DeadLetter `json:"deadLetters"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/queue/dead-letters", nil, &out)
	return out.DeadLetters, err
}

// ClearDeadLetters drops every dead letter.
func (c *Client) ClearDeadLetters(ctx context.Context) (int, error) {
	var out struct {
		Cleared int `json:"cleared"`
	}
	err := c.do(ctx, http.MethodDelete, "/v1/queue/dead-letters", nil, &out)
	return out.Cleared, err
}

// do sends body as JSON and decodes the response into out. For error
// responses out is still decoded when the body is not an error envelope.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if json.Unmarshal(data, &envelope) == nil && envelope.Error != nil {
			envelope.Error.Status = resp.StatusCode
			return envelope.Error
		}
		if out != nil {
			_ = json.Unmarshal(data, out)
		}
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
