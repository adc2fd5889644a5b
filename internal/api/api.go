// Package api serves the queue, vector store and search coordinator over
// HTTP/JSON for the desktop UI.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	serrors "github.com/Aman-CERP/stratoindex/internal/errors"
	"github.com/Aman-CERP/stratoindex/internal/logging"
	"github.com/Aman-CERP/stratoindex/internal/queue"
	"github.com/Aman-CERP/stratoindex/internal/search"
	"github.com/Aman-CERP/stratoindex/internal/store"
)

const maxRequestBodySize = 32 << 20 // 32MB, large vector batches

// RequestIDHeader carries the per-request id on every response.
const RequestIDHeader = "X-Request-ID"

// Searcher is the part of the search coordinator the API needs.
type Searcher interface {
	Search(ctx context.Context, query string, opts search.Options) (*search.Response, error)
	BuildLexicalIndex(ctx context.Context) (*search.BuildResult, error)
	InvalidateAndRebuild(ctx context.Context, reason string) (*search.BuildResult, error)
	Stats() search.IndexStats
}

// Deps are the collaborators behind the API.
type Deps struct {
	Queue   *queue.Queue
	Vectors *store.VectorStore
	Search  Searcher

	// Token is the bearer token. Empty disables authentication.
	Token string

	// MCP, when set, is mounted at /mcp behind the same authentication.
	MCP http.Handler

	Logger *slog.Logger
}

// NewHandler builds the router.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(middleware.Recoverer)
	r.Use(accessLog(deps.Logger))

	r.Get("/healthz", handleHealth)

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}

		r.Route("/v1", func(r chi.Router) {
			if deps.Queue != nil {
				r.Route("/queue", queueRoutes(deps))
			}
			if deps.Vectors != nil {
				r.Route("/embeddings", embeddingRoutes(deps))
			}
			if deps.Search != nil {
				r.Route("/search", searchRoutes(deps))
			}
		})

		if deps.MCP != nil {
			r.Mount("/mcp", deps.MCP)
		}
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type requestIDKey struct{}

// RequestID propagates an incoming X-Request-ID or assigns a new uuid.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// RequestIDFrom returns the request id stored by RequestID.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func accessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				slog.String("request_id", RequestIDFrom(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)))
		})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}

// writeError maps an internal error to a status code and error body.
func writeError(w http.ResponseWriter, err error) {
	code, errType := statusFor(err)
	body := map[string]any{
		"message": err.Error(),
		"type":    errType,
	}
	if se, ok := serrors.As(err); ok {
		body["message"] = se.Message
		body["code"] = se.Code
		if se.Suggestion != "" {
			body["suggestion"] = se.Suggestion
		}
	}
	writeJSON(w, code, map[string]any{"error": body})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout_error"
	case errors.Is(err, context.Canceled):
		return 499, "canceled"
	}

	switch serrors.GetCode(err) {
	case serrors.ErrCodeShuttingDown, serrors.ErrCodeStoreClosed, serrors.ErrCodeQueueClosed:
		return http.StatusServiceUnavailable, "unavailable_error"
	case serrors.ErrCodeRecordNotFound:
		return http.StatusNotFound, "not_found_error"
	case serrors.ErrCodeDimensionMismatch:
		return http.StatusConflict, "dimension_mismatch"
	case serrors.ErrCodePathConflict:
		return http.StatusConflict, "conflict_error"
	case serrors.ErrCodeSearchTimeout, serrors.ErrCodeStoreTimeout:
		return http.StatusGatewayTimeout, "timeout_error"
	case serrors.ErrCodeSearchFailed, serrors.ErrCodeIndexBuild:
		return http.StatusBadGateway, "api_error"
	}

	if serrors.KindOf(err) == serrors.KindValidation {
		return http.StatusBadRequest, "invalid_request_error"
	}
	return http.StatusInternalServerError, "api_error"
}
