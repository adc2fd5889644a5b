package api

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	serrors "github.com/Aman-CERP/stratoindex/internal/errors"
	"github.com/Aman-CERP/stratoindex/internal/store"
)

// UpsertRequest writes records directly, bypassing the queue.
type UpsertRequest struct {
	Records []store.Record `json:"records"`
}

// SimilarRequest is a nearest-neighbor query.
type SimilarRequest struct {
	Vector []float32 `json:"vector"`
	TopK   int       `json:"topK,omitempty"`
	// MinSimilarity overrides the store floor for this query.
	MinSimilarity *float64 `json:"minSimilarity,omitempty"`
}

// RenameRequest re-keys records after moves.
type RenameRequest struct {
	Updates []store.PathUpdate `json:"updates"`
}

func embeddingRoutes(deps Deps) func(chi.Router) {
	return func(r chi.Router) {
		r.Put("/files", handleUpsert(deps, store.NamespaceFile))
		r.Put("/folders", handleUpsert(deps, store.NamespaceFolder))
		r.Put("/chunks", handleUpsert(deps, store.NamespaceChunk))
		r.Post("/files/similar", handleSimilar(deps, store.NamespaceFile))
		r.Post("/folders/similar", handleSimilar(deps, store.NamespaceFolder))
		r.Post("/chunks/similar", handleSimilar(deps, store.NamespaceChunk))
		r.Post("/files/rename", handleRename(deps))
		r.Delete("/files/*", handleDeleteFile(deps))
		r.Get("/stats", handleVectorStats(deps))
	}
}

func handleUpsert(deps Deps, ns store.Namespace) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpsertRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if len(req.Records) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "records is required and must not be empty")
			return
		}

		res := deps.Vectors.UpsertBatch(r.Context(), ns, req.Records)
		writeJSON(w, upsertStatus(res.Result), res)
	}
}

func upsertStatus(res store.Result) int {
	switch res.Outcome {
	case store.OutcomeOK:
		return http.StatusOK
	case store.OutcomeStructural:
		if res.Reason == store.ReasonDimensionMismatch {
			return http.StatusConflict
		}
		return http.StatusBadRequest
	default:
		if res.Reason == store.ReasonClosed {
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	}
}

func handleSimilar(deps Deps, ns store.Namespace) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SimilarRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if len(req.Vector) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "vector is required")
			return
		}

		var opts []store.QueryOption
		if req.MinSimilarity != nil {
			opts = append(opts, store.WithMinSimilarity(*req.MinSimilarity))
		}
		matches, err := deps.Vectors.Query(r.Context(), ns, req.Vector, req.TopK, opts...)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
	}
}

func handleRename(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RenameRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if len(req.Updates) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "updates is required and must not be empty")
			return
		}
		n, err := deps.Vectors.UpdateFilePaths(r.Context(), req.Updates)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"updated": n})
	}
}

func handleDeleteFile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := url.PathUnescape(chi.URLParam(r, "*"))
		if err != nil || id == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "file id is required")
			return
		}
		deleted, err := deps.Vectors.DeleteFileEmbedding(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		if !deleted {
			writeError(w, serrors.New(serrors.ErrCodeRecordNotFound, "no embedding stored for "+id, nil))
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
	}
}

func handleVectorStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.Vectors.GetStats(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}
