package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Aman-CERP/stratoindex/internal/search"
)

// SearchRequest is a hybrid search query.
type SearchRequest struct {
	Query string `json:"query"`
	search.Options
}

// RebuildRequest triggers a lexical rebuild. Debounced requests coalesce
// with others arriving within the debounce window.
type RebuildRequest struct {
	Reason    string `json:"reason,omitempty"`
	Debounced bool   `json:"debounced,omitempty"`
}

func searchRoutes(deps Deps) func(chi.Router) {
	return func(r chi.Router) {
		r.Post("/", handleSearch(deps))
		r.Post("/rebuild", handleRebuild(deps))
		r.Get("/stats", handleSearchStats(deps))
	}
}

func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SearchRequest
		if !decodeBody(w, r, &req) {
			return
		}
		resp, err := deps.Search.Search(r.Context(), req.Query, req.Options)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleRebuild(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RebuildRequest
		if r.ContentLength != 0 && !decodeBody(w, r, &req) {
			return
		}
		if req.Reason == "" {
			req.Reason = "api_request"
		}

		var (
			res *search.BuildResult
			err error
		)
		if req.Debounced {
			res, err = deps.Search.InvalidateAndRebuild(r.Context(), req.Reason)
		} else {
			res, err = deps.Search.BuildLexicalIndex(r.Context())
		}
		if res == nil {
			writeError(w, err)
			return
		}
		status := http.StatusOK
		if err != nil {
			status, _ = statusFor(err)
		}
		writeJSON(w, status, res)
	}
}

func handleSearchStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, deps.Search.Stats())
	}
}
