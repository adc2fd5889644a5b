package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Aman-CERP/stratoindex/internal/queue"
)

// EnqueueRequest carries one or more items. A bare item object is also
// accepted.
type EnqueueRequest struct {
	Items []queue.Item `json:"items"`
	queue.Item
}

// EnqueueResponse reports the outcome per item, in request order.
type EnqueueResponse struct {
	Accepted int                   `json:"accepted"`
	Rejected int                   `json:"rejected"`
	Results  []queue.EnqueueResult `json:"results"`
}

func queueRoutes(deps Deps) func(chi.Router) {
	return func(r chi.Router) {
		r.Post("/items", handleEnqueue(deps))
		r.Delete("/items", handleRemoveByPath(deps))
		r.Post("/flush", handleFlush(deps))
		r.Get("/stats", handleQueueStats(deps))
		r.Get("/failed", handleFailedItems(deps))
		r.Post("/requeue", handleRequeue(deps))
		r.Get("/dead-letters", handleDeadLetters(deps))
		r.Delete("/dead-letters", handleClearDeadLetters(deps))
	}
}

func handleEnqueue(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EnqueueRequest
		if !decodeBody(w, r, &req) {
			return
		}
		items := req.Items
		if len(items) == 0 && (req.Item.ID != "" || len(req.Item.Vector) > 0) {
			items = []queue.Item{req.Item}
		}
		if len(items) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "items is required and must not be empty")
			return
		}

		resp := EnqueueResponse{Results: make([]queue.EnqueueResult, 0, len(items))}
		status := http.StatusAccepted
		for _, it := range items {
			res := deps.Queue.Enqueue(it)
			resp.Results = append(resp.Results, res)
			if res.Success {
				resp.Accepted++
				continue
			}
			resp.Rejected++
			if status == http.StatusAccepted {
				status = enqueueStatus(res.Reason)
			}
		}
		writeJSON(w, status, resp)
	}
}

// enqueueStatus maps the first rejection reason to a status code.
func enqueueStatus(reason string) int {
	switch reason {
	case queue.ReasonQueueFull:
		return http.StatusTooManyRequests
	case queue.ReasonClosed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

func handleRemoveByPath(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimSpace(r.URL.Query().Get("path"))
		if path == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "path query parameter is required")
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"removed": deps.Queue.RemoveByPath(path)})
	}
}

func handleFlush(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Queue.Flush(r.Context()))
	}
}

func handleQueueStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, deps.Queue.Stats())
	}
}

func handleFailedItems(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		items := deps.Queue.FailedItems()
		if items == nil {
			items = []queue.FailedItem{}
		}
		// The listing omits vectors.
		for i := range items {
			items[i].Item.Vector = nil
		}
		writeJSON(w, http.StatusOK, map[string]any{"failed": items})
	}
}

func handleRequeue(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]int{"requeued": deps.Queue.RequeueFailed()})
	}
}

func handleDeadLetters(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		dead := deps.Queue.DeadLetters()
		if dead == nil {
			dead = []queue.DeadLetter{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"deadLetters": dead})
	}
}

func handleClearDeadLetters(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]int{"cleared": deps.Queue.ClearDeadLetters()})
	}
}
