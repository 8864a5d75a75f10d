package handler

import (
	"net/http"
	"strconv"

	"github.com/ricirt/pubsub-outbox/internal/service"
)

// OutboxHandler serves human-readable JSON views of the outbox as a whole.
// Raw Prometheus metrics are available at /metrics via promhttp.
type OutboxHandler struct {
	svc *service.OutboxService
}

func NewOutboxHandler(svc *service.OutboxService) *OutboxHandler {
	return &OutboxHandler{svc: svc}
}

// Stats handles GET /api/v1/outbox
func (h *OutboxHandler) Stats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.svc.Stats())
}

// Failures handles GET /api/v1/failures?limit=N
// Without limit, or with one outside 1..500, the service default of 50 applies.
func (h *OutboxHandler) Failures(w http.ResponseWriter, r *http.Request) {
	var limit int
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}

	failures, err := h.svc.Failures(r.Context(), limit)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": failures})
}
