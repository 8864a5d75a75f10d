package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	apimw "github.com/ricirt/pubsub-outbox/internal/api/middleware"
	"github.com/ricirt/pubsub-outbox/internal/domain"
	"github.com/ricirt/pubsub-outbox/internal/service"
)

// MessageHandler handles staging, inspection, acknowledgment, and removal
// of individual messages.
type MessageHandler struct {
	svc    *service.OutboxService
	logger *zap.Logger
}

func NewMessageHandler(svc *service.OutboxService, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{svc: svc, logger: logger}
}

// Publish handles POST /api/v1/messages
func (h *MessageHandler) Publish(w http.ResponseWriter, r *http.Request) {
	var req domain.PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	msg, err := h.svc.Publish(r.Context(), req)
	if err != nil {
		h.logger.Warn("publish failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Int("msg_id", req.ID),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, msg)
}

// List handles GET /api/v1/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	msgs := h.svc.List(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{
		"data":  msgs,
		"total": len(msgs),
	})
}

// GetByID handles GET /api/v1/messages/{id} and returns the first match.
func (h *MessageHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := intParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "id must be an integer")
		return
	}

	msg, err := h.svc.Get(r.Context(), id)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, msg)
}

// Ack handles POST /api/v1/messages/{id}/ack?kind=N
//
// Unlike Cancel, acknowledging something that is not resident is an error:
// an ack is expected to match exactly.
func (h *MessageHandler) Ack(w http.ResponseWriter, r *http.Request) {
	id, ok := intParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "id must be an integer")
		return
	}
	kind, err := strconv.Atoi(r.URL.Query().Get("kind"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "kind query parameter must be an integer")
		return
	}

	if err := h.svc.Ack(r.Context(), id, domain.Kind(kind)); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkPending handles POST /api/v1/messages/{id}/pending. It flags the first
// message with the id as sent by an external publisher, which keeps the
// dispatcher and eviction away from it until it is acknowledged or expires.
func (h *MessageHandler) MarkPending(w http.ResponseWriter, r *http.Request) {
	id, ok := intParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "id must be an integer")
		return
	}
	if err := h.svc.MarkPending(r.Context(), id); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Cancel handles DELETE /api/v1/messages/{id}. It removes every message with
// the id and succeeds even when none matched.
func (h *MessageHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := intParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "id must be an integer")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"removed": h.svc.Cancel(r.Context(), id)})
}

// PurgeKind handles DELETE /api/v1/kinds/{kind}.
func (h *MessageHandler) PurgeKind(w http.ResponseWriter, r *http.Request) {
	kind, ok := intParam(r, "kind")
	if !ok {
		respondError(w, http.StatusBadRequest, "kind must be an integer")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"removed": h.svc.PurgeKind(r.Context(), domain.Kind(kind))})
}
