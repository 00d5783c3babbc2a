package handler

import (
	"net/http"
	"strings"

	"crmdispatch/internal/models"
	"crmdispatch/internal/service"

	"github.com/gorilla/mux"
)

// PriorityHandler handles conversation priority scoring, overrides and previews
type PriorityHandler struct {
	priorityService *service.PriorityService
}

// NewPriorityHandler creates a new PriorityHandler instance
func NewPriorityHandler(priorityService *service.PriorityService) *PriorityHandler {
	return &PriorityHandler{
		priorityService: priorityService,
	}
}

// SetPriorityRequest represents the body of a manual override
type SetPriorityRequest struct {
	Bucket models.PriorityBucket `json:"bucket"`
}

// RecalculateRequest selects one conversation, or all when empty
type RecalculateRequest struct {
	ConversationID *string `json:"conversation_id,omitempty"`
}

// RecalculateAllResponse reports a full rescoring run
type RecalculateAllResponse struct {
	*service.RecalculateSummary
	Errors []string `json:"errors,omitempty"`
}

// SetPriority handles PUT /conversations/{id}/priority
func (h *PriorityHandler) SetPriority(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var req SetPriorityRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	conversation, err := h.priorityService.SetManualPriority(r.Context(), id, req.Bucket)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, conversation)
}

// Recalculate handles POST /conversations/priority/recalculate.
// With a conversation_id the override of that conversation is cleared;
// without one every conversation is rescored and overrides are kept.
func (h *PriorityHandler) Recalculate(w http.ResponseWriter, r *http.Request) {
	var req RecalculateRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}

	if req.ConversationID != nil {
		id := strings.TrimSpace(*req.ConversationID)
		if id == "" {
			WriteValidationError(w, "conversation_id cannot be empty")
			return
		}

		breakdown, err := h.priorityService.Recalculate(r.Context(), id)
		if err != nil {
			HandleServiceError(w, err)
			return
		}
		WriteOK(w, breakdown)
		return
	}

	summary, err := h.priorityService.RecalculateAll(r.Context())
	if summary == nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, RecalculateAllResponse{
		RecalculateSummary: summary,
		Errors:             errorList(err),
	})
}

// Preview handles GET /conversations/{id}/priority/preview
func (h *PriorityHandler) Preview(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	preview, err := h.priorityService.Preview(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, preview)
}

func conversationID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(mux.Vars(r)["id"])
	if id == "" {
		WriteValidationError(w, "conversation ID is required")
		return "", false
	}
	return id, true
}
