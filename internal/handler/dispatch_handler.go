package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/hashicorp/go-multierror"

	"crmdispatch/internal/service"
)

// DispatchHandler exposes a manual trigger of the dispatch loop
type DispatchHandler struct {
	dispatchService *service.DispatchService
}

// NewDispatchHandler creates a new dispatch handler
func NewDispatchHandler(dispatchService *service.DispatchService) *DispatchHandler {
	return &DispatchHandler{
		dispatchService: dispatchService,
	}
}

// TriggerResponse is the outcome of a manual pass
type TriggerResponse struct {
	*service.PassSummary
	Errors []string `json:"errors,omitempty"`
}

// Trigger handles POST /dispatch/trigger - runs one pass over all active campaigns
func (h *DispatchHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	summary, err := h.dispatchService.RunPass(r.Context())
	if summary == nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, TriggerResponse{
		PassSummary: summary,
		Errors:      errorList(err),
	})
}

// errorList flattens an aggregated error into messages for the response body
func errorList(err error) []string {
	if err == nil {
		return nil
	}

	var merr *multierror.Error
	if !errors.As(err, &merr) {
		log.Printf("ERROR: %v", err)
		return []string{"internal error"}
	}

	messages := make([]string, 0, len(merr.Errors))
	for _, e := range merr.Errors {
		log.Printf("ERROR: %v", e)
		messages = append(messages, e.Error())
	}
	return messages
}
