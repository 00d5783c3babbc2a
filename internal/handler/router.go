package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"crmdispatch/internal/middleware"
)

// Handlers groups the endpoint handlers mounted by NewRouter.
// Nil members are not mounted.
type Handlers struct {
	Campaigns *CampaignHandler
	Dispatch  *DispatchHandler
	Priority  *PriorityHandler
	Health    *HealthHandler
	Metrics   http.Handler
}

// NewRouter registers every API route
func NewRouter(h Handlers) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.Recovery)

	if h.Health != nil {
		router.HandleFunc("/health", h.Health.HandleHealth).Methods(http.MethodGet)
	}
	if h.Metrics != nil {
		router.Handle("/metrics", h.Metrics).Methods(http.MethodGet)
	}

	if c := h.Campaigns; c != nil {
		router.HandleFunc("/campaigns", c.Create).Methods(http.MethodPost)
		router.HandleFunc("/campaigns", c.List).Methods(http.MethodGet)
		router.HandleFunc("/campaigns/{id}", c.GetByID).Methods(http.MethodGet)
		router.HandleFunc("/campaigns/{id}/start", c.Start).Methods(http.MethodPost)
		router.HandleFunc("/campaigns/{id}/pause", c.Pause).Methods(http.MethodPost)
		router.HandleFunc("/campaigns/{id}/cancel", c.Cancel).Methods(http.MethodPost)
		router.HandleFunc("/campaigns/{id}/recipients/skip", c.SkipRecipients).Methods(http.MethodPost)
		router.HandleFunc("/campaigns/{id}/variations/shuffle", c.ShuffleVariations).Methods(http.MethodPost)
		router.HandleFunc("/campaigns/{id}/retry", c.Retry).Methods(http.MethodPost)
		router.HandleFunc("/campaigns/{id}/export.csv", c.ExportCSV).Methods(http.MethodGet)
	}

	if h.Dispatch != nil {
		router.HandleFunc("/dispatch/trigger", h.Dispatch.Trigger).Methods(http.MethodPost)
	}

	if p := h.Priority; p != nil {
		router.HandleFunc("/conversations/priority/recalculate", p.Recalculate).Methods(http.MethodPost)
		router.HandleFunc("/conversations/{id}/priority", p.SetPriority).Methods(http.MethodPut)
		router.HandleFunc("/conversations/{id}/priority/preview", p.Preview).Methods(http.MethodGet)
	}

	return router
}
