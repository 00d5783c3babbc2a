package handler

import (
	"encoding/json"
	"net/http"

	"crmdispatch/internal/service"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	healthService *service.HealthChecker
}

// NewHealthHandler creates a new HealthHandler instance
func NewHealthHandler(healthService *service.HealthChecker) *HealthHandler {
	return &HealthHandler{
		healthService: healthService,
	}
}

// HandleHealth handles GET requests to the /health endpoint
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	healthStatus := h.healthService.CheckHealth(r.Context())

	w.Header().Set("Content-Type", "application/json")

	// a degraded service still answers requests
	switch healthStatus.Status {
	case service.StatusHealthy, service.StatusDegraded:
		w.WriteHeader(http.StatusOK)
	case service.StatusUnhealthy:
		w.WriteHeader(http.StatusServiceUnavailable)
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}

	if err := json.NewEncoder(w).Encode(healthStatus); err != nil {
		// headers are already sent
		return
	}
}
