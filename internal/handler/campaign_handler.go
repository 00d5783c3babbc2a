package handler

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"crmdispatch/internal/models"
	"crmdispatch/internal/repository"
	"crmdispatch/internal/service"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// CampaignHandler handles HTTP requests for campaign operations
type CampaignHandler struct {
	campaignService *service.CampaignService
	retryService    *service.RetryService
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(campaignService *service.CampaignService, retryService *service.RetryService) *CampaignHandler {
	return &CampaignHandler{
		campaignService: campaignService,
		retryService:    retryService,
	}
}

// Create handles POST /campaigns - creates a new campaign
func (h *CampaignHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateCampaignRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	campaign, err := h.campaignService.CreateCampaign(r.Context(), &req)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteCreated(w, campaign)
}

// List handles GET /campaigns - lists campaigns with filters
func (h *CampaignHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page := 1
	if pageStr := query.Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}

	perPage := 20
	if perPageStr := query.Get("per_page"); perPageStr != "" {
		if pp, err := strconv.Atoi(perPageStr); err == nil && pp > 0 {
			perPage = pp
		}
	}
	if perPage > 100 {
		perPage = 100
	}

	filters := repository.CampaignFilters{
		Page:     page,
		PageSize: perPage,
	}

	if statusStr := query.Get("status"); statusStr != "" {
		status := models.CampaignStatus(statusStr)
		if !status.IsValid() {
			WriteValidationError(w, "invalid status: must be one of aguardando, ativa, pausada, concluida, cancelada")
			return
		}
		filters.Status = &status
	}

	campaigns, pagination, err := h.campaignService.ListCampaigns(r.Context(), filters)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, ListCampaignsResponse{
		Campaigns:  campaigns,
		Pagination: pagination,
	})
}

// GetByID handles GET /campaigns/{id} - gets a campaign with recipient stats
func (h *CampaignHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	campaign, err := h.campaignService.GetCampaignWithStats(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, campaign)
}

// Start handles POST /campaigns/{id}/start
func (h *CampaignHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.campaignService.StartCampaign)
}

// Pause handles POST /campaigns/{id}/pause
func (h *CampaignHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.campaignService.PauseCampaign)
}

// Cancel handles POST /campaigns/{id}/cancel
func (h *CampaignHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.campaignService.CancelCampaign)
}

func (h *CampaignHandler) transition(
	w http.ResponseWriter,
	r *http.Request,
	apply func(ctx context.Context, id string) (*models.Campaign, error),
) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	campaign, err := apply(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, campaign)
}

// SkipRecipients handles POST /campaigns/{id}/recipients/skip
func (h *CampaignHandler) SkipRecipients(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	var req SkipRecipientsRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	skipped, err := h.campaignService.SkipRecipients(r.Context(), id, req.RecipientIDs)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, CountResponse{CampaignID: id, Count: skipped})
}

// ShuffleVariations handles POST /campaigns/{id}/variations/shuffle
func (h *CampaignHandler) ShuffleVariations(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	shuffled, err := h.campaignService.ShuffleVariations(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteOK(w, CountResponse{CampaignID: id, Count: shuffled})
}

// Retry handles POST /campaigns/{id}/retry - clones failed recipients into a new campaign
func (h *CampaignHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	var req RetryRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}

	campaign, err := h.retryService.RetryFailed(r.Context(), id, req.StartNow)
	if err != nil {
		HandleServiceError(w, err)
		return
	}

	WriteCreated(w, campaign)
}

// ExportCSV handles GET /campaigns/{id}/export.csv
func (h *CampaignHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	// existence is checked before any byte is written
	if _, err := h.campaignService.GetCampaign(r.Context(), id); err != nil {
		HandleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="campaign-%s.csv"`, id))
	w.WriteHeader(http.StatusOK)

	if err := h.campaignService.ExportCSV(r.Context(), id, w); err != nil {
		log.Printf("ERROR: CSV export of campaign %s aborted: %v", id, err)
	}
}

// campaignID extracts and validates the {id} path variable
func campaignID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := mux.Vars(r)["id"]
	if _, err := uuid.Parse(id); err != nil {
		WriteValidationError(w, "invalid campaign ID format")
		return "", false
	}
	return id, true
}

// Request/Response types

// ListCampaignsResponse represents the response for listing campaigns
type ListCampaignsResponse struct {
	Campaigns  []*models.Campaign      `json:"campaigns"`
	Pagination *service.PaginationInfo `json:"pagination"`
}

// SkipRecipientsRequest lists the recipients to deselect
type SkipRecipientsRequest struct {
	RecipientIDs []string `json:"recipient_ids"`
}

// RetryRequest represents the body of a retry call
type RetryRequest struct {
	StartNow bool `json:"start_now"`
}

// CountResponse reports how many recipients an operation touched
type CountResponse struct {
	CampaignID string `json:"campaign_id"`
	Count      int    `json:"count"`
}
