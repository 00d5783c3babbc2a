package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"crmdispatch/internal/metrics"
	"crmdispatch/internal/models"
	"crmdispatch/internal/repository"
)

// JobPublisher enqueues a dispatch job for a campaign
type JobPublisher interface {
	PublishDispatch(ctx context.Context, campaignID string) error
}

// CampaignService handles campaign business logic
type CampaignService struct {
	campaignRepo  repository.CampaignRepository
	recipientRepo repository.RecipientRepository
	contactRepo   repository.ContactRepository
	templateSvc   *TemplateService
	publisher     JobPublisher
	metrics       *metrics.Metrics

	now  func() time.Time
	mu   sync.Mutex
	rand *rand.Rand
}

// NewCampaignService creates a new campaign service.
// publisher may be nil, in which case started campaigns wait for the next scheduler tick.
func NewCampaignService(
	campaignRepo repository.CampaignRepository,
	recipientRepo repository.RecipientRepository,
	contactRepo repository.ContactRepository,
	templateSvc *TemplateService,
	publisher JobPublisher,
) *CampaignService {
	return &CampaignService{
		campaignRepo:  campaignRepo,
		recipientRepo: recipientRepo,
		contactRepo:   contactRepo,
		templateSvc:   templateSvc,
		publisher:     publisher,
		now:           time.Now,
		rand:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetRandSeed makes variation assignment deterministic
func (s *CampaignService) SetRandSeed(seed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rand = rand.New(rand.NewSource(seed))
}

// SetMetrics attaches Prometheus collectors
func (s *CampaignService) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// SetClock overrides the time source
func (s *CampaignService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *CampaignService) pickVariation(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand.Intn(n)
}

// CreateCampaign validates the request, materializes one recipient per target
// and stores campaign and recipients together
func (s *CampaignService) CreateCampaign(ctx context.Context, req *CreateCampaignRequest) (*models.Campaign, error) {
	if err := req.Validate(); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	for i, variation := range req.Variations {
		if err := s.templateSvc.ValidateTemplate(variation); err != nil {
			return nil, &ValidationError{Message: fmt.Sprintf("invalid variation %d: %v", i, err)}
		}
		if unknown := s.templateSvc.UnknownPlaceholders(variation); len(unknown) > 0 {
			log.Printf("⚠️  Campaign %q variation %d: placeholders %v will render empty", req.Name, i, unknown)
		}
	}

	targets, err := s.resolveTargets(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, &ValidationError{Message: "at least one recipient is required"}
	}

	now := s.now()
	campaign := &models.Campaign{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(req.Name),
		Status:       models.InitialStatus(req.StartNow),
		Variations:   req.Variations,
		Timing:       req.Timing,
		PlannedTotal: len(targets),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if campaign.Status == models.CampaignStatusActive {
		campaign.StartedAt = &now
	}
	if err := campaign.Validate(); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	recipients := make([]*models.Recipient, 0, len(targets))
	for i, contact := range targets {
		recipient, err := s.newRecipient(campaign, contact, i+1, s.pickVariation(len(campaign.Variations)), now)
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, recipient)
	}

	if err := s.campaignRepo.CreateWithRecipients(ctx, campaign, recipients); err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}

	if campaign.Status == models.CampaignStatusActive {
		s.enqueue(ctx, campaign.ID)
	}

	return campaign, nil
}

func (s *CampaignService) newRecipient(campaign *models.Campaign, contact *models.Contact, position, variation int, now time.Time) (*models.Recipient, error) {
	attributes := s.templateSvc.AttributesFor(contact)
	message, err := s.templateSvc.Render(campaign.Variations[variation], attributes)
	if err != nil {
		return nil, fmt.Errorf("failed to render variation %d: %w", variation, err)
	}

	recipient := &models.Recipient{
		ID:              uuid.NewString(),
		CampaignID:      campaign.ID,
		Position:        position,
		Phone:           contact.Phone,
		DisplayName:     contact.DisplayName(),
		VariationIndex:  variation,
		ResolvedMessage: message,
		Attributes:      attributes,
		Status:          models.RecipientStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if contact.ID != "" {
		id := contact.ID
		recipient.ContactID = &id
	}
	return recipient, nil
}

// resolveTargets merges explicit contact ids, filter matches and manual
// recipients, keeping the first occurrence of each phone number
func (s *CampaignService) resolveTargets(ctx context.Context, req *CreateCampaignRequest) ([]*models.Contact, error) {
	targets := []*models.Contact{}
	seen := map[string]bool{}
	add := func(contacts []*models.Contact) {
		for _, c := range contacts {
			phone := strings.TrimSpace(c.Phone)
			if phone == "" || seen[phone] {
				continue
			}
			seen[phone] = true
			c.Phone = phone
			targets = append(targets, c)
		}
	}

	if len(req.ContactIDs) > 0 {
		contacts, err := s.contactRepo.GetByIDs(ctx, req.ContactIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to get contacts: %w", err)
		}
		add(contacts)
	}

	if !req.Filters.IsEmpty() {
		contacts, err := s.contactRepo.Find(ctx, *req.Filters)
		if err != nil {
			return nil, fmt.Errorf("failed to find contacts: %w", err)
		}
		add(contacts)
	}

	manual := make([]*models.Contact, 0, len(req.Recipients))
	for _, r := range req.Recipients {
		manual = append(manual, r.toContact())
	}
	add(manual)

	return targets, nil
}

// GetCampaign retrieves a campaign by ID
func (s *CampaignService) GetCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	campaign, err := s.campaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "campaign", id)
	}
	return campaign, nil
}

// GetCampaignWithStats retrieves a campaign with statistics
func (s *CampaignService) GetCampaignWithStats(ctx context.Context, id string) (*models.CampaignWithStats, error) {
	campaign, err := s.campaignRepo.GetWithStats(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "campaign", id)
	}
	return campaign, nil
}

// ListCampaigns lists campaigns with filters
func (s *CampaignService) ListCampaigns(ctx context.Context, filters repository.CampaignFilters) ([]*models.Campaign, *PaginationInfo, error) {
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, nil, &ValidationError{Message: fmt.Sprintf("invalid status: %s", *filters.Status)}
	}

	campaigns, total, err := s.campaignRepo.List(ctx, filters)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list campaigns: %w", err)
	}

	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	page := filters.Page
	if page < 1 {
		page = 1
	}

	pagination := &PaginationInfo{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
		TotalPages: (total + pageSize - 1) / pageSize,
	}

	return campaigns, pagination, nil
}

// StartCampaign moves a queued or paused campaign into ativa and enqueues a dispatch job
func (s *CampaignService) StartCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	campaign, err := s.transition(ctx, id, (*models.Campaign).Start, models.StartSources, models.CampaignStatusActive)
	if err != nil {
		return nil, err
	}
	s.enqueue(ctx, campaign.ID)
	return campaign, nil
}

// PauseCampaign stops further sends of an active campaign
func (s *CampaignService) PauseCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	return s.transition(ctx, id, (*models.Campaign).Pause, models.PauseSources, models.CampaignStatusPaused)
}

// CancelCampaign terminates a campaign. Cancelling twice is not an error.
func (s *CampaignService) CancelCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	return s.transition(ctx, id, (*models.Campaign).Cancel, models.CancelSources, models.CampaignStatusCancelled)
}

func (s *CampaignService) transition(
	ctx context.Context,
	id string,
	apply func(*models.Campaign, time.Time) error,
	from []models.CampaignStatus,
	to models.CampaignStatus,
) (*models.Campaign, error) {
	campaign, err := s.campaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "campaign", id)
	}

	previous := campaign.Status
	now := s.now()
	if err := apply(campaign, now); err != nil {
		return nil, &ConflictError{Resource: "campaign", Message: err.Error()}
	}
	if previous == campaign.Status {
		return campaign, nil
	}

	ok, err := s.campaignRepo.Transition(ctx, id, from, to, now)
	if err != nil {
		return nil, fmt.Errorf("failed to update campaign status: %w", err)
	}
	if !ok {
		current, err := s.campaignRepo.GetByID(ctx, id)
		if err != nil {
			return nil, notFoundOr(err, "campaign", id)
		}
		if current.Status == to {
			return current, nil
		}
		return nil, &ConflictError{
			Resource: "campaign",
			Message:  fmt.Sprintf("status changed to %s before the update", current.Status),
		}
	}

	s.metrics.ObserveTransition(string(to))
	log.Printf("🔁 Campaign %s: %s -> %s", id, previous, to)
	return campaign, nil
}

// SkipRecipients deselects pending recipients of a queued campaign
func (s *CampaignService) SkipRecipients(ctx context.Context, campaignID string, recipientIDs []string) (int, error) {
	if len(recipientIDs) == 0 {
		return 0, &ValidationError{Message: "at least one recipient ID required"}
	}

	skipped, err := s.recipientRepo.Skip(ctx, campaignID, recipientIDs)
	if err != nil {
		if errors.Is(err, models.ErrStateConflict) {
			return 0, &ConflictError{Resource: "campaign", Message: err.Error()}
		}
		return 0, notFoundOr(err, "campaign", campaignID)
	}

	return skipped, nil
}

// ShuffleVariations re-draws the variation of every pending recipient.
// Only allowed while the campaign is queued and nothing has been sent.
func (s *CampaignService) ShuffleVariations(ctx context.Context, campaignID string) (int, error) {
	campaign, err := s.campaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return 0, notFoundOr(err, "campaign", campaignID)
	}
	if campaign.Status != models.CampaignStatusQueued || campaign.Processed() > 0 {
		return 0, &ConflictError{
			Resource: "campaign",
			Message:  fmt.Sprintf("variations can only be shuffled before dispatch starts (status %s)", campaign.Status),
		}
	}

	pending := models.RecipientStatusPending
	recipients, err := s.recipientRepo.ListByCampaign(ctx, campaignID, &pending)
	if err != nil {
		return 0, fmt.Errorf("failed to list recipients: %w", err)
	}

	for _, recipient := range recipients {
		recipient.VariationIndex = s.pickVariation(len(campaign.Variations))
		message, err := s.templateSvc.Render(campaign.Variations[recipient.VariationIndex], recipient.Attributes)
		if err != nil {
			return 0, fmt.Errorf("failed to render variation: %w", err)
		}
		recipient.ResolvedMessage = message
	}

	if err := s.recipientRepo.UpdateVariations(ctx, recipients); err != nil {
		return 0, fmt.Errorf("failed to update variations: %w", err)
	}

	return len(recipients), nil
}

// ExportCSV writes the campaign's recipients as CSV
func (s *CampaignService) ExportCSV(ctx context.Context, campaignID string, w io.Writer) error {
	if _, err := s.campaignRepo.GetByID(ctx, campaignID); err != nil {
		return notFoundOr(err, "campaign", campaignID)
	}

	recipients, err := s.recipientRepo.ListByCampaign(ctx, campaignID, nil)
	if err != nil {
		return fmt.Errorf("failed to list recipients: %w", err)
	}

	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"name", "phone", "status", "variation_index", "sent_at", "responded_at"}); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, r := range recipients {
		row := []string{
			r.DisplayName,
			r.Phone,
			string(r.Status),
			strconv.Itoa(r.VariationIndex),
			formatTime(r.SentAt),
			formatTime(r.RespondedAt),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	writer.Flush()

	return writer.Error()
}

func (s *CampaignService) enqueue(ctx context.Context, campaignID string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishDispatch(ctx, campaignID); err != nil {
		// the scheduler tick picks the campaign up anyway
		log.Printf("Warning: Failed to publish dispatch job for campaign %s: %v", campaignID, err)
	}
}

func notFoundOr(err error, resource, id string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return &NotFoundError{Resource: resource, ID: id}
	}
	return fmt.Errorf("failed to get %s: %w", resource, err)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// Request/Response types

// RecipientInput is a manually entered target
type RecipientInput struct {
	Phone   string  `json:"phone"`
	Name    *string `json:"name,omitempty"`
	Product *string `json:"product,omitempty"`
	Status  *string `json:"status,omitempty"`
}

func (r RecipientInput) toContact() *models.Contact {
	return &models.Contact{
		Phone:   r.Phone,
		Name:    r.Name,
		Product: r.Product,
		Status:  r.Status,
	}
}

// CreateCampaignRequest represents a request to create a campaign
type CreateCampaignRequest struct {
	Name       string                `json:"name"`
	Variations []string              `json:"variations"`
	Timing     models.Timing         `json:"timing"`
	StartNow   bool                  `json:"start_now"`
	ContactIDs []string              `json:"contact_ids,omitempty"`
	Filters    *models.ContactFilter `json:"filters,omitempty"`
	Recipients []RecipientInput      `json:"recipients,omitempty"`
}

// Validate validates the create campaign request
func (r *CreateCampaignRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if len(r.Variations) == 0 {
		return fmt.Errorf("at least one variation is required")
	}
	if err := r.Timing.Validate(); err != nil {
		return err
	}
	if len(r.ContactIDs) == 0 && r.Filters.IsEmpty() && len(r.Recipients) == 0 {
		return fmt.Errorf("contact_ids, filters or recipients is required")
	}
	return nil
}

// PaginationInfo represents pagination metadata
type PaginationInfo struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}
