package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"crmdispatch/internal/models"
	"crmdispatch/internal/repository"
)

// RetryService derives follow-up campaigns from failed recipients
type RetryService struct {
	campaignRepo  repository.CampaignRepository
	recipientRepo repository.RecipientRepository
	templateSvc   *TemplateService
	publisher     JobPublisher
	now           func() time.Time
}

// NewRetryService creates a new retry service
func NewRetryService(
	campaignRepo repository.CampaignRepository,
	recipientRepo repository.RecipientRepository,
	templateSvc *TemplateService,
	publisher JobPublisher,
) *RetryService {
	return &RetryService{
		campaignRepo:  campaignRepo,
		recipientRepo: recipientRepo,
		templateSvc:   templateSvc,
		publisher:     publisher,
		now:           time.Now,
	}
}

// SetClock overrides the time source
func (s *RetryService) SetClock(now func() time.Time) {
	s.now = now
}

// RetryFailed creates a new campaign holding a fresh pending clone of every
// failed recipient of the source campaign, in the original order. Each clone
// keeps its variation index and has its message re-rendered from the stored
// attributes. Only a concluded or cancelled campaign can be retried; the
// source campaign is not modified.
func (s *RetryService) RetryFailed(ctx context.Context, campaignID string, startNow bool) (*models.Campaign, error) {
	source, err := s.campaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, notFoundOr(err, "campaign", campaignID)
	}
	// recipients of a running campaign may still fail after the clone
	if !source.Status.IsTerminal() {
		return nil, &ConflictError{
			Resource: "campaign",
			Message:  fmt.Sprintf("cannot retry campaign in status %s", source.Status),
		}
	}

	failedStatus := models.RecipientStatusFailed
	failed, err := s.recipientRepo.ListByCampaign(ctx, campaignID, &failedStatus)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed recipients: %w", err)
	}
	if len(failed) == 0 {
		return nil, ErrEmptyRetry
	}

	now := s.now()
	sourceID := source.ID
	campaign := &models.Campaign{
		ID:           uuid.NewString(),
		Name:         fmt.Sprintf("%s (retry)", source.Name),
		Status:       models.InitialStatus(startNow),
		Variations:   append([]string(nil), source.Variations...),
		Timing:       source.Timing,
		PlannedTotal: len(failed),
		RetryOfID:    &sourceID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if campaign.Status == models.CampaignStatusActive {
		campaign.StartedAt = &now
	}

	clones := make([]*models.Recipient, 0, len(failed))
	for i, original := range failed {
		variation := original.VariationIndex
		if variation < 0 || variation >= len(campaign.Variations) {
			variation = 0
		}
		message, err := s.templateSvc.Render(campaign.Variations[variation], original.Attributes)
		if err != nil {
			return nil, fmt.Errorf("failed to render variation %d: %w", variation, err)
		}

		clones = append(clones, &models.Recipient{
			ID:              uuid.NewString(),
			CampaignID:      campaign.ID,
			Position:        i + 1,
			ContactID:       original.ContactID,
			Phone:           original.Phone,
			DisplayName:     original.DisplayName,
			VariationIndex:  variation,
			ResolvedMessage: message,
			Attributes:      original.Attributes,
			Status:          models.RecipientStatusPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}

	if err := s.campaignRepo.CreateWithRecipients(ctx, campaign, clones); err != nil {
		return nil, fmt.Errorf("failed to create retry campaign: %w", err)
	}

	log.Printf("🔄 Campaign %s retries %d failed recipients of %s", campaign.ID, len(clones), source.ID)

	if campaign.Status == models.CampaignStatusActive && s.publisher != nil {
		if err := s.publisher.PublishDispatch(ctx, campaign.ID); err != nil {
			log.Printf("Warning: Failed to publish dispatch job for campaign %s: %v", campaign.ID, err)
		}
	}

	return campaign, nil
}
