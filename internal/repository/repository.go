package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"crmdispatch/internal/models"
)

var (
	// ErrNotFound is returned when the requested row does not exist
	ErrNotFound = errors.New("not found")

	// ErrNotClaimed is returned when a dispatch lease could not be taken,
	// either because the campaign is not active or its next send is not due
	ErrNotClaimed = errors.New("dispatch not claimed")
)

// ContactRepository defines contact data access operations
type ContactRepository interface {
	GetByIDs(ctx context.Context, ids []string) ([]*models.Contact, error)
	Find(ctx context.Context, filter models.ContactFilter) ([]*models.Contact, error)
}

// CampaignRepository defines campaign data access operations
type CampaignRepository interface {
	CreateWithRecipients(ctx context.Context, campaign *models.Campaign, recipients []*models.Recipient) error
	GetByID(ctx context.Context, id string) (*models.Campaign, error)
	GetWithStats(ctx context.Context, id string) (*models.CampaignWithStats, error)
	List(ctx context.Context, filters CampaignFilters) ([]*models.Campaign, int, error)
	ListActiveIDs(ctx context.Context) ([]string, error)
	Transition(ctx context.Context, id string, from []models.CampaignStatus, to models.CampaignStatus, at time.Time) (bool, error)
	ClaimDispatch(ctx context.Context, id string, now, leaseUntil time.Time) (*models.Campaign, error)
	ScheduleNext(ctx context.Context, id string, next time.Time, batchSentCount int) error
	Complete(ctx context.Context, id string, at time.Time) (bool, error)
}

// CampaignFilters defines filters for listing campaigns
type CampaignFilters struct {
	Page     int
	PageSize int
	Status   *models.CampaignStatus
}

// RecipientRepository defines the per-campaign recipient queue
type RecipientRepository interface {
	NextPending(ctx context.Context, campaignID string) (*models.Recipient, error)
	RecordOutcome(ctx context.Context, outcome models.SendOutcome) (bool, error)
	ListByCampaign(ctx context.Context, campaignID string, status *models.RecipientStatus) ([]*models.Recipient, error)
	Skip(ctx context.Context, campaignID string, recipientIDs []string) (int, error)
	UpdateVariations(ctx context.Context, recipients []*models.Recipient) error
}

// ConversationRepository defines conversation priority data access operations
type ConversationRepository interface {
	GetByID(ctx context.Context, id string) (*models.Conversation, error)
	ListIDs(ctx context.Context) ([]string, error)
	LoadScoringData(ctx context.Context, id string) (*models.ScoringData, error)
	SaveAutomaticScore(ctx context.Context, id string, score int, bucket models.PriorityBucket, at time.Time) error
	SaveRecalculatedScore(ctx context.Context, id string, score int, bucket models.PriorityBucket, at time.Time) error
	SetManualPriority(ctx context.Context, id string, bucket models.PriorityBucket, at time.Time) error
}

// DB is a wrapper around *sql.DB to allow passing in transaction
type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func statusStrings(statuses []models.CampaignStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
