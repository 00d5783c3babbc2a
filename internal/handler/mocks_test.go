package handler

import (
	"context"
	"time"

	"crmdispatch/internal/models"
	"crmdispatch/internal/repository"
)

// MockCampaignRepository mocks CampaignRepository
type MockCampaignRepository struct {
	CreateWithRecipientsFunc func(ctx context.Context, campaign *models.Campaign, recipients []*models.Recipient) error
	GetByIDFunc              func(ctx context.Context, id string) (*models.Campaign, error)
	GetWithStatsFunc         func(ctx context.Context, id string) (*models.CampaignWithStats, error)
	ListFunc                 func(ctx context.Context, filters repository.CampaignFilters) ([]*models.Campaign, int, error)
	ListActiveIDsFunc        func(ctx context.Context) ([]string, error)
	TransitionFunc           func(ctx context.Context, id string, from []models.CampaignStatus, to models.CampaignStatus, at time.Time) (bool, error)
	ClaimDispatchFunc        func(ctx context.Context, id string, now, leaseUntil time.Time) (*models.Campaign, error)

	Calls map[string]int
}

func NewMockCampaignRepository() *MockCampaignRepository {
	return &MockCampaignRepository{Calls: make(map[string]int)}
}

func (m *MockCampaignRepository) CreateWithRecipients(ctx context.Context, campaign *models.Campaign, recipients []*models.Recipient) error {
	m.Calls["CreateWithRecipients"]++
	if m.CreateWithRecipientsFunc != nil {
		return m.CreateWithRecipientsFunc(ctx, campaign, recipients)
	}
	return nil
}

func (m *MockCampaignRepository) GetByID(ctx context.Context, id string) (*models.Campaign, error) {
	m.Calls["GetByID"]++
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *MockCampaignRepository) GetWithStats(ctx context.Context, id string) (*models.CampaignWithStats, error) {
	m.Calls["GetWithStats"]++
	if m.GetWithStatsFunc != nil {
		return m.GetWithStatsFunc(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *MockCampaignRepository) List(ctx context.Context, filters repository.CampaignFilters) ([]*models.Campaign, int, error) {
	m.Calls["List"]++
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filters)
	}
	return []*models.Campaign{}, 0, nil
}

func (m *MockCampaignRepository) ListActiveIDs(ctx context.Context) ([]string, error) {
	m.Calls["ListActiveIDs"]++
	if m.ListActiveIDsFunc != nil {
		return m.ListActiveIDsFunc(ctx)
	}
	return []string{}, nil
}

func (m *MockCampaignRepository) Transition(ctx context.Context, id string, from []models.CampaignStatus, to models.CampaignStatus, at time.Time) (bool, error) {
	m.Calls["Transition"]++
	if m.TransitionFunc != nil {
		return m.TransitionFunc(ctx, id, from, to, at)
	}
	return true, nil
}

func (m *MockCampaignRepository) ClaimDispatch(ctx context.Context, id string, now, leaseUntil time.Time) (*models.Campaign, error) {
	m.Calls["ClaimDispatch"]++
	if m.ClaimDispatchFunc != nil {
		return m.ClaimDispatchFunc(ctx, id, now, leaseUntil)
	}
	return nil, repository.ErrNotClaimed
}

func (m *MockCampaignRepository) ScheduleNext(ctx context.Context, id string, next time.Time, batchSentCount int) error {
	m.Calls["ScheduleNext"]++
	return nil
}

func (m *MockCampaignRepository) Complete(ctx context.Context, id string, at time.Time) (bool, error) {
	m.Calls["Complete"]++
	return false, nil
}

// MockRecipientRepository mocks RecipientRepository
type MockRecipientRepository struct {
	ListByCampaignFunc func(ctx context.Context, campaignID string, status *models.RecipientStatus) ([]*models.Recipient, error)
	SkipFunc           func(ctx context.Context, campaignID string, recipientIDs []string) (int, error)

	Calls map[string]int
}

func NewMockRecipientRepository() *MockRecipientRepository {
	return &MockRecipientRepository{Calls: make(map[string]int)}
}

func (m *MockRecipientRepository) NextPending(ctx context.Context, campaignID string) (*models.Recipient, error) {
	m.Calls["NextPending"]++
	return nil, repository.ErrNotFound
}

func (m *MockRecipientRepository) RecordOutcome(ctx context.Context, outcome models.SendOutcome) (bool, error) {
	m.Calls["RecordOutcome"]++
	return true, nil
}

func (m *MockRecipientRepository) ListByCampaign(ctx context.Context, campaignID string, status *models.RecipientStatus) ([]*models.Recipient, error) {
	m.Calls["ListByCampaign"]++
	if m.ListByCampaignFunc != nil {
		return m.ListByCampaignFunc(ctx, campaignID, status)
	}
	return []*models.Recipient{}, nil
}

func (m *MockRecipientRepository) Skip(ctx context.Context, campaignID string, recipientIDs []string) (int, error) {
	m.Calls["Skip"]++
	if m.SkipFunc != nil {
		return m.SkipFunc(ctx, campaignID, recipientIDs)
	}
	return len(recipientIDs), nil
}

func (m *MockRecipientRepository) UpdateVariations(ctx context.Context, recipients []*models.Recipient) error {
	m.Calls["UpdateVariations"]++
	return nil
}

// MockContactRepository mocks ContactRepository
type MockContactRepository struct{}

func (m *MockContactRepository) GetByIDs(ctx context.Context, ids []string) ([]*models.Contact, error) {
	return []*models.Contact{}, nil
}

func (m *MockContactRepository) Find(ctx context.Context, filter models.ContactFilter) ([]*models.Contact, error) {
	return []*models.Contact{}, nil
}

// MockConversationRepository mocks ConversationRepository
type MockConversationRepository struct {
	Data map[string]*models.ScoringData

	Calls map[string]int
}

func NewMockConversationRepository() *MockConversationRepository {
	return &MockConversationRepository{
		Data:  make(map[string]*models.ScoringData),
		Calls: make(map[string]int),
	}
}

func (m *MockConversationRepository) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	m.Calls["GetByID"]++
	d, ok := m.Data[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := d.Conversation
	return &c, nil
}

func (m *MockConversationRepository) ListIDs(ctx context.Context) ([]string, error) {
	m.Calls["ListIDs"]++
	ids := []string{}
	for id := range m.Data {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *MockConversationRepository) LoadScoringData(ctx context.Context, id string) (*models.ScoringData, error) {
	m.Calls["LoadScoringData"]++
	d, ok := m.Data[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *MockConversationRepository) SaveAutomaticScore(ctx context.Context, id string, score int, bucket models.PriorityBucket, at time.Time) error {
	m.Calls["SaveAutomaticScore"]++
	return nil
}

func (m *MockConversationRepository) SaveRecalculatedScore(ctx context.Context, id string, score int, bucket models.PriorityBucket, at time.Time) error {
	m.Calls["SaveRecalculatedScore"]++
	if _, ok := m.Data[id]; !ok {
		return repository.ErrNotFound
	}
	return nil
}

func (m *MockConversationRepository) SetManualPriority(ctx context.Context, id string, bucket models.PriorityBucket, at time.Time) error {
	m.Calls["SetManualPriority"]++
	d, ok := m.Data[id]
	if !ok {
		return repository.ErrNotFound
	}
	d.Conversation.PriorityBucket = bucket
	d.Conversation.ManualOverride = true
	return nil
}
