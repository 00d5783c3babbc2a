package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"crmdispatch/internal/models"
	"crmdispatch/internal/repository"
	"crmdispatch/internal/transport"
)

// memStore is an in-memory campaign and recipient store with the same
// compare-and-swap semantics as the SQL repositories
type memStore struct {
	mu         sync.Mutex
	order      []string
	campaigns  map[string]*models.Campaign
	recipients map[string][]*models.Recipient

	claimErr      map[string]error
	createErr     error
	completeCalls int
}

func newMemStore() *memStore {
	return &memStore{
		campaigns:  map[string]*models.Campaign{},
		recipients: map[string][]*models.Recipient{},
		claimErr:   map[string]error{},
	}
}

func (m *memStore) CreateWithRecipients(ctx context.Context, campaign *models.Campaign, recipients []*models.Recipient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	c := *campaign
	m.campaigns[c.ID] = &c
	m.order = append(m.order, c.ID)
	stored := make([]*models.Recipient, 0, len(recipients))
	for _, r := range recipients {
		r.CampaignID = c.ID
		cp := *r
		stored = append(stored, &cp)
	}
	m.recipients[c.ID] = stored
	return nil
}

func (m *memStore) GetByID(ctx context.Context, id string) (*models.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, fmt.Errorf("campaign %s: %w", id, repository.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) GetWithStats(ctx context.Context, id string) (*models.CampaignWithStats, error) {
	c, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := models.CampaignStats{}
	for _, r := range m.recipients[id] {
		stats.Total++
		switch r.Status {
		case models.RecipientStatusPending:
			stats.Pending++
		case models.RecipientStatusSent:
			stats.Sent++
		case models.RecipientStatusFailed:
			stats.Failed++
		case models.RecipientStatusSkipped:
			stats.Skipped++
		}
	}
	return &models.CampaignWithStats{Campaign: *c, Stats: stats}, nil
}

func (m *memStore) List(ctx context.Context, filters repository.CampaignFilters) ([]*models.Campaign, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.Campaign{}
	for _, id := range m.order {
		c := m.campaigns[id]
		if filters.Status != nil && c.Status != *filters.Status {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (m *memStore) ListActiveIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := []string{}
	for _, id := range m.order {
		if m.campaigns[id].Status == models.CampaignStatusActive {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memStore) Transition(ctx context.Context, id string, from []models.CampaignStatus, to models.CampaignStatus, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if c.Status == s {
			c.Status = to
			if to == models.CampaignStatusActive && c.StartedAt == nil {
				c.StartedAt = &at
			}
			c.UpdatedAt = at
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ClaimDispatch(ctx context.Context, id string, now, leaseUntil time.Time) (*models.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.claimErr[id]; err != nil {
		return nil, err
	}
	c, ok := m.campaigns[id]
	if !ok || c.Status != models.CampaignStatusActive || (c.NextSendAt != nil && now.Before(*c.NextSendAt)) {
		return nil, repository.ErrNotClaimed
	}
	lease := leaseUntil
	c.NextSendAt = &lease
	cp := *c
	return &cp, nil
}

func (m *memStore) ScheduleNext(ctx context.Context, id string, next time.Time, batchSentCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.NextSendAt = &next
	c.BatchSentCount = batchSentCount
	return nil
}

func (m *memStore) Complete(ctx context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completeCalls++
	c, ok := m.campaigns[id]
	if !ok || !c.ShouldComplete() {
		return false, nil
	}
	c.Status = models.CampaignStatusCompleted
	c.CompletedAt = &at
	c.UpdatedAt = at
	return true, nil
}

func (m *memStore) NextPending(ctx context.Context, campaignID string) (*models.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var next *models.Recipient
	for _, r := range m.recipients[campaignID] {
		if r.Status == models.RecipientStatusPending && (next == nil || r.Position < next.Position) {
			next = r
		}
	}
	if next == nil {
		return nil, repository.ErrNotFound
	}
	cp := *next
	return &cp, nil
}

func (m *memStore) RecordOutcome(ctx context.Context, outcome models.SendOutcome) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var target *models.Recipient
	for _, r := range m.recipients[outcome.CampaignID] {
		if r.ID == outcome.RecipientID {
			target = r
		}
	}
	if target == nil || target.Status != models.RecipientStatusPending {
		return false, nil
	}
	c := m.campaigns[outcome.CampaignID]
	if c.Processed() >= c.PlannedTotal {
		return false, errors.New("counters already at planned total")
	}

	target.Status = outcome.Status()
	if outcome.Success {
		at := outcome.At
		target.SentAt = &at
		c.CompletedCount++
	} else {
		msg := outcome.ErrorMessage
		target.ErrorMessage = &msg
		c.FailedCount++
	}
	next := outcome.NextSendAt
	c.NextSendAt = &next
	c.BatchSentCount = outcome.BatchSentCount
	return true, nil
}

func (m *memStore) ListByCampaign(ctx context.Context, campaignID string, status *models.RecipientStatus) ([]*models.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.Recipient{}
	for _, r := range m.recipients[campaignID] {
		if status != nil && r.Status != *status {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *memStore) Skip(ctx context.Context, campaignID string, recipientIDs []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[campaignID]
	if !ok {
		return 0, fmt.Errorf("campaign %s: %w", campaignID, repository.ErrNotFound)
	}
	if c.Status != models.CampaignStatusQueued {
		return 0, &models.TransitionError{Action: "skip", From: c.Status}
	}
	wanted := map[string]bool{}
	for _, id := range recipientIDs {
		wanted[id] = true
	}
	skipped := 0
	for _, r := range m.recipients[campaignID] {
		if wanted[r.ID] && r.Status == models.RecipientStatusPending {
			r.Status = models.RecipientStatusSkipped
			skipped++
		}
	}
	c.PlannedTotal -= skipped
	return skipped, nil
}

func (m *memStore) UpdateVariations(ctx context.Context, recipients []*models.Recipient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID := map[string]*models.Recipient{}
	for _, r := range recipients {
		byID[r.ID] = r
	}
	for _, list := range m.recipients {
		for _, r := range list {
			if u, ok := byID[r.ID]; ok && r.Status == models.RecipientStatusPending {
				r.VariationIndex = u.VariationIndex
				r.ResolvedMessage = u.ResolvedMessage
			}
		}
	}
	return nil
}

// campaign returns the stored campaign without copying
func (m *memStore) campaign(id string) models.Campaign {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.campaigns[id]
}

func (m *memStore) recipientList(id string) []models.Recipient {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Recipient{}
	for _, r := range m.recipients[id] {
		out = append(out, *r)
	}
	return out
}

func (m *memStore) setStatus(id string, status models.CampaignStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.campaigns[id].Status = status
}

func (m *memStore) markRecipient(campaignID, recipientID string, status models.RecipientStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.recipients[campaignID] {
		if r.ID == recipientID {
			r.Status = status
		}
	}
}

// memContacts serves contacts for targeting
type memContacts struct {
	contacts []*models.Contact
}

func (m *memContacts) GetByIDs(ctx context.Context, ids []string) ([]*models.Contact, error) {
	out := []*models.Contact{}
	for _, id := range ids {
		for _, c := range m.contacts {
			if c.ID == id {
				cp := *c
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}

func (m *memContacts) Find(ctx context.Context, filter models.ContactFilter) ([]*models.Contact, error) {
	out := []*models.Contact{}
	for _, c := range m.contacts {
		if len(filter.Products) > 0 && (c.Product == nil || !containsFold(filter.Products, *c.Product)) {
			continue
		}
		if len(filter.Statuses) > 0 && (c.Status == nil || !containsFold(filter.Statuses, *c.Status)) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func containsFold(values []string, v string) bool {
	for _, candidate := range values {
		if strings.EqualFold(candidate, v) {
			return true
		}
	}
	return false
}

// fakeTransport records sends and fails for configured phones
type fakeTransport struct {
	mu     sync.Mutex
	fail   map[string]bool
	block  bool
	onSend func(phone string)
	sent   []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{fail: map[string]bool{}}
}

func (f *fakeTransport) Send(ctx context.Context, phone, text string) (*transport.Ack, error) {
	f.mu.Lock()
	f.sent = append(f.sent, phone)
	fail, block, hook := f.fail[phone], f.block, f.onSend
	f.mu.Unlock()

	if hook != nil {
		hook(phone)
	}
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if fail {
		return nil, errors.New("number not on whatsapp")
	}
	return &transport.Ack{ProviderMessageID: "ack-" + phone}, nil
}

func (f *fakeTransport) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// fakePublisher records enqueued campaign ids
type fakePublisher struct {
	mu  sync.Mutex
	ids []string
}

func (p *fakePublisher) PublishDispatch(ctx context.Context, campaignID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, campaignID)
	return nil
}

// memConversations keeps scoring data per conversation
type memConversations struct {
	mu   sync.Mutex
	data map[string]*models.ScoringData
}

func newMemConversations() *memConversations {
	return &memConversations{data: map[string]*models.ScoringData{}}
}

func (m *memConversations) put(d *models.ScoringData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[d.Conversation.ID] = d
}

func (m *memConversations) get(id string) models.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[id].Conversation
}

func (m *memConversations) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[id]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", id, repository.ErrNotFound)
	}
	c := d.Conversation
	return &c, nil
}

func (m *memConversations) ListIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := []string{}
	for id := range m.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memConversations) LoadScoringData(ctx context.Context, id string) (*models.ScoringData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[id]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", id, repository.ErrNotFound)
	}
	cp := *d
	return &cp, nil
}

func (m *memConversations) update(id string, fn func(c *models.Conversation)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[id]
	if !ok {
		return fmt.Errorf("conversation %s: %w", id, repository.ErrNotFound)
	}
	fn(&d.Conversation)
	return nil
}

func (m *memConversations) SaveAutomaticScore(ctx context.Context, id string, score int, bucket models.PriorityBucket, at time.Time) error {
	return m.update(id, func(c *models.Conversation) {
		c.Score = score
		if !c.ManualOverride {
			c.PriorityBucket = bucket
		}
		c.ScoreUpdatedAt = &at
	})
}

func (m *memConversations) SaveRecalculatedScore(ctx context.Context, id string, score int, bucket models.PriorityBucket, at time.Time) error {
	return m.update(id, func(c *models.Conversation) {
		c.Score = score
		c.PriorityBucket = bucket
		c.ManualOverride = false
		c.ScoreUpdatedAt = &at
	})
}

func (m *memConversations) SetManualPriority(ctx context.Context, id string, bucket models.PriorityBucket, at time.Time) error {
	return m.update(id, func(c *models.Conversation) {
		c.PriorityBucket = bucket
		c.ManualOverride = true
		c.ScoreUpdatedAt = &at
	})
}

// clock is a settable time source
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func strPtr(s string) *string {
	return &s
}

func intPtr(i int) *int {
	return &i
}
