package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"crmdispatch/internal/metrics"
	"crmdispatch/internal/models"
	"crmdispatch/internal/repository"
	"crmdispatch/internal/throttle"
	"crmdispatch/internal/transport"
)

// DispatchResult describes what one dispatch invocation did
type DispatchResult string

const (
	// DispatchIdle means the campaign was not active or its next send was not due
	DispatchIdle DispatchResult = "idle"
	// DispatchDeferred means the business-hours window was closed
	DispatchDeferred DispatchResult = "deferred"
	DispatchSent     DispatchResult = "sent"
	DispatchFailed   DispatchResult = "failed"
	// DispatchDuplicate means the recipient reached a terminal status elsewhere
	DispatchDuplicate DispatchResult = "duplicate"
	DispatchCompleted DispatchResult = "completed"
	// DispatchDrained means no pending recipient was left but counters are short of the plan
	DispatchDrained DispatchResult = "drained"
)

// DispatchConfig tunes the dispatch loop
type DispatchConfig struct {
	SendTimeout time.Duration
	LeaseMargin time.Duration
	Concurrency int
}

// PassSummary counts the results of one pass over the active campaigns
type PassSummary struct {
	Campaigns int                    `json:"campaigns"`
	Results   map[DispatchResult]int `json:"results"`
}

// DispatchService runs the dispatch loop for campaigns
type DispatchService struct {
	campaignRepo  repository.CampaignRepository
	recipientRepo repository.RecipientRepository
	transport     transport.Client
	policy        *throttle.Policy
	metrics       *metrics.Metrics
	cfg           DispatchConfig
	now           func() time.Time
}

// NewDispatchService creates a new dispatch service
func NewDispatchService(
	campaignRepo repository.CampaignRepository,
	recipientRepo repository.RecipientRepository,
	client transport.Client,
	policy *throttle.Policy,
	m *metrics.Metrics,
	cfg DispatchConfig,
) *DispatchService {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	if cfg.LeaseMargin <= 0 {
		cfg.LeaseMargin = 30 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	return &DispatchService{
		campaignRepo:  campaignRepo,
		recipientRepo: recipientRepo,
		transport:     client,
		policy:        policy,
		metrics:       m,
		cfg:           cfg,
		now:           time.Now,
	}
}

// SetClock overrides the time source
func (s *DispatchService) SetClock(now func() time.Time) {
	s.now = now
}

// DispatchCampaign performs at most one send for the campaign.
//
// The lease taken on next_send_at guarantees a single in-flight send per
// campaign; the recipient update guarded by status='pending' makes a repeated
// invocation a no-op for recipients that already reached a terminal status.
func (s *DispatchService) DispatchCampaign(ctx context.Context, campaignID string) (DispatchResult, error) {
	result, err := s.dispatch(ctx, campaignID)
	if err == nil {
		s.metrics.ObserveDispatch(string(result))
	}
	return result, err
}

func (s *DispatchService) dispatch(ctx context.Context, campaignID string) (DispatchResult, error) {
	now := s.now()
	campaign, err := s.campaignRepo.ClaimDispatch(ctx, campaignID, now, now.Add(s.cfg.SendTimeout+s.cfg.LeaseMargin))
	if errors.Is(err, repository.ErrNotClaimed) {
		return DispatchIdle, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to claim campaign %s: %w", campaignID, err)
	}

	if open, opensAt := s.policy.Window(campaign.Timing, now); !open {
		if err := s.campaignRepo.ScheduleNext(ctx, campaignID, opensAt, campaign.BatchSentCount); err != nil {
			return "", fmt.Errorf("failed to defer campaign %s: %w", campaignID, err)
		}
		s.metrics.ObserveDeferral(string(throttle.ReasonOutsideWindow))
		log.Printf("🌙 Campaign %s outside business hours, next window %s",
			campaignID, opensAt.In(s.policy.Location()).Format("Mon 02 Jan 15:04 MST"))
		return DispatchDeferred, nil
	}

	recipient, err := s.recipientRepo.NextPending(ctx, campaignID)
	if errors.Is(err, repository.ErrNotFound) {
		return s.finish(ctx, campaign, now)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get next recipient of campaign %s: %w", campaignID, err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	start := time.Now()
	_, sendErr := s.transport.Send(sendCtx, recipient.Phone, recipient.ResolvedMessage)
	cancel()
	if sendErr == nil && sendCtx.Err() == context.DeadlineExceeded {
		sendErr = transport.ErrTimeout
	}

	at := s.now()
	outcome := models.SendOutcome{
		CampaignID:  campaignID,
		RecipientID: recipient.ID,
		Success:     sendErr == nil,
		At:          at,
	}
	if sendErr != nil {
		outcome.ErrorMessage = transport.ErrorMessage(sendErr)
		log.Printf("❌ Campaign %s: send to %s failed: %v", campaignID, recipient.Phone, sendErr)
	}
	s.metrics.ObserveSend(string(outcome.Status()), time.Since(start))

	outcome.NextSendAt, outcome.BatchSentCount = s.schedule(campaign.Timing, campaign.BatchSentCount+1, at)

	recorded, err := s.recipientRepo.RecordOutcome(ctx, outcome)
	if err != nil {
		return "", fmt.Errorf("failed to record outcome for recipient %s: %w", recipient.ID, err)
	}
	if !recorded {
		if err := s.campaignRepo.ScheduleNext(ctx, campaignID, at, campaign.BatchSentCount); err != nil {
			return "", fmt.Errorf("failed to release campaign %s: %w", campaignID, err)
		}
		return DispatchDuplicate, nil
	}

	// the lease keeps the claimed counters current, so only the last send completes
	if outcome.Success {
		campaign.CompletedCount++
	} else {
		campaign.FailedCount++
	}
	if campaign.ShouldComplete() {
		if _, err := s.campaignRepo.Complete(ctx, campaignID, at); err != nil {
			return "", fmt.Errorf("failed to complete campaign %s: %w", campaignID, err)
		}
	}

	if outcome.Success {
		return DispatchSent, nil
	}
	return DispatchFailed, nil
}

// schedule evaluates the throttle policy after a send and returns the next
// send time and the batch counter to persist
func (s *DispatchService) schedule(timing models.Timing, sends int, at time.Time) (time.Time, int) {
	decision := s.policy.Evaluate(timing, sends, at)
	if decision.Reason != throttle.ReasonInterval {
		s.metrics.ObserveDeferral(string(decision.Reason))
	}

	batch := sends
	if decision.ResetBatch {
		batch = 0
	}
	// an overnight deferral outlasts any batch pause
	if decision.Reason == throttle.ReasonOutsideWindow && timing.BatchSize != nil && sends >= *timing.BatchSize {
		batch = 0
	}
	return decision.Until, batch
}

// finish runs the completion check once the queue is empty and releases the lease
func (s *DispatchService) finish(ctx context.Context, campaign *models.Campaign, now time.Time) (DispatchResult, error) {
	completed, err := s.campaignRepo.Complete(ctx, campaign.ID, now)
	if err != nil {
		return "", fmt.Errorf("failed to complete campaign %s: %w", campaign.ID, err)
	}
	if completed {
		log.Printf("✅ Campaign %s completed", campaign.ID)
		return DispatchCompleted, nil
	}

	if err := s.campaignRepo.ScheduleNext(ctx, campaign.ID, now, campaign.BatchSentCount); err != nil {
		return "", fmt.Errorf("failed to release campaign %s: %w", campaign.ID, err)
	}
	return DispatchDrained, nil
}

// RunPass dispatches every active campaign once, in parallel up to the
// configured concurrency. Failures of individual campaigns are collected and
// do not stop the others.
func (s *DispatchService) RunPass(ctx context.Context) (*PassSummary, error) {
	start := time.Now()
	defer func() { s.metrics.ObservePass(time.Since(start)) }()

	ids, err := s.campaignRepo.ListActiveIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active campaigns: %w", err)
	}

	results := make([]DispatchResult, len(ids))
	errs := make([]error, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			results[i], errs[i] = s.DispatchCampaign(gctx, id)
			return nil
		})
	}
	_ = g.Wait()

	summary := &PassSummary{Campaigns: len(ids), Results: map[DispatchResult]int{}}
	var merr *multierror.Error
	for i, id := range ids {
		if errs[i] != nil {
			merr = multierror.Append(merr, fmt.Errorf("campaign %s: %w", id, errs[i]))
			continue
		}
		summary.Results[results[i]]++
	}

	return summary, merr.ErrorOrNil()
}
