package service

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"crmdispatch/internal/metrics"
	"crmdispatch/internal/models"
	"crmdispatch/internal/repository"
	"crmdispatch/internal/scoring"
)

// Score write modes, used as metric labels
const (
	ScoreModeAutomatic    = "automatic"
	ScoreModeRecalculated = "recalculated"
	ScoreModeManual       = "manual"
)

// PriorityService scores conversations and manages manual overrides
type PriorityService struct {
	conversationRepo repository.ConversationRepository
	metrics          *metrics.Metrics
	concurrency      int
	now              func() time.Time
}

// NewPriorityService creates a new priority service
func NewPriorityService(conversationRepo repository.ConversationRepository, m *metrics.Metrics, concurrency int) *PriorityService {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &PriorityService{
		conversationRepo: conversationRepo,
		metrics:          m,
		concurrency:      concurrency,
		now:              time.Now,
	}
}

// SetClock overrides the time source
func (s *PriorityService) SetClock(now func() time.Time) {
	s.now = now
}

// SetManualPriority pins the bucket of a conversation until it is explicitly recalculated
func (s *PriorityService) SetManualPriority(ctx context.Context, id string, bucket models.PriorityBucket) (*models.Conversation, error) {
	if !bucket.IsValid() {
		return nil, &ValidationError{Message: fmt.Sprintf("invalid priority bucket: %s", bucket)}
	}

	if err := s.conversationRepo.SetManualPriority(ctx, id, bucket, s.now()); err != nil {
		return nil, notFoundOr(err, "conversation", id)
	}
	s.metrics.ObserveScore(ScoreModeManual, string(bucket))

	conversation, err := s.conversationRepo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "conversation", id)
	}
	return conversation, nil
}

// Recalculate rescores one conversation, clears its manual override and
// derives the bucket from the new score
func (s *PriorityService) Recalculate(ctx context.Context, id string) (*scoring.Breakdown, error) {
	now := s.now()
	breakdown, err := s.score(ctx, id, now)
	if err != nil {
		return nil, err
	}

	if err := s.conversationRepo.SaveRecalculatedScore(ctx, id, breakdown.Total, breakdown.Bucket, now); err != nil {
		return nil, notFoundOr(err, "conversation", id)
	}
	s.metrics.ObserveScore(ScoreModeRecalculated, string(breakdown.Bucket))

	return breakdown, nil
}

// RecalculateSummary reports the outcome of an automatic rescoring run
type RecalculateSummary struct {
	Conversations int `json:"conversations"`
	Updated       int `json:"updated"`
	Failed        int `json:"failed"`
}

// RecalculateAll rescores every conversation. Scores are always written;
// buckets of manually overridden conversations are left untouched.
func (s *PriorityService) RecalculateAll(ctx context.Context) (*RecalculateSummary, error) {
	ids, err := s.conversationRepo.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	now := s.now()
	var updated int64
	errs := make([]error, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			breakdown, err := s.score(gctx, id, now)
			if err != nil {
				errs[i] = err
				return nil
			}
			if err := s.conversationRepo.SaveAutomaticScore(gctx, id, breakdown.Total, breakdown.Bucket, now); err != nil {
				errs[i] = fmt.Errorf("failed to save score: %w", err)
				return nil
			}
			s.metrics.ObserveScore(ScoreModeAutomatic, string(breakdown.Bucket))
			atomic.AddInt64(&updated, 1)
			return nil
		})
	}
	_ = g.Wait()

	var merr *multierror.Error
	for i, err := range errs {
		if err != nil {
			merr = multierror.Append(merr, fmt.Errorf("conversation %s: %w", ids[i], err))
		}
	}

	summary := &RecalculateSummary{
		Conversations: len(ids),
		Updated:       int(updated),
		Failed:        len(ids) - int(updated),
	}
	if summary.Failed > 0 {
		log.Printf("⚠️  Rescoring finished with %d failures out of %d conversations", summary.Failed, summary.Conversations)
	}

	return summary, merr.ErrorOrNil()
}

// PriorityPreview is the score breakdown next to the stored priority
type PriorityPreview struct {
	ConversationID string                `json:"conversation_id"`
	Breakdown      scoring.Breakdown     `json:"breakdown"`
	CurrentScore   int                   `json:"current_score"`
	CurrentBucket  models.PriorityBucket `json:"current_bucket"`
	ManualOverride bool                  `json:"manual_override"`
}

// Preview computes the breakdown without writing anything
func (s *PriorityService) Preview(ctx context.Context, id string) (*PriorityPreview, error) {
	data, err := s.conversationRepo.LoadScoringData(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "conversation", id)
	}

	return &PriorityPreview{
		ConversationID: id,
		Breakdown:      scoring.Score(*data, s.now()),
		CurrentScore:   data.Conversation.Score,
		CurrentBucket:  data.Conversation.PriorityBucket,
		ManualOverride: data.Conversation.ManualOverride,
	}, nil
}

func (s *PriorityService) score(ctx context.Context, id string, now time.Time) (*scoring.Breakdown, error) {
	data, err := s.conversationRepo.LoadScoringData(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "conversation", id)
	}
	breakdown := scoring.Score(*data, now)
	return &breakdown, nil
}
