package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"crmdispatch/internal/models"
)

const campaignColumns = `id, name, status, variations, timing, planned_total, completed_count, failed_count,
	batch_sent_count, next_send_at, retry_of_id, created_at, started_at, completed_at, updated_at`

type campaignRepository struct {
	db *sql.DB
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *sql.DB) CampaignRepository {
	return &campaignRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCampaign(row rowScanner) (*models.Campaign, error) {
	campaign := &models.Campaign{}
	var variations pq.StringArray
	err := row.Scan(
		&campaign.ID,
		&campaign.Name,
		&campaign.Status,
		&variations,
		&campaign.Timing,
		&campaign.PlannedTotal,
		&campaign.CompletedCount,
		&campaign.FailedCount,
		&campaign.BatchSentCount,
		&campaign.NextSendAt,
		&campaign.RetryOfID,
		&campaign.CreatedAt,
		&campaign.StartedAt,
		&campaign.CompletedAt,
		&campaign.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	campaign.Variations = []string(variations)
	return campaign, nil
}

// CreateWithRecipients inserts the campaign and its recipients in one transaction
func (r *campaignRepository) CreateWithRecipients(ctx context.Context, campaign *models.Campaign, recipients []*models.Recipient) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertCampaign(ctx, tx, campaign); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO campaign_recipients (id, campaign_id, position, contact_id, phone, display_name,
			variation_index, resolved_message, attributes, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, recipient := range recipients {
		recipient.CampaignID = campaign.ID
		_, err := stmt.ExecContext(
			ctx,
			recipient.ID,
			recipient.CampaignID,
			recipient.Position,
			recipient.ContactID,
			recipient.Phone,
			recipient.DisplayName,
			recipient.VariationIndex,
			recipient.ResolvedMessage,
			recipient.Attributes,
			recipient.Status,
			recipient.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create recipient: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func insertCampaign(ctx context.Context, q DB, campaign *models.Campaign) error {
	query := `
		INSERT INTO campaigns (id, name, status, variations, timing, planned_total, retry_of_id,
			created_at, started_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $8)
	`

	_, err := q.ExecContext(
		ctx,
		query,
		campaign.ID,
		campaign.Name,
		campaign.Status,
		pq.Array(campaign.Variations),
		campaign.Timing,
		campaign.PlannedTotal,
		campaign.RetryOfID,
		campaign.CreatedAt,
		campaign.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	return nil
}

// GetByID retrieves a campaign by ID
func (r *campaignRepository) GetByID(ctx context.Context, id string) (*models.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`

	campaign, err := scanCampaign(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("campaign %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	return campaign, nil
}

// GetWithStats retrieves a campaign with recipient statistics
func (r *campaignRepository) GetWithStats(ctx context.Context, id string) (*models.CampaignWithStats, error) {
	campaign, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	statsQuery := `
		SELECT
			COUNT(*) as total,
			COUNT(*) FILTER (WHERE status = 'pending') as pending,
			COUNT(*) FILTER (WHERE status = 'sent') as sent,
			COUNT(*) FILTER (WHERE status = 'failed') as failed,
			COUNT(*) FILTER (WHERE status = 'skipped') as skipped
		FROM campaign_recipients
		WHERE campaign_id = $1
	`

	stats := models.CampaignStats{}
	err = r.db.QueryRowContext(ctx, statsQuery, id).Scan(
		&stats.Total,
		&stats.Pending,
		&stats.Sent,
		&stats.Failed,
		&stats.Skipped,
	)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get campaign stats: %w", err)
	}

	return &models.CampaignWithStats{
		Campaign: *campaign,
		Stats:    stats,
	}, nil
}

// List retrieves campaigns with filters and pagination
func (r *campaignRepository) List(ctx context.Context, filters CampaignFilters) ([]*models.Campaign, int, error) {
	where := strings.Builder{}
	where.WriteString(" WHERE 1=1")

	args := []interface{}{}
	if filters.Status != nil {
		args = append(args, *filters.Status)
		where.WriteString(fmt.Sprintf(" AND status = $%d", len(args)))
	}

	limit := filters.PageSize
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	offset := (filters.Page - 1) * limit
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + campaignColumns + ` FROM campaigns` + where.String() +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)

	rows, err := r.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []*models.Campaign{}
	for rows.Next() {
		campaign, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, campaign)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate campaigns: %w", err)
	}

	var totalCount int
	err = r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM campaigns"+where.String(), args...).Scan(&totalCount)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get total count: %w", err)
	}

	return campaigns, totalCount, nil
}

// ListActiveIDs returns the ids of every campaign in status ativa
func (r *campaignRepository) ListActiveIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM campaigns WHERE status = $1 ORDER BY created_at`, models.CampaignStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list active campaigns: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan campaign id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// Transition moves the campaign to a new status if it is currently in one of from.
// Returns false when the stored status did not match.
func (r *campaignRepository) Transition(ctx context.Context, id string, from []models.CampaignStatus, to models.CampaignStatus, at time.Time) (bool, error) {
	query := `
		UPDATE campaigns
		SET status = $2,
			started_at = CASE WHEN $2 = 'ativa' THEN COALESCE(started_at, $3) ELSE started_at END,
			updated_at = $3
		WHERE id = $1 AND status = ANY($4)
	`

	result, err := r.db.ExecContext(ctx, query, id, to, at, pq.Array(statusStrings(from)))
	if err != nil {
		return false, fmt.Errorf("failed to update campaign status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows == 1, nil
}

// ClaimDispatch takes the dispatch lease of an active campaign whose next send is due.
// The lease is a compare-and-swap on next_send_at, so concurrent callers cannot both win.
func (r *campaignRepository) ClaimDispatch(ctx context.Context, id string, now, leaseUntil time.Time) (*models.Campaign, error) {
	query := `
		UPDATE campaigns
		SET next_send_at = $3, updated_at = $2
		WHERE id = $1
			AND status = 'ativa'
			AND (next_send_at IS NULL OR next_send_at <= $2)
		RETURNING ` + campaignColumns

	campaign, err := scanCampaign(r.db.QueryRowContext(ctx, query, id, now, leaseUntil))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotClaimed
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim campaign: %w", err)
	}

	return campaign, nil
}

// ScheduleNext stores the next send time and batch counter, releasing the lease
func (r *campaignRepository) ScheduleNext(ctx context.Context, id string, next time.Time, batchSentCount int) error {
	query := `
		UPDATE campaigns
		SET next_send_at = $2, batch_sent_count = $3, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, next, batchSentCount)
	if err != nil {
		return fmt.Errorf("failed to schedule next send: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("campaign %s: %w", id, ErrNotFound)
	}

	return nil
}

// Complete applies the implicit completion transition when every planned
// recipient has been processed. Returns true if the campaign was completed now.
func (r *campaignRepository) Complete(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `
		UPDATE campaigns
		SET status = 'concluida', completed_at = $2, updated_at = $2
		WHERE id = $1
			AND status IN ('aguardando', 'ativa', 'pausada')
			AND completed_count + failed_count >= planned_total
	`

	result, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return false, fmt.Errorf("failed to complete campaign: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows == 1, nil
}
