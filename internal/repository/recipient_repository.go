package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"crmdispatch/internal/models"
)

const recipientColumns = `id, campaign_id, position, contact_id, phone, display_name, variation_index,
	resolved_message, attributes, status, sent_at, error_message, responded_at, created_at, updated_at`

type recipientRepository struct {
	db *sql.DB
}

// NewRecipientRepository creates a new recipient repository
func NewRecipientRepository(db *sql.DB) RecipientRepository {
	return &recipientRepository{db: db}
}

func scanRecipient(row rowScanner) (*models.Recipient, error) {
	recipient := &models.Recipient{}
	err := row.Scan(
		&recipient.ID,
		&recipient.CampaignID,
		&recipient.Position,
		&recipient.ContactID,
		&recipient.Phone,
		&recipient.DisplayName,
		&recipient.VariationIndex,
		&recipient.ResolvedMessage,
		&recipient.Attributes,
		&recipient.Status,
		&recipient.SentAt,
		&recipient.ErrorMessage,
		&recipient.RespondedAt,
		&recipient.CreatedAt,
		&recipient.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return recipient, nil
}

// NextPending returns the first pending recipient in creation order
func (r *recipientRepository) NextPending(ctx context.Context, campaignID string) (*models.Recipient, error) {
	query := `
		SELECT ` + recipientColumns + `
		FROM campaign_recipients
		WHERE campaign_id = $1 AND status = 'pending'
		ORDER BY position ASC
		LIMIT 1
	`

	recipient, err := scanRecipient(r.db.QueryRowContext(ctx, query, campaignID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get next pending recipient: %w", err)
	}

	return recipient, nil
}

// RecordOutcome marks a pending recipient sent or failed and bumps the campaign
// counters in the same transaction. Returns false if the recipient was no longer
// pending, in which case nothing is written.
func (r *recipientRepository) RecordOutcome(ctx context.Context, outcome models.SendOutcome) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var sentAt interface{}
	var errorMessage interface{}
	if outcome.Success {
		sentAt = outcome.At
	} else {
		errorMessage = outcome.ErrorMessage
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE campaign_recipients
		SET status = $3, sent_at = $4, error_message = $5, updated_at = $6
		WHERE id = $1 AND campaign_id = $2 AND status = 'pending'
	`, outcome.RecipientID, outcome.CampaignID, outcome.Status(), sentAt, errorMessage, outcome.At)
	if err != nil {
		return false, fmt.Errorf("failed to update recipient status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return false, nil
	}

	completed, failed := 0, 0
	if outcome.Success {
		completed = 1
	} else {
		failed = 1
	}

	result, err = tx.ExecContext(ctx, `
		UPDATE campaigns
		SET completed_count = completed_count + $2,
			failed_count = failed_count + $3,
			batch_sent_count = $4,
			next_send_at = $5,
			updated_at = $6
		WHERE id = $1 AND completed_count + failed_count < planned_total
	`, outcome.CampaignID, completed, failed, outcome.BatchSentCount, outcome.NextSendAt, outcome.At)
	if err != nil {
		return false, fmt.Errorf("failed to update campaign counters: %w", err)
	}

	rows, err = result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return false, fmt.Errorf("campaign %s counters already at planned total", outcome.CampaignID)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return true, nil
}

// ListByCampaign retrieves the recipients of a campaign in creation order,
// optionally restricted to one status
func (r *recipientRepository) ListByCampaign(ctx context.Context, campaignID string, status *models.RecipientStatus) ([]*models.Recipient, error) {
	query := `SELECT ` + recipientColumns + ` FROM campaign_recipients WHERE campaign_id = $1`
	args := []interface{}{campaignID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += ` ORDER BY position ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get recipients by campaign: %w", err)
	}
	defer rows.Close()

	recipients := []*models.Recipient{}
	for rows.Next() {
		recipient, err := scanRecipient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}
		recipients = append(recipients, recipient)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recipients: %w", err)
	}

	return recipients, nil
}

// Skip marks the given pending recipients of a queued campaign as skipped and
// shrinks the planned total accordingly. Returns how many recipients were skipped.
func (r *recipientRepository) Skip(ctx context.Context, campaignID string, recipientIDs []string) (int, error) {
	if len(recipientIDs) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var status models.CampaignStatus
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM campaigns WHERE id = $1 FOR UPDATE`, campaignID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("campaign %s: %w", campaignID, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to lock campaign: %w", err)
	}
	if status != models.CampaignStatusQueued {
		return 0, &models.TransitionError{Action: "skip", From: status}
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE campaign_recipients
		SET status = 'skipped', updated_at = NOW()
		WHERE campaign_id = $1 AND id = ANY($2) AND status = 'pending'
	`, campaignID, pq.Array(recipientIDs))
	if err != nil {
		return 0, fmt.Errorf("failed to skip recipients: %w", err)
	}

	skipped, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if skipped > 0 {
		_, err = tx.ExecContext(ctx, `
			UPDATE campaigns SET planned_total = planned_total - $2, updated_at = NOW() WHERE id = $1
		`, campaignID, skipped)
		if err != nil {
			return 0, fmt.Errorf("failed to update planned total: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return int(skipped), nil
}

// UpdateVariations rewrites the variation and message of still-pending recipients
func (r *recipientRepository) UpdateVariations(ctx context.Context, recipients []*models.Recipient) error {
	if len(recipients) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE campaign_recipients
		SET variation_index = $2, resolved_message = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, recipient := range recipients {
		if _, err := stmt.ExecContext(ctx, recipient.ID, recipient.VariationIndex, recipient.ResolvedMessage); err != nil {
			return fmt.Errorf("failed to update recipient variation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
