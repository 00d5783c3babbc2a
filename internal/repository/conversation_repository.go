package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"crmdispatch/internal/models"
)

type conversationRepository struct {
	db *sql.DB
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(db *sql.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

// GetByID retrieves a conversation by ID
func (r *conversationRepository) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	query := `
		SELECT id, phone, contact_id, score, priority_bucket, manual_override, last_interaction_at, score_updated_at
		FROM conversations
		WHERE id = $1
	`

	conversation := &models.Conversation{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&conversation.ID,
		&conversation.Phone,
		&conversation.ContactID,
		&conversation.Score,
		&conversation.PriorityBucket,
		&conversation.ManualOverride,
		&conversation.LastInteractionAt,
		&conversation.ScoreUpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	return conversation, nil
}

// ListIDs returns every conversation id
func (r *conversationRepository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM conversations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan conversation id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// LoadScoringData retrieves a conversation together with its contact's products,
// sales and the conversation's tags. A conversation with no linked contact has
// no products or sales.
func (r *conversationRepository) LoadScoringData(ctx context.Context, id string) (*models.ScoringData, error) {
	conversation, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	data := &models.ScoringData{
		Conversation: *conversation,
		Products:     []models.ContactProduct{},
		Sales:        []models.Sale{},
		Tags:         []models.ConversationTag{},
	}

	if conversation.ContactID != nil {
		rows, err := r.db.QueryContext(ctx, `
			SELECT p.product_type, cp.status
			FROM contact_products cp
			JOIN products p ON p.id = cp.product_id
			WHERE cp.contact_id = $1
		`, *conversation.ContactID)
		if err != nil {
			return nil, fmt.Errorf("failed to get contact products: %w", err)
		}
		for rows.Next() {
			var p models.ContactProduct
			if err := rows.Scan(&p.ProductType, &p.Status); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan contact product: %w", err)
			}
			data.Products = append(data.Products, p)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read contact products: %w", err)
		}

		rows, err = r.db.QueryContext(ctx, `SELECT status FROM sales WHERE contact_id = $1`, *conversation.ContactID)
		if err != nil {
			return nil, fmt.Errorf("failed to get sales: %w", err)
		}
		for rows.Next() {
			var s models.Sale
			if err := rows.Scan(&s.Status); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan sale: %w", err)
			}
			data.Sales = append(data.Sales, s)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read sales: %w", err)
		}
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT t.name, ct.active
		FROM conversation_tags ct
		JOIN tags t ON t.id = ct.tag_id
		WHERE ct.conversation_id = $1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tag models.ConversationTag
		if err := rows.Scan(&tag.Name, &tag.Active); err != nil {
			return nil, fmt.Errorf("failed to scan conversation tag: %w", err)
		}
		data.Tags = append(data.Tags, tag)
	}

	return data, rows.Err()
}

// SaveAutomaticScore stores the score and, unless a manual override is set,
// the bucket. The override check happens inside the UPDATE so a concurrent
// manual change is never overwritten.
func (r *conversationRepository) SaveAutomaticScore(ctx context.Context, id string, score int, bucket models.PriorityBucket, at time.Time) error {
	query := `
		UPDATE conversations
		SET score = $2,
			priority_bucket = CASE WHEN manual_override THEN priority_bucket ELSE $3 END,
			score_updated_at = $4
		WHERE id = $1
	`

	return r.exec(ctx, id, "save score", query, id, score, bucket, at)
}

// SaveRecalculatedScore stores score and bucket and clears the manual override
func (r *conversationRepository) SaveRecalculatedScore(ctx context.Context, id string, score int, bucket models.PriorityBucket, at time.Time) error {
	query := `
		UPDATE conversations
		SET score = $2, priority_bucket = $3, manual_override = FALSE, score_updated_at = $4
		WHERE id = $1
	`

	return r.exec(ctx, id, "save recalculated score", query, id, score, bucket, at)
}

// SetManualPriority pins the bucket and turns the manual override on
func (r *conversationRepository) SetManualPriority(ctx context.Context, id string, bucket models.PriorityBucket, at time.Time) error {
	query := `
		UPDATE conversations
		SET priority_bucket = $2, manual_override = TRUE, score_updated_at = $3
		WHERE id = $1
	`

	return r.exec(ctx, id, "set manual priority", query, id, bucket, at)
}

func (r *conversationRepository) exec(ctx context.Context, id, action, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", action, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}

	return nil
}
