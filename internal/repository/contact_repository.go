package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"crmdispatch/internal/models"
)

type contactRepository struct {
	db *sql.DB
}

// NewContactRepository creates a new contact repository
func NewContactRepository(db *sql.DB) ContactRepository {
	return &contactRepository{db: db}
}

// GetByIDs retrieves contacts by IDs in the order the ids were given.
// Unknown ids are dropped.
func (r *contactRepository) GetByIDs(ctx context.Context, ids []string) ([]*models.Contact, error) {
	if len(ids) == 0 {
		return []*models.Contact{}, nil
	}

	query := `
		SELECT c.id, c.phone, c.name, c.product, c.status, c.created_at
		FROM contacts c
		JOIN unnest($1::uuid[]) WITH ORDINALITY AS wanted(id, ord) ON wanted.id = c.id
		ORDER BY wanted.ord
	`

	return r.query(ctx, query, pq.Array(ids))
}

// Find retrieves contacts matching every non-empty criterion of the filter.
// Products and statuses match case-insensitively; tags match active conversation tags.
func (r *contactRepository) Find(ctx context.Context, filter models.ContactFilter) ([]*models.Contact, error) {
	conditions := []string{}
	args := []interface{}{}

	if len(filter.Products) > 0 {
		args = append(args, pq.Array(lowerAll(filter.Products)))
		conditions = append(conditions, fmt.Sprintf("LOWER(c.product) = ANY($%d)", len(args)))
	}
	if len(filter.Statuses) > 0 {
		args = append(args, pq.Array(lowerAll(filter.Statuses)))
		conditions = append(conditions, fmt.Sprintf("LOWER(c.status) = ANY($%d)", len(args)))
	}
	if len(filter.Tags) > 0 {
		args = append(args, pq.Array(lowerAll(filter.Tags)))
		conditions = append(conditions, fmt.Sprintf(`EXISTS (
			SELECT 1 FROM conversations cv
			JOIN conversation_tags ct ON ct.conversation_id = cv.id AND ct.active
			JOIN tags t ON t.id = ct.tag_id
			WHERE cv.contact_id = c.id AND LOWER(t.name) = ANY($%d))`, len(args)))
	}

	query := `SELECT c.id, c.phone, c.name, c.product, c.status, c.created_at FROM contacts c`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY c.created_at ASC, c.id ASC"

	return r.query(ctx, query, args...)
}

func (r *contactRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.Contact, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get contacts: %w", err)
	}
	defer rows.Close()

	contacts := []*models.Contact{}
	for rows.Next() {
		contact := &models.Contact{}
		err := rows.Scan(
			&contact.ID,
			&contact.Phone,
			&contact.Name,
			&contact.Product,
			&contact.Status,
			&contact.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		contacts = append(contacts, contact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contacts: %w", err)
	}

	return contacts, nil
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
