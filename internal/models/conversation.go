package models

import "time"

// PriorityBucket is the categorical label of a priority score
type PriorityBucket string

const (
	PriorityLow      PriorityBucket = "Baixo"
	PriorityMedium   PriorityBucket = "Médio"
	PriorityHigh     PriorityBucket = "Alto"
	PriorityCritical PriorityBucket = "Crítico"
)

// IsValid checks the bucket against the known set
func (b PriorityBucket) IsValid() bool {
	switch b {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Conversation is the per-phone thread the priority scorer ranks
type Conversation struct {
	ID                string         `json:"id" db:"id"`
	Phone             string         `json:"phone" db:"phone"`
	ContactID         *string        `json:"contact_id,omitempty" db:"contact_id"`
	Score             int            `json:"score" db:"score"`
	PriorityBucket    PriorityBucket `json:"priority_bucket" db:"priority_bucket"`
	ManualOverride    bool           `json:"manual_override" db:"manual_override"`
	LastInteractionAt *time.Time     `json:"last_interaction_at,omitempty" db:"last_interaction_at"`
	ScoreUpdatedAt    *time.Time     `json:"score_updated_at,omitempty" db:"score_updated_at"`
}

// ContactProduct links a contact to a product it bought
type ContactProduct struct {
	ProductType string `json:"product_type" db:"product_type"`
	Status      string `json:"status" db:"status"`
}

// Sale is a commercial opportunity tied to the contact
type Sale struct {
	Status string `json:"status" db:"status"`
}

// ConversationTag is an alert label attached to a conversation
type ConversationTag struct {
	Name   string `json:"name" db:"name"`
	Active bool   `json:"active" db:"active"`
}

// ScoringData bundles a conversation with the records that feed its score
type ScoringData struct {
	Conversation Conversation
	Products     []ContactProduct
	Sales        []Sale
	Tags         []ConversationTag
}
