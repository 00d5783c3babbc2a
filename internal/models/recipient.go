package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// RecipientStatus represents valid recipient statuses
type RecipientStatus string

const (
	RecipientStatusPending RecipientStatus = "pending"
	RecipientStatusSent    RecipientStatus = "sent"
	RecipientStatusFailed  RecipientStatus = "failed"
	RecipientStatusSkipped RecipientStatus = "skipped"
)

// IsTerminal reports whether the recipient left the queue for good
func (s RecipientStatus) IsTerminal() bool {
	return s != RecipientStatusPending
}

// Recipient is one contact's send task within a campaign
type Recipient struct {
	ID              string          `json:"id" db:"id"`
	CampaignID      string          `json:"campaign_id" db:"campaign_id"`
	Position        int             `json:"position" db:"position"`
	ContactID       *string         `json:"contact_id,omitempty" db:"contact_id"`
	Phone           string          `json:"phone" db:"phone"`
	DisplayName     string          `json:"display_name" db:"display_name"`
	VariationIndex  int             `json:"variation_index" db:"variation_index"`
	ResolvedMessage string          `json:"resolved_message" db:"resolved_message"`
	Attributes      TemplateData    `json:"attributes" db:"attributes"`
	Status          RecipientStatus `json:"status" db:"status"`
	SentAt          *time.Time      `json:"sent_at,omitempty" db:"sent_at"`
	ErrorMessage    *string         `json:"error_message,omitempty" db:"error_message"`
	RespondedAt     *time.Time      `json:"responded_at,omitempty" db:"responded_at"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// SendOutcome is the result of one dispatch attempt, persisted atomically
// together with the owning campaign's counters.
type SendOutcome struct {
	CampaignID     string
	RecipientID    string
	Success        bool
	ErrorMessage   string
	At             time.Time
	NextSendAt     time.Time
	BatchSentCount int
}

// Status returns the recipient status implied by the outcome
func (o SendOutcome) Status() RecipientStatus {
	if o.Success {
		return RecipientStatusSent
	}
	return RecipientStatusFailed
}

// TemplateData holds the placeholder values captured for a recipient at creation time
type TemplateData map[string]string

// Value implements driver.Valuer so TemplateData can be stored as JSONB
func (d TemplateData) Value() (driver.Value, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d)
}

// Scan implements sql.Scanner for the JSONB column
func (d *TemplateData) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	case nil:
		*d = TemplateData{}
		return nil
	default:
		return fmt.Errorf("unsupported template data type %T", src)
	}
	return json.Unmarshal(data, d)
}
