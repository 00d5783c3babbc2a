package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// CampaignStatus represents valid campaign statuses
type CampaignStatus string

const (
	CampaignStatusQueued    CampaignStatus = "aguardando"
	CampaignStatusActive    CampaignStatus = "ativa"
	CampaignStatusPaused    CampaignStatus = "pausada"
	CampaignStatusCompleted CampaignStatus = "concluida"
	CampaignStatusCancelled CampaignStatus = "cancelada"
)

// IsTerminal reports whether no further transitions are possible
func (s CampaignStatus) IsTerminal() bool {
	return s == CampaignStatusCompleted || s == CampaignStatusCancelled
}

// IsValid checks the status against the known set
func (s CampaignStatus) IsValid() bool {
	switch s {
	case CampaignStatusQueued, CampaignStatusActive, CampaignStatusPaused,
		CampaignStatusCompleted, CampaignStatusCancelled:
		return true
	}
	return false
}

// Timing holds the pacing rules of a campaign
type Timing struct {
	MinIntervalSeconds   int    `json:"min_interval_seconds"`
	MaxIntervalSeconds   int    `json:"max_interval_seconds"`
	BusinessHoursEnabled bool   `json:"business_hours_enabled"`
	StartTime            string `json:"start_time"`   // HH:MM
	EndTime              string `json:"end_time"`     // HH:MM
	DaysOfWeek           []int  `json:"days_of_week"` // 0 = Sunday
	BatchSize            *int   `json:"batch_size,omitempty"`
	BatchPauseMinutes    *int   `json:"batch_pause_minutes,omitempty"`
}

// Validate checks interval bounds and the business-hours window
func (t Timing) Validate() error {
	if t.MinIntervalSeconds < 0 || t.MaxIntervalSeconds < 0 {
		return fmt.Errorf("intervals must not be negative")
	}
	if t.MinIntervalSeconds > t.MaxIntervalSeconds {
		return fmt.Errorf("min_interval_seconds (%d) cannot exceed max_interval_seconds (%d)",
			t.MinIntervalSeconds, t.MaxIntervalSeconds)
	}
	if t.BatchSize != nil && *t.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	if t.BatchPauseMinutes != nil && *t.BatchPauseMinutes < 0 {
		return fmt.Errorf("batch_pause_minutes must not be negative")
	}
	if !t.BusinessHoursEnabled {
		return nil
	}

	start, err := ParseClock(t.StartTime)
	if err != nil {
		return fmt.Errorf("invalid start_time: %w", err)
	}
	end, err := ParseClock(t.EndTime)
	if err != nil {
		return fmt.Errorf("invalid end_time: %w", err)
	}
	if start >= end {
		return fmt.Errorf("start_time must be before end_time")
	}
	if len(t.DaysOfWeek) == 0 {
		return fmt.Errorf("days_of_week is required when business hours are enabled")
	}
	for _, d := range t.DaysOfWeek {
		if d < 0 || d > 6 {
			return fmt.Errorf("invalid day of week: %d", d)
		}
	}
	return nil
}

// Value implements driver.Valuer so Timing can be stored as JSONB
func (t Timing) Value() (driver.Value, error) {
	return json.Marshal(t)
}

// Scan implements sql.Scanner for the JSONB column
func (t *Timing) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	case nil:
		*t = Timing{}
		return nil
	default:
		return fmt.Errorf("unsupported timing type %T", src)
	}
	return json.Unmarshal(data, t)
}

// ParseClock parses HH:MM into minutes after midnight
func ParseClock(s string) (int, error) {
	parsed, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}

// Campaign represents a bulk-send job
type Campaign struct {
	ID             string         `json:"id" db:"id"`
	Name           string         `json:"name" db:"name"`
	Status         CampaignStatus `json:"status" db:"status"`
	Variations     []string       `json:"variations" db:"variations"`
	Timing         Timing         `json:"timing" db:"timing"`
	PlannedTotal   int            `json:"planned_total" db:"planned_total"`
	CompletedCount int            `json:"completed_count" db:"completed_count"`
	FailedCount    int            `json:"failed_count" db:"failed_count"`
	BatchSentCount int            `json:"batch_sent_count" db:"batch_sent_count"`
	NextSendAt     *time.Time     `json:"next_send_at,omitempty" db:"next_send_at"`
	RetryOfID      *string        `json:"retry_of_id,omitempty" db:"retry_of_id"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	StartedAt      *time.Time     `json:"started_at,omitempty" db:"started_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// CampaignStats represents recipient statistics
type CampaignStats struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// CampaignWithStats represents a campaign with its statistics
type CampaignWithStats struct {
	Campaign
	Stats CampaignStats `json:"stats"`
}

// Validate checks if the campaign fields are valid
func (c *Campaign) Validate() error {
	if len(c.Variations) == 0 {
		return fmt.Errorf("at least one variation is required")
	}
	for i, v := range c.Variations {
		if v == "" {
			return fmt.Errorf("variation %d is empty", i)
		}
	}
	if err := c.Timing.Validate(); err != nil {
		return err
	}
	return nil
}

// Processed returns how many recipients reached a terminal send outcome
func (c *Campaign) Processed() int {
	return c.CompletedCount + c.FailedCount
}
