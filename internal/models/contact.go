package models

import (
	"strings"
	"time"
)

// Contact represents a CRM client that can be targeted by campaigns
type Contact struct {
	ID        string    `json:"id" db:"id"`
	Phone     string    `json:"phone" db:"phone"`
	Name      *string   `json:"name,omitempty" db:"name"`
	Product   *string   `json:"product,omitempty" db:"product"`
	Status    *string   `json:"status,omitempty" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// FirstName returns the first word of the contact's name
func (c *Contact) FirstName() string {
	if c.Name == nil {
		return ""
	}
	fields := strings.Fields(*c.Name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// DisplayName returns the contact's full name, or the phone if unnamed
func (c *Contact) DisplayName() string {
	if c.Name != nil && strings.TrimSpace(*c.Name) != "" {
		return strings.TrimSpace(*c.Name)
	}
	return c.Phone
}

// ContactFilter selects campaign targets
type ContactFilter struct {
	Products []string `json:"products,omitempty"`
	Statuses []string `json:"statuses,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// IsEmpty reports whether no criteria were given
func (f *ContactFilter) IsEmpty() bool {
	return f == nil || (len(f.Products) == 0 && len(f.Statuses) == 0 && len(f.Tags) == 0)
}
