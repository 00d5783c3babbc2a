package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrStateConflict is returned when a transition is not allowed from the current status
var ErrStateConflict = errors.New("campaign state conflict")

// TransitionError describes a rejected transition
type TransitionError struct {
	Action string
	From   CampaignStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s campaign in status %s", e.Action, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrStateConflict
}

// InitialStatus returns the status a new campaign is created with
func InitialStatus(startNow bool) CampaignStatus {
	if startNow {
		return CampaignStatusActive
	}
	return CampaignStatusQueued
}

// StartSources lists the statuses start() may leave from
var StartSources = []CampaignStatus{CampaignStatusQueued, CampaignStatusPaused}

// PauseSources lists the statuses pause() may leave from
var PauseSources = []CampaignStatus{CampaignStatusActive}

// CancelSources lists the statuses cancel() may leave from
var CancelSources = []CampaignStatus{CampaignStatusQueued, CampaignStatusActive, CampaignStatusPaused}

// Start moves the campaign into ativa
func (c *Campaign) Start(now time.Time) error {
	if !statusIn(c.Status, StartSources) {
		return &TransitionError{Action: "start", From: c.Status}
	}
	c.Status = CampaignStatusActive
	if c.StartedAt == nil {
		c.StartedAt = &now
	}
	c.UpdatedAt = now
	return nil
}

// Pause moves an active campaign into pausada
func (c *Campaign) Pause(now time.Time) error {
	if !statusIn(c.Status, PauseSources) {
		return &TransitionError{Action: "pause", From: c.Status}
	}
	c.Status = CampaignStatusPaused
	c.UpdatedAt = now
	return nil
}

// Cancel moves any non-terminal campaign into cancelada.
// Cancelling an already cancelled campaign is a no-op.
func (c *Campaign) Cancel(now time.Time) error {
	if c.Status == CampaignStatusCancelled {
		return nil
	}
	if !statusIn(c.Status, CancelSources) {
		return &TransitionError{Action: "cancel", From: c.Status}
	}
	c.Status = CampaignStatusCancelled
	c.UpdatedAt = now
	return nil
}

// ShouldComplete reports whether every planned recipient reached a terminal status
func (c *Campaign) ShouldComplete() bool {
	return !c.Status.IsTerminal() && c.Processed() >= c.PlannedTotal
}

func statusIn(s CampaignStatus, set []CampaignStatus) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}
