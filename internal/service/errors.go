package service

import (
	"fmt"

	"crmdispatch/internal/models"
)

// CodeEmptyRetry is surfaced to API clients when a retry has nothing to resend
const CodeEmptyRetry = "EMPTY_RETRY"

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Resource, e.ID)
}

// ValidationError represents a validation error
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Message)
}

// BusinessLogicError represents a business logic error
type BusinessLogicError struct {
	Code    string
	Message string
}

func (e *BusinessLogicError) Error() string {
	return fmt.Sprintf("business logic error: %s", e.Message)
}

// ErrEmptyRetry is returned when a campaign has no failed recipients to retry
var ErrEmptyRetry = &BusinessLogicError{
	Code:    CodeEmptyRetry,
	Message: "campaign has no failed recipients to retry",
}

// ConflictError represents a state conflict, e.g. starting a completed campaign
type ConflictError struct {
	Resource string
	Message  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict with %s: %s", e.Resource, e.Message)
}

// Unwrap lets callers match the conflict with errors.Is(err, models.ErrStateConflict)
func (e *ConflictError) Unwrap() error {
	return models.ErrStateConflict
}
