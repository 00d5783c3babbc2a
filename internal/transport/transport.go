// Package transport delivers a rendered message to a phone number.
package transport

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is reported when the provider did not answer within the send deadline
var ErrTimeout = errors.New("transport timeout")

// Ack is the provider's acceptance of a message
type Ack struct {
	ProviderMessageID string
	Latency           time.Duration
}

// Client sends one message. Implementations must honour ctx cancellation.
type Client interface {
	Send(ctx context.Context, phone, text string) (*Ack, error)
}

// ErrorMessage returns the text recorded against a failed recipient
func ErrorMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
		return ErrTimeout.Error()
	}
	return err.Error()
}
