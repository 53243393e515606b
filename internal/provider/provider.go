// Package provider defines the interface for email delivery backends.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/shineum/http-email/internal/email"
	"github.com/shineum/http-email/internal/sender"
)

// Provider is the interface that email delivery backends must implement.
type Provider interface {
	// Send delivers msg on behalf of from. It makes exactly one attempt and
	// returns a *DeliveryError on failure.
	Send(ctx context.Context, from sender.Profile, msg *email.Email) error

	// Name returns the human-readable name of this provider.
	Name() string
}

// ErrDelivery matches a *DeliveryError.
var ErrDelivery = errors.New("provider: delivery failed")

// Stage names the step of an SMTP session that failed.
type Stage string

const (
	StageConnect  Stage = "connect"
	StageStartTLS Stage = "starttls"
	StageAuth     Stage = "auth"
	StageSend     Stage = "send"
)

// DeliveryError is a terminal delivery failure. Err carries the underlying cause.
type DeliveryError struct {
	Stage Stage
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed at %s: %v", e.Stage, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

func (e *DeliveryError) Is(target error) bool {
	return target == ErrDelivery
}
