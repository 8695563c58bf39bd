// Package messaging defines the event publishing contracts used by the
// storefront.
package messaging

import (
	"context"
)

// CheckoutCompletedSubject is the JetStream subject for completed checkouts.
const CheckoutCompletedSubject = "storefront.checkout.completed"

type Event interface {
	Subject() string
	Payload() ([]byte, error)
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NoopPublisher discards events. Used when NATS is disabled.
type NoopPublisher struct{}

func (NoopPublisher) Publish(_ context.Context, _ Event) error {
	return nil
}
