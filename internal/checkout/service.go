// Package checkout completes a shopper's cart into an order receipt.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/metrics"
	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/abgdnv/storefront/pkg/messaging/events"
	"github.com/google/uuid"
)

// ErrCartEmpty means checkout was attempted on an empty cart.
var ErrCartEmpty = errors.New("cart is empty")

// Receipt is returned to the shopper on checkout completion.
type Receipt struct {
	OrderID uuid.UUID       `json:"orderId"`
	Items   []cart.LineItem `json:"items"`
	Summary cart.Summary    `json:"summary"`
}

// Service derives the order summary, announces the completed checkout and
// clears the ledger. Payment processing and inventory reservation belong
// to downstream consumers of the event.
type Service struct {
	publisher messaging.Publisher
	metrics   *metrics.Registry
	logger    *slog.Logger
}

// NewService creates a checkout service publishing through the given
// publisher.
func NewService(publisher messaging.Publisher, reg *metrics.Registry, logger *slog.Logger) *Service {
	return &Service{
		publisher: publisher,
		metrics:   reg,
		logger:    logger.With("component", "checkout"),
	}
}

// Checkout completes the cart for a session. Returns ErrCartEmpty when
// there is nothing to check out. The ledger is cleared only after the
// event is published.
func (s *Service) Checkout(ctx context.Context, sessionID string, ledger *cart.Ledger) (*Receipt, error) {
	snap := ledger.Snapshot()
	if len(snap.Items) == 0 {
		return nil, ErrCartEmpty
	}

	summary := cart.Summarize(snap)
	orderID := uuid.New()

	event := events.CheckoutCompletedEvent{
		OrderID:   orderID,
		SessionID: sessionID,
		Items:     toEventItems(snap.Items),
		Subtotal:  summary.Subtotal,
		Shipping:  summary.Shipping,
		Total:     summary.Total,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to publish checkout event for order %s: %w", orderID, err)
	}

	ledger.Clear()
	s.metrics.Checkouts.Inc()
	s.logger.InfoContext(ctx, "Checkout completed", "order_id", orderID, "total", summary.Total, "items", snap.ItemCount)

	return &Receipt{
		OrderID: orderID,
		Items:   snap.Items,
		Summary: summary,
	}, nil
}

func toEventItems(items []cart.LineItem) []events.CheckoutLineItem {
	eventItems := make([]events.CheckoutLineItem, len(items))
	for i, item := range items {
		eventItems[i] = events.CheckoutLineItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		}
	}
	return eventItems
}
