package events

import (
	"encoding/json"
	"time"

	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/google/uuid"
)

// CheckoutCompletedEvent is published when a shopper completes checkout.
// Monetary amounts are in cents.
type CheckoutCompletedEvent struct {
	OrderID   uuid.UUID          `json:"order_id"`
	SessionID string             `json:"session_id"`
	Items     []CheckoutLineItem `json:"items"`
	Subtotal  int64              `json:"subtotal"`
	Shipping  int64              `json:"shipping"`
	Total     int64              `json:"total"`
	CreatedAt time.Time          `json:"created_at"`
}

type CheckoutLineItem struct {
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	UnitPrice int64     `json:"unit_price"`
	Quantity  int32     `json:"quantity"`
}

func (e CheckoutCompletedEvent) Subject() string {
	return messaging.CheckoutCompletedSubject
}

func (e CheckoutCompletedEvent) Payload() ([]byte, error) {
	return json.Marshal(e)
}
