package cart

// Monetary amounts are in cents. Orders at or above the free-shipping
// threshold ship free; everything else pays the flat fee. An empty cart
// is never charged shipping: checkout is unreachable without items, the
// UI gates that separately.
const (
	FreeShippingThreshold int64 = 100_00
	ShippingFee           int64 = 10_00
)

// Subtotal is the quantity-weighted sum of line item prices.
func Subtotal(snap Snapshot) int64 {
	var subtotal int64
	for _, item := range snap.Items {
		subtotal += item.UnitPrice * int64(item.Quantity)
	}
	return subtotal
}

// Shipping is the threshold-based step function over the subtotal.
func Shipping(snap Snapshot) int64 {
	if len(snap.Items) == 0 {
		return 0
	}
	if Subtotal(snap) >= FreeShippingThreshold {
		return 0
	}
	return ShippingFee
}

// Total is Subtotal + Shipping.
func Total(snap Snapshot) int64 {
	return Subtotal(snap) + Shipping(snap)
}

// FreeShippingRemainder is how much more the shopper must spend to reach
// free shipping; zero once the threshold is met or the cart is empty.
func FreeShippingRemainder(snap Snapshot) int64 {
	if len(snap.Items) == 0 {
		return 0
	}
	subtotal := Subtotal(snap)
	if subtotal >= FreeShippingThreshold {
		return 0
	}
	return FreeShippingThreshold - subtotal
}

// Summary is the derived order summary. It is always recomputed from the
// ledger snapshot, never cached.
type Summary struct {
	Subtotal              int64 `json:"subtotal"`
	Shipping              int64 `json:"shipping"`
	Total                 int64 `json:"total"`
	FreeShippingRemainder int64 `json:"freeShippingRemainder"`
}

// Summarize computes the order summary for a snapshot.
func Summarize(snap Snapshot) Summary {
	return Summary{
		Subtotal:              Subtotal(snap),
		Shipping:              Shipping(snap),
		Total:                 Total(snap),
		FreeShippingRemainder: FreeShippingRemainder(snap),
	}
}
