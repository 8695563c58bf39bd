// Package cart implements the cart ledger and the pricing calculator.
package cart

import (
	"sync"

	"github.com/abgdnv/storefront/internal/catalog"
	"github.com/google/uuid"
)

// LineItem is one product's entry in the cart. UnitPrice and StockAtAdd
// are snapshotted when the product is first added and never change; only
// Quantity is mutable, within [1, StockAtAdd].
type LineItem struct {
	ProductID  uuid.UUID `json:"productId"`
	Name       string    `json:"name"`
	UnitPrice  int64     `json:"unitPrice"`
	StockAtAdd int32     `json:"stockAtAdd"`
	Quantity   int32     `json:"quantity"`
}

// Snapshot is an immutable view of the ledger after a mutation.
// Items preserves insertion order. ItemCount is the number of distinct
// line items (the cart badge); UnitCount is the quantity-weighted sum.
type Snapshot struct {
	Items     []LineItem `json:"items"`
	ItemCount int        `json:"itemCount"`
	UnitCount int32      `json:"unitCount"`
}

// Ledger is an ordered mapping from product ID to line item. It is the
// single owner of its line items: all mutations go through the four
// operations below, which clamp rather than reject invalid quantities and
// leave the ledger invariant-satisfying. Every mutation publishes the new
// snapshot to subscribers.
type Ledger struct {
	mu    sync.Mutex
	items map[uuid.UUID]*LineItem
	order []uuid.UUID
	subs  []func(Snapshot)
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		items: make(map[uuid.UUID]*LineItem),
	}
}

// Restore seeds the ledger from previously persisted line items, dropping
// any that violate the quantity invariants. Subscribers are not notified:
// restore is not a shopper mutation.
func (l *Ledger) Restore(items []LineItem) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, item := range items {
		if item.Quantity < 1 || item.StockAtAdd < 1 {
			continue
		}
		if _, exists := l.items[item.ProductID]; exists {
			continue
		}
		if item.Quantity > item.StockAtAdd {
			item.Quantity = item.StockAtAdd
		}
		li := item
		l.items[li.ProductID] = &li
		l.order = append(l.order, li.ProductID)
	}
}

// AddItem inserts the product with quantity min(requested, stock), or
// increments the existing line item clamped to its stock-at-add ceiling.
// Requests exceeding stock are capped silently: the UI disables further
// increments at the cap, so over-asks come from legitimate rapid clicks.
// A product with no stock or a request below 1 leaves the ledger unchanged.
func (l *Ledger) AddItem(p catalog.Product, requested int32) Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	if requested < 1 || p.Stock < 1 {
		return l.snapshotLocked()
	}

	if item, exists := l.items[p.ID]; exists {
		item.Quantity = clamp(int64(item.Quantity)+int64(requested), 1, item.StockAtAdd)
		return l.notifyLocked()
	}

	l.items[p.ID] = &LineItem{
		ProductID:  p.ID,
		Name:       p.Name,
		UnitPrice:  p.Price,
		StockAtAdd: p.Stock,
		Quantity:   clamp(int64(requested), 1, p.Stock),
	}
	l.order = append(l.order, p.ID)
	return l.notifyLocked()
}

// SetQuantity replaces the line item's quantity, clamped to
// [1, stock-at-add]. A quantity below 1 removes the line item, exactly as
// RemoveItem would. Unknown product IDs are a no-op.
func (l *Ledger) SetQuantity(productID uuid.UUID, quantity int32) Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	item, exists := l.items[productID]
	if !exists {
		return l.snapshotLocked()
	}
	if quantity < 1 {
		l.removeLocked(productID)
		return l.notifyLocked()
	}
	item.Quantity = clamp(int64(quantity), 1, item.StockAtAdd)
	return l.notifyLocked()
}

// RemoveItem deletes the line item if present; absent IDs are a no-op,
// not an error.
func (l *Ledger) RemoveItem(productID uuid.UUID) Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.items[productID]; !exists {
		return l.snapshotLocked()
	}
	l.removeLocked(productID)
	return l.notifyLocked()
}

// Clear empties the ledger. Used after checkout completion or an explicit
// reset.
func (l *Ledger) Clear() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.items = make(map[uuid.UUID]*LineItem)
	l.order = nil
	return l.notifyLocked()
}

// Snapshot returns the current immutable view without mutating.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

// Subscribe registers an observer invoked with the snapshot produced by
// each mutation. Used for save-on-mutation persistence and view updates.
func (l *Ledger) Subscribe(fn func(Snapshot)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs = append(l.subs, fn)
}

func (l *Ledger) removeLocked(productID uuid.UUID) {
	delete(l.items, productID)
	for i, id := range l.order {
		if id == productID {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

func (l *Ledger) snapshotLocked() Snapshot {
	snap := Snapshot{Items: make([]LineItem, 0, len(l.order))}
	for _, id := range l.order {
		item := *l.items[id]
		snap.Items = append(snap.Items, item)
		snap.UnitCount += item.Quantity
	}
	snap.ItemCount = len(snap.Items)
	return snap
}

func (l *Ledger) notifyLocked() Snapshot {
	snap := l.snapshotLocked()
	for _, fn := range l.subs {
		fn(snap)
	}
	return snap
}

// clamp saturates v into [lo, hi]. The value arrives as int64 so that
// quantity sums cannot wrap before clamping.
func clamp(v int64, lo, hi int32) int32 {
	if v < int64(lo) {
		return lo
	}
	if v > int64(hi) {
		return hi
	}
	return int32(v)
}
