// Package session composes the per-shopper state: one cart ledger and one
// catalog state machine per session, owned by an injectable manager
// instead of process-wide singletons.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/catalog"
	"github.com/abgdnv/storefront/internal/metrics"
)

// Session holds one shopper's cart and live catalog view.
type Session struct {
	ID      string
	Cart    *cart.Ledger
	Catalog *catalog.Machine
}

// Manager owns the session registry. Sessions are created on first use:
// the cart is restored from the store and saved on every mutation through
// the ledger's subscriber contract.
type Manager struct {
	source  catalog.ProductSource
	store   cart.Store
	metrics *metrics.Registry
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager backed by the given collaborators.
func NewManager(source catalog.ProductSource, store cart.Store, reg *metrics.Registry, logger *slog.Logger) *Manager {
	return &Manager{
		source:   source,
		store:    store,
		metrics:  reg,
		logger:   logger.With("component", "session"),
		sessions: make(map[string]*Session),
	}
}

// Get returns the session for the given ID, creating it if needed.
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, exists := m.sessions[sessionID]; exists {
		return s, nil
	}

	ledger := cart.NewLedger()
	items, err := m.store.Load(ctx, sessionID)
	if err != nil {
		// The store is an optional collaborator: a failed load means an
		// empty cart, not a failed session.
		m.logger.WarnContext(ctx, "Failed to load persisted cart", "session_id", sessionID, "error", err)
	} else {
		ledger.Restore(items)
	}

	ledger.Subscribe(func(snap cart.Snapshot) {
		m.metrics.CartMutations.Inc()
		// Mutations run on the request path; persistence must not be tied
		// to the request's cancellation.
		if err := m.store.Save(context.Background(), sessionID, snap.Items); err != nil {
			m.logger.Warn("Failed to persist cart", "session_id", sessionID, "error", err)
		}
	})

	s := &Session{
		ID:      sessionID,
		Cart:    ledger,
		Catalog: catalog.NewMachine(m.source, m.metrics, m.logger),
	}
	m.sessions[sessionID] = s
	return s, nil
}
