package catalog

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/abgdnv/storefront/internal/metrics"
)

// Status is the fetch lifecycle state of the live catalog view.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result is the live catalog view for one query. It is replaced wholesale
// on each fetch completion, never partially merged.
type Result struct {
	Query      Query     `json:"-"`
	Status     Status    `json:"status"`
	Products   []Product `json:"products"`
	Page       int       `json:"page"`
	TotalPages int       `json:"totalPages"`
	Total      int       `json:"total"`
	Error      string    `json:"error,omitempty"`
}

// Machine orchestrates the fetch lifecycle for one shopper's catalog view.
// Issuing a new query supersedes any fetch still in flight: each issued
// query carries a generation token, and only the completion holding the
// current token may write into the live result. Late responses for
// superseded queries are discarded.
type Machine struct {
	source  ProductSource
	logger  *slog.Logger
	metrics *metrics.Registry

	mu   sync.Mutex
	gen  uint64
	cur  Result
	subs map[int]chan Result
	next int
}

// NewMachine creates a state machine in the idle state. The idle view
// carries the normalized default query; the total page count stays zero,
// meaning unknown, until a fetch succeeds.
func NewMachine(source ProductSource, reg *metrics.Registry, logger *slog.Logger) *Machine {
	return &Machine{
		source:  source,
		logger:  logger.With("component", "catalog"),
		metrics: reg,
		cur:     Result{Status: StatusIdle, Query: Normalize(Filters{}), Page: 1},
		subs:    make(map[int]chan Result),
	}
}

// Load issues a fetch for q and commits the outcome under the staleness
// guard. The returned Result is the outcome of this caller's own query
// even when a newer query superseded it mid-flight; only the live view is
// protected from stale writes. The returned error is non-nil exactly when
// the fetch failed.
func (m *Machine) Load(ctx context.Context, q Query) (Result, error) {
	token := m.begin(q)
	m.metrics.FetchTotal.Inc()

	page, err := m.source.FetchProducts(ctx, q)
	if err != nil {
		m.metrics.FetchErrors.Inc()
		res := Result{
			Query:  q,
			Status: StatusError,
			// Products cleared: an error must not leave a stale grid
			// visible. Total pages drops back to unknown.
			Error: userFacingMessage(err),
			Page:  q.Page,
		}
		m.commit(ctx, token, res)
		return res, err
	}

	res := Result{
		Query:      q,
		Status:     StatusSuccess,
		Products:   page.Products,
		Page:       page.Page,
		TotalPages: page.TotalPages,
		Total:      page.Total,
	}
	m.commit(ctx, token, res)
	return res, nil
}

// Current returns the live catalog view.
func (m *Machine) Current() Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

// Subscribe registers an observer for committed results. The returned
// cancel function must be called to release the subscription. Slow
// observers miss intermediate results instead of blocking mutations.
func (m *Machine) Subscribe() (<-chan Result, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.next
	m.next++
	ch := make(chan Result, 1)
	m.subs[id] = ch
	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// begin transitions the live view to loading for q and returns the
// generation token for this fetch. Previously displayed products stay
// visible while the fetch is in flight.
func (m *Machine) begin(q Query) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.cur.Query = q
	m.cur.Status = StatusLoading
	m.cur.Error = ""
	m.notifyLocked()
	return m.gen
}

// commit writes res into the live view iff token is still current.
func (m *Machine) commit(ctx context.Context, token uint64, res Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if token != m.gen {
		m.metrics.StaleDiscards.Inc()
		m.logger.DebugContext(ctx, "Discarding superseded fetch result", "query", res.Query.Key())
		return
	}
	m.cur = res
	m.notifyLocked()
}

// notifyLocked pushes the live view to subscribers, displacing an unread
// older value so observers always see the newest state.
func (m *Machine) notifyLocked() {
	for _, ch := range m.subs {
		select {
		case ch <- m.cur:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- m.cur:
		default:
		}
	}
}

// userFacingMessage maps a fetch error to the message stored in the error
// state. Transport detail stays in the logs.
func userFacingMessage(err error) string {
	if errors.Is(err, ErrUpstreamUnavailable) {
		return "Product catalog is temporarily unavailable"
	}
	return "Failed to fetch products"
}
