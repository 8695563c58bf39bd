package catalog

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/abgdnv/storefront/internal/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedSource is a fake ProductSource whose fetches can be held open until
// the test releases them. Calls are keyed by the query's search text.
type gatedSource struct {
	mu      sync.Mutex
	entered map[string]chan struct{}
	gates   map[string]chan struct{}
	pages   map[string]*Page
	errs    map[string]error
}

func newGatedSource() *gatedSource {
	return &gatedSource{
		entered: make(map[string]chan struct{}),
		gates:   make(map[string]chan struct{}),
		pages:   make(map[string]*Page),
		errs:    make(map[string]error),
	}
}

func (s *gatedSource) respond(search string, page *Page, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[search] = page
	s.errs[search] = err
}

// gate makes fetches for search block until the returned channel is closed,
// and returns a second channel closed once the fetch has been entered.
func (s *gatedSource) gate(search string) (release chan struct{}, entered chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	release = make(chan struct{})
	entered = make(chan struct{})
	s.gates[search] = release
	s.entered[search] = entered
	return release, entered
}

func (s *gatedSource) FetchProducts(_ context.Context, q Query) (*Page, error) {
	s.mu.Lock()
	entered := s.entered[q.Search]
	gate := s.gates[q.Search]
	s.mu.Unlock()

	if entered != nil {
		close(entered)
	}
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.errs[q.Search]; err != nil {
		return nil, err
	}
	return s.pages[q.Search], nil
}

func (s *gatedSource) FetchProductByID(_ context.Context, _ uuid.UUID) (*Product, error) {
	return nil, ErrProductNotFound
}

func newTestMachine(source ProductSource) (*Machine, *metrics.Registry) {
	reg := metrics.NewRegistry()
	return NewMachine(source, reg, slog.Default()), reg
}

func Test_Machine_IdleDefaults(t *testing.T) {
	m, _ := newTestMachine(newGatedSource())

	cur := m.Current()

	assert.Equal(t, StatusIdle, cur.Status)
	assert.Equal(t, Normalize(Filters{}), cur.Query)
	assert.Equal(t, 0, cur.TotalPages, "total pages is unknown before the first fetch")
}

func Test_Machine_LoadSuccess(t *testing.T) {
	// given
	source := newGatedSource()
	product := Product{ID: uuid.New(), Name: "Spark Plug", Price: 14_99, Stock: 5}
	source.respond("", &Page{Products: []Product{product}, Page: 1, TotalPages: 2, Total: 13}, nil)
	m, _ := newTestMachine(source)
	require.Equal(t, StatusIdle, m.Current().Status)

	// when
	result, err := m.Load(context.Background(), Normalize(Filters{}))

	// then
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, []Product{product}, result.Products)
	assert.Equal(t, 1, result.Page)
	assert.Equal(t, 2, result.TotalPages)
	assert.Equal(t, 13, result.Total)
	assert.Equal(t, result, m.Current())
}

func Test_Machine_LoadError_ClearsProducts(t *testing.T) {
	// given
	source := newGatedSource()
	source.respond("ok", &Page{Products: []Product{{Name: "Brake Pad"}}, Page: 1, TotalPages: 1, Total: 1}, nil)
	source.respond("boom", nil, errors.New("connection reset"))
	m, _ := newTestMachine(source)

	_, err := m.Load(context.Background(), Normalize(Filters{Search: "ok"}))
	require.NoError(t, err)
	require.NotEmpty(t, m.Current().Products)

	// when
	result, err := m.Load(context.Background(), Normalize(Filters{Search: "boom"}))

	// then
	assert.Error(t, err)
	assert.Equal(t, StatusError, result.Status)
	assert.Equal(t, "Failed to fetch products", result.Error)
	assert.Empty(t, result.Products, "an error must not leave a stale grid visible")
	assert.Equal(t, StatusError, m.Current().Status)
	assert.Empty(t, m.Current().Products)
}

func Test_Machine_LoadError_UpstreamMessage(t *testing.T) {
	source := newGatedSource()
	source.respond("down", nil, ErrUpstreamUnavailable)
	m, _ := newTestMachine(source)

	result, err := m.Load(context.Background(), Normalize(Filters{Search: "down"}))

	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Equal(t, "Product catalog is temporarily unavailable", result.Error)
}

func Test_Machine_StalenessGuard(t *testing.T) {
	// given: Q1 is held in flight, Q2 completes immediately
	source := newGatedSource()
	source.respond("q1", &Page{Products: []Product{{Name: "Old"}}, Page: 2, TotalPages: 3, Total: 30}, nil)
	source.respond("q2", &Page{Products: []Product{{Name: "New"}}, Page: 1, TotalPages: 1, Total: 1}, nil)
	release, entered := source.gate("q1")
	m, reg := newTestMachine(source)

	q1 := Normalize(Filters{Search: "q1", Page: 2})
	q2 := Normalize(Filters{Search: "q2"})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = m.Load(context.Background(), q1)
	}()
	<-entered

	// when: the user changes the query before Q1 resolves and Q2 wins
	_, err := m.Load(context.Background(), q2)
	require.NoError(t, err)

	// ... and Q1's response arrives late
	close(release)
	wg.Wait()

	// then: the live result still reflects Q2 only
	current := m.Current()
	assert.Equal(t, StatusSuccess, current.Status)
	require.Len(t, current.Products, 1)
	assert.Equal(t, "New", current.Products[0].Name)
	assert.Equal(t, q2, current.Query)
	assert.Equal(t, float64(1), testutil.ToFloat64(reg.StaleDiscards))
}

func Test_Machine_Subscribe(t *testing.T) {
	source := newGatedSource()
	source.respond("", &Page{Products: []Product{{Name: "Filter"}}, Page: 1, TotalPages: 1, Total: 1}, nil)
	m, _ := newTestMachine(source)

	ch, cancel := m.Subscribe()
	defer cancel()

	_, err := m.Load(context.Background(), Normalize(Filters{}))
	require.NoError(t, err)

	// The committed success result is observable; intermediate loading
	// notifications may be dropped for slow observers.
	var last Result
	for done := false; !done; {
		select {
		case last = <-ch:
		default:
			done = true
		}
	}
	assert.Equal(t, StatusSuccess, last.Status)
}
