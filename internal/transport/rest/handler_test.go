package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/catalog"
	"github.com/abgdnv/storefront/internal/checkout"
	"github.com/abgdnv/storefront/internal/metrics"
	"github.com/abgdnv/storefront/internal/session"
	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/abgdnv/storefront/pkg/server"
	"github.com/abgdnv/storefront/pkg/web"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource is an in-memory ProductSource for handler tests. It records
// the last query it was asked for.
type fakeSource struct {
	products  map[uuid.UUID]catalog.Product
	page      *catalog.Page
	fetchErr  error
	lastQuery catalog.Query
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		products: make(map[uuid.UUID]catalog.Product),
		page:     &catalog.Page{Page: 1, TotalPages: 1},
	}
}

func (s *fakeSource) add(p catalog.Product) {
	s.products[p.ID] = p
}

func (s *fakeSource) FetchProducts(_ context.Context, q catalog.Query) (*catalog.Page, error) {
	s.lastQuery = q
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	page := *s.page
	page.Page = q.Page
	return &page, nil
}

func (s *fakeSource) FetchProductByID(_ context.Context, id uuid.UUID) (*catalog.Product, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	p, exists := s.products[id]
	if !exists {
		return nil, catalog.ErrProductNotFound
	}
	return &p, nil
}

type testEnv struct {
	mux    *chi.Mux
	source *fakeSource
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.Default()
	reg := metrics.NewRegistry()
	source := newFakeSource()
	sessions := session.NewManager(source, cart.NewMemoryStore(), reg, logger)
	checkoutSvc := checkout.NewService(messaging.NoopPublisher{}, reg, logger)

	mux := server.NewChiRouter(logger)
	NewHandler(sessions, source, checkoutSvc, logger).RegisterRoutes(mux)
	return &testEnv{mux: mux, source: source}
}

// do performs a request against the router with a fixed session header.
func (e *testEnv) do(t *testing.T, method, target, sessionID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if sessionID != "" {
		req.Header.Set(web.XSessionId, sessionID)
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func Test_SessionHeader_MintedWhenMissing(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/cart", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	minted := rec.Header().Get(web.XSessionId)
	require.NotEmpty(t, minted)
	_, err := uuid.Parse(minted)
	assert.NoError(t, err)
}

func Test_SessionHeader_Echoed(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/cart", "sess-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sess-1", rec.Header().Get(web.XSessionId))
}

func Test_ListProducts(t *testing.T) {
	env := newTestEnv(t)
	env.source.page = &catalog.Page{
		Products:   []catalog.Product{{ID: uuid.New(), Name: "Spark Plug", Price: 14_99, Stock: 5}},
		TotalPages: 3,
		Total:      30,
	}

	rec := env.do(t, http.MethodGet, "/api/v1/products?brand=bosch", "sess-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	result := decodeBody[catalog.Result](t, rec)
	assert.Equal(t, catalog.StatusSuccess, result.Status)
	require.Len(t, result.Products, 1)
	assert.Equal(t, "Spark Plug", result.Products[0].Name)
	assert.Equal(t, 1, result.Page)
	assert.Equal(t, 3, result.TotalPages)
}

func Test_ListProducts_FilterChangeResetsPage(t *testing.T) {
	env := newTestEnv(t)
	env.source.page = &catalog.Page{TotalPages: 5, Total: 60}

	// establish a result so the machine knows totalPages, then page into it
	rec := env.do(t, http.MethodGet, "/api/v1/products", "sess-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/v1/products?page=3", "sess-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 3, decodeBody[catalog.Result](t, rec).Page)

	// a filter change resets pagination even alongside a page parameter
	rec = env.do(t, http.MethodGet, "/api/v1/products?brand=bosch&page=4", "sess-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeBody[catalog.Result](t, rec).Page)
}

func Test_ListProducts_PageOnlyOnFreshSession(t *testing.T) {
	// given: a session that has never issued a query
	env := newTestEnv(t)
	env.source.page = &catalog.Page{TotalPages: 5, Total: 60}

	// when: the very first request is page-only
	rec := env.do(t, http.MethodGet, "/api/v1/products?page=3", "sess-1", nil)

	// then: the page is honored, the total being still unknown
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decodeBody[catalog.Result](t, rec).Page)

	// ... and the defaults went upstream alongside it
	q := env.source.lastQuery
	assert.Equal(t, 3, q.Page)
	assert.Equal(t, catalog.DefaultPageSize, q.PageSize)
	assert.Equal(t, catalog.SortByName, q.SortBy)
	assert.Equal(t, catalog.SortAsc, q.SortOrder)
}

func Test_ListProducts_PageClampedToKnownTotal(t *testing.T) {
	env := newTestEnv(t)
	env.source.page = &catalog.Page{TotalPages: 3, Total: 30}

	// establish a successful result so the machine knows totalPages
	rec := env.do(t, http.MethodGet, "/api/v1/products", "sess-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/products?page=9", "sess-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decodeBody[catalog.Result](t, rec).Page)
}

func Test_ListProducts_InvalidParam(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/products?page=zero", "sess-1", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func Test_ListProducts_UpstreamError(t *testing.T) {
	env := newTestEnv(t)
	env.source.fetchErr = catalog.ErrUpstreamUnavailable

	rec := env.do(t, http.MethodGet, "/api/v1/products", "sess-1", nil)

	require.Equal(t, http.StatusBadGateway, rec.Code)
	result := decodeBody[catalog.Result](t, rec)
	assert.Equal(t, catalog.StatusError, result.Status)
	assert.Equal(t, "Product catalog is temporarily unavailable", result.Error)
	assert.Empty(t, result.Products)
}

func Test_ProductByID(t *testing.T) {
	env := newTestEnv(t)
	p := catalog.Product{ID: uuid.New(), Name: "Oil Filter", Price: 12_50, Stock: 4}
	env.source.add(p)

	rec := env.do(t, http.MethodGet, "/api/v1/products/"+p.ID.String(), "sess-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[catalog.Product](t, rec)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, p.Name, got.Name)
}

func Test_ProductByID_Errors(t *testing.T) {
	testCases := []struct {
		name         string
		target       func(env *testEnv) string
		fetchErr     error
		expectedCode int
	}{
		{
			name:         "Unknown product",
			target:       func(_ *testEnv) string { return "/api/v1/products/" + uuid.NewString() },
			expectedCode: http.StatusNotFound,
		},
		{
			name:         "Malformed ID",
			target:       func(_ *testEnv) string { return "/api/v1/products/not-a-uuid" },
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "Upstream unavailable",
			target:       func(_ *testEnv) string { return "/api/v1/products/" + uuid.NewString() },
			fetchErr:     catalog.ErrUpstreamUnavailable,
			expectedCode: http.StatusBadGateway,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.source.fetchErr = tc.fetchErr

			rec := env.do(t, http.MethodGet, tc.target(env), "sess-1", nil)

			assert.Equal(t, tc.expectedCode, rec.Code)
		})
	}
}

func Test_AddItem_ClampsToStock(t *testing.T) {
	// given
	env := newTestEnv(t)
	p := catalog.Product{ID: uuid.New(), Name: "Brake Pad", Price: 40_00, Stock: 3}
	env.source.add(p)

	// when: the shopper asks for more than is in stock
	rec := env.do(t, http.MethodPost, "/api/v1/cart/items", "sess-1",
		AddItemDto{ProductID: p.ID.String(), Quantity: 5})

	// then: the quantity is capped, not rejected
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeBody[cartView](t, rec)
	require.Len(t, view.Items, 1)
	assert.Equal(t, int32(3), view.Items[0].Quantity)
	assert.True(t, view.Items[0].AtStockCap)
	assert.Equal(t, int64(120_00), view.Items[0].Subtotal)
	assert.Equal(t, int64(120_00), view.Summary.Subtotal)
	assert.Equal(t, int64(0), view.Summary.Shipping)
}

func Test_AddItem_Validation(t *testing.T) {
	env := newTestEnv(t)

	testCases := []struct {
		name string
		body any
	}{
		{name: "Missing product ID", body: AddItemDto{Quantity: 1}},
		{name: "Quantity below one", body: AddItemDto{ProductID: uuid.NewString(), Quantity: 0}},
		{name: "Not a UUID", body: AddItemDto{ProductID: "abc", Quantity: 1}},
		{name: "Malformed JSON", body: "not json"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/cart/items", "sess-1", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func Test_AddItem_UnknownProduct(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/cart/items", "sess-1",
		AddItemDto{ProductID: uuid.NewString(), Quantity: 1})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func Test_SetQuantity_ZeroRemoves(t *testing.T) {
	// given
	env := newTestEnv(t)
	p := catalog.Product{ID: uuid.New(), Name: "Coolant", Price: 20_00, Stock: 6}
	env.source.add(p)
	rec := env.do(t, http.MethodPost, "/api/v1/cart/items", "sess-1",
		AddItemDto{ProductID: p.ID.String(), Quantity: 2})
	require.Equal(t, http.StatusOK, rec.Code)

	// when
	qty := int32(0)
	rec = env.do(t, http.MethodPut, "/api/v1/cart/items/"+p.ID.String(), "sess-1",
		SetQuantityDto{Quantity: &qty})

	// then
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeBody[cartView](t, rec)
	assert.Empty(t, view.Items)
	assert.Equal(t, int64(0), view.Summary.Total)
}

func Test_SetQuantity_MissingQuantity(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/api/v1/cart/items/"+uuid.NewString(), "sess-1",
		map[string]any{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func Test_RemoveItem_AbsentIsNoop(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodDelete, "/api/v1/cart/items/"+uuid.NewString(), "sess-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[cartView](t, rec).Items)
}

func Test_ClearCart(t *testing.T) {
	env := newTestEnv(t)
	p := catalog.Product{ID: uuid.New(), Name: "Wiper Blade", Price: 8_00, Stock: 3}
	env.source.add(p)
	env.do(t, http.MethodPost, "/api/v1/cart/items", "sess-1",
		AddItemDto{ProductID: p.ID.String(), Quantity: 1})

	rec := env.do(t, http.MethodDelete, "/api/v1/cart", "sess-1", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/cart", "sess-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[cartView](t, rec).Items)
}

func Test_Checkout_EmptyCart(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/cart/checkout", "sess-1", nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func Test_Checkout_Success(t *testing.T) {
	// given
	env := newTestEnv(t)
	p := catalog.Product{ID: uuid.New(), Name: "Spark Plug", Price: 14_99, Stock: 5}
	env.source.add(p)
	rec := env.do(t, http.MethodPost, "/api/v1/cart/items", "sess-1",
		AddItemDto{ProductID: p.ID.String(), Quantity: 2})
	require.Equal(t, http.StatusOK, rec.Code)

	// when
	rec = env.do(t, http.MethodPost, "/api/v1/cart/checkout", "sess-1", nil)

	// then
	require.Equal(t, http.StatusOK, rec.Code)
	receipt := decodeBody[checkout.Receipt](t, rec)
	assert.NotEqual(t, uuid.Nil, receipt.OrderID)
	require.Len(t, receipt.Items, 1)
	assert.Equal(t, int64(29_98), receipt.Summary.Subtotal)
	assert.Equal(t, int64(10_00), receipt.Summary.Shipping)
	assert.Equal(t, int64(39_98), receipt.Summary.Total)

	// ... and the cart is empty afterwards
	rec = env.do(t, http.MethodGet, "/api/v1/cart", "sess-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[cartView](t, rec).Items)
}

func Test_Carts_IsolatedPerSession(t *testing.T) {
	env := newTestEnv(t)
	p := catalog.Product{ID: uuid.New(), Name: "Air Filter", Price: 15_00, Stock: 2}
	env.source.add(p)

	env.do(t, http.MethodPost, "/api/v1/cart/items", "sess-a",
		AddItemDto{ProductID: p.ID.String(), Quantity: 1})

	rec := env.do(t, http.MethodGet, "/api/v1/cart", "sess-b", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[cartView](t, rec).Items)

	rec = env.do(t, http.MethodGet, "/api/v1/cart", "sess-a", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[cartView](t, rec).Items, 1)
}

func Test_HealthCheck(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func Test_RoutesRequireKnownMethods(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/products/%s", uuid.NewString()), "sess-1", nil)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
