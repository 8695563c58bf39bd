// Package rest provides the HTTP handlers for the storefront API.
package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/catalog"
	"github.com/abgdnv/storefront/internal/checkout"
	"github.com/abgdnv/storefront/internal/session"
	"github.com/abgdnv/storefront/pkg/web"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

type Handler struct {
	sessions *session.Manager
	source   catalog.ProductSource
	checkout *checkout.Service
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler creates the storefront API handler.
func NewHandler(sessions *session.Manager, source catalog.ProductSource, checkoutSvc *checkout.Service, logger *slog.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		source:   source,
		checkout: checkoutSvc,
		validate: validator.New(),
		logger:   logger.With("component", "rest"),
	}
}

// RegisterRoutes registers the HTTP routes for the storefront.
func (h *Handler) RegisterRoutes(r *chi.Mux) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(web.SessionMiddleware)

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Get("/{id}", h.ProductByID)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Delete("/", h.ClearCart)
			r.Post("/items", h.AddItem)
			r.Put("/items/{id}", h.SetQuantity)
			r.Delete("/items/{id}", h.RemoveItem)
			r.Post("/checkout", h.Checkout)
		})
	})

	r.Get("/healthz", h.HealthCheck)
}

// AddItemDto is the request body for adding a product to the cart.
type AddItemDto struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Quantity  int32  `json:"quantity"  validate:"required,min=1"`
}

// SetQuantityDto is the request body for replacing a line item's quantity.
// Quantity 0 removes the line item.
type SetQuantityDto struct {
	Quantity *int32 `json:"quantity" validate:"required,min=0"`
}

// cartLineView is a cart line item with its derived display fields.
type cartLineView struct {
	cart.LineItem
	Subtotal   int64 `json:"subtotal"`
	AtStockCap bool  `json:"atStockCap"`
}

// cartView is the read-only cart view model: items in insertion order plus
// the recomputed order summary.
type cartView struct {
	Items     []cartLineView `json:"items"`
	ItemCount int            `json:"itemCount"`
	UnitCount int32          `json:"unitCount"`
	Summary   cart.Summary   `json:"summary"`
}

func toCartView(snap cart.Snapshot) cartView {
	items := make([]cartLineView, len(snap.Items))
	for i, item := range snap.Items {
		items[i] = cartLineView{
			LineItem:   item,
			Subtotal:   item.UnitPrice * int64(item.Quantity),
			AtStockCap: item.Quantity >= item.StockAtAdd,
		}
	}
	return cartView{
		Items:     items,
		ItemCount: snap.ItemCount,
		UnitCount: snap.UnitCount,
		Summary:   cart.Summarize(snap),
	}
}

// ListProducts runs a catalog query for the shopper's session. Query
// parameters are a patch on the session's current filter set; any filter
// parameter resets pagination, a lone page parameter pages within it.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	sess, ok := h.session(w, r, mLogger)
	if !ok {
		return
	}

	patch, pageParam, ok := h.parseFilterPatch(w, r, mLogger)
	if !ok {
		return
	}

	current := sess.Catalog.Current()
	var query catalog.Query
	if isPageOnly(patch, pageParam) {
		query = catalog.ApplyPageChange(current.Query, *pageParam, current.TotalPages)
	} else {
		if pageParam != nil {
			patch.Page = pageParam
		}
		query = catalog.ApplyFilterChange(current.Query, patch)
	}

	mLogger.DebugContext(r.Context(), "Received catalog query", "query", query.Key())
	result, err := sess.Catalog.Load(r.Context(), query)
	if err != nil {
		mLogger.ErrorContext(r.Context(), "Error fetching products", "query", query.Key(), "error", err)
		web.RespondJSON(w, mLogger, http.StatusBadGateway, result)
		return
	}
	mLogger.DebugContext(r.Context(), "Successfully fetched products", "count", len(result.Products), "total", result.Total)
	web.RespondJSON(w, mLogger, http.StatusOK, result)
}

// ProductByID retrieves a single product from the remote source.
func (h *Handler) ProductByID(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}

	product, err := h.source.FetchProductByID(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrProductNotFound):
			mLogger.WarnContext(r.Context(), "Product not found", "ID", id)
			web.RespondError(w, mLogger, http.StatusNotFound, fmt.Sprintf("Product with ID %s not found", id))
		case errors.Is(err, catalog.ErrUpstreamUnavailable):
			mLogger.ErrorContext(r.Context(), "Upstream unavailable", "ID", id, "error", err)
			web.RespondError(w, mLogger, http.StatusBadGateway, "Product catalog is temporarily unavailable")
		default:
			mLogger.ErrorContext(r.Context(), "Error retrieving product", "ID", id, "error", err)
			web.RespondError(w, mLogger, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve product with ID %s", id))
		}
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, product)
}

// GetCart returns the cart view for the shopper's session.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	sess, ok := h.session(w, r, mLogger)
	if !ok {
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, toCartView(sess.Cart.Snapshot()))
}

// AddItem adds a product to the cart, snapshotting its price and stock.
// Requested quantities beyond stock are capped, not rejected.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	sess, ok := h.session(w, r, mLogger)
	if !ok {
		return
	}

	var dto AddItemDto
	if !h.decodeAndValidate(w, r, mLogger, &dto) {
		return
	}
	id, ok := web.ParseUUID(w, mLogger, dto.ProductID)
	if !ok {
		return
	}

	product, err := h.source.FetchProductByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			mLogger.WarnContext(r.Context(), "Product not found for cart add", "ID", id)
			web.RespondError(w, mLogger, http.StatusNotFound, fmt.Sprintf("Product with ID %s not found", id))
			return
		}
		mLogger.ErrorContext(r.Context(), "Error fetching product for cart add", "ID", id, "error", err)
		web.RespondError(w, mLogger, http.StatusBadGateway, "Product catalog is temporarily unavailable")
		return
	}

	snap := sess.Cart.AddItem(*product, dto.Quantity)
	mLogger.InfoContext(r.Context(), "Item added to cart", "ID", id, "requested", dto.Quantity)
	web.RespondJSON(w, mLogger, http.StatusOK, toCartView(snap))
}

// SetQuantity replaces a line item's quantity; zero removes the line item.
func (h *Handler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	sess, ok := h.session(w, r, mLogger)
	if !ok {
		return
	}
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}

	var dto SetQuantityDto
	if !h.decodeAndValidate(w, r, mLogger, &dto) {
		return
	}

	snap := sess.Cart.SetQuantity(id, *dto.Quantity)
	mLogger.InfoContext(r.Context(), "Cart quantity updated", "ID", id, "quantity", *dto.Quantity)
	web.RespondJSON(w, mLogger, http.StatusOK, toCartView(snap))
}

// RemoveItem deletes a line item; absent items are a no-op.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	sess, ok := h.session(w, r, mLogger)
	if !ok {
		return
	}
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}

	snap := sess.Cart.RemoveItem(id)
	mLogger.InfoContext(r.Context(), "Item removed from cart", "ID", id)
	web.RespondJSON(w, mLogger, http.StatusOK, toCartView(snap))
}

// ClearCart empties the cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	sess, ok := h.session(w, r, mLogger)
	if !ok {
		return
	}
	sess.Cart.Clear()
	mLogger.InfoContext(r.Context(), "Cart cleared")
	w.WriteHeader(http.StatusNoContent)
}

// Checkout completes the cart into an order receipt.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	sess, ok := h.session(w, r, mLogger)
	if !ok {
		return
	}

	receipt, err := h.checkout.Checkout(r.Context(), sess.ID, sess.Cart)
	if err != nil {
		if errors.Is(err, checkout.ErrCartEmpty) {
			mLogger.WarnContext(r.Context(), "Checkout attempted with empty cart")
			web.RespondError(w, mLogger, http.StatusConflict, "Cart is empty")
			return
		}
		mLogger.ErrorContext(r.Context(), "Error completing checkout", "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to complete checkout")
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, receipt)
}

// HealthCheck is a simple health check endpoint.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// parseFilterPatch builds a catalog patch from the query parameters that
// are actually present. Returns the page parameter separately so the
// caller can distinguish a pure page change from a filter change.
func (h *Handler) parseFilterPatch(w http.ResponseWriter, r *http.Request, mLogger *slog.Logger) (catalog.Patch, *int, bool) {
	patch := catalog.Patch{}
	params := r.URL.Query()

	if params.Has("search") {
		s := params.Get("search")
		patch.Search = &s
	}
	if params.Has("category") {
		s := params.Get("category")
		patch.Category = &s
	}
	if params.Has("brand") {
		s := params.Get("brand")
		patch.Brand = &s
	}
	if params.Has("sortBy") {
		s := params.Get("sortBy")
		patch.SortBy = &s
	}
	if params.Has("sortOrder") {
		s := params.Get("sortOrder")
		patch.SortOrder = &s
	}

	minPrice, present, ok := web.ParseOptionalGte(r, w, mLogger, "minPrice", 0)
	if !ok {
		return patch, nil, false
	}
	if present {
		patch.MinPrice = &minPrice
	}
	maxPrice, present, ok := web.ParseOptionalGte(r, w, mLogger, "maxPrice", 0)
	if !ok {
		return patch, nil, false
	}
	if present {
		patch.MaxPrice = &maxPrice
	}
	limit, present, ok := web.ParseOptionalGte(r, w, mLogger, "limit", 1)
	if !ok {
		return patch, nil, false
	}
	if present {
		pageSize := int(limit)
		patch.PageSize = &pageSize
	}

	var pageParam *int
	page, present, ok := web.ParseOptionalGte(r, w, mLogger, "page", 1)
	if !ok {
		return patch, nil, false
	}
	if present {
		p := int(page)
		pageParam = &p
	}

	return patch, pageParam, true
}

// isPageOnly reports whether the request changes the page and nothing else.
func isPageOnly(p catalog.Patch, page *int) bool {
	return page != nil &&
		p.Search == nil && p.Category == nil && p.Brand == nil &&
		p.MinPrice == nil && p.MaxPrice == nil &&
		p.SortBy == nil && p.SortOrder == nil && p.PageSize == nil
}

// decodeAndValidate decodes the request body into dto and validates it.
// Responds with 400 and returns false on failure.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, mLogger *slog.Logger, dto any) bool {
	if err := json.NewDecoder(r.Body).Decode(dto); err != nil {
		mLogger.ErrorContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := h.validate.Struct(dto); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			errorResponse := make(map[string]string)
			for _, fieldErr := range validationErrors {
				errorResponse[fieldErr.Field()] = "failed on rule: " + fieldErr.Tag()
			}
			mLogger.WarnContext(r.Context(), "Validation errors occurred", "errors", errorResponse)
			web.RespondJSON(w, mLogger, http.StatusBadRequest, map[string]any{"validation_errors": errorResponse})
			return false
		}
		mLogger.ErrorContext(r.Context(), "Error validating request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// session resolves the shopper session for the request.
func (h *Handler) session(w http.ResponseWriter, r *http.Request, mLogger *slog.Logger) (*session.Session, bool) {
	sessionID, ok := web.SessionID(w, r, mLogger)
	if !ok {
		return nil, false
	}
	sess, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		mLogger.ErrorContext(r.Context(), "Error resolving session", "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to resolve session")
		return nil, false
	}
	return sess, true
}

// loggerWithReqID creates a logger with the request ID from the context.
func (h *Handler) loggerWithReqID(r *http.Request) *slog.Logger {
	reqID := middleware.GetReqID(r.Context())
	return h.logger.With("request_id", reqID)
}
