// Package upstream implements the remote product source over HTTP.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/abgdnv/storefront/internal/catalog"
	"github.com/abgdnv/storefront/pkg/config"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Client fetches products from the upstream catalog API. Calls go through
// a circuit breaker so a misbehaving upstream degrades into fast
// ErrUpstreamUnavailable failures instead of piling up requests. Not-found
// responses do not trip the breaker: they are answers, not failures.
type Client struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *slog.Logger
}

var _ catalog.ProductSource = (*Client)(nil)

// NewClient creates an upstream client for the configured catalog API.
func NewClient(cfg config.UpstreamConfig, cbCfg config.CircuitBreakerConfig, logger *slog.Logger) *Client {
	st := gobreaker.Settings{
		Name:        "product-source",
		MaxRequests: 3,
		Timeout:     cbCfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > cbCfg.ConsecutiveFailures ||
				(counts.TotalSuccesses+counts.TotalFailures > cbCfg.ConsecutiveFailures &&
					float64(counts.TotalFailures)/float64(counts.TotalSuccesses+counts.TotalFailures)*100 > float64(cbCfg.ErrorRatePercent))
		},
		IsSuccessful: func(err error) bool {
			// Not-found is a valid answer from the upstream, not a
			// system failure.
			return err == nil || errors.Is(err, catalog.ErrProductNotFound)
		},
	}

	return &Client{
		baseURL: cfg.Url,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: gobreaker.NewCircuitBreaker[[]byte](st),
		logger:  logger.With("component", "upstream"),
	}
}

// FetchProducts returns one page of products for the given query.
func (c *Client) FetchProducts(ctx context.Context, q catalog.Query) (*catalog.Page, error) {
	endpoint := fmt.Sprintf("%s/api/v1/products?%s", c.baseURL, queryParams(q).Encode())
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var page catalog.Page
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to decode product page: %w", err)
	}
	return &page, nil
}

// FetchProductByID returns a single product.
// Returns catalog.ErrProductNotFound if the upstream has no such product.
func (c *Client) FetchProductByID(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	endpoint := fmt.Sprintf("%s/api/v1/products/%s", c.baseURL, id)
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var product catalog.Product
	if err := json.Unmarshal(body, &product); err != nil {
		return nil, fmt.Errorf("failed to decode product: %w", err)
	}
	return &product, nil
}

// get performs a GET through the circuit breaker and returns the response
// body. Transport failures and non-2xx statuses other than 404 surface as
// ErrUpstreamUnavailable.
func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	body, err := c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build upstream request: %w", err)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", catalog.ErrUpstreamUnavailable, err)
		}
		defer func() { _ = resp.Body.Close() }()

		switch {
		case resp.StatusCode == http.StatusOK:
			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, fmt.Errorf("%w: failed to read response: %v", catalog.ErrUpstreamUnavailable, err)
			}
			return data, nil
		case resp.StatusCode == http.StatusNotFound:
			return nil, catalog.ErrProductNotFound
		default:
			return nil, fmt.Errorf("%w: upstream returned status %d", catalog.ErrUpstreamUnavailable, resp.StatusCode)
		}
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.logger.WarnContext(ctx, "Upstream circuit breaker rejected request", "endpoint", endpoint)
			return nil, fmt.Errorf("%w: circuit breaker open", catalog.ErrUpstreamUnavailable)
		}
		return nil, err
	}
	return body, nil
}

// queryParams maps a normalized query onto the upstream API's parameters.
// Unset filters are omitted rather than sent as empty values.
func queryParams(q catalog.Query) url.Values {
	v := url.Values{}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Category != "" {
		v.Set("category", q.Category)
	}
	if q.Brand != "" {
		v.Set("brand", q.Brand)
	}
	if q.MinPrice > 0 {
		v.Set("minPrice", strconv.FormatInt(q.MinPrice, 10))
	}
	if q.MaxPrice > 0 {
		v.Set("maxPrice", strconv.FormatInt(q.MaxPrice, 10))
	}
	v.Set("sortBy", q.SortBy)
	v.Set("sortOrder", q.SortOrder)
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("limit", strconv.Itoa(q.PageSize))
	return v
}
