// Package catalog implements the catalog query model and the fetch state
// machine that reconciles filter state with asynchronous results from the
// remote product source.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrProductNotFound means the remote source has no product with the
	// requested ID. Surfaced distinctly so callers can render a not-found
	// affordance instead of a transient-error one.
	ErrProductNotFound = errors.New("product not found")

	// ErrUpstreamUnavailable means the remote source could not be reached
	// or refused the request.
	ErrUpstreamUnavailable = errors.New("product source unavailable")
)

// Product is an immutable snapshot from the remote source. Price is in
// cents. The engine stores fetched copies and never mutates them.
type Product struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       int64     `json:"price"`
	Stock       int32     `json:"stock"`
	Category    string    `json:"category"`
	Brand       string    `json:"brand"`
	Images      []string  `json:"images"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Page is one page of products plus pagination metadata for a query.
type Page struct {
	Products   []Product `json:"products"`
	Page       int       `json:"page"`
	TotalPages int       `json:"totalPages"`
	Total      int       `json:"total"`
}

// ProductSource is the remote product catalog the engine fetches from.
type ProductSource interface {
	// FetchProducts returns one page of products for the given query.
	FetchProducts(ctx context.Context, q Query) (*Page, error)

	// FetchProductByID returns a single product by its identifier.
	// Returns ErrProductNotFound if no product exists with the given ID.
	FetchProductByID(ctx context.Context, id uuid.UUID) (*Product, error)
}
