package catalog

import (
	"fmt"
	"strings"
)

// Sort keys accepted by the catalog. Anything else normalizes to SortByName.
const (
	SortByName      = "name"
	SortByPrice     = "price"
	SortByCreatedAt = "createdAt"

	SortAsc  = "asc"
	SortDesc = "desc"
)

const DefaultPageSize = 12

// Filters is the raw, user-editable filter input. All fields are optional;
// zero values mean "not set". Prices are in cents, 0 means unbounded.
type Filters struct {
	Search    string
	Category  string
	Brand     string
	MinPrice  int64
	MaxPrice  int64
	SortBy    string
	SortOrder string
	Page      int
	PageSize  int
}

// Query is the canonical form of a filter set. Two queries are equal iff
// all fields are equal after normalization; Key() is stable for use as a
// lookup/dedup key.
type Query struct {
	Search    string
	Category  string
	Brand     string
	MinPrice  int64
	MaxPrice  int64
	SortBy    string
	SortOrder string
	Page      int
	PageSize  int
}

// Patch is a partial filter change. Nil fields are left untouched.
// Page is applied only when no other field is present: changing any filter
// restarts pagination at page 1.
type Patch struct {
	Search    *string
	Category  *string
	Brand     *string
	MinPrice  *int64
	MaxPrice  *int64
	SortBy    *string
	SortOrder *string
	PageSize  *int
	Page      *int
}

// Normalize canonicalizes raw filter input, applying documented defaults:
// empty search/category/brand mean "no filter", zero price bounds mean
// unbounded, sort defaults to name ascending, page to 1, page size to 12.
func Normalize(f Filters) Query {
	q := Query{
		Search:    strings.TrimSpace(f.Search),
		Category:  strings.TrimSpace(f.Category),
		Brand:     strings.TrimSpace(f.Brand),
		MinPrice:  f.MinPrice,
		MaxPrice:  f.MaxPrice,
		SortBy:    f.SortBy,
		SortOrder: f.SortOrder,
		Page:      f.Page,
		PageSize:  f.PageSize,
	}
	if q.MinPrice < 0 {
		q.MinPrice = 0
	}
	if q.MaxPrice < 0 {
		q.MaxPrice = 0
	}
	switch q.SortBy {
	case SortByName, SortByPrice, SortByCreatedAt:
	default:
		q.SortBy = SortByName
	}
	switch q.SortOrder {
	case SortAsc, SortDesc:
	default:
		q.SortOrder = SortAsc
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	return q
}

// ApplyFilterChange merges a patch into the current query. Touching any
// field other than page resets page to 1: shoppers expect filter changes
// to restart pagination.
func ApplyFilterChange(cur Query, p Patch) Query {
	next := cur
	filterTouched := false

	if p.Search != nil {
		next.Search = *p.Search
		filterTouched = true
	}
	if p.Category != nil {
		next.Category = *p.Category
		filterTouched = true
	}
	if p.Brand != nil {
		next.Brand = *p.Brand
		filterTouched = true
	}
	if p.MinPrice != nil {
		next.MinPrice = *p.MinPrice
		filterTouched = true
	}
	if p.MaxPrice != nil {
		next.MaxPrice = *p.MaxPrice
		filterTouched = true
	}
	if p.SortBy != nil {
		next.SortBy = *p.SortBy
		filterTouched = true
	}
	if p.SortOrder != nil {
		next.SortOrder = *p.SortOrder
		filterTouched = true
	}
	if p.PageSize != nil {
		next.PageSize = *p.PageSize
		filterTouched = true
	}

	if filterTouched {
		next.Page = 1
	} else if p.Page != nil {
		next.Page = *p.Page
	}

	return Normalize(Filters(next))
}

// ApplyPageChange sets the page only, clamped to [1, totalPages] when the
// total is known (totalPages > 0), otherwise clamped to >= 1.
func ApplyPageChange(cur Query, page, totalPages int) Query {
	if page < 1 {
		page = 1
	}
	if totalPages > 0 && page > totalPages {
		page = totalPages
	}
	next := cur
	next.Page = page
	return next
}

// Key returns the canonical comparable form of the query. Equal queries
// yield equal keys.
func (q Query) Key() string {
	return fmt.Sprintf("s=%s|c=%s|b=%s|min=%d|max=%d|sort=%s:%s|page=%d|size=%d",
		q.Search, q.Category, q.Brand, q.MinPrice, q.MaxPrice, q.SortBy, q.SortOrder, q.Page, q.PageSize)
}
