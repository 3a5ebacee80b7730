package shared

import "math"

const (
	// DefaultPageSize applies when callers omit a page size.
	DefaultPageSize = 10
	// MaxPageSize caps page sizes requested by callers.
	MaxPageSize = 500
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = DefaultPageSize
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// Offset returns the row offset of the first record on the page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// PageRequest carries listing parameters shared by every store.
type PageRequest struct {
	Page      int
	PageSize  int
	SortBy    []string
	Ascending bool
}

// Normalize clamps page and size into valid ranges.
func (r PageRequest) Normalize() PageRequest {
	if r.Page <= 0 {
		r.Page = 1
	}
	if r.PageSize <= 0 {
		r.PageSize = DefaultPageSize
	}
	if r.PageSize > MaxPageSize {
		r.PageSize = MaxPageSize
	}
	return r
}

// Offset returns the row offset for the request.
func (r PageRequest) Offset() int {
	n := r.Normalize()
	return (n.Page - 1) * n.PageSize
}

// Page is the listing envelope returned to callers.
type Page[T any] struct {
	Results      []T `json:"results"`
	CurrentPage  int `json:"currentPage"`
	TotalResults int `json:"totalResults"`
	TotalPages   int `json:"totalPages"`
}

// NewPage wraps one page of results with its metadata.
func NewPage[T any](results []T, req PageRequest, total int) Page[T] {
	req = req.Normalize()
	meta := NewPagination(req.Page, req.PageSize, total)
	if results == nil {
		results = []T{}
	}
	return Page[T]{
		Results:      results,
		CurrentPage:  meta.Page,
		TotalResults: meta.Total,
		TotalPages:   meta.TotalPages,
	}
}
