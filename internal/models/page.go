package models

// Page is one page of a paginated listing.
type Page[T any] struct {
	TotalCount int `json:"total_count"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"total_pages"`
	Items      []T `json:"items"`
}

// Pagination defaults.
const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// NormalizePage clamps page and limit into their valid ranges.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

// NewPage builds a Page from one slice of items and the total row count.
func NewPage[T any](items []T, total, page, limit int) Page[T] {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	if items == nil {
		items = []T{}
	}
	return Page[T]{TotalCount: total, Page: page, Limit: limit, TotalPages: pages, Items: items}
}
