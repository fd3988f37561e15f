package model

import "math"

// Pagination represents 1-based page parameters
type Pagination struct {
	Page     int `json:"page" form:"page"`
	PageSize int `json:"pageSize" form:"pageSize"`
}

// Offset is the number of rows skipped before the current page. Pages too far
// out to address saturate at math.MaxInt, which selects nothing.
func (p Pagination) Offset() int {
	if p.Page < 1 || p.PageSize < 1 {
		return 0
	}
	if p.Page-1 > math.MaxInt/p.PageSize {
		return math.MaxInt
	}
	return (p.Page - 1) * p.PageSize
}

// Normalize replaces out-of-range values with defaults and caps the page size.
func (p Pagination) Normalize(defaultSize, maxSize int) Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = defaultSize
	}
	if maxSize > 0 && p.PageSize > maxSize {
		p.PageSize = maxSize
	}
	return p
}

// Page is one page of a listing.
type Page[T any] struct {
	Items []T
	Total int64
	Pagination
}
