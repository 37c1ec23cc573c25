package models

import "math"

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// Page selects a window of a listing. Page numbers start at 1.
type Page struct {
	Number int
	Limit  int
}

// Normalize clamps p to valid values. The page number is capped so the
// offset of the page still fits in an int.
func (p Page) Normalize() Page {
	if p.Limit < 1 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Number < 1 {
		p.Number = 1
	}
	if last := math.MaxInt / p.Limit; p.Number > last {
		p.Number = last
	}
	return p
}

// Offset is the number of items skipped before the page.
func (p Page) Offset() int {
	p = p.Normalize()
	return (p.Number - 1) * p.Limit
}

// Window returns the [start, end) bounds of the page within total items.
func (p Page) Window(total int) (int, int) {
	start := p.Offset()
	if start > total {
		start = total
	}
	end := start + p.Normalize().Limit
	if end > total {
		end = total
	}
	return start, end
}

// Pagination is the pagination block of list responses.
type Pagination struct {
	Current int `json:"current"`
	Pages   int `json:"pages"`
	Total   int `json:"total"`
	Limit   int `json:"limit"`
}

// NewPagination describes page p of a listing with total items.
func NewPagination(p Page, total int) *Pagination {
	p = p.Normalize()
	return &Pagination{
		Current: p.Number,
		Pages:   (total + p.Limit - 1) / p.Limit, // round up
		Total:   total,
		Limit:   p.Limit,
	}
}
