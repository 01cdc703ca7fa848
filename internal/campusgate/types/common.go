// Package types holds the request and response shapes of the gate API.
package types

import "time"

type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type GateInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type GateView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`
	Status   string `json:"status"`
}

type GateList struct {
	Gates []GateView `json:"gates"`
}

type Pagination struct {
	CurrentPage     int  `json:"currentPage"`
	TotalPages      int  `json:"totalPages"`
	TotalItems      int  `json:"totalItems"`
	ItemsPerPage    int  `json:"itemsPerPage"`
	HasNextPage     bool `json:"hasNextPage"`
	HasPreviousPage bool `json:"hasPreviousPage"`
}

// NewPagination describes page (1-based) of size over total items.
func NewPagination(page, size, total int) Pagination {
	pages := 0
	if size > 0 {
		pages = (total + size - 1) / size
	}
	return Pagination{
		CurrentPage:     page,
		TotalPages:      pages,
		TotalItems:      total,
		ItemsPerPage:    size,
		HasNextPage:     page < pages,
		HasPreviousPage: page > 1,
	}
}

// PageQuery is the page/limit pair accepted by every list operation. Zero
// values select the defaults.
type PageQuery struct {
	Page  int
	Limit int
}

type ResolveRequest struct {
	Notes string `json:"notes"`
}

// Resolution is the review state rendered on violations and vehicle alerts.
type Resolution struct {
	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolvedAt"`
	ResolvedBy *Actor     `json:"resolvedBy"`
	Notes      *string    `json:"notes"`
}
