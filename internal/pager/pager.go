// Package pager slices transformed result sets into pages. Grouped results
// paginate by whole groups so a group header, its detail rows and its
// subtotal always land on the same page.
package pager

import "github.com/rpattn/reportql/internal/domain"

// AllowedPageSizes are the page sizes clients may request; anything else
// falls back to DefaultPageSize.
var AllowedPageSizes = []int{10, 25, 50, 100}

const DefaultPageSize = 10

// Page is one page of report rows plus the navigation metadata clients
// need to render a pager. GrandTotals repeat on every page.
type Page struct {
	Items       []domain.Row   `json:"items"`
	PageNumber  int            `json:"page_number"`
	PageSize    int            `json:"page_size"`
	TotalPages  int            `json:"total_pages"`
	TotalRows   int            `json:"total_rows"`
	TotalGroups int            `json:"total_groups"`
	HasPrevious bool           `json:"has_previous"`
	HasNext     bool           `json:"has_next"`
	StartIndex  int            `json:"start_index"`
	EndIndex    int            `json:"end_index"`
	GrandTotals map[string]any `json:"grand_totals,omitempty"`
	Warnings    []string       `json:"warnings,omitempty"`
}

// NormalizePageSize returns size when it is one of the allowed sizes and
// DefaultPageSize otherwise.
func NormalizePageSize(size int) int {
	for _, allowed := range AllowedPageSizes {
		if size == allowed {
			return size
		}
	}
	return DefaultPageSize
}

// GroupsPerPage derives how many top-level groups fit on a page of the
// given size.
func GroupsPerPage(pageSize int) int {
	n := pageSize / 2
	if n < 1 {
		return 1
	}
	return n
}

// Paginate slices the result set. Page numbers are 1-based; out-of-range
// numbers clamp to the nearest valid page rather than erroring.
func Paginate(rs domain.ResultSet, pageNumber, pageSize int) Page {
	pageSize = NormalizePageSize(pageSize)
	if rs.Grouped() {
		return paginateGroups(rs, pageNumber, pageSize)
	}
	return paginateRows(rs, pageNumber, pageSize)
}

func paginateRows(rs domain.ResultSet, pageNumber, pageSize int) Page {
	total := len(rs.Rows)
	totalPages := pages(total, pageSize)
	pageNumber = clamp(pageNumber, totalPages)

	start := (pageNumber - 1) * pageSize
	end := start + pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	return Page{
		Items:       rs.Rows[start:end],
		PageNumber:  pageNumber,
		PageSize:    pageSize,
		TotalPages:  totalPages,
		TotalRows:   total,
		HasPrevious: pageNumber > 1,
		HasNext:     pageNumber < totalPages,
		StartIndex:  start,
		EndIndex:    end,
		GrandTotals: rs.GrandTotals,
		Warnings:    rs.Warnings,
	}
}

func paginateGroups(rs domain.ResultSet, pageNumber, pageSize int) Page {
	perPage := GroupsPerPage(pageSize)
	totalGroups := len(rs.GroupSpans)
	totalPages := pages(totalGroups, perPage)
	pageNumber = clamp(pageNumber, totalPages)

	first := (pageNumber - 1) * perPage
	last := first + perPage
	if first > totalGroups {
		first = totalGroups
	}
	if last > totalGroups {
		last = totalGroups
	}

	start, end := 0, 0
	if first < last {
		start = rs.GroupSpans[first].Start
		end = rs.GroupSpans[last-1].End
	}

	return Page{
		Items:       rs.Rows[start:end],
		PageNumber:  pageNumber,
		PageSize:    pageSize,
		TotalPages:  totalPages,
		TotalRows:   len(rs.Rows),
		TotalGroups: totalGroups,
		HasPrevious: pageNumber > 1,
		HasNext:     pageNumber < totalPages,
		StartIndex:  start,
		EndIndex:    end,
		GrandTotals: rs.GrandTotals,
		Warnings:    rs.Warnings,
	}
}

func pages(total, per int) int {
	if total == 0 {
		return 1
	}
	return (total + per - 1) / per
}

func clamp(page, totalPages int) int {
	if page < 1 {
		return 1
	}
	if page > totalPages {
		return totalPages
	}
	return page
}
