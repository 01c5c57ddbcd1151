package pager

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/reportql/internal/domain"
)

func ungroupedResult(n int) domain.ResultSet {
	rows := make([]domain.Row, n)
	for i := range rows {
		rows[i] = domain.Row{Kind: domain.RowDetail, Values: map[string]any{"n": i}}
	}
	return domain.ResultSet{Rows: rows, GrandTotals: map[string]any{"n": float64(n)}}
}

// groupedResult builds groups of one group row, two details and a subtotal.
func groupedResult(groups int) domain.ResultSet {
	var rs domain.ResultSet
	for g := 0; g < groups; g++ {
		start := len(rs.Rows)
		key := fmt.Sprintf("g%d", g)
		rs.Rows = append(rs.Rows,
			domain.Row{Kind: domain.RowGroup, Values: map[string]any{"key": key}, RecordCount: 2},
			domain.Row{Kind: domain.RowDetail, Values: map[string]any{"key": key}},
			domain.Row{Kind: domain.RowDetail, Values: map[string]any{"key": key}},
			domain.Row{Kind: domain.RowSubtotal, Values: map[string]any{"key": key}},
		)
		rs.GroupSpans = append(rs.GroupSpans, domain.GroupSpan{Start: start, End: len(rs.Rows)})
	}
	rs.GrandTotals = map[string]any{"count": float64(groups * 2)}
	return rs
}

func TestNormalizePageSize(t *testing.T) {
	assert.Equal(t, 25, NormalizePageSize(25))
	assert.Equal(t, 100, NormalizePageSize(100))
	assert.Equal(t, DefaultPageSize, NormalizePageSize(0))
	assert.Equal(t, DefaultPageSize, NormalizePageSize(30))
	assert.Equal(t, DefaultPageSize, NormalizePageSize(-5))
}

func TestGroupsPerPage(t *testing.T) {
	assert.Equal(t, 5, GroupsPerPage(10))
	assert.Equal(t, 12, GroupsPerPage(25))
	assert.Equal(t, 50, GroupsPerPage(100))
	assert.Equal(t, 1, GroupsPerPage(1))
}

func TestPaginateRows(t *testing.T) {
	rs := ungroupedResult(25)

	page := Paginate(rs, 1, 10)
	require.Len(t, page.Items, 10)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 25, page.TotalRows)
	assert.False(t, page.HasPrevious)
	assert.True(t, page.HasNext)
	assert.Equal(t, 0, page.StartIndex)
	assert.Equal(t, 10, page.EndIndex)

	page = Paginate(rs, 3, 10)
	require.Len(t, page.Items, 5)
	assert.True(t, page.HasPrevious)
	assert.False(t, page.HasNext)
	assert.Equal(t, 20, page.StartIndex)
	assert.Equal(t, 25, page.EndIndex)
}

func TestPaginateClampsOutOfRangePages(t *testing.T) {
	rs := ungroupedResult(25)

	page := Paginate(rs, 99, 10)
	assert.Equal(t, 3, page.PageNumber)
	assert.Len(t, page.Items, 5)

	page = Paginate(rs, 0, 10)
	assert.Equal(t, 1, page.PageNumber)

	page = Paginate(rs, -3, 10)
	assert.Equal(t, 1, page.PageNumber)
}

func TestPaginateInvalidPageSizeFallsBack(t *testing.T) {
	rs := ungroupedResult(25)

	page := Paginate(rs, 1, 33)
	assert.Equal(t, DefaultPageSize, page.PageSize)
	assert.Len(t, page.Items, 10)
}

func TestPaginateGroupsNeverSplits(t *testing.T) {
	rs := groupedResult(7)

	page := Paginate(rs, 1, 10)
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, 7, page.TotalGroups)
	// 5 groups of 4 rows each on the first page.
	require.Len(t, page.Items, 20)
	assert.Equal(t, domain.RowGroup, page.Items[0].Kind)
	assert.Equal(t, domain.RowSubtotal, page.Items[len(page.Items)-1].Kind)

	page = Paginate(rs, 2, 10)
	require.Len(t, page.Items, 8)
	assert.Equal(t, domain.RowGroup, page.Items[0].Kind)
	assert.Equal(t, domain.RowSubtotal, page.Items[len(page.Items)-1].Kind)
	assert.True(t, page.HasPrevious)
	assert.False(t, page.HasNext)
}

func TestPaginateGrandTotalsOnEveryPage(t *testing.T) {
	rs := groupedResult(7)

	for pageNum := 1; pageNum <= 2; pageNum++ {
		page := Paginate(rs, pageNum, 10)
		assert.Equal(t, rs.GrandTotals, page.GrandTotals, "page %d", pageNum)
	}
}

func TestPaginateEmptyResult(t *testing.T) {
	page := Paginate(domain.ResultSet{}, 1, 10)
	assert.Empty(t, page.Items)
	assert.Equal(t, 1, page.TotalPages)
	assert.Equal(t, 1, page.PageNumber)
	assert.False(t, page.HasNext)
}
