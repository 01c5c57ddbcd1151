package export

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/reportql/internal/domain"
)

func exportColumns() []domain.ReportColumn {
	return []domain.ReportColumn{
		{Name: "Status", FieldPath: "status", DisplayName: "Order Status"},
		{Name: "Total", FieldPath: "total", Aggregation: domain.AggregationSum, FormattingType: domain.FormatCurrency},
	}
}

func readSheet(t *testing.T, buf *bytes.Buffer) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("Report")
	if err != nil {
		t.Fatalf("read sheet: %v", err)
	}
	return rows
}

func TestWriteWorkbookFlatReport(t *testing.T) {
	rs := domain.ResultSet{
		Rows: []domain.Row{
			{Kind: domain.RowDetail, Values: map[string]any{"status": "pending", "total": 10.5}},
			{Kind: domain.RowDetail, Values: map[string]any{"status": "shipped", "total": 20.0}},
		},
		GrandTotals: map[string]any{"total": 30.5},
	}

	var buf bytes.Buffer
	if err := WriteWorkbook(&buf, "Orders", exportColumns(), rs); err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	rows := readSheet(t, &buf)
	if len(rows) != 4 {
		t.Fatalf("expected header, 2 data rows and totals, got %d rows", len(rows))
	}
	if rows[0][0] != "Order Status" || rows[0][1] != "Total" {
		t.Fatalf("unexpected header row %v", rows[0])
	}
	if rows[1][0] != "pending" || rows[1][1] != "10.5" {
		t.Fatalf("unexpected first data row %v", rows[1])
	}
	if rows[3][0] != "Grand Total" || rows[3][1] != "30.5" {
		t.Fatalf("unexpected totals row %v", rows[3])
	}
}

func TestWriteWorkbookGroupRows(t *testing.T) {
	rs := domain.ResultSet{
		Rows: []domain.Row{
			{Kind: domain.RowGroup, Values: map[string]any{"status": "pending"}, RecordCount: 2},
			{Kind: domain.RowDetail, Values: map[string]any{"status": "pending", "total": 10.0}},
			{Kind: domain.RowDetail, Values: map[string]any{"status": "pending", "total": 5.0}},
			{Kind: domain.RowSubtotal, Values: map[string]any{"status": "pending", "total": 15.0}},
		},
		GroupSpans: []domain.GroupSpan{{Start: 0, End: 4}},
	}

	var buf bytes.Buffer
	if err := WriteWorkbook(&buf, "Orders", exportColumns(), rs); err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	rows := readSheet(t, &buf)
	if len(rows) != 5 {
		t.Fatalf("expected header and 4 data rows, got %d rows", len(rows))
	}
	if rows[1][0] != "pending (2 records)" {
		t.Fatalf("unexpected group row label %q", rows[1][0])
	}
	if rows[4][1] != "15" {
		t.Fatalf("unexpected subtotal value %q", rows[4][1])
	}
}

func TestWriteWorkbookNoTotalsRow(t *testing.T) {
	rs := domain.ResultSet{
		Rows: []domain.Row{
			{Kind: domain.RowDetail, Values: map[string]any{"status": "pending", "total": 1.0}},
		},
	}

	var buf bytes.Buffer
	if err := WriteWorkbook(&buf, "Orders", exportColumns(), rs); err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	rows := readSheet(t, &buf)
	if len(rows) != 2 {
		t.Fatalf("expected header and one data row, got %d rows", len(rows))
	}
}
