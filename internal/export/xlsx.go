// Package export renders executed reports as spreadsheet workbooks.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/reportql/internal/domain"
)

const sheetName = "Report"

// WriteWorkbook renders the full result set as an xlsx workbook: a bold
// header row of column display names, one sheet row per result row, and a
// grand totals row at the bottom when the report aggregates anything.
// Numeric cells keep their numeric type so spreadsheet formulas work on
// them; everything else uses the display formatting.
func WriteWorkbook(w io.Writer, reportName string, columns []domain.ReportColumn, rs domain.ResultSet) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	groupStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"EEEEEE"}},
	})
	if err != nil {
		return fmt.Errorf("create group style: %w", err)
	}

	for i, col := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return fmt.Errorf("header cell: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, col.HeaderLabel()); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("style header: %w", err)
		}
	}

	sheetRow := 2
	for _, row := range rs.Rows {
		for i, col := range columns {
			cell, err := excelize.CoordinatesToCellName(i+1, sheetRow)
			if err != nil {
				return fmt.Errorf("data cell: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, cellValue(row, col)); err != nil {
				return fmt.Errorf("write cell: %w", err)
			}
			if row.Kind != domain.RowDetail {
				if err := f.SetCellStyle(sheetName, cell, cell, groupStyle); err != nil {
					return fmt.Errorf("style cell: %w", err)
				}
			}
		}
		sheetRow++
	}

	if len(rs.GrandTotals) > 0 {
		for i, col := range columns {
			cell, err := excelize.CoordinatesToCellName(i+1, sheetRow)
			if err != nil {
				return fmt.Errorf("totals cell: %w", err)
			}
			var value any
			if i == 0 {
				value = "Grand Total"
			}
			if v, ok := rs.GrandTotals[col.Key()]; ok {
				value = exportValue(v)
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return fmt.Errorf("write totals: %w", err)
			}
			if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
				return fmt.Errorf("style totals: %w", err)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook %s: %w", reportName, err)
	}
	return nil
}

// cellValue picks the raw value for numeric cells and the formatted string
// for everything else. Group rows render their key with a record count.
func cellValue(row domain.Row, col domain.ReportColumn) any {
	v, ok := row.Values[col.Key()]
	if !ok {
		return nil
	}
	if row.Kind == domain.RowGroup {
		return fmt.Sprintf("%v (%d records)", v, row.RecordCount)
	}
	return exportValue(v)
}

func exportValue(v any) any {
	switch v.(type) {
	case float64, float32, int, int32, int64:
		return v
	case nil:
		return nil
	}
	return fmt.Sprintf("%v", v)
}
