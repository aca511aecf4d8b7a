// Package xlsx adapts the excelize library to the export.SpreadsheetEncoder
// interface.
package xlsx

import (
	"fmt"
	"io"

	"github.com/tablekit/tablekit/export"
	"github.com/xuri/excelize/v2"
)

// Encoder writes a Dataset as an .xlsx workbook with one sheet.
type Encoder struct {
	// SheetName defaults to "Data".
	SheetName string
}

// Encode writes the workbook: bold header row, one row per record.
func (e *Encoder) Encode(w io.Writer, ds *export.Dataset) error {
	sheet := e.SheetName
	if sheet == "" {
		sheet = "Data"
	}

	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil && sheet != "Sheet1" {
		// The default sheet may already be gone; not fatal.
		_ = err
	}

	headers := make([]any, len(ds.Headers))
	for i, h := range ds.Headers {
		headers[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return fmt.Errorf("write header row: %w", err)
	}

	styleID, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil && len(ds.Headers) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(ds.Headers), 1)
		_ = f.SetCellStyle(sheet, "A1", last, styleID)
	}

	for i := range ds.Rows {
		rec := ds.Record(i)
		row := make([]any, len(rec))
		for j, v := range rec {
			row[j] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
