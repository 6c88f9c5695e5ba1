package history

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/doclatex/doclatex/internal/models"
)

const exportSheet = "History"

// ExportXLSX writes records as a single-sheet workbook.
func ExportXLSX(w io.Writer, records []models.HistoryRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headers := []string{"Time", "File", "Status", "Job ID", "Template"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(exportSheet, cell, h); err != nil {
			return err
		}
	}

	for i, r := range records {
		row := i + 2
		values := []interface{}{
			r.Timestamp.Local().Format("2006-01-02 15:04:05"),
			r.OriginalFileName,
			string(r.Status),
			r.JobID,
			r.TemplateID,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(exportSheet, cell, v); err != nil {
				return err
			}
		}
	}

	_ = f.SetColWidth(exportSheet, "A", "A", 20)
	_ = f.SetColWidth(exportSheet, "B", "B", 40)
	_ = f.SetColWidth(exportSheet, "D", "D", 36)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
