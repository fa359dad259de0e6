package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	alarms "hmi-core/internal/alarms/domain"
)

// BuildHistoryPDF renders a minimal PDF for alarm history rows.
func BuildHistoryPDF(entries []alarms.HistoryEntry, generatedAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Alarm History")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generatedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Entries: %d", len(entries)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(40, 6, "Timestamp", "1", 0, "C", false, 0, "")
	pdf.CellFormat(22, 6, "Status", "1", 0, "C", false, 0, "")
	pdf.CellFormat(34, 6, "Identifier", "1", 0, "C", false, 0, "")
	pdf.CellFormat(52, 6, "Text Key", "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 6, "Priority", "1", 0, "C", false, 0, "")
	pdf.CellFormat(22, 6, "Raw", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, entry := range entries {
		pdf.CellFormat(40, 6, entry.OccurredAt.Format(time.RFC3339), "1", 0, "L", false, 0, "")
		pdf.CellFormat(22, 6, entry.Status, "1", 0, "C", false, 0, "")
		pdf.CellFormat(34, 6, entry.Identifier, "1", 0, "L", false, 0, "")
		pdf.CellFormat(52, 6, entry.TextKey, "1", 0, "L", false, 0, "")
		pdf.CellFormat(20, 6, string(entry.Priority), "1", 0, "C", false, 0, "")
		pdf.CellFormat(22, 6, fmt.Sprintf("%d", entry.RawValue), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildHistoryXLSX renders a minimal XLSX for alarm history rows.
func BuildHistoryXLSX(entries []alarms.HistoryEntry, generatedAt time.Time) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "history"
	f.SetSheetName("Sheet1", sheet)

	_ = f.SetCellValue(sheet, "A1", "Alarm History")
	_ = f.SetCellValue(sheet, "A2", "Generated")
	_ = f.SetCellValue(sheet, "B2", generatedAt.Format(time.RFC3339))

	_ = f.SetCellValue(sheet, "A4", "Timestamp")
	_ = f.SetCellValue(sheet, "B4", "Status")
	_ = f.SetCellValue(sheet, "C4", "Identifier")
	_ = f.SetCellValue(sheet, "D4", "Text Key")
	_ = f.SetCellValue(sheet, "E4", "Priority")
	_ = f.SetCellValue(sheet, "F4", "Raw Value")
	for i, entry := range entries {
		row := i + 5
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), entry.OccurredAt.Format(time.RFC3339))
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), entry.Status)
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", row), entry.Identifier)
		_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", row), entry.TextKey)
		_ = f.SetCellValue(sheet, fmt.Sprintf("E%d", row), string(entry.Priority))
		_ = f.SetCellValue(sheet, fmt.Sprintf("F%d", row), entry.RawValue)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
