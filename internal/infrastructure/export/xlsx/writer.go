package xlsx

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/craigoj/homestead-snap-report-sub000/internal/core/domain"
)

const SheetName = "Extractions"

var headers = []string{
	"Extraction ID",
	"Created At",
	"Review Status",
	"Provider",
	"Confidence",
	"Title",
	"Brand",
	"Model",
	"Serial Number",
	"Category",
	"Estimated Value",
	"Description",
	"Image",
}

// Writer renders extraction records into a single-sheet workbook. Reviewer corrections
// take precedence over the extracted values.
type Writer struct{}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) WriteExtractions(records []domain.ExtractionRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}
	activeIndex, _ := f.GetSheetIndex(SheetName)
	f.SetActiveSheet(activeIndex)

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(SheetName, cell, h)
	}

	row := 2
	for _, r := range records {
		fields := r.Fields()
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(SheetName, cell, v)
		}

		write(1, r.ID)
		write(2, r.CreatedAt.UTC().Format("2006-01-02 15:04:05"))
		write(3, string(r.ReviewStatus))
		write(4, string(r.Result.Provider))
		write(5, r.Result.Confidence)
		write(6, fields.Title)
		write(7, fields.Brand)
		write(8, fields.Model)
		write(9, fields.SerialNumber)
		write(10, string(fields.Category))
		write(11, fields.EstimatedValue)
		write(12, truncate(fields.Description, 200))
		write(13, imageColumn(r))
		row++
	}

	_ = f.SetColWidth(SheetName, "A", "A", 38)
	_ = f.SetColWidth(SheetName, "B", "B", 20)
	_ = f.SetColWidth(SheetName, "C", "E", 14)
	_ = f.SetColWidth(SheetName, "F", "I", 24)
	_ = f.SetColWidth(SheetName, "J", "K", 16)
	_ = f.SetColWidth(SheetName, "L", "L", 48)
	_ = f.SetColWidth(SheetName, "M", "M", 40)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func imageColumn(r domain.ExtractionRecord) string {
	if r.ImageKey != "" {
		return r.ImageKey
	}
	return r.ImageRef
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if n <= 0 || len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
