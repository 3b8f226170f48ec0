// Package export renders stored inventory and documents as CSV or XLSX.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
	"github.com/zulandar/instantory/internal/models"
)

// Format is an export file format.
type Format string

const (
	CSV  Format = "csv"
	XLSX Format = "xlsx"
)

// ParseFormat maps a query value to a Format. Empty means CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", CSV:
		return CSV, nil
	case XLSX:
		return XLSX, nil
	}
	return "", fmt.Errorf("export: unknown format %q", s)
}

// ContentType is the MIME type served for f.
func (f Format) ContentType() string {
	if f == XLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// table is a header row plus data rows, shared by both writers.
type table struct {
	sheet   string
	headers []string
	widths  []float64
	rows    [][]any
}

var inventoryHeaders = []string{
	"ID", "Name", "Description", "Image URL", "Category", "Material", "Color",
	"Dimensions", "Origin Source", "Import Cost", "Retail Price", "Key Tags", "Created At",
}

var documentHeaders = []string{
	"ID", "Title", "Author", "Journal/Publisher", "Publication Year", "Page Length",
	"Thesis", "Issue", "Summary", "Category", "Field", "Hashtags", "Influenced By",
	"File Path", "File Type", "Last Analyzed",
}

func inventoryTable(items []models.InventoryItem) table {
	t := table{
		sheet:   "Inventory",
		headers: inventoryHeaders,
		widths:  []float64{8, 28, 48, 60, 20, 18, 14, 18, 20, 12, 12, 36, 20},
	}
	for _, it := range items {
		t.rows = append(t.rows, []any{
			it.ID, it.Name, it.Description, string(it.ImageURL), it.Category, it.Material, it.Color,
			it.Dimensions, it.OriginSource, it.ImportCost, it.RetailPrice, it.KeyTags,
			formatTime(it.CreatedAt),
		})
	}
	return t
}

func documentTable(docs []models.Document) table {
	t := table{
		sheet:   "Documents",
		headers: documentHeaders,
		widths:  []float64{8, 40, 28, 28, 10, 10, 48, 36, 60, 20, 20, 36, 36, 60, 8, 20},
	}
	for _, d := range docs {
		var publisher, year any = "", ""
		if d.JournalPublisher != nil {
			publisher = *d.JournalPublisher
		}
		if d.PublicationYear != nil {
			year = *d.PublicationYear
		}
		t.rows = append(t.rows, []any{
			d.ID, d.Title, d.Author, publisher, year, d.PageLength,
			d.Thesis, d.Issue, d.Summary, d.Category, d.Field, d.Hashtags, d.InfluencedBy,
			string(d.FilePath), d.FileType, formatTime(d.LastAnalyzed),
		})
	}
	return t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// InventoryCSV writes items as CSV with a header row.
func InventoryCSV(w io.Writer, items []models.InventoryItem) error {
	return writeCSV(w, inventoryTable(items))
}

// DocumentsCSV writes docs as CSV with a header row.
func DocumentsCSV(w io.Writer, docs []models.Document) error {
	return writeCSV(w, documentTable(docs))
}

// InventoryXLSX writes items as a single-sheet workbook.
func InventoryXLSX(w io.Writer, items []models.InventoryItem) error {
	return writeXLSX(w, inventoryTable(items))
}

// DocumentsXLSX writes docs as a single-sheet workbook.
func DocumentsXLSX(w io.Writer, docs []models.Document) error {
	return writeXLSX(w, documentTable(docs))
}

// Inventory writes items in format f.
func Inventory(w io.Writer, f Format, items []models.InventoryItem) error {
	if f == XLSX {
		return InventoryXLSX(w, items)
	}
	return InventoryCSV(w, items)
}

// Documents writes docs in format f.
func Documents(w io.Writer, f Format, docs []models.Document) error {
	if f == XLSX {
		return DocumentsXLSX(w, docs)
	}
	return DocumentsCSV(w, docs)
}

func writeCSV(w io.Writer, t table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.headers); err != nil {
		return fmt.Errorf("export: csv header: %w", err)
	}
	rec := make([]string, len(t.headers))
	for _, row := range t.rows {
		for i, v := range row {
			rec[i] = csvValue(v)
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("export: csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("export: csv flush: %w", err)
	}
	return nil
}

func csvValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', 2, 64)
	default:
		return fmt.Sprint(x)
	}
}

func writeXLSX(w io.Writer, t table) error {
	f := excelize.NewFile()
	defer f.Close()

	// Rename the default sheet instead of adding a second one.
	if err := f.SetSheetName(f.GetSheetName(0), t.sheet); err != nil {
		return fmt.Errorf("export: xlsx sheet: %w", err)
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("export: xlsx style: %w", err)
	}

	if err := f.SetSheetRow(t.sheet, "A1", &t.headers); err != nil {
		return fmt.Errorf("export: xlsx header: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(t.headers), 1)
	_ = f.SetCellStyle(t.sheet, "A1", last, style)

	for i, row := range t.rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(t.sheet, cell, &row); err != nil {
			return fmt.Errorf("export: xlsx row %d: %w", i+2, err)
		}
	}

	for i, width := range t.widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(t.sheet, col, col, width)
	}
	_ = f.SetPanes(t.sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("export: xlsx write: %w", err)
	}
	return nil
}
