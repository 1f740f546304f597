package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pageWidth   = 277.0 // A4 landscape minus margins
	lineHeight  = 5.0
	maxCellRune = 400
)

// PDFExporter renders datasets into a tabular landscape PDF.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// ContentType reports the MIME type of rendered output.
func (e *PDFExporter) ContentType() string { return "application/pdf" }

// Extension reports the file extension of rendered output.
func (e *PDFExporter) Extension() string { return "pdf" }

// Render creates a PDF document with a title block and a wrapped table body.
func (e *PDFExporter) Render(data Dataset) ([]byte, error) {
	if err := data.validate(); err != nil {
		return nil, err
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 12)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	if data.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 9, tr(data.Title), "", 1, "L", false, 0, "")
	}
	if data.Subtitle != "" {
		pdf.SetFont("Arial", "", 9)
		pdf.CellFormat(0, 6, tr(data.Subtitle), "", 1, "L", false, 0, "")
	}
	pdf.Ln(3)

	widths := columnWidths(data.Columns)

	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for i, col := range data.Columns {
		pdf.CellFormat(widths[i], 7, tr(col.Header), "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	for _, row := range data.Rows {
		lines := 1
		split := make([][][]byte, len(row))
		for i, cell := range row {
			split[i] = pdf.SplitLines([]byte(tr(truncate(cell))), widths[i]-2)
			if len(split[i]) > lines {
				lines = len(split[i])
			}
		}
		height := float64(lines) * lineHeight
		_, pageHeight := pdf.GetPageSize()
		_, _, _, bottom := pdf.GetMargins()
		if pdf.GetY()+height > pageHeight-bottom {
			pdf.AddPage()
		}

		x, y := pdf.GetXY()
		for i := range row {
			pdf.Rect(x, y, widths[i], height, "D")
			for j, line := range split[i] {
				pdf.SetXY(x+1, y+float64(j)*lineHeight)
				pdf.CellFormat(widths[i]-2, lineHeight, string(line), "", 0, "L", false, 0, "")
			}
			x += widths[i]
		}
		pdf.SetXY(10, y+height)
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func columnWidths(cols []Column) []float64 {
	total := 0.0
	for _, col := range cols {
		if col.Width > 0 {
			total += col.Width
		} else {
			total++
		}
	}
	widths := make([]float64, len(cols))
	for i, col := range cols {
		w := col.Width
		if w <= 0 {
			w = 1
		}
		widths[i] = pageWidth * w / total
	}
	return widths
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxCellRune {
		return s
	}
	return string(r[:maxCellRune]) + "..."
}
