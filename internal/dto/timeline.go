package dto

// TimelineExportFormat selects the export renderer.
type TimelineExportFormat string

const (
	TimelineExportPDF TimelineExportFormat = "pdf"
	TimelineExportCSV TimelineExportFormat = "csv"
)

// TimelineExport is a rendered timeline file.
type TimelineExport struct {
	FileName    string
	ContentType string
	Data        []byte
}
