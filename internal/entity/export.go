package entity

// ExportFormat is a downloadable rendition of a report
type ExportFormat string

const (
	FormatMarkdown ExportFormat = "markdown"
	FormatDOCX     ExportFormat = "docx"
	FormatPDF      ExportFormat = "pdf"
)

func (f ExportFormat) IsValid() bool {
	switch f {
	case FormatMarkdown, FormatDOCX, FormatPDF:
		return true
	default:
		return false
	}
}

// ExportRequest is the body of a report export
type ExportRequest struct {
	Title    string `json:"title"`
	Markdown string `json:"markdown"`
}
