package formatter

import (
	"fmt"
	"os"

	"github.com/futig/risk-report-backend/internal/entity"
)

const defaultTitle = "质量风险评估报告"

// Formatter renders a report's markdown into a downloadable document
type Formatter interface {
	Format(title, markdown string) ([]byte, error)
	ContentType() string
	FileExtension() string
}

type Factory struct {
	fontPath string
}

// NewFactory returns a factory whose PDF output uses the TTF font at fontPath when it exists.
func NewFactory(fontPath string) *Factory {
	return &Factory{fontPath: fontPath}
}

func (f *Factory) Create(format entity.ExportFormat) (Formatter, error) {
	switch format {
	case entity.FormatMarkdown:
		return NewMarkdownFormatter(), nil
	case entity.FormatDOCX:
		return NewDOCXFormatter(), nil
	case entity.FormatPDF:
		return NewPDFFormatter(f.resolveFont()), nil
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", entity.ErrInvalidParameter, format)
	}
}

func (f *Factory) resolveFont() string {
	if f.fontPath == "" {
		return ""
	}
	if _, err := os.Stat(f.fontPath); err != nil {
		return ""
	}
	return f.fontPath
}

func titleOrDefault(title string) string {
	if title == "" {
		return defaultTitle
	}
	return title
}
