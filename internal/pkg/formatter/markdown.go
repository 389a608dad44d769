package formatter

import (
	"bytes"
	"fmt"
	"strings"
)

const (
	markdownContentType   = "text/markdown; charset=utf-8"
	markdownFileExtension = ".md"
)

type MarkdownFormatter struct{}

func NewMarkdownFormatter() *MarkdownFormatter {
	return &MarkdownFormatter{}
}

// Format returns the markdown as is, with a title heading when the report has none.
func (mf *MarkdownFormatter) Format(title, markdown string) ([]byte, error) {
	markdown = strings.TrimSpace(markdown)

	var buf bytes.Buffer
	if !strings.HasPrefix(markdown, "# ") {
		fmt.Fprintf(&buf, "# %s\n\n", titleOrDefault(title))
	}
	buf.WriteString(markdown)
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

func (mf *MarkdownFormatter) ContentType() string {
	return markdownContentType
}

func (mf *MarkdownFormatter) FileExtension() string {
	return markdownFileExtension
}
