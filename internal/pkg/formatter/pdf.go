package formatter

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfContentType   = "application/pdf"
	pdfFileExtension = ".pdf"

	// pdfFontName is the family the configured TTF font is registered under
	pdfFontName = "ReportSans"
)

var headingSizes = map[int]float64{1: 18, 2: 15, 3: 13}

type PDFFormatter struct {
	fontPath string
}

// NewPDFFormatter renders with the TTF font at fontPath, or with the core Arial font when
// fontPath is empty. Arial has no CJK glyphs.
func NewPDFFormatter(fontPath string) *PDFFormatter {
	return &PDFFormatter{fontPath: fontPath}
}

func (mf *PDFFormatter) Format(title, markdown string) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	fontName := "Arial"
	if mf.fontPath != "" {
		pdf.AddUTF8Font(pdfFontName, "", mf.fontPath)
		pdf.AddUTF8Font(pdfFontName, "B", mf.fontPath)
		fontName = pdfFontName
	}

	blocks := parseBlocks(markdown)
	if len(blocks) == 0 || blocks[0].kind != blockHeading || blocks[0].level != 1 {
		blocks = append([]block{{kind: blockHeading, level: 1, text: titleOrDefault(title)}}, blocks...)
	}

	for _, b := range blocks {
		switch b.kind {
		case blockHeading:
			pdf.SetFont(fontName, "B", headingSizes[b.level])
			pdf.Ln(2)
			pdf.MultiCell(0, headingSizes[b.level]*0.55, b.text, "", "L", false)
			pdf.Ln(2)
		case blockTable:
			pdf.SetFont(fontName, "", 9)
			mf.table(pdf, b.rows, 5)
			pdf.Ln(3)
		case blockListItem:
			pdf.SetFont(fontName, "", 11)
			pdf.MultiCell(0, 6, "• "+b.text, "", "L", false)
		default:
			pdf.SetFont(fontName, "", 11)
			pdf.MultiCell(0, 6, b.text, "", "L", false)
			pdf.Ln(2)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// table draws rows as a grid of equal-width columns. Rows grow to fit wrapped cells
// and never split across pages.
func (mf *PDFFormatter) table(pdf *gofpdf.Fpdf, rows [][]string, lineHeight float64) {
	left, _, right, bottom := pdf.GetMargins()
	pageWidth, pageHeight := pdf.GetPageSize()
	cols := columns(rows)
	width := (pageWidth - left - right) / float64(cols)

	for _, cells := range rows {
		height := lineHeight
		for _, text := range cells {
			if h := float64(len(pdf.SplitText(text, width-2))) * lineHeight; h > height {
				height = h
			}
		}
		if pdf.GetY()+height > pageHeight-bottom {
			pdf.AddPage()
		}

		x, y := left, pdf.GetY()
		for c := 0; c < cols; c++ {
			text := ""
			if c < len(cells) {
				text = cells[c]
			}
			cx := x + float64(c)*width
			pdf.Rect(cx, y, width, height, "D")
			pdf.SetXY(cx, y)
			pdf.MultiCell(width, lineHeight, text, "", "L", false)
		}
		pdf.SetXY(x, y+height)
	}
}

func (mf *PDFFormatter) ContentType() string {
	return pdfContentType
}

func (mf *PDFFormatter) FileExtension() string {
	return pdfFileExtension
}
