package formatter

import (
	"bytes"
	"fmt"

	"github.com/unidoc/unioffice/color"
	"github.com/unidoc/unioffice/document"
	"github.com/unidoc/unioffice/measurement"
	"github.com/unidoc/unioffice/schema/soo/wml"
)

const (
	docxContentType   = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	docxFileExtension = ".docx"
)

type DOCXFormatter struct{}

func NewDOCXFormatter() *DOCXFormatter {
	return &DOCXFormatter{}
}

func (mf *DOCXFormatter) Format(title, markdown string) ([]byte, error) {
	doc := document.New()
	defer doc.Close()

	blocks := parseBlocks(markdown)
	if len(blocks) == 0 || blocks[0].kind != blockHeading || blocks[0].level != 1 {
		titlePar := doc.AddParagraph()
		titlePar.SetStyle("Title")
		titlePar.AddRun().AddText(titleOrDefault(title))
	}

	for _, b := range blocks {
		switch b.kind {
		case blockHeading:
			par := doc.AddParagraph()
			par.SetStyle(fmt.Sprintf("Heading%d", b.level))
			par.AddRun().AddText(b.text)
		case blockListItem:
			doc.AddParagraph().AddRun().AddText("• " + b.text)
		case blockTable:
			mf.table(doc, b.rows)
			doc.AddParagraph()
		default:
			doc.AddParagraph().AddRun().AddText(b.text)
		}
	}

	var buf bytes.Buffer
	if err := doc.Save(&buf); err != nil {
		return nil, fmt.Errorf("save docx: %w", err)
	}
	return buf.Bytes(), nil
}

// table writes rows as a bordered table, the first row in bold
func (mf *DOCXFormatter) table(doc *document.Document, rows [][]string) {
	table := doc.AddTable()
	table.Properties().SetWidthPercent(100)
	table.Properties().Borders().SetAll(wml.ST_BorderSingle, color.Auto, 1*measurement.Point)

	cols := columns(rows)
	for i, cells := range rows {
		row := table.AddRow()
		for c := 0; c < cols; c++ {
			text := ""
			if c < len(cells) {
				text = cells[c]
			}
			run := row.AddCell().AddParagraph().AddRun()
			run.Properties().SetBold(i == 0)
			run.AddText(text)
		}
	}
}

func (mf *DOCXFormatter) ContentType() string {
	return docxContentType
}

func (mf *DOCXFormatter) FileExtension() string {
	return docxFileExtension
}
