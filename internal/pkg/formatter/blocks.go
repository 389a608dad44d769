package formatter

import (
	"strings"
)

type blockKind int

const (
	blockParagraph blockKind = iota
	blockHeading
	blockListItem
	blockTable
)

// block is one layout unit of a rendered report
type block struct {
	kind  blockKind
	level int
	text  string
	rows  [][]string
}

var inlineMarkup = strings.NewReplacer("**", "", "__", "", "`", "")

// parseBlocks splits report markdown into headings, list items, tables and paragraphs.
// Consecutive text lines form one paragraph, inline emphasis is dropped.
func parseBlocks(markdown string) []block {
	var blocks []block
	var para []string

	flush := func() {
		if len(para) > 0 {
			blocks = append(blocks, block{kind: blockParagraph, text: strings.Join(para, " ")})
			para = nil
		}
	}

	for _, raw := range strings.Split(strings.ReplaceAll(markdown, "\r\n", "\n"), "\n") {
		line := strings.TrimSpace(raw)

		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "#"):
			flush()
			level := len(line) - len(strings.TrimLeft(line, "#"))
			blocks = append(blocks, block{
				kind:  blockHeading,
				level: min(level, 3),
				text:  inlineMarkup.Replace(strings.TrimSpace(line[level:])),
			})
		case strings.HasPrefix(line, "|"):
			flush()
			cells := tableCells(line)
			if isSeparatorRow(cells) {
				continue
			}
			if n := len(blocks); n > 0 && blocks[n-1].kind == blockTable {
				blocks[n-1].rows = append(blocks[n-1].rows, cells)
			} else {
				blocks = append(blocks, block{kind: blockTable, rows: [][]string{cells}})
			}
		case strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* "):
			flush()
			blocks = append(blocks, block{kind: blockListItem, text: inlineMarkup.Replace(line[2:])})
		default:
			para = append(para, inlineMarkup.Replace(line))
		}
	}
	flush()

	return blocks
}

func tableCells(line string) []string {
	line = strings.TrimSuffix(strings.TrimPrefix(line, "|"), "|")
	parts := strings.Split(line, "|")
	cells := make([]string, len(parts))
	for i, p := range parts {
		cells[i] = inlineMarkup.Replace(strings.TrimSpace(p))
	}
	return cells
}

func isSeparatorRow(cells []string) bool {
	for _, c := range cells {
		if strings.Trim(c, "-: ") != "" || c == "" {
			return false
		}
	}
	return true
}

func columns(rows [][]string) int {
	n := 0
	for _, r := range rows {
		n = max(n, len(r))
	}
	return n
}
