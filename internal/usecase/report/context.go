package report

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/futig/risk-report-backend/internal/entity"
	"github.com/futig/risk-report-backend/internal/pkg/textnorm"
)

const noEvidence = "（无）"

var headingPattern = regexp.MustCompile(
	`^(#{1,6}|\d+(\.\d+)*[.、)）\s]|[一二三四五六七八九十]+[、.]|第[一二三四五六七八九十百\d]+[章节部分条])`,
)

// summarizeTemplate keeps the heading and numbered-section lines of a report template.
// A template without any is cut to its first maxLen characters.
func summarizeTemplate(content string, maxLen int) string {
	content = textnorm.Normalize(content)
	if content == "" {
		return ""
	}

	headings := make([]string, 0)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && headingPattern.MatchString(line) {
			headings = append(headings, line)
		}
	}

	if len(headings) == 0 {
		return truncateRunes(content, maxLen)
	}
	return truncateRunes(strings.Join(headings, "\n"), maxLen)
}

// retrievalQuery is the text evidence is ranked against.
func retrievalQuery(in *entity.ReportInput) string {
	parts := make([]string, 0, 4)
	for _, s := range []string{in.Title, in.Scope, in.Background, in.Objective} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

// formatEvidence renders chunks as numbered blocks until budget characters are used.
func formatEvidence(chunks []entity.EvidenceChunk, budget int) string {
	if len(chunks) == 0 {
		return noEvidence
	}

	var b strings.Builder
	used := 0
	for i, c := range chunks {
		source := "未命名文件"
		if c.Filename != nil && *c.Filename != "" {
			source = *c.Filename
		}
		block := fmt.Sprintf("[%d] 来源：%s（相关度 %.2f）\n%s\n\n", i+1, source, c.Score, c.Content)

		n := utf8.RuneCountInString(block)
		if used+n > budget {
			if used == 0 {
				b.WriteString(truncateRunes(block, budget))
			}
			break
		}
		b.WriteString(block)
		used += n
	}

	return strings.TrimSpace(b.String())
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

func countSources(sources []entity.SourceText, category entity.Category) int {
	n := 0
	for _, s := range sources {
		if s.Category == category {
			n++
		}
	}
	return n
}
