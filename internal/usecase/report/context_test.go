package report

import (
	"strings"
	"testing"

	"github.com/futig/risk-report-backend/internal/entity"
	"github.com/stretchr/testify/assert"
)

func TestSummarizeTemplate(t *testing.T) {
	t.Parallel()

	template := "# 质量风险评估报告\n说明文字不保留\n## 1. 评估范围\n一、风险识别\n第二章 控制措施\n正文"
	assert.Equal(t, "#质量风险评估报告\n## 1.评估范围\n一、风险识别\n第二章控制措施", summarizeTemplate(template, 1200))

	plain := strings.Repeat("无标题的模板内容", 200)
	got := summarizeTemplate(plain, 1200)
	assert.Equal(t, 1200, len([]rune(got)))

	assert.Empty(t, summarizeTemplate("", 1200))
	assert.Empty(t, summarizeTemplate("\n\n", 1200))
}

func TestFormatEvidence(t *testing.T) {
	t.Parallel()

	name := "SOP-001.pdf"
	chunks := []entity.EvidenceChunk{
		{Chunk: entity.Chunk{Content: "温湿度每小时记录一次", Filename: &name}, Score: 0.91},
		{Chunk: entity.Chunk{Content: strings.Repeat("长", 500)}, Score: 0.5},
	}

	got := formatEvidence(chunks, 100)
	assert.Equal(t, "[1] 来源：SOP-001.pdf（相关度 0.91）\n温湿度每小时记录一次", got)

	assert.Equal(t, noEvidence, formatEvidence(nil, 100))
	assert.Len(t, []rune(formatEvidence(chunks[1:], 50)), 50)
}

func TestRetrievalQuery(t *testing.T) {
	t.Parallel()

	in := &entity.ReportInput{Title: " 标题 ", Scope: "范围", Objective: "目标"}
	assert.Equal(t, "标题\n范围\n目标", retrievalQuery(in))
}
