package notify

import (
	"fmt"
	"strings"

	"github.com/futig/risk-report-backend/internal/entity"
)

const (
	MsgReportDone = `✅ 风险评估报告已生成

📄 %s
🆔 %s

风险项：%d（高 %d / 中 %d / 低 %d / 极低 %d）
需采取措施：%d
Tokens：%d`

	MsgReportFailed = `❌ 风险评估报告生成失败

📄 %s
🆔 %s

原因：%s`
)

const maxReasonRunes = 300

// RenderDone summarises a finished report.
func RenderDone(runID, title string, report *entity.GeneratedReport) string {
	counts := make(map[entity.RiskLevel]int)
	needActions := 0
	for _, item := range report.JSON.ScoredItems {
		counts[item.Level]++
		if item.NeedActions {
			needActions++
		}
	}

	return fmt.Sprintf(MsgReportDone,
		displayTitle(title), runID,
		len(report.JSON.ScoredItems),
		counts[entity.RiskLevelHigh], counts[entity.RiskLevelMedium],
		counts[entity.RiskLevelLow], counts[entity.RiskLevelLowest],
		needActions,
		report.Usage.TotalTokens,
	)
}

// RenderFailed reports a failed run with a shortened reason.
func RenderFailed(runID, title, reason string) string {
	r := []rune(strings.TrimSpace(reason))
	if len(r) > maxReasonRunes {
		reason = string(r[:maxReasonRunes]) + "…"
	}
	return fmt.Sprintf(MsgReportFailed, displayTitle(title), runID, reason)
}

func displayTitle(title string) string {
	if strings.TrimSpace(title) == "" {
		return "未命名报告"
	}
	return title
}
