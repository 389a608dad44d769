package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/futig/risk-report-backend/internal/entity"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
)

const (
	mockDeltaRunes    = 16
	mockProcessMarker = "工艺步骤"
)

var (
	mockRiskIDPattern = regexp.MustCompile(`"risk_id":\s*"([^"]+)"`)
	mockStepPattern   = regexp.MustCompile(`(?m)^- id: (.+?) \| name: (.+)$`)

	// process-flow prompts without explicit steps get these
	mockDefaultSteps = []string{"物料接收", "生产操作", "包装放行"}

	// S/P/D triples cycled over risk items so every risk level shows up
	mockScores = [][3]int{{9, 6, 3}, {3, 3, 3}, {6, 3, 3}, {1, 3, 3}, {3, 6, 6}}
)

// MockConnector answers every stage with schema-valid output derived from the prompt.
type MockConnector struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewMockConnector(logger *zap.Logger) *MockConnector {
	return &MockConnector{
		logger: logger,
		now:    time.Now,
	}
}

func (m *MockConnector) ChatJSON(ctx context.Context, req *entity.ChatRequest) (*entity.ChatResult, error) {
	ctxzap.Info(ctx, "[MOCK] JSON completion", zap.String("stage", string(req.Stage)))

	content, err := m.respond(req)
	if err != nil {
		return nil, err
	}

	return &entity.ChatResult{
		Content: content,
		JSON:    json.RawMessage(content),
		Usage:   mockUsage(req, content),
	}, nil
}

func (m *MockConnector) ChatJSONStream(ctx context.Context, req *entity.ChatRequest, h entity.StreamHandler) (*entity.ChatResult, error) {
	ctxzap.Info(ctx, "[MOCK] streaming JSON completion", zap.String("stage", string(req.Stage)))

	content, err := m.respond(req)
	if err != nil {
		return nil, err
	}

	usage, err := m.stream(ctx, req, content, h)
	if err != nil {
		return nil, err
	}

	return &entity.ChatResult{Content: content, JSON: json.RawMessage(content), Usage: usage}, nil
}

func (m *MockConnector) ChatTextStream(ctx context.Context, req *entity.ChatRequest, h entity.StreamHandler) (*entity.ChatResult, error) {
	ctxzap.Info(ctx, "[MOCK] streaming text completion", zap.String("stage", string(req.Stage)))

	content, err := m.respond(req)
	if err != nil {
		return nil, err
	}

	usage, err := m.stream(ctx, req, content, h)
	if err != nil {
		return nil, err
	}

	return &entity.ChatResult{Content: content, Usage: usage}, nil
}

func (m *MockConnector) stream(ctx context.Context, req *entity.ChatRequest, content string, h entity.StreamHandler) (*entity.TokenUsage, error) {
	rest := content
	for rest != "" {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", entity.ErrCancelled, err)
		}

		n, i := 0, 0
		for i < len(rest) && n < mockDeltaRunes {
			_, size := utf8.DecodeRuneInString(rest[i:])
			i += size
			n++
		}
		h.Delta(rest[:i])
		rest = rest[i:]
	}

	usage := mockUsage(req, content)
	h.Usage(*usage)
	return usage, nil
}

func (m *MockConnector) respond(req *entity.ChatRequest) (string, error) {
	prompt := promptText(req)

	var doc any
	switch req.Stage {
	case entity.StageHazardIdentification:
		doc = map[string]any{"risk_items": m.hazards(prompt)}
	case entity.StageFMEAScoring:
		scores := make([]map[string]any, 0)
		for i, id := range riskIDs(prompt) {
			spd := mockScores[i%len(mockScores)]
			scores = append(scores, map[string]any{
				"risk_id":  id,
				"s":        spd[0],
				"p":        spd[1],
				"d":        spd[2],
				"s_reason": "后果影响产品质量与患者安全",
				"p_reason": "历史记录显示存在发生可能",
				"d_reason": "现有检查可部分发现",
			})
		}
		doc = map[string]any{"scores": scores}
	case entity.StageActionGeneration:
		measures := make([]map[string]any, 0)
		for _, id := range riskIDs(prompt) {
			measures = append(measures, map[string]any{
				"risk_id": id,
				"actions": []map[string]string{
					{"action": "修订标准操作规程并组织培训", "type": "prevent", "expected_effect": "降低发生概率"},
					{"action": "增加过程中间控制检查", "type": "detect", "expected_effect": "提高可检测性"},
				},
			})
		}
		doc = map[string]any{"measures": measures}
	case entity.StageControlPlan:
		date := m.now().AddDate(0, 1, 0).Format(time.DateOnly)
		plan := make([]map[string]string, 0)
		for _, id := range riskIDs(prompt) {
			plan = append(plan, map[string]string{
				"risk_id":      id,
				"owner":        "质量保证部",
				"planned_date": date,
				"verification": "复核批记录与偏差趋势",
			})
		}
		doc = map[string]any{"plan": plan}
	case entity.StageRendering:
		return m.markdown(prompt), nil
	default:
		return "", fmt.Errorf("%w: mock has no answer for stage %q", entity.ErrInvalidParameter, req.Stage)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (m *MockConnector) hazards(prompt string) []map[string]any {
	items := make([]map[string]any, 0)

	steps := mockStepPattern.FindAllStringSubmatch(prompt, -1)
	if len(steps) > 0 {
		for i, step := range steps {
			items = append(items, processItem(i, strings.TrimSpace(step[2]), strings.TrimSpace(step[1])))
		}
		return items
	}

	if strings.Contains(prompt, mockProcessMarker) {
		for i, name := range mockDefaultSteps {
			items = append(items, processItem(i, name, nil))
		}
		return items
	}

	for i, factor := range entity.FiveFactors {
		items = append(items, map[string]any{
			"risk_id":        fmt.Sprintf("R%d", i+1),
			"dimension_type": string(entity.DimensionFiveFactors),
			"dimension":      factor,
			"dimension_id":   nil,
			"failure_mode":   factor + "相关的失效",
			"consequence":    "导致批次偏差",
		})
	}
	return items
}

func processItem(i int, name string, id any) map[string]any {
	return map[string]any{
		"risk_id":        fmt.Sprintf("R%d", i+1),
		"dimension_type": string(entity.DimensionProcessFlow),
		"dimension":      name,
		"dimension_id":   id,
		"failure_mode":   "操作参数偏离规定范围",
		"consequence":    "产品质量不符合放行标准",
	}
}

func (m *MockConnector) markdown(prompt string) string {
	var b strings.Builder
	b.WriteString("# 质量风险评估报告\n\n")
	b.WriteString("## 1. 评估范围\n\n本报告基于提供的资料完成风险识别与评价。\n\n")
	b.WriteString("## 2. FMEA 评价\n\n| 风险编号 | 结论 |\n| --- | --- |\n")
	for _, id := range riskIDs(prompt) {
		fmt.Fprintf(&b, "| %s | 已评价 |\n", id)
	}
	b.WriteString("\n## 3. 结论\n\n风险整体可控，需按控制计划落实措施。\n")
	return b.String()
}

func promptText(req *entity.ChatRequest) string {
	var b strings.Builder
	for _, msg := range req.Messages {
		if msg.Role == "user" {
			b.WriteString(msg.Content)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func riskIDs(prompt string) []string {
	seen := make(map[string]struct{})
	ids := make([]string, 0)
	for _, match := range mockRiskIDPattern.FindAllStringSubmatch(prompt, -1) {
		if _, ok := seen[match[1]]; ok {
			continue
		}
		seen[match[1]] = struct{}{}
		ids = append(ids, match[1])
	}
	return ids
}

func mockUsage(req *entity.ChatRequest, content string) *entity.TokenUsage {
	prompt := 0
	for _, msg := range req.Messages {
		prompt += utf8.RuneCountInString(msg.Content) / 2
	}
	completion := utf8.RuneCountInString(content) / 2

	return &entity.TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}
