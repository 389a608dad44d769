package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/futig/risk-report-backend/internal/entity"
	"github.com/futig/risk-report-backend/internal/pkg/jsonx"
	"github.com/futig/risk-report-backend/internal/pkg/validator"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
)

func (r *run) buildContext(ctx context.Context) (string, error) {
	in := r.in
	sources := make([]entity.SourceText, 0)
	for _, s := range in.SourceTexts.All() {
		if strings.TrimSpace(s.Text) != "" {
			sources = append(sources, s)
		}
	}

	wctx := &entity.WorkflowContext{
		Title:                strings.TrimSpace(in.Title),
		Scope:                strings.TrimSpace(in.Scope),
		Background:           strings.TrimSpace(in.Background),
		Objective:            strings.TrimSpace(in.Objective),
		TemplateRequirements: summarizeTemplate(in.TemplateContent, r.uc.cfg.TemplateSummaryLen),
		SOPEvidence:          noEvidence,
		LiteratureEvidence:   noEvidence,
		Meta: entity.RetrievalMeta{
			SOPTextCount:        countSources(sources, entity.CategorySOP),
			LiteratureTextCount: countSources(sources, entity.CategoryLiterature),
		},
	}

	if len(sources) == 0 {
		r.emit(ctx, entity.NewContextStageEvent("未提供参考资料，跳过检索"))
		r.emit(ctx, entity.NewContextEvidenceEvent(nil))
		r.wctx = wctx
		return "未提供参考资料", nil
	}

	mode := "关键词检索"
	if r.embedder != nil {
		mode = "向量检索"
	}
	r.emit(ctx, entity.NewContextStageEvent(fmt.Sprintf("正在检索参考资料（SOP %d 份，文献 %d 份，%s）",
		wctx.Meta.SOPTextCount, wctx.Meta.LiteratureTextCount, mode)))

	res, err := r.uc.retriever.Retrieve(ctx, sources, retrievalQuery(in), r.uc.topK, r.embedder)
	if err != nil {
		return "", err
	}

	if res.Degraded {
		r.emit(ctx, entity.NewContextStageEvent("向量检索失败，已降级为关键词检索："+res.DegradeReason))
	}
	r.emit(ctx, entity.NewContextEvidenceEvent(res.Evidence))

	budget := r.uc.cfg.EvidenceCharsPerRun / 2
	wctx.SOPEvidence = formatEvidence(res.SOP, budget)
	wctx.LiteratureEvidence = formatEvidence(res.Literature, budget)
	wctx.Evidence = res.Evidence
	wctx.Meta.UsedEmbedding = res.UsedEmbedding
	wctx.Meta.Degraded = res.Degraded
	wctx.Meta.EvidenceChunkCount = len(res.Evidence)

	r.wctx = wctx
	return fmt.Sprintf("证据片段 %d 条", len(res.Evidence)), nil
}

func (r *run) identifyHazards(ctx context.Context) (string, error) {
	prompt := PromptHazardFiveFactors
	if r.in.RiskMethod == entity.RiskMethodProcessFlow {
		prompt = PromptHazardProcessFlow
	}

	raw, err := r.callJSON(ctx, entity.StageHazardIdentification, prompt, r.promptInput())
	if err != nil {
		return "", err
	}

	items, err := validator.ParseHazards(raw, r.in.RiskMethod, r.uc.newID)
	if err != nil {
		return "", err
	}

	r.items = items
	return fmt.Sprintf("识别风险项 %d 条", len(items)), nil
}

func (r *run) validateMapping(_ context.Context) (string, error) {
	result, err := validator.ValidateMapping(r.items, r.in.RiskMethod, r.in.ProcessSteps)
	r.mapping = result
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("覆盖维度 %d 个", len(result.DimensionCounts)), nil
}

func (r *run) scoreRisks(ctx context.Context) (string, error) {
	in := r.promptInput()
	in.RiskItemsJSON = toJSON(r.items)

	raw, err := r.callJSON(ctx, entity.StageFMEAScoring, PromptFMEAScoring, in)
	if err != nil {
		return "", err
	}

	rows, err := validator.ParseScores(raw, r.items)
	if err != nil {
		return "", err
	}

	scored := make([]entity.ScoredRiskItem, len(r.items))
	for i, item := range r.items {
		scored[i] = entity.Score(item, rows[i])
	}

	r.override = r.uc.policy.Decide(r.in.Objective)
	if r.override != OverrideNone {
		ctxzap.Info(ctx, "objective overrides need_actions", zap.Stringer("override", r.override))
	}

	r.rows = rows
	r.scored = ApplyOverride(scored, r.override)

	return fmt.Sprintf("需采取措施 %d/%d 条", countNeedActions(r.scored), len(r.scored)), nil
}

func (r *run) generateActions(ctx context.Context) (string, error) {
	needing := make([]entity.ScoredRiskItem, 0)
	for _, item := range r.scored {
		if item.NeedActions {
			needing = append(needing, item)
		}
	}

	if len(needing) == 0 {
		r.measures = []entity.ControlMeasure{}
		r.addUsage(ctx, nil)
		return "无需采取措施，跳过", nil
	}

	in := r.promptInput()
	in.RiskItemsJSON = toJSON(needing)

	raw, err := r.callJSON(ctx, entity.StageActionGeneration, PromptActionGeneration, in)
	if err != nil {
		return "", err
	}

	measures, err := validator.ParseMeasures(raw, r.scored)
	if err != nil {
		return "", err
	}

	r.measures = measures
	return fmt.Sprintf("生成控制措施 %d 项", countActions(measures)), nil
}

func (r *run) planControls(ctx context.Context) (string, error) {
	if len(r.measures) == 0 {
		r.plan = []entity.ActionPlanEntry{}
		r.addUsage(ctx, nil)
		return "无控制措施，跳过", nil
	}

	in := r.promptInput()
	in.MeasuresJSON = toJSON(r.measures)

	raw, err := r.callJSON(ctx, entity.StageControlPlan, PromptControlPlan, in)
	if err != nil {
		return "", err
	}

	plan, err := validator.ParsePlan(raw, r.measures, r.uc.now())
	if err != nil {
		return "", err
	}

	r.plan = plan
	return fmt.Sprintf("控制计划 %d 条", len(plan)), nil
}

func (r *run) render(ctx context.Context) (string, error) {
	in := r.promptInput()
	in.RiskItemsJSON = toJSON(r.scored)
	in.MeasuresJSON = toJSON(r.measures)
	in.PlanJSON = toJSON(r.plan)

	msgs, err := r.uc.prompts.Messages(PromptRendering, in)
	if err != nil {
		return "", err
	}

	req := &entity.ChatRequest{Stage: entity.StageRendering, Messages: msgs}
	res, err := r.llm.ChatTextStream(ctx, req, entity.StreamHandler{
		OnDelta: func(delta string) {
			r.emit(ctx, entity.NewDeltaEvent(delta))
		},
	})
	if err != nil {
		return "", err
	}
	r.addUsage(ctx, res.Usage)

	r.markdown = strings.TrimSpace(res.Content)
	return "报告生成完成", nil
}

// callJSON renders prompt, runs a JSON-mode completion and accounts its usage. Streamed
// deltas are forwarded as llm_delta events with a preview of the partial document.
func (r *run) callJSON(ctx context.Context, stage entity.Stage, prompt PromptName, in PromptInput) (json.RawMessage, error) {
	msgs, err := r.uc.prompts.Messages(prompt, in)
	if err != nil {
		return nil, err
	}
	req := &entity.ChatRequest{Stage: stage, Messages: msgs}

	var res *entity.ChatResult
	if r.uc.cfg.StreamStages {
		var draft jsonx.Draft
		res, err = r.llm.ChatJSONStream(ctx, req, entity.StreamHandler{
			OnDelta: func(delta string) {
				draft.Write(delta)
				var preview any
				if snapshot, ok := draft.Snapshot(); ok {
					preview = snapshot
				}
				r.emit(ctx, entity.NewLLMDeltaEvent(stage, delta, preview))
			},
		})
	} else {
		res, err = r.llm.ChatJSON(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	r.addUsage(ctx, res.Usage)
	return res.JSON, nil
}

func (r *run) promptInput() PromptInput {
	in := PromptInput{
		Title:        r.in.Title,
		Scope:        r.in.Scope,
		Background:   r.in.Background,
		Objective:    r.in.Objective,
		RiskMethod:   string(r.in.RiskMethod),
		EvalTool:     r.in.EvalTool,
		ProcessSteps: r.in.ProcessSteps,
		Today:        r.uc.now().Format(time.DateOnly),
	}
	if in.RiskMethod == "" {
		in.RiskMethod = string(entity.RiskMethodFiveFactors)
	}
	if in.EvalTool == "" {
		in.EvalTool = "FMEA"
	}
	if r.wctx != nil {
		in.Title = r.wctx.Title
		in.Scope = r.wctx.Scope
		in.Background = r.wctx.Background
		in.Objective = r.wctx.Objective
		in.TemplateRequirements = r.wctx.TemplateRequirements
		in.SOPEvidence = r.wctx.SOPEvidence
		in.LiteratureEvidence = r.wctx.LiteratureEvidence
	}
	return in
}

func toJSON(v any) string {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(raw)
}

func countNeedActions(items []entity.ScoredRiskItem) int {
	n := 0
	for _, item := range items {
		if item.NeedActions {
			n++
		}
	}
	return n
}

func countActions(measures []entity.ControlMeasure) int {
	n := 0
	for _, m := range measures {
		n += len(m.Actions)
	}
	return n
}
