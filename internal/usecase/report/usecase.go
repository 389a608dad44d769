package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/futig/risk-report-backend/internal/config"
	"github.com/futig/risk-report-backend/internal/entity"
	"github.com/futig/risk-report-backend/internal/pkg/logger"
	"github.com/futig/risk-report-backend/internal/usecase/retrieval"
	"github.com/google/uuid"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
)

// ReportUsecase runs the report workflow
type ReportUsecase struct {
	models    ModelFactory
	retriever Retriever
	prompts   *Prompts
	policy    ActionPolicy
	cfg       config.WorkflowConfig
	topK      int
	now       func() time.Time
	newID     func() string
}

// NewUsecase creates a new report use case
func NewUsecase(
	models ModelFactory,
	retriever Retriever,
	prompts *Prompts,
	policy ActionPolicy,
	cfg config.WorkflowConfig,
	topK int,
) *ReportUsecase {
	return &ReportUsecase{
		models:    models,
		retriever: retriever,
		prompts:   prompts,
		policy:    policy,
		cfg:       cfg,
		topK:      topK,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// run is the state of one Generate call
type run struct {
	uc       *ReportUsecase
	id       string
	in       *entity.ReportInput
	llm      LLMConnector
	embedder retrieval.Embedder
	sink     EventSink
	usage    entity.TokenUsage

	wctx     *entity.WorkflowContext
	items    []entity.RiskItem
	mapping  *entity.MappingValidation
	rows     []entity.ScoreRow
	scored   []entity.ScoredRiskItem
	measures []entity.ControlMeasure
	plan     []entity.ActionPlanEntry
	markdown string
	override ActionOverride
}

// Generate executes every stage for in and reports progress to sink. A cancelled run
// returns an error wrapping entity.ErrCancelled and emits no error event.
func (uc *ReportUsecase) Generate(ctx context.Context, in *entity.ReportInput, mc entity.ModelContext, sink EventSink) (*entity.GeneratedReport, error) {
	if sink == nil {
		sink = Discard
	}

	r := &run{
		uc:   uc,
		id:   uc.newID(),
		in:   in,
		llm:  uc.models.LLM(mc.LLM),
		sink: sink,
	}
	if e := uc.models.Embedder(mc.Embedding); e != nil {
		r.embedder = e
	}

	ctx = logger.WithRun(ctx, r.id)
	ctxzap.Info(ctx, "report run started",
		zap.String("risk_method", string(in.RiskMethod)),
		zap.Bool("embedding", r.embedder != nil),
	)

	r.emit(ctx, entity.NewStartEvent(r.id))

	report, err := r.execute(ctx)
	if err != nil {
		if errors.Is(err, entity.ErrCancelled) {
			ctxzap.Info(ctx, "report run cancelled")
			return nil, err
		}

		ctxzap.Error(ctx, "report run failed", zap.Error(err))
		r.emit(ctx, entity.NewErrorEvent(err.Error()))
		return nil, err
	}

	ctxzap.Info(ctx, "report run finished",
		zap.Int("risk_items", len(report.JSON.RiskItems)),
		zap.Int("total_tokens", report.Usage.TotalTokens),
	)
	r.emit(ctx, entity.NewDoneEvent(report))

	return report, nil
}

func (r *run) execute(ctx context.Context) (*entity.GeneratedReport, error) {
	stages := []struct {
		stage entity.Stage
		fn    func(ctx context.Context) (string, error)
	}{
		{entity.StageContext, r.buildContext},
		{entity.StageHazardIdentification, r.identifyHazards},
		{entity.StageMappingValidation, r.validateMapping},
		{entity.StageFMEAScoring, r.scoreRisks},
		{entity.StageActionGeneration, r.generateActions},
		{entity.StageControlPlan, r.planControls},
		{entity.StageRendering, r.render},
	}

	for _, s := range stages {
		if err := r.stage(ctx, s.stage, s.fn); err != nil {
			return nil, err
		}
	}

	return &entity.GeneratedReport{
		Markdown: r.markdown,
		JSON: entity.ReportJSON{
			Context:           r.wctx.Report(),
			RiskItems:         r.items,
			FMEARows:          r.rows,
			ScoredItems:       r.scored,
			ControlMeasures:   r.measures,
			Actions:           r.plan,
			MappingValidation: r.mapping,
		},
		Usage: r.usage,
	}, nil
}

// stage runs fn between a running and a done step event. Cancellation is checked on entry,
// after the pacing delay and on failure.
func (r *run) stage(ctx context.Context, stage entity.Stage, fn func(ctx context.Context) (string, error)) error {
	ctx = logger.WithStage(ctx, string(stage))

	if err := r.pause(ctx); err != nil {
		r.emit(ctx, entity.NewStepEvent(stage, entity.StepCancelled, ""))
		return err
	}

	r.emit(ctx, entity.NewStepEvent(stage, entity.StepRunning, ""))
	started := time.Now()

	message, err := fn(ctx)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, entity.ErrCancelled) {
			r.emit(ctx, entity.NewStepEvent(stage, entity.StepCancelled, ""))
			return cancelled(ctx, err)
		}

		r.emit(ctx, entity.NewStepEvent(stage, entity.StepError, err.Error()))
		return fmt.Errorf("%s: %w", stage, err)
	}

	ctxzap.Info(ctx, "stage finished", zap.Duration("duration", time.Since(started)))
	r.emit(ctx, entity.NewStepEvent(stage, entity.StepDone, message))
	return nil
}

// pause applies the configured pacing delay before a stage
func (r *run) pause(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return cancelled(ctx, err)
	}

	delay := r.uc.cfg.StageDelay
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return cancelled(ctx, ctx.Err())
	case <-timer.C:
		return nil
	}
}

func cancelled(ctx context.Context, err error) error {
	if errors.Is(err, entity.ErrCancelled) {
		return err
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", entity.ErrCancelled, ctx.Err())
	}
	return fmt.Errorf("%w: %w", entity.ErrCancelled, err)
}

func (r *run) emit(ctx context.Context, event entity.WorkflowEvent) {
	r.sink.Emit(ctx, event)
}

// addUsage accumulates the usage of a model call and reports the running total
func (r *run) addUsage(ctx context.Context, usage *entity.TokenUsage) {
	r.usage.Add(usage)
	r.emit(ctx, entity.NewUsageEvent(r.usage))
}
