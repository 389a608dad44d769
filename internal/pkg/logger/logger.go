package logger

import (
	"context"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
)

// AddFields adds fields to the logger in context and returns new context
func AddFields(ctx context.Context, fields ...zap.Field) context.Context {
	logger := ctxzap.Extract(ctx)
	return ctxzap.ToContext(ctx, logger.With(fields...))
}

// WithAction adds "action" field to context logger to describe the flow
func WithAction(ctx context.Context, action string) context.Context {
	return AddFields(ctx, zap.String("action", action))
}

// WithRun tags every following log line with the report run
func WithRun(ctx context.Context, runID string) context.Context {
	return AddFields(ctx, zap.String("run_id", runID))
}

func WithStage(ctx context.Context, stage string) context.Context {
	return AddFields(ctx, zap.String("stage", stage))
}

// Detach returns a background context carrying the logger of ctx, for work that outlives the request
func Detach(ctx context.Context) context.Context {
	return ctxzap.ToContext(context.Background(), ctxzap.Extract(ctx))
}
