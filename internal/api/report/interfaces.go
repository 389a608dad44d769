package report

import (
	"context"

	"github.com/futig/risk-report-backend/internal/entity"
	"github.com/futig/risk-report-backend/internal/pkg/formatter"
	"github.com/futig/risk-report-backend/internal/usecase/report"
)

type ReportUsecase interface {
	Generate(ctx context.Context, in *entity.ReportInput, mc entity.ModelContext, sink report.EventSink) (*entity.GeneratedReport, error)
}

// SinkFactory builds an extra event sink for one run, or returns nil when it does not apply
type SinkFactory func(in *entity.ReportInput, runID string) report.EventSink

type FormatterFactory interface {
	Create(format entity.ExportFormat) (formatter.Formatter, error)
}
