package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/futig/risk-report-backend/internal/entity"
	"github.com/futig/risk-report-backend/internal/pkg/formatter"
	"github.com/futig/risk-report-backend/internal/pkg/logger"
	"github.com/futig/risk-report-backend/internal/pkg/response"
	"github.com/futig/risk-report-backend/internal/pkg/validator"
	"github.com/futig/risk-report-backend/internal/usecase/report"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
)

type Handler struct {
	usecase    ReportUsecase
	validator  *validator.Validator
	formatters FormatterFactory
	models     entity.ModelContext
	sinks      []SinkFactory
	maxBody    int64
}

func NewHandler(
	usecase ReportUsecase,
	validator *validator.Validator,
	formatters FormatterFactory,
	models entity.ModelContext,
	maxBody int64,
	sinks ...SinkFactory,
) *Handler {
	return &Handler{
		usecase:    usecase,
		validator:  validator,
		formatters: formatters,
		models:     models,
		sinks:      sinks,
		maxBody:    maxBody,
	}
}

// GenerateStream handles POST /reports/generate and streams workflow events as SSE
func (h *Handler) GenerateStream(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithAction(r.Context(), "GenerateReportStream")

	in, ok := h.decodeInput(ctx, w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.respondError(ctx, w, http.StatusInternalServerError, "streaming is not supported", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	queue := report.NewEventQueue()
	runErr := make(chan error, 1)

	go func() {
		defer queue.Close()
		_, err := h.usecase.Generate(ctx, in, h.models, report.MultiSink{queue, h.runSink(in)})
		runErr <- err
	}()

	// the queue is drained to the end even after the client is gone, so the run never blocks on it
	var writeErr error
	for event := range queue.Events() {
		if writeErr != nil {
			continue
		}
		if writeErr = writeEvent(w, event); writeErr != nil {
			ctxzap.Warn(ctx, "failed to write event, client likely disconnected", zap.Error(writeErr))
			continue
		}
		flusher.Flush()
	}

	if err := <-runErr; err != nil {
		if errors.Is(err, entity.ErrCancelled) {
			ctxzap.Info(ctx, "report stream cancelled by client")
			return
		}
		ctxzap.Error(ctx, "report generation failed", zap.Error(err))
	}
}

// GenerateSync handles POST /reports/generate/sync and returns the finished report.
// With ?format=markdown|docx|pdf the rendered document is returned instead of JSON.
func (h *Handler) GenerateSync(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithAction(r.Context(), "GenerateReportSync")

	var f formatter.Formatter
	if format := r.URL.Query().Get("format"); format != "" {
		var ok bool
		if f, ok = h.formatter(ctx, w, format); !ok {
			return
		}
	}

	in, ok := h.decodeInput(ctx, w, r)
	if !ok {
		return
	}

	generated, err := h.usecase.Generate(ctx, in, h.models, h.runSink(in))
	if err != nil {
		h.handleUsecaseError(ctx, w, err)
		return
	}

	if f != nil {
		h.respondDocument(ctx, w, f, in.Title, generated.Markdown)
		return
	}

	response.Success(w, generated)
}

// Export handles POST /reports/export?format=markdown|docx|pdf and renders already generated markdown
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithAction(r.Context(), "ExportReport")

	format := r.URL.Query().Get("format")
	if format == "" {
		format = string(entity.FormatDOCX)
	}
	f, ok := h.formatter(ctx, w, format)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	var req entity.ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(ctx, w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Markdown) == "" {
		h.respondError(ctx, w, http.StatusBadRequest, "markdown is required", nil)
		return
	}

	h.respondDocument(ctx, w, f, req.Title, req.Markdown)
}

func (h *Handler) formatter(ctx context.Context, w http.ResponseWriter, format string) (formatter.Formatter, bool) {
	if !entity.ExportFormat(format).IsValid() {
		h.respondError(ctx, w, http.StatusBadRequest, fmt.Sprintf("unsupported format %q", format), nil)
		return nil, false
	}

	f, err := h.formatters.Create(entity.ExportFormat(format))
	if err != nil {
		h.respondError(ctx, w, http.StatusBadRequest, err.Error(), err)
		return nil, false
	}
	return f, true
}

func (h *Handler) respondDocument(ctx context.Context, w http.ResponseWriter, f formatter.Formatter, title, markdown string) {
	data, err := f.Format(title, markdown)
	if err != nil {
		h.respondError(ctx, w, http.StatusInternalServerError, "failed to render report", err)
		return
	}

	w.Header().Set("Content-Type", f.ContentType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": "risk-report" + f.FileExtension(),
	}))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		ctxzap.Warn(ctx, "failed to write document", zap.Error(err))
	}
}

// GenerateAsync handles POST /reports/generate/async. The run continues after the response
// and its outcome is delivered to callbackUrl.
func (h *Handler) GenerateAsync(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithAction(r.Context(), "GenerateReportAsync")
	requestID := middleware.GetReqID(r.Context())

	in, ok := h.decodeInput(ctx, w, r)
	if !ok {
		return
	}

	if in.CallbackURL == "" {
		h.respondError(ctx, w, http.StatusBadRequest, "callbackUrl is required for asynchronous generation", nil)
		return
	}

	response.JSON(w, http.StatusAccepted, map[string]string{
		"status":     "accepted",
		"message":    "report generation is being processed",
		"request_id": requestID,
	})

	go func() {
		bgCtx := logger.WithAction(logger.Detach(ctx), "GenerateReportAsync-run")

		if _, err := h.usecase.Generate(bgCtx, in, h.models, h.runSink(in)); err != nil {
			ctxzap.Error(bgCtx, "asynchronous report generation failed", zap.Error(err))
			return
		}
		ctxzap.Info(bgCtx, "asynchronous report generation finished")
	}()
}

// runSink combines the configured per-run sinks
func (h *Handler) runSink(in *entity.ReportInput) report.EventSink {
	if len(h.sinks) == 0 {
		return report.Discard
	}

	return report.NewRunSink(func(runID string) report.EventSink {
		multi := make(report.MultiSink, 0, len(h.sinks))
		for _, build := range h.sinks {
			if s := build(in, runID); s != nil {
				multi = append(multi, s)
			}
		}
		return multi
	})
}

func (h *Handler) decodeInput(ctx context.Context, w http.ResponseWriter, r *http.Request) (*entity.ReportInput, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)

	var in entity.ReportInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.respondError(ctx, w, http.StatusRequestEntityTooLarge, "request body too large", err)
			return nil, false
		}
		h.respondError(ctx, w, http.StatusBadRequest, "invalid request body", err)
		return nil, false
	}

	if err := h.validator.ValidateReportInput(&in); err != nil {
		h.respondError(ctx, w, http.StatusBadRequest, err.Error(), err)
		return nil, false
	}

	if in.RiskMethod == "" {
		in.RiskMethod = entity.RiskMethodFiveFactors
	}

	ctxzap.Info(ctx, "report requested",
		zap.String("risk_method", string(in.RiskMethod)),
		zap.Int("sop_texts", len(in.SourceTexts.SOP)),
		zap.Int("literature_texts", len(in.SourceTexts.Literature)),
		zap.Int("process_steps", len(in.ProcessSteps)),
	)

	return &in, true
}

func writeEvent(w http.ResponseWriter, event entity.WorkflowEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
	return err
}

func (h *Handler) respondError(ctx context.Context, w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		ctxzap.Error(ctx, message, zap.Error(err))
	} else {
		ctxzap.Error(ctx, message)
	}
	response.Error(w, status, message)
}

func (h *Handler) handleUsecaseError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, entity.ErrCancelled) {
		ctxzap.Info(ctx, "report generation cancelled", zap.Error(err))
	} else if errors.Is(err, entity.ErrInvalidParameter) || errors.Is(err, entity.ErrMissingField) {
		h.respondError(ctx, w, http.StatusBadRequest, "invalid parameter", err)
	} else if errors.Is(err, entity.ErrBackendHTTP) {
		h.respondError(ctx, w, http.StatusBadGateway, err.Error(), err)
	} else if errors.Is(err, entity.ErrInvalidModelOutput) || errors.Is(err, entity.ErrSchemaValidation) {
		h.respondError(ctx, w, http.StatusUnprocessableEntity, err.Error(), err)
	} else {
		h.respondError(ctx, w, http.StatusInternalServerError, "internal server error", err)
	}
}
