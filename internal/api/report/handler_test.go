package report

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/futig/risk-report-backend/internal/config"
	"github.com/futig/risk-report-backend/internal/entity"
	"github.com/futig/risk-report-backend/internal/pkg/formatter"
	"github.com/futig/risk-report-backend/internal/pkg/validator"
	"github.com/futig/risk-report-backend/internal/usecase/report"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUsecase struct {
	mu     sync.Mutex
	events []entity.WorkflowEvent
	err    error
	got    *entity.ReportInput
	called chan struct{}
}

func newFakeUsecase(err error) *fakeUsecase {
	return &fakeUsecase{err: err, called: make(chan struct{}, 1)}
}

func (f *fakeUsecase) Generate(ctx context.Context, in *entity.ReportInput, _ entity.ModelContext, sink report.EventSink) (*entity.GeneratedReport, error) {
	f.mu.Lock()
	f.got = in
	f.mu.Unlock()
	defer func() { f.called <- struct{}{} }()

	sink.Emit(ctx, entity.NewStartEvent("run-1"))
	sink.Emit(ctx, entity.NewStepEvent(entity.StageContext, entity.StepRunning, ""))

	if f.err != nil {
		sink.Emit(ctx, entity.NewErrorEvent(f.err.Error()))
		return nil, f.err
	}

	generated := &entity.GeneratedReport{
		Markdown: "# 报告",
		Usage:    entity.TokenUsage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3},
	}
	sink.Emit(ctx, entity.NewDoneEvent(generated))
	return generated, nil
}

func (f *fakeUsecase) input() *entity.ReportInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.got
}

func newTestRouter(uc ReportUsecase, sinks ...SinkFactory) http.Handler {
	v := validator.NewInputValidator(config.InputConfig{MaxSourceTexts: 4, MaxTextBytes: 1024, MaxProcessSteps: 4})
	h := NewHandler(uc, v, formatter.NewFactory(""), entity.ModelContext{}, 4096, sinks...)

	r := chi.NewRouter()
	RegisterRoutes(r, h)
	return r
}

func post(t *testing.T, router http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func parseSSE(t *testing.T, body []byte) []entity.WorkflowEvent {
	t.Helper()

	var events []entity.WorkflowEvent
	var name string
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			var event entity.WorkflowEvent
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event))
			assert.Equal(t, name, string(event.Type))
			events = append(events, event)
		}
	}
	require.NoError(t, scanner.Err())
	return events
}

const validBody = `{"title":"注射剂灌装","scope":"灌装工序","sourceTexts":{"sop":[{"text":"灌装前清洁"}]}}`

func TestGenerateStream(t *testing.T) {
	uc := newFakeUsecase(nil)
	rec := post(t, newTestRouter(uc), "/reports/generate", validBody)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	events := parseSSE(t, rec.Body.Bytes())
	require.Len(t, events, 3)
	assert.Equal(t, entity.EventStart, events[0].Type)
	assert.Equal(t, "run-1", events[0].RunID)
	assert.Equal(t, entity.EventStep, events[1].Type)
	assert.Equal(t, entity.EventDone, events[2].Type)
	require.NotNil(t, events[2].Report)
	assert.Equal(t, "# 报告", events[2].Report.Markdown)

	assert.Equal(t, entity.RiskMethodFiveFactors, uc.input().RiskMethod)
}

func TestGenerateStream_ErrorEventEndsStream(t *testing.T) {
	uc := newFakeUsecase(fmt.Errorf("%w: upstream 500", entity.ErrBackendHTTP))
	rec := post(t, newTestRouter(uc), "/reports/generate", validBody)

	assert.Equal(t, http.StatusOK, rec.Code)
	events := parseSSE(t, rec.Body.Bytes())
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, entity.EventError, last.Type)
	assert.Contains(t, last.Message, "upstream 500")
}

func TestGenerateStream_RejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "malformed json", body: `{"scope":`, status: http.StatusBadRequest},
		{name: "missing scope", body: `{"title":"x"}`, status: http.StatusBadRequest},
		{name: "unknown method", body: `{"scope":"x","riskMethod":"鱼骨图"}`, status: http.StatusBadRequest},
		{name: "too large", body: `{"scope":"` + strings.Repeat("a", 5000) + `"}`, status: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := newFakeUsecase(nil)
			rec := post(t, newTestRouter(uc), "/reports/generate", tt.body)

			assert.Equal(t, tt.status, rec.Code)
			var resp entity.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, http.StatusText(tt.status), resp.Error)
			assert.Nil(t, uc.input())
		})
	}
}

func TestGenerateSync(t *testing.T) {
	uc := newFakeUsecase(nil)
	rec := post(t, newTestRouter(uc), "/reports/generate/sync", validBody)

	require.Equal(t, http.StatusOK, rec.Code)
	var generated entity.GeneratedReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &generated))
	assert.Equal(t, "# 报告", generated.Markdown)
	assert.Equal(t, 3, generated.Usage.TotalTokens)
}

func TestGenerateSync_ErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "backend", err: fmt.Errorf("%w: 503", entity.ErrBackendHTTP), status: http.StatusBadGateway},
		{name: "schema", err: fmt.Errorf("%w: 风险识别[0]", entity.ErrSchemaValidation), status: http.StatusUnprocessableEntity},
		{name: "model output", err: fmt.Errorf("%w: not json", entity.ErrInvalidModelOutput), status: http.StatusUnprocessableEntity},
		{name: "invalid parameter", err: fmt.Errorf("%w: x", entity.ErrInvalidParameter), status: http.StatusBadRequest},
		{name: "other", err: fmt.Errorf("boom"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, newTestRouter(newFakeUsecase(tt.err)), "/reports/generate/sync", validBody)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestGenerateSync_Document(t *testing.T) {
	uc := newFakeUsecase(nil)
	rec := post(t, newTestRouter(uc), "/reports/generate/sync?format=markdown", validBody)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/markdown; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename=risk-report.md`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "# 报告\n", rec.Body.String())
}

func TestGenerateSync_UnsupportedFormat(t *testing.T) {
	uc := newFakeUsecase(nil)
	rec := post(t, newTestRouter(uc), "/reports/generate/sync?format=xlsx", validBody)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, uc.input())
}

func TestExport(t *testing.T) {
	router := newTestRouter(newFakeUsecase(nil))

	rec := post(t, router, "/reports/export?format=pdf", `{"title":"Report","markdown":"# Risk\n\nText"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	rec = post(t, router, "/reports/export?format=pdf", `{"title":"Report","markdown":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateAsync(t *testing.T) {
	t.Run("requires callback url", func(t *testing.T) {
		uc := newFakeUsecase(nil)
		rec := post(t, newTestRouter(uc), "/reports/generate/async", validBody)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("accepted and run in background", func(t *testing.T) {
		uc := newFakeUsecase(nil)

		var mu sync.Mutex
		var seen []entity.EventType
		var runIDs []string
		factory := func(in *entity.ReportInput, runID string) report.EventSink {
			mu.Lock()
			runIDs = append(runIDs, runID)
			mu.Unlock()
			return report.SinkFunc(func(_ context.Context, event entity.WorkflowEvent) {
				mu.Lock()
				seen = append(seen, event.Type)
				mu.Unlock()
			})
		}

		body := `{"scope":"灌装工序","callbackUrl":"http://localhost:9000/hook"}`
		rec := post(t, newTestRouter(uc, factory), "/reports/generate/async", body)
		assert.Equal(t, http.StatusAccepted, rec.Code)

		select {
		case <-uc.called:
		case <-time.After(2 * time.Second):
			t.Fatal("usecase was not called")
		}

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []string{"run-1"}, runIDs)
		assert.Equal(t, []entity.EventType{entity.EventStart, entity.EventStep, entity.EventDone}, seen)
	})
}

func TestRunSink_SkipsNilFactories(t *testing.T) {
	var got []entity.EventType
	h := NewHandler(nil, nil, nil, entity.ModelContext{}, 0,
		func(*entity.ReportInput, string) report.EventSink { return nil },
		func(*entity.ReportInput, string) report.EventSink {
			return report.SinkFunc(func(_ context.Context, event entity.WorkflowEvent) {
				got = append(got, event.Type)
			})
		},
	)

	sink := h.runSink(&entity.ReportInput{})
	sink.Emit(context.Background(), entity.NewStepEvent(entity.StageContext, entity.StepRunning, ""))
	sink.Emit(context.Background(), entity.NewStartEvent("r"))
	sink.Emit(context.Background(), entity.NewErrorEvent("x"))

	assert.Equal(t, []entity.EventType{entity.EventStart, entity.EventError}, got)
}
