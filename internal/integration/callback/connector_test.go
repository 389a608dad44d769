package callback

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/futig/risk-report-backend/internal/config"
	"github.com/futig/risk-report-backend/internal/entity"
	pkgRetry "github.com/futig/risk-report-backend/internal/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestConnector() *Connector {
	return NewConnector(config.CallbackConnectorConfig{
		Retry: pkgRetry.RetryConfig{Attempts: 3, Delay: time.Millisecond, MaxDelay: time.Millisecond},
	}, zap.NewNop())
}

func TestSink_DeliversTerminalEvents(t *testing.T) {
	var mu sync.Mutex
	var received []entity.CallbackEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "run-7", r.Header.Get("X-Request-ID"))

		var ev entity.CallbackEvent
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ev))
		mu.Lock()
		received = append(received, ev)
		mu.Unlock()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := newTestConnector().Sink(srv.URL+"/hook", "run-7")
	sink.Emit(ctx, entity.NewStepEvent(entity.StageRendering, entity.StepDone, ""))
	sink.Emit(ctx, entity.NewDoneEvent(&entity.GeneratedReport{Markdown: "# 报告"}))
	sink.Emit(ctx, entity.NewErrorEvent("boom"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 2)
	assert.Equal(t, entity.CallbackEventTypeReportDone, received[0].Event)
	assert.Equal(t, "run-7", received[0].RunID)
	assert.NotEmpty(t, received[0].Timestamp)
	assert.Equal(t, "# 报告", received[0].Data.(map[string]any)["markdown"])

	assert.Equal(t, entity.CallbackEventTypeError, received[1].Event)
	errData := received[1].Data.(map[string]any)["error"].(map[string]any)
	assert.Equal(t, "boom", errData["message"])
}

func TestSend_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	err := newTestConnector().Send(context.Background(), srv.URL, "run-1", &entity.CallbackEvent{
		Event: entity.CallbackEventTypeError,
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSend_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	err := newTestConnector().Send(context.Background(), srv.URL, "run-1", &entity.CallbackEvent{
		Event: entity.CallbackEventTypeError,
	})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
