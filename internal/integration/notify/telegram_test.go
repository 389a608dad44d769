package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/futig/risk-report-backend/internal/config"
	"github.com/futig/risk-report-backend/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type telegramServer struct {
	mu       sync.Mutex
	messages []string
}

func (s *telegramServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")

		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			w.Write([]byte(`{"ok":true,"result":{"id":42,"is_bot":true,"first_name":"reports","username":"reports_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			assert.Equal(t, "100", r.Form.Get("chat_id"))
			s.mu.Lock()
			s.messages = append(s.messages, r.Form.Get("text"))
			s.mu.Unlock()
			w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":100,"type":"private"}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func (s *telegramServer) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages...)
}

func newTestTelegram(t *testing.T) (*Telegram, *telegramServer) {
	t.Helper()

	ts := &telegramServer{}
	srv := httptest.NewServer(ts.handler(t))
	t.Cleanup(srv.Close)

	tg, err := NewTelegram(config.TelegramConfig{
		BotToken:    "123:abc",
		ChatID:      100,
		APIEndpoint: srv.URL + "/bot%s/%s",
	}, srv.Client(), zap.NewNop())
	require.NoError(t, err)

	return tg, ts
}

func TestTelegramSink_TerminalEventsOnly(t *testing.T) {
	tg, ts := newTestTelegram(t)
	sink := tg.Sink("run-1", "灌装线风险评估")
	ctx := context.Background()

	sink.Emit(ctx, entity.NewStartEvent("run-1"))
	sink.Emit(ctx, entity.NewStepEvent(entity.StageContext, entity.StepRunning, ""))
	sink.Emit(ctx, entity.NewDeltaEvent("# 报告"))

	report := &entity.GeneratedReport{
		JSON: entity.ReportJSON{ScoredItems: []entity.ScoredRiskItem{
			entity.Score(entity.RiskItem{RiskID: "a"}, entity.ScoreRow{S: 9, P: 6, D: 3}),
			entity.Score(entity.RiskItem{RiskID: "b"}, entity.ScoreRow{S: 1, P: 3, D: 3}),
		}},
		Usage: entity.TokenUsage{TotalTokens: 321},
	}
	sink.Emit(ctx, entity.NewDoneEvent(report))

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, tg.Wait(waitCtx))

	msgs := ts.sent()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "灌装线风险评估")
	assert.Contains(t, msgs[0], "run-1")
	assert.Contains(t, msgs[0], "风险项：2（高 1 / 中 0 / 低 0 / 极低 1）")
	assert.Contains(t, msgs[0], "需采取措施：1")
	assert.Contains(t, msgs[0], "Tokens：321")
}

func TestTelegramSink_Error(t *testing.T) {
	tg, ts := newTestTelegram(t)

	tg.Sink("run-2", "").Emit(context.Background(), entity.NewErrorEvent("model backend error: status 401"))

	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tg.Wait(waitCtx))

	msgs := ts.sent()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "未命名报告")
	assert.Contains(t, msgs[0], "原因：model backend error: status 401")
}

func TestRenderFailed_TruncatesReason(t *testing.T) {
	msg := RenderFailed("r", "t", strings.Repeat("错", maxReasonRunes+10))
	assert.Contains(t, msg, strings.Repeat("错", maxReasonRunes)+"…")
	assert.NotContains(t, msg, strings.Repeat("错", maxReasonRunes+1))
}
