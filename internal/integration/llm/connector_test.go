package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
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

func newTestConnector(url string) *Connector {
	return NewConnector(config.LLMConnectorConfig{
		HTTPClientConfig:    config.HTTPClientConfig{Url: url + "/", Token: "sk-test"},
		Model:               "test-model",
		Temperature:         0.2,
		MaxTokens:           512,
		ChatCompletionsPath: "/chat/completions",
		Retry:               pkgRetry.RetryConfig{Attempts: 3, Delay: time.Millisecond, MaxDelay: time.Millisecond},
	}, zap.NewNop())
}

func testRequest() *entity.ChatRequest {
	return &entity.ChatRequest{
		Stage: entity.StageHazardIdentification,
		Messages: []entity.ChatMessage{
			{Role: "system", Content: "只输出 JSON"},
			{Role: "user", Content: "识别风险"},
		},
	}
}

func sseFrame(content string) string {
	chunk := entity.ChatCompletionChunk{
		Choices: []entity.ChatChunkChoice{{Delta: entity.ChatDelta{Content: content}}},
	}
	raw, _ := json.Marshal(chunk)
	return fmt.Sprintf("data: %s\n\n", raw)
}

func TestConnector_ChatJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req entity.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.False(t, req.Stream)
		require.NotNil(t, req.ResponseFormat)
		assert.Equal(t, "json_object", req.ResponseFormat.Type)
		assert.Len(t, req.Messages, 2)

		json.NewEncoder(w).Encode(entity.ChatCompletionResponse{
			Choices: []entity.ChatChoice{{Message: entity.ChatMessage{
				Role:    "assistant",
				Content: "结果如下：\n```json\n{\"risk_items\": []}\n```",
			}}},
			Usage: &entity.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		})
	}))
	defer srv.Close()

	res, err := newTestConnector(srv.URL).ChatJSON(context.Background(), testRequest())
	require.NoError(t, err)
	assert.JSONEq(t, `{"risk_items": []}`, string(res.JSON))
	require.NotNil(t, res.Usage)
	assert.Equal(t, 15, res.Usage.TotalTokens)
}

func TestConnector_ChatJSON_InvalidOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(entity.ChatCompletionResponse{
			Choices: []entity.ChatChoice{{Message: entity.ChatMessage{Content: "抱歉，我无法完成"}}},
		})
	}))
	defer srv.Close()

	_, err := newTestConnector(srv.URL).ChatJSON(context.Background(), testRequest())
	assert.ErrorIs(t, err, entity.ErrInvalidModelOutput)
}

func TestConnector_ChatJSONStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req entity.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		require.NotNil(t, req.StreamOptions)
		assert.True(t, req.StreamOptions.IncludeUsage)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, piece := range []string{`{"risk_`, `items": [`, `{"risk_id": "R1"}`, `]}`} {
			fmt.Fprint(w, sseFrame(piece))
			w.(http.Flusher).Flush()
		}
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: not json\n\n")
		fmt.Fprint(w, `data: {"choices":[],"usage":{"prompt_tokens":7,"completion_tokens":3,"total_tokens":10}}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	var deltas []string
	var usages []entity.TokenUsage
	res, err := newTestConnector(srv.URL).ChatJSONStream(context.Background(), testRequest(), entity.StreamHandler{
		OnDelta: func(d string) { deltas = append(deltas, d) },
		OnUsage: func(u entity.TokenUsage) { usages = append(usages, u) },
	})
	require.NoError(t, err)

	assert.Equal(t, `{"risk_items": [{"risk_id": "R1"}]}`, strings.Join(deltas, ""))
	assert.Equal(t, res.Content, strings.Join(deltas, ""))
	assert.JSONEq(t, `{"risk_items": [{"risk_id": "R1"}]}`, string(res.JSON))
	require.Len(t, usages, 1)
	assert.Equal(t, 10, usages[0].TotalTokens)
	require.NotNil(t, res.Usage)
	assert.Equal(t, 7, res.Usage.PromptTokens)
}

func TestConnector_ChatTextStream_NoJSONMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req entity.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Nil(t, req.ResponseFormat)

		fmt.Fprint(w, sseFrame("# 报告\n"))
		fmt.Fprint(w, sseFrame("正文"))
	}))
	defer srv.Close()

	res, err := newTestConnector(srv.URL).ChatTextStream(context.Background(), testRequest(), entity.StreamHandler{})
	require.NoError(t, err)
	assert.Equal(t, "# 报告\n正文", res.Content)
	assert.Nil(t, res.Usage)
}

func TestConnector_ChatTextStream_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	_, err := newTestConnector(srv.URL).ChatTextStream(context.Background(), testRequest(), entity.StreamHandler{})
	assert.ErrorIs(t, err, entity.ErrInvalidModelOutput)
}

func TestConnector_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, sseFrame(`{"ok": true}`))
	}))
	defer srv.Close()

	res, err := newTestConnector(srv.URL).ChatJSONStream(context.Background(), testRequest(), entity.StreamHandler{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok": true}`, string(res.JSON))
	assert.Equal(t, int32(2), calls.Load())
}

func TestConnector_BackendError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"context length exceeded"}}`))
	}))
	defer srv.Close()

	_, err := newTestConnector(srv.URL).ChatJSONStream(context.Background(), testRequest(), entity.StreamHandler{})
	require.ErrorIs(t, err, entity.ErrBackendHTTP)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "context length exceeded")
	assert.Equal(t, int32(1), calls.Load())
}

func TestConnector_StreamErrorObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sseFrame(`{"a":`))
		fmt.Fprint(w, `data: {"error":{"message":"overloaded"}}`+"\n\n")
	}))
	defer srv.Close()

	_, err := newTestConnector(srv.URL).ChatJSONStream(context.Background(), testRequest(), entity.StreamHandler{})
	require.ErrorIs(t, err, entity.ErrBackendHTTP)
	assert.Contains(t, err.Error(), "overloaded")
}

func TestConnector_Cancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sseFrame(`{"a":`))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := newTestConnector(srv.URL).ChatJSONStream(ctx, testRequest(), entity.StreamHandler{
		OnDelta: func(string) { cancel() },
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, entity.ErrCancelled))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMockConnector_StagesAreSchemaShaped(t *testing.T) {
	m := NewMockConnector(zap.NewNop())
	ctx := context.Background()

	hazards, err := m.ChatJSON(ctx, &entity.ChatRequest{
		Stage:    entity.StageHazardIdentification,
		Messages: []entity.ChatMessage{{Role: "user", Content: "方法：五因素法"}},
	})
	require.NoError(t, err)

	var hz struct {
		RiskItems []entity.RiskItem `json:"risk_items"`
	}
	require.NoError(t, json.Unmarshal(hazards.JSON, &hz))
	require.Len(t, hz.RiskItems, len(entity.FiveFactors))
	for i, item := range hz.RiskItems {
		assert.Equal(t, entity.FiveFactors[i], item.Dimension)
		assert.Nil(t, item.DimensionID)
	}

	var deltas strings.Builder
	scores, err := m.ChatJSONStream(ctx, &entity.ChatRequest{
		Stage:    entity.StageFMEAScoring,
		Messages: []entity.ChatMessage{{Role: "user", Content: string(hazards.JSON)}},
	}, entity.StreamHandler{OnDelta: func(d string) { deltas.WriteString(d) }})
	require.NoError(t, err)
	assert.Equal(t, scores.Content, deltas.String())

	var sc struct {
		Scores []entity.ScoreRow `json:"scores"`
	}
	require.NoError(t, json.Unmarshal(scores.JSON, &sc))
	require.Len(t, sc.Scores, 5)
	assert.Equal(t, "R1", sc.Scores[0].RiskID)
	assert.Equal(t, 162, sc.Scores[0].S*sc.Scores[0].P*sc.Scores[0].D)
}

func TestMockConnector_ProcessSteps(t *testing.T) {
	m := NewMockConnector(zap.NewNop())

	res, err := m.ChatJSON(context.Background(), &entity.ChatRequest{
		Stage: entity.StageHazardIdentification,
		Messages: []entity.ChatMessage{{Role: "user", Content: "流程步骤：\n- id: S1 | name: 配料\n- id: S2 | name: 灌装\n"}},
	})
	require.NoError(t, err)

	var hz struct {
		RiskItems []entity.RiskItem `json:"risk_items"`
	}
	require.NoError(t, json.Unmarshal(res.JSON, &hz))
	require.Len(t, hz.RiskItems, 2)
	assert.Equal(t, entity.DimensionProcessFlow, hz.RiskItems[1].DimensionType)
	assert.Equal(t, "灌装", hz.RiskItems[1].Dimension)
	require.NotNil(t, hz.RiskItems[1].DimensionID)
	assert.Equal(t, "S2", *hz.RiskItems[1].DimensionID)
}
