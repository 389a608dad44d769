package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/avast/retry-go/v4"
	"github.com/futig/risk-report-backend/internal/config"
	"github.com/futig/risk-report-backend/internal/entity"
	"github.com/futig/risk-report-backend/internal/integration/common"
	"github.com/futig/risk-report-backend/internal/pkg/jsonx"
	"github.com/futig/risk-report-backend/internal/pkg/sse"
	pkghttp "github.com/futig/risk-report-backend/pkg/http"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
)

// Connector talks to an OpenAI-compatible chat completions endpoint
type Connector struct {
	config    config.LLMConnectorConfig
	connector *pkghttp.Connector
	logger    *zap.Logger
}

func NewConnector(
	cfg config.LLMConnectorConfig,
	logger *zap.Logger,
	opts ...pkghttp.HttpOpts,
) *Connector {
	return &Connector{
		connector: common.NewBaseConnector(cfg.HTTPClientConfig, logger, append(opts, pkghttp.WithoutCompression())...),
		config:    cfg,
		logger:    logger,
	}
}

// ChatJSON sends a buffered JSON-mode request and returns the extracted JSON document.
func (c *Connector) ChatJSON(ctx context.Context, req *entity.ChatRequest) (*entity.ChatResult, error) {
	ctxzap.Info(ctx, "requesting JSON completion", zap.String("stage", string(req.Stage)))

	body := c.completionRequest(req, true, false)

	var resp entity.ChatCompletionResponse
	err := retry.Do(func() error {
		return c.connector.DoRequest(ctx, http.MethodPost, c.config.ChatCompletionsPath, body, &resp)
	}, c.config.Retry.ToRetryOptions(ctx)...)
	if err != nil {
		return nil, c.wrapError(ctx, err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, fmt.Errorf("%w: empty completion", entity.ErrInvalidModelOutput)
	}
	content := resp.Choices[0].Message.Content

	raw, err := jsonx.Extract(content)
	if err != nil {
		return nil, err
	}

	ctxzap.Info(ctx, "JSON completion received",
		zap.String("stage", string(req.Stage)),
		zap.Int("content_length", len(content)),
	)

	return &entity.ChatResult{Content: content, JSON: raw, Usage: resp.Usage}, nil
}

// ChatJSONStream streams a JSON-mode completion, forwarding token deltas and usage to h.
func (c *Connector) ChatJSONStream(ctx context.Context, req *entity.ChatRequest, h entity.StreamHandler) (*entity.ChatResult, error) {
	content, usage, err := c.stream(ctx, req, true, h)
	if err != nil {
		return nil, err
	}

	raw, err := jsonx.Extract(content)
	if err != nil {
		return nil, err
	}

	return &entity.ChatResult{Content: content, JSON: raw, Usage: usage}, nil
}

// ChatTextStream streams a plain-text (markdown) completion.
func (c *Connector) ChatTextStream(ctx context.Context, req *entity.ChatRequest, h entity.StreamHandler) (*entity.ChatResult, error) {
	content, usage, err := c.stream(ctx, req, false, h)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: empty completion", entity.ErrInvalidModelOutput)
	}

	return &entity.ChatResult{Content: content, Usage: usage}, nil
}

func (c *Connector) stream(ctx context.Context, req *entity.ChatRequest, jsonMode bool, h entity.StreamHandler) (string, *entity.TokenUsage, error) {
	ctxzap.Info(ctx, "requesting streaming completion",
		zap.String("stage", string(req.Stage)),
		zap.Bool("json_mode", jsonMode),
	)

	body := c.completionRequest(req, jsonMode, true)

	// retries stop once the backend has accepted the request; a broken stream is not replayed
	var stream io.ReadCloser
	err := retry.Do(func() error {
		s, err := c.connector.DoStream(ctx, http.MethodPost, c.config.ChatCompletionsPath, body)
		if err != nil {
			return err
		}
		stream = s
		return nil
	}, c.config.Retry.ToRetryOptions(ctx)...)
	if err != nil {
		return "", nil, c.wrapError(ctx, err)
	}
	defer stream.Close()

	var text strings.Builder
	var usage *entity.TokenUsage
	frames := 0

	err = sse.ReadAll(stream, func(f sse.Frame) error {
		var chunk entity.ChatCompletionChunk
		if err := json.Unmarshal([]byte(f.Data), &chunk); err != nil {
			ctxzap.Debug(ctx, "skipping undecodable stream frame", zap.Error(err))
			return nil
		}
		frames++

		if chunk.Error != nil {
			return fmt.Errorf("%w: stream error: %s", entity.ErrBackendHTTP, chunk.Error.Message)
		}

		for _, choice := range chunk.Choices {
			text.WriteString(choice.Delta.Content)
			h.Delta(choice.Delta.Content)
		}

		if chunk.Usage != nil {
			u := *chunk.Usage
			usage = &u
			h.Usage(u)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, entity.ErrBackendHTTP) {
			return "", nil, err
		}
		return "", nil, c.wrapError(ctx, &pkghttp.NetworkError{Err: err})
	}

	ctxzap.Info(ctx, "streaming completion finished",
		zap.String("stage", string(req.Stage)),
		zap.Int("frames", frames),
		zap.Int("content_length", text.Len()),
	)

	return text.String(), usage, nil
}

func (c *Connector) completionRequest(req *entity.ChatRequest, jsonMode, stream bool) *entity.ChatCompletionRequest {
	temperature := c.config.Temperature
	body := &entity.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    req.Messages,
		Temperature: &temperature,
		MaxTokens:   c.config.MaxTokens,
	}

	if jsonMode {
		body.ResponseFormat = &entity.ResponseFormat{Type: "json_object"}
	}

	if stream {
		body.Stream = true
		body.StreamOptions = &entity.StreamOptions{IncludeUsage: true}
	}

	return body
}

func (c *Connector) wrapError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", entity.ErrCancelled, ctx.Err())
	}

	var httpErr *pkghttp.HTTPError
	if errors.As(err, &httpErr) {
		ctxzap.Error(ctx, "model backend returned error status",
			zap.Int("status", httpErr.StatusCode),
			zap.String("body", httpErr.Message),
		)
		return fmt.Errorf("%w: status %d: %s", entity.ErrBackendHTTP, httpErr.StatusCode, httpErr.Message)
	}

	ctxzap.Error(ctx, "chat completion failed", zap.Error(err))
	return fmt.Errorf("chat completion: %w", err)
}
