package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/avast/retry-go/v4"
	"github.com/futig/risk-report-backend/internal/config"
	"github.com/futig/risk-report-backend/internal/entity"
	"github.com/futig/risk-report-backend/internal/integration/common"
	pkghttp "github.com/futig/risk-report-backend/pkg/http"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
)

// Connector calls an OpenAI-compatible /embeddings endpoint
type Connector struct {
	config    config.EmbeddingConnectorConfig
	connector *pkghttp.Connector
	logger    *zap.Logger
}

func NewConnector(
	cfg config.EmbeddingConnectorConfig,
	logger *zap.Logger,
	opts ...pkghttp.HttpOpts,
) *Connector {
	return &Connector{
		connector: common.NewBaseConnector(cfg.HTTPClientConfig, logger, opts...),
		config:    cfg,
		logger:    logger,
	}
}

func (c *Connector) BaseURL() string {
	return c.connector.BaseURL()
}

func (c *Connector) Model() string {
	return c.config.Model
}

// EmbedBatch embeds inputs in a single request. The returned vectors are in input order.
// POST {embeddings_path} {"model": ..., "input": [...]}
func (c *Connector) EmbedBatch(ctx context.Context, inputs []string) ([][]float32, error) {
	ctxzap.Debug(ctx, "requesting embeddings", zap.Int("batch_size", len(inputs)))

	req := &entity.EmbeddingRequest{
		Model: c.config.Model,
		Input: inputs,
	}

	var resp entity.EmbeddingResponse
	err := retry.Do(func() error {
		resp = entity.EmbeddingResponse{}
		return c.connector.DoRequest(ctx, http.MethodPost, c.config.EmbeddingsPath, req, &resp)
	}, c.config.Retry.ToRetryOptions(ctx)...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", entity.ErrCancelled, ctx.Err())
		}

		var httpErr *pkghttp.HTTPError
		if errors.As(err, &httpErr) {
			return nil, &entity.EmbeddingError{
				Reason: fmt.Sprintf("backend returned status %d", httpErr.StatusCode),
				Err:    err,
			}
		}
		return nil, &entity.EmbeddingError{Reason: "request failed", Err: err}
	}

	vectors, err := orderVectors(resp.Data, len(inputs))
	if err != nil {
		ctxzap.Warn(ctx, "unusable embedding response", zap.Error(err))
		return nil, err
	}

	return vectors, nil
}

// orderVectors places the response vectors by index and checks count, emptiness and dimensionality.
func orderVectors(data []entity.EmbeddingData, want int) ([][]float32, error) {
	if len(data) != want {
		return nil, &entity.EmbeddingError{
			Reason: fmt.Sprintf("count mismatch: got %d vectors for %d inputs", len(data), want),
		}
	}

	// some backends leave every index at zero; response order is used then
	indexed := false
	for _, d := range data {
		if d.Index != 0 {
			indexed = true
			break
		}
	}

	vectors := make([][]float32, want)
	for i, d := range data {
		idx := i
		if indexed {
			idx = d.Index
		}
		if idx < 0 || idx >= want || vectors[idx] != nil {
			return nil, &entity.EmbeddingError{Reason: fmt.Sprintf("invalid or duplicate index %d", d.Index)}
		}
		vectors[idx] = d.Embedding
	}

	return vectors, checkVectors(vectors)
}

// checkVectors rejects empty vectors and mixed dimensionality.
func checkVectors(vectors [][]float32) error {
	dim := -1
	for i, v := range vectors {
		if len(v) == 0 {
			return &entity.EmbeddingError{Reason: fmt.Sprintf("empty vector at %d", i)}
		}
		if dim == -1 {
			dim = len(v)
			continue
		}
		if len(v) != dim {
			return &entity.EmbeddingError{
				Reason: fmt.Sprintf("inconsistent dimensionality: %d and %d", dim, len(v)),
			}
		}
	}
	return nil
}
