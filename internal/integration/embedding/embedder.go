package embedding

import (
	"context"
	"fmt"

	"github.com/futig/risk-report-backend/internal/entity"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BatchEmbedder embeds one batch of inputs per call
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, inputs []string) ([][]float32, error)
	BaseURL() string
	Model() string
}

// CachedEmbedder serves vectors from the cache and embeds the misses in bounded batches.
type CachedEmbedder struct {
	backend     BatchEmbedder
	cache       *Cache
	batchSize   int
	concurrency int
}

func NewCachedEmbedder(backend BatchEmbedder, cache *Cache, batchSize, concurrency int) *CachedEmbedder {
	if batchSize < 1 {
		batchSize = 1
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &CachedEmbedder{
		backend:     backend,
		cache:       cache,
		batchSize:   batchSize,
		concurrency: concurrency,
	}
}

// Embed returns one vector per input, in input order. All vectors share one dimensionality
// or an EmbeddingError is returned.
func (e *CachedEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	if len(inputs) == 0 {
		return out, nil
	}

	baseURL, model := e.backend.BaseURL(), e.backend.Model()

	keys := make([]string, len(inputs))
	positions := make(map[string][]int)
	var misses []string

	for i, text := range inputs {
		keys[i] = Key(baseURL, model, text)
		if vec, ok := e.cache.Get(keys[i]); ok {
			out[i] = vec
			continue
		}
		if _, seen := positions[text]; !seen {
			misses = append(misses, text)
		}
		positions[text] = append(positions[text], i)
	}

	ctxzap.Debug(ctx, "embedding lookup",
		zap.Int("inputs", len(inputs)),
		zap.Int("misses", len(misses)),
	)

	if len(misses) > 0 {
		fresh, err := e.embedMisses(ctx, misses)
		if err != nil {
			return nil, err
		}
		for i, text := range misses {
			for _, pos := range positions[text] {
				out[pos] = fresh[i]
			}
		}
	}

	if err := checkVectors(out); err != nil {
		return nil, err
	}

	for i, vec := range out {
		e.cache.Set(keys[i], vec)
	}

	return out, nil
}

func (e *CachedEmbedder) embedMisses(ctx context.Context, misses []string) ([][]float32, error) {
	fresh := make([][]float32, len(misses))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for start := 0; start < len(misses); start += e.batchSize {
		start := start
		end := min(start+e.batchSize, len(misses))

		g.Go(func() error {
			vecs, err := e.backend.EmbedBatch(gctx, misses[start:end])
			if err != nil {
				return err
			}
			if len(vecs) != end-start {
				return &entity.EmbeddingError{
					Reason: fmt.Sprintf("count mismatch: got %d vectors for %d inputs", len(vecs), end-start),
				}
			}
			copy(fresh[start:end], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return fresh, nil
}
