package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/futig/risk-report-backend/internal/config"
	"github.com/futig/risk-report-backend/internal/entity"
	"github.com/futig/risk-report-backend/internal/pkg/chunker"
	"github.com/futig/risk-report-backend/internal/pkg/textnorm"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
)

// Embedder returns one vector per input, in input order
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// Result is the outcome of one retrieval. Evidence merges both categories by descending score.
type Result struct {
	SOP           []entity.EvidenceChunk
	Literature    []entity.EvidenceChunk
	Evidence      []entity.EvidenceChunk
	UsedEmbedding bool
	Degraded      bool
	DegradeReason string
}

type Retriever struct {
	cfg config.RetrievalConfig
}

func NewRetriever(cfg config.RetrievalConfig) *Retriever {
	return &Retriever{cfg: cfg}
}

type candidate struct {
	chunk entity.Chunk
	lower string
	score float64
}

// Retrieve ranks the chunks of sources against query and keeps topK per category. A nil
// embedder selects lexical scoring. Embedding failures degrade to lexical scoring and are
// reported in the result; only cancellation is returned as an error.
func (r *Retriever) Retrieve(ctx context.Context, sources []entity.SourceText, query string, topK int, embedder Embedder) (*Result, error) {
	if topK <= 0 {
		topK = r.cfg.TopK
	}

	keywords := Keywords(query)
	variants := QueryVariants(query)

	ctxzap.Debug(ctx, "retrieval started",
		zap.Int("sources", len(sources)),
		zap.Int("keywords", len(keywords)),
		zap.Int("variants", len(variants)),
		zap.Bool("embedding", embedder != nil),
	)

	if embedder == nil || len(variants) == 0 {
		return r.lexical(sources, keywords, topK), nil
	}

	res, err := r.dense(ctx, sources, keywords, variants, topK, embedder)
	if err == nil {
		return res, nil
	}

	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %w", entity.ErrCancelled, ctx.Err())
	}

	ctxzap.Warn(ctx, "embedding retrieval failed, falling back to lexical", zap.Error(err))

	res = r.lexical(sources, keywords, topK)
	res.Degraded = true
	res.DegradeReason = err.Error()
	return res, nil
}

func (r *Retriever) dense(
	ctx context.Context,
	sources []entity.SourceText,
	keywords, variants []string,
	topK int,
	embedder Embedder,
) (*Result, error) {
	candidates := chunkSources(sources, chunker.Options{
		MaxLen:    r.cfg.DenseMaxLen,
		Overlap:   r.cfg.DenseOverlap,
		MaxChunks: r.cfg.DenseMaxChunks,
	})
	if len(candidates) == 0 {
		res := topPerCategory(nil, topK)
		res.UsedEmbedding = true
		return res, nil
	}

	if len(candidates) > r.cfg.CandidateCeiling {
		target := min(topK*r.cfg.CandidatesPerK, r.cfg.CandidateCeiling)
		candidates = prefilter(candidates, keywords, variants, target)
	}

	inputs := make([]string, 0, len(variants)+len(candidates))
	inputs = append(inputs, variants...)
	for _, c := range candidates {
		inputs = append(inputs, c.chunk.Content)
	}

	vectors, err := embedder.Embed(ctx, inputs)
	if err != nil {
		return nil, err
	}
	if err := checkDimensions(vectors, len(inputs)); err != nil {
		return nil, err
	}

	queryVecs := vectors[:len(variants)]
	for i := range candidates {
		vec := vectors[len(variants)+i]
		best := -1.0
		for _, q := range queryVecs {
			best = max(best, cosine(q, vec))
		}
		c := &candidates[i]
		c.score = hybridScore(best, hitRate(c.lower, keywords), phraseBonus(c.lower, variants))
	}

	res := topPerCategory(candidates, topK)
	res.UsedEmbedding = true
	return res, nil
}

func (r *Retriever) lexical(sources []entity.SourceText, keywords []string, topK int) *Result {
	candidates := chunkSources(sources, chunker.Options{
		MaxLen:    r.cfg.LexicalMaxLen,
		Overlap:   r.cfg.LexicalOverlap,
		MaxChunks: r.cfg.LexicalMaxChunks,
	})

	kept := candidates[:0]
	for _, c := range candidates {
		c.score = float64(keywordHits(c.lower, keywords))
		if c.score >= 1 {
			kept = append(kept, c)
		}
	}

	return topPerCategory(kept, topK)
}

func chunkSources(sources []entity.SourceText, opts chunker.Options) []candidate {
	var out []candidate
	for _, src := range sources {
		text := textnorm.Normalize(src.Text)
		if text == "" {
			continue
		}
		for _, content := range chunker.Split(text, opts) {
			out = append(out, candidate{
				chunk: entity.Chunk{Content: content, Category: src.Category, Filename: src.Filename},
				lower: strings.ToLower(content),
			})
		}
	}
	return out
}

// prefilter keeps the target best candidates by lexical score, preserving document order on ties.
func prefilter(candidates []candidate, keywords, variants []string, target int) []candidate {
	type ranked struct {
		idx   int
		score float64
	}

	ranks := make([]ranked, len(candidates))
	for i, c := range candidates {
		ranks[i] = ranked{idx: i, score: hitRate(c.lower, keywords) + phraseBonus(c.lower, variants)}
	}
	sort.SliceStable(ranks, func(a, b int) bool { return ranks[a].score > ranks[b].score })

	if target > len(ranks) {
		target = len(ranks)
	}
	keep := ranks[:target]
	sort.Slice(keep, func(a, b int) bool { return keep[a].idx < keep[b].idx })

	out := make([]candidate, len(keep))
	for i, k := range keep {
		out[i] = candidates[k.idx]
	}
	return out
}

func checkDimensions(vectors [][]float32, want int) error {
	if len(vectors) != want {
		return &entity.EmbeddingError{Reason: fmt.Sprintf("count mismatch: got %d vectors for %d inputs", len(vectors), want)}
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return &entity.EmbeddingError{Reason: fmt.Sprintf("empty vector at %d", i)}
		}
		if len(v) != len(vectors[0]) {
			return &entity.EmbeddingError{
				Reason: fmt.Sprintf("inconsistent dimensionality: %d and %d", len(vectors[0]), len(v)),
			}
		}
	}
	return nil
}

// topPerCategory sorts by descending score, ties in insertion order, and keeps topK per category.
func topPerCategory(candidates []candidate, topK int) *Result {
	sort.SliceStable(candidates, func(a, b int) bool { return candidates[a].score > candidates[b].score })

	res := &Result{
		SOP:        []entity.EvidenceChunk{},
		Literature: []entity.EvidenceChunk{},
		Evidence:   []entity.EvidenceChunk{},
	}

	for _, c := range candidates {
		ev := entity.EvidenceChunk{Chunk: c.chunk, Score: c.score}
		switch c.chunk.Category {
		case entity.CategoryLiterature:
			if len(res.Literature) < topK {
				res.Literature = append(res.Literature, ev)
				res.Evidence = append(res.Evidence, ev)
			}
		default:
			if len(res.SOP) < topK {
				res.SOP = append(res.SOP, ev)
				res.Evidence = append(res.Evidence, ev)
			}
		}
	}

	return res
}
