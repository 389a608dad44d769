package report

import (
	"context"

	"github.com/futig/risk-report-backend/internal/entity"
	"github.com/futig/risk-report-backend/internal/usecase/retrieval"
)

type LLMConnector interface {
	ChatJSON(ctx context.Context, req *entity.ChatRequest) (*entity.ChatResult, error)
	ChatJSONStream(ctx context.Context, req *entity.ChatRequest, h entity.StreamHandler) (*entity.ChatResult, error)
	ChatTextStream(ctx context.Context, req *entity.ChatRequest, h entity.StreamHandler) (*entity.ChatResult, error)
}

type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// ModelFactory resolves the connectors a run talks to from its ModelContext.
// Embedder returns nil when cfg is nil.
type ModelFactory interface {
	LLM(cfg entity.LLMConfig) LLMConnector
	Embedder(cfg *entity.EmbeddingConfig) Embedder
}

type Retriever interface {
	Retrieve(ctx context.Context, sources []entity.SourceText, query string, topK int, embedder retrieval.Embedder) (*retrieval.Result, error)
}

// EventSink receives every event of a run. Emit must not block the run.
type EventSink interface {
	Emit(ctx context.Context, event entity.WorkflowEvent)
}
