package builder

import (
	"sync"

	"github.com/futig/risk-report-backend/internal/config"
	"github.com/futig/risk-report-backend/internal/entity"
	"github.com/futig/risk-report-backend/internal/integration/embedding"
	"github.com/futig/risk-report-backend/internal/integration/llm"
	"github.com/futig/risk-report-backend/internal/usecase/report"
	pkghttp "github.com/futig/risk-report-backend/pkg/http"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// modelFactory builds model connectors for a ModelContext and reuses them across runs.
// All LLM connectors share one rate limiter, all embedders share one vector cache.
type modelFactory struct {
	cfg     *config.Config
	logger  *zap.Logger
	limiter *rate.Limiter
	cache   *embedding.Cache

	mu        sync.Mutex
	llms      map[entity.LLMConfig]report.LLMConnector
	embedders map[entity.EmbeddingConfig]report.Embedder
}

func newModelFactory(cfg *config.Config, logger *zap.Logger) *modelFactory {
	return &modelFactory{
		cfg:       cfg,
		logger:    logger,
		limiter:   rate.NewLimiter(rate.Limit(cfg.LLMConnectorCfg.RateLimitRPS), cfg.LLMConnectorCfg.RateLimitBurst),
		cache:     embedding.NewCache(cfg.EmbeddingCacheCfg.TTL, cfg.EmbeddingCacheCfg.CleanupInterval),
		llms:      make(map[entity.LLMConfig]report.LLMConnector),
		embedders: make(map[entity.EmbeddingConfig]report.Embedder),
	}
}

// defaultModels is the ModelContext runs use when the request does not carry one
func defaultModels(cfg *config.Config) entity.ModelContext {
	mc := entity.ModelContext{
		LLM: entity.LLMConfig{
			BaseURL:     cfg.LLMConnectorCfg.Url,
			APIKey:      cfg.LLMConnectorCfg.Token,
			Model:       cfg.LLMConnectorCfg.Model,
			Temperature: cfg.LLMConnectorCfg.Temperature,
			MaxTokens:   cfg.LLMConnectorCfg.MaxTokens,
		},
	}

	if cfg.EmbeddingConnectorCfg.Enabled {
		mc.Embedding = &entity.EmbeddingConfig{
			BaseURL: cfg.EmbeddingConnectorCfg.Url,
			APIKey:  cfg.EmbeddingConnectorCfg.Token,
			Model:   cfg.EmbeddingConnectorCfg.Model,
		}
	}

	return mc
}

func (f *modelFactory) LLM(mc entity.LLMConfig) report.LLMConnector {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.llms[mc]; ok {
		return c
	}

	var c report.LLMConnector
	if f.cfg.EnableMocks {
		c = llm.NewMockConnector(f.logger)
	} else {
		connCfg := f.cfg.LLMConnectorCfg
		connCfg.Url = mc.BaseURL
		connCfg.Token = mc.APIKey
		connCfg.Model = mc.Model
		connCfg.Temperature = mc.Temperature
		connCfg.MaxTokens = mc.MaxTokens
		c = llm.NewConnector(connCfg, f.logger, pkghttp.WithRateLimit(f.limiter))
	}

	f.logger.Info("model connector created",
		zap.String("base_url", mc.BaseURL),
		zap.String("model", mc.Model),
		zap.Bool("mock", f.cfg.EnableMocks),
	)
	f.llms[mc] = c
	return c
}

func (f *modelFactory) Embedder(mc *entity.EmbeddingConfig) report.Embedder {
	if mc == nil {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if e, ok := f.embedders[*mc]; ok {
		return e
	}

	var backend embedding.BatchEmbedder
	if f.cfg.EnableMocks {
		backend = embedding.NewMockConnector(f.logger)
	} else {
		connCfg := f.cfg.EmbeddingConnectorCfg
		connCfg.Url = mc.BaseURL
		connCfg.Token = mc.APIKey
		connCfg.Model = mc.Model
		backend = embedding.NewConnector(connCfg, f.logger)
	}

	e := embedding.NewCachedEmbedder(backend, f.cache,
		f.cfg.EmbeddingConnectorCfg.BatchSize, f.cfg.EmbeddingConnectorCfg.Concurrency)

	f.logger.Info("embedding connector created",
		zap.String("base_url", mc.BaseURL),
		zap.String("model", mc.Model),
		zap.Bool("mock", f.cfg.EnableMocks),
	)
	f.embedders[*mc] = e
	return e
}
