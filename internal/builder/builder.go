package builder

import (
	"fmt"
	"net/http"
	"time"

	"github.com/futig/risk-report-backend/internal/api"
	reportapi "github.com/futig/risk-report-backend/internal/api/report"
	"github.com/futig/risk-report-backend/internal/config"
	"github.com/futig/risk-report-backend/internal/entity"
	"github.com/futig/risk-report-backend/internal/integration/callback"
	"github.com/futig/risk-report-backend/internal/integration/notify"
	"github.com/futig/risk-report-backend/internal/pkg/formatter"
	"github.com/futig/risk-report-backend/internal/pkg/validator"
	"github.com/futig/risk-report-backend/internal/usecase/report"
	"github.com/futig/risk-report-backend/internal/usecase/retrieval"
	"go.uber.org/zap"
)

func Build() (*App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := setupLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}

	logger.Info("Building application",
		zap.String("environment", cfg.Environment),
		zap.String("server_addr", cfg.ServerAddr),
		zap.Bool("mocks", cfg.EnableMocks),
	)

	// Initialize model connectors (with mock support)
	if cfg.EnableMocks {
		logger.Info("Using mock connectors for model backends")
	} else {
		logger.Info("Using real connectors for model backends",
			zap.String("llm_url", cfg.LLMConnectorCfg.Url),
			zap.Bool("embedding_enabled", cfg.EmbeddingConnectorCfg.Enabled),
		)
	}
	models := newModelFactory(cfg, logger)

	// Initialize use case
	prompts, err := report.DefaultPrompts()
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	reportUC := report.NewUsecase(
		models,
		retrieval.NewRetriever(cfg.RetrievalCfg),
		prompts,
		report.NewPatternPolicy(),
		cfg.WorkflowCfg,
		cfg.RetrievalCfg.TopK,
	)
	logger.Info("Use cases initialized")

	// Initialize per-run event sinks
	sinks := []reportapi.SinkFactory{callbackSink(callback.NewConnector(cfg.CallbackConnectorCfg, logger))}

	var telegram *notify.Telegram
	if cfg.TelegramCfg.Enabled() {
		telegram, err = notify.NewTelegram(cfg.TelegramCfg, nil, logger)
		if err != nil {
			return nil, fmt.Errorf("initialize telegram notifier: %w", err)
		}
		sinks = append(sinks, telegramSink(telegram))
	} else {
		logger.Info("Telegram notifications disabled")
	}

	// Setup API handler
	inputValidator := validator.NewInputValidator(cfg.InputCfg)
	formatters := formatter.NewFactory(cfg.ExportCfg.FontPath)
	reportHandler := reportapi.NewHandler(reportUC, inputValidator, formatters, defaultModels(cfg), cfg.MaxRequestBody, sinks...)
	logger.Info("API handlers initialized")

	// Setup router
	router := api.SetupRouter(reportHandler, cfg.CORSAllowedOrigins, logger)
	logger.Info("HTTP router configured")

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("Application built successfully",
		zap.String("environment", cfg.Environment),
	)

	return &App{
		server:   server,
		telegram: telegram,
		logger:   logger,
	}, nil
}

func callbackSink(connector *callback.Connector) reportapi.SinkFactory {
	return func(in *entity.ReportInput, runID string) report.EventSink {
		if in.CallbackURL == "" {
			return nil
		}
		return connector.Sink(in.CallbackURL, runID)
	}
}

func telegramSink(telegram *notify.Telegram) reportapi.SinkFactory {
	return func(in *entity.ReportInput, runID string) report.EventSink {
		return telegram.Sink(runID, in.Title)
	}
}
