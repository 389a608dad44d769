package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	pkgRetry "github.com/futig/risk-report-backend/internal/pkg/retry"
	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	// Server configuration
	ServerAddr         string        `env:"SERVER_ADDR,notEmpty"`
	ServerReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"30s"`
	ServerWriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"0s"` // 0 keeps SSE streams open
	MaxRequestBody     int64         `env:"MAX_REQUEST_BODY" envDefault:"33554432"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	// Model backends
	LLMConnectorCfg       LLMConnectorConfig       `envPrefix:"LLM_"`
	EmbeddingConnectorCfg EmbeddingConnectorConfig `envPrefix:"EMBEDDING_"`
	EmbeddingCacheCfg     EmbeddingCacheConfig     `envPrefix:"EMBEDDING_CACHE_"`

	// Report generation
	InputCfg     InputConfig     `envPrefix:"INPUT_"`
	RetrievalCfg RetrievalConfig `envPrefix:"RETRIEVAL_"`
	WorkflowCfg  WorkflowConfig  `envPrefix:"WORKFLOW_"`
	ExportCfg    ExportConfig    `envPrefix:"EXPORT_"`

	// Logging configuration
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Mock configuration
	EnableMocks bool `env:"ENABLE_MOCKS" envDefault:"false"`

	// Telegram notifications (optional)
	TelegramCfg TelegramConfig `envPrefix:"TELEGRAM_"`

	// Callback delivery of terminal events
	CallbackConnectorCfg CallbackConnectorConfig `envPrefix:"CALLBACK_"`

	// Environment (set from flag, not from env var)
	Environment string
}

// TelegramConfig holds Telegram notifier configuration. Notifications are off without a token.
type TelegramConfig struct {
	BotToken    string `env:"BOT_TOKEN"`
	ChatID      int64  `env:"CHAT_ID"`
	APIEndpoint string `env:"API_ENDPOINT" envDefault:"https://api.telegram.org/bot%s/%s"`
}

func (c TelegramConfig) Enabled() bool {
	return c.BotToken != "" && c.ChatID != 0
}

type LLMConnectorConfig struct {
	HTTPClientConfig
	Model               string               `env:"MODEL" envDefault:"gpt-4o-mini"`
	Temperature         float64              `env:"TEMPERATURE" envDefault:"0.2"`
	MaxTokens           int                  `env:"MAX_TOKENS" envDefault:"4096"`
	ChatCompletionsPath string               `env:"CHAT_COMPLETIONS_PATH" envDefault:"/chat/completions"`
	RateLimitRPS        float64              `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst      int                  `env:"RATE_LIMIT_BURST" envDefault:"5"`
	Retry               pkgRetry.RetryConfig `envPrefix:"RETRY_"`
}

type EmbeddingConnectorConfig struct {
	HTTPClientConfig
	Enabled        bool                 `env:"ENABLED" envDefault:"false"`
	Model          string               `env:"MODEL"`
	EmbeddingsPath string               `env:"PATH" envDefault:"/embeddings"`
	BatchSize      int                  `env:"BATCH_SIZE" envDefault:"10"`
	Concurrency    int                  `env:"CONCURRENCY" envDefault:"2"`
	Retry          pkgRetry.RetryConfig `envPrefix:"RETRY_"`
}

type EmbeddingCacheConfig struct {
	TTL             time.Duration `env:"TTL" envDefault:"24h"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1h"`
}

// InputConfig bounds what a single report request may carry
type InputConfig struct {
	MaxSourceTexts  int `env:"MAX_SOURCE_TEXTS" envDefault:"20"`
	MaxTextBytes    int `env:"MAX_TEXT_BYTES" envDefault:"2097152"`
	MaxProcessSteps int `env:"MAX_PROCESS_STEPS" envDefault:"50"`
}

type RetrievalConfig struct {
	TopK             int `env:"TOP_K" envDefault:"8"`
	LexicalMaxLen    int `env:"LEXICAL_MAX_LEN" envDefault:"600"`
	LexicalOverlap   int `env:"LEXICAL_OVERLAP" envDefault:"0"`
	LexicalMaxChunks int `env:"LEXICAL_MAX_CHUNKS" envDefault:"48"`
	DenseMaxLen      int `env:"DENSE_MAX_LEN" envDefault:"800"`
	DenseOverlap     int `env:"DENSE_OVERLAP" envDefault:"200"`
	DenseMaxChunks   int `env:"DENSE_MAX_CHUNKS" envDefault:"240"`
	CandidateCeiling int `env:"CANDIDATE_CEILING" envDefault:"240"`
	CandidatesPerK   int `env:"CANDIDATES_PER_K" envDefault:"24"`
}

type WorkflowConfig struct {
	StageDelay          time.Duration `env:"STAGE_DELAY" envDefault:"0s"`
	TemplateSummaryLen  int           `env:"TEMPLATE_SUMMARY_LEN" envDefault:"1200"`
	EvidenceCharsPerRun int           `env:"EVIDENCE_CHARS" envDefault:"12000"`
	StreamStages        bool          `env:"STREAM_STAGES" envDefault:"true"`
}

// ExportConfig configures document downloads. PDF falls back to a core font without CJK glyphs
// when FontPath does not exist.
type ExportConfig struct {
	FontPath string `env:"FONT_PATH" envDefault:"ttf/NotoSansSC-Regular.ttf"`
}

type CallbackConnectorConfig struct {
	HTTPClientConfig
	Retry pkgRetry.RetryConfig `envPrefix:"RETRY_"`
}

type HTTPClientConfig struct {
	RequestTimeout        time.Duration `env:"TIMEOUT" envDefault:"10m"`
	ConnTimeout           time.Duration `env:"CONN_TIMEOUT" envDefault:"10s"`
	KeepAlive             time.Duration `env:"KEEP_ALIVE" envDefault:"90s"`
	IdleConnTimeout       time.Duration `env:"IDLE_CONN_TIMEOUT" envDefault:"90s"`
	ResponseHeaderTimeout time.Duration `env:"RESPONSE_HEADER_TIMEOUT" envDefault:"2m"`
	Token                 string        `env:"TOKEN"`
	Url                   string        `env:"SERVICE_URL"`
}

func LoadConfig() (*Config, error) {
	envFlag := flag.String("env", "local", "Environment to run (local, prod, or custom)")
	flag.Parse()

	envFile := getEnvFile(*envFlag)
	// Try to load env file, but don't fail if it's missing.
	// In containerized/prod environments variables are usually set externally.
	if err := godotenv.Load(envFile); err != nil {
		fmt.Printf("Warning: could not load %s file (this is ok if env vars are set externally): %v\n", envFile, err)
	}

	cfg, err := Parse()
	if err != nil {
		return nil, err
	}
	cfg.Environment = *envFlag

	return cfg, nil
}

// Parse reads the configuration from the process environment and validates it.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func validateConfig(cfg *Config) error {
	var errors []string

	if !cfg.EnableMocks && cfg.LLMConnectorCfg.Url == "" {
		errors = append(errors, "LLM_SERVICE_URL is required unless ENABLE_MOCKS is set")
	}

	if cfg.LLMConnectorCfg.Temperature < 0 || cfg.LLMConnectorCfg.Temperature > 2 {
		errors = append(errors, fmt.Sprintf("LLM_TEMPERATURE must be between 0 and 2, got %g", cfg.LLMConnectorCfg.Temperature))
	}

	if cfg.LLMConnectorCfg.RateLimitRPS <= 0 || cfg.LLMConnectorCfg.RateLimitBurst < 1 {
		errors = append(errors, "LLM_RATE_LIMIT_RPS must be positive and LLM_RATE_LIMIT_BURST at least 1")
	}

	// Validate embedding configuration
	emb := cfg.EmbeddingConnectorCfg
	if emb.Enabled {
		if !cfg.EnableMocks && emb.Url == "" {
			errors = append(errors, "EMBEDDING_SERVICE_URL is required when EMBEDDING_ENABLED is set")
		}
		if emb.Model == "" {
			errors = append(errors, "EMBEDDING_MODEL is required when EMBEDDING_ENABLED is set")
		}
	}

	if emb.BatchSize < 1 || emb.BatchSize > 64 {
		errors = append(errors, fmt.Sprintf("EMBEDDING_BATCH_SIZE must be between 1 and 64, got %d", emb.BatchSize))
	}

	if emb.Concurrency < 1 || emb.Concurrency > 16 {
		errors = append(errors, fmt.Sprintf("EMBEDDING_CONCURRENCY must be between 1 and 16, got %d", emb.Concurrency))
	}

	// Validate retrieval configuration
	r := cfg.RetrievalCfg
	if r.TopK < 1 || r.TopK > 50 {
		errors = append(errors, fmt.Sprintf("RETRIEVAL_TOP_K must be between 1 and 50, got %d", r.TopK))
	}

	if r.LexicalMaxLen < 1 || r.LexicalOverlap < 0 || r.LexicalOverlap >= r.LexicalMaxLen {
		errors = append(errors, fmt.Sprintf("RETRIEVAL_LEXICAL_OVERLAP must be in [0, %d), got %d", r.LexicalMaxLen, r.LexicalOverlap))
	}

	if r.DenseMaxLen < 1 || r.DenseOverlap < 0 || r.DenseOverlap >= r.DenseMaxLen {
		errors = append(errors, fmt.Sprintf("RETRIEVAL_DENSE_OVERLAP must be in [0, %d), got %d", r.DenseMaxLen, r.DenseOverlap))
	}

	if r.LexicalMaxChunks < 1 || r.DenseMaxChunks < 1 || r.CandidateCeiling < 1 || r.CandidatesPerK < 1 {
		errors = append(errors, "RETRIEVAL chunk and candidate limits must be positive")
	}

	in := cfg.InputCfg
	if in.MaxSourceTexts < 0 || in.MaxTextBytes < 1 || in.MaxProcessSteps < 1 {
		errors = append(errors, "INPUT limits must be positive")
	}

	if cfg.WorkflowCfg.StageDelay < 0 || cfg.WorkflowCfg.StageDelay > 10*time.Second {
		errors = append(errors, fmt.Sprintf("WORKFLOW_STAGE_DELAY must be between 0 and 10s, got %s", cfg.WorkflowCfg.StageDelay))
	}

	if cfg.TelegramCfg.BotToken != "" && cfg.TelegramCfg.ChatID == 0 {
		errors = append(errors, "TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation errors:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

func getEnvFile(environment string) string {
	switch environment {
	case "prod", "production":
		return ".env.prod"
	case "local", "dev", "development":
		return ".env.local"
	default:
		return fmt.Sprintf(".env.%s", environment)
	}
}
