package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xxxsen/common/logger"

	appErr "github.com/dsetyadi/chatagent/internal/pkg/errors"
)

const (
	defaultEmbeddingModel = "text-embedding-3-small"
	defaultChatModel      = "gpt-4o"

	defaultSystemPrompt = "You are an assistant that answers questions from the provided knowledge base. " +
		"Use only the supplied context; when the context does not contain the answer, say so explicitly."
	defaultUserPromptTemplate = "Context from the knowledge base:\n{context}\n\nQuestion: {query}\n\n" +
		"Answer clearly and accurately based on the context above."
)

type Config struct {
	Port                 int              `json:"port"`
	CORSAllowlist        []string         `json:"cors_allowlist"`
	ChatRateLimitSeconds int              `json:"chat_rate_limit_seconds"`
	Database             DatabaseConfig   `json:"database"`
	LogConfig            logger.LogConfig `json:"log_config"`
	FileStore            FileStoreConfig  `json:"file_store"`
	AI                   AIConfig         `json:"ai"`
	RAG                  RAGConfig        `json:"rag"`
	Jobs                 JobConfig        `json:"jobs"`
}

type JobConfig struct {
	EmbeddingBackfillCron string `json:"embedding_backfill_cron"`
	BackfillPageSize      int    `json:"backfill_page_size"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type AIConfig struct {
	Provider       string      `json:"provider"`
	Data           interface{} `json:"data"`
	EmbeddingModel string      `json:"embedding_model"`
	ChatModel      string      `json:"chat_model"`
	TimeoutSeconds int         `json:"timeout_seconds"`
}

type PricingConfig struct {
	PerThousandTokens  map[string]float64 `json:"per_1k_tokens"`
	DefaultPerThousand float64            `json:"default_per_1k"`
}

type RAGConfig struct {
	MaxTokensPerChunk  int           `json:"max_tokens_per_chunk"`
	OverlapTokens      int           `json:"overlap_tokens"`
	MaxContextLength   int           `json:"max_context_length"`
	DefaultTopK        int           `json:"default_top_k"`
	SystemPrompt       string        `json:"system_prompt"`
	UserPromptTemplate string        `json:"user_prompt_template"`
	Pricing            PricingConfig `json:"pricing"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.applyDefaultsAndValidate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaultsAndValidate() error {
	if cfg.Port == 0 {
		cfg.Port = 5000
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return appErr.Validation("database.dsn or database.host is required")
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	if cfg.AI.Provider == "" {
		return appErr.Validation("ai.provider is required")
	}
	if cfg.AI.EmbeddingModel == "" {
		cfg.AI.EmbeddingModel = defaultEmbeddingModel
	}
	if cfg.AI.ChatModel == "" {
		cfg.AI.ChatModel = defaultChatModel
	}
	if cfg.AI.TimeoutSeconds < 0 {
		return appErr.Validation("ai.timeout_seconds must not be negative")
	}
	if cfg.ChatRateLimitSeconds < 0 {
		return appErr.Validation("chat_rate_limit_seconds must not be negative")
	}
	if cfg.Jobs.EmbeddingBackfillCron == "" {
		cfg.Jobs.EmbeddingBackfillCron = "*/5 * * * *"
	}
	if cfg.Jobs.BackfillPageSize == 0 {
		cfg.Jobs.BackfillPageSize = 64
	}
	return cfg.RAG.applyDefaultsAndValidate()
}

func (r *RAGConfig) applyDefaultsAndValidate() error {
	if r.MaxTokensPerChunk == 0 {
		r.MaxTokensPerChunk = 8000
	}
	if r.MaxTokensPerChunk < 0 {
		return appErr.Validation("rag.max_tokens_per_chunk must be positive")
	}
	if r.OverlapTokens == 0 {
		r.OverlapTokens = 200
	}
	if r.OverlapTokens < 0 {
		return appErr.Validation("rag.overlap_tokens must not be negative")
	}
	if r.OverlapTokens >= r.MaxTokensPerChunk {
		return appErr.Validation("rag.overlap_tokens must be smaller than rag.max_tokens_per_chunk")
	}
	if r.MaxContextLength == 0 {
		r.MaxContextLength = 1000
	}
	if r.MaxContextLength < 0 {
		return appErr.Validation("rag.max_context_length must be positive")
	}
	if r.DefaultTopK == 0 {
		r.DefaultTopK = 3
	}
	if r.DefaultTopK < 0 {
		return appErr.Validation("rag.default_top_k must be positive")
	}
	if r.SystemPrompt == "" {
		r.SystemPrompt = defaultSystemPrompt
	}
	if r.UserPromptTemplate == "" {
		r.UserPromptTemplate = defaultUserPromptTemplate
	}
	// a template without the placeholders would silently produce
	// prompts with no context or no question; refuse to boot instead
	for _, placeholder := range []string{"{context}", "{query}"} {
		if !strings.Contains(r.UserPromptTemplate, placeholder) {
			return appErr.Validation("rag.user_prompt_template must contain %s", placeholder)
		}
	}
	if r.Pricing.PerThousandTokens == nil {
		r.Pricing.PerThousandTokens = map[string]float64{
			"text-embedding-3-small": 0.00002,
			"text-embedding-3-large": 0.00013,
			"text-embedding-ada-002": 0.0001,
		}
	}
	if r.Pricing.DefaultPerThousand == 0 {
		r.Pricing.DefaultPerThousand = 0.0001
	}
	return nil
}
