package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/daverage/strata/internal/memory"
)

const (
	DefaultWorkingMemoryLimit      = 10
	DefaultEpisodicRetentionDays   = 30
	DefaultConsolidationThreshold  = 0.8
	DefaultProceduralMinExecutions = 3
	DefaultPromotionThreshold      = 3
	DefaultContextFactLimit        = 5
	DefaultContextMaxTokens        = 2000
	DefaultEmbeddingProvider       = "hash"
	DefaultEmbeddingModel          = "text-embedding-3-small"
	DefaultEmbeddingDimensions     = 384
	DefaultEmbeddingTimeoutSecs    = 10
	DefaultEmbeddingCacheBytes     = 64 << 20
	DefaultAgentID                 = "default"
)

// Config holds the application configuration.
type Config struct {
	// Engine knobs
	WorkingMemoryLimit             int
	EpisodicRetentionDays          int
	SemanticConsolidationThreshold float64
	ProceduralMinExecutions        int
	PromotionThreshold             int

	// Context assembly
	ContextFactLimit int
	ContextMaxTokens int

	// Embeddings
	EmbeddingProvider       string // "hash", "openai" or "none"
	EmbeddingModel          string
	EmbeddingAPIKey         string
	EmbeddingBaseURL        string
	EmbeddingDimensions     int
	EmbeddingTimeoutSeconds int
	EmbeddingCacheBytes     int64

	// Archive
	ArchiveEnabled bool
	ArchivePath    string

	AgentID string

	LogLevel string
	LogFile  string

	ConfigPath  string
	StrataDir   string
	ProjectRoot string
}

type fileConfig struct {
	Engine struct {
		WorkingMemoryLimit      int     `toml:"working_memory_limit"`
		EpisodicRetentionDays   *int    `toml:"episodic_retention_days"`
		ConsolidationThreshold  float64 `toml:"consolidation_threshold"`
		ProceduralMinExecutions *int    `toml:"procedural_min_executions"`
		PromotionThreshold      int     `toml:"promotion_threshold"`
	} `toml:"engine"`
	Context struct {
		FactLimit int `toml:"fact_limit"`
		MaxTokens int `toml:"max_tokens"`
	} `toml:"context"`
	Embedding struct {
		Provider       string `toml:"provider"`
		Model          string `toml:"model"`
		APIKey         string `toml:"api_key"`
		BaseURL        string `toml:"base_url"`
		Dimensions     int    `toml:"dimensions"`
		TimeoutSeconds int    `toml:"timeout_seconds"`
		CacheBytes     int64  `toml:"cache_bytes"`
	} `toml:"embedding"`
	Archive struct {
		Enabled *bool  `toml:"enabled"`
		Path    string `toml:"path"`
	} `toml:"archive"`
	Agent struct {
		ID string `toml:"id"`
	} `toml:"agent"`
	Logging struct {
		Level string `toml:"level"`
		File  string `toml:"file"`
	} `toml:"logging"`
}

// LoadConfig loads configuration from file, environment variables, and
// defaults, in ascending precedence.
func LoadConfig() (*Config, error) {
	projectRoot, err := FindProjectRoot()
	if err != nil {
		return nil, err
	}

	strataDir := GetStrataDir(projectRoot)
	configPath := filepath.Join(strataDir, "config.toml")

	if err := EnsureStrataDirs(strataDir); err != nil {
		return nil, err
	}

	cfg := &Config{
		WorkingMemoryLimit:             DefaultWorkingMemoryLimit,
		EpisodicRetentionDays:          DefaultEpisodicRetentionDays,
		SemanticConsolidationThreshold: DefaultConsolidationThreshold,
		ProceduralMinExecutions:        DefaultProceduralMinExecutions,
		PromotionThreshold:             DefaultPromotionThreshold,
		ContextFactLimit:               DefaultContextFactLimit,
		ContextMaxTokens:               DefaultContextMaxTokens,
		EmbeddingProvider:              DefaultEmbeddingProvider,
		EmbeddingModel:                 DefaultEmbeddingModel,
		EmbeddingDimensions:            DefaultEmbeddingDimensions,
		EmbeddingTimeoutSeconds:        DefaultEmbeddingTimeoutSecs,
		EmbeddingCacheBytes:            DefaultEmbeddingCacheBytes,
		ArchiveEnabled:                 true,
		ArchivePath:                    filepath.Join(strataDir, "store", "archive.sqlite3"),
		AgentID:                        DefaultAgentID,
		LogLevel:                       "info",
		LogFile:                        filepath.Join(strataDir, "logs", "strata.log"),
		ConfigPath:                     configPath,
		StrataDir:                      strataDir,
		ProjectRoot:                    projectRoot,
	}

	if _, err := os.Stat(configPath); err == nil {
		fileData, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}

		var parsed fileConfig
		if err := toml.Unmarshal(fileData, &parsed); err != nil {
			return nil, err
		}
		applyFileConfig(cfg, &parsed)
	}

	applyEnvOverrides(cfg)

	cfg.EmbeddingBaseURL = normalizeBaseURL(cfg.EmbeddingBaseURL)
	return cfg, nil
}

func applyFileConfig(cfg *Config, parsed *fileConfig) {
	if parsed.Engine.WorkingMemoryLimit != 0 {
		cfg.WorkingMemoryLimit = parsed.Engine.WorkingMemoryLimit
	}
	if parsed.Engine.EpisodicRetentionDays != nil {
		cfg.EpisodicRetentionDays = *parsed.Engine.EpisodicRetentionDays
	}
	if parsed.Engine.ConsolidationThreshold != 0 {
		cfg.SemanticConsolidationThreshold = parsed.Engine.ConsolidationThreshold
	}
	if parsed.Engine.ProceduralMinExecutions != nil {
		cfg.ProceduralMinExecutions = *parsed.Engine.ProceduralMinExecutions
	}
	if parsed.Engine.PromotionThreshold != 0 {
		cfg.PromotionThreshold = parsed.Engine.PromotionThreshold
	}
	if parsed.Context.FactLimit != 0 {
		cfg.ContextFactLimit = parsed.Context.FactLimit
	}
	if parsed.Context.MaxTokens != 0 {
		cfg.ContextMaxTokens = parsed.Context.MaxTokens
	}
	if parsed.Embedding.Provider != "" {
		cfg.EmbeddingProvider = parsed.Embedding.Provider
	}
	if parsed.Embedding.Model != "" {
		cfg.EmbeddingModel = parsed.Embedding.Model
	}
	if parsed.Embedding.APIKey != "" {
		cfg.EmbeddingAPIKey = parsed.Embedding.APIKey
	}
	if parsed.Embedding.BaseURL != "" {
		cfg.EmbeddingBaseURL = parsed.Embedding.BaseURL
	}
	if parsed.Embedding.Dimensions != 0 {
		cfg.EmbeddingDimensions = parsed.Embedding.Dimensions
	}
	if parsed.Embedding.TimeoutSeconds != 0 {
		cfg.EmbeddingTimeoutSeconds = parsed.Embedding.TimeoutSeconds
	}
	if parsed.Embedding.CacheBytes != 0 {
		cfg.EmbeddingCacheBytes = parsed.Embedding.CacheBytes
	}
	if parsed.Archive.Enabled != nil {
		cfg.ArchiveEnabled = *parsed.Archive.Enabled
	}
	if parsed.Archive.Path != "" {
		cfg.ArchivePath = parsed.Archive.Path
	}
	if parsed.Agent.ID != "" {
		cfg.AgentID = parsed.Agent.ID
	}
	if parsed.Logging.Level != "" {
		cfg.LogLevel = parsed.Logging.Level
	}
	if parsed.Logging.File != "" {
		cfg.LogFile = parsed.Logging.File
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("STRATA_WORKING_MEMORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WorkingMemoryLimit = n
		}
	}
	if v := os.Getenv("STRATA_EPISODIC_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.EpisodicRetentionDays = n
		}
	}
	if v := os.Getenv("STRATA_CONSOLIDATION_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.SemanticConsolidationThreshold = f
		}
	}
	if v := os.Getenv("STRATA_PROCEDURAL_MIN_EXECUTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ProceduralMinExecutions = n
		}
	}
	if v := os.Getenv("STRATA_PROMOTION_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PromotionThreshold = n
		}
	}
	if v := os.Getenv("STRATA_CONTEXT_FACT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ContextFactLimit = n
		}
	}
	if v := os.Getenv("STRATA_CONTEXT_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ContextMaxTokens = n
		}
	}
	if v := os.Getenv("STRATA_EMBEDDING_PROVIDER"); v != "" {
		cfg.EmbeddingProvider = v
	}
	if v := os.Getenv("STRATA_EMBEDDING_MODEL"); v != "" {
		cfg.EmbeddingModel = v
	}
	if v := os.Getenv("STRATA_EMBEDDING_API_KEY"); v != "" {
		cfg.EmbeddingAPIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.EmbeddingAPIKey == "" {
		cfg.EmbeddingAPIKey = v
	}
	if v := os.Getenv("STRATA_EMBEDDING_BASE_URL"); v != "" {
		cfg.EmbeddingBaseURL = v
	}
	if v := os.Getenv("STRATA_EMBEDDING_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.EmbeddingDimensions = n
		}
	}
	if v := os.Getenv("STRATA_EMBEDDING_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.EmbeddingTimeoutSeconds = n
		}
	}
	if v := os.Getenv("STRATA_ARCHIVE_ENABLED"); v != "" {
		cfg.ArchiveEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("STRATA_ARCHIVE_PATH"); v != "" {
		cfg.ArchivePath = v
	}
	if v := os.Getenv("STRATA_AGENT_ID"); v != "" {
		cfg.AgentID = v
	}
	if v := os.Getenv("STRATA_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("STRATA_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
}

func normalizeBaseURL(baseURL string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return baseURL
	}
	return strings.TrimRight(baseURL, "/")
}

// EngineOptions maps the engine knobs onto memory.Options.
func (c *Config) EngineOptions() memory.Options {
	return memory.Options{
		WorkingMemoryLimit:             c.WorkingMemoryLimit,
		EpisodicRetentionDays:          c.EpisodicRetentionDays,
		SemanticConsolidationThreshold: c.SemanticConsolidationThreshold,
		ProceduralMinExecutions:        c.ProceduralMinExecutions,
		PromotionThreshold:             c.PromotionThreshold,
	}
}

// EmbeddingTimeout returns the per-call embedding deadline.
func (c *Config) EmbeddingTimeout() time.Duration {
	return time.Duration(c.EmbeddingTimeoutSeconds) * time.Second
}

// Validate verifies the configuration is usable.
func (c *Config) Validate() error {
	if err := c.EngineOptions().Validate(); err != nil {
		return err
	}
	if c.ContextFactLimit <= 0 {
		return fmt.Errorf("context fact limit must be positive")
	}
	if c.ContextMaxTokens < 0 {
		return fmt.Errorf("context max tokens cannot be negative")
	}
	switch c.EmbeddingProvider {
	case "hash", "openai", "none":
	default:
		return fmt.Errorf("unknown embedding provider: %q", c.EmbeddingProvider)
	}
	if c.EmbeddingProvider == "openai" && strings.TrimSpace(c.EmbeddingAPIKey) == "" {
		return fmt.Errorf("embedding provider %q requires an API key", c.EmbeddingProvider)
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive")
	}
	if c.EmbeddingTimeoutSeconds <= 0 {
		return fmt.Errorf("embedding timeout must be positive")
	}
	if c.EmbeddingCacheBytes <= 0 {
		return fmt.Errorf("embedding cache bytes must be positive")
	}
	if c.ArchiveEnabled && strings.TrimSpace(c.ArchivePath) == "" {
		return fmt.Errorf("archive enabled but no archive path configured")
	}
	return nil
}

// Context key for storing config in context
type configContextKey struct{}

// WithConfig adds the config to the context.
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey{}, cfg)
}

// FromContext retrieves the config from the context.
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configContextKey{}).(*Config); ok {
		return cfg
	}
	return nil
}
