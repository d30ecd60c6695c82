// Package config loads and validates the agent configuration. Validation
// runs once at startup; any violation is fatal.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/infrawatch/ai-agent/internal/agent"
	"github.com/infrawatch/ai-agent/internal/chunking"
	"github.com/infrawatch/ai-agent/internal/embeddings"
	"github.com/infrawatch/ai-agent/internal/infrawatch"
	"github.com/infrawatch/ai-agent/internal/llm"
	"github.com/infrawatch/ai-agent/internal/predictive"
	"github.com/infrawatch/ai-agent/internal/prompt"
	"github.com/infrawatch/ai-agent/internal/vectordb"
)

// ConfigError marks a fatal startup misconfiguration
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Config is the full agent configuration
type Config struct {
	Redis struct {
		Enabled  bool   `mapstructure:"enabled"`
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
	} `mapstructure:"redis"`

	Chunking   chunking.Config   `mapstructure:"chunking"`
	Embeddings embeddings.Config `mapstructure:"embeddings"`

	VectorDB struct {
		// Mode selects the index backend: "memory" or "http"
		Mode string             `mapstructure:"mode"`
		HTTP vectordb.HTTPConfig `mapstructure:"http"`
	} `mapstructure:"vectordb"`

	Prompt prompt.Config `mapstructure:"prompt"`

	LLM struct {
		Client     llm.Config           `mapstructure:"client"`
		Generation llm.GenerationConfig `mapstructure:"generation"`
		ModelsPath string               `mapstructure:"models_path"`
	} `mapstructure:"llm"`

	Cache struct {
		TTL time.Duration `mapstructure:"ttl"`
	} `mapstructure:"cache"`

	RateLimit struct {
		RequestsPerMinute int `mapstructure:"requests_per_minute"`
	} `mapstructure:"rate_limit"`

	Session struct {
		TTL        time.Duration `mapstructure:"ttl"`
		MaxHistory int           `mapstructure:"max_history"`
	} `mapstructure:"session"`

	Orchestrator agent.Config `mapstructure:"orchestrator"`

	InfraWatch infrawatch.Config `mapstructure:"infrawatch"`

	Predictive predictive.Config `mapstructure:"predictive"`

	Refresh struct {
		Enabled  bool          `mapstructure:"enabled"`
		Interval time.Duration `mapstructure:"interval"`
	} `mapstructure:"refresh"`

	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
		Port    int  `mapstructure:"port"`
	} `mapstructure:"metrics"`
}

// Load reads the config file at path (env vars override, AGENT_ prefix) and
// validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("AGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	ch := chunking.DefaultConfig()
	v.SetDefault("chunking.chunk_size", ch.ChunkSize)
	v.SetDefault("chunking.chunk_overlap", ch.ChunkOverlap)
	v.SetDefault("embeddings.model", "text-embedding-3-small")
	v.SetDefault("embeddings.timeout", 5*time.Second)
	v.SetDefault("vectordb.mode", "memory")
	p := prompt.DefaultConfig()
	v.SetDefault("prompt.max_context_chars", p.MaxContextChars)
	v.SetDefault("prompt.history_window", p.HistoryWindow)
	v.SetDefault("prompt.max_prompt_chars", p.MaxPromptChars)
	g := llm.DefaultGenerationConfig()
	v.SetDefault("llm.generation.model", g.Model)
	v.SetDefault("llm.generation.max_tokens", g.MaxTokens)
	v.SetDefault("llm.generation.temperature", g.Temperature)
	v.SetDefault("llm.generation.top_p", g.TopP)
	v.SetDefault("llm.client.timeout", 30*time.Second)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("rate_limit.requests_per_minute", 60)
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.max_history", 50)
	v.SetDefault("orchestrator.top_k", 3)
	v.SetDefault("orchestrator.max_attempts", 3)
	pr := predictive.DefaultConfig()
	v.SetDefault("predictive.confidence_threshold", pr.ConfidenceThreshold)
	v.SetDefault("predictive.max_alerts", pr.MaxAlerts)
	v.SetDefault("refresh.interval", 15*time.Minute)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 2112)
}

// Validate applies the startup invariants.
func (c *Config) Validate() error {
	if c.Chunking.ChunkSize <= 0 {
		return &ConfigError{Field: "chunking.chunk_size", Reason: "must be positive"}
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return &ConfigError{Field: "chunking.chunk_overlap", Reason: "must be smaller than chunk_size"}
	}
	if mode := c.VectorDB.Mode; mode != "memory" && mode != "http" {
		return &ConfigError{Field: "vectordb.mode", Reason: `must be "memory" or "http"`}
	}
	if c.VectorDB.Mode == "http" && c.VectorDB.HTTP.Host == "" {
		return &ConfigError{Field: "vectordb.http.host", Reason: "required in http mode"}
	}
	if c.Embeddings.BaseURL == "" {
		return &ConfigError{Field: "embeddings.base_url", Reason: "required"}
	}
	if c.LLM.Client.BaseURL == "" {
		return &ConfigError{Field: "llm.client.base_url", Reason: "required"}
	}
	if err := c.LLM.Generation.Validate(); err != nil {
		return &ConfigError{Field: "llm.generation", Reason: err.Error()}
	}
	if c.Cache.TTL <= 0 {
		return &ConfigError{Field: "cache.ttl", Reason: "must be positive"}
	}
	if c.RateLimit.RequestsPerMinute <= 0 {
		return &ConfigError{Field: "rate_limit.requests_per_minute", Reason: "must be positive"}
	}
	if c.Session.MaxHistory <= 0 {
		return &ConfigError{Field: "session.max_history", Reason: "must be positive"}
	}
	if c.Predictive.ConfidenceThreshold < 0 || c.Predictive.ConfidenceThreshold > 100 {
		return &ConfigError{Field: "predictive.confidence_threshold", Reason: "must be between 0 and 100"}
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return &ConfigError{Field: "redis.addr", Reason: "required when redis is enabled"}
	}
	return nil
}
