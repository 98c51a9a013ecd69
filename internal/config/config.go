// Package config loads application settings from defaults, an optional
// YAML file, and NEWSAGENT_-prefixed environment variables, in
// ascending priority.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Validation errors.
var (
	ErrInvalidProvider      = errors.New("config: provider must be googleai or ollama")
	ErrInvalidTemperature   = errors.New("config: temperature must be between 0 and 2")
	ErrInvalidMaxIterations = errors.New("config: agent max iterations must be at least 1")
	ErrInvalidRecentWindow  = errors.New("config: memory recent window must be at least 1")
	ErrInvalidThreshold     = errors.New("config: summarize threshold must exceed recent window")
	ErrMissingDatabase      = errors.New("config: postgres host and database are required")
)

// Config is the root application configuration.
type Config struct {
	LLM      LLMConfig      `mapstructure:"llm"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Memory   MemoryConfig   `mapstructure:"memory"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
}

// LLMConfig selects the model provider and generation parameters.
type LLMConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	SmallModel  string  `mapstructure:"small_model"`
	Embedder    string  `mapstructure:"embedder"`
	OllamaHost  string  `mapstructure:"ollama_host"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// PostgresConfig holds database connection settings. DATABASE_URL, when
// set, overrides the individual fields.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// AgentConfig bounds the orchestrator loop.
type AgentConfig struct {
	// MaxIterations caps reasoning passes per turn, the first
	// included.
	MaxIterations  int     `mapstructure:"max_iterations"`
	ToolRetries    int     `mapstructure:"tool_retries"`
	RequestsPerMin float64 `mapstructure:"requests_per_min"`
}

// MemoryConfig controls context assembly and background extraction.
type MemoryConfig struct {
	Enabled            bool `mapstructure:"enabled"`
	RecentWindow       int  `mapstructure:"recent_window"`
	SummarizeThreshold int  `mapstructure:"summarize_threshold"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig configures structured logging output.
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// Load reads configuration. path names an optional YAML file; a missing
// file is not an error so the binary runs on env vars alone.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("llm.provider", "googleai")
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.small_model", "gemini-2.0-flash-lite")
	v.SetDefault("llm.embedder", "text-embedding-004")
	v.SetDefault("llm.ollama_host", "http://localhost:11434")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.database", "newsagent")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("agent.max_iterations", 1)
	v.SetDefault("agent.tool_retries", 3)
	v.SetDefault("agent.requests_per_min", 60)
	v.SetDefault("memory.enabled", true)
	v.SetDefault("memory.recent_window", 5)
	v.SetDefault("memory.summarize_threshold", 10)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetEnvPrefix("NEWSAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if raw := v.GetString("database_url"); raw != "" {
		pg, err := parseDatabaseURL(raw)
		if err != nil {
			return nil, err
		}
		cfg.Postgres = pg
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "googleai", "ollama":
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidProvider, c.LLM.Provider)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("%w: got %v", ErrInvalidTemperature, c.LLM.Temperature)
	}
	if c.Agent.MaxIterations < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidMaxIterations, c.Agent.MaxIterations)
	}
	if c.Memory.RecentWindow < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidRecentWindow, c.Memory.RecentWindow)
	}
	if c.Memory.SummarizeThreshold <= c.Memory.RecentWindow {
		return fmt.Errorf("%w: threshold %d, window %d",
			ErrInvalidThreshold, c.Memory.SummarizeThreshold, c.Memory.RecentWindow)
	}
	if c.Postgres.Host == "" || c.Postgres.Database == "" {
		return ErrMissingDatabase
	}
	return nil
}
