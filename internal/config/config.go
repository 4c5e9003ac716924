package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the chartsage server. It is loaded once
// at startup and passed down as an immutable value; core logic never reads
// the environment directly.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Content  ContentConfig
	AI       AIConfig
	Queue    QueueConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// ContentConfig configures the messaging-platform content API used to
// re-fetch source images by message reference.
type ContentConfig struct {
	BaseURL  string
	BotToken string
	Timeout  time.Duration
}

type AIConfig struct {
	Provider        string
	AnalysisTimeout time.Duration
	OpenAI          OpenAIConfig
	Anthropic       AnthropicConfig
}

type OpenAIConfig struct {
	APIKey string
	Model  string
}

type AnthropicConfig struct {
	APIKey string
	Model  string
}

// QueueConfig tunes the job processor and its self-re-invocation chain.
type QueueConfig struct {
	MaxAttempts     int
	RecoveryCap     int
	ArtifactTTL     time.Duration
	PruneKeep       int
	DefaultPerImage time.Duration
	MarkerTTL       time.Duration
	// SelfURL is the base URL the trigger posts back to; empty disables
	// outbound HTTP and chains are driven by the caller (useful in tests).
	SelfURL      string
	TriggerToken string
}

var validProviders = map[string]bool{
	"openai":    true,
	"anthropic": true,
	"mock":      true,
}

// Load reads configuration from environment variables and returns a validated
// Config. Returns an error with a descriptive message if any required value
// is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("CHARTSAGE_PORT", 8080),
			Env:  envString("CHARTSAGE_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Content: ContentConfig{
			BaseURL:  os.Getenv("CONTENT_BASE_URL"),
			BotToken: os.Getenv("CONTENT_BOT_TOKEN"),
			Timeout:  envDuration("CONTENT_TIMEOUT", 15*time.Second),
		},
		AI: AIConfig{
			Provider:        os.Getenv("AI_PROVIDER"),
			AnalysisTimeout: envDurationSecs("AI_ANALYSIS_TIMEOUT_SECS", 28*time.Second),
			OpenAI: OpenAIConfig{
				APIKey: os.Getenv("OPENAI_API_KEY"),
				Model:  envString("OPENAI_MODEL", "gpt-4o"),
			},
			Anthropic: AnthropicConfig{
				APIKey: os.Getenv("ANTHROPIC_API_KEY"),
				Model:  envString("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
			},
		},
		Queue: QueueConfig{
			MaxAttempts:     envInt("QUEUE_MAX_ATTEMPTS", 3),
			RecoveryCap:     envInt("QUEUE_RECOVERY_CAP", 2),
			ArtifactTTL:     envDuration("QUEUE_ARTIFACT_TTL", 7*24*time.Hour),
			PruneKeep:       envInt("QUEUE_PRUNE_KEEP", 5),
			DefaultPerImage: envDurationSecs("QUEUE_DEFAULT_SECS_PER_IMAGE", 35*time.Second),
			MarkerTTL:       envDuration("QUEUE_MARKER_TTL", 30*time.Minute),
			SelfURL:         os.Getenv("QUEUE_SELF_URL"),
			TriggerToken:    os.Getenv("QUEUE_TRIGGER_TOKEN"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Content.BaseURL == "" {
		return fmt.Errorf("CONTENT_BASE_URL is required")
	}
	if !strings.HasPrefix(c.Content.BaseURL, "http://") && !strings.HasPrefix(c.Content.BaseURL, "https://") {
		return fmt.Errorf("CONTENT_BASE_URL must start with http:// or https://, got %q", c.Content.BaseURL)
	}

	if c.AI.Provider == "" {
		return fmt.Errorf("AI_PROVIDER is required")
	}
	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of openai, anthropic, mock; got %q", c.AI.Provider)
	}
	if c.AI.Provider == "openai" && c.AI.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
	}
	if c.AI.Provider == "anthropic" && c.AI.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is anthropic")
	}

	if c.Queue.MaxAttempts < 1 {
		return fmt.Errorf("QUEUE_MAX_ATTEMPTS must be at least 1")
	}
	if c.Queue.PruneKeep < 1 {
		return fmt.Errorf("QUEUE_PRUNE_KEEP must be at least 1")
	}
	if c.Queue.SelfURL != "" && !strings.HasPrefix(c.Queue.SelfURL, "http://") && !strings.HasPrefix(c.Queue.SelfURL, "https://") {
		return fmt.Errorf("QUEUE_SELF_URL must start with http:// or https://, got %q", c.Queue.SelfURL)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
