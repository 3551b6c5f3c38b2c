// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration.
type Config struct {
	Port           string   `env:"PORT" envDefault:"8080"`
	AppEnv         string   `env:"APP_ENV" envDefault:"production"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	GRPCHealthAddr string   `env:"GRPC_HEALTH_ADDR"`
	DBPath         string   `env:"DB_PATH" envDefault:"./data/orientador.db"`
	DatabaseURL    string   `env:"DATABASE_URL"`
	AdminToken     string   `env:"ADMIN_TOKEN"`

	Store           StoreConfig           `envPrefix:"STORE_"`
	Completion      CompletionConfig      `envPrefix:"COMPLETION_"`
	Interview       InterviewConfig       `envPrefix:"INTERVIEW_"`
	Sink            SinkConfig            `envPrefix:"SINK_"`
	ConversationLog ConversationLogConfig `envPrefix:"CONVERSATION_LOG_"`
	RateLimit       RateLimitConfig       `envPrefix:"RATE_LIMIT_"`
	Telegram        TelegramConfig        `envPrefix:"TELEGRAM_"`
}

// StoreConfig selects the conversation store backend.
type StoreConfig struct {
	Driver     string        `env:"DRIVER" envDefault:"sqlite"`
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"720h"`
}

// CompletionConfig configures the OpenAI-compatible completion service.
type CompletionConfig struct {
	BaseURL          string        `env:"BASE_URL" envDefault:"https://api.deepseek.com/v1"`
	APIKey           string        `env:"API_KEY,required,notEmpty"`
	Model            string        `env:"MODEL" envDefault:"deepseek-chat"`
	Timeout          time.Duration `env:"TIMEOUT" envDefault:"60s"`
	SystemPromptFile string        `env:"SYSTEM_PROMPT_FILE"`
}

// InterviewConfig controls the dialogue.
type InterviewConfig struct {
	QuestionSource  string        `env:"QUESTION_SOURCE" envDefault:"generative"`
	QuestionCount   int           `env:"QUESTION_COUNT" envDefault:"16"`
	MaxRetries      int           `env:"MAX_RETRIES" envDefault:"3"`
	FollowUp        bool          `env:"FOLLOW_UP" envDefault:"true"`
	ValidatorMode   string        `env:"VALIDATOR_MODE" envDefault:"heuristic"`
	ValidatorFile   string        `env:"VALIDATOR_FILE"`
	PoolFile        string        `env:"POOL_FILE"`
	MaxLiveSessions int           `env:"MAX_LIVE_SESSIONS" envDefault:"1000"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT" envDefault:"30m"`
}

// SinkConfig configures where final recommendations are recorded.
type SinkConfig struct {
	WebhookURL string        `env:"WEBHOOK_URL"`
	Timeout    time.Duration `env:"TIMEOUT" envDefault:"10s"`
	QueueSize  int           `env:"QUEUE_SIZE" envDefault:"100"`
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool   `env:"ENABLED" envDefault:"true"`
	Dir           string `env:"DIR" envDefault:"./data/logs/conversations"`
	GlobalEnabled bool   `env:"GLOBAL_ENABLED" envDefault:"false"`
	GlobalPath    string `env:"GLOBAL_PATH" envDefault:"./data/logs/conversations/all.ndjson"`
	QueueSize     int    `env:"QUEUE_SIZE" envDefault:"1000"`
}

// RateLimitConfig controls per-client request throttling.
type RateLimitConfig struct {
	RequestsPerWindow int           `env:"REQUESTS" envDefault:"20"`
	WindowDuration    time.Duration `env:"WINDOW" envDefault:"1m"`
}

// TelegramConfig enables the Telegram transport when a token is set.
type TelegramConfig struct {
	BotToken string `env:"BOT_TOKEN"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set and coherent.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT cannot be empty")
	}
	switch c.Store.Driver {
	case "sqlite":
		if c.DBPath == "" {
			return errors.New("DB_PATH cannot be empty")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be sqlite or postgres, got %q", c.Store.Driver)
	}
	if c.Completion.Timeout <= 0 {
		return errors.New("COMPLETION_TIMEOUT must be > 0")
	}
	switch c.Interview.QuestionSource {
	case "generative", "pooled":
	default:
		return fmt.Errorf("INTERVIEW_QUESTION_SOURCE must be generative or pooled, got %q", c.Interview.QuestionSource)
	}
	switch c.Interview.ValidatorMode {
	case "heuristic", "scored":
	default:
		return fmt.Errorf("INTERVIEW_VALIDATOR_MODE must be heuristic or scored, got %q", c.Interview.ValidatorMode)
	}
	if c.Interview.QuestionCount <= 0 {
		return errors.New("INTERVIEW_QUESTION_COUNT must be > 0")
	}
	if c.Interview.MaxRetries < 0 {
		return errors.New("INTERVIEW_MAX_RETRIES must be >= 0")
	}
	if c.Interview.MaxLiveSessions <= 0 {
		return errors.New("INTERVIEW_MAX_LIVE_SESSIONS must be > 0")
	}
	if c.Sink.QueueSize <= 0 {
		return errors.New("SINK_QUEUE_SIZE must be > 0")
	}
	if c.ConversationLog.Enabled && c.ConversationLog.Dir == "" {
		return errors.New("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalEnabled && c.ConversationLog.GlobalPath == "" {
		return errors.New("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return errors.New("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	if c.RateLimit.RequestsPerWindow <= 0 || c.RateLimit.WindowDuration <= 0 {
		return errors.New("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be > 0")
	}
	return nil
}

// IsDevelopment reports whether the server runs in development mode, which
// relaxes cookie and origin checks.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.AppEnv, "development")
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
