// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.haven/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: generation model, embedder model, rate limiting
//   - Storage: PostgreSQL connection
//   - Crisis: keyword file, sliding-window parameters, similarity thresholds
//   - Alert: Twilio (primary) and Telegram (fallback) channel credentials
//
// Sensitive values (passwords, tokens) are only read from the environment
// and are never logged.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration validation.
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidModelName indicates the model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidWindow indicates the sliding-window parameters are invalid.
	ErrInvalidWindow = errors.New("invalid sliding window parameters")

	// ErrInvalidThreshold indicates a similarity threshold is out of range.
	ErrInvalidThreshold = errors.New("invalid similarity threshold")

	// ErrInvalidTopK indicates the retrieval top-k is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval top-k")
)

// Default model identifiers.
const (
	// DefaultModelName is the provider-qualified generation model.
	DefaultModelName = "googleai/gemini-2.5-flash"

	// DefaultEmbedderModel produces 768-dimension vectors, matching the
	// pgvector schema in db/migrations.
	DefaultEmbedderModel = "text-embedding-004"
)

// CrisisConfig holds crisis-detection tuning parameters.
//
// WindowSize/WindowStride control the sliding word-window scan; the
// defaults (15/10) match the curated exemplar phrasing length.
// SemanticThreshold is the minimum cosine similarity for a window to
// count as a semantic signal at all; SemanticCriticalThreshold is the
// stricter bar above which a semantic-only match escalates beyond low
// severity.
type CrisisConfig struct {
	KeywordFile               string  `mapstructure:"keyword_file" json:"keyword_file"`
	EmbeddingCacheFile        string  `mapstructure:"embedding_cache_file" json:"embedding_cache_file"`
	WindowSize                int     `mapstructure:"window_size" json:"window_size"`
	WindowStride              int     `mapstructure:"window_stride" json:"window_stride"`
	SemanticThreshold         float64 `mapstructure:"semantic_threshold" json:"semantic_threshold"`
	SemanticCriticalThreshold float64 `mapstructure:"semantic_critical_threshold" json:"semantic_critical_threshold"`
}

// AlertConfig holds alert channel configuration.
// Credentials are environment-only; a channel with missing credentials is
// treated as unconfigured and recorded as a failed attempt when invoked.
type AlertConfig struct {
	HelplineNumber     string `mapstructure:"helpline_number" json:"helpline_number"`
	TwilioAccountSID   string `mapstructure:"twilio_account_sid" json:"-"`
	TwilioAuthToken    string `mapstructure:"twilio_auth_token" json:"-"`
	TwilioServiceSID   string `mapstructure:"twilio_service_sid" json:"-"`
	TelegramBotToken   string `mapstructure:"telegram_bot_token" json:"-"`
	TelegramChatID     string `mapstructure:"telegram_chat_id" json:"-"`
	DispatchTimeoutSec int    `mapstructure:"dispatch_timeout_sec" json:"dispatch_timeout_sec"`
}

// Config stores application configuration.
type Config struct {
	// HTTP server
	ServerAddr string `mapstructure:"server_addr" json:"server_addr"`

	// AI model configuration
	ModelName     string  `mapstructure:"model_name" json:"model_name"`
	EmbedderModel string  `mapstructure:"embedder_model" json:"embedder_model"`
	RateLimitRPS  float64 `mapstructure:"rate_limit_rps" json:"rate_limit_rps"`
	RateBurst     int     `mapstructure:"rate_burst" json:"rate_burst"`

	// Retrieval configuration
	RetrievalTopK      int     `mapstructure:"retrieval_top_k" json:"retrieval_top_k"`
	MinRelevance       float64 `mapstructure:"min_relevance" json:"min_relevance"`
	MaxHistoryMessages int     `mapstructure:"max_history_messages" json:"max_history_messages"`

	// Storage configuration
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"-"` // SENSITIVE
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Crisis detection
	Crisis CrisisConfig `mapstructure:"crisis" json:"crisis"`

	// Alerting
	Alert AlertConfig `mapstructure:"alert" json:"alert"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".haven")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server_addr", "127.0.0.1:8080")

	// AI defaults
	v.SetDefault("model_name", DefaultModelName)
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("rate_limit_rps", 2.0)
	v.SetDefault("rate_burst", 4)

	// Retrieval defaults (k=3 and a 10-message history window match the
	// knowledge-base passage sizing)
	v.SetDefault("retrieval_top_k", 3)
	v.SetDefault("min_relevance", 0.5)
	v.SetDefault("max_history_messages", 10)

	// PostgreSQL defaults (matching docker-compose.yml)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "haven")
	v.SetDefault("postgres_password", "haven_dev_password")
	v.SetDefault("postgres_db_name", "haven")
	v.SetDefault("postgres_ssl_mode", "disable")

	// Crisis detection defaults
	v.SetDefault("crisis.window_size", 15)
	v.SetDefault("crisis.window_stride", 10)
	v.SetDefault("crisis.semantic_threshold", 0.85)
	v.SetDefault("crisis.semantic_critical_threshold", 0.93)

	// Alert defaults
	v.SetDefault("alert.dispatch_timeout_sec", 10)
}

// bindEnvVariables binds environment variables explicitly.
// Secrets are environment-only and never read from the config file.
func bindEnvVariables(v *viper.Viper) {
	// Binding errors only occur with empty keys; safe to ignore here.
	_ = v.BindEnv("server_addr", "HAVEN_SERVER_ADDR")
	_ = v.BindEnv("postgres_password", "HAVEN_POSTGRES_PASSWORD")
	_ = v.BindEnv("alert.helpline_number", "HELPLINE_PHONE_NUMBER")
	_ = v.BindEnv("alert.twilio_account_sid", "TWILIO_ACCOUNT_SID")
	_ = v.BindEnv("alert.twilio_auth_token", "TWILIO_AUTH_TOKEN")
	_ = v.BindEnv("alert.twilio_service_sid", "TWILIO_MESSAGING_SERVICE_SID")
	_ = v.BindEnv("alert.telegram_bot_token", "TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("alert.telegram_chat_id", "TELEGRAM_CHAT_ID")
}

// parseDatabaseURL overrides PostgreSQL settings from DATABASE_URL if set.
// This takes the highest priority for storage configuration.
func (c *Config) parseDatabaseURL() error {
	raw := os.Getenv("DATABASE_URL")
	if raw == "" {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	if h := u.Hostname(); h != "" {
		c.PostgresHost = h
	}
	if p := u.Port(); p != "" {
		if _, err := fmt.Sscanf(p, "%d", &c.PostgresPort); err != nil {
			return fmt.Errorf("invalid port %q", p)
		}
	}
	if u.User != nil {
		c.PostgresUser = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			c.PostgresPassword = pw
		}
	}
	if db := filepath.Base(u.Path); db != "." && db != "/" && db != "" {
		c.PostgresDBName = db
	}
	if m := u.Query().Get("sslmode"); m != "" {
		c.PostgresSSLMode = m
	}
	return nil
}

// ConnString returns the PostgreSQL connection URL.
func (c *Config) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.PostgresUser),
		url.QueryEscape(c.PostgresPassword),
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresDBName,
		c.PostgresSSLMode,
	)
}
