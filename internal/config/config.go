// Package config provides application configuration with multi-source
// priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (AERODOC_* overrides, DATABASE_URL)
//  2. Config file (~/.aerodoc/config.yaml or ./config.yaml)
//  3. Default values
//
// Sensitive fields (the PostgreSQL password) are masked in MarshalJSON and
// String, so a Config can be logged safely.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrMissingAPIKey indicates a required model provider API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the generation model name is empty.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedder indicates the embedder model or dimension is invalid.
	ErrInvalidEmbedder = errors.New("invalid embedder configuration")

	// ErrInvalidTopK indicates the retrieval k is out of range.
	ErrInvalidTopK = errors.New("invalid top k")

	// ErrInvalidChunking indicates the chunk size or overlap is out of range.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidHistoryLimit indicates the history cap is out of range.
	ErrInvalidHistoryLimit = errors.New("invalid history limit")

	// ErrInvalidBackend indicates an unsupported storage backend name.
	ErrInvalidBackend = errors.New("invalid storage backend")

	// ErrInvalidPostgres indicates PostgreSQL connection settings are invalid.
	ErrInvalidPostgres = errors.New("invalid PostgreSQL configuration")

	// ErrInvalidRateLimit indicates the rate limiter settings are out of range.
	ErrInvalidRateLimit = errors.New("invalid rate limit configuration")
)

// Storage backend identifiers used in Config.Backend.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Default model selections.
const (
	// DefaultModelName is the generation model.
	DefaultModelName = "gemini-2.5-flash"

	// DefaultEmbedderModel outputs 3072 dimensions natively but supports
	// truncation to 768; the pgvector schema stores 768.
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultEmbedderDimension matches the vector(768) column in
	// db/migrations.
	DefaultEmbedderDimension = 768
)

// Config stores application configuration.
// SENSITIVE: PostgresPassword is masked in MarshalJSON.
type Config struct {
	// Model configuration
	ModelName         string `mapstructure:"model_name" json:"model_name"`
	EmbedderModel     string `mapstructure:"embedder_model" json:"embedder_model"`
	EmbedderDimension int    `mapstructure:"embedder_dimension" json:"embedder_dimension"`

	// Pipeline configuration
	TopK            int `mapstructure:"top_k" json:"top_k"`
	MaxHistoryTurns int `mapstructure:"max_history_turns" json:"max_history_turns"`
	ChunkMaxChars   int `mapstructure:"chunk_max_chars" json:"chunk_max_chars"`
	ChunkOverlap    int `mapstructure:"chunk_overlap" json:"chunk_overlap"`

	// Storage backend: "postgres" (default) or "memory" (single process,
	// nothing survives a restart; development only)
	Backend string `mapstructure:"backend" json:"backend"`

	// PostgreSQL connection (ignored when Backend is "memory")
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// HTTP server
	HTTPAddr       string  `mapstructure:"http_addr" json:"http_addr"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst" json:"rate_limit_burst"`
	TrustProxy     bool    `mapstructure:"trust_proxy" json:"trust_proxy"` // trust X-Forwarded-For (set true behind a reverse proxy)

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"` // debug, info, warn, error
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > defaults.
func Load() (*Config, error) {
	v := viper.New()

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".aerodoc")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL wins over individual postgres_* settings.
	if err := cfg.parseDatabaseURL(os.Getenv("DATABASE_URL")); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model_name", DefaultModelName)
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("embedder_dimension", DefaultEmbedderDimension)

	v.SetDefault("top_k", 4)
	v.SetDefault("max_history_turns", 20)
	v.SetDefault("chunk_max_chars", 1000)
	v.SetDefault("chunk_overlap", 200)

	v.SetDefault("backend", BackendPostgres)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "aerodoc")
	v.SetDefault("postgres_password", "aerodoc_dev_password")
	v.SetDefault("postgres_db_name", "aerodoc")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("http_addr", ":8080")
	v.SetDefault("rate_limit_rps", 10.0)
	v.SetDefault("rate_limit_burst", 20)
	v.SetDefault("trust_proxy", false)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// bindEnvVariables binds AERODOC_* environment overrides explicitly.
// GEMINI_API_KEY is read directly by genkit, not via viper; its presence is
// checked at startup.
func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("model_name", "AERODOC_MODEL_NAME")
	mustBind("embedder_model", "AERODOC_EMBEDDER_MODEL")
	mustBind("embedder_dimension", "AERODOC_EMBEDDER_DIMENSION")
	mustBind("top_k", "AERODOC_TOP_K")
	mustBind("max_history_turns", "AERODOC_MAX_HISTORY_TURNS")
	mustBind("chunk_max_chars", "AERODOC_CHUNK_MAX_CHARS")
	mustBind("chunk_overlap", "AERODOC_CHUNK_OVERLAP")
	mustBind("backend", "AERODOC_BACKEND")
	mustBind("http_addr", "AERODOC_HTTP_ADDR")
	mustBind("rate_limit_rps", "AERODOC_RATE_LIMIT_RPS")
	mustBind("rate_limit_burst", "AERODOC_RATE_LIMIT_BURST")
	mustBind("trust_proxy", "AERODOC_TRUST_PROXY")
	mustBind("log_level", "AERODOC_LOG_LEVEL")
	mustBind("log_json", "AERODOC_LOG_JSON")
	mustBind("postgres_host", "AERODOC_POSTGRES_HOST")
	mustBind("postgres_port", "AERODOC_POSTGRES_PORT")
	mustBind("postgres_user", "AERODOC_POSTGRES_USER")
	mustBind("postgres_password", "AERODOC_POSTGRES_PASSWORD")
	mustBind("postgres_db_name", "AERODOC_POSTGRES_DB_NAME")
	mustBind("postgres_ssl_mode", "AERODOC_POSTGRES_SSL_MODE")
}

// FullModelName returns the provider-qualified model name for genkit,
// e.g. "googleai/gemini-2.5-flash". A name already containing "/" is
// returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	return "googleai/" + c.ModelName
}

// maskedValue is the placeholder for masked sensitive data. Full-width
// blocks avoid accidental substring matches against the real secret.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Short secrets are fully
// masked; longer ones keep the first and last two characters for debugging.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
