// Package config provides configuration management for papertrans.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for papertrans.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration. WriteTimeout must stay 0
// unless SSE streaming is fronted by something else: the write timeout covers
// the whole response, and event streams outlive any fixed budget.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds, 0 disables
}

// DatabaseConfig holds paper database configuration. The sqlite driver is the
// default; postgres is selected by setting driver=postgres and the connection
// fields.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // sqlite, postgres
	Path     string `mapstructure:"path"`   // sqlite file path
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbName"`
	SSLMode  string `mapstructure:"sslMode"`
	MaxConns int    `mapstructure:"maxConns"`
	MinConns int    `mapstructure:"minConns"`
}

// NATSConfig holds NATS messaging configuration. An empty URL selects the
// in-memory event bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// StorageConfig holds filesystem layout configuration for translation results.
type StorageConfig struct {
	DataDir string `mapstructure:"dataDir"` // root for translated output, default "Translation"
}

// ProvidersConfig groups the external service providers.
type ProvidersConfig struct {
	LLM       LLMConfig       `mapstructure:"llm"`
	OCR       OCRConfig       `mapstructure:"ocr"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
}

// LLMConfig holds the translation/analysis LLM provider configuration.
type LLMConfig struct {
	BaseURL string `mapstructure:"baseUrl"`
	APIKey  string `mapstructure:"apiKey"`
	Model   string `mapstructure:"model"`
	Timeout int    `mapstructure:"timeout"` // in seconds
}

// OCRConfig holds the OCR provider configuration. When Enabled is false the
// OCR pipeline is unavailable and scanned documents fall back to the LLM path.
type OCRConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"baseUrl"`
	APIKey  string `mapstructure:"apiKey"`
	Timeout int    `mapstructure:"timeout"` // in seconds
}

// EmbeddingConfig holds the embedding provider configuration.
type EmbeddingConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// WorkflowConfig holds translation workflow tuning.
type WorkflowConfig struct {
	TranslationConcurrency int    `mapstructure:"translationConcurrency"` // parallel segment translations per task
	PromptsPath            string `mapstructure:"promptsPath"`            // optional prompts.yaml override
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// TimeoutDuration returns the LLM request timeout as a time.Duration.
func (l *LLMConfig) TimeoutDuration() time.Duration {
	return time.Duration(l.Timeout) * time.Second
}

// TimeoutDuration returns the OCR request timeout as a time.Duration.
func (o *OCRConfig) TimeoutDuration() time.Duration {
	return time.Duration(o.Timeout) * time.Second
}

// detectDefaultLogFormat returns the appropriate log format based on environment.
// Returns "json" if running in Kubernetes or other production environments.
// Returns "text" for terminal/development use (human-readable console format).
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("PAPERTRANS_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 0)

	// Database defaults - sqlite file alongside the data dir
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "papers.db")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "papertrans")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbName", "papertrans")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxConns", 25)
	v.SetDefault("database.minConns", 5)

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "papertrans")
	v.SetDefault("nats.maxReconnects", 10)

	// Storage defaults
	v.SetDefault("storage.dataDir", "Translation")

	// Provider defaults
	v.SetDefault("providers.llm.baseUrl", "https://api.openai.com/v1")
	v.SetDefault("providers.llm.apiKey", "")
	v.SetDefault("providers.llm.model", "gpt-4o-mini")
	v.SetDefault("providers.llm.timeout", 120)
	v.SetDefault("providers.ocr.enabled", false)
	v.SetDefault("providers.ocr.baseUrl", "")
	v.SetDefault("providers.ocr.apiKey", "")
	v.SetDefault("providers.ocr.timeout", 300)
	v.SetDefault("providers.embedding.enabled", false)
	v.SetDefault("providers.embedding.model", "text-embedding-3-small")
	v.SetDefault("providers.embedding.dimensions", 1536)

	// Workflow defaults
	v.SetDefault("workflow.translationConcurrency", 5)
	v.SetDefault("workflow.promptsPath", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix PAPERTRANS_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory or /etc/papertrans/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults first
	setDefaults(v)

	// Configure environment variables
	v.SetEnvPrefix("PAPERTRANS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit bindings for snake_case env vars (camelCase config keys)
	// AutomaticEnv does not handle camelCase to SNAKE_CASE conversion,
	// so we explicitly bind keys where env var naming differs from config key naming.
	_ = v.BindEnv("storage.dataDir", "PAPERTRANS_STORAGE_DATA_DIR")
	_ = v.BindEnv("database.path", "PAPERTRANS_DB_PATH", "PAPERTRANS_DATABASE_PATH")
	_ = v.BindEnv("providers.llm.baseUrl", "PAPERTRANS_PROVIDERS_LLM_BASE_URL")
	_ = v.BindEnv("providers.llm.apiKey", "PAPERTRANS_PROVIDERS_LLM_API_KEY")
	_ = v.BindEnv("providers.ocr.baseUrl", "PAPERTRANS_PROVIDERS_OCR_BASE_URL")
	_ = v.BindEnv("providers.ocr.apiKey", "PAPERTRANS_PROVIDERS_OCR_API_KEY")
	_ = v.BindEnv("workflow.translationConcurrency", "PAPERTRANS_WORKFLOW_TRANSLATION_CONCURRENCY")

	// Configure config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/papertrans/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
// In development mode (default), most fields are optional.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	switch cfg.Database.Driver {
	case "sqlite":
		if cfg.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite driver")
		}
	case "postgres":
		if cfg.Database.Host == "" {
			errs = append(errs, "database.host is required for the postgres driver")
		}
		if cfg.Database.User == "" {
			errs = append(errs, "database.user is required for the postgres driver")
		}
		if cfg.Database.DBName == "" {
			errs = append(errs, "database.dbName is required for the postgres driver")
		}
		if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
			errs = append(errs, "database.port must be between 1 and 65535")
		}
	default:
		errs = append(errs, "database.driver must be one of: sqlite, postgres")
	}

	if cfg.Storage.DataDir == "" {
		errs = append(errs, "storage.dataDir must not be empty")
	}

	if cfg.Providers.OCR.Enabled && cfg.Providers.OCR.BaseURL == "" {
		errs = append(errs, "providers.ocr.baseUrl is required when providers.ocr.enabled is true")
	}

	if cfg.Workflow.TranslationConcurrency <= 0 {
		errs = append(errs, "workflow.translationConcurrency must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// GlossaryDir returns the glossary directory nested under the data dir.
func (s *StorageConfig) GlossaryDir() string {
	return s.DataDir + "/glossaries"
}
