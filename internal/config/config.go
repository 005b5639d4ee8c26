package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values
const (
	DefaultMaxBodySize int64 = 2 * 1024 * 1024 // 2MB
	DefaultConfigPath        = "config.yaml"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port             int           `yaml:"port"`
	ConcurrencyLimit int64         `yaml:"concurrency_limit"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	MaxBodySize      int64         `yaml:"max_body_size"`
	WebhookSecret    string        `yaml:"-"` // From Env
	AllowedOrigins   []string      `yaml:"allowed_origins"`
}

// GitHubConfig holds GitHub App credentials and the singleton target repo.
type GitHubConfig struct {
	AppID          string        `yaml:"app_id"`
	PrivateKeyPath string        `yaml:"private_key_path"`
	Owner          string        `yaml:"owner"`
	Repo           string        `yaml:"repo"`
	BaseURL        string        `yaml:"base_url"` // Override for GHE / tests
	Timeout        time.Duration `yaml:"timeout"`
}

// LLMConfig holds model service settings.
type LLMConfig struct {
	Backend        string        `yaml:"backend"` // openai, langchain
	Model          string        `yaml:"model"`
	EmbeddingModel string        `yaml:"embedding_model"`
	Endpoint       string        `yaml:"endpoint"`
	APIKey         string        `yaml:"-"` // From Env
	Timeout        time.Duration `yaml:"timeout"`
}

// StorageConfig holds review-record persistence settings.
type StorageConfig struct {
	Driver  string        `yaml:"driver"` // sqlite
	DSN     string        `yaml:"dsn"`
	Timeout time.Duration `yaml:"timeout"`
}

// LogConfig holds structured logging settings.
type LogConfig struct {
	Level    string `yaml:"level"`  // DEBUG, INFO, WARN, ERROR
	Format   string `yaml:"format"` // text, json
	Output   string `yaml:"output"` // stdout, stderr, /path/to/file
	Rotation struct {
		MaxSize    int  `yaml:"max_size"`    // Megabytes
		MaxBackups int  `yaml:"max_backups"` // Number of old files to keep
		MaxAge     int  `yaml:"max_age"`     // Days to keep
		Compress   bool `yaml:"compress"`
	} `yaml:"rotation"`
}

// Config holds the configuration for the review automation service.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Server  ServerConfig  `yaml:"server"`
	GitHub  GitHubConfig  `yaml:"github"`
	LLM     LLMConfig     `yaml:"llm"`
	Storage StorageConfig `yaml:"storage"`
}

// GetLogLevel returns the slog.Level based on Log.Level string
func (c *Config) GetLogLevel() slog.Level {
	switch strings.ToUpper(c.Log.Level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoadConfig loads configuration from YAML file and supplements with environment variables
func LoadConfig() *Config {
	cfg := &Config{}

	// Set some defaults before loading
	cfg.Log.Level = "INFO"
	cfg.Log.Format = "text"
	cfg.Log.Output = "stdout"
	cfg.Log.Rotation.MaxSize = 100
	cfg.Log.Rotation.MaxBackups = 10
	cfg.Log.Rotation.MaxAge = 7
	cfg.Log.Rotation.Compress = true

	cfg.Server.Port = 8080
	cfg.Server.ConcurrencyLimit = 10
	cfg.Server.ReadTimeout = 10 * time.Second
	cfg.Server.WriteTimeout = 120 * time.Second
	cfg.Server.MaxBodySize = DefaultMaxBodySize

	cfg.GitHub.Timeout = 30 * time.Second

	cfg.LLM.Backend = "openai"
	cfg.LLM.Endpoint = "https://api.openai.com/v1"
	cfg.LLM.Model = "gpt-4o"
	cfg.LLM.EmbeddingModel = "text-embedding-3-small"
	cfg.LLM.Timeout = 120 * time.Second

	cfg.Storage.Driver = "sqlite"
	cfg.Storage.DSN = "reviews.db"
	cfg.Storage.Timeout = 5 * time.Second

	// Try to load from YAML
	configPath := getEnv("CONFIG_PATH", DefaultConfigPath)
	data, err := os.ReadFile(configPath)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			slog.Error("unmarshal config failed", "error", err, "path", configPath)
			os.Exit(1)
		}
		slog.Info("config loaded", "path", configPath)
	} else {
		if !os.IsNotExist(err) {
			slog.Error("read config failed", "error", err, "path", configPath)
			os.Exit(1)
		}
		slog.Info("config not found, using defaults", "path", configPath)
	}

	// Always supplement/override with environment variables for secrets and critical items
	cfg.Server.WebhookSecret = getEnv("GITHUB_WEBHOOK_SECRET", cfg.Server.WebhookSecret)
	cfg.GitHub.AppID = getEnv("GITHUB_APP_ID", cfg.GitHub.AppID)
	cfg.GitHub.PrivateKeyPath = getEnv("GITHUB_PRIVATE_KEY_PATH", cfg.GitHub.PrivateKeyPath)
	cfg.GitHub.Owner = getEnv("GITHUB_REPO_OWNER", cfg.GitHub.Owner)
	cfg.GitHub.Repo = getEnv("GITHUB_REPO_NAME", cfg.GitHub.Repo)
	cfg.LLM.APIKey = getEnv("OPENAI_API_KEY", cfg.LLM.APIKey)
	if envModel := getEnv("OPENAI_MODEL_NAME", ""); envModel != "" {
		cfg.LLM.Model = envModel
	}
	if envEmbed := getEnv("OPENAI_EMBEDDING_MODEL", ""); envEmbed != "" {
		cfg.LLM.EmbeddingModel = envEmbed
	}
	if envDSN := getEnv("STORAGE_DSN", ""); envDSN != "" {
		cfg.Storage.DSN = envDSN
	}

	if envPort := getEnvInt("PORT", 0); envPort != 0 {
		cfg.Server.Port = envPort
	}
	if envLogLevel := os.Getenv("LOG_LEVEL"); envLogLevel != "" {
		cfg.Log.Level = envLogLevel
	}
	if envLogFormat := os.Getenv("LOG_FORMAT"); envLogFormat != "" {
		cfg.Log.Format = envLogFormat
	}
	if envLogOutput := getEnv("LOG_OUTPUT", ""); envLogOutput != "" {
		cfg.Log.Output = envLogOutput
	}

	return cfg
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []string

	if c.Server.WebhookSecret == "" {
		errs = append(errs, "GITHUB_WEBHOOK_SECRET is required")
	}
	if c.GitHub.AppID == "" {
		errs = append(errs, "GITHUB_APP_ID is required")
	}
	if c.GitHub.PrivateKeyPath == "" {
		errs = append(errs, "GITHUB_PRIVATE_KEY_PATH is required")
	}
	if c.GitHub.Owner == "" || c.GitHub.Repo == "" {
		errs = append(errs, "GITHUB_REPO_OWNER and GITHUB_REPO_NAME are required")
	}
	if c.LLM.APIKey == "" {
		errs = append(errs, "OPENAI_API_KEY is required")
	}
	if c.LLM.Backend != "openai" && c.LLM.Backend != "langchain" {
		errs = append(errs, fmt.Sprintf("unknown llm backend: %s", c.LLM.Backend))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid server port: %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config invalid: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Helper functions for reading environment variables

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}
