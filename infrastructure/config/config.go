package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all engine configuration. Values resolve in three stages:
// built-in defaults, then an optional YAML file, then environment
// variables. Environment wins.
type Config struct {
	Environment string `yaml:"environment" validate:"required,oneof=development staging production"`
	LogLevel    string `yaml:"log_level" validate:"required,oneof=debug info warn error"`

	API     APIConfig     `yaml:"api"`
	Stream  StreamConfig  `yaml:"stream"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// APIConfig configures the REST collaborator client.
type APIConfig struct {
	BaseURL        string `yaml:"base_url" validate:"required,url"`
	TimeoutSeconds int    `yaml:"timeout_seconds" validate:"gte=1"`
}

// StreamConfig configures the WebSocket ingestion bridge.
type StreamConfig struct {
	BaseURL       string `yaml:"base_url" validate:"required"`
	BackoffBaseMS int    `yaml:"backoff_base_ms" validate:"gte=1"`
	MaxAttempts   int    `yaml:"max_attempts" validate:"gte=1"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Timeout returns the API request timeout.
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BackoffBase returns the bridge's linear backoff unit.
func (c StreamConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMS) * time.Millisecond
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Environment: "development",
		LogLevel:    "info",
		API: APIConfig{
			BaseURL:        "http://localhost:8000",
			TimeoutSeconds: 15,
		},
		Stream: StreamConfig{
			BaseURL:       "ws://localhost:8000",
			BackoffBaseMS: 1000,
			MaxAttempts:   5,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Address: ":9091",
		},
	}
}

// Load resolves configuration from defaults, the YAML file named by
// CONFIG_FILE (if set), and environment variables, then validates it.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv("CONFIG_FILE"))
}

// LoadFrom resolves configuration like Load, reading the given YAML file
// when the path is non-empty.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration's structural constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func loadFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	cfg.API.BaseURL = getEnv("API_BASE_URL", cfg.API.BaseURL)
	cfg.API.TimeoutSeconds = getEnvInt("API_TIMEOUT_SECONDS", cfg.API.TimeoutSeconds)

	cfg.Stream.BaseURL = getEnv("STREAM_BASE_URL", cfg.Stream.BaseURL)
	cfg.Stream.BackoffBaseMS = getEnvInt("STREAM_BACKOFF_BASE_MS", cfg.Stream.BackoffBaseMS)
	cfg.Stream.MaxAttempts = getEnvInt("STREAM_MAX_ATTEMPTS", cfg.Stream.MaxAttempts)

	cfg.Metrics.Enabled = getEnvBool("ENABLE_METRICS", cfg.Metrics.Enabled)
	cfg.Metrics.Address = getEnv("METRICS_ADDRESS", cfg.Metrics.Address)
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
