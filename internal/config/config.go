package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Config holds the configuration for the chat service.
// Environment variables are parsed from the CHAT_BACKEND_ prefix.
type Config struct {
	// Build target selects high-level environment: local, cloud-dev, cloud
	BuildTarget string `envconfig:"BUILD_TARGET" default:"cloud-dev"`

	// DBDriver is derived from BuildTarget when set to "auto"
	DBDriver string `envconfig:"DB_DRIVER" default:"auto"`

	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`

	// HTTP Configuration
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// Postgres Configuration
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`

	// SQLite Configuration (local build target)
	SQLitePath string `envconfig:"SQLITE_PATH" default:"voxrelay.db"`

	// OpenAI gateway configuration. Empty API key means the completion and
	// transcription gateways report unavailable instead of failing startup.
	OpenAIAPIKey       string `envconfig:"OPENAI_API_KEY" default:""`
	OpenAIBaseURL      string `envconfig:"OPENAI_BASE_URL" default:""`
	ChatModel          string `envconfig:"CHAT_MODEL" default:"gpt-4o-mini"`
	TranscriptionModel string `envconfig:"TRANSCRIPTION_MODEL" default:"whisper-1"`

	// Turn pipeline configuration
	SystemPrompt         string `envconfig:"SYSTEM_PROMPT" default:"You are a helpful voice assistant. Keep replies concise and conversational."`
	DefaultContextWindow int    `envconfig:"DEFAULT_CONTEXT_WINDOW" default:"10"`
	AutoSummarizeAfter   int    `envconfig:"AUTO_SUMMARIZE_AFTER" default:"20"`

	// n8n automation webhook for voice recordings; empty disables forwarding
	AutomationWebhookURL string `envconfig:"AUTOMATION_WEBHOOK_URL" default:""`

	// Health checking
	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"30"`
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"2"`
}

// ResolveDefaults validates BuildTarget and derives DBDriver when set to
// "auto" or empty.
func (c *Config) ResolveDefaults() error {
	var defaultDB string

	switch c.BuildTarget {
	case "local":
		defaultDB = "sqlite"
	case "cloud-dev", "cloud":
		defaultDB = "postgres"
	default:
		return fmt.Errorf("unsupported BUILD_TARGET: %s", c.BuildTarget)
	}

	if c.DBDriver == "" || c.DBDriver == "auto" {
		c.DBDriver = defaultDB
	}

	allowedDB := map[string]bool{"postgres": true, "sqlite": true}
	if !allowedDB[c.DBDriver] {
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}
	if c.DefaultContextWindow <= 0 {
		return fmt.Errorf("DEFAULT_CONTEXT_WINDOW must be positive, got %d", c.DefaultContextWindow)
	}
	if c.AutoSummarizeAfter <= 0 {
		return fmt.Errorf("AUTO_SUMMARIZE_AFTER must be positive, got %d", c.AutoSummarizeAfter)
	}
	return nil
}

// New creates a new Config by parsing environment variables.
// Variables are prefixed with CHAT_BACKEND_, e.g. CHAT_BACKEND_HTTP_PORT.
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("CHAT_BACKEND", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
