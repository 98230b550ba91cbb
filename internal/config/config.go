// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Decision domain: "upi" or "card". Selects the risk-profile parameter
	// set; fixed per deployment.
	Domain string

	// Scoring models
	ChampionModelPath   string // Required — the service must not start without it
	ChallengerModelPath string // Optional shadow model

	// Pipeline settings
	BatchSize    int
	PollInterval time.Duration

	// Feedback controller
	FeedbackInterval   time.Duration
	FeedbackWindowSize int

	// Intake protection: max POSTed events per source per minute.
	// Zero disables rate limiting.
	IntakeRateLimit int

	// Integrations
	StripeWebhookSecret string // Enables the Stripe dispute feedback source
	OTLPEndpoint        string // OpenTelemetry collector (optional)
}

// Defaults
const (
	DefaultPort             = "8080"
	DefaultEnv              = "development"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
	DefaultDomain           = "upi"
	DefaultBatchSize        = 100
	DefaultPollInterval     = 2 * time.Second
	DefaultFeedbackInterval = 5 * time.Minute
	DefaultFeedbackWindow   = 100
	DefaultIntakeRateLimit  = 600
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", DefaultPort),
		Env:                 getEnv("ENV", DefaultEnv),
		LogLevel:            getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:           getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:         os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		Domain:              getEnv("RISK_DOMAIN", DefaultDomain),
		ChampionModelPath:   os.Getenv("CHAMPION_MODEL_PATH"), // Required, no default
		ChallengerModelPath: os.Getenv("CHALLENGER_MODEL_PATH"),
		BatchSize:           getEnvInt("PIPELINE_BATCH_SIZE", DefaultBatchSize),
		PollInterval:        getEnvDuration("PIPELINE_POLL_INTERVAL", DefaultPollInterval),
		FeedbackInterval:    getEnvDuration("FEEDBACK_INTERVAL", DefaultFeedbackInterval),
		FeedbackWindowSize:  getEnvInt("FEEDBACK_WINDOW_SIZE", DefaultFeedbackWindow),
		IntakeRateLimit:     getEnvInt("INTAKE_RATE_LIMIT", DefaultIntakeRateLimit),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.ChampionModelPath == "" {
		return fmt.Errorf("CHAMPION_MODEL_PATH is required")
	}

	if c.Domain != "upi" && c.Domain != "card" {
		return fmt.Errorf("RISK_DOMAIN must be \"upi\" or \"card\", got %q", c.Domain)
	}

	if c.BatchSize <= 0 {
		return fmt.Errorf("PIPELINE_BATCH_SIZE must be positive")
	}

	if c.FeedbackWindowSize < 10 {
		return fmt.Errorf("FEEDBACK_WINDOW_SIZE must be at least 10")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
