// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Marketplace settings
	PublicBaseURL   string // Base URL for vendor profile links in webhook payloads
	DirectoryLimit  int    // Max vendors returned per directory page
	RequestPageSize int    // Default admin listing page size

	// Security
	WebhookSecret string // Signing secret for outbound webhook deliveries
	RateLimitRPS  int
	AdminSecret   string // Admin API secret; empty enables demo mode

	// Observability
	OTLPEndpoint string // OpenTelemetry collector endpoint (optional)
}

const (
	DefaultPort            = "8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultRateLimit       = 100
	DefaultDirectoryLimit  = 50
	DefaultRequestPageSize = 50
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", DefaultPort),
		Env:             getEnv("ENV", DefaultEnv),
		LogLevel:        getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:     os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		PublicBaseURL:   getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		DirectoryLimit:  getEnvInt("DIRECTORY_LIMIT", DefaultDirectoryLimit),
		RequestPageSize: getEnvInt("REQUEST_PAGE_SIZE", DefaultRequestPageSize),
		WebhookSecret:   os.Getenv("WEBHOOK_SECRET"),
		RateLimitRPS:    getEnvInt("RATE_LIMIT_RPS", DefaultRateLimit),
		AdminSecret:     os.Getenv("ADMIN_SECRET"),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	switch c.Env {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("ENV must be development, staging or production, got %q", c.Env)
	}

	if c.IsProduction() && c.AdminSecret == "" {
		return fmt.Errorf("ADMIN_SECRET is required in production")
	}

	if c.DirectoryLimit < 1 || c.DirectoryLimit > 100 {
		return fmt.Errorf("DIRECTORY_LIMIT must be between 1 and 100")
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
