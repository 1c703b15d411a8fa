// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	FrontendURL    string
	DBPath         string
	OutputDir      string
	UploadDir      string
	WeeksPerModule int
	SessionTTL     time.Duration
	CleanupEvery   time.Duration
	Generator      GeneratorConfig
	Timeout        TimeoutConfig
}

// GeneratorConfig controls the external generation service client.
type GeneratorConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
}

// TimeoutConfig holds server timing knobs.
type TimeoutConfig struct {
	HealthCheck time.Duration
	Shutdown    time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		DBPath:         getEnv("DB_PATH", "./data/app.db"),
		OutputDir:      getEnv("OUTPUT_DIR", "./data/output"),
		UploadDir:      getEnv("UPLOAD_DIR", "./data/uploads"),
		WeeksPerModule: getEnvInt("WEEKS_PER_MODULE", 12),
		SessionTTL:     getEnvDuration("SESSION_TTL", 24*time.Hour),
		CleanupEvery:   getEnvDuration("CLEANUP_INTERVAL", 6*time.Hour),
		Generator: GeneratorConfig{
			BaseURL:        getEnv("GENERATION_SERVICE_URL", ""),
			RequestTimeout: getEnvDuration("GENERATION_SERVICE_TIMEOUT", 2*time.Minute),
		},
		Timeout: TimeoutConfig{
			HealthCheck: getEnvDuration("HEALTH_CHECK_TIMEOUT", 5*time.Second),
			Shutdown:    getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("OUTPUT_DIR cannot be empty")
	}
	if c.UploadDir == "" {
		return fmt.Errorf("UPLOAD_DIR cannot be empty")
	}
	if c.WeeksPerModule <= 0 {
		return fmt.Errorf("WEEKS_PER_MODULE must be > 0")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.CleanupEvery <= 0 {
		return fmt.Errorf("CLEANUP_INTERVAL must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
