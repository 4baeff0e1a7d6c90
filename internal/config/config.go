package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the environment-driven service configuration.
type Config struct {
	// Env is the deployment environment: development, test or production.
	Env string

	// ListenAddr is the HTTP bind address, e.g. "0.0.0.0".
	ListenAddr string

	// HTTPPort is the HTTP server port.
	HTTPPort int

	// DatabaseURL is the Postgres connection string.
	DatabaseURL string

	// QueueBuffer is the in-memory queue capacity.
	QueueBuffer int

	// WorkerCount is the size of the job worker pool.
	WorkerCount int

	// MaxUploadBytes bounds the statement upload size.
	MaxUploadBytes int64
}

var environments = map[string]bool{
	"development": true,
	"test":        true,
	"production":  true,
}

// Load reads configuration from the environment, after loading a local .env
// file if one exists. All validation violations are collected into a single
// error rather than failing on the first.
func Load() (*Config, error) {
	// A missing .env file is fine; real deployments set the environment
	// directly.
	_ = godotenv.Load()

	cfg := &Config{
		Env:            envOr("APP_ENV", "development"),
		ListenAddr:     envOr("LISTEN_INTERFACE", "0.0.0.0"),
		HTTPPort:       envIntOr("HTTP_PORT", 8080),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		QueueBuffer:    envIntOr("QUEUE_BUFFER", 100),
		WorkerCount:    envIntOr("WORKER_COUNT", 5),
		MaxUploadBytes: int64(envIntOr("MAX_UPLOAD_BYTES", 10<<20)),
	}

	var violations []string
	if !environments[cfg.Env] {
		violations = append(violations, fmt.Sprintf("APP_ENV must be one of development, test, production; got %q", cfg.Env))
	}
	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		violations = append(violations, fmt.Sprintf("HTTP_PORT must be a valid port; got %d", cfg.HTTPPort))
	}
	if cfg.DatabaseURL == "" {
		violations = append(violations, "DATABASE_URL is required")
	}
	if cfg.QueueBuffer <= 0 {
		violations = append(violations, fmt.Sprintf("QUEUE_BUFFER must be positive; got %d", cfg.QueueBuffer))
	}
	if cfg.WorkerCount <= 0 {
		violations = append(violations, fmt.Sprintf("WORKER_COUNT must be positive; got %d", cfg.WorkerCount))
	}
	if cfg.MaxUploadBytes <= 0 {
		violations = append(violations, fmt.Sprintf("MAX_UPLOAD_BYTES must be positive; got %d", cfg.MaxUploadBytes))
	}

	if len(violations) > 0 {
		return nil, fmt.Errorf("environment config validation error: %s", strings.Join(violations, ", "))
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}
