// Package config provides centralized configuration management for the
// ingestion service. It loads settings from environment variables with
// sensible defaults and validates everything on startup to fail fast on
// misconfiguration.
package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Magento  MagentoConfig
	Upload   UploadConfig
	Database DatabaseConfig
	Rate     RateLimitConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading the request body.
	// Image batches can be large, so the default is generous (default: 120s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"120s"`

	// WriteTimeout is the maximum duration for writing the response
	// (default: 0s, disabled for SSE progress streams)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// MagentoConfig holds the remote media endpoint settings.
type MagentoConfig struct {
	// BaseURL is the Magento instance base URL, without /rest (required)
	BaseURL string `env:"MAGENTO_BASE_URL" required:"true"`

	// Token is the admin bearer token for the REST API (required)
	Token string `env:"MAGENTO_TOKEN" required:"true"`

	// Timeout is the per-request timeout for media uploads (default: 30s)
	Timeout time.Duration `env:"MAGENTO_TIMEOUT" default:"30s"`
}

// UploadConfig holds ingestion pipeline settings.
type UploadConfig struct {
	// MaxFileSize is the admission cap per image in bytes (default: 8MiB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"8388608"`

	// MaxFormSize caps one multipart request body (default: 256MiB)
	MaxFormSize int64 `env:"UPLOAD_MAX_FORM_SIZE" default:"268435456"`

	// AttemptDelay is the pause between uploads for the same product
	// (default: 1s, keeps the remote endpoint below its rate limits)
	AttemptDelay time.Duration `env:"UPLOAD_ATTEMPT_DELAY" default:"1s"`

	// ProductDelay is the pause between products (default: 2s)
	ProductDelay time.Duration `env:"UPLOAD_PRODUCT_DELAY" default:"2s"`

	// MaxConcurrentRuns limits parallel upload runs (default: 2)
	MaxConcurrentRuns int `env:"UPLOAD_MAX_CONCURRENT_RUNS" default:"2"`

	// MaxWaitTime is how long StartUpload waits for a run slot (default: 10s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"10s"`

	// RunTimeout bounds a single upload run end to end (default: 30m)
	RunTimeout time.Duration `env:"UPLOAD_RUN_TIMEOUT" default:"30m"`
}

// DatabaseConfig holds the optional run-history database settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. Leave empty to disable
	// run history entirely.
	URL string `env:"DATABASE_URL"`

	// MaxConns is the maximum number of pooled connections (default: 5)
	MaxConns int `env:"DB_MAX_CONNS" default:"5"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the per-IP request budget (default: 120)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"120"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// HistoryEnabled reports whether the run-history store is configured.
func (c *DatabaseConfig) HistoryEnabled() bool {
	return c.URL != ""
}
