// Package config provides centralized configuration management for the
// fleet data exchange server. Settings come from environment variables with
// defaults and are validated on startup so misconfiguration fails fast.
package config

import (
	"strconv"
	"time"
)

// Config holds all server configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Upload   UploadConfig
	Export   ExportConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Archive  ArchiveConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"5m"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including in-flight imports (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 2m)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"2m"`
}

// DatabaseConfig holds PostgreSQL pool settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required).
	// DATABASE_URL and DB_URL are both accepted.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// UploadConfig holds import file processing settings.
type UploadConfig struct {
	// MaxFileSize is the maximum accepted import file in bytes (default: 20MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"20971520"`

	// MaxConcurrent is the number of imports analysed or committed in parallel (default: 4)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long a request waits for an import slot (default: 20s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"20s"`

	// Timeout bounds a single preview or commit (default: 2m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" default:"2m"`

	// KeyTTL is how long a commit idempotency key replays its result (default: 24h)
	KeyTTL time.Duration `env:"UPLOAD_IDEMPOTENCY_TTL" default:"24h"`
}

// ExportConfig holds export and preview settings.
type ExportConfig struct {
	// PreviewMax caps the number of change records returned by a preview.
	// Zero returns every record.
	PreviewMax int `env:"EXPORT_PREVIEW_MAX" default:"0"`

	// DefaultDelimiter is used when a request omits delimitador (default: ;)
	DefaultDelimiter string `env:"EXPORT_DEFAULT_DELIMITER" default:";"`
}

// RateLimitConfig holds per-IP request throttling.
type RateLimitConfig struct {
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute applies to every route (default: 120)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"120"`

	// ImportLimit applies to import preview/confirm routes (default: 20)
	ImportLimit int `env:"RATE_LIMIT_IMPORT" default:"20"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of proxy CIDRs allowed to set X-Real-IP
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// JWTSecret enables bearer token validation on /api when set
	JWTSecret string `env:"AUTH_JWT_SECRET"`

	// JWTIssuer, when set, must match the token iss claim
	JWTIssuer string `env:"AUTH_JWT_ISSUER"`

	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// ArchiveConfig holds audit log retention settings.
type ArchiveConfig struct {
	HotRetentionDays      int `env:"ARCHIVE_HOT_RETENTION_DAYS" default:"90"`
	ArchiveRetentionYears int `env:"ARCHIVE_RETENTION_YEARS" default:"7"`
	BatchSize             int `env:"ARCHIVE_BATCH_SIZE" default:"5000"`

	// Schedule is a cron spec or descriptor for the archive job (default: @daily)
	Schedule string `env:"ARCHIVE_SCHEDULE" default:"@daily"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// AuthEnabled reports whether bearer tokens are validated.
func (c *SecurityConfig) AuthEnabled() bool {
	return c.JWTSecret != ""
}
