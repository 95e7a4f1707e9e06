// Package config provides centralized configuration management for the CRM core.
// Values come from environment variables with defaults, and are validated on
// startup so a misconfigured deployment fails before serving requests.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Export   ExportConfig
	Import   ImportConfig
	Batch    BatchConfig
	Cache    CacheConfig
	Security SecurityConfig
	I18n     I18nConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including waiting for exports.
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"4"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AutoMigrate applies embedded migrations on server start.
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" default:"true"`
}

// ExportConfig holds background export settings.
type ExportConfig struct {
	// BaseDir is the root under which export/<org>/<file>/ directories are created.
	BaseDir string `env:"EXPORT_BASE_DIR" default:"./data"`

	// MaxPreparedPerUser caps PREPARED tasks per user (default: 5)
	MaxPreparedPerUser int `env:"EXPORT_MAX_PREPARED_PER_USER" default:"5"`

	// PageSize is the "export all" page size (default: 2000)
	PageSize int `env:"EXPORT_PAGE_SIZE" default:"2000"`

	// SelectBatchSize is the "export selected" id batch size (default: 500)
	SelectBatchSize int `env:"EXPORT_SELECT_BATCH_SIZE" default:"500"`

	// StaleAfter marks orphaned PREPARED tasks as ERROR after this age.
	StaleAfter time.Duration `env:"EXPORT_STALE_AFTER" default:"2h"`

	// SweepInterval is how often the stale task sweeper runs.
	SweepInterval time.Duration `env:"EXPORT_SWEEP_INTERVAL" default:"10m"`
}

// ImportConfig holds spreadsheet import settings.
type ImportConfig struct {
	// MaxFileSize is the maximum workbook size in bytes (default: 20MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"20971520"`

	// BatchSize is how many imported records are stored per transaction (default: 2000)
	BatchSize int `env:"IMPORT_BATCH_SIZE" default:"2000"`
}

// BatchConfig bounds concurrent batch operations such as batch approve.
type BatchConfig struct {
	MaxConcurrent int           `env:"BATCH_MAX_CONCURRENT" default:"4"`
	MaxWait       time.Duration `env:"BATCH_MAX_WAIT" default:"5s"`
}

// CacheConfig holds form configuration cache settings.
type CacheConfig struct {
	FormConfigSize int           `env:"CACHE_FORM_CONFIG_SIZE" default:"512"`
	FormConfigTTL  time.Duration `env:"CACHE_FORM_CONFIG_TTL" default:"5m"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAuth rejects requests without a valid bearer token.
	RequireAuth bool `env:"SECURITY_REQUIRE_AUTH" default:"true"`

	// JWTSecret is the HMAC key used to verify bearer tokens.
	JWTSecret string `env:"SECURITY_JWT_SECRET"`
}

// I18nConfig holds localization settings.
type I18nConfig struct {
	// DefaultLocale is used when Accept-Language does not match (default: zh-CN)
	DefaultLocale string `env:"I18N_DEFAULT_LOCALE" default:"zh-CN"`
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
	return c.Host + ":" + strconv.Itoa(c.Port)
}
