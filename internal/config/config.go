// Package config loads service and importer settings from environment
// variables, applies defaults, and validates everything on startup so that
// a misconfigured process fails before it touches any data.
package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/skuimport/internal/core"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Import   ImportConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `env:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `env:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" default:"60s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds connection pool settings.
type DatabaseConfig struct {
	// URL accepts DATABASE_URL or DB_URL.
	URL             string        `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`
	MaxConns        int           `env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
	MigrateOnStart  bool          `env:"DB_MIGRATE_ON_START" default:"false"`
}

// PoolConfig parses URL and applies the pool limits.
func (c DatabaseConfig) PoolConfig() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(c.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	pc.MaxConns = int32(c.MaxConns)
	pc.MinConns = int32(c.MinConns)
	pc.MaxConnLifetime = c.MaxConnLifetime
	pc.MaxConnIdleTime = c.MaxConnIdleTime
	return pc, nil
}

// ImportConfig holds the import pipeline settings.
type ImportConfig struct {
	// Behavior is the default run mode: append, replace or delete.
	Behavior string `env:"IMPORT_BEHAVIOR" default:"append"`

	// BunchSize is the number of rows pulled from the source at a time.
	BunchSize int `env:"IMPORT_BUNCH_SIZE" default:"100"`

	// ValidationStrategy is skip-errors or stop-on-error.
	ValidationStrategy string `env:"IMPORT_VALIDATION_STRATEGY" default:"skip-errors"`

	// AllowedErrors is the error count that stops a stop-on-error run.
	AllowedErrors int `env:"IMPORT_ALLOWED_ERRORS" default:"10"`

	// CountPolicy is identifier or existence.
	CountPolicy string `env:"IMPORT_COUNT_POLICY" default:"identifier"`

	// StoreTimeout bounds each store call attempt.
	StoreTimeout time.Duration `env:"IMPORT_STORE_TIMEOUT" default:"10s"`

	// StoreRetries is how many times a failed store call is retried.
	StoreRetries int `env:"IMPORT_STORE_RETRIES" default:"2"`

	MaxFileSize   int64         `env:"IMPORT_MAX_FILE_SIZE" default:"104857600"`
	MaxConcurrent int           `env:"IMPORT_MAX_CONCURRENT" default:"2"`
	MaxWaitTime   time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`
	Timeout       time.Duration `env:"IMPORT_TIMEOUT" default:"30m"`
}

// RateLimitConfig holds per-IP request limits.
type RateLimitConfig struct {
	Enabled           bool `env:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMinute int  `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
	Burst             int  `env:"RATE_LIMIT_BURST" default:"20"`

	// ImportsPerMinute limits POST /api/imports separately.
	ImportsPerMinute int `env:"RATE_LIMIT_IMPORTS" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// forwarding headers are believed.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// APIKeys is a comma-separated list of accepted keys.
	APIKeys []string `env:"API_KEYS"`

	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is debug, info, warn, error or critical.
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is text or json.
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the listen address in host:port form.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// Options converts the import settings into the importer's run options.
func (c ImportConfig) Options() (core.Options, error) {
	behavior, err := core.ParseBehavior(c.Behavior)
	if err != nil {
		return core.Options{}, err
	}
	strategy, err := core.ParseValidationStrategy(c.ValidationStrategy)
	if err != nil {
		return core.Options{}, err
	}
	policy, err := core.ParseCountPolicy(c.CountPolicy)
	if err != nil {
		return core.Options{}, err
	}
	return core.Options{
		Behavior:           behavior,
		ValidationStrategy: strategy,
		AllowedErrors:      c.AllowedErrors,
		CountPolicy:        policy,
		StoreTimeout:       c.StoreTimeout,
		StoreRetries:       c.StoreRetries,
	}, nil
}

// ServiceConfig builds the settings for core.NewService.
func (c ImportConfig) ServiceConfig() (core.ServiceConfig, error) {
	opts, err := c.Options()
	if err != nil {
		return core.ServiceConfig{}, err
	}
	return core.ServiceConfig{
		Defaults:      opts,
		RunTimeout:    c.Timeout,
		MaxConcurrent: c.MaxConcurrent,
		MaxWait:       c.MaxWaitTime,
	}, nil
}

// String returns a representation safe for logs; the database URL and API
// keys are masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Server: {Addr: %q}, Database: {URL: [MASKED], MaxConns: %d, MinConns: %d}, "+
			"Import: {Behavior: %q, BunchSize: %d, Strategy: %q, AllowedErrors: %d, CountPolicy: %q, MaxConcurrent: %d}, "+
			"Rate: {Enabled: %v, RequestsPerMinute: %d}, Security: {APIKeys: %d, RequireAPIKey: %v}, "+
			"Logging: {Level: %q, Format: %q}}",
		c.Server.Addr(), c.Database.MaxConns, c.Database.MinConns,
		c.Import.Behavior, c.Import.BunchSize, c.Import.ValidationStrategy, c.Import.AllowedErrors,
		c.Import.CountPolicy, c.Import.MaxConcurrent,
		c.Rate.Enabled, c.Rate.RequestsPerMinute, len(c.Security.APIKeys), c.Security.RequireAPIKey,
		c.Logging.Level, c.Logging.Format,
	)
}
