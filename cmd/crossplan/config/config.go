// Package config provides configuration structures for the crossplan CLI.
package config

import (
	"fmt"
	"time"

	"github.com/TFMV/crossplan/pkg/models"
)

// Config represents the pipeline configuration.
type Config struct {
	// Backend is the default target backend.
	Backend  string `yaml:"backend" json:"backend"`
	Database string `yaml:"database" json:"database"`
	DSN      string `yaml:"dsn" json:"dsn"`

	LogLevel     string        `yaml:"log_level" json:"log_level"`
	QueryTimeout time.Duration `yaml:"query_timeout" json:"query_timeout"`

	// BlockDangerous refuses destructive statements at the service layer.
	BlockDangerous bool `yaml:"block_dangerous" json:"block_dangerous"`

	Compiler       CompilerConfig       `yaml:"compiler" json:"compiler"`
	Cache          CacheConfig          `yaml:"cache" json:"cache"`
	Metrics        MetricsConfig        `yaml:"metrics" json:"metrics"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool" json:"connection_pool"`
}

// CompilerConfig tunes the rewrite stage.
type CompilerConfig struct {
	// AutoLimit caps unbounded queries by default.
	AutoLimit bool `yaml:"auto_limit" json:"auto_limit"`
	// AutoLimitCap is the row cap used when AutoLimit applies.
	AutoLimitCap int64 `yaml:"auto_limit_cap" json:"auto_limit_cap"`
	// DefaultOrderTerm orders paginated queries that have no ORDER BY, on
	// backends that require one. Empty means ordinal 1.
	DefaultOrderTerm string `yaml:"default_order_term" json:"default_order_term"`
}

// CacheConfig represents plan cache configuration.
type CacheConfig struct {
	Capacity int           `yaml:"capacity" json:"capacity"`
	TTL      time.Duration `yaml:"ttl" json:"ttl"`
}

// MetricsConfig represents metrics configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address"`
	Path    string `yaml:"path" json:"path"`
}

// ConnectionPoolConfig represents connection pool configuration.
type ConnectionPoolConfig struct {
	MaxOpenConnections int           `yaml:"max_open_connections" json:"max_open_connections"`
	MaxIdleConnections int           `yaml:"max_idle_connections" json:"max_idle_connections"`
	ConnMaxLifetime    time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime    time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
	ConnectionTimeout  time.Duration `yaml:"connection_timeout" json:"connection_timeout"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Backend:      string(models.BackendPostgres),
		LogLevel:     "info",
		QueryTimeout: 5 * time.Minute,
		Compiler: CompilerConfig{
			AutoLimitCap: 1000,
		},
		Cache: CacheConfig{
			Capacity: 1000,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9090",
			Path:    "/metrics",
		},
		ConnectionPool: ConnectionPoolConfig{
			MaxOpenConnections: 16,
			MaxIdleConnections: 4,
			ConnMaxLifetime:    time.Hour,
			ConnMaxIdleTime:    10 * time.Minute,
			ConnectionTimeout:  30 * time.Second,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, err := models.ParseBackend(c.Backend); err != nil {
		return fmt.Errorf("invalid backend %q: %w", c.Backend, err)
	}
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	if c.Compiler.AutoLimitCap < 0 {
		return fmt.Errorf("auto_limit_cap must not be negative")
	}
	if c.Cache.Capacity < 0 {
		return fmt.Errorf("cache capacity must not be negative")
	}
	if c.QueryTimeout < 0 {
		return fmt.Errorf("query_timeout must not be negative")
	}
	return nil
}
