package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "postgres", cfg.Backend)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, int64(1000), cfg.Compiler.AutoLimitCap)
	assert.Equal(t, 1000, cfg.Cache.Capacity)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:   "mssql backend",
			mutate: func(c *Config) { c.Backend = "mssql" },
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Backend = "oracle" },
			wantErr: "invalid backend",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.LogLevel = "verbose" },
			wantErr: "invalid log level",
		},
		{
			name:    "negative auto limit cap",
			mutate:  func(c *Config) { c.Compiler.AutoLimitCap = -1 },
			wantErr: "auto_limit_cap",
		},
		{
			name:    "negative cache capacity",
			mutate:  func(c *Config) { c.Cache.Capacity = -5 },
			wantErr: "cache capacity",
		},
		{
			name:    "negative timeout",
			mutate:  func(c *Config) { c.QueryTimeout = -1 },
			wantErr: "query_timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
