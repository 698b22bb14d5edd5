package cache

import "time"

// DefaultCapacity bounds the store when no capacity is configured.
const DefaultCapacity = 1000

// Config holds the configuration for the plan cache.
type Config struct {
	// Capacity is the maximum number of stored keys.
	Capacity int
	// TTL expires entries by age. Zero disables expiry.
	TTL time.Duration
}

// DefaultConfig returns a default cache configuration.
func DefaultConfig() *Config {
	return &Config{
		Capacity: DefaultCapacity,
		TTL:      0,
	}
}

// WithCapacity sets the maximum number of stored keys.
func (c *Config) WithCapacity(capacity int) *Config {
	c.Capacity = capacity
	return c
}

// WithTTL sets the time-to-live for cache entries.
func (c *Config) WithTTL(ttl time.Duration) *Config {
	c.TTL = ttl
	return c
}
