package automation

import "time"

// Config holds configuration for the automation engine.
type Config struct {
	// ActionTimeout bounds each webhook/email/update_device action run by
	// the engine's executor.
	// Default: 30s
	ActionTimeout time.Duration

	// LogTTL is how long execution logs are kept before they become
	// eligible for garbage collection.
	// Default: 30 days
	LogTTL time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ActionTimeout: 30 * time.Second,
		LogTTL:        30 * 24 * time.Hour,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = 30 * time.Second
	}
	if c.LogTTL <= 0 {
		c.LogTTL = 30 * 24 * time.Hour
	}
}
