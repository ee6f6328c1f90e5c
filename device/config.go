package device

import "time"

// Config holds configuration for the device manager.
type Config struct {
	// HeartbeatInterval is how often a ping is sent over a live session.
	// Default: 30s
	HeartbeatInterval time.Duration

	// LivenessTimeout closes a session that produced no inbound activity
	// (ingest, control traffic, pong) for this long. This bounds the
	// silently-hung-connection case the close handler cannot see.
	// Default: 90s
	LivenessTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 30 * time.Second,
		LivenessTimeout:   90 * time.Second,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.LivenessTimeout <= 0 {
		c.LivenessTimeout = 90 * time.Second
	}
}
