package store

// Config holds configuration for the Store.
type Config struct {
	// TableName is the name of the single lattice table.
	// Default: "lattice"
	TableName string

	// BatchRetries is how many times unprocessed batch items are retried
	// before the batch write is reported as failed.
	// Default: 3
	BatchRetries int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TableName:    "lattice",
		BatchRetries: 3,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.TableName == "" {
		c.TableName = "lattice"
	}
	if c.BatchRetries < 1 {
		c.BatchRetries = 3
	}
}
