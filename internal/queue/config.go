package queue

import (
	"time"

	"github.com/Aman-CERP/stratoindex/internal/config"
)

// Config controls batching, concurrency and retry accounting.
type Config struct {
	// Dimension is the expected vector length. 0 defers to the sink's
	// active dimension; if that is also 0 any non-empty vector is accepted.
	Dimension int

	BatchSize      int
	Concurrency    int
	MaxRetries     int
	MaxQueueSize   int
	MaxDeadLetters int

	FlushInterval time.Duration
	ItemTimeout   time.Duration
	BatchTimeout  time.Duration
}

// DefaultConfig returns the default queue configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:      50,
		Concurrency:    4,
		MaxRetries:     3,
		MaxQueueSize:   10000,
		MaxDeadLetters: 1000,
		FlushInterval:  5 * time.Second,
		ItemTimeout:    30 * time.Second,
		BatchTimeout:   2 * time.Minute,
	}
}

// withDefaults fills unset fields and clamps concurrency to 1..8.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	c.Concurrency = min(max(c.Concurrency, 1), 8)
	if c.MaxRetries < 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = def.MaxQueueSize
	}
	if c.MaxDeadLetters <= 0 {
		c.MaxDeadLetters = def.MaxDeadLetters
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = def.FlushInterval
	}
	if c.ItemTimeout <= 0 {
		c.ItemTimeout = def.ItemTimeout
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = def.BatchTimeout
	}
	return c
}

// ConfigFrom maps the file configuration onto a queue Config.
func ConfigFrom(c *config.Config) Config {
	def := DefaultConfig()
	return Config{
		Dimension:      c.Embeddings.Dimensions,
		BatchSize:      c.Queue.BatchSize,
		Concurrency:    c.Queue.Concurrency,
		MaxRetries:     c.Queue.MaxRetries,
		MaxQueueSize:   c.Queue.MaxQueueSize,
		MaxDeadLetters: c.Queue.MaxDeadLetters,
		FlushInterval:  config.Duration(c.Queue.FlushInterval, def.FlushInterval),
		ItemTimeout:    config.Duration(c.Queue.ItemTimeout, def.ItemTimeout),
		BatchTimeout:   config.Duration(c.Queue.BatchTimeout, def.BatchTimeout),
	}
}
