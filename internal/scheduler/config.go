package scheduler

import (
	"time"
)

// Config controls the scheduler tick.
type Config struct {
	TickInterval time.Duration
	// DefaultTimeout applies to jobs that do not set their own.
	DefaultTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		TickInterval:   time.Second,
		DefaultTimeout: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = defaults.TickInterval
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = defaults.DefaultTimeout
	}
	return c
}
