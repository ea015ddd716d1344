package service

import (
	"time"

	"github.com/smallbiznis/pantry/internal/config"
)

// Config controls the relay loop.
type Config struct {
	RelayInterval time.Duration
	BatchSize     int
	MaxRetries    int
	Timeout       time.Duration
	// ClaimTTL hides claimed rows from other relays while a pass runs.
	ClaimTTL    time.Duration
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func DefaultConfig() Config {
	return Config{
		RelayInterval: 5 * time.Second,
		BatchSize:     50,
		MaxRetries:    3,
		Timeout:       5 * time.Second,
		ClaimTTL:      time.Minute,
		BaseBackoff:   5 * time.Second,
		MaxBackoff:    5 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RelayInterval: cfg.Outbox.RelayInterval,
		BatchSize:     cfg.Outbox.BatchSize,
		MaxRetries:    cfg.Outbox.MaxRetries,
		Timeout:       cfg.Outbox.Timeout,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RelayInterval <= 0 {
		c.RelayInterval = defaults.RelayInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaults.MaxRetries
	}
	if c.Timeout <= 0 {
		c.Timeout = defaults.Timeout
	}
	if c.ClaimTTL <= 0 {
		c.ClaimTTL = defaults.ClaimTTL
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = defaults.BaseBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaults.MaxBackoff
	}
	return c
}

// backoff doubles per attempt from BaseBackoff, capped at MaxBackoff.
func (c Config) backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return c.BaseBackoff
	}
	delay := c.BaseBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	return delay
}
