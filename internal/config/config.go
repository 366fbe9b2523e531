// Package config loads node configuration from the environment. The
// harness owns argv and assigns identity over the wire, so environment
// variables are the only configuration surface this process has.
package config

import (
	"fmt"
	"os"
	"time"
)

// Environment variable names.
const (
	EnvTickInterval = "GOSSIP_TICK_INTERVAL"
	EnvRetryBase    = "GOSSIP_RETRY_BASE"
	EnvRetryCap     = "GOSSIP_RETRY_CAP"
	EnvMetricsAddr  = "GOSSIP_METRICS_ADDR"
)

// Config holds the node configuration.
type Config struct {
	// TickInterval is how often the dissemination engine scans the
	// pending-ack table for overdue retries.
	TickInterval time.Duration
	// RetryBase is the delay armed after the first send of a value to a
	// neighbor; doubled per retry up to RetryCap.
	RetryBase time.Duration
	// RetryCap bounds the retry delay for a persistently unreachable
	// neighbor.
	RetryCap time.Duration
	// MetricsAddr is the listen address for the /metrics endpoint.
	// Empty disables the listener.
	MetricsAddr string
}

// Default returns the configuration used when no environment overrides
// are present.
func Default() Config {
	return Config{
		TickInterval: 200 * time.Millisecond,
		RetryBase:    500 * time.Millisecond,
		RetryCap:     4 * time.Second,
		MetricsAddr:  "",
	}
}

// Load builds a Config from the environment on top of defaults.
func Load() (Config, error) {
	cfg := Default()

	if err := overrideDuration(&cfg.TickInterval, EnvTickInterval); err != nil {
		return Config{}, err
	}
	if err := overrideDuration(&cfg.RetryBase, EnvRetryBase); err != nil {
		return Config{}, err
	}
	if err := overrideDuration(&cfg.RetryCap, EnvRetryCap); err != nil {
		return Config{}, err
	}
	if v := os.Getenv(EnvMetricsAddr); v != "" {
		cfg.MetricsAddr = v
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %v", c.TickInterval)
	}
	if c.RetryBase <= 0 {
		return fmt.Errorf("retry base must be positive, got %v", c.RetryBase)
	}
	if c.RetryCap < c.RetryBase {
		return fmt.Errorf("retry cap %v must be >= retry base %v", c.RetryCap, c.RetryBase)
	}
	return nil
}

func overrideDuration(dst *time.Duration, env string) error {
	v := os.Getenv(env)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", env, err)
	}
	*dst = d
	return nil
}
