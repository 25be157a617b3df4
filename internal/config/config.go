// Package config loads the optional YAML tunables file (C8) onto built-in
// defaults. No CLI flag overrides any of its values.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LockConfig selects and configures the Lock Provider backend (§4.1).
type LockConfig struct {
	Backend    string `yaml:"backend"` // "null", "file", "redis"
	Path       string `yaml:"path"`
	RedisAddr  string `yaml:"redis_addr"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// MediatorConfig configures the Worker Mediator pool (§4.6).
type MediatorConfig struct {
	PoolSize int                `yaml:"pool_size"`
	Retries  int                `yaml:"retries"`
	Timeouts map[string]float64 `yaml:"timeouts"`
}

// MetricsConfig toggles the metrics registry (C10).
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Config is the full set of daemon tunables, loadable from YAML.
type Config struct {
	LoopInterval        float64        `yaml:"loop_interval"`
	IdleProbability     float64        `yaml:"idle_probability"`
	AutoRestartInterval int            `yaml:"auto_restart_interval"`
	Lock                LockConfig     `yaml:"lock"`
	Mediator            MediatorConfig `yaml:"mediator"`
	Metrics             MetricsConfig  `yaml:"metrics"`
}

// Default returns the baseline configuration that a config file's values
// are loaded onto.
func Default() Config {
	return Config{
		LoopInterval:        0,
		IdleProbability:     0,
		AutoRestartInterval: 3600,
		Lock:                LockConfig{Backend: "null", TTLSeconds: 15},
		Mediator:            MediatorConfig{PoolSize: 1, Retries: 3},
		Metrics:             MetricsConfig{Enabled: true},
	}
}

// Load reads path (if it exists) and merges it onto Default(). A missing
// file is not an error — an absent config is a valid, all-default config.
// A malformed file is returned as an error; the CLI commands that load the
// config return it directly at startup, not through the environment check.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LockTTL returns the configured lease TTL as a time.Duration.
func (c Config) LockTTL() time.Duration {
	if c.Lock.TTLSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Lock.TTLSeconds) * time.Second
}

// TimeoutFor returns the configured per-method timeout, or the fallback
// when the method has no explicit entry.
func (c Config) TimeoutFor(method string, fallback time.Duration) time.Duration {
	if s, ok := c.Mediator.Timeouts[method]; ok && s > 0 {
		return time.Duration(s * float64(time.Second))
	}
	return fallback
}
