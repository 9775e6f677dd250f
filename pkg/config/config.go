// Copyright 2025-2026 Velby. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the bridge.
type Config struct {
	ListenPort    int           `yaml:"listen_port" env:"BRIDGE_LISTEN_PORT"`
	LogLevel      string        `yaml:"log_level" env:"BRIDGE_LOG_LEVEL"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	StoreCapacity int           `yaml:"store_capacity"`
	BackfillDelay time.Duration `yaml:"backfill_delay"`
	Limits        LimitsConfig  `yaml:"limits"`
}

// LimitsConfig holds the tunable response budgets of the query protocol.
type LimitsConfig struct {
	DefaultLimit  int `yaml:"default_limit"`   // search result cap when ?limit absent
	DetailMaxBody int `yaml:"detail_max_body"` // body budget for single-record reads
	LatestMaxBody int `yaml:"latest_max_body"` // body budget for /repeater/latest
}

// DefaultConfig returns a configuration with the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenPort:    8090,
		LogLevel:      "info",
		ReadTimeout:   10 * time.Second,
		StoreCapacity: 50_000,
		BackfillDelay: 1500 * time.Millisecond,
		Limits: LimitsConfig{
			DefaultLimit:  100,
			DetailMaxBody: 1000,
			LatestMaxBody: 3000,
		},
	}
}

// Load reads and parses a YAML configuration file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// ApplyEnvOverrides reads BRIDGE_* environment variables and applies them,
// overriding YAML values.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("BRIDGE_LISTEN_PORT"); v != "" {
		if port, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			c.ListenPort = port
		}
	}
	if v := os.Getenv("BRIDGE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("BRIDGE_STORE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			c.StoreCapacity = n
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("listen_port must be in 1-65535, got %d", c.ListenPort)
	}
	if c.StoreCapacity <= 0 {
		return fmt.Errorf("store_capacity must be positive, got %d", c.StoreCapacity)
	}
	if c.ReadTimeout < time.Second {
		return fmt.Errorf("read_timeout must be at least 1s")
	}
	if c.Limits.DefaultLimit <= 0 {
		return fmt.Errorf("limits.default_limit must be positive")
	}
	if c.Limits.DetailMaxBody < 0 || c.Limits.LatestMaxBody < 0 {
		return fmt.Errorf("limits body budgets must not be negative")
	}
	return nil
}
