// Copyright 2025-2026 Velby. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ListenPort != 8090 {
		t.Errorf("ListenPort = %d", cfg.ListenPort)
	}
	if cfg.StoreCapacity != 50_000 {
		t.Errorf("StoreCapacity = %d", cfg.StoreCapacity)
	}
	if cfg.ReadTimeout != 10*time.Second {
		t.Errorf("ReadTimeout = %v", cfg.ReadTimeout)
	}
	if cfg.BackfillDelay != 1500*time.Millisecond {
		t.Errorf("BackfillDelay = %v", cfg.BackfillDelay)
	}
	if cfg.Limits.DefaultLimit != 100 || cfg.Limits.DetailMaxBody != 1000 || cfg.Limits.LatestMaxBody != 3000 {
		t.Errorf("Limits = %+v", cfg.Limits)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
listen_port: 9999
log_level: debug
read_timeout: 30s
limits:
  default_limit: 50
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenPort != 9999 || cfg.LogLevel != "debug" || cfg.ReadTimeout != 30*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Limits.DefaultLimit != 50 {
		t.Errorf("default_limit = %d", cfg.Limits.DefaultLimit)
	}
	// Unset keys keep their defaults.
	if cfg.StoreCapacity != 50_000 || cfg.Limits.DetailMaxBody != 1000 {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("missing file must fail")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "listen_port: [not a port")
	if _, err := Load(path); err == nil {
		t.Error("malformed YAML must fail")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BRIDGE_LISTEN_PORT", " 7070 ")
	t.Setenv("BRIDGE_LOG_LEVEL", "warn")
	t.Setenv("BRIDGE_STORE_CAPACITY", "123")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()
	if cfg.ListenPort != 7070 || cfg.LogLevel != "warn" || cfg.StoreCapacity != 123 {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"port zero", func(c *Config) { c.ListenPort = 0 }, false},
		{"port too high", func(c *Config) { c.ListenPort = 70000 }, false},
		{"capacity zero", func(c *Config) { c.StoreCapacity = 0 }, false},
		{"read timeout sub-second", func(c *Config) { c.ReadTimeout = 100 * time.Millisecond }, false},
		{"default limit zero", func(c *Config) { c.Limits.DefaultLimit = 0 }, false},
		{"negative body budget", func(c *Config) { c.Limits.DetailMaxBody = -1 }, false},
		{"zero body budget ok", func(c *Config) { c.Limits.DetailMaxBody = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestWatcherReloads(t *testing.T) {
	path := writeConfig(t, "listen_port: 8090\n")

	reloaded := make(chan *Config, 1)
	w := NewWatcher(path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	}, zap.NewNop())

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("listen_port: 8090\nlog_level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.LogLevel != "debug" {
			t.Errorf("reloaded log_level = %q", cfg.LogLevel)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("reload callback never fired")
	}
}

func TestWatcherIgnoresInvalidReload(t *testing.T) {
	path := writeConfig(t, "listen_port: 8090\n")

	called := make(chan struct{}, 1)
	w := NewWatcher(path, func(*Config) { called <- struct{}{} }, zap.NewNop())
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("listen_port: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-called:
		t.Error("invalid config must not trigger the callback")
	case <-time.After(1 * time.Second):
	}
}
