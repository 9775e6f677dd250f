// Copyright 2025-2026 Velby. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Velby/burp-mcp-api/pkg/bridge"
	"github.com/Velby/burp-mcp-api/pkg/config"
	"github.com/Velby/burp-mcp-api/pkg/engine"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		configPath  string
		port        int
		logLevel    string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "path to configuration file")
	flag.IntVar(&port, "port", 0, "listen port (overrides config)")
	flag.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flag.BoolVar(&showVersion, "version", false, "show version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("burp-mcp-api %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if port != 0 {
		cfg.ListenPort = port
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	level := zap.NewAtomicLevelAt(parseLevel(cfg.LogLevel))
	logger, err := newLogger(level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting bridge",
		zap.String("version", version),
		zap.String("commit", commit),
	)

	// Standalone runs carry no interception engine; the capture side stays
	// idle and engine-backed routes answer with an explicit error. Real
	// deployments embed pkg/bridge next to an engine adapter instead.
	b := bridge.New(cfg, detachedEngine{}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := b.Start(ctx); err != nil {
		logger.Fatal("failed to start bridge", zap.Error(err))
	}

	var watcher *config.Watcher
	if configPath != "" {
		watcher = config.NewWatcher(configPath, func(newCfg *config.Config) {
			level.SetLevel(parseLevel(newCfg.LogLevel))
			b.Reload(newCfg)
		}, logger)
		if err := watcher.Start(ctx); err != nil {
			logger.Error("failed to start config watcher", zap.Error(err))
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)

	for {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", zap.String("signal", sig.String()))
			if watcher != nil {
				watcher.Stop()
			}
			cancel()
			b.Stop()
			return

		case <-hupCh:
			logger.Info("received SIGHUP, reloading configuration")
			newCfg, err := loadConfig(configPath)
			if err != nil {
				logger.Error("failed to reload config", zap.Error(err))
				continue
			}
			level.SetLevel(parseLevel(newCfg.LogLevel))
			b.Reload(newCfg)
		}
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaults := []string{
		"configs/bridge.yaml",
		"/etc/burp-mcp-api/bridge.yaml",
	}
	for _, p := range defaults {
		if _, err := os.Stat(p); err == nil {
			return config.Load(p)
		}
	}
	return config.DefaultConfig(), nil
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func newLogger(level zap.AtomicLevel) (*zap.Logger, error) {
	cfg := zap.Config{
		Level:            level,
		Encoding:         "console",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return cfg.Build()
}

// detachedEngine is the stand-in used when the binary runs without a host
// interception engine attached.
type detachedEngine struct{}

func (detachedEngine) History() ([]engine.Exchange, error) {
	return nil, nil
}

func (detachedEngine) SendToRepeater(string, int, bool, []byte, string) error {
	return errors.New("no interception engine attached")
}

func (detachedEngine) IsInScope(string) (bool, error) {
	return false, errors.New("no interception engine attached")
}
