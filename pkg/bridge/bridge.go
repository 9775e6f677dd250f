// Copyright 2025-2026 Velby. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

// Package bridge wires the traffic store, capture tracker, backfill pass
// and query API together. The host engine is injected, never global, so
// every test can build a fresh bridge around a fake.
package bridge

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Velby/burp-mcp-api/pkg/api"
	"github.com/Velby/burp-mcp-api/pkg/capture"
	"github.com/Velby/burp-mcp-api/pkg/config"
	"github.com/Velby/burp-mcp-api/pkg/engine"
	"github.com/Velby/burp-mcp-api/pkg/httpserver"
	"github.com/Velby/burp-mcp-api/pkg/traffic"
)

// Bridge is the composition root: one store, one tracker, one API server,
// one backfill pass, all sharing the injected engine collaborator.
type Bridge struct {
	cfg    atomic.Pointer[config.Config]
	logger *zap.Logger

	store    *traffic.Store
	tracker  *capture.Tracker
	backfill *capture.Backfill
	api      *api.Server

	cancel context.CancelFunc
}

// New constructs a stopped bridge from configuration.
func New(cfg *config.Config, eng engine.Engine, logger *zap.Logger) *Bridge {
	store := traffic.NewStore(cfg.StoreCapacity)
	srv := httpserver.New(cfg.ListenPort, cfg.ReadTimeout, logger)

	b := &Bridge{
		logger:   logger,
		store:    store,
		tracker:  capture.NewTracker(store, logger),
		backfill: capture.NewBackfill(store, eng, cfg.BackfillDelay, logger),
		api:      api.NewServer(store, eng, srv, logger),
	}
	b.cfg.Store(cfg)
	b.api.SetLimits(limitsFrom(cfg))
	return b
}

// Start binds the API listener and kicks off the one-shot backfill.
// A bind failure is fatal and returned; the backfill never is.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.api.Start(); err != nil {
		return err
	}

	ctx, b.cancel = context.WithCancel(ctx)
	go b.backfill.Run(ctx)

	b.logger.Info("bridge started",
		zap.Int("port", b.cfg.Load().ListenPort),
		zap.Int("capacity", b.cfg.Load().StoreCapacity),
	)
	return nil
}

// Stop closes the listener and abandons a still-pending backfill delay.
// Accepted connections finish in flight.
func (b *Bridge) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.api.Stop()
	b.logger.Info("bridge stopped")
}

// Reload applies the reloadable subset of a fresh config: the query
// protocol's response budgets. Port and capacity stay as started.
func (b *Bridge) Reload(cfg *config.Config) {
	b.cfg.Store(cfg)
	b.api.SetLimits(limitsFrom(cfg))
	b.logger.Info("bridge limits reloaded",
		zap.Int("default_limit", cfg.Limits.DefaultLimit),
		zap.Int("detail_max_body", cfg.Limits.DetailMaxBody),
	)
}

// Tracker exposes the capture callbacks for the engine adapter to invoke.
func (b *Bridge) Tracker() *capture.Tracker { return b.tracker }

// Store exposes the traffic store (read side).
func (b *Bridge) Store() *traffic.Store { return b.store }

func limitsFrom(cfg *config.Config) api.Limits {
	return api.Limits{
		DefaultLimit:  cfg.Limits.DefaultLimit,
		DetailMaxBody: cfg.Limits.DetailMaxBody,
		LatestMaxBody: cfg.Limits.LatestMaxBody,
	}
}
