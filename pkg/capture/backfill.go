// Copyright 2025-2026 Velby. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package capture

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Velby/burp-mcp-api/pkg/engine"
	"github.com/Velby/burp-mcp-api/pkg/traffic"
)

// Backfill drains the engine's pre-existing history into the store once at
// startup, after a short settle delay. It runs off the request-serving
// path; its failure is logged, never fatal.
type Backfill struct {
	store  *traffic.Store
	eng    engine.Engine
	delay  time.Duration
	logger *zap.Logger
}

// NewBackfill creates the one-shot backfill pass. delay <= 0 selects the
// default 1.5s settle time.
func NewBackfill(store *traffic.Store, eng engine.Engine, delay time.Duration, logger *zap.Logger) *Backfill {
	if delay <= 0 {
		delay = 1500 * time.Millisecond
	}
	return &Backfill{store: store, eng: eng, delay: delay, logger: logger}
}

// Run waits the settle delay, then imports the history. Malformed items
// (no method and no request bytes) are skipped without aborting the pass.
// Cancelling ctx during the delay abandons the pass.
func (b *Backfill) Run(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(b.delay):
	}

	history, err := b.eng.History()
	if err != nil {
		b.logger.Error("history backfill failed", zap.Error(err))
		return
	}

	count := 0
	for _, ex := range history {
		if ex.Method == "" && len(ex.RequestBytes) == 0 {
			continue
		}
		b.store.Add(traffic.FromExchange(ex))
		count++
	}
	b.logger.Info("backfilled proxy history", zap.Int("count", count))
}
