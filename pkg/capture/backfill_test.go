// Copyright 2025-2026 Velby. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Velby/burp-mcp-api/pkg/engine"
	"github.com/Velby/burp-mcp-api/pkg/traffic"
)

type historyEngine struct {
	history []engine.Exchange
	err     error
}

func (h *historyEngine) History() ([]engine.Exchange, error) { return h.history, h.err }

func (h *historyEngine) SendToRepeater(string, int, bool, []byte, string) error {
	return errors.New("not implemented")
}

func (h *historyEngine) IsInScope(string) (bool, error) {
	return false, errors.New("not implemented")
}

func TestBackfillImportsHistory(t *testing.T) {
	store := traffic.NewStore(10)
	eng := &historyEngine{history: []engine.Exchange{
		{Tool: "PROXY", Host: "a.com", Port: 443, Secure: true, Method: "GET",
			Path: "/one", StatusCode: 200, RequestBytes: []byte("GET /one HTTP/1.1\r\n\r\n")},
		{Host: "b.com", Port: 80, Method: "POST", Path: "/two",
			RequestBytes: []byte("POST /two HTTP/1.1\r\n\r\n")},
		{}, // malformed: no method, no request bytes
	}}

	b := NewBackfill(store, eng, time.Millisecond, zap.NewNop())
	b.Run(context.Background())

	if store.Size() != 2 {
		t.Fatalf("size = %d, want 2 (malformed item skipped)", store.Size())
	}
	rec, ok := store.GetLatestByTool("PROXY")
	if !ok {
		t.Fatal("no PROXY record")
	}
	if rec.Host != "b.com" {
		t.Errorf("empty tool should default to PROXY, latest = %+v", rec)
	}
}

func TestBackfillCancelledDuringDelay(t *testing.T) {
	store := traffic.NewStore(10)
	eng := &historyEngine{history: []engine.Exchange{
		{Method: "GET", Path: "/", RequestBytes: []byte("GET / HTTP/1.1\r\n\r\n")},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := NewBackfill(store, eng, time.Hour, zap.NewNop())
	b.Run(ctx)

	if store.Size() != 0 {
		t.Error("cancelled backfill must not import anything")
	}
}

func TestBackfillEngineErrorIsNotFatal(t *testing.T) {
	store := traffic.NewStore(10)
	b := NewBackfill(store, &historyEngine{err: errors.New("engine gone")}, time.Millisecond, zap.NewNop())
	b.Run(context.Background()) // must not panic

	if store.Size() != 0 {
		t.Error("failed backfill must leave the store empty")
	}
}
