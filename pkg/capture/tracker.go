// Copyright 2025-2026 Velby. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

// Package capture turns the engine's request/response callbacks into
// traffic records and carries provenance tags across the two callbacks.
package capture

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Velby/burp-mcp-api/pkg/engine"
	"github.com/Velby/burp-mcp-api/pkg/traffic"
)

// TagHeader marks a request as injected by an external automation client.
// It is stripped before the request leaves the bridge's sight; its value
// becomes the record's provenance tag.
const TagHeader = "X-Burp-MCP"

// Tracker receives the engine's live callbacks. The engine delivers the
// request and its eventual response as two independent events with no
// shared identity, so tagged requests are re-linked to their responses via
// a derived fingerprint: method + host + path + byte length of the stripped
// request. This is an explicit heuristic, not a strong identity: two
// concurrent requests identical in all four components can have their tags
// swapped. Accepted limitation; the bounded volume of real traffic keeps
// unconsumed entries harmless.
type Tracker struct {
	store  *traffic.Store
	logger *zap.Logger

	mu      sync.Mutex
	pending map[string]string // fingerprint → provenance tag
}

// NewTracker creates a tracker inserting into the given store.
func NewTracker(store *traffic.Store, logger *zap.Logger) *Tracker {
	return &Tracker{
		store:   store,
		logger:  logger,
		pending: make(map[string]string),
	}
}

// HandleRequest processes a request-observed event. When the request
// carries the tag header, the header is stripped and a pending fingerprint
// entry is recorded; the returned event (possibly stripped) is what the
// engine should forward. Untagged requests pass through unchanged.
func (t *Tracker) HandleRequest(ev engine.RequestEvent) engine.RequestEvent {
	tag := headerValue(ev.Raw, TagHeader)
	if tag == "" {
		return ev
	}

	stripped := ev
	stripped.Raw = stripHeader(ev.Raw, TagHeader)

	fp := fingerprint(stripped.Method, stripped.Host, stripped.Path, len(stripped.Raw))
	t.mu.Lock()
	t.pending[fp] = tag
	t.mu.Unlock()

	t.logger.Debug("tagged request pending",
		zap.String("fingerprint", fp),
		zap.String("tag", tag),
	)
	return stripped
}

// HandleResponse processes a response-observed event: consumes a pending
// tag for the initiating request's fingerprint, if any, and inserts the
// completed record into the store.
func (t *Tracker) HandleResponse(ev engine.ResponseEvent) {
	fp := fingerprint(ev.Method, ev.Host, ev.Path, len(ev.RequestBytes))

	t.mu.Lock()
	tag, ok := t.pending[fp]
	if ok {
		delete(t.pending, fp)
	}
	t.mu.Unlock()

	t.store.Add(traffic.FromResponseEvent(ev, tag))
}

// PendingCount returns the number of tagged requests still awaiting a
// response. Entries for responses the engine never reports stay for the
// process lifetime.
func (t *Tracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

func fingerprint(method, host, path string, strippedLen int) string {
	return fmt.Sprintf("%s %s%s %d", method, host, path, strippedLen)
}

// ── raw header access ────────────────────────────────────────────────────

// headerValue returns the value of the named header in the header section
// of a raw HTTP request, or "" when absent.
func headerValue(raw []byte, name string) string {
	prefix := strings.ToLower(name) + ":"
	for _, line := range headerLines(raw) {
		l := string(line)
		if len(l) >= len(prefix) && strings.EqualFold(l[:len(prefix)], prefix) {
			return strings.TrimSpace(l[len(prefix):])
		}
	}
	return ""
}

// stripHeader removes every occurrence of the named header from the header
// section, leaving the request line and body bytes untouched.
func stripHeader(raw []byte, name string) []byte {
	sep := bytes.Index(raw, []byte("\r\n\r\n"))
	head := raw
	var rest []byte
	if sep >= 0 {
		head = raw[:sep]
		rest = raw[sep:]
	}

	prefix := strings.ToLower(name) + ":"
	lines := bytes.Split(head, []byte("\r\n"))
	kept := make([][]byte, 0, len(lines))
	for i, line := range lines {
		if i > 0 {
			l := string(line)
			if len(l) >= len(prefix) && strings.EqualFold(l[:len(prefix)], prefix) {
				continue
			}
		}
		kept = append(kept, line)
	}

	out := bytes.Join(kept, []byte("\r\n"))
	return append(out, rest...)
}

func headerLines(raw []byte) [][]byte {
	end := bytes.Index(raw, []byte("\r\n\r\n"))
	if end < 0 {
		end = len(raw)
	}
	lines := bytes.Split(raw[:end], []byte("\r\n"))
	if len(lines) <= 1 {
		return nil
	}
	return lines[1:] // skip the request line
}
