// Copyright 2025-2026 Velby. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package engine

// Engine is the boundary to the host interception engine. The bridge never
// talks to the engine directly beyond these three operations; everything
// else (event delivery) flows the other way, via capture.Tracker callbacks.
type Engine interface {
	// History returns the engine's pre-existing exchange list for the
	// one-shot startup backfill. Individual entries may be partial
	// (e.g. a request with no response).
	History() ([]Exchange, error)

	// SendToRepeater forwards a raw request to the engine's
	// repeat-and-modify tool. tabName may be empty.
	SendToRepeater(host string, port int, secure bool, raw []byte, tabName string) error

	// IsInScope reports whether a URL is inside the engine's
	// suite-wide target scope.
	IsInScope(url string) (bool, error)
}

// Exchange is one resolved request/response pair from the engine's history.
// Response fields are zero-valued when the response never arrived.
type Exchange struct {
	Tool          string
	Host          string
	Port          int
	Secure        bool
	Method        string
	Path          string
	StatusCode    int
	RequestBytes  []byte
	ResponseBytes []byte
}

// RequestEvent is delivered by the engine when a request is about to be
// sent by any of its tools.
type RequestEvent struct {
	Tool   string
	Host   string
	Port   int
	Secure bool
	Method string
	Path   string
	Raw    []byte
}

// ResponseEvent is delivered by the engine when a response arrives. It
// carries the initiating request as the engine last saw it; the engine's
// event model gives the two callbacks no shared identity, so correlation
// with the original RequestEvent is the bridge's problem.
type ResponseEvent struct {
	Tool          string
	Host          string
	Port          int
	Secure        bool
	Method        string
	Path          string
	StatusCode    int
	RequestBytes  []byte
	ResponseBytes []byte
}
