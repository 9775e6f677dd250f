// Copyright 2025-2026 Velby. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

// Package api translates the query protocol into traffic store operations.
// Every handler is a pure function of the store snapshot, the parsed query
// parameters and the parsed body; no handler holds state across calls.
package api

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/Velby/burp-mcp-api/pkg/engine"
	"github.com/Velby/burp-mcp-api/pkg/httpserver"
	"github.com/Velby/burp-mcp-api/pkg/traffic"
	"go.uber.org/zap"
)

// Limits are the runtime-tunable response budgets. They can be swapped as a
// unit when the config file is reloaded.
type Limits struct {
	DefaultLimit  int // search result cap when ?limit is absent
	DetailMaxBody int // body budget for /proxy/history/{id}
	LatestMaxBody int // body budget for /repeater/latest
}

// DefaultLimits returns the budgets the protocol documents.
func DefaultLimits() Limits {
	return Limits{DefaultLimit: 100, DetailMaxBody: 1000, LatestMaxBody: 3000}
}

// Server hosts the query protocol on a hand-rolled loopback listener.
type Server struct {
	store  *traffic.Store
	eng    engine.Engine
	srv    *httpserver.Server
	body   BodyParser
	logger *zap.Logger
	limits atomic.Pointer[Limits]
}

// NewServer wires the route table. srv must not have been started yet.
func NewServer(store *traffic.Store, eng engine.Engine, srv *httpserver.Server, logger *zap.Logger) *Server {
	s := &Server{
		store:  store,
		eng:    eng,
		srv:    srv,
		body:   LenientJSONParser{},
		logger: logger,
	}
	limits := DefaultLimits()
	s.limits.Store(&limits)

	srv.Handle("/", s.handleDocs)
	srv.Handle("/health", s.handleHealth)
	srv.Handle("/stats", s.handleStats)
	srv.Handle("/proxy/history", s.handleProxyHistory)
	srv.Handle("/proxy/hosts", s.handleHosts)
	srv.Handle("/repeater", s.handleRepeater)
	srv.Handle("/scope", s.handleScope)
	return s
}

// Start binds the listener and begins serving.
func (s *Server) Start() error { return s.srv.Start() }

// Stop closes the listener; in-flight requests complete.
func (s *Server) Stop() { s.srv.Stop() }

// SetLimits swaps the tunable budgets (config reload path).
func (s *Server) SetLimits(l Limits) { s.limits.Store(&l) }

// ── handlers ─────────────────────────────────────────────────────────────

func (s *Server) handleHealth(_ *httpserver.Request) (httpserver.Response, error) {
	return jsonResponse(200, map[string]any{
		"status": "ok",
		"count":  s.store.Size(),
		"port":   s.srv.Port(),
	})
}

func (s *Server) handleHosts(_ *httpserver.Request) (httpserver.Response, error) {
	return jsonResponse(200, map[string]any{"hosts": s.store.Hosts()})
}

func (s *Server) handleProxyHistory(req *httpserver.Request) (httpserver.Response, error) {
	if req.Method != "GET" {
		return errResponse(405, "Method not allowed"), nil
	}

	const prefix = "/proxy/history/"
	if strings.HasPrefix(req.Path, prefix) {
		idStr := req.Path[len(prefix):]
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return errResponse(400, "Invalid id: "+idStr), nil
		}
		rec, ok := s.store.GetByID(id)
		if !ok {
			return errResponse(404, "Item not found"), nil
		}
		return jsonResponse(200, s.renderDetail(rec, req.Params))
	}

	return s.searchResponse(req.Params, "")
}

func (s *Server) handleRepeater(req *httpserver.Request) (httpserver.Response, error) {
	if req.Method == "GET" && strings.HasSuffix(req.Path, "/latest") {
		rec, ok := s.store.GetLatestByTool("REPEATER")
		if !ok {
			return errResponse(404, "No Repeater sends captured yet. Send a request from a Repeater tab first."), nil
		}
		params := make(map[string]string, len(req.Params)+1)
		for k, v := range req.Params {
			params[k] = v
		}
		if _, ok := params["max_body"]; !ok {
			params["max_body"] = strconv.Itoa(s.limits.Load().LatestMaxBody)
		}
		return jsonResponse(200, s.renderDetail(rec, params))
	}

	if req.Method == "GET" {
		return s.searchResponse(req.Params, "REPEATER")
	}
	if req.Method != "POST" {
		return errResponse(405, "Method not allowed"), nil
	}
	return s.handleRepeaterSend(req)
}

// handleRepeaterSend forwards a request to the engine's repeat-and-modify
// tool, either by replaying a stored record or from raw base64 bytes.
func (s *Server) handleRepeaterSend(req *httpserver.Request) (httpserver.Response, error) {
	body := s.body.Parse(req.Body)

	var (
		raw    []byte
		host   string
		port   int
		secure bool
	)

	if idStr := body["history_id"]; idStr != "" {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return errResponse(400, "Invalid number: "+idStr), nil
		}
		rec, ok := s.store.GetByID(id)
		if !ok {
			return errResponse(404, fmt.Sprintf("History item not found: %d", id)), nil
		}
		raw = rec.RequestBytes
		host = rec.Host
		port = rec.Port
		secure = rec.Secure
	} else {
		b64 := body["request"]
		if b64 == "" {
			return errResponse(400, "Provide either 'history_id' or 'request' (base64 raw HTTP request)"), nil
		}
		var err error
		raw, err = base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return errResponse(400, "Invalid base64 in 'request'"), nil
		}
		host = body["host"]
		port = parseIntOr(body["port"], 80)
		secure = strings.EqualFold(body["https"], "true")
	}

	tabName := body["tab_name"]
	if err := s.eng.SendToRepeater(host, port, secure, raw, tabName); err != nil {
		return errResponse(500, err.Error()), nil
	}

	var tab any
	if tabName != "" {
		tab = tabName
	}
	return jsonResponse(200, map[string]any{"status": "sent", "tab_name": tab})
}

func (s *Server) handleScope(req *httpserver.Request) (httpserver.Response, error) {
	if req.Method != "GET" {
		return errResponse(405, "Method not allowed"), nil
	}
	target := req.Params["url"]
	if target == "" {
		return errResponse(400, "Missing required query param: url"), nil
	}
	inScope, err := s.eng.IsInScope(target)
	if err != nil {
		return httpserver.Response{}, err
	}
	return jsonResponse(200, map[string]any{"url": target, "in_scope": inScope})
}

// ── rendering ────────────────────────────────────────────────────────────

// renderDetail projects one record: the default detail view unless a
// fields= override is present. max_body defaults to the detail budget;
// 0 means unlimited.
func (s *Server) renderDetail(rec *traffic.Record, params map[string]string) map[string]any {
	maxBody := parseIntOr(params["max_body"], s.limits.Load().DetailMaxBody)
	if fields := traffic.ParseFieldSet(params["fields"]); fields != nil {
		return rec.Project(fields, maxBody)
	}
	return rec.ProjectDetail(maxBody)
}

// searchResponse runs a store search from query parameters and serialises
// the result list. forceTool pins the tool filter for /repeater routes.
func (s *Server) searchResponse(params map[string]string, forceTool string) (httpserver.Response, error) {
	tool := forceTool
	if tool == "" {
		tool = params["tool"]
	}
	q := traffic.Query{
		Host:       params["host"],
		Method:     params["method"],
		Status:     params["status"],
		Search:     params["search"],
		SearchIn:   params["search_in"],
		Tool:       tool,
		ExtExclude: params["ext_exclude"],
		Mime:       params["mime"],
		TaggedOnly: strings.EqualFold(params["mcp"], "true"),
		Order:      params["order"],
		Limit:      parseIntOr(params["limit"], s.limits.Load().DefaultLimit),
		Offset:     parseIntOr(params["offset"], 0),
	}
	maxBody := parseIntOr(params["max_body"], 0)
	fields := traffic.ParseFieldSet(params["fields"])

	records := s.store.Search(q)
	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		if fields != nil {
			out = append(out, rec.Project(fields, maxBody))
		} else {
			out = append(out, rec.ProjectList())
		}
	}
	return jsonResponse(200, out)
}

// ── helpers ──────────────────────────────────────────────────────────────

func jsonResponse(status int, v any) (httpserver.Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return httpserver.Response{}, err
	}
	return httpserver.Response{Status: status, Body: body}, nil
}

func errResponse(status int, msg string) httpserver.Response {
	body, _ := json.Marshal(map[string]string{"error": msg})
	return httpserver.Response{Status: status, Body: body}
}

func parseIntOr(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
