// Copyright 2025-2026 Velby. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package api

import (
	"fmt"

	"github.com/Velby/burp-mcp-api/pkg/httpserver"
)

// handleDocs serves the plain-text API reference at exactly "/". The text
// is written for LLM agents driving the bridge, so examples come first.
func (s *Server) handleDocs(req *httpserver.Request) (httpserver.Response, error) {
	if req.Path != "/" {
		return errResponse(404, "Not found"), nil
	}
	return httpserver.Response{
		Status:      200,
		Body:        []byte(fmt.Sprintf(docsText, s.srv.Port(), s.srv.Port())),
		ContentType: "text/plain; charset=utf-8",
	}, nil
}

const docsText = `Burp REST Bridge — API reference (port %d, localhost only)

QUICK START FOR AGENTS
- Confirm running:      GET /health
- See recent traffic:   GET /proxy/history?limit=20
- Filter by host:       GET /proxy/history?host=example.com&limit=20
- Search in responses:  GET /proxy/history?search=token&search_in=response_body&limit=10
- Exclude static files: GET /proxy/history?ext_exclude=js,css,png,gif,woff2,ico&limit=20
- Filter by MIME type:  GET /proxy/history?mime=json&limit=20
- Read a single item:   GET /proxy/history/{id}              (request + 1k of response body)
- Read full response:   GET /proxy/history/{id}?max_body=0
- Oldest occurrence:    GET /proxy/history?search=token&order=asc&limit=1
- MCP-sent requests:    GET /proxy/history?mcp=true&limit=20
- Latest Repeater send: GET /repeater/latest
- Known hosts:          GET /proxy/hosts
- Send to Repeater:     POST /repeater  {"history_id": 42, "tab_name": "test"}
- Check scope:          GET /scope?url=https://example.com

ENDPOINTS

GET /health
  Response: {"status":"ok","count":<total items>,"port":%d}

GET /stats
  Bridge self-monitoring: store count, uptime, goroutines, memory, CPU.

GET /proxy/history
  Default fields (list): id, tool, timestamp, url, method, status_code
  No request/response bodies in list view — fetch individual items for content.

  Filter params:
    host=<substring>         hostname filter (case-insensitive)
    method=POST              exact HTTP method
    status=<prefix>          "401", "4" (all 4xx), "20" (200-209)
    search=<text>            case-insensitive substring search
    search_in=<parts>        limit search to specific parts (comma-separated):
                               request, request_headers, request_body,
                               response, response_headers, response_body
                             (default: search everywhere)
    ext_exclude=<csv>        exclude by URL extension: js,css,png,gif,ico,woff2,svg,ttf
    mime=<substring>         filter by response Content-Type: "json", "html", "xml"
    tool=PROXY|REPEATER|SCANNER|INTRUDER|EXTENSION
    mcp=true                 only return requests sent via MCP tools
    order=asc                oldest first (default: newest first)
    limit=100                max results
    offset=0                 pagination

  Output params (use with fields=):
    fields=<csv>             comma-separated fields to include (overrides defaults)
    max_body=<n>             truncate body in *_text fields (0=unlimited); only used
                             when fields= includes request_text or response_text

GET /proxy/history/{id}
  Returns full decoded request + response for a single item.
  Response body truncated to 1000 chars by default.
  Params:
    max_body=0               full response body (no truncation)
    max_body=5000            larger truncation limit
    fields=<csv>             custom field selection

GET /proxy/hosts
  Returns sorted list of unique hostnames seen in captured traffic.
  Response: {"hosts":["api.example.com","app.example.com",...]}

GET /repeater           (or GET /repeater/history)
  Same as /proxy/history but always filtered to tool=REPEATER.
  Supports same filter/output params.

GET /repeater/latest
  Most recent Repeater send with full decoded content (body up to 3000 chars).
  Use when the user says "look at what I just sent" or "check the last Repeater request".

POST /repeater
  Send a request to the Repeater tool (opens a new tab).
  Body options:
    {"history_id": 42}                               — resend a captured item
    {"history_id": 42, "tab_name": "vuln check"}     — with custom tab label
    {"request":"<base64 raw HTTP>",
     "host":"api.example.com","port":443,"https":true}  — raw request
  Response: {"status":"sent","tab_name":"..."}

GET /scope?url=<url>
  Check if a URL is in the suite-wide target scope.
  Response: {"url":"...","in_scope":true}

FIELDS REFERENCE
  id               integer — unique item ID
  tool             string  — PROXY | REPEATER | SCANNER | INTRUDER | EXTENSION
  url              string  — full URL
  method           string  — GET | POST | PUT | DELETE | ...
  status_code      integer — HTTP response status
  timestamp        string  — ISO-8601 capture time
  request_length   integer — raw request size in bytes
  response_length  integer — raw response size in bytes
  host             string  — hostname only
  port             integer — port number
  https            boolean — TLS/HTTPS
  path             string  — path+query only
  request          string  — base64-encoded raw request
  response         string  — base64-encoded raw response
  request_text     string  — decoded request (headers always full; body truncated at max_body)
  response_text    string  — decoded response (headers always full; body truncated at max_body)
  response_headers string  — response status line + headers only (no body)
  mcp_tag          string  — present only on MCP-initiated requests (e.g. "repeat:42", "request")
`
