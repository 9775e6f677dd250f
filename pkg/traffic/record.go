// Copyright 2025-2026 Velby. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package traffic

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Velby/burp-mcp-api/pkg/engine"
)

// counter assigns record IDs. IDs are strictly increasing for the process
// lifetime and never reused, even after eviction.
var counter atomic.Int64

// Record is one captured exchange: the request as it went out, the response
// that came back (possibly absent), and routing metadata. Immutable once
// constructed; the byte slices must not be modified by callers.
type Record struct {
	ID         int64
	Tool       string
	Timestamp  time.Time
	Host       string
	Port       int
	Secure     bool
	Method     string
	Path       string // may carry a query string
	StatusCode int    // 0 when no response was obtained

	RequestBytes  []byte
	ResponseBytes []byte

	// MCPTag is non-empty only for requests injected by an external
	// automation client, e.g. "repeat:42". Opaque to the store.
	MCPTag string
}

// New constructs a Record, assigning the next ID and the current time.
func New(tool, host string, port int, secure bool, method, path string,
	statusCode int, requestBytes, responseBytes []byte, mcpTag string) *Record {
	return &Record{
		ID:            counter.Add(1),
		Tool:          tool,
		Timestamp:     time.Now(),
		Host:          host,
		Port:          port,
		Secure:        secure,
		Method:        method,
		Path:          path,
		StatusCode:    statusCode,
		RequestBytes:  requestBytes,
		ResponseBytes: responseBytes,
		MCPTag:        mcpTag,
	}
}

// FromResponseEvent builds a Record from a live response callback.
func FromResponseEvent(ev engine.ResponseEvent, mcpTag string) *Record {
	return New(ev.Tool, ev.Host, ev.Port, ev.Secure, ev.Method, ev.Path,
		ev.StatusCode, ev.RequestBytes, ev.ResponseBytes, mcpTag)
}

// FromExchange builds a Record from a backfilled historical exchange.
// Backfilled records never carry a provenance tag.
func FromExchange(ex engine.Exchange) *Record {
	tool := ex.Tool
	if tool == "" {
		tool = "PROXY"
	}
	return New(tool, ex.Host, ex.Port, ex.Secure, ex.Method, ex.Path,
		ex.StatusCode, ex.RequestBytes, ex.ResponseBytes, "")
}

// URL reconstructs the full URL, omitting default ports (80 plain, 443 TLS).
func (r *Record) URL() string {
	scheme := "http"
	if r.Secure {
		scheme = "https"
	}
	defaultPort := (r.Secure && r.Port == 443) || (!r.Secure && r.Port == 80)
	port := ""
	if !defaultPort {
		port = fmt.Sprintf(":%d", r.Port)
	}
	return scheme + "://" + r.Host + port + r.Path
}

// Extension returns the URL's file extension, lower-cased: "js", "png",
// "" when the last segment has no dot or the dot is its final character.
func (r *Record) Extension() string {
	p := r.Path
	if q := strings.IndexByte(p, '?'); q >= 0 {
		p = p[:q]
	}
	if slash := strings.LastIndexByte(p, '/'); slash >= 0 {
		p = p[slash+1:]
	}
	dot := strings.LastIndexByte(p, '.')
	if dot < 0 || dot == len(p)-1 {
		return ""
	}
	return strings.ToLower(p[dot+1:])
}

// ContentType returns the response Content-Type header value, lower-cased,
// or "" when the response is absent or carries no such header.
func (r *Record) ContentType() string {
	if len(r.ResponseBytes) == 0 {
		return ""
	}
	headers := headerSection(r.ResponseBytes)
	for _, line := range strings.Split(headers, "\n") {
		line = strings.TrimRight(line, "\r")
		if len(line) >= 13 && strings.EqualFold(line[:13], "content-type:") {
			return strings.ToLower(strings.TrimSpace(line[13:]))
		}
	}
	return ""
}

// ── text search ──────────────────────────────────────────────────────────

// MatchesIn reports whether needle occurs (case-insensitively) in any of the
// named parts: request, request_headers, request_body, response,
// response_headers, response_body. Response parts are gzip-aware.
func (r *Record) MatchesIn(needle string, parts map[string]bool) bool {
	needle = strings.ToLower(needle)
	for part := range parts {
		if r.matchesPart(needle, part) {
			return true
		}
	}
	return false
}

func (r *Record) matchesPart(needle, part string) bool {
	switch part {
	case "request":
		return containsWhole(r.RequestBytes, needle, false)
	case "request_headers":
		return containsHeaders(r.RequestBytes, needle)
	case "request_body":
		return containsBody(r.RequestBytes, needle, false)
	case "response":
		return containsWhole(r.ResponseBytes, needle, true)
	case "response_headers":
		return containsHeaders(r.ResponseBytes, needle)
	case "response_body":
		return containsBody(r.ResponseBytes, needle, true)
	}
	return false
}

// MatchesAnywhere is the unscoped fallback search: path, host, and the raw
// request/response bytes as undecoded Latin-1 text. Cheaper and looser than
// MatchesIn: no gzip decompression.
func (r *Record) MatchesAnywhere(needle string) bool {
	needle = strings.ToLower(needle)
	if strings.Contains(strings.ToLower(r.Path), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(r.Host), needle) {
		return true
	}
	if len(r.RequestBytes) > 0 &&
		strings.Contains(strings.ToLower(latin1(r.RequestBytes)), needle) {
		return true
	}
	if len(r.ResponseBytes) > 0 &&
		strings.Contains(strings.ToLower(latin1(r.ResponseBytes)), needle) {
		return true
	}
	return false
}

func containsWhole(raw []byte, needle string, tryGzip bool) bool {
	if len(raw) == 0 {
		return false
	}
	return strings.Contains(strings.ToLower(DecodeForDisplay(raw, 0, tryGzip)), needle)
}

func containsHeaders(raw []byte, needle string) bool {
	if len(raw) == 0 {
		return false
	}
	return strings.Contains(strings.ToLower(headerSection(raw)), needle)
}

func containsBody(raw []byte, needle string, tryGzip bool) bool {
	if len(raw) == 0 {
		return false
	}
	sep := findBodySep(raw)
	if sep < 0 {
		return false
	}
	body := bodySection(raw, sep)
	if len(body) == 0 {
		return false
	}
	if tryGzip && gzipEncoded(latin1(raw[:sep])) {
		if dec, err := gunzip(body); err == nil {
			body = dec
		}
	}
	return strings.Contains(strings.ToLower(string(body)), needle)
}

// ── decoding ─────────────────────────────────────────────────────────────

// DecodeForDisplay renders raw HTTP message bytes as readable text. The
// header section is never truncated; the body is truncated to maxBody runes
// (0 = unlimited) with a marker stating the omitted count. With tryGzip,
// a body whose headers declare gzip content-encoding is decompressed first;
// decompression failure is swallowed and the raw bytes are kept.
func DecodeForDisplay(raw []byte, maxBody int, tryGzip bool) string {
	if len(raw) == 0 {
		return ""
	}
	sep := findBodySep(raw)
	if sep < 0 {
		// No separator: treat the whole message as body.
		return truncateBody(latin1(raw), maxBody)
	}

	headers := latin1(raw[:sep])
	body := bodySection(raw, sep)

	if tryGzip && gzipEncoded(headers) {
		if dec, err := gunzip(body); err == nil {
			body = dec
		}
	}

	bodyStr := latin1(body)
	if tryGzip {
		bodyStr = string(body)
	}
	return headers + "\r\n\r\n" + truncateBody(bodyStr, maxBody)
}

func truncateBody(body string, maxBody int) string {
	if maxBody <= 0 {
		return body
	}
	runes := []rune(body)
	if len(runes) <= maxBody {
		return body
	}
	return string(runes[:maxBody]) +
		fmt.Sprintf("\n[... %d chars omitted — use ?max_body=0 for full body]", len(runes)-maxBody)
}

// findBodySep returns the index of the header/body separator: the first
// \r\n\r\n, else the first \n\n, else -1.
func findBodySep(raw []byte) int {
	if i := bytes.Index(raw, []byte("\r\n\r\n")); i >= 0 {
		return i
	}
	return bytes.Index(raw, []byte("\n\n"))
}

func headerSection(raw []byte) string {
	if sep := findBodySep(raw); sep >= 0 {
		return latin1(raw[:sep])
	}
	return latin1(raw)
}

func bodySection(raw []byte, sep int) []byte {
	bodyStart := sep + 2
	if raw[sep] == '\r' {
		bodyStart = sep + 4
	}
	if bodyStart >= len(raw) {
		return nil
	}
	return raw[bodyStart:]
}

func gzipEncoded(headers string) bool {
	return strings.Contains(strings.ToLower(headers), "content-encoding: gzip")
}

func gunzip(body []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// latin1 decodes bytes as ISO-8859-1: every byte becomes one rune, so
// arbitrary binary survives the trip into a valid UTF-8 Go string.
func latin1(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}

// ── field projection ─────────────────────────────────────────────────────

// FieldSet selects which fields Project emits. Empty/nil means all fields.
type FieldSet map[string]bool

// ParseFieldSet parses a comma-separated field list. Blank input yields nil
// (meaning: use the caller's default field set).
func ParseFieldSet(csv string) FieldSet {
	if csv == "" {
		return nil
	}
	set := make(FieldSet)
	for _, f := range strings.Split(csv, ",") {
		if f = strings.TrimSpace(f); f != "" {
			set[f] = true
		}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

// ListFields is the default projection for search results: metadata only,
// no bodies. mcp_tag is included but only emitted when present.
var ListFields = FieldSet{
	"id": true, "tool": true, "timestamp": true, "url": true,
	"method": true, "status_code": true, "mcp_tag": true,
}

// DetailFields is the default projection for single-record reads: decoded
// request and response text with the body truncated at the caller's budget.
var DetailFields = FieldSet{
	"id": true, "tool": true, "url": true, "method": true,
	"status_code": true, "timestamp": true, "request_length": true,
	"response_length": true, "request_text": true, "response_text": true,
	"mcp_tag": true,
}

// Project serialises the record to a flat key→value map using the given
// field set (nil/empty = every field). maxBody truncates only the body
// portion of request_text/response_text; 0 means unlimited.
func (r *Record) Project(fields FieldSet, maxBody int) map[string]any {
	all := len(fields) == 0
	has := func(f string) bool { return all || fields[f] }

	out := make(map[string]any, 17)
	if has("id") {
		out["id"] = r.ID
	}
	if has("tool") {
		out["tool"] = r.Tool
	}
	if has("url") {
		out["url"] = r.URL()
	}
	if has("host") {
		out["host"] = r.Host
	}
	if has("port") {
		out["port"] = r.Port
	}
	if has("https") {
		out["https"] = r.Secure
	}
	if has("method") {
		out["method"] = r.Method
	}
	if has("path") {
		out["path"] = r.Path
	}
	if has("status_code") {
		out["status_code"] = r.StatusCode
	}
	if has("timestamp") {
		out["timestamp"] = r.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	if has("request_length") {
		out["request_length"] = len(r.RequestBytes)
	}
	if has("response_length") {
		out["response_length"] = len(r.ResponseBytes)
	}
	if has("request") {
		out["request"] = base64.StdEncoding.EncodeToString(r.RequestBytes)
	}
	if has("response") {
		out["response"] = base64.StdEncoding.EncodeToString(r.ResponseBytes)
	}
	if has("request_text") {
		out["request_text"] = DecodeForDisplay(r.RequestBytes, maxBody, false)
	}
	if has("response_text") {
		out["response_text"] = DecodeForDisplay(r.ResponseBytes, maxBody, true)
	}
	if has("response_headers") {
		out["response_headers"] = r.responseHeaders()
	}
	if r.MCPTag != "" && has("mcp_tag") {
		out["mcp_tag"] = r.MCPTag
	}
	return out
}

// ProjectList renders the list view.
func (r *Record) ProjectList() map[string]any {
	return r.Project(ListFields, 0)
}

// ProjectDetail renders the detail view with the given body budget.
func (r *Record) ProjectDetail(maxBody int) map[string]any {
	return r.Project(DetailFields, maxBody)
}

func (r *Record) responseHeaders() string {
	if len(r.ResponseBytes) == 0 {
		return ""
	}
	return headerSection(r.ResponseBytes)
}
