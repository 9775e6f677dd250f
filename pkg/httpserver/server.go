// Copyright 2025-2026 Velby. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

// Package httpserver is a minimal HTTP/1.1 server built directly on
// net.Listener. The bridge cannot rely on a pre-existing server component
// in its host environment, so request parsing, routing and response framing
// are implemented here: one request per connection, no keep-alive, no
// chunked encoding.
package httpserver

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Request is one parsed inbound request.
type Request struct {
	Method string
	Path   string            // percent-decoded, query stripped
	Params map[string]string // percent-decoded query values, first key wins
	Header map[string]string // lower-cased names, first occurrence wins
	Body   []byte
}

// Response is what a handler returns. ContentType defaults to
// application/json when empty.
type Response struct {
	Status      int
	Body        []byte
	ContentType string
}

// Handler serves one request. A returned error (or a panic) becomes a 500
// response carrying the message as a JSON error body.
type Handler func(*Request) (Response, error)

type route struct {
	prefix  string
	handler Handler
}

// Server accepts loopback connections and dispatches requests to the
// handler with the longest matching path prefix.
type Server struct {
	port        int
	readTimeout time.Duration
	logger      *zap.Logger

	routes  []route
	ln      net.Listener
	closing atomic.Bool
}

// New creates a server bound (at Start time) to 127.0.0.1:port.
func New(port int, readTimeout time.Duration, logger *zap.Logger) *Server {
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	return &Server{
		port:        port,
		readTimeout: readTimeout,
		logger:      logger,
	}
}

// Handle registers a handler for every path that equals prefix or starts
// with prefix + "/". Must be called before Start.
func (s *Server) Handle(prefix string, h Handler) {
	s.routes = append(s.routes, route{prefix: prefix, handler: h})
	// Longest prefix first, so dispatch can take the first match.
	sort.SliceStable(s.routes, func(i, j int) bool {
		return len(s.routes[i].prefix) > len(s.routes[j].prefix)
	})
}

// Start binds the listener and begins accepting on a dedicated goroutine.
// A bind failure is returned to the caller and is fatal; nothing retries.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.port))
	if err != nil {
		return fmt.Errorf("bind 127.0.0.1:%d: %w", s.port, err)
	}
	s.ln = ln
	go s.acceptLoop()
	s.logger.Info("api server listening",
		zap.String("addr", ln.Addr().String()),
		zap.Duration("read_timeout", s.readTimeout),
	)
	return nil
}

// Stop closes the listener. Connections already accepted finish in flight.
func (s *Server) Stop() {
	s.closing.Store(true)
	if s.ln != nil {
		s.ln.Close()
	}
}

// Port returns the configured listen port.
func (s *Server) Port() int { return s.port }

// Addr returns the bound address, or "" before Start. Useful when the
// configured port was 0 (ephemeral).
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.closing.Load() {
				return
			}
			s.logger.Warn("accept failed", zap.Error(err))
			continue
		}
		go s.handleConn(conn)
	}
}

// handleConn serves exactly one request. Any parse or I/O failure drops the
// connection without a response; a single bad client never reaches the
// acceptor.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(s.readTimeout))

	req, err := parseRequest(bufio.NewReader(conn))
	if err != nil || req == nil {
		return
	}
	resp := s.dispatch(req)
	if err := writeResponse(conn, resp); err != nil {
		s.logger.Debug("write response failed", zap.Error(err))
	}
}

func (s *Server) dispatch(req *Request) (resp Response) {
	for _, rt := range s.routes {
		if req.Path != rt.prefix && !strings.HasPrefix(req.Path, rt.prefix+"/") {
			continue
		}
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("handler panic",
					zap.String("path", req.Path), zap.Any("panic", r))
				resp = errorResponse(500, fmt.Sprint(r))
			}
		}()
		var err error
		resp, err = rt.handler(req)
		if err != nil {
			resp = errorResponse(500, err.Error())
		}
		return resp
	}
	return errorResponse(404, "Not found")
}

func errorResponse(status int, msg string) Response {
	return Response{
		Status: status,
		Body:   []byte(`{"error":"` + escapeJSONString(msg) + `"}`),
	}
}

func escapeJSONString(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`, "\x00", "",
	)
	return r.Replace(s)
}

// parseRequest reads one request: request line, headers up to a blank line,
// and a body only when Content-Length is present. Returns nil for requests
// it refuses to answer (malformed request line, I/O failure).
func parseRequest(r *bufio.Reader) (*Request, error) {
	line, err := readLine(r)
	if err != nil || line == "" {
		return nil, err
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return nil, nil
	}
	method := parts[0]
	target := parts[1]

	rawPath := target
	rawQuery := ""
	if q := strings.IndexByte(target, '?'); q >= 0 {
		rawPath = target[:q]
		rawQuery = target[q+1:]
	}
	path, err := url.QueryUnescape(rawPath)
	if err != nil {
		path = rawPath
	}

	header := make(map[string]string)
	for {
		hl, err := readLine(r)
		if err != nil {
			return nil, err
		}
		if hl == "" {
			break
		}
		colon := strings.IndexByte(hl, ':')
		if colon <= 0 {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(hl[:colon]))
		if _, dup := header[name]; !dup {
			header[name] = strings.TrimSpace(hl[colon+1:])
		}
	}

	var body []byte
	if cl, ok := header["content-length"]; ok {
		n, err := strconv.Atoi(strings.TrimSpace(cl))
		if err == nil && n > 0 {
			body = make([]byte, n)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, err
			}
		}
	}

	return &Request{
		Method: method,
		Path:   path,
		Params: parseQuery(rawQuery),
		Header: header,
		Body:   body,
	}, nil
}

// parseQuery percent-decodes a raw query string into a map. The first
// occurrence of a repeated key wins; undecodable pairs are skipped.
func parseQuery(raw string) map[string]string {
	params := make(map[string]string)
	if raw == "" {
		return params
	}
	for _, pair := range strings.Split(raw, "&") {
		eq := strings.IndexByte(pair, '=')
		if eq <= 0 {
			continue
		}
		key, err := url.QueryUnescape(pair[:eq])
		if err != nil {
			continue
		}
		val, err := url.QueryUnescape(pair[eq+1:])
		if err != nil {
			continue
		}
		if _, dup := params[key]; !dup {
			params[key] = val
		}
	}
	return params
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func writeResponse(conn net.Conn, resp Response) error {
	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	head := fmt.Sprintf("HTTP/1.1 %d %s\r\n"+
		"Content-Type: %s\r\n"+
		"Content-Length: %d\r\n"+
		"Access-Control-Allow-Origin: *\r\n"+
		"Connection: close\r\n"+
		"\r\n",
		resp.Status, statusText(resp.Status), contentType, len(resp.Body))
	if _, err := conn.Write([]byte(head)); err != nil {
		return err
	}
	_, err := conn.Write(resp.Body)
	return err
}

func statusText(status int) string {
	switch status {
	case 200:
		return "OK"
	case 400:
		return "Bad Request"
	case 404:
		return "Not Found"
	case 405:
		return "Method Not Allowed"
	default:
		return "Internal Server Error"
	}
}
