// Copyright 2025-2026 Velby. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package httpserver

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func parse(t *testing.T, raw string) (*Request, error) {
	t.Helper()
	return parseRequest(bufio.NewReader(strings.NewReader(raw)))
}

func TestParseRequestBasic(t *testing.T) {
	req, err := parse(t, "GET /proxy/history?limit=5&host=a.com HTTP/1.1\r\nHost: localhost\r\nX-Thing: v\r\n\r\n")
	if err != nil || req == nil {
		t.Fatalf("parse failed: %v", err)
	}
	if req.Method != "GET" || req.Path != "/proxy/history" {
		t.Errorf("request line parsed as %q %q", req.Method, req.Path)
	}
	if req.Params["limit"] != "5" || req.Params["host"] != "a.com" {
		t.Errorf("params = %v", req.Params)
	}
	if req.Header["x-thing"] != "v" {
		t.Errorf("header names should be lower-cased: %v", req.Header)
	}
}

func TestParseRequestPercentDecoding(t *testing.T) {
	req, err := parse(t, "GET /scope?url=https%3A%2F%2Fa.com%2Fx HTTP/1.1\r\n\r\n")
	if err != nil || req == nil {
		t.Fatalf("parse failed: %v", err)
	}
	if req.Params["url"] != "https://a.com/x" {
		t.Errorf("url param = %q", req.Params["url"])
	}
}

func TestParseRequestMalformedLineDropped(t *testing.T) {
	req, err := parse(t, "GARBAGE\r\n\r\n")
	if req != nil || err != nil {
		t.Errorf("malformed request line should yield nil request and nil error, got %v, %v", req, err)
	}
}

func TestParseRequestBody(t *testing.T) {
	body := `{"history_id":"7"}`
	raw := "POST /repeater HTTP/1.1\r\nContent-Length: " +
		"18\r\nContent-Type: application/json\r\n\r\n" + body
	req, err := parse(t, raw)
	if err != nil || req == nil {
		t.Fatalf("parse failed: %v", err)
	}
	if string(req.Body) != body {
		t.Errorf("body = %q, want %q", req.Body, body)
	}
}

func TestParseRequestTruncatedBody(t *testing.T) {
	raw := "POST /repeater HTTP/1.1\r\nContent-Length: 100\r\n\r\nshort"
	req, err := parse(t, raw)
	if req != nil || err == nil {
		t.Error("short body should fail the read, not return a partial request")
	}
}

func TestParseQueryFirstWins(t *testing.T) {
	params := parseQuery("a=1&a=2&b=x%20y&bad=%zz&=empty")
	if params["a"] != "1" {
		t.Errorf("repeated key should keep first value, got %q", params["a"])
	}
	if params["b"] != "x y" {
		t.Errorf("b = %q", params["b"])
	}
	if _, ok := params["bad"]; ok {
		t.Error("undecodable pair should be skipped")
	}
	if len(params) != 2 {
		t.Errorf("params = %v", params)
	}
}

func TestDispatchLongestPrefix(t *testing.T) {
	s := New(0, time.Second, zap.NewNop())
	var hit string
	s.Handle("/", func(*Request) (Response, error) {
		hit = "root"
		return Response{Status: 200}, nil
	})
	s.Handle("/proxy/history", func(*Request) (Response, error) {
		hit = "history"
		return Response{Status: 200}, nil
	})

	s.dispatch(&Request{Method: "GET", Path: "/proxy/history/42"})
	if hit != "history" {
		t.Errorf("longest prefix should win, hit %q", hit)
	}

	s.dispatch(&Request{Method: "GET", Path: "/other"})
	if hit != "root" {
		t.Errorf("fallback should reach the root handler, hit %q", hit)
	}
}

func TestDispatchPrefixBoundary(t *testing.T) {
	s := New(0, time.Second, zap.NewNop())
	s.Handle("/health", func(*Request) (Response, error) {
		return Response{Status: 200, Body: []byte("{}")}, nil
	})

	if resp := s.dispatch(&Request{Path: "/health"}); resp.Status != 200 {
		t.Errorf("exact match: status %d", resp.Status)
	}
	if resp := s.dispatch(&Request{Path: "/health/sub"}); resp.Status != 200 {
		t.Errorf("subpath match: status %d", resp.Status)
	}
	if resp := s.dispatch(&Request{Path: "/healthy"}); resp.Status != 404 {
		t.Errorf("sibling path must not match prefix: status %d", resp.Status)
	}
}

func TestDispatchHandlerError(t *testing.T) {
	s := New(0, time.Second, zap.NewNop())
	s.Handle("/boom", func(*Request) (Response, error) {
		return Response{}, errors.New("engine unavailable")
	})
	resp := s.dispatch(&Request{Path: "/boom"})
	if resp.Status != 500 {
		t.Errorf("handler error should map to 500, got %d", resp.Status)
	}
	if !strings.Contains(string(resp.Body), "engine unavailable") {
		t.Errorf("error body = %s", resp.Body)
	}
}

func TestDispatchPanicRecovered(t *testing.T) {
	s := New(0, time.Second, zap.NewNop())
	s.Handle("/panic", func(*Request) (Response, error) {
		panic("boom")
	})
	resp := s.dispatch(&Request{Path: "/panic"})
	if resp.Status != 500 {
		t.Errorf("panic should map to 500, got %d", resp.Status)
	}
}

func TestServeOverSocket(t *testing.T) {
	s := New(0, time.Second, zap.NewNop())
	s.Handle("/echo", func(req *Request) (Response, error) {
		return Response{Status: 200, Body: []byte(`{"q":"` + req.Params["q"] + `"}`)}, nil
	})
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	raw := request(t, s.Addr(), "GET /echo?q=hello HTTP/1.1\r\nHost: localhost\r\n\r\n")
	if !strings.HasPrefix(raw, "HTTP/1.1 200 OK\r\n") {
		t.Errorf("status line wrong: %q", firstLine(raw))
	}
	for _, h := range []string{
		"Content-Type: application/json",
		"Access-Control-Allow-Origin: *",
		"Connection: close",
	} {
		if !strings.Contains(raw, h+"\r\n") {
			t.Errorf("missing header %q in response", h)
		}
	}
	if !strings.HasSuffix(raw, `{"q":"hello"}`) {
		t.Errorf("body wrong: %q", raw)
	}
}

func TestServeNotFound(t *testing.T) {
	s := New(0, time.Second, zap.NewNop())
	s.Handle("/known", func(*Request) (Response, error) {
		return Response{Status: 200}, nil
	})
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	raw := request(t, s.Addr(), "GET /unknown HTTP/1.1\r\n\r\n")
	if !strings.HasPrefix(raw, "HTTP/1.1 404 Not Found\r\n") {
		t.Errorf("status line wrong: %q", firstLine(raw))
	}
	if !strings.Contains(raw, `{"error":"Not found"}`) {
		t.Errorf("body wrong: %q", raw)
	}
}

func TestServeMalformedRequestDroppedSilently(t *testing.T) {
	s := New(0, time.Second, zap.NewNop())
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	conn, err := net.Dial("tcp", s.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("NONSENSE\r\n\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, _ := io.ReadAll(conn)
	if len(data) != 0 {
		t.Errorf("malformed request should get no response, got %q", data)
	}
}

func request(t *testing.T, addr, raw string) string {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte(raw)); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(data)
}

func firstLine(s string) string {
	if i := strings.Index(s, "\r\n"); i >= 0 {
		return s[:i]
	}
	return s
}
