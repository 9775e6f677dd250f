// Copyright 2025-2026 Velby. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package api

import (
	"reflect"
	"testing"
)

func TestLenientParserWellFormed(t *testing.T) {
	body := `{"history_id":"42","host":"api.example.com","port":8443,"https":true,"tab_name":"probe"}`
	got := LenientJSONParser{}.Parse([]byte(body))
	want := map[string]string{
		"history_id": "42",
		"host":       "api.example.com",
		"port":       "8443",
		"https":      "true",
		"tab_name":   "probe",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Parse() = %v, want %v", got, want)
	}
}

func TestLenientParserMalformed(t *testing.T) {
	// Truncated JSON still yields the pairs that are recognisable.
	body := `{"host":"a.com","port":80,`
	got := LenientJSONParser{}.Parse([]byte(body))
	if got["host"] != "a.com" || got["port"] != "80" {
		t.Errorf("Parse() = %v", got)
	}
}

func TestLenientParserFirstKeyWins(t *testing.T) {
	body := `{"host":"first.com","host":"second.com"}`
	got := LenientJSONParser{}.Parse([]byte(body))
	if got["host"] != "first.com" {
		t.Errorf("host = %q, want first occurrence", got["host"])
	}
}

func TestLenientParserEscapes(t *testing.T) {
	body := `{"msg":"a\"b\nc\\d"}`
	got := LenientJSONParser{}.Parse([]byte(body))
	if got["msg"] != "a\"b\nc\\d" {
		t.Errorf("msg = %q", got["msg"])
	}
}

func TestLenientParserNumbers(t *testing.T) {
	body := `{"neg":-12,"float":3.14}`
	got := LenientJSONParser{}.Parse([]byte(body))
	if got["neg"] != "-12" || got["float"] != "3.14" {
		t.Errorf("Parse() = %v", got)
	}
}

func TestLenientParserEmptyBody(t *testing.T) {
	if got := (LenientJSONParser{}).Parse(nil); len(got) != 0 {
		t.Errorf("nil body should parse to empty map, got %v", got)
	}
}
