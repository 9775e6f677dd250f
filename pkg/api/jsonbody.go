// Copyright 2025-2026 Velby. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package api

import (
	"regexp"
	"strings"
)

// BodyParser extracts flat key→value pairs from an inbound request body.
// The default implementation is deliberately lenient; swap in a strict one
// here if callers ever stop depending on the tolerance.
type BodyParser interface {
	Parse(body []byte) map[string]string
}

// LenientJSONParser recognises string, number and boolean key-value pairs
// by pattern matching instead of full JSON parsing. Malformed or partial
// JSON yields whatever pairs can still be recognised. The first occurrence
// of a key wins; strings are matched before numbers, numbers before
// booleans. All values come back as strings.
type LenientJSONParser struct{}

var (
	strPairRe  = regexp.MustCompile(`"([^"]+)"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	numPairRe  = regexp.MustCompile(`"([^"]+)"\s*:\s*(-?\d+(?:\.\d+)?)`)
	boolPairRe = regexp.MustCompile(`"([^"]+)"\s*:\s*(true|false)`)
)

func (LenientJSONParser) Parse(body []byte) map[string]string {
	result := make(map[string]string)
	if len(body) == 0 {
		return result
	}
	s := string(body)
	for _, m := range strPairRe.FindAllStringSubmatch(s, -1) {
		if _, dup := result[m[1]]; !dup {
			result[m[1]] = unescapeJSONString(m[2])
		}
	}
	for _, m := range numPairRe.FindAllStringSubmatch(s, -1) {
		if _, dup := result[m[1]]; !dup {
			result[m[1]] = m[2]
		}
	}
	for _, m := range boolPairRe.FindAllStringSubmatch(s, -1) {
		if _, dup := result[m[1]]; !dup {
			result[m[1]] = m[2]
		}
	}
	return result
}

func unescapeJSONString(s string) string {
	r := strings.NewReplacer(
		`\"`, `"`, `\\`, `\`, `\n`, "\n", `\r`, "\r", `\t`, "\t",
	)
	return r.Replace(s)
}
