// Copyright 2025-2026 Velby. All rights reserved.
// Use of this source code is governed by the Business Source License
// included in the LICENSE file of this repository.

package api

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/Velby/burp-mcp-api/pkg/httpserver"
)

var startTime = time.Now()

// handleStats reports bridge self-monitoring numbers. Process-level figures
// come from gopsutil; any probe failure just leaves the field at zero so
// the endpoint stays usable on platforms where a probe is unsupported.
func (s *Server) handleStats(req *httpserver.Request) (httpserver.Response, error) {
	if req.Method != "GET" {
		return errResponse(405, "Method not allowed"), nil
	}

	var (
		rssBytes   uint64
		cpuPercent float64
		openFDs    int32
	)
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mem, err := proc.MemoryInfo(); err == nil {
			rssBytes = mem.RSS
		}
		if cpu, err := proc.CPUPercent(); err == nil {
			cpuPercent = cpu
		}
		if fds, err := proc.NumFDs(); err == nil {
			openFDs = fds
		}
	}

	return jsonResponse(200, map[string]any{
		"status":           "ok",
		"count":            s.store.Size(),
		"uptime_seconds":   int64(time.Since(startTime).Seconds()),
		"goroutines":       runtime.NumGoroutine(),
		"memory_rss_bytes": rssBytes,
		"cpu_percent":      cpuPercent,
		"open_fds":         openFDs,
	})
}
