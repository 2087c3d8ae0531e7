package httpapi

import (
	"net/http"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

type healthResponse struct {
	Status         string   `json:"status"`
	UptimeSeconds  int64    `json:"uptime_seconds"`
	ActiveProvider string   `json:"active_provider"`
	Goroutines     int      `json:"goroutines"`
	ProcessRSS     uint64   `json:"process_rss_bytes,omitempty"`
	HostMemoryUsed float64  `json:"host_memory_used_percent,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:         "ok",
		UptimeSeconds:  int64(h.metrics.Uptime().Seconds()),
		ActiveProvider: string(h.engine.Registry().Snapshot().ActiveProvider),
		Goroutines:     runtime.NumGoroutine(),
	}

	ctx := r.Context()
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		resp.HostMemoryUsed = vm.UsedPercent
	} else {
		resp.Warnings = append(resp.Warnings, "host memory unavailable")
	}
	if p, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if info, err := p.MemoryInfoWithContext(ctx); err == nil {
			resp.ProcessRSS = info.RSS
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
