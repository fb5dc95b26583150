package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/venthub/internal/device"
)

// HubSummary describes one registered hub.
type HubSummary struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	DeviceCount      int    `json:"device_count"`
	SchedulerRunning bool   `json:"scheduler_running"`
}

// SystemInfo is the /system response.
type SystemInfo struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	Hubs          int            `json:"hubs"`
	Devices       int            `json:"devices"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// handleSystem returns process and registry statistics across all hubs.
func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	info := SystemInfo{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(mem.Alloc) / 1024 / 1024,
			NumGC:         mem.NumGC,
		},
	}
	for _, h := range s.hubs.All() {
		info.Hubs++
		n, err := h.Registry().Count(r.Context())
		if err != nil {
			writeServiceError(w, err, "failed to count devices")
			return
		}
		info.Devices += n
	}
	writeJSON(w, http.StatusOK, info)
}

// handleListHubs lists every registered hub.
func (s *Server) handleListHubs(w http.ResponseWriter, r *http.Request) {
	hubs := s.hubs.All()
	out := make([]HubSummary, 0, len(hubs))
	for _, h := range hubs {
		n, err := h.Registry().Count(r.Context())
		if err != nil {
			writeServiceError(w, err, "failed to count devices")
			return
		}
		out = append(out, HubSummary{
			ID:               h.ID(),
			Name:             h.Name(),
			DeviceCount:      n,
			SchedulerRunning: h.Scheduler().Running(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"hubs": out, "count": len(out)})
}

// handleDiscover runs one discovery pass and returns the newly added devices.
func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	h, ok := s.hubFor(w, r)
	if !ok {
		return
	}
	added, err := h.Discover(r.Context())
	if err != nil {
		writeServiceError(w, err, "discovery failed")
		return
	}
	if added == nil {
		added = []device.Device{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"added": added, "count": len(added)})
}

// handlePoll refreshes every addressed device once.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	h, ok := s.hubFor(w, r)
	if !ok {
		return
	}
	n, err := h.PollAll(r.Context())
	if err != nil {
		writeServiceError(w, err, "poll failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"polled": n})
}
