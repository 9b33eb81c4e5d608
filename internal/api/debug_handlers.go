package api

import (
	"log"
	"net/http"

	"github.com/mapcore/server/internal/mapctl"
	"github.com/mapcore/server/internal/performance"
	"github.com/mapcore/server/internal/streaming"
)

// DebugHandlers expose health and profiling data
type DebugHandlers struct {
	resolver *mapctl.Resolver
	stream   *streaming.Manager
	hub      *TrackHub
	profiler *performance.Profiler
}

// NewDebugHandlers creates debug handlers. stream and hub may be nil.
func NewDebugHandlers(resolver *mapctl.Resolver, stream *streaming.Manager, hub *TrackHub, profiler *performance.Profiler) *DebugHandlers {
	return &DebugHandlers{
		resolver: resolver,
		stream:   stream,
		hub:      hub,
		profiler: profiler,
	}
}

// HealthResponse reports service status
type HealthResponse struct {
	Status        string `json:"status"`
	Service       string `json:"service"`
	ActiveMap     string `json:"active_map,omitempty"`
	Sessions      int    `json:"sessions"`
	InflightLoads int    `json:"inflight_loads"`
}

// Health handles GET /health
func (h *DebugHandlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Service: "mapcore-server",
	}
	if h.resolver.ActiveMap() != nil {
		resp.ActiveMap = h.resolver.MapName()
	}
	if h.hub != nil {
		resp.Sessions = h.hub.SessionCount()
	}
	if h.stream != nil {
		resp.InflightLoads = h.stream.Inflight()
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// Performance handles GET /api/debug/performance
func (h *DebugHandlers) Performance(w http.ResponseWriter, r *http.Request) {
	report, err := h.profiler.JSONReport()
	if err != nil {
		log.Printf("[API] Error rendering performance report: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to render report")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(report)
}

// ResetPerformance handles DELETE /api/debug/performance
func (h *DebugHandlers) ResetPerformance(w http.ResponseWriter, r *http.Request) {
	h.profiler.Reset()
	w.WriteHeader(http.StatusNoContent)
}
