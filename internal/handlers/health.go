package handlers

import (
	"net/http"
	"time"

	"clipper/internal/database"
	"clipper/internal/logging"
	"clipper/internal/startup"
)

var serverStartTime = time.Now()

// HealthResponse is the body of /healthz.
type HealthResponse struct {
	Status     string          `json:"status"`
	Uptime     string          `json:"uptime"`
	Version    string          `json:"version"`
	Database   string          `json:"database"`
	QueueDepth int             `json:"queueDepth"`
	Stats      *database.Stats `json:"stats,omitempty"`
}

// HealthCheck reports database and queue health along with record counts.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:     "healthy",
		Uptime:     time.Since(serverStartTime).Round(time.Second).String(),
		Version:    startup.GetBuildInfo().Version,
		Database:   "ok",
		QueueDepth: -1,
	}
	status := http.StatusOK

	if err := h.store.Ping(r.Context()); err != nil {
		logging.Warn("Health check: database ping failed: %v", err)
		resp.Status = "unhealthy"
		resp.Database = err.Error()
		status = http.StatusServiceUnavailable
	} else if stats, err := h.store.Stats(r.Context()); err == nil {
		resp.Stats = stats
	}

	if h.queue != nil {
		if n, err := h.queue.Len(r.Context()); err == nil {
			resp.QueueDepth = n
		} else {
			logging.Warn("Health check: queue depth unavailable: %v", err)
		}
	}

	w.Header().Set("Cache-Control", "no-cache")
	writeJSONStatus(w, status, resp)
}

// LivenessCheck only confirms the process is serving.
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write([]byte("ok"))
	}
}

// ReadinessCheck reports ready once the database answers.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeJSONStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "reason": err.Error()})
		return
	}
	writeJSONStatus(w, http.StatusOK, map[string]string{"status": "ready"})
}
