// Package healthprobe serves liveness and readiness endpoints.
package healthprobe

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// Probe tracks process readiness for the HTTP health endpoints.
type Probe struct {
	startTime time.Time
	ready     atomic.Bool
}

// New creates a probe. The process starts not ready.
func New() *Probe {
	return &Probe{startTime: time.Now()}
}

// SetReady marks the application as ready to serve traffic.
func (p *Probe) SetReady(ready bool) {
	p.ready.Store(ready)
}

type probeResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Message string `json:"message,omitempty"`
}

// Health returns the liveness handler. It answers 200 whenever the process
// is up, regardless of readiness.
func (p *Probe) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeProbe(w, http.StatusOK, probeResponse{
			Status: "healthy",
			Uptime: time.Since(p.startTime).String(),
		})
	}
}

// Ready returns the readiness handler. 503 until SetReady(true).
func (p *Probe) Ready() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !p.ready.Load() {
			writeProbe(w, http.StatusServiceUnavailable, probeResponse{
				Status:  "not_ready",
				Message: "ledger is starting",
			})
			return
		}

		writeProbe(w, http.StatusOK, probeResponse{
			Status: "ready",
			Uptime: time.Since(p.startTime).String(),
		})
	}
}

func writeProbe(w http.ResponseWriter, code int, resp probeResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
