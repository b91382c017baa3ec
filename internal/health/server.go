// Package health is the HTTP liveness/readiness/metrics server, grounded on
// the same three-endpoint shape the reference health server exposed, with
// /metrics now backed by a real Prometheus registry instead of a text stub.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LinkStatus is a snapshot of the USB link's state, polled by the
// readiness handler. Components that know this information (the
// supervisor, the link) implement Source.
type LinkStatus struct {
	Connected       bool      `json:"connected"`
	SafetyArmed     bool      `json:"safety_armed"`
	LastFrameAt     time.Time `json:"last_frame_at"`
	LastFrameAgeSec float64   `json:"last_frame_age_seconds"`
}

// Source supplies the current link status on demand.
type Source interface {
	Status() LinkStatus
}

// Server is the HTTP health/readiness/metrics server.
type Server struct {
	addr    string
	src     Source
	started time.Time
	http    *http.Server
}

// NewServer builds a Server bound to addr (e.g. ":8080"). gatherer is the
// registry to expose on /metrics; pass prometheus.DefaultGatherer to serve
// process-wide metrics.
func NewServer(addr string, src Source, gatherer prometheus.Gatherer) *Server {
	s := &Server{addr: addr, src: src, started: time.Now()}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.livenessHandler)
	mux.HandleFunc("/readiness", s.readinessHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.http = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start runs the server in the background. It does not block.
func (s *Server) Start() {
	slog.Info("starting health server", "addr", s.addr, "endpoints", []string{"/health", "/readiness", "/metrics"})
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("health server failed", "error", err)
		}
	}()
}

// Shutdown stops the server, waiting up to ctx's deadline for in-flight
// requests to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) livenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"status": "alive",
		"uptime": int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) readinessHandler(w http.ResponseWriter, _ *http.Request) {
	status := s.src.Status()

	w.Header().Set("Content-Type", "application/json")
	if !status.Connected {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(status)
}
