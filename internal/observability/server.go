// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PropStream Contributors

// Package observability provides HTTP endpoints for metrics, health probes
// and the statsz snapshot, plus the Prometheus-backed metric sinks consumed
// by the bus and dispatch layers.
package observability

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// ReadinessChecker returns whether the service is ready to accept connections.
type ReadinessChecker func() bool

// StatsSource exposes the live connection counts reported by /statsz.
// *hub.Registry satisfies it.
type StatsSource interface {
	ConnectionCount() int
	IdentityCount() int
}

// statszResponse is the JSON body of the /statsz endpoint.
type statszResponse struct {
	ConnectedIdentityCount int     `json:"connectedIdentityCount"`
	ActiveConnectionCount  int     `json:"activeConnectionCount"`
	ProcessUptimeSeconds   float64 `json:"processUptime"`
	MemoryUsageBytes       uint64  `json:"memoryUsage"`
}

// Server provides HTTP endpoints for observability.
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	registry   *prometheus.Registry
	metrics    *Metrics
	stats      StatsSource
	isReady    ReadinessChecker
	startedAt  time.Time
	running    atomic.Bool
}

// NewServer creates a new observability server.
// addr is a "host:port" listen address (e.g. "127.0.0.1:9100", ":9100").
func NewServer(addr string, stats StatsSource, readinessChecker ReadinessChecker) *Server {
	// Own registry to avoid polluting the global one
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	metrics := NewMetrics(registry)

	if stats != nil {
		registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "propstream_active_connections",
				Help: "Number of open client connections",
			},
			func() float64 { return float64(stats.ConnectionCount()) },
		))
		registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "propstream_connected_identities",
				Help: "Number of identities with at least one open connection",
			},
			func() float64 { return float64(stats.IdentityCount()) },
		))
	}

	return &Server{
		addr:     addr,
		registry: registry,
		metrics:  metrics,
		stats:    stats,
		isReady:  readinessChecker,
	}
}

// Metrics returns the metric sinks for wiring into the bus and dispatcher.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Start begins serving observability endpoints. It returns an error channel
// that receives any error from the HTTP server after startup; the channel is
// closed on graceful stop.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("observability server already running")
	}
	s.startedAt = time.Now()

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/statsz", s.handleStatsz)

	// Kubernetes-style health probes
	mux.HandleFunc("/healthz/liveness", s.handleLiveness)
	mux.HandleFunc("/healthz/readiness", s.handleReadiness)

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		// Use local httpSrv to avoid race with subsequent Start() calls
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			slog.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the observability server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			// Restore running state so the server can be stopped again
			s.running.Store(true)
			return oops.With("operation", "shutdown_observability_server").Wrap(err)
		}
	}

	slog.Info("observability server stopped")
	return nil
}

// Addr returns the address the server is listening on, or "" if not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) buildStatsz() statszResponse {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := statszResponse{
		ProcessUptimeSeconds: time.Since(s.startedAt).Seconds(),
		MemoryUsageBytes:     mem.Alloc,
	}
	if s.stats != nil {
		resp.ConnectedIdentityCount = s.stats.IdentityCount()
		resp.ActiveConnectionCount = s.stats.ConnectionCount()
	}
	return resp
}

func (s *Server) handleStatsz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(s.buildStatsz()); err != nil {
		slog.Error("failed to encode statsz response", "error", err)
	}
}

// handleLiveness returns 200 if the process is running.
func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // health check write error is acceptable, client may disconnect
	w.Write([]byte("ok\n"))
}

// handleReadiness returns 200 if the service is ready to accept connections,
// or 503 if not ready.
func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if s.isReady == nil || s.isReady() {
		w.WriteHeader(http.StatusOK)
		//nolint:errcheck // health check write error is acceptable, client may disconnect
		w.Write([]byte("ok\n"))
		return
	}

	w.WriteHeader(http.StatusServiceUnavailable)
	//nolint:errcheck // health check write error is acceptable, client may disconnect
	w.Write([]byte("not ready\n"))
}
