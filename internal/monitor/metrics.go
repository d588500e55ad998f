package monitor

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus series exported by an aggregator process.
var (
	StreamsSeen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lsltools_monitor_streams_seen",
			Help: "Number of distinct streams with a live heartbeat",
		},
		[]string{"hostname"},
	)

	HeartbeatAgeSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lsltools_monitor_heartbeat_age_seconds",
			Help: "Seconds since the last heartbeat was observed for a stream",
		},
		[]string{"name", "hostname"},
	)

	HeartbeatsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lsltools_monitor_heartbeats_total",
			Help: "Total heartbeats received per stream",
		},
		[]string{"name", "hostname"},
	)
)

// MetricsServer exposes the registered collectors over HTTP.
type MetricsServer struct {
	addr   string
	server *http.Server
}

// NewMetricsServer builds (but does not start) a /metrics HTTP server.
func NewMetricsServer(addr string) *MetricsServer {
	return &MetricsServer{addr: addr}
}

// Start begins serving /metrics in the background.
func (s *MetricsServer) Start() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	log.Printf("monitor: metrics server listening on %s", s.addr)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("monitor: metrics server error: %v", err)
		}
	}()
}

// Stop gracefully shuts the metrics server down.
func (s *MetricsServer) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("monitor: metrics server shutdown: %w", err)
	}
	return nil
}

// RecordHeartbeat updates the Prometheus series for one received message.
func RecordHeartbeat(msg Message, now float64) {
	HeartbeatsTotal.WithLabelValues(msg.Name, msg.Hostname).Inc()
	HeartbeatAgeSeconds.WithLabelValues(msg.Name, msg.Hostname).Set(now - msg.At)
}

// RecordStreamsSeen updates the per-hostname live-stream gauge from an
// aggregator snapshot.
func RecordStreamsSeen(snapshot []Message) {
	counts := make(map[string]float64)
	for _, msg := range snapshot {
		counts[msg.Hostname]++
	}
	for hostname, n := range counts {
		StreamsSeen.WithLabelValues(hostname).Set(n)
	}
}
