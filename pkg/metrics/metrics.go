// Package metrics provides Prometheus observability for the sync daemon:
// cycle counts, record outcomes, flush latency, and buffer depth. Metrics
// are registered at package load and exposed over HTTP only when a listen
// address is configured.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	// CyclesTotal counts completed refresh cycles.
	// Labels: trigger (startup, half_day_boundary, stale, upstream_update),
	// status (success/failure)
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "training_sync_cycles_total",
			Help: "Total number of refresh cycles run",
		},
		[]string{"trigger", "status"},
	)

	// RecordsProcessed counts parent records by outcome.
	// Labels: status (update/delete/skipped)
	RecordsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "training_sync_records_processed_total",
			Help: "Total number of source records processed",
		},
		[]string{"status"},
	)

	// FlushDuration tracks sink flush latency in seconds
	FlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "training_sync_flush_duration_seconds",
			Help:    "Sink flush latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	// SourceFetchDuration tracks source retrieval latency in seconds
	SourceFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "training_sync_source_fetch_duration_seconds",
			Help:    "Source document fetch latency in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// BufferDepth tracks the number of entries awaiting flush
	BufferDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "training_sync_buffer_depth",
			Help: "Entries currently buffered for ingest",
		},
	)

	// LastRunTimestamp records when the last cycle completed, as a Unix time
	LastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "training_sync_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last completed refresh cycle",
		},
	)
)

// ObserveCycle records one completed cycle
func ObserveCycle(trigger string, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	CyclesTotal.WithLabelValues(trigger, status).Inc()
	LastRunTimestamp.SetToCurrentTime()
}

// Server exposes the Prometheus endpoint on a dedicated listener
type Server struct {
	srv *http.Server
	log *zap.Logger
}

// NewServer creates a metrics server listening on addr
func NewServer(addr string, log *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log.With(zap.String("component", "metrics")),
	}
}

// Start serves the endpoint in the background. Listen failures are logged,
// not fatal; metrics are an observability aid, never a reason to stop syncing.
func (s *Server) Start() {
	go func() {
		s.log.Info("metrics listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("metrics server failed", zap.Error(err))
		}
	}()
}

// Stop shuts the listener down, waiting up to the context deadline
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
