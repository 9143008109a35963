package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Worker-side collectors. Advisory telemetry only - nothing reads these to
// make decisions.
var (
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outreach_jobs_processed_total",
		Help: "Jobs processed by the worker, by job type and outcome.",
	}, []string{"type", "outcome"})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outreach_job_duration_seconds",
		Help:    "Wall-clock duration of job processing.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{"type"})

	JobsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "outreach_jobs_in_flight",
		Help: "Jobs currently being processed.",
	})

	SessionAcquires = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outreach_browser_session_acquires_total",
		Help: "Browser session acquisitions, by outcome.",
	}, []string{"outcome"})

	HeartbeatMemoryBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "outreach_heartbeat_memory_bytes",
		Help: "Heap in use as sampled by the job heartbeat.",
	})

	QueuePingSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "outreach_queue_ping_seconds",
		Help: "Latency of the most recent queue connectivity probe.",
	})
)

// Serve exposes /metrics on addr in a background goroutine and returns the
// server so the caller can shut it down.
func Serve(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Metrics listener started", slog.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics listener failed", slog.Any("error", err))
		}
	}()

	return srv
}
