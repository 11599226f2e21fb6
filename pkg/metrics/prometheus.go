package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the global container of engine progress metrics.
type Metrics struct {
	ReachesCompletedTotal      prometheus.Counter
	ReachesSkippedTotal        *prometheus.CounterVec
	KernelNonConvergenceTotal  prometheus.Counter
	SchedulerReadyQueueDepth   prometheus.Gauge
	WriterBlocksWrittenTotal   prometheus.Counter
	RunDuration                prometheus.Histogram

	MemoryUsage *prometheus.GaugeVec
	Goroutines  prometheus.Gauge

	RunInfo *prometheus.GaugeVec

	WorkersActive prometheus.Gauge
	tracker       *WorkerTracker
}

var defaultMetrics *Metrics

// InitMetrics registers and returns the engine's Prometheus metrics.
func InitMetrics(namespace, subsystem string) *Metrics {
	m := &Metrics{
		ReachesCompletedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "reaches_completed_total",
				Help:      "Total number of reaches successfully routed",
			},
		),

		ReachesSkippedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "reaches_skipped_total",
				Help:      "Total number of reaches skipped, by reason",
			},
			[]string{"reason"},
		),

		KernelNonConvergenceTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "kernel_nonconvergence_total",
				Help:      "Total number of routed reaches with at least one timestep whose kernel solve did not converge",
			},
		),

		SchedulerReadyQueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "scheduler_ready_queue_depth",
				Help:      "Current number of reaches waiting in the scheduler's ready queue",
			},
		),

		WriterBlocksWrittenTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "writer_blocks_written_total",
				Help:      "Total number of result blocks written to the archive",
			},
		),

		RunDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "run_duration_seconds",
				Help:      "Wall-clock duration of a complete routing run",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
			},
		),

		MemoryUsage: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "memory_usage_bytes",
				Help:      "Current memory usage",
			},
			[]string{"type"},
		),

		Goroutines: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "goroutines",
				Help:      "Current number of goroutines",
			},
		),

		RunInfo: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "run_info",
				Help:      "Engine run information",
			},
			[]string{"version", "environment"},
		),

		WorkersActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "workers_active",
				Help:      "Current number of worker-pool goroutines routing a reach",
			},
		),
	}
	m.tracker = NewWorkerTracker(m.WorkersActive)

	defaultMetrics = m
	return m
}

// WorkerTracker returns the tracker backing the workers_active gauge, for
// the worker pool to mark a worker busy/idle around each reach it routes.
func (m *Metrics) WorkerTracker() *WorkerTracker {
	return m.tracker
}

// Get returns the global metrics, initializing with defaults if needed.
func Get() *Metrics {
	if defaultMetrics == nil {
		return InitMetrics("router", "")
	}
	return defaultMetrics
}

// RecordReachCompleted increments the completed-reach counter.
func (m *Metrics) RecordReachCompleted() {
	m.ReachesCompletedTotal.Inc()
}

// RecordReachSkipped increments the skipped-reach counter for the given reason.
func (m *Metrics) RecordReachSkipped(reason string) {
	m.ReachesSkippedTotal.WithLabelValues(reason).Inc()
}

// RecordKernelNonConvergence increments the kernel non-convergence counter.
func (m *Metrics) RecordKernelNonConvergence() {
	m.KernelNonConvergenceTotal.Inc()
}

// SetSchedulerReadyQueueDepth sets the current ready-queue depth gauge.
func (m *Metrics) SetSchedulerReadyQueueDepth(depth int) {
	m.SchedulerReadyQueueDepth.Set(float64(depth))
}

// RecordWriterBlock increments the writer's written-block counter.
func (m *Metrics) RecordWriterBlock() {
	m.WriterBlocksWrittenTotal.Inc()
}

// RecordRunDuration observes the total wall-clock duration of a run.
func (m *Metrics) RecordRunDuration(d time.Duration) {
	m.RunDuration.Observe(d.Seconds())
}

// SetRunInfo sets the run info gauge to 1 for the given version/environment.
func (m *Metrics) SetRunInfo(version, environment string) {
	m.RunInfo.WithLabelValues(version, environment).Set(1)
}

// Handler returns the HTTP handler serving /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartMetricsServer starts an HTTP server exposing /metrics and /health.
func StartMetricsServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK")) //nolint:errcheck // health endpoint, write error is not actionable
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
