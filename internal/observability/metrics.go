package observability

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mapphone"

// Metrics holds the Prometheus collectors for scrape runs and jobs. All
// methods are safe on a nil *Metrics, which records nothing.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal        *prometheus.CounterVec
	runDuration      prometheus.Histogram
	recordsCollected prometheus.Counter
	linksHarvested   prometheus.Counter
	pagesVisited     prometheus.Counter
	stepRetries      *prometheus.CounterVec
	fieldMisses      *prometheus.CounterVec
	storageErrors    *prometheus.CounterVec
	jobsQueued       prometheus.Gauge
	jobsActive       prometheus.Gauge

	logger *slog.Logger
}

// NewMetrics creates collectors on a private registry.
func NewMetrics(logger *slog.Logger) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		runsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Scrape runs by final outcome",
		}, []string{"outcome"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of scrape runs",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 900},
		}),
		recordsCollected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_collected_total",
			Help:      "Unique business records added to result sets",
		}),
		linksHarvested: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "links_harvested_total",
			Help:      "Detail links harvested from result feeds",
		}),
		pagesVisited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detail_pages_visited_total",
			Help:      "Detail page navigations",
		}),
		stepRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_retries_total",
			Help:      "Retried browser steps",
		}, []string{"step"}),
		fieldMisses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "field_misses_total",
			Help:      "Fields no selector strategy could extract",
		}, []string{"field"}),
		storageErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Failed persistence attempts by backend",
		}, []string{"backend"}),
		jobsQueued: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_queued",
			Help:      "Jobs waiting for a worker",
		}),
		jobsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_active",
			Help:      "Jobs currently running",
		}),
		logger: logger.With("component", "metrics"),
	}
}

// RecordRun counts a finished run and its duration.
func (m *Metrics) RecordRun(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(d.Seconds())
}

// AddRecords counts newly accepted records.
func (m *Metrics) AddRecords(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.recordsCollected.Add(float64(n))
}

// AddLinks counts harvested detail links.
func (m *Metrics) AddLinks(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.linksHarvested.Add(float64(n))
}

// IncPagesVisited counts one detail page navigation.
func (m *Metrics) IncPagesVisited() {
	if m == nil {
		return
	}
	m.pagesVisited.Inc()
}

// RecordRetry counts one retry of a named step.
func (m *Metrics) RecordRetry(step string) {
	if m == nil {
		return
	}
	m.stepRetries.WithLabelValues(step).Inc()
}

// RecordFieldMiss counts a field that stayed empty.
func (m *Metrics) RecordFieldMiss(field string) {
	if m == nil {
		return
	}
	m.fieldMisses.WithLabelValues(field).Inc()
}

// RecordStorageError counts a failed persistence attempt.
func (m *Metrics) RecordStorageError(backend string) {
	if m == nil {
		return
	}
	m.storageErrors.WithLabelValues(backend).Inc()
}

// SetJobsQueued sets the number of waiting jobs.
func (m *Metrics) SetJobsQueued(n int) {
	if m == nil {
		return
	}
	m.jobsQueued.Set(float64(n))
}

// IncJobsActive marks a job as started.
func (m *Metrics) IncJobsActive() {
	if m == nil {
		return
	}
	m.jobsActive.Inc()
}

// DecJobsActive marks a job as finished.
func (m *Metrics) DecJobsActive() {
	if m == nil {
		return
	}
	m.jobsActive.Dec()
}

// Registry exposes the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts a standalone metrics HTTP server.
func (m *Metrics) StartServer(port int, path string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.logger.Info("metrics server starting", "addr", srv.Addr, "path", path)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("metrics server error", "error", err)
		}
	}()

	return srv
}
