package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Business metrics
	backtestsTotal   *prometheus.CounterVec
	backtestDuration prometheus.Histogram
	tradesTotal      *prometheus.CounterVec
	stopOutsTotal    *prometheus.CounterVec
	fetchTotal       *prometheus.CounterVec
	sinkErrorsTotal  *prometheus.CounterVec
	jobsActive       *prometheus.GaugeVec
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	// Business metrics
	r.backtestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalbench_backtests_total",
			Help: "Total number of (symbol, strategy) backtests",
		},
		[]string{"strategy", "status"},
	)
	r.backtestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "signalbench_backtest_duration_seconds",
			Help:    "Per-symbol backtest duration in seconds, fetch included",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
	)
	r.tradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalbench_trades_total",
			Help: "Total number of closed round-trip trades",
		},
		[]string{"strategy", "side"},
	)
	r.stopOutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalbench_stop_outs_total",
			Help: "Total number of stop-loss exits",
		},
		[]string{"strategy"},
	)
	r.fetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalbench_fetch_total",
			Help: "Total number of history fetches by outcome",
		},
		[]string{"source", "status"},
	)
	r.sinkErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalbench_sink_errors_total",
			Help: "Total number of failed result writes",
		},
		[]string{"sink"},
	)
	r.jobsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "signalbench_jobs_active",
			Help: "Number of active jobs",
		},
		[]string{"type"},
	)

	reg.MustRegister(r.backtestsTotal)
	reg.MustRegister(r.backtestDuration)
	reg.MustRegister(r.tradesTotal)
	reg.MustRegister(r.stopOutsTotal)
	reg.MustRegister(r.fetchTotal)
	reg.MustRegister(r.sinkErrorsTotal)
	reg.MustRegister(r.jobsActive)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// RecordBacktest records the outcome of one (symbol, strategy) run.
func (r *Registry) RecordBacktest(strategy, status string) {
	r.backtestsTotal.WithLabelValues(strategy, status).Inc()
}

// ObserveBacktestDuration records the wall time of one symbol's runs.
func (r *Registry) ObserveBacktestDuration(seconds float64) {
	r.backtestDuration.Observe(seconds)
}

// RecordTrades adds closed trades for a strategy and side.
func (r *Registry) RecordTrades(strategy, side string, n int) {
	if n > 0 {
		r.tradesTotal.WithLabelValues(strategy, side).Add(float64(n))
	}
}

// RecordStopOuts adds stop-loss exits for a strategy.
func (r *Registry) RecordStopOuts(strategy string, n int) {
	if n > 0 {
		r.stopOutsTotal.WithLabelValues(strategy).Add(float64(n))
	}
}

// RecordFetch records a history fetch outcome.
func (r *Registry) RecordFetch(source, status string) {
	r.fetchTotal.WithLabelValues(source, status).Inc()
}

// RecordSinkError records a failed result write.
func (r *Registry) RecordSinkError(sink string) {
	r.sinkErrorsTotal.WithLabelValues(sink).Inc()
}

// SetJobsActive sets the number of active jobs of a type.
func (r *Registry) SetJobsActive(jobType string, count int) {
	r.jobsActive.WithLabelValues(jobType).Set(float64(count))
}

// WriteTextfile writes the current metrics in the node exporter textfile
// format.
func (r *Registry) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.Registry)
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
