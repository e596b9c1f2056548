package ppool

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the Prometheus collectors shared by every component.
// It's constructed once and passed by reference, the way Config is: no
// package-level global registry is mutated at import time. A process
// embedding this library constructs one Metrics and passes the same
// value to each constructor that takes one (NewRegistry, NewValidator,
// NewManager, NewOrchestrator); the Orchestrator does not pass it on to
// the components it is given.
type Metrics struct {
	FetchAttempts   *prometheus.CounterVec
	FetchSuccesses  *prometheus.CounterVec
	FetchErrors     *prometheus.CounterVec
	FetchEmpty      *prometheus.CounterVec
	FetchCandidates *prometheus.CounterVec

	ValidationTotal    prometheus.Counter
	ValidationWorking  prometheus.Counter
	ValidationFailed   *prometheus.CounterVec
	ValidationDuration prometheus.Histogram

	PoolSize      *prometheus.GaugeVec
	PoolEvictions *prometheus.CounterVec
	LeaseActive   prometheus.Gauge

	CycleDuration *prometheus.HistogramVec
	CycleErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers a Metrics bundle against reg. Passing
// a fresh prometheus.NewRegistry() is recommended for tests so repeated
// construction doesn't collide with the global DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proxypool", Subsystem: "fetcher", Name: "attempts_total",
			Help: "Fetch attempts per source.",
		}, []string{"source"}),
		FetchSuccesses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proxypool", Subsystem: "fetcher", Name: "successes_total",
			Help: "Fetch attempts per source that returned at least one candidate.",
		}, []string{"source"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proxypool", Subsystem: "fetcher", Name: "errors_total",
			Help: "Fetch attempts per source that errored.",
		}, []string{"source"}),
		FetchEmpty: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proxypool", Subsystem: "fetcher", Name: "empty_total",
			Help: "Fetch attempts per source that returned zero candidates without error.",
		}, []string{"source"}),
		FetchCandidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proxypool", Subsystem: "fetcher", Name: "candidates_total",
			Help: "Candidates returned per source, before dedup.",
		}, []string{"source"}),

		ValidationTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "proxypool", Subsystem: "validator", Name: "candidates_total",
			Help: "Candidates submitted for validation.",
		}),
		ValidationWorking: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "proxypool", Subsystem: "validator", Name: "working_total",
			Help: "Candidates that validated as working.",
		}),
		ValidationFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proxypool", Subsystem: "validator", Name: "failed_total",
			Help: "Candidates that failed validation, by error kind.",
		}, []string{"kind"}),
		ValidationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "proxypool", Subsystem: "validator", Name: "duration_seconds",
			Help:    "Time to validate a single candidate.",
			Buckets: prometheus.DefBuckets,
		}),

		PoolSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "proxypool", Subsystem: "pool", Name: "size",
			Help: "Number of proxies currently held per tier.",
		}, []string{"tier"}),
		PoolEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proxypool", Subsystem: "pool", Name: "evictions_total",
			Help: "Capacity-overflow evictions per tier.",
		}, []string{"tier"}),
		LeaseActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "proxypool", Subsystem: "pool", Name: "leases_active",
			Help: "Number of unexpired leases currently held.",
		}),

		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "proxypool", Subsystem: "orchestrator", Name: "cycle_duration_seconds",
			Help:    "Duration of each orchestrator cycle.",
			Buckets: prometheus.DefBuckets,
		}, []string{"cycle"}),
		CycleErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proxypool", Subsystem: "orchestrator", Name: "cycle_errors_total",
			Help: "Errors encountered per orchestrator cycle.",
		}, []string{"cycle"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.FetchAttempts, m.FetchSuccesses, m.FetchErrors, m.FetchEmpty, m.FetchCandidates,
			m.ValidationTotal, m.ValidationWorking, m.ValidationFailed, m.ValidationDuration,
			m.PoolSize, m.PoolEvictions, m.LeaseActive,
			m.CycleDuration, m.CycleErrors,
		)
	}
	return m
}
