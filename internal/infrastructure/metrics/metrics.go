package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for optimizer runs and upstream APIs.
type Metrics struct {
	Registry        *prometheus.Registry
	ProductsTotal   *prometheus.CounterVec
	RunsTotal       *prometheus.CounterVec
	RequestsTotal   *prometheus.CounterVec
	RetriesTotal    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	products := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shoprewrite_products_total",
			Help: "Products processed by optimizer runs, by result.",
		},
		[]string{"result"},
	)
	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shoprewrite_runs_total",
			Help: "Optimizer runs by terminal state.",
		},
		[]string{"state"},
	)
	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shoprewrite_external_requests_total",
			Help: "Requests issued to upstream APIs, by service and outcome.",
		},
		[]string{"service", "outcome"},
	)
	retries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shoprewrite_retries_total",
			Help: "Retry attempts scheduled against upstream APIs.",
		},
		[]string{"service"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shoprewrite_external_request_duration_seconds",
			Help:    "Latency of upstream API requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	registry.MustRegister(products, runs, requests, retries, duration)

	return &Metrics{
		Registry:        registry,
		ProductsTotal:   products,
		RunsTotal:       runs,
		RequestsTotal:   requests,
		RetriesTotal:    retries,
		RequestDuration: duration,
	}
}

// IncProduct increments the products counter for a result label.
func (m *Metrics) IncProduct(result string) {
	if m == nil {
		return
	}
	m.ProductsTotal.WithLabelValues(result).Inc()
}

// IncRun increments the runs counter for a terminal state.
func (m *Metrics) IncRun(state string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(state).Inc()
}

// ObserveRequest records one upstream request and its latency.
func (m *Metrics) ObserveRequest(service, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(service, outcome).Inc()
	m.RequestDuration.WithLabelValues(service).Observe(d.Seconds())
}

// IncRetry increments the retries counter for a service.
func (m *Metrics) IncRetry(service string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(service).Inc()
}
