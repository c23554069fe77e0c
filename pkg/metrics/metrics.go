package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tfbench"

// Metrics holds the collectors of one benchmark process
type Metrics struct {
	registry   *prometheus.Registry
	requests   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	throughput *prometheus.GaugeVec
	iterations prometheus.Counter
}

// NewMetrics creates and registers the benchmark collectors on a private registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predict_requests_total",
			Help:      "Requests sent to the model server, by status code and method.",
		}, []string{"code", "method"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "predict_request_duration_seconds",
			Help:      "Per request latency against the model server.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"code", "method"}),
		throughput: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "iteration_throughput_requests_per_second",
			Help:      "Throughput of the last finished iteration.",
		}, []string{"bench"}),
		iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "iterations_total",
			Help:      "Finished timed iterations.",
		}),
	}
	m.registry.MustRegister(m.requests, m.duration, m.throughput, m.iterations)
	m.registry.MustRegister(prometheus.NewGoCollector())
	return m
}

// InstrumentRoundTripper wraps next with request counting and latency observation
func (m *Metrics) InstrumentRoundTripper(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return promhttp.InstrumentRoundTripperCounter(m.requests,
		promhttp.InstrumentRoundTripperDuration(m.duration, next))
}

// ObserveIteration records a finished iteration of bench
func (m *Metrics) ObserveIteration(bench string, throughput float64) {
	m.throughput.WithLabelValues(bench).Set(throughput)
	m.iterations.Inc()
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
