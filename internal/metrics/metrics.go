package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the dispatch core.
type Metrics struct {
	registry *prometheus.Registry

	// Parser metrics
	ParsesTotal       *prometheus.CounterVec
	ParseErrorsTotal  prometheus.Counter
	InvocationsParsed *prometheus.CounterVec

	// Dispatch metrics
	DispatchesTotal  *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	DispatchErrors   *prometheus.CounterVec
	RateLimitEntries prometheus.GaugeFunc
}

// NewMetrics creates and registers all metrics. rateLimitLen feeds the
// rate-limit table size gauge; pass nil to skip it.
func NewMetrics(rateLimitLen func() float64) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		ParsesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parses_total",
				Help: "Total number of parse calls by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		ParseErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "parse_errors_total",
				Help: "Total number of malformed tool call errors",
			},
		),
		InvocationsParsed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invocations_parsed_total",
				Help: "Total number of invocations extracted by parser",
			},
			[]string{"parser"},
		),

		DispatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatches_total",
				Help: "Total number of policy-applied tool dispatches",
			},
			[]string{"tool", "status"},
		),
		DispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dispatch_duration_seconds",
				Help:    "Duration of the full policy pipeline in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		DispatchErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_errors_total",
				Help: "Total number of failed dispatches by error code",
			},
			[]string{"tool", "code"},
		),
	}

	registry.MustRegister(m.ParsesTotal)
	registry.MustRegister(m.ParseErrorsTotal)
	registry.MustRegister(m.InvocationsParsed)
	registry.MustRegister(m.DispatchesTotal)
	registry.MustRegister(m.DispatchDuration)
	registry.MustRegister(m.DispatchErrors)

	if rateLimitLen != nil {
		m.RateLimitEntries = prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "rate_limit_entries",
				Help: "Number of tools tracked by the rate limit table",
			},
			rateLimitLen,
		)
		registry.MustRegister(m.RateLimitEntries)
	}

	return m
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
