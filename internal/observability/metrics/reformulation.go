package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Reformulation holds the run and LLM call metrics shared by the API and the
// worker processes.
type Reformulation struct {
	service string

	reformulationsTotal *prometheus.CounterVec
	fallbacksTotal      *prometheus.CounterVec
	duration            *prometheus.HistogramVec
	queriesTotal        *prometheus.CounterVec
	llmCallsTotal       *prometheus.CounterVec
}

func NewReformulation(service string, registerer prometheus.Registerer) *Reformulation {
	reformulationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qr",
			Name:      "reformulations_total",
			Help:      "Total reformulation runs by method and status.",
		},
		[]string{"service", "method", "status"},
	)
	fallbacksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qr",
			Name:      "reformulation_fallbacks_total",
			Help:      "Queries that fell back to the original query text.",
		},
		[]string{"service", "method"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "qr",
			Name:      "reformulation_duration_seconds",
			Help:      "Reformulation run duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 900},
		},
		[]string{"service", "method"},
	)
	queriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qr",
			Name:      "reformulated_queries_total",
			Help:      "Total queries reformulated by method.",
		},
		[]string{"service", "method"},
	)
	llmCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qr",
			Name:      "llm_calls_total",
			Help:      "LLM backend calls by outcome.",
		},
		[]string{"service", "backend", "status"},
	)

	registerer.MustRegister(reformulationsTotal, fallbacksTotal, duration, queriesTotal, llmCallsTotal)

	return &Reformulation{
		service:             service,
		reformulationsTotal: reformulationsTotal,
		fallbacksTotal:      fallbacksTotal,
		duration:            duration,
		queriesTotal:        queriesTotal,
		llmCallsTotal:       llmCallsTotal,
	}
}

func (m *Reformulation) ObserveRun(method, status string, queries, fallbacks int, elapsed time.Duration) {
	if method == "" {
		method = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	m.reformulationsTotal.WithLabelValues(m.service, method, status).Inc()
	m.duration.WithLabelValues(m.service, method).Observe(elapsed.Seconds())
	if queries > 0 {
		m.queriesTotal.WithLabelValues(m.service, method).Add(float64(queries))
	}
	if fallbacks > 0 {
		m.fallbacksTotal.WithLabelValues(m.service, method).Add(float64(fallbacks))
	}
}

func (m *Reformulation) ObserveLLMCall(backend, status string) {
	if backend == "" {
		backend = "unknown"
	}
	m.llmCallsTotal.WithLabelValues(m.service, backend, status).Inc()
}
