package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics tracks queued runs from delivery to completion. Run and LLM
// call counters come from the embedded Reformulation.
type WorkerMetrics struct {
	*Reformulation

	registry *prometheus.Registry

	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	runInFlight prometheus.Gauge
	queueLag    prometheus.Observer
	rejected    *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	constLabels := prometheus.Labels{"service": service}

	m := &WorkerMetrics{
		Reformulation: NewReformulation(service, registry),
		registry:      registry,
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "qr",
			Subsystem:   "worker",
			Name:        "runs_total",
			Help:        "Queued runs handled, by method and outcome.",
			ConstLabels: constLabels,
		}, []string{"method", "status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "qr",
			Subsystem:   "worker",
			Name:        "run_duration_seconds",
			Help:        "Wall time of queued runs, by method.",
			Buckets:     []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
			ConstLabels: constLabels,
		}, []string{"method"}),
		runInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "qr",
			Subsystem:   "worker",
			Name:        "runs_in_flight",
			Help:        "Runs currently executing.",
			ConstLabels: constLabels,
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "qr",
			Subsystem:   "worker",
			Name:        "rejected_messages_total",
			Help:        "Queue messages dropped before execution, by reason.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
	}
	lag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   "qr",
		Subsystem:   "worker",
		Name:        "queue_lag_seconds",
		Help:        "Delay between run enqueue and execution start.",
		Buckets:     []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
		ConstLabels: constLabels,
	})
	m.queueLag = lag

	registry.MustRegister(m.runsTotal, m.runDuration, m.runInFlight, lag, m.rejected)
	return m
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartRun() {
	m.runInFlight.Inc()
}

func (m *WorkerMetrics) FinishRun(method string, duration time.Duration, err error) {
	m.runInFlight.Dec()
	if method == "" {
		method = "unknown"
	}
	m.runsTotal.WithLabelValues(method, runStatus(err)).Inc()
	m.runDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.Observe(lag.Seconds())
}

// ObserveRejected counts a queue message that never reached a run.
func (m *WorkerMetrics) ObserveRejected(reason string) {
	m.rejected.WithLabelValues(reason).Inc()
}

func runStatus(err error) string {
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "failed"
	}
}
