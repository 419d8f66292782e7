// Package metrics exports assistant pipeline metrics in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/dia/backend/internal/core/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type PrometheusExporter struct {
	registry *prometheus.Registry

	llmLatency *prometheus.HistogramVec
	llmCalls   *prometheus.CounterVec
	requests   *prometheus.CounterVec
	actions    *prometheus.CounterVec
}

var _ ports.AssistantMetrics = (*PrometheusExporter)(nil)

func NewPrometheusExporter(registry *prometheus.Registry) *PrometheusExporter {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	e := &PrometheusExporter{registry: registry}

	e.llmLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dia",
			Subsystem: "llm",
			Name:      "call_latency_seconds",
			Help:      "LLM call latency in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)
	e.llmCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dia",
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "Total number of LLM calls",
		},
		[]string{"stage", "status"},
	)
	e.requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dia",
			Subsystem: "assistant",
			Name:      "requests_total",
			Help:      "Total number of assistant requests",
		},
		[]string{"intent", "status"},
	)
	e.actions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dia",
			Subsystem: "assistant",
			Name:      "actions_total",
			Help:      "Total number of schedule edit actions",
		},
		[]string{"action", "result"},
	)

	registry.MustRegister(e.llmLatency, e.llmCalls, e.requests, e.actions)
	return e
}

func (e *PrometheusExporter) ObserveLLMCall(stage, status string, elapsed time.Duration) {
	e.llmLatency.WithLabelValues(stage).Observe(elapsed.Seconds())
	e.llmCalls.WithLabelValues(stage, status).Inc()
}

func (e *PrometheusExporter) IncRequest(intent, status string) {
	e.requests.WithLabelValues(intent, status).Inc()
}

func (e *PrometheusExporter) IncAction(action, result string) {
	e.actions.WithLabelValues(action, result).Inc()
}

func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
