// Package metrics exposes Prometheus metrics for tool invocations, upstream
// Slack requests and audit delivery.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "slackmcp"

// Metrics owns a private registry so several instances (tests, one-shot CLI
// calls) never collide.
type Metrics struct {
	registry  *prometheus.Registry
	startTime time.Time

	toolCalls     *prometheus.CounterVec
	toolLatency   *prometheus.HistogramVec
	requests      *prometheus.CounterVec
	reqLatency    *prometheus.HistogramVec
	retries       *prometheus.CounterVec
	auditOutcomes *prometheus.CounterVec
	outboxDepth   prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		toolLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_latency_seconds",
			Help:      "Tool invocation latency in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"tool"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slack_requests_total",
			Help:      "Slack Web API calls by method and outcome.",
		}, []string{"method", "outcome"}),
		reqLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "slack_request_seconds",
			Help:      "Slack Web API call latency in seconds, retries included.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"method"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slack_retries_total",
			Help:      "Slack Web API retries by method and reason.",
		}, []string{"method", "reason"}),
		auditOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_records_total",
			Help:      "Audit record deliveries by outcome.",
		}, []string{"outcome"}),
		outboxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audit_outbox_depth",
			Help:      "Audit records waiting for redelivery.",
		}),
	}
	uptime := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Time since start in seconds.",
	}, func() float64 { return time.Since(m.startTime).Seconds() })

	m.registry.MustRegister(
		m.toolCalls, m.toolLatency,
		m.requests, m.reqLatency, m.retries,
		m.auditOutcomes, m.outboxDepth,
		uptime,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler renders the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveTool records one finished tool invocation.
func (m *Metrics) ObserveTool(tool, outcome string, d time.Duration) {
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
	m.toolLatency.WithLabelValues(tool).Observe(d.Seconds())
}

func (m *Metrics) ObserveRequest(method, outcome string, d time.Duration) {
	m.requests.WithLabelValues(method, outcome).Inc()
	m.reqLatency.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) ObserveRetry(method, reason string) {
	m.retries.WithLabelValues(method, reason).Inc()
}

func (m *Metrics) ObserveAudit(outcome string) {
	m.auditOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveOutbox(depth int) {
	m.outboxDepth.Set(float64(depth))
}
