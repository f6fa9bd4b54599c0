// ABOUTME: Prometheus metrics for tool calls and access denials
// ABOUTME: Uses a private registry so servers and tests never collide

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tokengate"

// Metrics holds the collectors for one server. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ToolCallsTotal   *prometheus.CounterVec
	ToolCallDuration *prometheus.HistogramVec
	AccessDenials    *prometheus.CounterVec
}

// New creates a Metrics instance with its own registry. Go runtime and
// process collectors are registered alongside the tool metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ToolCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Total number of tool calls by outcome",
			},
			[]string{"tool_name", "outcome"},
		),

		// Buckets: 5ms to 30s; weather calls hit a remote API, gated calls an RPC node
		ToolCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_call_duration_seconds",
				Help:      "Duration of tool calls in seconds",
				Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"tool_name"},
		),

		AccessDenials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "access_denials_total",
				Help:      "Total number of gated tool calls that were denied",
			},
			[]string{"tool_name"},
		),
	}
}

// RecordToolCall records one finished call. outcome is "ok" or a failure kind.
func (m *Metrics) RecordToolCall(toolName, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(toolName, outcome).Inc()
	m.ToolCallDuration.WithLabelValues(toolName).Observe(duration.Seconds())
}

// RecordAccessDenied counts a denied gated call.
func (m *Metrics) RecordAccessDenied(toolName string) {
	if m == nil {
		return
	}
	m.AccessDenials.WithLabelValues(toolName).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
