// Package observability exposes engine metrics in Prometheus format and hands
// out OpenTelemetry tracers.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/Inferara/web3-canvas-sub000/pkg/types"
)

const namespace = "web3canvas"

// Tracer returns a tracer from the global provider, a no-op unless the
// process installs one
func Tracer(name string) trace.Tracer {
	return otel.Tracer(namespace + "." + name)
}

// Metrics owns a private registry, so several sessions in one test binary do
// not collide
type Metrics struct {
	registry *prometheus.Registry

	evaluations   *prometheus.CounterVec
	evalDuration  *prometheus.HistogramVec
	waveNodes     prometheus.Histogram
	waveDuration  prometheus.Histogram
	inflight      prometheus.Gauge
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	wsConnections prometheus.Gauge
}

// NewMetrics registers every collector. Process and Go runtime collectors are
// included when runtime is true.
func NewMetrics(runtime bool) *Metrics {
	reg := prometheus.NewRegistry()
	if runtime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Node evaluations by kind and resulting status.",
		}, []string{"kind", "status"}),
		evalDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Evaluator run time by kind.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5, 30},
		}, []string{"kind"}),
		waveNodes: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "wave_evaluated_nodes",
			Help:      "Nodes evaluated per propagation wave.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		waveDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "wave_duration_seconds",
			Help:      "Time to settle a propagation wave.",
			Buckets:   prometheus.DefBuckets,
		}),
		inflight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "async_inflight",
			Help:      "Outstanding I/O evaluations.",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		wsConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections",
			Help:      "Open event stream connections.",
		}),
	}
}

func (m *Metrics) EvaluationObserved(kind types.NodeKind, status types.NodeStatus, d time.Duration) {
	m.evaluations.WithLabelValues(string(kind), string(status)).Inc()
	m.evalDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
}

func (m *Metrics) WaveObserved(evaluated int, d time.Duration) {
	m.waveNodes.Observe(float64(evaluated))
	m.waveDuration.Observe(d.Seconds())
}

func (m *Metrics) InFlight(delta int) {
	m.inflight.Add(float64(delta))
}

// RequestObserved records one API request
func (m *Metrics) RequestObserved(method, route string, code int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// StreamOpened adjusts the websocket gauge by delta
func (m *Metrics) StreamOpened(delta int) {
	m.wsConnections.Add(float64(delta))
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
