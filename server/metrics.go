package server

import (
	"context"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsPath is where the server exposes Prometheus metrics.
const MetricsPath = "/metrics"

// Metrics holds the server's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	commands     *prometheus.CounterVec
	snapshots    *prometheus.CounterVec
	rehydrations *prometheus.CounterVec
	objects      prometheus.Gauge
}

// NewMetrics creates and registers the server collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "liveobjects",
			Name:      "requests_total",
			Help:      "RPC requests by procedure and result code.",
		}, []string{"procedure", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "liveobjects",
			Name:      "request_duration_seconds",
			Help:      "RPC latency by procedure.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"procedure"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "liveobjects",
			Name:      "commands_total",
			Help:      "Commands run by outcome.",
		}, []string{"outcome"}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "liveobjects",
			Name:      "snapshots_total",
			Help:      "Image snapshots by result.",
		}, []string{"result"}),
		rehydrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "liveobjects",
			Name:      "rehydrations_total",
			Help:      "Reloads of a changed image by result.",
		}, []string{"result"}),
		objects: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "liveobjects",
			Name:      "objects",
			Help:      "Objects in the registry, root included.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.latency, m.commands, m.snapshots, m.rehydrations, m.objects,
	)
	return m
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Interceptor records request counts and latency for every unary call.
func (m *Metrics) Interceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			code := "ok"
			if err != nil {
				code = connect.CodeOf(err).String()
			}
			procedure := req.Spec().Procedure
			m.requests.WithLabelValues(procedure, code).Inc()
			m.latency.WithLabelValues(procedure).Observe(time.Since(start).Seconds())
			return resp, err
		}
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
