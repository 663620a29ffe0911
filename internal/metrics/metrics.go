// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	StoreOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fuwachat",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Store adapter calls by backend, operation and result.",
		},
		[]string{"backend", "op", "result"},
	)
	StoreLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fuwachat",
			Subsystem: "store",
			Name:      "operation_seconds",
			Help:      "Store adapter call latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)
	Pushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fuwachat",
			Subsystem: "store",
			Name:      "pushes_total",
			Help:      "Subscription pushes delivered, by kind.",
		},
		[]string{"kind"},
	)
	OpenSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fuwachat",
			Name:      "open_sessions",
			Help:      "Conversation sessions currently open.",
		},
	)
	PendingOps = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fuwachat",
			Name:      "pending_operations",
			Help:      "Optimistic operations waiting for a successful put.",
		},
	)
	WebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fuwachat",
			Name:      "websocket_clients",
			Help:      "Connected WebSocket clients.",
		},
	)
	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fuwachat",
			Name:      "rate_limited_total",
			Help:      "Mutations rejected by the per-participant limiter.",
		},
	)
)

func init() {
	prometheus.MustRegister(StoreOps, StoreLatency, Pushes, OpenSessions, PendingOps, WebSocketClients, RateLimited)
}
