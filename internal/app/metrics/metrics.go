// Package metrics holds the service's Prometheus instrumentation on a
// private registry so tests never collide on the default one.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics bundles every collector the service registers.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPInFlight        prometheus.Gauge

	WithdrawalsForwarded prometheus.Counter
	WithdrawalsRejected  prometheus.Counter
	DedupSuppressions    prometheus.Counter
	RateLimitRejections  *prometheus.CounterVec
	JournalReplays       prometheus.Counter
}

// New builds and registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_http_requests_total",
			Help: "HTTP requests by method, path pattern and status code.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wallet_http_request_duration_seconds",
			Help:    "HTTP request latency by path pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		HTTPInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wallet_http_requests_in_flight",
			Help: "HTTP requests currently being served.",
		}),
		WithdrawalsForwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wallet_withdrawals_forwarded_total",
			Help: "Withdrawal requests accepted by the approval authority.",
		}),
		WithdrawalsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wallet_withdrawals_rejected_total",
			Help: "Withdrawal requests refused by the approval authority.",
		}),
		DedupSuppressions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wallet_dedup_suppressions_total",
			Help: "Withdrawal submissions suppressed by the duplicate window.",
		}),
		RateLimitRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_ratelimit_rejections_total",
			Help: "Requests rejected by a rate limit budget.",
		}, []string{"budget"}),
		JournalReplays: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wallet_journal_replays_total",
			Help: "Transaction saves that replayed an already-journaled hash.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPInFlight,
		m.WithdrawalsForwarded,
		m.WithdrawalsRejected,
		m.DedupSuppressions,
		m.RateLimitRejections,
		m.JournalReplays,
	)
	return m
}
