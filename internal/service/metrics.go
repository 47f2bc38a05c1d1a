package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the domain-level Prometheus instruments for the decision
// service, distinct from the HTTP transport's request/latency metrics.
type Metrics struct {
	DecisionRequestsTotal *prometheus.CounterVec
	DecisionDuration      prometheus.Histogram
	RateLimitRejections   prometheus.Counter
	AuditWriteFailures    prometheus.Counter
	SessionsActive        prometheus.Gauge
}

// NewMetrics registers the decision-service instruments with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		DecisionRequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "policygate",
				Name:      "decision_requests_total",
				Help:      "Total number of decision requests, labeled by result.",
			},
			[]string{"result"}, // allowed, blocked, or an errorCode
		),
		DecisionDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "policygate",
				Name:      "decision_duration_seconds",
				Help:      "Time to produce a decision, end to end.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		RateLimitRejections: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "policygate",
				Name:      "rate_limit_rejections_total",
				Help:      "Total requests rejected by the per-key rate limiter.",
			},
		),
		AuditWriteFailures: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "policygate",
				Name:      "audit_write_failures_total",
				Help:      "Total audit log append failures.",
			},
		),
		SessionsActive: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "policygate",
				Name:      "sessions_active",
				Help:      "Number of known session rows.",
			},
		),
	}
}
