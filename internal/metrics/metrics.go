package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_http_requests_total",
			Help: "Total number of HTTP requests processed, labeled by method, path, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "monitor_http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	RuleViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_rule_violations_total",
			Help: "Total number of failed validation results by rule severity.",
		},
		[]string{"severity"},
	)

	RuleErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_rule_errors_total",
			Help: "Total number of rules skipped during validation, labeled by reason (compile, timeout).",
		},
		[]string{"reason"},
	)

	InteractionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_interactions_total",
			Help: "Total number of evaluated interactions, labeled by content type and outcome.",
		},
		[]string{"content_type", "outcome"},
	)

	IncidentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_incidents_total",
			Help: "Total number of derived incidents by severity.",
		},
		[]string{"severity"},
	)

	RiskScore = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "monitor_risk_score",
			Help: "Most recently computed dashboard risk score (0-100).",
		},
	)

	HistoryQueueLength = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "monitor_history_queue_length",
			Help: "Current number of interaction and incident records queued in Redis for persistence.",
		},
	)
)

// Register registers all application metrics with the default Prometheus registry.
func Register() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(RuleViolationsTotal)
	prometheus.MustRegister(RuleErrorsTotal)
	prometheus.MustRegister(InteractionsTotal)
	prometheus.MustRegister(IncidentsTotal)
	prometheus.MustRegister(RiskScore)
	prometheus.MustRegister(HistoryQueueLength)
}
