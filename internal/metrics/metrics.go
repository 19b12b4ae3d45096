package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AlertsFired tracks the total number of alerts handed to the push gateway
	AlertsFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inspection_alert_fired_total",
			Help: "Total number of alerts published",
		},
		[]string{"class"},
	)

	// AlertDeliveryFailures tracks alerts the push gateway did not accept
	AlertDeliveryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inspection_alert_delivery_failures_total",
			Help: "Total number of alerts that failed to publish",
		},
		[]string{"class"},
	)

	// AlertsDeduplicated tracks immediate alerts suppressed by the ledger
	AlertsDeduplicated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inspection_alert_deduplicated_total",
			Help: "Total number of immediate alerts suppressed as duplicates",
		},
		[]string{"class"},
	)

	// TriggersScheduled tracks lead-time triggers registered
	TriggersScheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inspection_alert_triggers_scheduled_total",
			Help: "Total number of lead-time triggers scheduled",
		},
	)

	// TriggersCancelled tracks live triggers removed before firing
	TriggersCancelled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inspection_alert_triggers_cancelled_total",
			Help: "Total number of live triggers cancelled",
		},
	)

	// TriggersLive tracks the number of pending triggers
	TriggersLive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inspection_alert_triggers_live",
			Help: "Number of pending lead-time triggers",
		},
	)

	// SweepsRun tracks automation sweeps by outcome
	SweepsRun = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inspection_alert_sweeps_total",
			Help: "Total number of automation sweeps",
		},
		[]string{"status"}, // completed, skipped
	)

	// SweepDuration tracks sweep duration
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inspection_alert_sweep_duration_seconds",
			Help:    "Automation sweep duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ReportsGenerated tracks report generation by type and outcome
	ReportsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inspection_alert_reports_total",
			Help: "Total number of reports generated",
		},
		[]string{"type", "status"},
	)

	// RateLimitExceeded tracks rate limit violations
	RateLimitExceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inspection_alert_rate_limit_exceeded_total",
			Help: "Total number of rate limit exceeded events",
		},
		[]string{"path"},
	)

	// ConsumerRestarts tracks item event consumer restart events
	ConsumerRestarts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inspection_alert_consumer_restarts_total",
			Help: "Total number of item event consumer restarts",
		},
	)
)
