// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crm_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	LeadScores = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crm_lead_score",
			Help:    "Distribution of computed lead scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)

	NotificationRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_notification_refreshes_total",
			Help: "Notification refreshes by result (ok, error, stale)",
		},
		[]string{"result"},
	)

	NotificationMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_notification_mutations_total",
			Help: "Notification mutations by operation and result",
		},
		[]string{"operation", "result"},
	)

	FollowUpAlerts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crm_followup_alerts_total",
			Help: "Immediate follow-up alerts emitted to sessions",
		},
	)

	FeedResubscribes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_feed_resubscribes_total",
			Help: "Change feed resubscription attempts by result",
		},
		[]string{"result"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crm_notification_sessions_active",
			Help: "Number of live notification coordinators",
		},
	)

	RemindersSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_followup_reminders_total",
			Help: "Follow-up reminder tasks by outcome (sent, skipped, failed)",
		},
		[]string{"outcome"},
	)
)
