// Package metrics holds the process-wide Prometheus collectors. They are
// registered in the default registry and served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpdatesHandled counts Telegram updates by kind: text, photo, voice, command, callback.
	UpdatesHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expensebot_telegram_updates_total",
			Help: "Total number of handled Telegram updates by kind",
		},
		[]string{"kind"},
	)

	// CallbacksHandled counts inline button presses by action.
	CallbacksHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expensebot_telegram_callbacks_total",
			Help: "Total number of processed callback queries by action",
		},
		[]string{"action"},
	)

	ExpensesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expensebot_expenses_created_total",
			Help: "Total number of persisted expenses by source",
		},
		[]string{"source"},
	)

	AIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "expensebot_ai_request_duration_seconds",
			Help:    "Duration of AI extraction calls in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "operation"},
	)

	AIErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expensebot_ai_errors_total",
			Help: "Total number of failed AI extraction calls",
		},
		[]string{"provider", "operation"},
	)

	// PortalFetches counts receipt portal lookups by result: ok, error.
	PortalFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expensebot_receipt_portal_fetches_total",
			Help: "Total number of fiscal receipt portal lookups by result",
		},
		[]string{"result"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expensebot_http_requests_total",
			Help: "Total number of API requests by route and status code",
		},
		[]string{"method", "route", "code"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "expensebot_http_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
