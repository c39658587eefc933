package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartfarm_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smartfarm_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	// Conversation metrics
	MessagesAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartfarm_messages_appended_total",
			Help: "Chat messages appended to conversations",
		},
		[]string{"sender"},
	)

	SelectorRuleHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartfarm_selector_rule_hits_total",
			Help: "Reply selector matches by rule",
		},
		[]string{"rule"},
	)

	// Classifier metrics
	Classifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartfarm_classifications_total",
			Help: "Image classifications by outcome",
		},
		[]string{"outcome"}, // "ok", "error", "rejected"
	)

	ClassifierCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "smartfarm_classifier_cache_hits_total",
			Help: "Classifications answered from the result cache",
		},
	)

	ModelLoadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "smartfarm_model_load_duration_seconds",
			Help:    "Time spent loading the classification model",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	// Telemetry metrics
	TelemetryAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartfarm_telemetry_alerts_total",
			Help: "Alerts raised by the telemetry simulator",
		},
		[]string{"metric"},
	)
)
