package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aspira_api_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aspira_api_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Governance engine metrics
	proposalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aspira_api_action_proposals_total",
			Help: "Agent action proposals by decision outcome and reason",
		},
		[]string{"outcome", "reason"},
	)

	executionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aspira_api_action_executions_total",
			Help: "Action executions by channel and result",
		},
		[]string{"channel", "result"},
	)

	expiredActionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aspira_api_actions_expired_total",
			Help: "Pending actions expired by the sweeper",
		},
	)

	activeWebsockets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aspira_api_active_websockets",
			Help: "Open realtime action-feed connections",
		},
	)
)

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, endpoint string, statusCode int, durationSeconds float64) {
	status := "unknown"
	if statusCode >= 200 && statusCode < 300 {
		status = "2xx"
	} else if statusCode >= 300 && statusCode < 400 {
		status = "3xx"
	} else if statusCode >= 400 && statusCode < 500 {
		status = "4xx"
	} else if statusCode >= 500 {
		status = "5xx"
	}

	httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordProposal records a governance decision on a proposed action
func RecordProposal(outcome, reason string) {
	proposalsTotal.WithLabelValues(outcome, reason).Inc()
}

// RecordExecution records an action execution attempt
func RecordExecution(channel string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	executionsTotal.WithLabelValues(channel, result).Inc()
}

// RecordExpirySweep records how many actions a sweep expired
func RecordExpirySweep(count int) {
	expiredActionsTotal.Add(float64(count))
}

// WebsocketOpened increments the active websocket gauge
func WebsocketOpened() {
	activeWebsockets.Inc()
}

// WebsocketClosed decrements the active websocket gauge
func WebsocketClosed() {
	activeWebsockets.Dec()
}

// Handler returns the prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
