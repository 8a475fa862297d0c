package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Message metrics
	MessagesPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workshop_messages_published_total",
			Help: "Total number of messages published by channel",
		},
		[]string{"channel"},
	)

	FramesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "workshop_frames_sent_total",
			Help: "Total number of event-stream frames delivered to subscribers",
		},
	)

	FramesDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "workshop_frames_dropped_total",
			Help: "Total number of frames dropped because a subscriber was evicted",
		},
	)

	// Subscriber metrics
	SubscribersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "workshop_subscribers_active",
			Help: "Current number of attached push-stream subscribers",
		},
	)

	// Task metrics
	TaskTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workshop_task_transitions_total",
			Help: "Total number of task state transitions by event type",
		},
		[]string{"event"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workshop_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "workshop_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Retention metrics
	MessagesPurged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "workshop_messages_purged_total",
			Help: "Total number of messages deleted by the retention loop",
		},
	)
)

func init() {
	prometheus.MustRegister(
		MessagesPublished,
		FramesSent,
		FramesDropped,
		SubscribersActive,
		TaskTransitions,
		APIRequestsTotal,
		APIRequestDuration,
		MessagesPurged,
	)
}

// Handler returns the HTTP handler serving the metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}
