// Package metrics holds the prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinicflow_http_requests_total",
		Help: "HTTP requests by method, route pattern and status code.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clinicflow_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// Transitions counts state machine operations by action and outcome
	// (success or the error kind).
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinicflow_transitions_total",
		Help: "Clinic, visit and prescription operations by outcome.",
	}, []string{"action", "outcome"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinicflow_cache_lookups_total",
		Help: "Public clinic lookups served from cache (hit) or storage (miss).",
	}, []string{"result"})

	NotifyDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clinicflow_notify_dropped_total",
		Help: "Events dropped because the dispatch queue was full or closed.",
	})

	NotifyDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinicflow_notify_delivered_total",
		Help: "Events handed to a sink without error.",
	}, []string{"sink"})

	NotifySinkErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinicflow_notify_sink_errors_total",
		Help: "Sink delivery failures.",
	}, []string{"sink"})

	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clinicflow_websocket_clients",
		Help: "Currently connected websocket clients.",
	})
)
