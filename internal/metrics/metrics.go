// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// REST Refresh Metrics
	SyncFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_fetch_duration_seconds",
			Help:    "Duration of full-state REST fetches in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"kind"},
	)

	SyncFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_fetch_total",
			Help: "Total number of full-state REST fetches by result",
		},
		[]string{"kind", "result"}, // success, empty, transport_error, malformed
	)

	SyncCoalesced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_refresh_coalesced_total",
			Help: "Manual refresh requests joined to an in-flight fetch",
		},
		[]string{"kind"},
	)

	SyncLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sync_last_success_timestamp",
			Help: "Unix timestamp of the last successful fetch",
		},
		[]string{"kind"},
	)

	SyncBatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_batch_size",
			Help:    "Number of entities in fetched batches",
			Buckets: []float64{0, 1, 10, 50, 100, 250, 500, 1000, 5000},
		},
		[]string{"kind"},
	)

	SyncDegraded = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sync_degraded",
			Help: "1 when the last fetch for a kind failed or was ignored",
		},
		[]string{"kind"},
	)

	// Entity Store Metrics
	StoreEntities = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "store_entities",
			Help: "Current number of entities held per kind",
		},
		[]string{"kind"},
	)

	StoreUnlocatable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "store_unlocatable_entities",
			Help: "Entities held without a renderable location",
		},
		[]string{"kind"},
	)

	StoreWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_writes_total",
			Help: "Per-entity outcomes of store writes",
		},
		[]string{"kind", "op", "result"}, // op: replace, merge; result: inserted, replaced, unchanged, stale, removed, retained
	)

	StoreVersion = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "store_version",
			Help: "Change counter of each collection",
		},
		[]string{"kind"},
	)

	EntitiesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entities_skipped_total",
			Help: "Entities or waypoints skipped during normalization",
		},
		[]string{"kind", "reason"}, // missing_id, not_object, unlocatable, dropped_waypoint
	)

	// Real-Time Push Metrics
	PushMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_messages_received_total",
			Help: "Total number of push messages received",
		},
		[]string{"kind"},
	)

	PushMessagesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_messages_failed_total",
			Help: "Push messages that could not be applied",
		},
		[]string{"kind", "reason"},
	)

	BrokerConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "push_broker_connected",
			Help: "1 when the push subscriber is connected to the broker",
		},
	)

	// Marker Lifecycle Metrics
	MarkerOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marker_operations_total",
			Help: "Renderer calls issued by marker reconciliation",
		},
		[]string{"op"},
	)

	MarkersLive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "markers_live",
			Help: "Markers and polylines currently rendered across all sessions",
		},
	)

	MapSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "map_sessions",
			Help: "Current number of live map sessions",
		},
	)

	ReconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "marker_reconcile_duration_seconds",
			Help:    "Duration of a reconciliation pass",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
	)

	// Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)

	WSMessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_received_total",
			Help: "Total number of WebSocket messages received",
		},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
		[]string{"error_type"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // success, failure, rejected
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordFetch records the outcome of one full-state fetch.
func RecordFetch(kind, result string, duration time.Duration, batchSize int) {
	SyncFetchDuration.WithLabelValues(kind).Observe(duration.Seconds())
	SyncFetchTotal.WithLabelValues(kind, result).Inc()
	if result == "success" {
		SyncLastSuccess.WithLabelValues(kind).Set(float64(time.Now().Unix()))
		SyncBatchSize.WithLabelValues(kind).Observe(float64(batchSize))
		SyncDegraded.WithLabelValues(kind).Set(0)
		return
	}
	SyncDegraded.WithLabelValues(kind).Set(1)
}

// RecordStoreWrite counts n per-entity outcomes of a store write.
func RecordStoreWrite(kind, op, result string, n int) {
	if n <= 0 {
		return
	}
	StoreWrites.WithLabelValues(kind, op, result).Add(float64(n))
}

// UpdateStoreGauges publishes the size of a collection after a write.
func UpdateStoreGauges(kind string, total, unlocatable int, version uint64) {
	StoreEntities.WithLabelValues(kind).Set(float64(total))
	StoreUnlocatable.WithLabelValues(kind).Set(float64(unlocatable))
	StoreVersion.WithLabelValues(kind).Set(float64(version))
}

// RecordSkipped counts entities or waypoints dropped by normalization.
func RecordSkipped(kind, reason string, n int) {
	if n <= 0 {
		return
	}
	EntitiesSkipped.WithLabelValues(kind, reason).Add(float64(n))
}

// RecordPush records a received push message and, when failureReason is
// non-empty, why it could not be applied.
func RecordPush(kind string, failureReason string) {
	PushMessagesReceived.WithLabelValues(kind).Inc()
	if failureReason != "" {
		PushMessagesFailed.WithLabelValues(kind, failureReason).Inc()
	}
}

// SetBrokerConnected records the push broker connection state.
func SetBrokerConnected(connected bool) {
	if connected {
		BrokerConnected.Set(1)
	} else {
		BrokerConnected.Set(0)
	}
}

// RecordMarkerOp counts a renderer call issued by reconciliation.
func RecordMarkerOp(op string) {
	MarkerOperations.WithLabelValues(op).Inc()
}

// RecordCacheLookup records a cache hit or miss.
func RecordCacheLookup(cacheType string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(cacheType).Inc()
	} else {
		CacheMisses.WithLabelValues(cacheType).Inc()
	}
}
