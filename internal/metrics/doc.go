// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

/*
Package metrics provides Prometheus metrics collection and export for observability.

All collectors are registered on the default registry through promauto and
exposed at /metrics in Prometheus text format:

	curl http://localhost:3857/metrics

# Available Metrics

API Metrics:
  - api_requests_total{method, endpoint, status_code}
  - api_request_duration_seconds{method, endpoint}
  - api_active_requests
  - api_rate_limit_hits_total{endpoint}

Refresh Metrics:
  - sync_fetch_duration_seconds{kind}
  - sync_fetch_total{kind, result}: success, empty, transport_error, malformed
  - sync_refresh_coalesced_total{kind}
  - sync_last_success_timestamp{kind}
  - sync_batch_size{kind}
  - sync_degraded{kind}

Store Metrics:
  - store_entities{kind}, store_unlocatable_entities{kind}, store_version{kind}
  - store_writes_total{kind, op, result}
  - entities_skipped_total{kind, reason}

Push Metrics:
  - push_messages_received_total{kind}
  - push_messages_failed_total{kind, reason}
  - push_broker_connected

Map Metrics:
  - marker_operations_total{op}
  - markers_live, map_sessions
  - marker_reconcile_duration_seconds

Circuit Breaker Metrics:
  - circuit_breaker_state{name}: 0=closed, 1=half-open, 2=open
  - circuit_breaker_requests_total{name, result}
  - circuit_breaker_consecutive_failures{name}
  - circuit_breaker_state_transitions_total{name, from_state, to_state}

Cache and WebSocket Metrics:
  - cache_hits_total{cache_type}, cache_misses_total{cache_type}
  - websocket_connections, websocket_messages_sent_total,
    websocket_messages_received_total, websocket_errors_total{error_type}
*/
package metrics
