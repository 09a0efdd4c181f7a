// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

/*
Package middleware provides HTTP middleware components for the API router.

Key Components:

  - RequestID: X-Request-ID propagation into chi, logging and responses
  - PrometheusMetrics: request count, latency and in-flight instrumentation
    labeled by chi route pattern
  - PerformanceMonitor: sliding-window latency percentiles per endpoint,
    served on /api/v1/health/performance

All middleware has the chi signature func(http.Handler) http.Handler and
passes http.Hijacker through so WebSocket upgrades work behind it.

Usage:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
	r.Use(monitor.Middleware)
*/
package middleware
