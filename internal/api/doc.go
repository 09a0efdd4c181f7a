// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

/*
Package api provides the HTTP surface of patrolmap.

Routes (chi):

	GET  /api/v1/health              sync state, counts, uptime
	GET  /api/v1/health/live         liveness probe
	GET  /api/v1/health/ready        503 until every kind has synced once
	GET  /api/v1/health/performance  per-route latency percentiles
	GET  /api/v1/entities/{kind}     filtered list view (?q=&status=)
	POST /api/v1/entities/{kind}/refresh  manual refresh, coalesced
	POST /api/v1/push/{kind}         push ingress, one entity per request
	GET  /api/v1/nearby              ?lat=&lng=&radius_km=&kind=&limit=
	GET  /api/v1/ws                  WebSocket map session
	GET  /metrics                    Prometheus

{kind} accepts the canonical names and their aliases, for example
officers, OFFICER, incidents or alerts.

Every JSON response uses the APIResponse envelope:

	{"success": true, "data": {...}, "meta": {"request_id": "...", "timestamp": "..."}}
	{"success": false, "error": {"code": "UNKNOWN_KIND", "message": "..."}}

Middleware order is request ID, real IP, panic recovery, CORS, Prometheus
metrics and the performance monitor. Route groups add rate limits
(go-chi/httprate), security headers and gzip for list responses.
*/
package api
