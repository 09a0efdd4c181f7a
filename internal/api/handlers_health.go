// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/patrolmap/internal/models"
	"github.com/tomtom215/patrolmap/internal/refresh"
)

// HealthStatus is the body of GET /api/v1/health.
type HealthStatus struct {
	Status        string           `json:"status"`
	Version       string           `json:"version"`
	Uptime        float64          `json:"uptime_seconds"`
	Ready         bool             `json:"ready"`
	Entities      map[string]int   `json:"entities"`
	Sync          []refresh.Status `json:"sync"`
	Realtime      RealtimeHealth   `json:"realtime"`
	MapSessions   int              `json:"map_sessions"`
	DegradedKinds []models.Kind    `json:"degraded_kinds,omitempty"`
}

// RealtimeHealth describes the push channel.
type RealtimeHealth struct {
	Enabled    bool `json:"enabled"`
	Running    bool `json:"running"`
	Subscribed bool `json:"subscribed"`
}

// Health reports sync state for every kind. A kind whose last attempt
// failed makes the service "degraded"; it still answers 200 because the
// map keeps serving the last-good snapshot.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	health := HealthStatus{
		Status:   "healthy",
		Version:  Version,
		Uptime:   time.Since(h.startTime).Seconds(),
		Entities: make(map[string]int, len(models.AllKinds)),
	}

	if h.deps.Store != nil {
		for kind, n := range h.deps.Store.Counts() {
			health.Entities[kind.Slug()] = n
		}
	}

	if h.deps.Refresher != nil {
		health.Ready = h.deps.Refresher.Ready()
		health.Sync = h.deps.Refresher.Statuses()
		for _, st := range health.Sync {
			if st.Degraded {
				health.DegradedKinds = append(health.DegradedKinds, st.Kind)
			}
		}
	}
	if len(health.DegradedKinds) > 0 {
		health.Status = "degraded"
	}

	if h.deps.Realtime != nil {
		health.Realtime = RealtimeHealth{
			Enabled:    true,
			Running:    h.deps.Realtime.IsRunning(),
			Subscribed: h.deps.Realtime.Subscribed(),
		}
	}
	if h.deps.Sessions != nil {
		health.MapSessions = h.deps.Sessions.Len()
	}

	NewResponseWriter(w, r).Success(health)
}

// HealthLive is the liveness probe. It never touches collaborators.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"alive":          true,
		"uptime_seconds": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady is the readiness probe: ready once every kind has completed
// one successful sync.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.deps.Refresher == nil {
		rw.ServiceUnavailable("refresh manager not configured")
		return
	}

	pending := []models.Kind{}
	for _, st := range h.deps.Refresher.Statuses() {
		if st.LastSuccess.IsZero() {
			pending = append(pending, st.Kind)
		}
	}
	ready := h.deps.Refresher.Ready()
	body := map[string]interface{}{
		"ready":   ready,
		"pending": pending,
	}

	if !ready {
		rw.ServiceUnavailableWithData(body)
		return
	}
	rw.Success(body)
}

// HealthPerformance returns per-route latency statistics.
func (h *Handler) HealthPerformance(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.deps.PerfMon == nil {
		rw.ServiceUnavailable("performance monitor not configured")
		return
	}
	rw.Success(map[string]interface{}{
		"endpoints": h.deps.PerfMon.GetStats(),
		"recent":    h.deps.PerfMon.GetRecentMetrics(20),
	})
}
