// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/patrolmap/internal/filter"
	"github.com/tomtom215/patrolmap/internal/geo"
	"github.com/tomtom215/patrolmap/internal/middleware"
	"github.com/tomtom215/patrolmap/internal/models"
	"github.com/tomtom215/patrolmap/internal/refresh"
	"github.com/tomtom215/patrolmap/internal/store"
	ws "github.com/tomtom215/patrolmap/internal/websocket"
)

// Version is reported by the health endpoint. It is set at build time.
var Version = "dev"

// EntityCounter reports collection sizes.
type EntityCounter interface {
	Counts() map[models.Kind]int
}

// ViewSource produces filtered list views.
type ViewSource interface {
	View(kind models.Kind, q filter.Query) *filter.View
}

// Refresher is the sync side of the refresh manager.
type Refresher interface {
	RefreshNow(ctx context.Context, kind models.Kind) (refresh.Result, error)
	Statuses() []refresh.Status
	Ready() bool
}

// PushReceiver applies one pushed entity.
type PushReceiver interface {
	OnMessage(kind models.Kind, raw []byte) (store.MergeResult, error)
}

// NearbyIndex answers proximity queries.
type NearbyIndex interface {
	Nearby(center geo.Coordinate, radiusKm float64, kinds ...models.Kind) []store.Nearby
}

// SessionServer attaches upgraded connections to map sessions.
type SessionServer interface {
	Serve(conn *websocket.Conn) (*ws.Session, error)
	Len() int
}

// RealtimeStatus reports the push channel state.
type RealtimeStatus interface {
	IsRunning() bool
	Subscribed() bool
}

// Deps are the collaborators of Handler. Nil members disable the
// endpoints that need them; those answer 503.
type Deps struct {
	Store     EntityCounter
	Views     ViewSource
	Refresher Refresher
	Push      PushReceiver
	Index     NearbyIndex
	Sessions  SessionServer
	Realtime  RealtimeStatus
	PerfMon   *middleware.PerformanceMonitor
}

// Handler contains dependencies for API handlers.
//
// Handler methods are split across files:
//   - handlers.go: Handler struct, constructor, shared helpers
//   - handlers_health.go: health and monitoring endpoints
//   - handlers_entities.go: list, refresh, push and nearby endpoints
//   - handlers_websocket.go: map session upgrade
type Handler struct {
	deps        Deps
	middleware  *ChiMiddleware
	startTime   time.Time
	maxPushBody int64
}

// NewHandler creates the API handler. mw supplies the CORS allow list used
// for WebSocket origin checks.
func NewHandler(deps Deps, mw *ChiMiddleware) *Handler {
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}
	return &Handler{
		deps:        deps,
		middleware:  mw,
		startTime:   time.Now(),
		maxPushBody: 1 << 20,
	}
}

// kindParam resolves the {kind} URL parameter, writing a 400 on failure.
func kindParam(w http.ResponseWriter, r *http.Request) (models.Kind, bool) {
	raw := chi.URLParam(r, "kind")
	kind, err := models.ParseKind(raw)
	if err != nil {
		NewResponseWriter(w, r).ErrorWithDetails(http.StatusBadRequest, ErrCodeUnknownKind,
			"unknown entity kind", map[string]interface{}{"kind": raw})
		return "", false
	}
	return kind, true
}
