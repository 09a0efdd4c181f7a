// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/patrolmap/internal/logging"
	"github.com/tomtom215/patrolmap/internal/metrics"
	ws "github.com/tomtom215/patrolmap/internal/websocket"
)

// WebSocket upgrades the request and opens a map session on it.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.deps.Sessions == nil {
		logging.Warn().Msg("WebSocket connection rejected: sessions not initialized")
		NewResponseWriter(w, r).ServiceUnavailable("WebSocket service unavailable")
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		metrics.WSErrors.WithLabelValues("upgrade").Inc()
		logging.Ctx(r.Context()).Debug().Err(err).Msg("WebSocket upgrade error")
		return
	}

	sess, err := h.deps.Sessions.Serve(conn)
	if err != nil {
		if !errors.Is(err, ws.ErrHubStopped) {
			logging.Ctx(r.Context()).Error().Err(err).Msg("failed to open map session")
		}
		return
	}
	logging.Ctx(r.Context()).Debug().Str("session_id", sess.ID()).Msg("map session opened")
}

func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin accepts only origins on the CORS allow list.
// Browsers always send Origin on WebSocket handshakes, so an empty one
// is rejected.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		logging.Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}
	if h.middleware.AllowsOrigin(origin) {
		return true
	}
	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}
