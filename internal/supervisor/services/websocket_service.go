// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package services

import (
	"context"
)

// ContextHub matches websocket.Hub.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// SessionCloser matches websocket.Sessions.
type SessionCloser interface {
	Close()
}

// WebSocketHubService runs the WebSocket hub under suture. When the hub
// stops, every open map session is disposed so no marker state outlives
// its connection.
type WebSocketHubService struct {
	hub      ContextHub
	sessions SessionCloser
	name     string
}

// NewWebSocketHubService creates a new WebSocket hub service wrapper.
// sessions may be nil.
func NewWebSocketHubService(hub ContextHub, sessions SessionCloser) *WebSocketHubService {
	return &WebSocketHubService{
		hub:      hub,
		sessions: sessions,
		name:     "websocket-hub",
	}
}

// Serve implements suture.Service.
func (w *WebSocketHubService) Serve(ctx context.Context) error {
	err := w.hub.RunWithContext(ctx)
	if w.sessions != nil && ctx.Err() != nil {
		w.sessions.Close()
	}
	return err
}

// String names the service in suture events.
func (w *WebSocketHubService) String() string {
	return w.name
}
