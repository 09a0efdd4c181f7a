// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package markers

import (
	"github.com/tomtom215/patrolmap/internal/geo"
	"github.com/tomtom215/patrolmap/internal/models"
)

// Handle identifies a marker, polyline or overlay owned by a Renderer.
type Handle string

// Renderer is the map SDK as seen by the manager. Any map library can sit
// behind it; the WebSocket renderer forwards each call to a browser.
//
// Calls are issued from one goroutine at a time per manager.
type Renderer interface {
	CreateMarker(key models.Key, coord geo.Coordinate, icon Icon) (Handle, error)

	// UpdateMarker moves and/or restyles a marker in place. A nil argument
	// leaves that property unchanged.
	UpdateMarker(h Handle, coord *geo.Coordinate, icon *Icon) error
	RemoveMarker(h Handle) error

	DrawPolyline(key models.Key, coords []geo.Coordinate, style LineStyle) (Handle, error)
	UpdatePolyline(h Handle, coords []geo.Coordinate, style LineStyle) error
	RemovePolyline(h Handle) error

	CreateOverlay(coord geo.Coordinate, content *models.Entity) (Handle, error)
	CloseOverlay(h Handle) error

	FitBounds(coords []geo.Coordinate) error
	SetCenter(coord geo.Coordinate, zoom int) error
}
