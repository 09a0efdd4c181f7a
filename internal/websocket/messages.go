// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package websocket

import (
	"github.com/goccy/go-json"

	"github.com/tomtom215/patrolmap/internal/filter"
	"github.com/tomtom215/patrolmap/internal/geo"
	"github.com/tomtom215/patrolmap/internal/markers"
	"github.com/tomtom215/patrolmap/internal/models"
)

// Server -> client message types.
const (
	MessageTypeMarkerCreate   = "marker_create"
	MessageTypeMarkerUpdate   = "marker_update"
	MessageTypeMarkerRemove   = "marker_remove"
	MessageTypePolylineCreate = "polyline_create"
	MessageTypePolylineUpdate = "polyline_update"
	MessageTypePolylineRemove = "polyline_remove"
	MessageTypeOverlayOpen    = "overlay_open"
	MessageTypeOverlayClose   = "overlay_close"
	MessageTypeFitBounds      = "fit_bounds"
	MessageTypeSetCenter      = "set_center"

	MessageTypeSyncStatus   = "sync_status"
	MessageTypeSyncError    = "sync_error"
	MessageTypeSelection    = "selection"
	MessageTypeFilterResult = "filter_result"
	MessageTypeNotice       = "notice"
	MessageTypeError        = "error"
	MessageTypePong         = "pong"
)

// Client -> server message types.
const (
	MessageTypeMapReady         = "map_ready"
	MessageTypeSetFilter        = "set_filter"
	MessageTypeSelect           = "select"
	MessageTypeDeselect         = "deselect"
	MessageTypeRefresh          = "refresh"
	MessageTypeGeolocation      = "geolocation"
	MessageTypeGeolocationError = "geolocation_error"
	MessageTypePing             = "ping"
)

// Message represents a WebSocket message
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Inbound is a message read from a client. Data is decoded by the handler
// for its type.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MarshalMessage converts a message to JSON
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// Render command payloads.

type MarkerCreateData struct {
	Handle markers.Handle `json:"handle"`
	Kind   models.Kind    `json:"kind"`
	ID     string         `json:"id"`
	Coord  geo.Coordinate `json:"coord"`
	Icon   markers.Icon   `json:"icon"`
}

type MarkerUpdateData struct {
	Handle markers.Handle  `json:"handle"`
	Coord  *geo.Coordinate `json:"coord,omitempty"`
	Icon   *markers.Icon   `json:"icon,omitempty"`
}

type PolylineData struct {
	Handle markers.Handle    `json:"handle"`
	Kind   models.Kind       `json:"kind,omitempty"`
	ID     string            `json:"id,omitempty"`
	Coords []geo.Coordinate  `json:"coords"`
	Style  markers.LineStyle `json:"style"`
}

type OverlayOpenData struct {
	Handle  markers.Handle `json:"handle"`
	Coord   geo.Coordinate `json:"coord"`
	Content *models.Entity `json:"content"`
}

// HandleData carries the handle of a removed marker, polyline or overlay.
type HandleData struct {
	Handle markers.Handle `json:"handle"`
}

type FitBoundsData struct {
	Coords []geo.Coordinate `json:"coords"`
}

type SetCenterData struct {
	Coord geo.Coordinate `json:"coord"`
	Zoom  int            `json:"zoom,omitempty"`
}

// Notification payloads. sync_status carries a refresh.Status.

// SyncErrorData is a dismissible, non-fatal sync failure. The map keeps
// showing the last-good snapshot.
type SyncErrorData struct {
	Kind                models.Kind `json:"kind"`
	Message             string      `json:"message"`
	ConsecutiveFailures int         `json:"consecutive_failures"`
	LastSuccess         string      `json:"last_success,omitempty"`
}

type SelectionData struct {
	Kind     models.Kind `json:"kind"`
	ID       string      `json:"id"`
	Selected bool        `json:"selected"`
}

// FilterResultData tells the client how many entities a filter kept.
type FilterResultData struct {
	Kind   models.Kind   `json:"kind"`
	Query  string        `json:"query"`
	Status models.Status `json:"status"`
	Shown  int           `json:"shown"`
	Total  int           `json:"total"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client request payloads.

type setFilterRequest struct {
	Kind   string `json:"kind" validate:"required,entitykind"`
	Query  string `json:"query" validate:"max=200"`
	Status string `json:"status" validate:"omitempty,statusfilter"`
}

func (r setFilterRequest) query() filter.Query {
	return filter.Query{Text: r.Query, Status: models.Status(r.Status)}.Normalize()
}

type selectRequest struct {
	Kind string `json:"kind" validate:"required,entitykind"`
	ID   string `json:"id" validate:"required,max=256"`
}

type refreshRequest struct {
	Kind string `json:"kind" validate:"required,entitykind"`
}

type geolocationRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type geolocationErrorRequest struct {
	Message string `json:"message"`
}
