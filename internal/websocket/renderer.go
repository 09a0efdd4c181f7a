// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package websocket

import (
	"github.com/google/uuid"

	"github.com/tomtom215/patrolmap/internal/geo"
	"github.com/tomtom215/patrolmap/internal/markers"
	"github.com/tomtom215/patrolmap/internal/models"
)

// Sender queues a message for one client. *Client implements it.
type Sender interface {
	Send(msg Message) error
}

// Renderer implements markers.Renderer by sending render commands to a
// browser, which owns the actual map SDK. Handles are generated here so a
// command never waits on a reply.
type Renderer struct {
	out Sender
}

var _ markers.Renderer = (*Renderer)(nil)

// NewRenderer creates a renderer that writes to out.
func NewRenderer(out Sender) *Renderer {
	return &Renderer{out: out}
}

func newHandle() markers.Handle {
	return markers.Handle(uuid.NewString())
}

func (r *Renderer) CreateMarker(key models.Key, coord geo.Coordinate, icon markers.Icon) (markers.Handle, error) {
	h := newHandle()
	err := r.out.Send(Message{Type: MessageTypeMarkerCreate, Data: MarkerCreateData{
		Handle: h,
		Kind:   key.Kind,
		ID:     key.ID,
		Coord:  coord,
		Icon:   icon,
	}})
	if err != nil {
		return "", err
	}
	return h, nil
}

func (r *Renderer) UpdateMarker(h markers.Handle, coord *geo.Coordinate, icon *markers.Icon) error {
	return r.out.Send(Message{Type: MessageTypeMarkerUpdate, Data: MarkerUpdateData{Handle: h, Coord: coord, Icon: icon}})
}

func (r *Renderer) RemoveMarker(h markers.Handle) error {
	return r.out.Send(Message{Type: MessageTypeMarkerRemove, Data: HandleData{Handle: h}})
}

func (r *Renderer) DrawPolyline(key models.Key, coords []geo.Coordinate, style markers.LineStyle) (markers.Handle, error) {
	h := newHandle()
	err := r.out.Send(Message{Type: MessageTypePolylineCreate, Data: PolylineData{
		Handle: h,
		Kind:   key.Kind,
		ID:     key.ID,
		Coords: coords,
		Style:  style,
	}})
	if err != nil {
		return "", err
	}
	return h, nil
}

func (r *Renderer) UpdatePolyline(h markers.Handle, coords []geo.Coordinate, style markers.LineStyle) error {
	return r.out.Send(Message{Type: MessageTypePolylineUpdate, Data: PolylineData{Handle: h, Coords: coords, Style: style}})
}

func (r *Renderer) RemovePolyline(h markers.Handle) error {
	return r.out.Send(Message{Type: MessageTypePolylineRemove, Data: HandleData{Handle: h}})
}

func (r *Renderer) CreateOverlay(coord geo.Coordinate, content *models.Entity) (markers.Handle, error) {
	h := newHandle()
	err := r.out.Send(Message{Type: MessageTypeOverlayOpen, Data: OverlayOpenData{Handle: h, Coord: coord, Content: content}})
	if err != nil {
		return "", err
	}
	return h, nil
}

func (r *Renderer) CloseOverlay(h markers.Handle) error {
	return r.out.Send(Message{Type: MessageTypeOverlayClose, Data: HandleData{Handle: h}})
}

func (r *Renderer) FitBounds(coords []geo.Coordinate) error {
	return r.out.Send(Message{Type: MessageTypeFitBounds, Data: FitBoundsData{Coords: coords}})
}

func (r *Renderer) SetCenter(coord geo.Coordinate, zoom int) error {
	return r.out.Send(Message{Type: MessageTypeSetCenter, Data: SetCenterData{Coord: coord, Zoom: zoom}})
}
