// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package markers

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tomtom215/patrolmap/internal/geo"
	"github.com/tomtom215/patrolmap/internal/models"
)

var errRenderer = errors.New("renderer unavailable")

// call is one recorded renderer invocation.
type call struct {
	Op     string
	Handle Handle
	Key    models.Key
	Coord  *geo.Coordinate
	Icon   *Icon
	Coords []geo.Coordinate
	// Content is the entity an overlay was opened with.
	Content *models.Entity
}

// recorder is a Renderer that records every call and hands out sequential
// handles. failNext makes the next call of an op fail.
type recorder struct {
	mu       sync.Mutex
	calls    []call
	seq      int
	failNext map[string]int
}

func newRecorder() *recorder {
	return &recorder{failNext: make(map[string]int)}
}

func (r *recorder) record(c call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext[c.Op] > 0 {
		r.failNext[c.Op]--
		return errRenderer
	}
	r.calls = append(r.calls, c)
	return nil
}

func (r *recorder) next(prefix string) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	return Handle(fmt.Sprintf("%s-%d", prefix, r.seq))
}

func (r *recorder) CreateMarker(key models.Key, coord geo.Coordinate, icon Icon) (Handle, error) {
	h := r.next("m")
	if err := r.record(call{Op: "create", Handle: h, Key: key, Coord: &coord, Icon: &icon}); err != nil {
		return "", err
	}
	return h, nil
}

func (r *recorder) UpdateMarker(h Handle, coord *geo.Coordinate, icon *Icon) error {
	return r.record(call{Op: "update", Handle: h, Coord: coord, Icon: icon})
}

func (r *recorder) RemoveMarker(h Handle) error {
	return r.record(call{Op: "remove", Handle: h})
}

func (r *recorder) DrawPolyline(key models.Key, coords []geo.Coordinate, _ LineStyle) (Handle, error) {
	h := r.next("p")
	if err := r.record(call{Op: "polyline_create", Handle: h, Key: key, Coords: coords}); err != nil {
		return "", err
	}
	return h, nil
}

func (r *recorder) UpdatePolyline(h Handle, coords []geo.Coordinate, _ LineStyle) error {
	return r.record(call{Op: "polyline_update", Handle: h, Coords: coords})
}

func (r *recorder) RemovePolyline(h Handle) error {
	return r.record(call{Op: "polyline_remove", Handle: h})
}

func (r *recorder) CreateOverlay(coord geo.Coordinate, content *models.Entity) (Handle, error) {
	h := r.next("o")
	if err := r.record(call{Op: "overlay_open", Handle: h, Key: content.Key(), Coord: &coord, Content: content}); err != nil {
		return "", err
	}
	return h, nil
}

func (r *recorder) CloseOverlay(h Handle) error {
	return r.record(call{Op: "overlay_close", Handle: h})
}

func (r *recorder) FitBounds(coords []geo.Coordinate) error {
	return r.record(call{Op: "fit_bounds", Coords: coords})
}

func (r *recorder) SetCenter(coord geo.Coordinate, _ int) error {
	return r.record(call{Op: "set_center", Coord: &coord})
}

// take returns and clears the recorded calls.
func (r *recorder) take() []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.calls
	r.calls = nil
	return out
}

func ops(calls []call) []string {
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Op
	}
	return out
}
