// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package models

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/patrolmap/internal/geo"
)

// Entity is one officer, incident, patrol vehicle or patrol route.
//
// Location is set for point kinds whose payload carried a valid coordinate.
// Waypoints holds the valid, ordered waypoints of a route. Fields is the
// original payload, passed through to clients without interpretation.
type Entity struct {
	ID          string
	Kind        Kind
	Status      Status
	Location    *geo.Coordinate
	Waypoints   []geo.Coordinate
	LastUpdated time.Time

	// Stamped is true when LastUpdated came from the payload rather than
	// from the time the record was received.
	Stamped bool

	// DroppedWaypoints counts route waypoints that failed to normalize.
	DroppedWaypoints int

	Fields map[string]any
}

// Key returns the merge key of the entity.
func (e *Entity) Key() Key {
	return Key{Kind: e.Kind, ID: e.ID}
}

// Locatable reports whether the entity can be drawn on the map.
func (e *Entity) Locatable() bool {
	if e.Kind == KindRoute {
		return geo.Renderable(e.Waypoints)
	}
	return e.Location != nil
}

// Anchor returns the coordinate an info overlay attaches to: the point
// location, or the first valid waypoint of a route.
func (e *Entity) Anchor() (geo.Coordinate, bool) {
	if e.Kind == KindRoute {
		if len(e.Waypoints) == 0 {
			return geo.Coordinate{}, false
		}
		return e.Waypoints[0], true
	}
	if e.Location == nil {
		return geo.Coordinate{}, false
	}
	return *e.Location, true
}

// Coordinates returns every coordinate the entity occupies on the map.
func (e *Entity) Coordinates() []geo.Coordinate {
	if e.Kind == KindRoute {
		return e.Waypoints
	}
	if e.Location == nil {
		return nil
	}
	return []geo.Coordinate{*e.Location}
}

// Text returns a passthrough field rendered as a string, or "" if absent.
func (e *Entity) Text(field string) string {
	switch v := e.Fields[field].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// SameContent reports whether two records are identical apart from their
// receipt timestamps.
func (e *Entity) SameContent(o *Entity) bool {
	if e == nil || o == nil {
		return e == o
	}
	if e.ID != o.ID || e.Kind != o.Kind || e.Status != o.Status {
		return false
	}
	if (e.Location == nil) != (o.Location == nil) {
		return false
	}
	if e.Location != nil && *e.Location != *o.Location {
		return false
	}
	if !sameCoords(e.Waypoints, o.Waypoints) {
		return false
	}
	return reflect.DeepEqual(e.Fields, o.Fields)
}

// MovedOrRestyled reports whether the rendered form of the entity differs:
// its coordinates or its status.
func (e *Entity) MovedOrRestyled(o *Entity) bool {
	if e.Status != o.Status {
		return true
	}
	if (e.Location == nil) != (o.Location == nil) {
		return true
	}
	if e.Location != nil && *e.Location != *o.Location {
		return true
	}
	return !sameCoords(e.Waypoints, o.Waypoints)
}

func sameCoords(a, b []geo.Coordinate) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// MarshalJSON emits the passthrough fields overlaid with the canonical ones.
func (e *Entity) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Fields)+6)
	for k, v := range e.Fields {
		out[k] = v
	}
	out["id"] = e.ID
	out["kind"] = e.Kind
	if e.Status != "" {
		out["status"] = e.Status
	}
	out["lastUpdated"] = e.LastUpdated.UTC().Format(time.RFC3339Nano)
	out["locatable"] = e.Locatable()
	if e.Kind == KindRoute {
		out["waypoints"] = e.Waypoints
	} else if e.Location != nil {
		out["location"] = e.Location
	}
	return json.Marshal(out)
}

// Key is the (kind, id) pair that identifies a record.
type Key struct {
	Kind Kind
	ID   string
}

func (k Key) String() string {
	return string(k.Kind) + ":" + k.ID
}

// searchFields lists the passthrough fields matched by free-text search.
var searchFields = map[Kind][]string{
	KindOfficer:  {"name", "firstName", "lastName", "badgeNumber", "rank"},
	KindIncident: {"title", "description", "type", "address"},
	KindVehicle:  {"name", "vehicleNumber", "licensePlate", "type", "model"},
	KindRoute:    {"name", "description"},
}

// SearchText returns the lowercase searchable values of an entity, id first.
func (e *Entity) SearchText() []string {
	fields := searchFields[e.Kind]
	out := make([]string, 0, len(fields)+1)
	out = append(out, strings.ToLower(e.ID))
	for _, f := range fields {
		if v := e.Text(f); v != "" {
			out = append(out, strings.ToLower(v))
		}
	}
	return out
}
