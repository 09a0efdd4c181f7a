// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

// Package geo extracts canonical coordinates from heterogeneous backend
// payloads and provides the small amount of spherical math the map needs.
//
// Every function in this package is pure. Invalid input yields ok=false,
// never a panic or an error, so one bad record cannot abort a batch.
package geo

import (
	"math"
	"strconv"
	"strings"
)

// Coordinate is a canonical WGS84 latitude/longitude pair.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether both axes are finite and inside WGS84 bounds.
func (c Coordinate) Valid() bool {
	return validAxis(c.Lat, 90) && validAxis(c.Lng, 180)
}

// Lookup chains, tried in order. The first key that is present with a
// non-nil value decides the axis; a present but unusable value does not
// fall through to the next key.
var (
	latNested = []string{"lat", "latitude"}
	lngNested = []string{"lng", "longitude"}
	latFlat   = []string{"lat", "latitude"}
	lngFlat   = []string{"lng", "longitude"}
)

// Normalize extracts a coordinate from an entity-shaped record.
//
// Each axis is resolved independently: location.lat, location.latitude,
// lat, latitude (and likewise lng/longitude). Values may be numbers or
// numeric strings.
func Normalize(record map[string]any) (Coordinate, bool) {
	if record == nil {
		return Coordinate{}, false
	}

	nested, _ := record["location"].(map[string]any)

	latRaw, ok := firstPresent(nested, latNested, record, latFlat)
	if !ok {
		return Coordinate{}, false
	}
	lngRaw, ok := firstPresent(nested, lngNested, record, lngFlat)
	if !ok {
		return Coordinate{}, false
	}

	lat, ok := toFloat(latRaw)
	if !ok {
		return Coordinate{}, false
	}
	lng, ok := toFloat(lngRaw)
	if !ok {
		return Coordinate{}, false
	}

	c := Coordinate{Lat: lat, Lng: lng}
	if !c.Valid() {
		return Coordinate{}, false
	}
	return c, true
}

// NormalizeWaypoints normalizes each element of a waypoint list
// independently, dropping the ones that fail. It returns the surviving
// coordinates in their original order and the number dropped.
func NormalizeWaypoints(raw any) ([]Coordinate, int) {
	items, ok := raw.([]any)
	if !ok {
		return nil, 0
	}

	out := make([]Coordinate, 0, len(items))
	dropped := 0
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			dropped++
			continue
		}
		c, ok := Normalize(m)
		if !ok {
			dropped++
			continue
		}
		out = append(out, c)
	}
	return out, dropped
}

// Renderable reports whether a waypoint list can be drawn as a polyline.
func Renderable(waypoints []Coordinate) bool {
	return len(waypoints) >= 2
}

func firstPresent(nested map[string]any, nestedKeys []string, flat map[string]any, flatKeys []string) (any, bool) {
	for _, k := range nestedKeys {
		if v, ok := nested[k]; ok && v != nil {
			return v, true
		}
	}
	for _, k := range flatKeys {
		if v, ok := flat[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// float64er matches json.Number without tying this package to a decoder.
type float64er interface {
	Float64() (float64, error)
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64er:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func validAxis(v, limit float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= -limit && v <= limit
}
