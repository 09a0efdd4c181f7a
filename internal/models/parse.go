// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package models

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/patrolmap/internal/geo"
)

var (
	// ErrUnknownKind is returned for a kind name that matches no collection.
	ErrUnknownKind = errors.New("unknown entity kind")

	// ErrMissingID is returned when a payload has no usable id.
	ErrMissingID = errors.New("entity has no id")

	// ErrNotAnObject is returned when a payload is not a JSON object.
	ErrNotAnObject = errors.New("entity payload is not an object")
)

var timestampKeys = []string{"lastUpdated", "last_updated", "updatedAt", "updated_at", "timestamp"}

var waypointKeys = []string{"waypoints", "points", "path"}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Parse builds an Entity of the given kind from a decoded payload.
// Coordinates that fail to normalize leave the entity unlocatable rather
// than failing the parse; only a missing id is an error.
func Parse(kind Kind, raw map[string]any, receivedAt time.Time) (*Entity, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if raw == nil {
		return nil, ErrNotAnObject
	}

	id, ok := parseID(raw["id"])
	if !ok {
		return nil, ErrMissingID
	}

	e := &Entity{
		ID:     id,
		Kind:   kind,
		Fields: raw,
	}

	if s, ok := raw["status"].(string); ok {
		e.Status = NormalizeStatus(s)
	}

	if ts, ok := parseTimestamp(raw); ok {
		e.LastUpdated = ts
		e.Stamped = true
	} else {
		e.LastUpdated = receivedAt
	}

	if kind == KindRoute {
		for _, key := range waypointKeys {
			if v, present := raw[key]; present && v != nil {
				e.Waypoints, e.DroppedWaypoints = geo.NormalizeWaypoints(v)
				break
			}
		}
		return e, nil
	}

	if c, ok := geo.Normalize(raw); ok {
		e.Location = &c
	}
	return e, nil
}

// ParseJSON decodes a single JSON entity and parses it.
func ParseJSON(kind Kind, data []byte, receivedAt time.Time) (*Entity, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotAnObject, err)
	}
	return Parse(kind, raw, receivedAt)
}

func parseID(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		id = strings.TrimSpace(id)
		return id, id != ""
	case float64:
		if math.IsNaN(id) || math.IsInf(id, 0) {
			return "", false
		}
		if id == math.Trunc(id) && math.Abs(id) < 1<<53 {
			return strconv.FormatInt(int64(id), 10), true
		}
		return strconv.FormatFloat(id, 'f', -1, 64), true
	case int:
		return strconv.Itoa(id), true
	case int64:
		return strconv.FormatInt(id, 10), true
	case json.Number:
		return id.String(), id.String() != ""
	default:
		return "", false
	}
}

// parseTimestamp reads the first present timestamp key. Numbers are epoch
// milliseconds; strings are RFC3339, zone-less ISO-8601 (read as UTC) or
// numeric epoch milliseconds.
func parseTimestamp(raw map[string]any) (time.Time, bool) {
	for _, key := range timestampKeys {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		switch ts := v.(type) {
		case float64:
			if math.IsNaN(ts) || math.IsInf(ts, 0) {
				return time.Time{}, false
			}
			return time.UnixMilli(int64(ts)).UTC(), true
		case int64:
			return time.UnixMilli(ts).UTC(), true
		case int:
			return time.UnixMilli(int64(ts)).UTC(), true
		case json.Number:
			if ms, err := ts.Int64(); err == nil {
				return time.UnixMilli(ms).UTC(), true
			}
			return time.Time{}, false
		case string:
			return parseTimestampString(ts)
		default:
			return time.Time{}, false
		}
	}
	return time.Time{}, false
}

func parseTimestampString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}
