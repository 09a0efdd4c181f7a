// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package cache

import (
	"testing"

	"github.com/tomtom215/patrolmap/internal/geo"
)

func TestSpatialHashGrid_UpsertAndNearby(t *testing.T) {
	t.Parallel()

	g := NewSpatialHashGrid(1)
	center := geo.Coordinate{Lat: 34.0522, Lng: -118.2437}

	g.Upsert("near", geo.Coordinate{Lat: 34.0530, Lng: -118.2440}, "a")
	g.Upsert("mid", geo.Coordinate{Lat: 34.0700, Lng: -118.2437}, "b")
	g.Upsert("far", geo.Coordinate{Lat: 37.7749, Lng: -122.4194}, "c")

	results := g.Nearby(center, 5)
	if len(results) != 2 {
		t.Fatalf("Nearby() returned %d entries, want 2", len(results))
	}
	if results[0].Key != "near" || results[1].Key != "mid" {
		t.Errorf("results not sorted by distance: %v, %v", results[0].Key, results[1].Key)
	}
	if results[0].Distance > results[1].Distance {
		t.Error("distances out of order")
	}
}

func TestSpatialHashGrid_UpsertMoves(t *testing.T) {
	t.Parallel()

	g := NewSpatialHashGrid(1)
	g.Upsert("car", geo.Coordinate{Lat: 0, Lng: 0}, nil)
	g.Upsert("car", geo.Coordinate{Lat: 10, Lng: 10}, nil)

	if g.Size() != 1 {
		t.Errorf("Size() = %d, want 1", g.Size())
	}
	if len(g.Nearby(geo.Coordinate{Lat: 0, Lng: 0}, 5)) != 0 {
		t.Error("old position should no longer match")
	}
	entry, ok := g.Get("car")
	if !ok || entry.Coord != (geo.Coordinate{Lat: 10, Lng: 10}) {
		t.Errorf("Get() = %+v, %v", entry, ok)
	}
	if g.NumCells() != 1 {
		t.Errorf("NumCells() = %d, want 1 (empty cell must be dropped)", g.NumCells())
	}
}

func TestSpatialHashGrid_Remove(t *testing.T) {
	t.Parallel()

	g := NewSpatialHashGrid(1)
	g.Upsert("a", geo.Coordinate{Lat: 1, Lng: 1}, nil)

	if !g.Remove("a") {
		t.Error("Remove() should report an indexed key")
	}
	if g.Remove("a") {
		t.Error("Remove() should report a missing key")
	}
	if g.Size() != 0 || g.NumCells() != 0 {
		t.Error("grid should be empty")
	}
}

func TestSpatialHashGrid_HighLatitude(t *testing.T) {
	t.Parallel()

	g := NewSpatialHashGrid(1)
	center := geo.Coordinate{Lat: 70, Lng: 20}
	// ~4km east at 70N spans several 1km longitude cells
	g.Upsert("east", geo.Coordinate{Lat: 70, Lng: 20.1}, nil)

	if len(g.Nearby(center, 5)) != 1 {
		t.Error("entry inside radius at high latitude was missed")
	}

	g.Clear()
	if g.Size() != 0 {
		t.Error("Clear() should remove all entries")
	}
}
