// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package cache

import (
	"math"
	"sort"
	"sync"

	"github.com/tomtom215/patrolmap/internal/geo"
)

// SpatialHashGrid divides geographic space into square cells so that a
// proximity query only inspects the cells around the query point.
//
//   - Upsert: O(1)
//   - Remove: O(1) amortized
//   - Nearby: O(k) where k = entries in the inspected cells
type SpatialHashGrid struct {
	mu       sync.RWMutex
	cells    map[cellKey]*cell
	cellSize float64 // degrees
	entries  map[string]*SpatialEntry
}

type cellKey struct {
	X, Y int
}

type cell struct {
	entries []*SpatialEntry
}

// SpatialEntry is one indexed point.
type SpatialEntry struct {
	Key      string
	Coord    geo.Coordinate
	Data     any
	cellKey  cellKey
	Distance float64 // km, populated by Nearby
}

// NewSpatialHashGrid creates a grid with roughly cellSizeKm wide cells.
func NewSpatialHashGrid(cellSizeKm float64) *SpatialHashGrid {
	if cellSizeKm <= 0 {
		cellSizeKm = 1
	}
	// 1 degree is about 111km at the equator.
	return &SpatialHashGrid{
		cells:    make(map[cellKey]*cell),
		cellSize: cellSizeKm / 111.0,
		entries:  make(map[string]*SpatialEntry),
	}
}

func (g *SpatialHashGrid) keyFor(c geo.Coordinate) cellKey {
	return cellKey{
		X: int(math.Floor(c.Lng / g.cellSize)),
		Y: int(math.Floor(c.Lat / g.cellSize)),
	}
}

// Upsert indexes key at coord, replacing any previous position.
func (g *SpatialHashGrid) Upsert(key string, coord geo.Coordinate, data any) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.entries[key]; ok {
		g.removeFromCellUnlocked(existing)
	}

	ck := g.keyFor(coord)
	entry := &SpatialEntry{Key: key, Coord: coord, Data: data, cellKey: ck}

	c, exists := g.cells[ck]
	if !exists {
		c = &cell{entries: make([]*SpatialEntry, 0, 4)}
		g.cells[ck] = c
	}
	c.entries = append(c.entries, entry)
	g.entries[key] = entry
}

// Remove drops key from the grid. It reports whether the key was indexed.
func (g *SpatialHashGrid) Remove(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, exists := g.entries[key]
	if !exists {
		return false
	}
	g.removeFromCellUnlocked(entry)
	delete(g.entries, key)
	return true
}

func (g *SpatialHashGrid) removeFromCellUnlocked(entry *SpatialEntry) {
	c, exists := g.cells[entry.cellKey]
	if !exists {
		return
	}
	for i, e := range c.entries {
		if e.Key == entry.Key {
			c.entries[i] = c.entries[len(c.entries)-1]
			c.entries = c.entries[:len(c.entries)-1]
			break
		}
	}
	if len(c.entries) == 0 {
		delete(g.cells, entry.cellKey)
	}
}

// Get returns a copy of the entry for key.
func (g *SpatialHashGrid) Get(key string) (SpatialEntry, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	entry, exists := g.entries[key]
	if !exists {
		return SpatialEntry{}, false
	}
	return *entry, true
}

// Nearby returns copies of every entry within radiusKm of center, nearest
// first. The cell scan widens with latitude so that poleward queries do not
// miss entries in narrower longitude cells.
func (g *SpatialHashGrid) Nearby(center geo.Coordinate, radiusKm float64) []SpatialEntry {
	g.mu.RLock()
	defer g.mu.RUnlock()

	radiusDeg := radiusKm / 111.0
	spanY := int(math.Ceil(radiusDeg/g.cellSize)) + 1
	cosLat := math.Cos(center.Lat * math.Pi / 180)
	spanX := spanY
	if cosLat > 0.01 {
		spanX = int(math.Ceil(radiusDeg/cosLat/g.cellSize)) + 1
	}
	origin := g.keyFor(center)

	var results []SpatialEntry
	for dx := -spanX; dx <= spanX; dx++ {
		for dy := -spanY; dy <= spanY; dy++ {
			c, exists := g.cells[cellKey{X: origin.X + dx, Y: origin.Y + dy}]
			if !exists {
				continue
			}
			for _, entry := range c.entries {
				d := geo.DistanceKm(center, entry.Coord)
				if d <= radiusKm {
					found := *entry
					found.Distance = d
					results = append(results, found)
				}
			}
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Key < results[j].Key
	})
	return results
}

// Size returns the number of indexed entries.
func (g *SpatialHashGrid) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries)
}

// NumCells returns the number of non-empty cells.
func (g *SpatialHashGrid) NumCells() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.cells)
}

// Clear removes all entries.
func (g *SpatialHashGrid) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.cells = make(map[cellKey]*cell)
	g.entries = make(map[string]*SpatialEntry)
}
