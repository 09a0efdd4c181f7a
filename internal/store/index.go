// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package store

import (
	"github.com/tomtom215/patrolmap/internal/cache"
	"github.com/tomtom215/patrolmap/internal/geo"
	"github.com/tomtom215/patrolmap/internal/models"
)

// Nearby is one result of a proximity query.
type Nearby struct {
	Entity     *models.Entity `json:"entity"`
	DistanceKm float64        `json:"distance_km"`
}

// SpatialIndex mirrors the locatable records of a Store into a spatial hash
// grid. Routes are indexed at their first waypoint.
type SpatialIndex struct {
	store *Store
	grid  *cache.SpatialHashGrid
	stop  func()
}

// NewSpatialIndex indexes the current contents of s and follows its changes
// until Close is called.
func NewSpatialIndex(s *Store, cellSizeKm float64) *SpatialIndex {
	idx := &SpatialIndex{
		store: s,
		grid:  cache.NewSpatialHashGrid(cellSizeKm),
	}
	idx.stop = s.Subscribe(idx.apply)
	for _, k := range models.AllKinds {
		for _, e := range s.Snapshot(k) {
			idx.upsert(e)
		}
	}
	return idx
}

func (idx *SpatialIndex) apply(ch Change) {
	for _, id := range ch.Diff.Removed {
		idx.grid.Remove(models.Key{Kind: ch.Kind, ID: id}.String())
	}
	for _, ids := range [][]string{ch.Diff.Added, ch.Diff.Updated} {
		for _, id := range ids {
			if e, ok := idx.store.Get(ch.Kind, id); ok {
				idx.upsert(e)
			}
		}
	}
}

func (idx *SpatialIndex) upsert(e *models.Entity) {
	key := e.Key().String()
	anchor, ok := e.Anchor()
	if !ok || !e.Locatable() {
		idx.grid.Remove(key)
		return
	}
	idx.grid.Upsert(key, anchor, e)
}

// Nearby returns records within radiusKm of center, nearest first. An empty
// kinds list matches every kind.
func (idx *SpatialIndex) Nearby(center geo.Coordinate, radiusKm float64, kinds ...models.Kind) []Nearby {
	want := make(map[models.Kind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}

	entries := idx.grid.Nearby(center, radiusKm)
	out := make([]Nearby, 0, len(entries))
	for _, entry := range entries {
		e, ok := entry.Data.(*models.Entity)
		if !ok {
			continue
		}
		if len(want) > 0 && !want[e.Kind] {
			continue
		}
		out = append(out, Nearby{Entity: e, DistanceKm: entry.Distance})
	}
	return out
}

// Size returns the number of indexed records.
func (idx *SpatialIndex) Size() int {
	return idx.grid.Size()
}

// Close detaches the index from the store.
func (idx *SpatialIndex) Close() {
	idx.stop()
	idx.grid.Clear()
}
