// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package filter

import (
	"sync"

	"github.com/tomtom215/patrolmap/internal/models"
)

// State holds one map session's filters and its selection. Each kind has
// its own query. At most one entity is selected across all kinds, so
// selecting an officer clears a selected incident and vice versa.
type State struct {
	mu       sync.Mutex
	queries  map[models.Kind]Query
	selected models.Key
	hasSel   bool
}

// NewState creates a state with every kind unfiltered.
func NewState() *State {
	s := &State{queries: make(map[models.Kind]Query, len(models.AllKinds))}
	for _, k := range models.AllKinds {
		s.queries[k] = All
	}
	return s
}

// SetQuery replaces the query of kind and reports whether it changed.
func (s *State) SetQuery(kind models.Kind, q Query) bool {
	q = q.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queries[kind] == q {
		return false
	}
	s.queries[kind] = q
	return true
}

// Query returns the normalized query of kind.
func (s *State) Query(kind models.Kind) Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.queries[kind]; ok {
		return q
	}
	return All
}

// Select makes key the selection and returns the previous one, if any.
func (s *State) Select(key models.Key) (prev models.Key, hadPrev bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, hadPrev = s.selected, s.hasSel
	s.selected, s.hasSel = key, true
	return prev, hadPrev
}

// Deselect clears the selection and returns what was selected.
func (s *State) Deselect() (prev models.Key, hadPrev bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, hadPrev = s.selected, s.hasSel
	s.selected, s.hasSel = models.Key{}, false
	return prev, hadPrev
}

// Selected returns the selected key.
func (s *State) Selected() (models.Key, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected, s.hasSel
}

// SelectedOf returns the selected id if the selection is of kind.
func (s *State) SelectedOf(kind models.Kind) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasSel || s.selected.Kind != kind {
		return "", false
	}
	return s.selected.ID, true
}
