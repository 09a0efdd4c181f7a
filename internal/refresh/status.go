// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package refresh

import (
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/patrolmap/internal/models"
	"github.com/tomtom215/patrolmap/internal/store"
)

// Status is the sync state of one kind.
type Status struct {
	Kind     models.Kind `json:"kind"`
	Interval string      `json:"interval"`
	Running  bool        `json:"running"`
	InFlight bool        `json:"in_flight"`

	// Synced is true once any fetch for the kind got a response.
	Synced bool `json:"synced"`

	// Degraded is true when the last attempt failed or was ignored; the map
	// is showing the last-good snapshot.
	Degraded bool `json:"degraded"`

	LastAttempt         time.Time  `json:"last_attempt"`
	LastSuccess         time.Time  `json:"last_success"`
	LastError           string     `json:"last_error,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastDiff            DiffCounts `json:"last_diff"`
	Version             uint64     `json:"version"`
}

// DiffCounts summarizes the last applied refresh.
type DiffCounts struct {
	Added     int `json:"added"`
	Updated   int `json:"updated"`
	Removed   int `json:"removed"`
	Unchanged int `json:"unchanged"`
	Stale     int `json:"stale"`
	Retained  int `json:"retained"`
}

func countsOf(d store.Diff) DiffCounts {
	return DiffCounts{
		Added:     len(d.Added),
		Updated:   len(d.Updated),
		Removed:   len(d.Removed),
		Unchanged: d.Unchanged,
		Stale:     d.Stale,
		Retained:  d.Retained,
	}
}

// Result is the outcome of a manual refresh.
type Result struct {
	Diff store.Diff

	// Coalesced is true when the call joined a fetch that was already in
	// flight instead of starting its own.
	Coalesced bool
}

// Event is delivered to listeners after every fetch attempt that was
// applied, including failed ones. Err is nil on success.
type Event struct {
	Kind   models.Kind
	Diff   store.Diff
	Err    error
	Status Status
}

// Listener observes fetch attempts. Listeners run on the fetching
// goroutine and must not wait on RefreshNow for the same kind.
type Listener func(Event)

type listenerSet struct {
	mu     sync.RWMutex
	byID   map[uint64]Listener
	nextID uint64
}

func newListenerSet() *listenerSet {
	return &listenerSet{byID: make(map[uint64]Listener)}
}

func (ls *listenerSet) add(l Listener) func() {
	ls.mu.Lock()
	ls.nextID++
	id := ls.nextID
	ls.byID[id] = l
	ls.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			ls.mu.Lock()
			delete(ls.byID, id)
			ls.mu.Unlock()
		})
	}
}

func (ls *listenerSet) emit(ev Event) {
	ls.mu.RLock()
	ids := make([]uint64, 0, len(ls.byID))
	for id := range ls.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	listeners := make([]Listener, len(ids))
	for i, id := range ids {
		listeners[i] = ls.byID[id]
	}
	ls.mu.RUnlock()

	for _, l := range listeners {
		l(ev)
	}
}
