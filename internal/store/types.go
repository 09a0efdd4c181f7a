// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package store

import (
	"time"

	"github.com/tomtom215/patrolmap/internal/models"
)

// Batch is the normalized result of one full fetch for a kind.
type Batch struct {
	Kind     models.Kind
	Entities []*models.Entity

	// Received is the number of items in the response before parsing,
	// including any that were skipped as malformed.
	Received int

	// Authoritative marks a response that explicitly reported zero records.
	Authoritative bool

	// StartedAt is when the fetch request was issued. Pushes written at or
	// after this instant survive the batch even if it omits them.
	StartedAt time.Time
}

// Diff describes what a write did to a collection. Added, Updated and
// Removed are entity ids.
type Diff struct {
	Kind    models.Kind `json:"kind"`
	Added   []string    `json:"added,omitempty"`
	Updated []string    `json:"updated,omitempty"`
	Removed []string    `json:"removed,omitempty"`

	Unchanged int `json:"unchanged"`
	Stale     int `json:"stale"`
	Retained  int `json:"retained"`

	// Version is the collection version after the write.
	Version uint64 `json:"version"`
}

// Empty reports whether no record was added, updated or removed.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Updated) == 0 && len(d.Removed) == 0
}

// Source identifies the writer of a change.
type Source string

const (
	SourceRefresh Source = "refresh"
	SourcePush    Source = "push"
)

// Change is delivered to listeners after a write.
type Change struct {
	Kind   models.Kind
	Diff   Diff
	Source Source
}

// Listener observes store changes.
type Listener func(Change)

// MergeResult is the outcome of MergeOne.
type MergeResult int

const (
	MergeRejected MergeResult = iota
	MergeInserted
	MergeReplaced
	MergeUnchanged
	MergeStale
)

func (r MergeResult) String() string {
	switch r {
	case MergeInserted:
		return "inserted"
	case MergeReplaced:
		return "replaced"
	case MergeUnchanged:
		return "unchanged"
	case MergeStale:
		return "stale"
	default:
		return "rejected"
	}
}
