// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package filter

import (
	"strings"

	"github.com/tomtom215/patrolmap/internal/models"
)

// Query selects a subset of one kind's snapshot.
type Query struct {
	// Text matches case-insensitively against the kind's searchable
	// fields. Empty matches everything.
	Text string `json:"query"`

	// Status keeps only entities with this status. ALL or empty disables
	// the status predicate.
	Status models.Status `json:"status"`
}

// All is the query that matches every entity.
var All = Query{Status: models.StatusAll}

// Normalize trims and lowercases the text and canonicalizes the status.
func (q Query) Normalize() Query {
	out := Query{
		Text:   strings.ToLower(strings.TrimSpace(q.Text)),
		Status: models.NormalizeStatus(string(q.Status)),
	}
	if out.Status == "" {
		out.Status = models.StatusAll
	}
	return out
}

// MatchesAll reports whether q keeps every entity.
func (q Query) MatchesAll() bool {
	q = q.Normalize()
	return q.Text == "" && q.Status == models.StatusAll
}

// Key is a stable string form of the normalized query.
func (q Query) Key() string {
	q = q.Normalize()
	return string(q.Status) + "|" + q.Text
}

// Match reports whether e satisfies q. q must be normalized.
func Match(e *models.Entity, q Query) bool {
	if q.Status != models.StatusAll && e.Status != q.Status {
		return false
	}
	if q.Text == "" {
		return true
	}
	for _, s := range e.SearchText() {
		if strings.Contains(s, q.Text) {
			return true
		}
	}
	return false
}

// Apply returns the entities of snapshot that match q, in snapshot order.
// The result is always a subset of snapshot; a match-all query returns
// snapshot itself.
func Apply(snapshot []*models.Entity, q Query) []*models.Entity {
	q = q.Normalize()
	if q.Text == "" && q.Status == models.StatusAll {
		return snapshot
	}

	out := make([]*models.Entity, 0, len(snapshot))
	for _, e := range snapshot {
		if Match(e, q) {
			out = append(out, e)
		}
	}
	return out
}
