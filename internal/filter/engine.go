// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package filter

import (
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/patrolmap/internal/cache"
	"github.com/tomtom215/patrolmap/internal/metrics"
	"github.com/tomtom215/patrolmap/internal/models"
)

// Source is the read side of the entity store.
type Source interface {
	VersionedSnapshot(kind models.Kind) ([]*models.Entity, uint64)
}

// View is a filtered snapshot. Views are shared and immutable; the same
// inputs yield the same *View, so callers can compare pointers to skip
// work when nothing changed.
type View struct {
	Kind     models.Kind
	Query    Query
	Version  uint64
	Entities []*models.Entity

	// Total is the size of the unfiltered snapshot.
	Total int
}

// Keys returns the entity keys of the view in order.
func (v *View) Keys() []models.Key {
	out := make([]models.Key, len(v.Entities))
	for i, e := range v.Entities {
		out[i] = e.Key()
	}
	return out
}

// Engine memoizes views by kind, store version and query.
type Engine struct {
	src   Source
	cache *cache.LRU[*View]
}

// NewEngine creates a filter engine over src keeping up to capacity views
// for ttl.
func NewEngine(src Source, capacity int, ttl time.Duration) *Engine {
	return &Engine{
		src:   src,
		cache: cache.NewLRU[*View](capacity, ttl),
	}
}

// View returns the current filtered view of kind.
func (e *Engine) View(kind models.Kind, q Query) *View {
	q = q.Normalize()
	snapshot, version := e.src.VersionedSnapshot(kind)
	key := viewKey(kind, version, q)

	if v, ok := e.cache.Get(key); ok {
		metrics.RecordCacheLookup("filter", true)
		return v
	}
	metrics.RecordCacheLookup("filter", false)

	v := &View{
		Kind:     kind,
		Query:    q,
		Version:  version,
		Entities: Apply(snapshot, q),
		Total:    len(snapshot),
	}
	e.cache.Add(key, v)
	return v
}

// Invalidate drops every cached view of kind older than version.
func (e *Engine) Invalidate(kind models.Kind, version uint64) int {
	prefix := string(kind) + "|"
	return e.cache.RemoveFunc(func(key string) bool {
		if !strings.HasPrefix(key, prefix) {
			return false
		}
		rest := key[len(prefix):]
		end := strings.IndexByte(rest, '|')
		if end < 0 {
			return true
		}
		v, err := strconv.ParseUint(rest[:end], 10, 64)
		return err != nil || v < version
	})
}

// Len returns the number of cached views.
func (e *Engine) Len() int {
	return e.cache.Len()
}

// PurgeExpired drops views older than the cache TTL and returns how many
// were removed.
func (e *Engine) PurgeExpired() int {
	return e.cache.CleanupExpired()
}

func viewKey(kind models.Kind, version uint64, q Query) string {
	var b strings.Builder
	b.WriteString(string(kind))
	b.WriteByte('|')
	b.WriteString(strconv.FormatUint(version, 10))
	b.WriteByte('|')
	b.WriteString(q.Key())
	return b.String()
}
