// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/patrolmap/internal/logging"
	"github.com/tomtom215/patrolmap/internal/metrics"
	"github.com/tomtom215/patrolmap/internal/models"
)

var (
	// ErrNotInitialized is returned by writes issued before Init.
	ErrNotInitialized = errors.New("store not initialized")

	// ErrDisposed is returned by writes issued after Dispose.
	ErrDisposed = errors.New("store disposed")

	// ErrEmptyBatch is returned when a refresh carried no usable entities.
	// The previous snapshot is kept.
	ErrEmptyBatch = errors.New("empty batch ignored")
)

type lifecycle int

const (
	stateNew lifecycle = iota
	stateRunning
	stateDisposed
)

// Options configures a Store.
type Options struct {
	// AllowAuthoritativeEmpty lets a batch flagged Authoritative with no
	// entities clear its collection. Off by default.
	AllowAuthoritativeEmpty bool

	// Now is the clock used to stamp push writes. Defaults to time.Now.
	Now func() time.Time

	Logger *logging.SyncLogger
}

type record struct {
	entity *models.Entity
	seq    uint64

	// pushedAt is when a push last inserted or replaced the record.
	pushedAt time.Time
}

type collection struct {
	records  map[string]*record
	version  uint64
	nextSeq  uint64
	snapshot []*models.Entity // nil when stale
}

func newCollection() *collection {
	return &collection{records: make(map[string]*record)}
}

// Store is the in-memory source of truth for every entity kind.
//
// Writers (ReplaceAll, MergeOne) are serialized so that each write, and the
// listener notifications it triggers, completes before the next write starts.
// Readers never block on listeners.
type Store struct {
	opts Options
	log  *logging.SyncLogger

	writeMu sync.Mutex

	mu          sync.RWMutex
	state       lifecycle
	collections map[models.Kind]*collection
	listeners   map[uint64]Listener
	nextID      uint64
}

// New creates a Store. It accepts no writes until Init is called.
func New(opts Options) *Store {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = logging.NewSyncLogger("store")
	}
	return &Store{
		opts:      opts,
		log:       log,
		listeners: make(map[uint64]Listener),
	}
}

// Init allocates the collections and starts accepting writes. Calling Init
// on a running store is a no-op; a disposed store cannot be reinitialized.
func (s *Store) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateRunning:
		return nil
	case stateDisposed:
		return ErrDisposed
	}

	s.collections = make(map[models.Kind]*collection, len(models.AllKinds))
	for _, k := range models.AllKinds {
		s.collections[k] = newCollection()
	}
	s.state = stateRunning
	return nil
}

// Dispose drops all records and listeners. Later writes return ErrDisposed
// and reads see empty collections.
func (s *Store) Dispose() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = stateDisposed
	s.collections = nil
	s.listeners = make(map[uint64]Listener)
}

// Subscribe registers l to be called after every write that changed a
// collection. Listeners run synchronously on the writer's goroutine, in
// write order, and must not write to the store. The returned func removes
// the listener.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.listeners[id] = l

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// writable returns the collection for kind while holding s.mu for writing.
func (s *Store) writable(kind models.Kind) (*collection, error) {
	switch s.state {
	case stateNew:
		return nil, ErrNotInitialized
	case stateDisposed:
		return nil, ErrDisposed
	}
	c, ok := s.collections[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownKind, kind)
	}
	return c, nil
}

// ReplaceAll applies a completed full fetch to its collection.
//
// Each entity passes the same stale-write guard as MergeOne, so a fetched
// record older than the stored one does not overwrite it. Stored records
// missing from the batch are removed unless a push wrote them at or after
// batch.StartedAt. A batch without entities is ignored with ErrEmptyBatch
// unless it is authoritative and the store allows authoritative empties.
func (s *Store) ReplaceAll(batch Batch) (Diff, error) {
	return s.ReplaceAllContext(context.Background(), batch)
}

// ReplaceAllContext is ReplaceAll with request-scoped logging fields.
func (s *Store) ReplaceAllContext(ctx context.Context, batch Batch) (Diff, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	start := time.Now()
	kind := batch.Kind.String()

	s.mu.Lock()
	c, err := s.writable(batch.Kind)
	if err != nil {
		s.mu.Unlock()
		return Diff{}, err
	}

	if len(batch.Entities) == 0 && !(batch.Authoritative && s.opts.AllowAuthoritativeEmpty) {
		s.mu.Unlock()
		s.log.LogEmptyBatch(ctx, kind, batch.Received)
		return Diff{Kind: batch.Kind, Version: c.version}, ErrEmptyBatch
	}

	diff := Diff{Kind: batch.Kind}
	order := dedupe(batch.Entities)

	seen := make(map[string]struct{}, len(order))
	reordered := false
	base := c.nextSeq
	for i, e := range order {
		seen[e.ID] = struct{}{}
		seq := base + uint64(i) + 1
		rec, exists := c.records[e.ID]
		if !exists {
			c.records[e.ID] = &record{entity: e, seq: seq}
			diff.Added = append(diff.Added, e.ID)
			continue
		}
		if rec.seq != seq {
			reordered = true
		}
		rec.seq = seq
		if isStale(rec.entity, e) {
			s.log.LogStaleWrite(kind, e.ID, rec.entity.LastUpdated, e.LastUpdated)
			diff.Stale++
			continue
		}
		if rec.entity.SameContent(e) {
			diff.Unchanged++
			continue
		}
		rec.entity = e
		diff.Updated = append(diff.Updated, e.ID)
	}
	c.nextSeq = base + uint64(len(order))

	// Survivors that the batch omitted keep their relative order after the
	// batch's records.
	omitted := make([]*record, 0)
	for id, rec := range c.records {
		if _, ok := seen[id]; ok {
			continue
		}
		if !rec.pushedAt.IsZero() && !rec.pushedAt.Before(batch.StartedAt) {
			omitted = append(omitted, rec)
			continue
		}
		delete(c.records, id)
		diff.Removed = append(diff.Removed, id)
	}
	sort.Slice(omitted, func(i, j int) bool { return omitted[i].seq < omitted[j].seq })
	for _, rec := range omitted {
		c.nextSeq++
		if rec.seq != c.nextSeq {
			reordered = true
		}
		rec.seq = c.nextSeq
	}
	diff.Retained = len(omitted)
	sort.Strings(diff.Removed)

	if !diff.Empty() || reordered {
		c.version++
		c.snapshot = nil
	}
	diff.Version = c.version
	total, unlocatable := c.counts()
	listeners := s.listenersLocked()
	s.mu.Unlock()

	metrics.RecordStoreWrite(kind, "replace", "inserted", len(diff.Added))
	metrics.RecordStoreWrite(kind, "replace", "replaced", len(diff.Updated))
	metrics.RecordStoreWrite(kind, "replace", "removed", len(diff.Removed))
	metrics.RecordStoreWrite(kind, "replace", "unchanged", diff.Unchanged)
	metrics.RecordStoreWrite(kind, "replace", "stale", diff.Stale)
	metrics.RecordStoreWrite(kind, "replace", "retained", diff.Retained)
	metrics.UpdateStoreGauges(kind, total, unlocatable, diff.Version)
	s.log.LogSnapshotReplaced(ctx, kind, len(diff.Added), len(diff.Updated), len(diff.Removed), time.Since(start))

	if !diff.Empty() || reordered {
		notify(listeners, Change{Kind: batch.Kind, Diff: diff, Source: SourceRefresh})
	}
	return diff, nil
}

// MergeOne applies a single pushed entity. A record with no stored
// counterpart is inserted. An existing record is replaced unless the
// incoming timestamp is older than the stored one; equal timestamps favor
// the incoming record. Merging the same record twice is a no-op.
func (s *Store) MergeOne(e *models.Entity) (MergeResult, error) {
	if e == nil || e.ID == "" {
		return MergeRejected, models.ErrMissingID
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	kind := e.Kind.String()

	s.mu.Lock()
	c, err := s.writable(e.Kind)
	if err != nil {
		s.mu.Unlock()
		return MergeRejected, err
	}

	now := s.opts.Now()
	diff := Diff{Kind: e.Kind}
	var result MergeResult

	rec, exists := c.records[e.ID]
	switch {
	case !exists:
		c.nextSeq++
		c.records[e.ID] = &record{entity: e, seq: c.nextSeq, pushedAt: now}
		diff.Added = []string{e.ID}
		result = MergeInserted
	case isStale(rec.entity, e):
		result = MergeStale
		diff.Stale = 1
	case rec.entity.SameContent(e) && (!e.Stamped || rec.entity.LastUpdated.Equal(e.LastUpdated)):
		result = MergeUnchanged
		diff.Unchanged = 1
	default:
		rec.entity = e
		rec.pushedAt = now
		diff.Updated = []string{e.ID}
		result = MergeReplaced
	}

	changed := result == MergeInserted || result == MergeReplaced
	if changed {
		c.version++
		c.snapshot = nil
	}
	diff.Version = c.version
	total, unlocatable := c.counts()
	var stored time.Time
	if exists {
		stored = rec.entity.LastUpdated
	}
	listeners := s.listenersLocked()
	s.mu.Unlock()

	metrics.RecordStoreWrite(kind, "merge", result.String(), 1)
	if result == MergeStale {
		s.log.LogStaleWrite(kind, e.ID, stored, e.LastUpdated)
	}
	if changed {
		metrics.UpdateStoreGauges(kind, total, unlocatable, diff.Version)
		notify(listeners, Change{Kind: e.Kind, Diff: diff, Source: SourcePush})
	}
	return result, nil
}

// Snapshot returns the current records of kind in display order: streamed
// kinds newest first, polled kinds in the order the backend listed them.
// The slice and its entities are shared and must not be modified.
func (s *Store) Snapshot(kind models.Kind) []*models.Entity {
	s.mu.RLock()
	c := s.collections[kind]
	if c == nil {
		s.mu.RUnlock()
		return nil
	}
	if snap := c.snapshot; snap != nil {
		s.mu.RUnlock()
		return snap
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	c = s.collections[kind]
	if c == nil {
		return nil
	}
	if c.snapshot == nil {
		c.snapshot = c.build(kind)
	}
	return c.snapshot
}

// VersionedSnapshot returns the snapshot together with the version it
// reflects.
func (s *Store) VersionedSnapshot(kind models.Kind) ([]*models.Entity, uint64) {
	for {
		v := s.Version(kind)
		snap := s.Snapshot(kind)
		if s.Version(kind) == v {
			return snap, v
		}
	}
}

// Get returns the stored record for (kind, id).
func (s *Store) Get(kind models.Kind, id string) (*models.Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := s.collections[kind]
	if c == nil {
		return nil, false
	}
	rec, ok := c.records[id]
	if !ok {
		return nil, false
	}
	return rec.entity, true
}

// Version returns the change counter of kind. It increases on every write
// that alters the collection or its order.
func (s *Store) Version(kind models.Kind) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c := s.collections[kind]; c != nil {
		return c.version
	}
	return 0
}

// Len returns the number of records held for kind.
func (s *Store) Len(kind models.Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c := s.collections[kind]; c != nil {
		return len(c.records)
	}
	return 0
}

// Counts returns the number of records per kind.
func (s *Store) Counts() map[models.Kind]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[models.Kind]int, len(s.collections))
	for k, c := range s.collections {
		out[k] = len(c.records)
	}
	return out
}

func (s *Store) listenersLocked() []Listener {
	if len(s.listeners) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]Listener, len(ids))
	for i, id := range ids {
		out[i] = s.listeners[id]
	}
	return out
}

func notify(listeners []Listener, ch Change) {
	for _, l := range listeners {
		l(ch)
	}
}

func (c *collection) build(kind models.Kind) []*models.Entity {
	recs := make([]*record, 0, len(c.records))
	for _, r := range c.records {
		recs = append(recs, r)
	}
	if kind.Streamed() {
		sort.Slice(recs, func(i, j int) bool {
			a, b := recs[i], recs[j]
			if !a.entity.LastUpdated.Equal(b.entity.LastUpdated) {
				return a.entity.LastUpdated.After(b.entity.LastUpdated)
			}
			return a.seq > b.seq
		})
	} else {
		sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })
	}
	out := make([]*models.Entity, len(recs))
	for i, r := range recs {
		out[i] = r.entity
	}
	return out
}

func (c *collection) counts() (total, unlocatable int) {
	for _, r := range c.records {
		if !r.entity.Locatable() {
			unlocatable++
		}
	}
	return len(c.records), unlocatable
}

// isStale reports whether incoming must not overwrite stored. Payload and
// receipt timestamps are compared alike, so LastUpdated never decreases.
func isStale(stored, incoming *models.Entity) bool {
	return incoming.LastUpdated.Before(stored.LastUpdated)
}

// dedupe keeps the last occurrence of each id at the position of its first.
func dedupe(entities []*models.Entity) []*models.Entity {
	index := make(map[string]int, len(entities))
	out := make([]*models.Entity, 0, len(entities))
	for _, e := range entities {
		if e == nil || e.ID == "" {
			continue
		}
		if i, ok := index[e.ID]; ok {
			out[i] = e
			continue
		}
		index[e.ID] = len(out)
		out = append(out, e)
	}
	return out
}
