// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package websocket

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/patrolmap/internal/filter"
	"github.com/tomtom215/patrolmap/internal/logging"
	"github.com/tomtom215/patrolmap/internal/markers"
	"github.com/tomtom215/patrolmap/internal/store"
)

// ErrHubStopped is returned when a connection arrives after the hub has
// shut down.
var ErrHubStopped = errors.New("websocket hub stopped")

// ChangeSource notifies listeners of store changes. *store.Store
// implements it.
type ChangeSource interface {
	Subscribe(l store.Listener) (unsubscribe func())
}

// Sessions owns every open map session. It invalidates the shared filter
// engine on each store change and wakes the sessions showing that kind.
type Sessions struct {
	hub       *Hub
	engine    *filter.Engine
	refresher Refresher
	opts      markers.Options

	ctx    context.Context
	cancel context.CancelFunc
	stop   func()

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewSessions creates the session registry and starts following src.
func NewSessions(hub *Hub, src ChangeSource, engine *filter.Engine, refresher Refresher, opts markers.Options) *Sessions {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Sessions{
		hub:       hub,
		engine:    engine,
		refresher: refresher,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		sessions:  make(map[string]*Session),
	}
	s.stop = src.Subscribe(s.onChange)
	return s
}

func (s *Sessions) onChange(ch store.Change) {
	if n := s.engine.Invalidate(ch.Kind, ch.Diff.Version); n > 0 {
		logging.Trace().Str("kind", ch.Kind.String()).Int("views", n).Msg("filter views invalidated")
	}
	for _, sess := range s.list() {
		sess.markDirty(ch.Kind)
	}
}

// Open starts a session that renders through out. The session is closed
// by Close, by Sessions.Close, or when its connection ends.
func (s *Sessions) Open(out Sender) (*Session, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrHubStopped
	}
	sess := newSession(s.ctx, out, s.engine, s.refresher, s.opts)
	sess.onClose = s.remove
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	sess.start()
	return sess, nil
}

// Serve attaches an upgraded connection to the hub and to a new session.
func (s *Sessions) Serve(conn *websocket.Conn) (*Session, error) {
	client := NewClient(s.hub, conn, nil)
	sess, err := s.Open(client)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	client.SetHandler(sess)
	if !s.hub.register(client) {
		sess.Close()
		_ = conn.Close()
		return nil, ErrHubStopped
	}
	client.Start()
	return sess, nil
}

func (s *Sessions) remove(sess *Session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
}

// list returns the open sessions sorted by ID.
func (s *Sessions) list() []*Session {
	s.mu.Lock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Len returns the number of open sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close detaches from the store and closes every session. New sessions
// are refused afterwards.
func (s *Sessions) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.stop()
	s.cancel()
	for _, sess := range s.list() {
		sess.Close()
	}
	logging.Info().Msg("map sessions closed")
}
