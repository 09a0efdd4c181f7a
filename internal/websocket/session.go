// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package websocket

import (
	"context"
	"errors"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/patrolmap/internal/filter"
	"github.com/tomtom215/patrolmap/internal/geo"
	"github.com/tomtom215/patrolmap/internal/logging"
	"github.com/tomtom215/patrolmap/internal/markers"
	"github.com/tomtom215/patrolmap/internal/metrics"
	"github.com/tomtom215/patrolmap/internal/models"
	"github.com/tomtom215/patrolmap/internal/refresh"
	"github.com/tomtom215/patrolmap/internal/validation"
)

// Refresher triggers manual refreshes and reports sync status.
// *refresh.Manager implements it.
type Refresher interface {
	RefreshNow(ctx context.Context, kind models.Kind) (refresh.Result, error)
	Statuses() []refresh.Status
}

// Session is the server side of one browser map. It owns the filter state
// and marker manager of that map and reconciles them against the store
// whenever a kind changes or the user changes a filter.
//
// Reconciliation passes run on the session's own goroutine, one at a time,
// and always use the latest snapshot, so a burst of store changes costs at
// most one pass per kind.
type Session struct {
	id        string
	out       Sender
	engine    *filter.Engine
	refresher Refresher
	state     *filter.State
	markers   *markers.Manager
	log       zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	dirty   map[models.Kind]bool
	wake    chan struct{}
	results map[models.Kind]FilterResultData

	closeOnce sync.Once
	onClose   func(*Session)
}

func newSession(parent context.Context, out Sender, engine *filter.Engine, refresher Refresher, opts markers.Options) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		id:        uuid.NewString(),
		out:       out,
		engine:    engine,
		refresher: refresher,
		state:     filter.NewState(),
		ctx:       ctx,
		cancel:    cancel,
		dirty:     make(map[models.Kind]bool, len(models.AllKinds)),
		wake:      make(chan struct{}, 1),
		results:   make(map[models.Kind]FilterResultData, len(models.AllKinds)),
	}
	s.log = logging.WithComponent("map-session").With().Str("session_id", s.id).Logger()

	opts.Selector = s.state
	opts.OnNotice = s.sendNotice
	opts.OnSelection = s.sendSelection
	s.markers = markers.New(NewRenderer(out), opts)
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Markers returns the session's marker manager.
func (s *Session) Markers() *markers.Manager {
	return s.markers
}

// start announces the current sync status, queues a pass for every kind
// and begins waiting for a location fix.
func (s *Session) start() {
	metrics.MapSessions.Inc()
	if s.refresher != nil {
		for _, st := range s.refresher.Statuses() {
			s.send(MessageTypeSyncStatus, st)
		}
	}
	for _, k := range models.AllKinds {
		s.markDirty(k)
	}
	if err := s.markers.StartGeolocation(); err != nil {
		s.log.Debug().Err(err).Msg("geolocation not started")
	}

	s.wg.Add(1)
	go s.loop()
	s.log.Info().Msg("map session opened")
}

// markDirty queues a reconciliation pass for kind.
func (s *Session) markDirty(kind models.Kind) {
	s.mu.Lock()
	s.dirty[kind] = true
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Session) takeDirty() []models.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Kind, 0, len(s.dirty))
	for _, k := range models.AllKinds {
		if s.dirty[k] {
			out = append(out, k)
			delete(s.dirty, k)
		}
	}
	return out
}

func (s *Session) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		}
		for _, k := range s.takeDirty() {
			if s.ctx.Err() != nil {
				return
			}
			s.reconcile(k)
		}
	}
}

func (s *Session) reconcile(kind models.Kind) {
	q := s.state.Query(kind)
	view := s.engine.View(kind, q)
	stats, err := s.markers.Reconcile(view)
	if err != nil {
		if !errors.Is(err, markers.ErrDisposed) {
			s.log.Warn().Err(err).Str("kind", kind.String()).Msg("reconcile failed")
		}
		return
	}

	result := FilterResultData{
		Kind:   kind,
		Query:  view.Query.Text,
		Status: view.Query.Status,
		Shown:  len(view.Entities),
		Total:  view.Total,
	}
	s.mu.Lock()
	prev, seen := s.results[kind]
	s.results[kind] = result
	s.mu.Unlock()
	if !seen || prev != result {
		s.send(MessageTypeFilterResult, result)
	}

	if stats != (markers.Stats{}) {
		s.log.Debug().
			Str("kind", kind.String()).
			Int("created", stats.Created).
			Int("updated", stats.Updated).
			Int("removed", stats.Removed).
			Int("skipped", stats.Skipped).
			Msg("session reconciled")
	}
}

// HandleMessage dispatches one client message. It runs on the client's
// read goroutine.
func (s *Session) HandleMessage(msg Inbound) {
	if s.ctx.Err() != nil {
		return
	}

	switch msg.Type {
	case MessageTypeMapReady:
		if _, err := s.markers.MapReady(); err != nil {
			s.sendError("map_ready_failed", err.Error())
		}

	case MessageTypeSetFilter:
		var req setFilterRequest
		if !s.decode(msg, &req) {
			return
		}
		kind, _ := models.ParseKind(req.Kind)
		if s.state.SetQuery(kind, req.query()) {
			s.markDirty(kind)
		}

	case MessageTypeSelect:
		var req selectRequest
		if !s.decode(msg, &req) {
			return
		}
		kind, _ := models.ParseKind(req.Kind)
		if err := s.markers.Select(models.Key{Kind: kind, ID: req.ID}); err != nil {
			code := "select_failed"
			if errors.Is(err, markers.ErrNotRendered) {
				code = "not_rendered"
			}
			s.sendError(code, err.Error())
		}

	case MessageTypeDeselect:
		_ = s.markers.Deselect()

	case MessageTypeRefresh:
		var req refreshRequest
		if !s.decode(msg, &req) {
			return
		}
		kind, _ := models.ParseKind(req.Kind)
		s.refresh(kind)

	case MessageTypeFitBounds:
		_ = s.markers.FitAll()

	case MessageTypeGeolocation:
		var req geolocationRequest
		if !s.decode(msg, &req) {
			return
		}
		_ = s.markers.GeolocationFix(geo.Coordinate{Lat: req.Latitude, Lng: req.Longitude})

	case MessageTypeGeolocationError:
		var req geolocationErrorRequest
		if len(msg.Data) > 0 {
			_ = json.Unmarshal(msg.Data, &req)
		}
		_ = s.markers.GeolocationFailed(req.Message)

	default:
		s.sendError("unknown_type", "unknown message type "+msg.Type)
	}
}

// refresh runs a manual refresh off the read goroutine. Fetch failures
// reach every client as sync_error; only a refresh that could not start is
// reported here.
func (s *Session) refresh(kind models.Kind) {
	if s.refresher == nil {
		s.sendError("refresh_unavailable", "refresh is not available")
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, err := s.refresher.RefreshNow(s.ctx, kind)
		if errors.Is(err, refresh.ErrNotRunning) {
			s.sendError("refresh_unavailable", err.Error())
		}
	}()
}

func (s *Session) decode(msg Inbound, v interface{}) bool {
	if len(msg.Data) == 0 {
		s.sendError("invalid_request", msg.Type+" requires data")
		return false
	}
	if err := json.Unmarshal(msg.Data, v); err != nil {
		s.sendError("invalid_request", "malformed "+msg.Type+" data")
		return false
	}
	if verr := validation.ValidateStruct(v); verr != nil {
		s.sendError("invalid_request", verr.ToAPIError().Message)
		return false
	}
	return true
}

// Closed tears the session down when its connection ends.
func (s *Session) Closed() {
	s.Close()
}

// Close stops the session's goroutines and disposes its markers. It is
// safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
		s.markers.Dispose()
		metrics.MapSessions.Dec()
		if s.onClose != nil {
			s.onClose(s)
		}
		s.log.Info().Msg("map session closed")
	})
}

func (s *Session) send(msgType string, data interface{}) {
	if err := s.out.Send(Message{Type: msgType, Data: data}); err != nil {
		s.log.Debug().Err(err).Str("message_type", msgType).Msg("session send failed")
	}
}

func (s *Session) sendError(code, message string) {
	s.send(MessageTypeError, ErrorData{Code: code, Message: message})
}

func (s *Session) sendNotice(n markers.Notice) {
	s.send(MessageTypeNotice, n)
}

func (s *Session) sendSelection(key models.Key, selected bool) {
	s.send(MessageTypeSelection, SelectionData{Kind: key.Kind, ID: key.ID, Selected: selected})
}
