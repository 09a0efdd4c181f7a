// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/patrolmap/internal/filter"
	"github.com/tomtom215/patrolmap/internal/geo"
	"github.com/tomtom215/patrolmap/internal/markers"
	"github.com/tomtom215/patrolmap/internal/models"
	"github.com/tomtom215/patrolmap/internal/refresh"
	"github.com/tomtom215/patrolmap/internal/store"
)

// outbox is a Sender that records every message.
type outbox struct {
	mu   sync.Mutex
	msgs []Message
}

func (o *outbox) Send(msg Message) error {
	o.mu.Lock()
	o.msgs = append(o.msgs, msg)
	o.mu.Unlock()
	return nil
}

func (o *outbox) ofType(msgType string) []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []Message
	for _, m := range o.msgs {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

// waitFor polls until n messages of msgType have been sent.
func (o *outbox) waitFor(t *testing.T, msgType string, n int) []Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		got := o.ofType(msgType)
		if len(got) >= n {
			return got
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %d %s messages, want %d", len(got), msgType, n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type fakeRefresher struct {
	mu    sync.Mutex
	kinds []models.Kind
	err   error
}

func (f *fakeRefresher) RefreshNow(_ context.Context, kind models.Kind) (refresh.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = append(f.kinds, kind)
	return refresh.Result{}, f.err
}

func (f *fakeRefresher) Statuses() []refresh.Status {
	out := make([]refresh.Status, 0, len(models.AllKinds))
	for _, k := range models.AllKinds {
		out = append(out, refresh.Status{Kind: k})
	}
	return out
}

func (f *fakeRefresher) calls() []models.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Kind(nil), f.kinds...)
}

type fixture struct {
	store     *store.Store
	sessions  *Sessions
	refresher *fakeRefresher
}

func newFixture(t *testing.T, hub *Hub) *fixture {
	t.Helper()
	s := store.New(store.Options{})
	if err := s.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(s.Dispose)

	r := &fakeRefresher{}
	opts := markers.Options{DefaultCenter: geo.Coordinate{Lat: 34.05, Lng: -118.24}, DefaultZoom: 12}
	sessions := NewSessions(hub, s, filter.NewEngine(s, 64, time.Minute), r, opts)
	t.Cleanup(sessions.Close)
	return &fixture{store: s, sessions: sessions, refresher: r}
}

func (f *fixture) merge(t *testing.T, kind models.Kind, raw map[string]any) {
	t.Helper()
	e, err := models.Parse(kind, raw, time.Now())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if _, err := f.store.MergeOne(e); err != nil {
		t.Fatalf("MergeOne() error = %v", err)
	}
}

func inbound(t *testing.T, msgType string, data any) Inbound {
	t.Helper()
	msg := Inbound{Type: msgType}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			t.Fatal(err)
		}
		msg.Data = raw
	}
	return msg
}

func TestSession_LoadingThenMapReady(t *testing.T) {
	t.Parallel()

	f := newFixture(t, NewHub())
	f.merge(t, models.KindOfficer, map[string]any{"id": "o-1", "status": "ON_DUTY", "lat": 34.05, "lng": -118.24})

	out := &outbox{}
	sess, err := f.sessions.Open(out)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if got := len(out.waitFor(t, MessageTypeSyncStatus, len(models.AllKinds))); got != len(models.AllKinds) {
		t.Errorf("sync_status messages = %d", got)
	}
	out.waitFor(t, MessageTypeFilterResult, len(models.AllKinds))
	if len(out.ofType(MessageTypeMarkerCreate)) != 0 {
		t.Fatal("render commands sent before map_ready")
	}

	sess.HandleMessage(inbound(t, MessageTypeMapReady, nil))
	created := out.waitFor(t, MessageTypeMarkerCreate, 1)
	data := created[0].Data.(MarkerCreateData)
	if data.Kind != models.KindOfficer || data.ID != "o-1" || data.Handle == "" {
		t.Errorf("marker_create = %+v", data)
	}

	// A push after the map is ready is rendered by the session loop.
	f.merge(t, models.KindOfficer, map[string]any{"id": "o-2", "status": "ON_BREAK", "lat": 34.06, "lng": -118.25})
	out.waitFor(t, MessageTypeMarkerCreate, 2)
}

func TestSession_FilterRemovesAndRestoresMarkers(t *testing.T) {
	t.Parallel()

	f := newFixture(t, NewHub())
	f.merge(t, models.KindOfficer, map[string]any{"id": "o-1", "status": "ON_DUTY", "lat": 34.05, "lng": -118.24, "name": "Alice"})
	f.merge(t, models.KindOfficer, map[string]any{"id": "o-2", "status": "ON_DUTY", "lat": 34.06, "lng": -118.25, "name": "Bob"})

	out := &outbox{}
	sess, _ := f.sessions.Open(out)
	sess.HandleMessage(inbound(t, MessageTypeMapReady, nil))
	out.waitFor(t, MessageTypeMarkerCreate, 2)

	sess.HandleMessage(inbound(t, MessageTypeSetFilter, map[string]any{"kind": "officers", "query": "ali"}))
	out.waitFor(t, MessageTypeMarkerRemove, 1)

	results := out.waitFor(t, MessageTypeFilterResult, len(models.AllKinds)+1)
	var last FilterResultData
	for _, m := range results {
		if d := m.Data.(FilterResultData); d.Kind == models.KindOfficer {
			last = d
		}
	}
	if last.Query != "ali" || last.Shown != 1 || last.Total != 2 {
		t.Errorf("filter_result = %+v", last)
	}

	sess.HandleMessage(inbound(t, MessageTypeSetFilter, map[string]any{"kind": "OFFICER", "query": ""}))
	out.waitFor(t, MessageTypeMarkerCreate, 3)
}

func TestSession_Selection(t *testing.T) {
	t.Parallel()

	f := newFixture(t, NewHub())
	f.merge(t, models.KindIncident, map[string]any{"id": "inc-1", "status": "REPORTED", "lat": 34.05, "lng": -118.24})

	out := &outbox{}
	sess, _ := f.sessions.Open(out)
	sess.HandleMessage(inbound(t, MessageTypeMapReady, nil))
	out.waitFor(t, MessageTypeMarkerCreate, 1)

	sess.HandleMessage(inbound(t, MessageTypeSelect, map[string]any{"kind": "incidents", "id": "inc-1"}))
	open := out.waitFor(t, MessageTypeOverlayOpen, 1)[0].Data.(OverlayOpenData)
	if open.Content == nil || open.Content.ID != "inc-1" {
		t.Errorf("overlay_open = %+v", open)
	}
	sel := out.waitFor(t, MessageTypeSelection, 1)[0].Data.(SelectionData)
	if sel != (SelectionData{Kind: models.KindIncident, ID: "inc-1", Selected: true}) {
		t.Errorf("selection = %+v", sel)
	}

	sess.HandleMessage(inbound(t, MessageTypeSelect, map[string]any{"kind": "vehicles", "id": "ghost"}))
	errs := out.waitFor(t, MessageTypeError, 1)
	if code := errs[0].Data.(ErrorData).Code; code != "not_rendered" {
		t.Errorf("error code = %s, want not_rendered", code)
	}

	sess.HandleMessage(inbound(t, MessageTypeDeselect, nil))
	closed := out.waitFor(t, MessageTypeOverlayClose, 1)[0].Data.(HandleData)
	if closed.Handle != open.Handle {
		t.Errorf("closed %s, want %s", closed.Handle, open.Handle)
	}
}

func TestSession_InvalidRequests(t *testing.T) {
	t.Parallel()

	f := newFixture(t, NewHub())
	out := &outbox{}
	sess, _ := f.sessions.Open(out)

	tests := []struct {
		name string
		msg  Inbound
	}{
		{"unknown type", inbound(t, "teleport", nil)},
		{"missing data", inbound(t, MessageTypeSetFilter, nil)},
		{"unknown kind", inbound(t, MessageTypeSetFilter, map[string]any{"kind": "dragons"})},
		{"malformed data", Inbound{Type: MessageTypeSelect, Data: []byte(`"nope"`)}},
		{"missing id", inbound(t, MessageTypeSelect, map[string]any{"kind": "officers"})},
		{"bad status", inbound(t, MessageTypeSetFilter, map[string]any{"kind": "officers", "status": "on duty!"})},
	}
	for i, tt := range tests {
		sess.HandleMessage(tt.msg)
		if got := out.waitFor(t, MessageTypeError, i+1); len(got) != i+1 {
			t.Errorf("%s: %d errors", tt.name, len(got))
		}
	}
}

func TestSession_RefreshAndGeolocation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, NewHub())
	out := &outbox{}
	sess, _ := f.sessions.Open(out)
	sess.HandleMessage(inbound(t, MessageTypeMapReady, nil))

	sess.HandleMessage(inbound(t, MessageTypeRefresh, map[string]any{"kind": "alerts"}))
	deadline := time.Now().Add(2 * time.Second)
	for len(f.refresher.calls()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if calls := f.refresher.calls(); len(calls) != 1 || calls[0] != models.KindIncident {
		t.Errorf("refresh calls = %v, want [INCIDENT]", calls)
	}

	sess.HandleMessage(inbound(t, MessageTypeGeolocation, map[string]any{"latitude": 40.7, "longitude": -74.0}))
	center := out.waitFor(t, MessageTypeSetCenter, 1)[0].Data.(SetCenterData)
	if center.Coord != (geo.Coordinate{Lat: 40.7, Lng: -74.0}) || center.Zoom != 12 {
		t.Errorf("set_center = %+v", center)
	}

	sess.HandleMessage(inbound(t, MessageTypeGeolocationError, map[string]any{"message": "denied"}))
	center = out.waitFor(t, MessageTypeSetCenter, 2)[1].Data.(SetCenterData)
	if center.Coord != (geo.Coordinate{Lat: 34.05, Lng: -118.24}) {
		t.Errorf("fallback center = %+v", center.Coord)
	}
	notice := out.waitFor(t, MessageTypeNotice, 1)[0].Data.(markers.Notice)
	if notice.Code != "geolocation_error" {
		t.Errorf("notice = %+v", notice)
	}
}

func TestSessions_CloseDisposesMarkers(t *testing.T) {
	t.Parallel()

	f := newFixture(t, NewHub())
	f.merge(t, models.KindVehicle, map[string]any{"id": "v-1", "status": "ACTIVE", "lat": 34.05, "lng": -118.24})

	out := &outbox{}
	sess, _ := f.sessions.Open(out)
	sess.HandleMessage(inbound(t, MessageTypeMapReady, nil))
	out.waitFor(t, MessageTypeMarkerCreate, 1)

	f.sessions.Close()
	out.waitFor(t, MessageTypeMarkerRemove, 1)
	if sess.Markers().State() != markers.StateDisposed {
		t.Errorf("State() = %s", sess.Markers().State())
	}
	if f.sessions.Len() != 0 {
		t.Errorf("Len() = %d after Close", f.sessions.Len())
	}
	if _, err := f.sessions.Open(&outbox{}); err == nil {
		t.Error("Open() after Close should fail")
	}

	// Changes after close reach no session.
	f.merge(t, models.KindVehicle, map[string]any{"id": "v-2", "status": "ACTIVE", "lat": 34.0, "lng": -118.0})
	time.Sleep(20 * time.Millisecond)
	if n := len(out.ofType(MessageTypeMarkerCreate)); n != 1 {
		t.Errorf("marker_create after close = %d", n)
	}
}

func TestServe_EndToEnd(t *testing.T) {
	t.Parallel()

	hub, _ := startHub(t)
	f := newFixture(t, hub)
	f.merge(t, models.KindOfficer, map[string]any{"id": "o-1", "status": "ON_DUTY", "lat": 34.05, "lng": -118.24})

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_, _ = f.sessions.Serve(conn)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	send := func(v map[string]any) {
		t.Helper()
		if err := conn.WriteJSON(v); err != nil {
			t.Fatalf("WriteJSON() error = %v", err)
		}
	}
	readUntil := func(msgType string) map[string]any {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		for {
			var msg struct {
				Type string         `json:"type"`
				Data map[string]any `json:"data"`
			}
			if err := conn.ReadJSON(&msg); err != nil {
				t.Fatalf("waiting for %s: %v", msgType, err)
			}
			if msg.Type == msgType {
				return msg.Data
			}
		}
	}

	send(map[string]any{"type": "ping"})
	readUntil(MessageTypePong)

	send(map[string]any{"type": "map_ready"})
	created := readUntil(MessageTypeMarkerCreate)
	if created["id"] != "o-1" || created["kind"] != "OFFICER" {
		t.Errorf("marker_create = %v", created)
	}
	coord, _ := created["coord"].(map[string]any)
	if coord["lat"] != 34.05 {
		t.Errorf("coord = %v", created["coord"])
	}
	if f.sessions.Len() != 1 {
		t.Errorf("Len() = %d", f.sessions.Len())
	}

	_ = conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for f.sessions.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session not closed after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
