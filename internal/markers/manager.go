// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package markers

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/patrolmap/internal/config"
	"github.com/tomtom215/patrolmap/internal/filter"
	"github.com/tomtom215/patrolmap/internal/geo"
	"github.com/tomtom215/patrolmap/internal/logging"
	"github.com/tomtom215/patrolmap/internal/metrics"
	"github.com/tomtom215/patrolmap/internal/models"
)

// State is the lifecycle state of a Manager.
type State string

const (
	// StateLoading means the map SDK has not reported ready. Reconciliation
	// requests are recorded and applied on MapReady.
	StateLoading  State = "LOADING"
	StateReady    State = "READY"
	StateDisposed State = "DISPOSED"
)

var (
	// ErrNotRendered is returned when selecting an entity with no live
	// marker or polyline.
	ErrNotRendered = errors.New("entity not rendered")

	// ErrDisposed is returned by every operation after Dispose.
	ErrDisposed = errors.New("marker manager disposed")
)

// Selector holds the single selection of the map. *filter.State
// implements it.
type Selector interface {
	Select(key models.Key) (prev models.Key, hadPrev bool)
	Deselect() (prev models.Key, hadPrev bool)
	Selected() (models.Key, bool)
}

// Notice is a dismissible, non-fatal message for the user.
type Notice struct {
	Level   string `json:"level"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Options configures a Manager.
type Options struct {
	DefaultCenter          geo.Coordinate
	DefaultZoom            int
	FitBoundsOnFirstRender bool

	// GeolocationTimeout bounds the wait for a location fix after
	// StartGeolocation. Zero waits forever.
	GeolocationTimeout time.Duration

	// Selector stores the selection. Nil uses a private filter.State.
	Selector Selector

	// OnNotice and OnSelection are called with the manager's lock held and
	// must not call back into the manager.
	OnNotice    func(Notice)
	OnSelection func(key models.Key, selected bool)
}

// OptionsFromConfig builds Options from the map section.
func OptionsFromConfig(cfg config.MapConfig) Options {
	return Options{
		DefaultCenter:          geo.Coordinate{Lat: cfg.DefaultLatitude, Lng: cfg.DefaultLongitude},
		DefaultZoom:            cfg.DefaultZoom,
		FitBoundsOnFirstRender: cfg.FitBoundsOnFirstRender,
		GeolocationTimeout:     cfg.GeolocationTimeout,
	}
}

// Stats counts what one reconciliation pass did.
type Stats struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Removed   int `json:"removed"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
}

func (s *Stats) add(o Stats) {
	s.Created += o.Created
	s.Updated += o.Updated
	s.Removed += o.Removed
	s.Unchanged += o.Unchanged
	s.Skipped += o.Skipped
}

// liveItem is one rendered marker or polyline.
type liveItem struct {
	handle   Handle
	entity   *models.Entity
	polyline bool

	coord     geo.Coordinate
	waypoints []geo.Coordinate
	icon      Icon
	style     LineStyle
}

// Manager keeps a renderer's markers equal to the filtered views it is
// given. Each marker goes ABSENT -> VISIBLE -> (UPDATED)* -> REMOVED and
// keeps its handle for its whole life.
//
// Thread Safety: every method takes mu, so passes never interleave.
type Manager struct {
	mu   sync.Mutex
	r    Renderer
	opts Options
	sel  Selector
	log  zerolog.Logger

	state   State
	live    map[models.Key]*liveItem
	applied map[models.Kind]*filter.View
	pending map[models.Kind]*filter.View

	overlay    Handle
	hasOverlay bool
	fitted     bool
	passErrors int

	pendingCenter *geo.Coordinate
	geoTimer      *time.Timer
	geoWaiting    bool
}

// New creates a manager in the LOADING state.
func New(r Renderer, opts Options) *Manager {
	sel := opts.Selector
	if sel == nil {
		sel = filter.NewState()
	}
	return &Manager{
		r:       r,
		opts:    opts,
		sel:     sel,
		log:     logging.WithComponent("markers"),
		state:   StateLoading,
		live:    make(map[models.Key]*liveItem),
		applied: make(map[models.Kind]*filter.View),
		pending: make(map[models.Kind]*filter.View),
	}
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// MapReady moves the manager to READY and applies the latest recorded
// view of every kind.
func (m *Manager) MapReady() (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateDisposed:
		return Stats{}, ErrDisposed
	case StateReady:
		return Stats{}, nil
	}
	m.state = StateReady

	if m.pendingCenter != nil {
		m.setCenterLocked(*m.pendingCenter)
		m.pendingCenter = nil
	}

	var total Stats
	for _, k := range models.AllKinds {
		if v := m.pending[k]; v != nil {
			total.add(m.reconcileLocked(v))
			delete(m.pending, k)
		}
	}
	m.maybeFitLocked()

	m.log.Debug().Int("live", len(m.live)).Msg("map ready")
	return total, nil
}

// Reconcile makes the live markers of view.Kind equal to the renderable
// entities of view. Entities without a valid coordinate, and routes with
// fewer than two valid waypoints, are not rendered. Passing the view that
// was last applied is a no-op.
func (m *Manager) Reconcile(view *filter.View) (Stats, error) {
	if view == nil {
		return Stats{}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateDisposed:
		return Stats{}, ErrDisposed
	case StateLoading:
		m.pending[view.Kind] = view
		return Stats{}, nil
	}

	if m.applied[view.Kind] == view {
		return Stats{}, nil
	}

	stats := m.reconcileLocked(view)
	m.maybeFitLocked()
	return stats, nil
}

func (m *Manager) reconcileLocked(view *filter.View) Stats {
	start := time.Now()
	defer func() { metrics.ReconcileDuration.Observe(time.Since(start).Seconds()) }()

	var stats Stats
	m.passErrors = 0
	next := make(map[models.Key]*models.Entity, len(view.Entities))
	for _, e := range view.Entities {
		if !e.Locatable() {
			stats.Skipped++
			continue
		}
		next[e.Key()] = e
	}

	// K_old - K_new
	for _, key := range m.keysOfLocked(view.Kind) {
		if _, keep := next[key]; !keep {
			m.removeLocked(key, m.live[key])
			stats.Removed++
		}
	}

	for _, e := range view.Entities {
		key := e.Key()
		if next[key] != e {
			continue
		}
		if item, ok := m.live[key]; ok {
			if m.updateLocked(key, item, e) {
				stats.Updated++
			} else {
				stats.Unchanged++
			}
			continue
		}
		if m.createLocked(key, e) {
			stats.Created++
		}
	}

	// A failed renderer call is retried by the next pass, even for the same view.
	if m.passErrors == 0 {
		m.applied[view.Kind] = view
	} else {
		delete(m.applied, view.Kind)
	}

	m.log.Debug().
		Str("kind", view.Kind.String()).
		Int("created", stats.Created).
		Int("updated", stats.Updated).
		Int("removed", stats.Removed).
		Int("skipped", stats.Skipped).
		Msg("reconciled")
	return stats
}

func (m *Manager) createLocked(key models.Key, e *models.Entity) bool {
	item := &liveItem{entity: e}
	var err error

	if e.Kind == models.KindRoute {
		item.polyline = true
		item.waypoints = e.Waypoints
		item.style = RouteStyle(e)
		item.handle, err = m.r.DrawPolyline(key, item.waypoints, item.style)
	} else {
		item.coord = *e.Location
		item.icon = IconFor(e)
		item.handle, err = m.r.CreateMarker(key, item.coord, item.icon)
	}

	if err != nil {
		m.rendererError("create", key, err)
		return false
	}

	m.live[key] = item
	metrics.MarkersLive.Inc()
	metrics.RecordMarkerOp("create")
	return true
}

// updateLocked changes a live item in place when its coordinate or style
// differ and reports whether a marker or polyline call was made. The
// selection overlay is refreshed whenever the entity moved or its content
// changed.
func (m *Manager) updateLocked(key models.Key, item *liveItem, e *models.Entity) bool {
	changed := !item.entity.SameContent(e)
	item.entity = e

	if item.polyline {
		style := RouteStyle(e)
		moved := !sameCoords(item.waypoints, e.Waypoints)
		if !moved && style == item.style {
			if changed {
				m.followSelectionLocked(key, item)
			}
			return false
		}
		if err := m.r.UpdatePolyline(item.handle, e.Waypoints, style); err != nil {
			m.rendererError("update", key, err)
			return false
		}
		item.waypoints = e.Waypoints
		item.style = style
		metrics.RecordMarkerOp("update")
		if moved || changed {
			m.followSelectionLocked(key, item)
		}
		return true
	}

	coord := *e.Location
	icon := IconFor(e)
	var coordArg *geo.Coordinate
	var iconArg *Icon
	if coord != item.coord {
		coordArg = &coord
	}
	if icon != item.icon {
		iconArg = &icon
	}
	if coordArg == nil && iconArg == nil {
		if changed {
			m.followSelectionLocked(key, item)
		}
		return false
	}

	if err := m.r.UpdateMarker(item.handle, coordArg, iconArg); err != nil {
		m.rendererError("update", key, err)
		return false
	}
	item.coord = coord
	item.icon = icon
	metrics.RecordMarkerOp("update")
	if coordArg != nil || changed {
		m.followSelectionLocked(key, item)
	}
	return true
}

func (m *Manager) removeLocked(key models.Key, item *liveItem) {
	if sel, ok := m.sel.Selected(); ok && sel == key {
		m.clearSelectionLocked()
	}

	var err error
	if item.polyline {
		err = m.r.RemovePolyline(item.handle)
	} else {
		err = m.r.RemoveMarker(item.handle)
	}
	if err != nil {
		m.rendererError("remove", key, err)
	}

	delete(m.live, key)
	metrics.MarkersLive.Dec()
	metrics.RecordMarkerOp("remove")
}

// Select selects the rendered entity key, deselecting whatever was
// selected before, and opens its info overlay.
func (m *Manager) Select(key models.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateDisposed {
		return ErrDisposed
	}
	item, ok := m.live[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRendered, key)
	}

	prev, hadPrev := m.sel.Select(key)
	if hadPrev && prev == key && m.hasOverlay {
		return nil
	}

	m.closeOverlayLocked()
	if hadPrev && prev != key && m.opts.OnSelection != nil {
		m.opts.OnSelection(prev, false)
	}
	m.openOverlayLocked(key, item)
	if m.opts.OnSelection != nil {
		m.opts.OnSelection(key, true)
	}
	return nil
}

// Deselect clears the selection and closes the overlay.
func (m *Manager) Deselect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateDisposed {
		return ErrDisposed
	}
	m.clearSelectionLocked()
	return nil
}

// Selected returns the selected key.
func (m *Manager) Selected() (models.Key, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sel.Selected()
}

func (m *Manager) clearSelectionLocked() {
	m.closeOverlayLocked()
	prev, had := m.sel.Deselect()
	if had && m.opts.OnSelection != nil {
		m.opts.OnSelection(prev, false)
	}
}

func (m *Manager) openOverlayLocked(key models.Key, item *liveItem) {
	anchor, ok := item.entity.Anchor()
	if !ok {
		return
	}
	h, err := m.r.CreateOverlay(anchor, item.entity)
	if err != nil {
		m.rendererError("overlay_open", key, err)
		return
	}
	m.overlay, m.hasOverlay = h, true
	metrics.RecordMarkerOp("overlay_open")
}

func (m *Manager) closeOverlayLocked() {
	if !m.hasOverlay {
		return
	}
	if err := m.r.CloseOverlay(m.overlay); err != nil {
		m.log.Warn().Err(err).Str("handle", string(m.overlay)).Msg("renderer failed to close overlay")
	}
	m.overlay, m.hasOverlay = "", false
	metrics.RecordMarkerOp("overlay_close")
}

// followSelectionLocked reopens the overlay of the selected item so it
// shows the current anchor and content.
func (m *Manager) followSelectionLocked(key models.Key, item *liveItem) {
	if sel, ok := m.sel.Selected(); !ok || sel != key || !m.hasOverlay {
		return
	}
	m.closeOverlayLocked()
	m.openOverlayLocked(key, item)
}

// FitAll fits the viewport to every live coordinate. While loading it
// re-arms the first-render fit instead.
func (m *Manager) FitAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateDisposed:
		return ErrDisposed
	case StateLoading:
		m.fitted = false
		return nil
	}
	m.fitLocked()
	return nil
}

func (m *Manager) maybeFitLocked() {
	if m.fitted || !m.opts.FitBoundsOnFirstRender || len(m.live) == 0 {
		return
	}
	m.fitLocked()
}

func (m *Manager) fitLocked() {
	coords := m.coordsLocked()
	if len(coords) == 0 {
		return
	}
	if err := m.r.FitBounds(coords); err != nil {
		m.log.Warn().Err(err).Msg("renderer failed to fit bounds")
		return
	}
	m.fitted = true
	metrics.RecordMarkerOp("fit_bounds")
}

// coordsLocked returns every live coordinate in key order.
func (m *Manager) coordsLocked() []geo.Coordinate {
	keys := m.sortedKeysLocked()
	coords := make([]geo.Coordinate, 0, len(keys))
	for _, key := range keys {
		item := m.live[key]
		if item.polyline {
			coords = append(coords, item.waypoints...)
		} else {
			coords = append(coords, item.coord)
		}
	}
	return coords
}

// StartGeolocation begins waiting for a browser location fix. If none
// arrives within the configured timeout the map centers on the default.
func (m *Manager) StartGeolocation() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateDisposed {
		return ErrDisposed
	}
	m.stopGeolocationLocked()
	m.geoWaiting = true
	if m.opts.GeolocationTimeout > 0 {
		m.geoTimer = time.AfterFunc(m.opts.GeolocationTimeout, m.geolocationTimedOut)
	}
	return nil
}

// GeolocationFix centers the map on a reported location. An invalid fix
// falls back to the default center.
func (m *Manager) GeolocationFix(coord geo.Coordinate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateDisposed {
		return ErrDisposed
	}
	m.stopGeolocationLocked()
	if !coord.Valid() {
		m.fallbackLocked("geolocation_invalid", "Reported location is invalid; showing the default area")
		return nil
	}
	m.setCenterLocked(coord)
	return nil
}

// GeolocationFailed falls back to the default center with a warning.
func (m *Manager) GeolocationFailed(reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateDisposed {
		return ErrDisposed
	}
	m.stopGeolocationLocked()
	msg := "Location unavailable; showing the default area"
	if reason != "" {
		msg = fmt.Sprintf("Location unavailable (%s); showing the default area", reason)
	}
	m.fallbackLocked("geolocation_error", msg)
	return nil
}

func (m *Manager) geolocationTimedOut() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateDisposed || !m.geoWaiting {
		return
	}
	m.geoWaiting = false
	m.geoTimer = nil
	m.fallbackLocked("geolocation_timeout", "Location request timed out; showing the default area")
}

func (m *Manager) stopGeolocationLocked() {
	if m.geoTimer != nil {
		m.geoTimer.Stop()
		m.geoTimer = nil
	}
	m.geoWaiting = false
}

func (m *Manager) fallbackLocked(code, msg string) {
	m.log.Warn().Str("code", code).Msg(msg)
	m.setCenterLocked(m.opts.DefaultCenter)
	if m.opts.OnNotice != nil {
		m.opts.OnNotice(Notice{Level: "warning", Code: code, Message: msg})
	}
}

func (m *Manager) setCenterLocked(coord geo.Coordinate) {
	if m.state == StateLoading {
		c := coord
		m.pendingCenter = &c
		return
	}
	if err := m.r.SetCenter(coord, m.opts.DefaultZoom); err != nil {
		m.log.Warn().Err(err).Msg("renderer failed to set center")
		return
	}
	metrics.RecordMarkerOp("set_center")
}

// Dispose removes every live marker and polyline, closes the overlay and
// cancels the geolocation wait. The manager cannot be used afterwards.
func (m *Manager) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateDisposed {
		return
	}
	m.stopGeolocationLocked()
	m.closeOverlayLocked()
	m.sel.Deselect()

	for _, key := range m.sortedKeysLocked() {
		item := m.live[key]
		var err error
		if item.polyline {
			err = m.r.RemovePolyline(item.handle)
		} else {
			err = m.r.RemoveMarker(item.handle)
		}
		if err != nil {
			m.log.Debug().Err(err).Str("key", key.String()).Msg("renderer failed to remove on dispose")
		}
		delete(m.live, key)
		metrics.MarkersLive.Dec()
	}

	m.state = StateDisposed
	m.pending = make(map[models.Kind]*filter.View)
	m.applied = make(map[models.Kind]*filter.View)
	m.pendingCenter = nil
	m.log.Debug().Msg("marker manager disposed")
}

// Live returns the keys of every live marker and polyline, sorted.
func (m *Manager) Live() []models.Key {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedKeysLocked()
}

// Handle returns the renderer handle of a live key.
func (m *Manager) Handle(key models.Key) (Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.live[key]
	if !ok {
		return "", false
	}
	return item.handle, true
}

func (m *Manager) keysOfLocked(kind models.Kind) []models.Key {
	keys := make([]models.Key, 0)
	for key := range m.live {
		if key.Kind == kind {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].ID < keys[j].ID })
	return keys
}

func (m *Manager) sortedKeysLocked() []models.Key {
	keys := make([]models.Key, 0, len(m.live))
	for key := range m.live {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Kind != keys[j].Kind {
			return keys[i].Kind < keys[j].Kind
		}
		return keys[i].ID < keys[j].ID
	})
	return keys
}

func (m *Manager) rendererError(op string, key models.Key, err error) {
	m.passErrors++
	metrics.RecordMarkerOp("error")
	m.log.Warn().Err(err).Str("op", op).Str("key", key.String()).Msg("renderer call failed")
}

func sameCoords(a, b []geo.Coordinate) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
