// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/tomtom215/patrolmap/internal/filter"
	"github.com/tomtom215/patrolmap/internal/geo"
	"github.com/tomtom215/patrolmap/internal/logging"
	"github.com/tomtom215/patrolmap/internal/models"
	"github.com/tomtom215/patrolmap/internal/refresh"
	"github.com/tomtom215/patrolmap/internal/store"
	"github.com/tomtom215/patrolmap/internal/validation"
)

const (
	defaultNearbyRadiusKm = 5.0
	defaultNearbyLimit    = 100
)

type listRequest struct {
	Query  string `param:"q" validate:"max=200"`
	Status string `param:"status" validate:"omitempty,statusfilter"`
}

// EntityList is the body of GET /api/v1/entities/{kind}.
type EntityList struct {
	Kind     models.Kind      `json:"kind"`
	Version  uint64           `json:"version"`
	Query    filter.Query     `json:"filter"`
	Entities []*models.Entity `json:"entities"`
}

// ListEntities returns the filtered list view of one kind. Unlocatable
// entities are included and carry locatable=false.
func (h *Handler) ListEntities(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	if h.deps.Views == nil {
		rw.ServiceUnavailable("entity views not configured")
		return
	}

	q := r.URL.Query()
	req := listRequest{Query: q.Get("q"), Status: q.Get("status")}
	if verr := validation.ValidateStruct(&req); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return
	}

	view := h.deps.Views.View(kind, filter.Query{Text: req.Query, Status: models.Status(req.Status)})
	entities := view.Entities
	if entities == nil {
		entities = []*models.Entity{}
	}
	rw.SuccessList(EntityList{
		Kind:     view.Kind,
		Version:  view.Version,
		Query:    view.Query,
		Entities: entities,
	}, len(entities), view.Total)
}

// RefreshResponse is the body of POST /api/v1/entities/{kind}/refresh.
type RefreshResponse struct {
	Kind      models.Kind `json:"kind"`
	Coalesced bool        `json:"coalesced"`
	Added     int         `json:"added"`
	Updated   int         `json:"updated"`
	Removed   int         `json:"removed"`
	Unchanged int         `json:"unchanged"`
	Stale     int         `json:"stale"`
	Retained  int         `json:"retained"`
	Version   uint64      `json:"version"`
}

// RefreshEntities triggers a manual refresh of one kind. Concurrent calls
// share the fetch already in flight.
func (h *Handler) RefreshEntities(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	if h.deps.Refresher == nil {
		rw.ServiceUnavailable("refresh manager not configured")
		return
	}

	res, err := h.deps.Refresher.RefreshNow(r.Context(), kind)
	switch {
	case errors.Is(err, refresh.ErrNotRunning):
		rw.ServiceUnavailable("refresh is not running")
		return
	case err != nil:
		logging.Ctx(r.Context()).Warn().Err(err).Str("kind", kind.String()).Msg("manual refresh failed")
		rw.ErrorWithDetails(http.StatusBadGateway, ErrCodeRefreshFailed, "refresh failed; the last good snapshot is kept",
			map[string]interface{}{"kind": kind, "error": err.Error()})
		return
	}

	d := res.Diff
	rw.Success(RefreshResponse{
		Kind:      kind,
		Coalesced: res.Coalesced,
		Added:     len(d.Added),
		Updated:   len(d.Updated),
		Removed:   len(d.Removed),
		Unchanged: d.Unchanged,
		Stale:     d.Stale,
		Retained:  d.Retained,
		Version:   d.Version,
	})
}

// PushResponse is the body of POST /api/v1/push/{kind}.
type PushResponse struct {
	Kind   models.Kind `json:"kind"`
	Result string      `json:"result"`
}

// PushEntity applies one entity posted by an upstream system, the HTTP
// equivalent of a broker push message.
func (h *Handler) PushEntity(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	if h.deps.Push == nil {
		rw.ServiceUnavailable("push ingress not configured")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxPushBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			rw.Error(http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return
		}
		rw.BadRequest(ErrCodeBadRequest, "failed to read request body")
		return
	}

	res, err := h.deps.Push.OnMessage(kind, body)
	switch {
	case errors.Is(err, models.ErrMissingID), errors.Is(err, models.ErrNotAnObject):
		rw.ErrorWithDetails(http.StatusBadRequest, ErrCodeMalformedEntity, "malformed entity",
			map[string]interface{}{"error": err.Error()})
		return
	case errors.Is(err, store.ErrDisposed), errors.Is(err, store.ErrNotInitialized):
		rw.ServiceUnavailable("entity store is not accepting writes")
		return
	case err != nil:
		rw.InternalError("failed to apply entity")
		return
	}

	rw.Accepted(PushResponse{Kind: kind, Result: res.String()})
}

type nearbyRequest struct {
	Lat      *float64 `param:"lat" validate:"required,gte=-90,lte=90"`
	Lng      *float64 `param:"lng" validate:"required,gte=-180,lte=180"`
	RadiusKm float64  `param:"radius_km" validate:"gt=0,lte=500"`
	Limit    int      `param:"limit" validate:"gte=1,lte=1000"`
}

// NearbyResponse is the body of GET /api/v1/nearby.
type NearbyResponse struct {
	Center   geo.Coordinate `json:"center"`
	RadiusKm float64        `json:"radius_km"`
	Results  []store.Nearby `json:"results"`
}

// Nearby returns locatable entities within radius_km of lat/lng, nearest
// first. kind takes a comma-separated list and defaults to every kind.
func (h *Handler) Nearby(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.deps.Index == nil {
		rw.ServiceUnavailable("spatial index not configured")
		return
	}

	q := r.URL.Query()
	req := nearbyRequest{RadiusKm: defaultNearbyRadiusKm, Limit: defaultNearbyLimit}
	var parseErr error
	req.Lat, parseErr = optionalFloat(q.Get("lat"), parseErr)
	req.Lng, parseErr = optionalFloat(q.Get("lng"), parseErr)
	if v := q.Get("radius_km"); v != "" && parseErr == nil {
		req.RadiusKm, parseErr = strconv.ParseFloat(v, 64)
	}
	if v := q.Get("limit"); v != "" && parseErr == nil {
		req.Limit, parseErr = strconv.Atoi(v)
	}
	if parseErr != nil {
		rw.BadRequest(ErrCodeBadRequest, "lat, lng, radius_km and limit must be numbers")
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return
	}

	var kinds []models.Kind
	if raw := q.Get("kind"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			kind, err := models.ParseKind(part)
			if err != nil {
				rw.ErrorWithDetails(http.StatusBadRequest, ErrCodeUnknownKind, "unknown entity kind",
					map[string]interface{}{"kind": part})
				return
			}
			kinds = append(kinds, kind)
		}
	}

	center := geo.Coordinate{Lat: *req.Lat, Lng: *req.Lng}
	results := h.deps.Index.Nearby(center, req.RadiusKm, kinds...)
	total := len(results)
	if len(results) > req.Limit {
		results = results[:req.Limit]
	}
	if results == nil {
		results = []store.Nearby{}
	}
	rw.SuccessList(NearbyResponse{
		Center:   center,
		RadiusKm: req.RadiusKm,
		Results:  results,
	}, len(results), total)
}

func optionalFloat(s string, prev error) (*float64, error) {
	if prev != nil || s == "" {
		return nil, prev
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
