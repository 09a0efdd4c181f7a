// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package realtime

import (
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/patrolmap/internal/logging"
	"github.com/tomtom215/patrolmap/internal/metrics"
	"github.com/tomtom215/patrolmap/internal/models"
	"github.com/tomtom215/patrolmap/internal/store"
)

// SourceHTTP labels messages received on the HTTP push ingress.
const SourceHTTP = "http"

// Merger is the store operation a push message feeds.
type Merger interface {
	MergeOne(e *models.Entity) (store.MergeResult, error)
}

// Protocol applies push messages to the store, one entity per message.
//
// It has no connectivity state. Reconnects are the transport's job, and
// anything missed while disconnected is reconciled by the next refresh.
type Protocol struct {
	store Merger
	log   *logging.SyncLogger
	now   func() time.Time
}

// NewProtocol creates a merge protocol writing to m.
func NewProtocol(m Merger) *Protocol {
	return &Protocol{
		store: m,
		log:   logging.NewSyncLogger("realtime"),
		now:   time.Now,
	}
}

// OnMessage parses raw as an entity of kind and merges it. Re-delivering
// the same message is a no-op and returns store.MergeUnchanged.
func (p *Protocol) OnMessage(kind models.Kind, raw []byte) (store.MergeResult, error) {
	return p.OnMessageFrom(SourceHTTP, kind, raw)
}

// OnMessageFrom is OnMessage with the topic or source the message came
// from, used for logging.
func (p *Protocol) OnMessageFrom(source string, kind models.Kind, raw []byte) (store.MergeResult, error) {
	label := kind.String()

	if !kind.Valid() {
		err := fmt.Errorf("%w: %q", models.ErrUnknownKind, kind)
		metrics.RecordPush(label, "unknown_kind")
		p.log.LogMessageMalformed(label, source, err)
		return store.MergeRejected, err
	}

	e, err := models.ParseJSON(kind, raw, p.now())
	if err != nil {
		metrics.RecordPush(label, failureReason(err))
		p.log.LogMessageMalformed(label, source, err)
		return store.MergeRejected, err
	}

	if e.DroppedWaypoints > 0 {
		metrics.RecordSkipped(label, "invalid_waypoint", e.DroppedWaypoints)
	}
	if !e.Locatable() {
		p.log.LogEntitySkipped(label, e.ID, "unlocatable")
	}

	res, err := p.store.MergeOne(e)
	if err != nil {
		metrics.RecordPush(label, failureReason(err))
		return res, fmt.Errorf("merge %s %s: %w", label, e.ID, err)
	}

	metrics.RecordPush(label, "")
	logging.Debug().
		Str("kind", label).
		Str("id", e.ID).
		Str("source", source).
		Str("result", res.String()).
		Msg("push message applied")
	return res, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, models.ErrMissingID):
		return "missing_id"
	case errors.Is(err, models.ErrNotAnObject):
		return "malformed"
	case errors.Is(err, store.ErrDisposed), errors.Is(err, store.ErrNotInitialized):
		return "store_unavailable"
	default:
		return "other"
	}
}
