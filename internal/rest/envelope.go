// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package rest

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/patrolmap/internal/logging"
	"github.com/tomtom215/patrolmap/internal/metrics"
	"github.com/tomtom215/patrolmap/internal/models"
	"github.com/tomtom215/patrolmap/internal/store"
)

// envelope covers the paginated shapes the backend answers with:
//
//	{"content": [...], "totalElements": n}
//	{"data": [...]}
//	{"data": {"content": [...], "totalElements": n}}
type envelope struct {
	Content       *[]json.RawMessage `json:"content"`
	TotalElements *int64             `json:"totalElements"`
	Data          json.RawMessage    `json:"data"`
}

// maxEnvelopeDepth bounds how many "data" wrappers are unwrapped.
const maxEnvelopeDepth = 2

// unwrap returns the raw items of a response body. authoritative is true
// only for a paginated envelope that explicitly reports zero elements.
func unwrap(body []byte) (items []json.RawMessage, authoritative bool, err error) {
	return unwrapDepth(body, 0)
}

func unwrapDepth(body []byte, depth int) ([]json.RawMessage, bool, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, false, fmt.Errorf("%w: empty body", ErrMalformedPayload)
	}

	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, false, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
		}
		return items, false, nil

	case '{':
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, false, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
		}
		if env.Content != nil {
			items := *env.Content
			authoritative := len(items) == 0 && env.TotalElements != nil && *env.TotalElements == 0
			return items, authoritative, nil
		}
		if len(env.Data) > 0 && depth < maxEnvelopeDepth {
			return unwrapDepth(env.Data, depth+1)
		}
		return nil, false, fmt.Errorf("%w: object without content or data", ErrMalformedPayload)
	}

	return nil, false, fmt.Errorf("%w: unexpected %q", ErrMalformedPayload, trimmed[0])
}

// decodeBatch normalizes a response body into a batch. Items that are not
// objects or carry no id are skipped; their siblings are kept.
func decodeBatch(kind models.Kind, body []byte, startedAt time.Time, log *logging.SyncLogger) (store.Batch, error) {
	items, authoritative, err := unwrap(body)
	if err != nil {
		return store.Batch{}, err
	}

	receivedAt := time.Now()
	batch := store.Batch{
		Kind:          kind,
		Entities:      make([]*models.Entity, 0, len(items)),
		Received:      len(items),
		Authoritative: authoritative,
		StartedAt:     startedAt,
	}

	var notObject, missingID, droppedWaypoints int
	for i, item := range items {
		e, perr := models.ParseJSON(kind, item, receivedAt)
		if perr != nil {
			reason := "not_object"
			if errors.Is(perr, models.ErrMissingID) {
				reason = "missing_id"
				missingID++
			} else {
				notObject++
			}
			log.LogEntitySkipped(kind.String(), fmt.Sprintf("#%d", i), reason)
			continue
		}
		if !e.Locatable() {
			log.LogEntitySkipped(kind.String(), e.ID, "unlocatable")
		}
		droppedWaypoints += e.DroppedWaypoints
		batch.Entities = append(batch.Entities, e)
	}

	metrics.RecordSkipped(kind.String(), "not_object", notObject)
	metrics.RecordSkipped(kind.String(), "missing_id", missingID)
	metrics.RecordSkipped(kind.String(), "invalid_waypoint", droppedWaypoints)

	return batch, nil
}
