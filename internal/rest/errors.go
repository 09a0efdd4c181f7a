// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package rest

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/patrolmap/internal/models"
)

var (
	// ErrTransport marks a fetch that never produced a usable response:
	// connection failures, timeouts and non-200 statuses.
	ErrTransport = errors.New("backend unreachable")

	// ErrMalformedPayload marks a response body that is neither a bare
	// array nor one of the recognized envelopes.
	ErrMalformedPayload = errors.New("malformed backend payload")

	// ErrCircuitOpen is returned without contacting the backend while the
	// circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker open")
)

// FetchError describes a failed fetch for one kind.
type FetchError struct {
	Kind       models.Kind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s from %s: HTTP %d: %v", e.Kind, e.URL, e.StatusCode, e.Err)
	}
	if e.URL == "" {
		return fmt.Sprintf("fetch %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s from %s: %v", e.Kind, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err is recovered by simply retrying on the
// next tick.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrCircuitOpen)
}

// Classify returns the metrics label for a fetch error.
func Classify(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ErrMalformedPayload):
		return "malformed"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "transport_error"
	}
}
