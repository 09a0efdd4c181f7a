// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package rest

import (
	"context"
	"errors"
	"fmt"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/patrolmap/internal/config"
	"github.com/tomtom215/patrolmap/internal/logging"
	"github.com/tomtom215/patrolmap/internal/metrics"
	"github.com/tomtom215/patrolmap/internal/models"
	"github.com/tomtom215/patrolmap/internal/store"
)

// BreakerName is the circuit breaker label used in metrics and logs.
const BreakerName = "rest-api"

// BreakerClient wraps a Fetcher with the circuit breaker pattern.
//
// Only transport failures count against the breaker. Malformed bodies and
// canceled requests are treated as successes.
//
// The breaker uses real time (sony/gobreaker) for its interval and timeout.
// Tests that need deterministic behavior should exercise Client directly.
type BreakerClient struct {
	next Fetcher
	cb   *gobreaker.CircuitBreaker[store.Batch]
	name string
}

// NewBreakerClient creates a REST client with circuit breaker protection.
// Defaults:
// - 3 trial requests in half-open state
// - 1 minute measurement window
// - 2 minute timeout before attempting recovery
// - Opens after a 60% failure rate with at least 10 requests
func NewBreakerClient(cfg *config.RESTConfig) *BreakerClient {
	return newBreakerClient(BreakerName, NewClient(cfg), cfg)
}

func newBreakerClient(name string, next Fetcher, cfg *config.RESTConfig) *BreakerClient {
	// Initialize circuit breaker state metrics
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0) // 0 = closed
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)

	minRequests := cfg.BreakerMinRequests
	ratio := cfg.BreakerFailureRatio
	if ratio <= 0 {
		ratio = 0.6
	}

	cb := gobreaker.NewCircuitBreaker[store.Batch](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}

			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= ratio

			if shouldTrip {
				logging.Warn().Str("breaker", name).Uint32("failures", counts.TotalFailures).Float64("failure_rate", failureRatio*100).Msg("[CIRCUIT BREAKER] Opening circuit")
			}

			return shouldTrip
		},

		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || !errors.Is(err, ErrTransport)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)

			logging.Info().Str("breaker", name).Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()

			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},
	})

	return &BreakerClient{
		next: next,
		cb:   cb,
		name: name,
	}
}

// Fetch retrieves a collection with circuit breaker protection. While the
// circuit is open it fails fast with an error matching ErrCircuitOpen.
func (b *BreakerClient) Fetch(ctx context.Context, kind models.Kind) (store.Batch, error) {
	batch, err := b.cb.Execute(func() (store.Batch, error) {
		return b.next.Fetch(ctx, kind)
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
			logging.Warn().Str("breaker", b.name).Str("kind", kind.String()).Err(err).Msg("[CIRCUIT BREAKER] Request rejected")
			return store.Batch{}, &FetchError{Kind: kind, Err: fmt.Errorf("%w: %w", ErrCircuitOpen, err)}
		}

		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		counts := b.cb.Counts()
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(b.name).Set(float64(counts.ConsecutiveFailures))
		return store.Batch{}, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(b.name).Set(0)
	return batch, nil
}

// State returns the breaker state: closed, half-open or open.
func (b *BreakerClient) State() string {
	return stateToString(b.cb.State())
}

// stateToFloat converts circuit breaker state to numeric value for metrics
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// stateToString converts circuit breaker state to string for logging
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
