// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package services

import (
	"context"
	"fmt"
	"time"
)

// ComponentsRunner is the lifecycle of realtime.Components: the embedded
// broker (optional) and the push subscriber.
type ComponentsRunner interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context)
	IsRunning() bool
}

// RealtimeService runs the push channel under suture.
//
// Start failures are returned so suture restarts the service with
// backoff. A broker that is unreachable at boot is retried this way while
// the refresh schedulers keep the map current.
type RealtimeService struct {
	components      ComponentsRunner
	shutdownTimeout time.Duration
	name            string
}

// NewRealtimeService wraps components with a 10s shutdown timeout.
func NewRealtimeService(components ComponentsRunner) *RealtimeService {
	return NewRealtimeServiceWithTimeout(components, 10*time.Second)
}

// NewRealtimeServiceWithTimeout wraps components with a custom shutdown
// timeout.
func NewRealtimeServiceWithTimeout(components ComponentsRunner, shutdownTimeout time.Duration) *RealtimeService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &RealtimeService{
		components:      components,
		shutdownTimeout: shutdownTimeout,
		name:            "realtime-components",
	}
}

// Serve implements suture.Service.
func (s *RealtimeService) Serve(ctx context.Context) error {
	if err := s.components.Start(ctx); err != nil {
		return fmt.Errorf("realtime components start failed: %w", err)
	}

	<-ctx.Done()

	// ctx is already canceled.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	s.components.Shutdown(shutdownCtx)

	return ctx.Err()
}

// String names the service in suture events.
func (s *RealtimeService) String() string {
	return s.name
}
