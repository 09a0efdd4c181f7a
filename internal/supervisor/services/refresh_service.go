// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package services

import (
	"context"
	"fmt"
)

// StartStopManager is the lifecycle of refresh.Manager.
//
// Start launches one scheduler per kind and returns; Stop cancels them and
// waits for in-flight fetches to be discarded.
type StartStopManager interface {
	Start(ctx context.Context) error
	Stop() error
}

// RefreshService runs the refresh schedulers under suture.
//
//	mgr := refresh.NewManager(cfg.Refresh, client, entityStore)
//	tree.AddRefresh(mgr) // wraps services.NewRefreshService
type RefreshService struct {
	manager StartStopManager
	name    string
}

// NewRefreshService creates a new refresh service wrapper.
func NewRefreshService(manager StartStopManager) *RefreshService {
	return &RefreshService{
		manager: manager,
		name:    "refresh-manager",
	}
}

// Serve implements suture.Service. A failed Start is returned so suture
// retries it with backoff.
func (s *RefreshService) Serve(ctx context.Context) error {
	if err := s.manager.Start(ctx); err != nil {
		return fmt.Errorf("refresh manager start failed: %w", err)
	}

	<-ctx.Done()

	if err := s.manager.Stop(); err != nil {
		return fmt.Errorf("refresh manager stop failed: %w", err)
	}
	return ctx.Err()
}

// String names the service in suture events.
func (s *RefreshService) String() string {
	return s.name
}
