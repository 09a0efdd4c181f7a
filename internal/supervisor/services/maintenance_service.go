// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package services

import (
	"context"
	"time"

	"github.com/tomtom215/patrolmap/internal/logging"
)

// MaintenanceTask is one periodic housekeeping job. It returns the number
// of items it cleaned up.
type MaintenanceTask func(ctx context.Context) int

// MaintenanceService runs a task on a fixed interval, for example purging
// expired filter views.
type MaintenanceService struct {
	name     string
	interval time.Duration
	task     MaintenanceTask
}

// NewMaintenanceService creates a periodic task service. A non-positive
// interval defaults to one minute.
func NewMaintenanceService(name string, interval time.Duration, task MaintenanceTask) *MaintenanceService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &MaintenanceService{name: name, interval: interval, task: task}
}

// Serve implements suture.Service.
func (m *MaintenanceService) Serve(ctx context.Context) error {
	log := logging.WithComponent(m.name)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := m.task(ctx); n > 0 {
				log.Debug().Int("removed", n).Msg("maintenance pass")
			}
		}
	}
}

// String names the service in suture events.
func (m *MaintenanceService) String() string {
	return m.name
}
