// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package refresh

import (
	"context"
	"fmt"
	"sync"

	"github.com/tomtom215/patrolmap/internal/config"
	"github.com/tomtom215/patrolmap/internal/logging"
	"github.com/tomtom215/patrolmap/internal/models"
	"github.com/tomtom215/patrolmap/internal/rest"
)

// Manager owns one Scheduler per entity kind.
//
// Lifecycle:
//   - NewManager(): build schedulers from RefreshConfig
//   - Start(): fetch every kind once, then poll on each kind's interval
//   - Stop(): cancel timers and in-flight fetches; no listener fires afterwards
//
// Start/Stop match services.StartStopManager so the manager runs under the
// supervisor tree via services.SyncService.
type Manager struct {
	schedulers map[models.Kind]*Scheduler
	listeners  *listenerSet

	mu      sync.Mutex
	running bool
}

// NewManager creates a refresh manager for every kind.
func NewManager(cfg config.RefreshConfig, fetcher rest.Fetcher, w Writer) *Manager {
	m := &Manager{
		schedulers: make(map[models.Kind]*Scheduler, len(models.AllKinds)),
		listeners:  newListenerSet(),
	}
	for _, k := range models.AllKinds {
		interval := cfg.IntervalFor(k.Slug())
		m.schedulers[k] = newScheduler(k, interval, cfg.FetchTimeout, fetcher, w, m.listeners)
	}

	logging.Info().
		Dur("officers", cfg.OfficersInterval).
		Dur("incidents", cfg.IncidentsInterval).
		Dur("vehicles", cfg.VehiclesInterval).
		Dur("routes", cfg.RoutesInterval).
		Msg("Refresh manager config loaded")

	return m
}

// Start begins polling every kind.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return ErrAlreadyRunning
	}

	started := make([]*Scheduler, 0, len(m.schedulers))
	for _, k := range models.AllKinds {
		s := m.schedulers[k]
		if err := s.start(ctx); err != nil {
			for _, prev := range started {
				prev.stop()
			}
			return err
		}
		started = append(started, s)
	}
	m.running = true
	return nil
}

// Stop halts every scheduler and waits for them.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	var wg sync.WaitGroup
	for _, s := range m.schedulers {
		wg.Add(1)
		go func(s *Scheduler) {
			defer wg.Done()
			s.stop()
		}(s)
	}
	wg.Wait()

	m.running = false
	return nil
}

// Running reports whether Start has been called without a matching Stop.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Scheduler returns the scheduler for kind.
func (m *Manager) Scheduler(kind models.Kind) (*Scheduler, bool) {
	s, ok := m.schedulers[kind]
	return s, ok
}

// RefreshNow triggers a coalesced refresh of kind.
func (m *Manager) RefreshNow(ctx context.Context, kind models.Kind) (Result, error) {
	s, ok := m.schedulers[kind]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", models.ErrUnknownKind, kind)
	}
	return s.RefreshNow(ctx)
}

// Statuses returns the status of every kind in display order.
func (m *Manager) Statuses() []Status {
	out := make([]Status, 0, len(models.AllKinds))
	for _, k := range models.AllKinds {
		out = append(out, m.schedulers[k].Status())
	}
	return out
}

// Ready reports whether every kind has received at least one response.
func (m *Manager) Ready() bool {
	for _, s := range m.schedulers {
		if !s.Status().Synced {
			return false
		}
	}
	return true
}

// Subscribe registers l for fetch events of every kind. The returned func
// removes the listener.
func (m *Manager) Subscribe(l Listener) (unsubscribe func()) {
	return m.listeners.add(l)
}
