// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package services

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/patrolmap/internal/logging"
)

func init() {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
}

// serveUntilCanceled runs svc, cancels it once ready reports true and
// returns the Serve result.
func serveUntilCanceled(t *testing.T, serve func(context.Context) error, ready func() bool) error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !ready() {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("service never became ready")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
		return nil
	}
}

type fakeManager struct {
	startErr error
	stopErr  error
	started  atomic.Int32
	stopped  atomic.Int32
}

func (f *fakeManager) Start(context.Context) error {
	f.started.Add(1)
	return f.startErr
}

func (f *fakeManager) Stop() error {
	f.stopped.Add(1)
	return f.stopErr
}

func TestRefreshService(t *testing.T) {
	t.Parallel()

	t.Run("start then stop on cancel", func(t *testing.T) {
		t.Parallel()
		m := &fakeManager{}
		svc := NewRefreshService(m)
		err := serveUntilCanceled(t, svc.Serve, func() bool { return m.started.Load() == 1 })
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
		if m.stopped.Load() != 1 {
			t.Errorf("Stop called %d times, want 1", m.stopped.Load())
		}
		if svc.String() != "refresh-manager" {
			t.Errorf("String() = %q", svc.String())
		}
	})

	t.Run("start failure is returned", func(t *testing.T) {
		t.Parallel()
		startErr := errors.New("already running")
		m := &fakeManager{startErr: startErr}
		if err := NewRefreshService(m).Serve(context.Background()); !errors.Is(err, startErr) {
			t.Errorf("Serve() = %v, want %v", err, startErr)
		}
		if m.stopped.Load() != 0 {
			t.Error("Stop called after failed Start")
		}
	})

	t.Run("stop failure is returned", func(t *testing.T) {
		t.Parallel()
		stopErr := errors.New("stuck")
		m := &fakeManager{stopErr: stopErr}
		err := serveUntilCanceled(t, NewRefreshService(m).Serve, func() bool { return m.started.Load() == 1 })
		if !errors.Is(err, stopErr) {
			t.Errorf("Serve() = %v, want %v", err, stopErr)
		}
	})
}

type fakeComponents struct {
	startErr    error
	running     atomic.Bool
	shutdowns   atomic.Int32
	hadDeadline atomic.Bool
}

func (f *fakeComponents) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.running.Store(true)
	return nil
}

func (f *fakeComponents) Shutdown(ctx context.Context) {
	_, ok := ctx.Deadline()
	f.hadDeadline.Store(ok && ctx.Err() == nil)
	f.shutdowns.Add(1)
	f.running.Store(false)
}

func (f *fakeComponents) IsRunning() bool { return f.running.Load() }

func TestRealtimeService(t *testing.T) {
	t.Parallel()

	t.Run("shutdown uses a fresh deadline", func(t *testing.T) {
		t.Parallel()
		c := &fakeComponents{}
		svc := NewRealtimeServiceWithTimeout(c, time.Second)
		err := serveUntilCanceled(t, svc.Serve, c.IsRunning)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
		if c.shutdowns.Load() != 1 || !c.hadDeadline.Load() {
			t.Errorf("shutdowns = %d, live deadline = %v", c.shutdowns.Load(), c.hadDeadline.Load())
		}
		if c.IsRunning() {
			t.Error("components still running")
		}
	})

	t.Run("start failure is returned for restart", func(t *testing.T) {
		t.Parallel()
		startErr := errors.New("nats: no servers available for connection")
		c := &fakeComponents{startErr: startErr}
		if err := NewRealtimeService(c).Serve(context.Background()); !errors.Is(err, startErr) {
			t.Errorf("Serve() = %v, want %v", err, startErr)
		}
		if c.shutdowns.Load() != 0 {
			t.Error("Shutdown called after failed Start")
		}
	})

	t.Run("default timeout", func(t *testing.T) {
		t.Parallel()
		if svc := NewRealtimeServiceWithTimeout(&fakeComponents{}, 0); svc.shutdownTimeout != 10*time.Second {
			t.Errorf("shutdownTimeout = %v, want 10s", svc.shutdownTimeout)
		}
	})
}

type fakeHub struct{ running atomic.Bool }

func (f *fakeHub) RunWithContext(ctx context.Context) error {
	f.running.Store(true)
	<-ctx.Done()
	f.running.Store(false)
	return ctx.Err()
}

type fakeSessions struct{ closed atomic.Int32 }

func (f *fakeSessions) Close() { f.closed.Add(1) }

func TestWebSocketHubService(t *testing.T) {
	t.Parallel()

	hub := &fakeHub{}
	sessions := &fakeSessions{}
	svc := NewWebSocketHubService(hub, sessions)

	err := serveUntilCanceled(t, svc.Serve, hub.running.Load)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
	if sessions.closed.Load() != 1 {
		t.Errorf("sessions closed %d times, want 1", sessions.closed.Load())
	}

	// Nil sessions are allowed.
	hub2 := &fakeHub{}
	if err := serveUntilCanceled(t, NewWebSocketHubService(hub2, nil).Serve, hub2.running.Load); !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() without sessions = %v", err)
	}
}

func TestMaintenanceService(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	svc := NewMaintenanceService("filter-cache-janitor", 5*time.Millisecond, func(context.Context) int {
		return int(runs.Add(1))
	})
	err := serveUntilCanceled(t, svc.Serve, func() bool { return runs.Load() >= 3 })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
	if svc.String() != "filter-cache-janitor" {
		t.Errorf("String() = %q", svc.String())
	}
	if d := NewMaintenanceService("x", 0, nil); d.interval != time.Minute {
		t.Errorf("default interval = %v, want 1m", d.interval)
	}
}
