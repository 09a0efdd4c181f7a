// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package refresh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/patrolmap/internal/config"
	"github.com/tomtom215/patrolmap/internal/logging"
	"github.com/tomtom215/patrolmap/internal/models"
	"github.com/tomtom215/patrolmap/internal/rest"
	"github.com/tomtom215/patrolmap/internal/store"
)

func init() {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
}

// fakeFetcher answers every Fetch with respond and counts calls per kind.
type fakeFetcher struct {
	mu      sync.Mutex
	calls   map[models.Kind]int
	respond func(ctx context.Context, kind models.Kind, call int) (store.Batch, error)
}

func newFakeFetcher(respond func(ctx context.Context, kind models.Kind, call int) (store.Batch, error)) *fakeFetcher {
	return &fakeFetcher{calls: make(map[models.Kind]int), respond: respond}
}

func (f *fakeFetcher) Fetch(ctx context.Context, kind models.Kind) (store.Batch, error) {
	f.mu.Lock()
	f.calls[kind]++
	call := f.calls[kind]
	f.mu.Unlock()
	return f.respond(ctx, kind, call)
}

func (f *fakeFetcher) Calls(kind models.Kind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[kind]
}

// batchOf builds a batch of kind with one entity per id.
func batchOf(kind models.Kind, ids ...string) store.Batch {
	b := store.Batch{Kind: kind, Received: len(ids), StartedAt: time.Now()}
	for _, id := range ids {
		e, err := models.Parse(kind, map[string]any{"id": id, "lat": 34.05, "lng": -118.24}, time.Now())
		if err != nil {
			panic(err)
		}
		b.Entities = append(b.Entities, e)
	}
	return b
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s := store.New(store.Options{})
	if err := s.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(s.Dispose)
	return s
}

func intervals(d time.Duration) config.RefreshConfig {
	return config.RefreshConfig{
		OfficersInterval:  d,
		IncidentsInterval: d,
		VehiclesInterval:  d,
		RoutesInterval:    d,
		FetchTimeout:      time.Second,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// eventLog records listener events.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) add(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) forKind(kind models.Kind) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, ev := range l.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func TestManager_InitialFetchAndReady(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	f := newFakeFetcher(func(_ context.Context, kind models.Kind, _ int) (store.Batch, error) {
		return batchOf(kind, "a-1"), nil
	})
	m := NewManager(intervals(time.Hour), f, st)

	if m.Ready() {
		t.Fatal("Ready() before Start should be false")
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	waitFor(t, "every kind synced", m.Ready)

	for _, k := range models.AllKinds {
		if st.Len(k) != 1 {
			t.Errorf("store.Len(%s) = %d, want 1", k, st.Len(k))
		}
	}
	for _, s := range m.Statuses() {
		if !s.Running || s.Degraded || s.LastSuccess.IsZero() {
			t.Errorf("status %s = %+v, want running, healthy, with a success time", s.Kind, s)
		}
		if s.LastDiff.Added != 1 {
			t.Errorf("status %s LastDiff.Added = %d, want 1", s.Kind, s.LastDiff.Added)
		}
	}

	if err := m.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}
}

func TestScheduler_CoalescesManualRefresh(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	started := make(chan struct{}, 8)
	release := make(chan struct{})
	f := newFakeFetcher(func(_ context.Context, kind models.Kind, _ int) (store.Batch, error) {
		if kind == models.KindOfficer {
			started <- struct{}{}
			<-release
		}
		return batchOf(kind, "o-1"), nil
	})
	m := NewManager(intervals(time.Hour), f, st)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	<-started // initial officer fetch is now in flight

	const callers = 3
	results := make(chan Result, callers)
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			res, err := m.RefreshNow(context.Background(), models.KindOfficer)
			results <- res
			errs <- err
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)

	for i := 0; i < callers; i++ {
		if err := <-errs; err != nil {
			t.Errorf("RefreshNow() error = %v", err)
		}
		if res := <-results; !res.Coalesced {
			t.Error("RefreshNow() during an in-flight fetch should be coalesced")
		}
	}

	if got := f.Calls(models.KindOfficer); got != 1 {
		t.Errorf("officer fetches = %d, want 1", got)
	}
}

func TestScheduler_RefreshNowAppliesDiff(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	f := newFakeFetcher(func(_ context.Context, kind models.Kind, call int) (store.Batch, error) {
		if kind == models.KindIncident && call > 1 {
			return batchOf(kind, "i-1", "i-2"), nil
		}
		return batchOf(kind, "i-1"), nil
	})
	m := NewManager(intervals(time.Hour), f, st)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	waitFor(t, "every kind synced", m.Ready)

	res, err := m.RefreshNow(context.Background(), models.KindIncident)
	if err != nil {
		t.Fatalf("RefreshNow() error = %v", err)
	}
	if res.Coalesced {
		t.Error("RefreshNow() with nothing in flight should not be coalesced")
	}
	if len(res.Diff.Added) != 1 || res.Diff.Added[0] != "i-2" {
		t.Errorf("Diff.Added = %v, want [i-2]", res.Diff.Added)
	}
	if res.Diff.Unchanged != 1 {
		t.Errorf("Diff.Unchanged = %d, want 1", res.Diff.Unchanged)
	}
}

func TestScheduler_FailureKeepsSnapshotAndTimerRuns(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	f := newFakeFetcher(func(_ context.Context, kind models.Kind, call int) (store.Batch, error) {
		if kind == models.KindVehicle && call > 1 {
			return store.Batch{}, &rest.FetchError{Kind: kind, Err: fmt.Errorf("%w: connection refused", rest.ErrTransport)}
		}
		return batchOf(kind, "v-1"), nil
	})
	log := &eventLog{}
	m := NewManager(intervals(20*time.Millisecond), f, st)
	m.Subscribe(log.add)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	waitFor(t, "three vehicle fetches", func() bool { return f.Calls(models.KindVehicle) >= 3 })
	waitFor(t, "three vehicle events", func() bool { return len(log.forKind(models.KindVehicle)) >= 3 })

	if st.Len(models.KindVehicle) != 1 {
		t.Errorf("store.Len(VEHICLE) = %d, the last-good snapshot should be kept", st.Len(models.KindVehicle))
	}

	s, _ := m.Scheduler(models.KindVehicle)
	status := s.Status()
	if !status.Degraded {
		t.Error("status should be degraded after a failed fetch")
	}
	if status.ConsecutiveFailures < 2 {
		t.Errorf("ConsecutiveFailures = %d, want >= 2", status.ConsecutiveFailures)
	}
	if !strings.Contains(status.LastError, "connection refused") {
		t.Errorf("LastError = %q", status.LastError)
	}
	if !status.Synced {
		t.Error("an earlier success should keep Synced")
	}

	events := log.forKind(models.KindVehicle)
	if events[0].Err != nil {
		t.Errorf("first event error = %v, want nil", events[0].Err)
	}
	if !rest.IsTransport(events[1].Err) {
		t.Errorf("second event error = %v, want transport error", events[1].Err)
	}
}

func TestScheduler_EmptyBatchIsDegradedNotFatal(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	f := newFakeFetcher(func(_ context.Context, kind models.Kind, call int) (store.Batch, error) {
		if call > 1 {
			return store.Batch{Kind: kind, StartedAt: time.Now()}, nil
		}
		return batchOf(kind, "r-1"), nil
	})
	m := NewManager(intervals(time.Hour), f, st)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	waitFor(t, "every kind synced", m.Ready)

	_, err := m.RefreshNow(context.Background(), models.KindRoute)
	if !errors.Is(err, store.ErrEmptyBatch) {
		t.Fatalf("RefreshNow() error = %v, want ErrEmptyBatch", err)
	}
	if st.Len(models.KindRoute) != 1 {
		t.Errorf("store.Len(ROUTE) = %d, want 1 (no blank on empty)", st.Len(models.KindRoute))
	}

	s, _ := m.Scheduler(models.KindRoute)
	if status := s.Status(); !status.Degraded || !status.Synced {
		t.Errorf("status = %+v, want degraded and synced", status)
	}
	if !m.Ready() {
		t.Error("an ignored empty response should not make the manager unready")
	}
}

func TestManager_NoEventAfterStop(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	started := make(chan struct{}, len(models.AllKinds))
	release := make(chan struct{})
	f := newFakeFetcher(func(_ context.Context, kind models.Kind, _ int) (store.Batch, error) {
		started <- struct{}{}
		<-release // ignores ctx on purpose
		return batchOf(kind, "x-1"), nil
	})
	log := &eventLog{}
	m := NewManager(intervals(time.Hour), f, st)
	m.Subscribe(log.add)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	for range models.AllKinds {
		<-started
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	close(release)
	time.Sleep(50 * time.Millisecond)

	log.mu.Lock()
	n := len(log.events)
	log.mu.Unlock()
	if n != 0 {
		t.Errorf("got %d events after Stop, want 0", n)
	}
	for _, k := range models.AllKinds {
		if st.Len(k) != 0 {
			t.Errorf("store.Len(%s) = %d, result after Stop should be discarded", k, st.Len(k))
		}
	}
	for _, s := range m.Statuses() {
		if s.Running {
			t.Errorf("status %s still running after Stop", s.Kind)
		}
	}
}

func TestManager_RefreshNowErrors(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher(func(_ context.Context, kind models.Kind, _ int) (store.Batch, error) {
		return batchOf(kind, "a"), nil
	})
	m := NewManager(intervals(time.Hour), f, newTestStore(t))

	if _, err := m.RefreshNow(context.Background(), models.KindOfficer); !errors.Is(err, ErrNotRunning) {
		t.Errorf("RefreshNow() before Start error = %v, want ErrNotRunning", err)
	}
	if _, err := m.RefreshNow(context.Background(), models.Kind("DRONE")); !errors.Is(err, models.ErrUnknownKind) {
		t.Errorf("RefreshNow(DRONE) error = %v, want ErrUnknownKind", err)
	}
	if err := m.Stop(); err != nil {
		t.Errorf("Stop() on a stopped manager error = %v", err)
	}
}

func TestScheduler_RefreshNowCallerCancel(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)
	f := newFakeFetcher(func(ctx context.Context, kind models.Kind, _ int) (store.Batch, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return store.Batch{}, ctx.Err()
		}
		return batchOf(kind, "a"), nil
	})
	m := NewManager(intervals(time.Hour), f, newTestStore(t))
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := m.RefreshNow(ctx, models.KindOfficer)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("RefreshNow() error = %v, want context.DeadlineExceeded", err)
	}
}
