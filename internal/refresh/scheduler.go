// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/patrolmap/internal/logging"
	"github.com/tomtom215/patrolmap/internal/metrics"
	"github.com/tomtom215/patrolmap/internal/models"
	"github.com/tomtom215/patrolmap/internal/rest"
	"github.com/tomtom215/patrolmap/internal/store"
)

var (
	// ErrNotRunning is returned by a refresh requested before Start or after
	// Stop, and by a fetch whose result arrived after Stop.
	ErrNotRunning = errors.New("refresh scheduler not running")

	// ErrAlreadyRunning is returned by Start on a running manager.
	ErrAlreadyRunning = errors.New("refresh scheduler already running")
)

// Writer is the store operation a completed fetch feeds.
type Writer interface {
	ReplaceAllContext(ctx context.Context, batch store.Batch) (store.Diff, error)
}

// Scheduler polls one kind on a fixed interval and on demand, with at most
// one fetch in flight at a time.
//
// Thread Safety:
//   - mu: protects runCtx, cancel and status
//   - gate: held for reading while a fetch result is applied; stop takes it
//     for writing so no result is applied or announced after stop returns
type Scheduler struct {
	kind      models.Kind
	interval  time.Duration
	timeout   time.Duration
	fetcher   rest.Fetcher
	store     Writer
	listeners *listenerSet
	log       *logging.SyncLogger

	group singleflight.Group

	mu     sync.Mutex
	runCtx context.Context
	cancel context.CancelFunc
	status Status

	gate sync.RWMutex
	wg   sync.WaitGroup
}

func newScheduler(kind models.Kind, interval, timeout time.Duration, fetcher rest.Fetcher, w Writer, listeners *listenerSet) *Scheduler {
	if timeout <= 0 || timeout > interval {
		timeout = interval
	}
	return &Scheduler{
		kind:      kind,
		interval:  interval,
		timeout:   timeout,
		fetcher:   fetcher,
		store:     w,
		listeners: listeners,
		log:       logging.NewSyncLogger("refresh"),
		status: Status{
			Kind:     kind,
			Interval: interval.String(),
		},
	}
}

// Kind returns the kind this scheduler polls.
func (s *Scheduler) Kind() models.Kind {
	return s.kind
}

// Status returns a copy of the current sync state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Scheduler) start(parent context.Context) error {
	s.mu.Lock()
	if s.runCtx != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, s.kind)
	}
	ctx, cancel := context.WithCancel(parent)
	s.runCtx = ctx
	s.cancel = cancel
	s.status.Running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)

	logging.Info().Str("kind", s.kind.String()).Dur("interval", s.interval).Msg("Refresh scheduler started")
	return nil
}

// stop cancels the timer and any in-flight fetch, then waits until no
// result can be applied anymore.
func (s *Scheduler) stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.runCtx = nil
	s.cancel = nil
	s.status.Running = false
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	// Wait for an apply that passed its liveness check before cancel.
	s.gate.Lock()
	s.gate.Unlock() //nolint:staticcheck // empty critical section is the barrier

	s.wg.Wait()
	logging.Info().Str("kind", s.kind.String()).Msg("Refresh scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	s.await(ctx, s.trigger(ctx))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.await(ctx, s.trigger(ctx))
		}
	}
}

func (s *Scheduler) await(ctx context.Context, ch <-chan singleflight.Result) {
	select {
	case <-ch:
	case <-ctx.Done():
	}
}

// trigger starts a fetch or joins the one in flight.
func (s *Scheduler) trigger(runCtx context.Context) <-chan singleflight.Result {
	return s.group.DoChan(s.kind.String(), func() (interface{}, error) {
		return s.run(runCtx)
	})
}

// RefreshNow fetches immediately. A call made while a fetch is in flight
// waits for that fetch instead of starting a second one. Canceling ctx only
// abandons the wait; the shared fetch continues.
func (s *Scheduler) RefreshNow(ctx context.Context) (Result, error) {
	s.mu.Lock()
	runCtx := s.runCtx
	inFlight := s.status.InFlight
	s.mu.Unlock()

	if runCtx == nil {
		return Result{}, ErrNotRunning
	}

	ch := s.trigger(runCtx)
	select {
	case res := <-ch:
		diff, _ := res.Val.(store.Diff)
		coalesced := inFlight || res.Shared
		if coalesced {
			metrics.SyncCoalesced.WithLabelValues(s.kind.String()).Inc()
		}
		return Result{Diff: diff, Coalesced: coalesced}, res.Err
	case <-ctx.Done():
		return Result{Coalesced: inFlight}, ctx.Err()
	}
}

// run performs one fetch and applies it. It is only ever executed by the
// singleflight group, so at most one run per kind is active.
func (s *Scheduler) run(runCtx context.Context) (store.Diff, error) {
	start := time.Now()
	s.mu.Lock()
	s.status.InFlight = true
	s.status.LastAttempt = start
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.status.InFlight = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(runCtx, s.timeout)
	defer cancel()
	ctx = logging.ContextWithNewCorrelationID(ctx)

	batch, err := s.fetcher.Fetch(ctx, s.kind)

	s.gate.RLock()
	defer s.gate.RUnlock()

	if runCtx.Err() != nil {
		return store.Diff{}, fmt.Errorf("%w: %s result discarded", ErrNotRunning, s.kind)
	}

	var diff store.Diff
	if err == nil {
		diff, err = s.store.ReplaceAllContext(ctx, batch)
	}

	kind := s.kind.String()
	metrics.RecordFetch(kind, resultLabel(err), time.Since(start), len(batch.Entities))

	st := s.record(diff, err)
	if err != nil && !errors.Is(err, store.ErrEmptyBatch) {
		s.log.LogFetchFailed(ctx, kind, err, st.ConsecutiveFailures)
	}

	s.listeners.emit(Event{Kind: s.kind, Diff: diff, Err: err, Status: st})
	return diff, err
}

// record folds one attempt into the status and returns the new copy.
func (s *Scheduler) record(diff store.Diff, err error) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case err == nil:
		s.status.Synced = true
		s.status.Degraded = false
		s.status.LastSuccess = time.Now()
		s.status.LastError = ""
		s.status.ConsecutiveFailures = 0
		s.status.LastDiff = countsOf(diff)
		s.status.Version = diff.Version
	case errors.Is(err, store.ErrEmptyBatch):
		// The backend answered; the answer was not trusted.
		s.status.Synced = true
		s.status.Degraded = true
		s.status.LastError = err.Error()
		s.status.ConsecutiveFailures++
		s.status.Version = diff.Version
	default:
		s.status.Degraded = true
		s.status.LastError = err.Error()
		s.status.ConsecutiveFailures++
	}
	return s.status
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, store.ErrEmptyBatch):
		return "empty"
	case errors.Is(err, store.ErrDisposed), errors.Is(err, store.ErrNotInitialized):
		return "store_unavailable"
	default:
		return rest.Classify(err)
	}
}
