// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

/*
Package refresh keeps the entity store in step with the REST backend by
polling each entity kind on its own interval.

# Overview

A Manager owns one Scheduler per kind. Each scheduler fetches its kind once
at Start and then on a ticker. Manual refreshes (RefreshNow) share the
fetch that is already in flight instead of issuing a second request, using
golang.org/x/sync/singleflight keyed by kind.

# Failure handling

A failed fetch leaves the store untouched, marks the kind degraded and
increments its consecutive failure count. The ticker keeps running, so the
next interval retries. An empty response is treated the same way unless the
store accepts authoritative empties; the kind still counts as synced.

# Teardown

Stop cancels the ticker and every in-flight request. A fetch that returns
after Stop is discarded: its result is not written to the store and no
listener is called.

# Usage

	fetcher := rest.NewBreakerClient(&cfg.REST)
	mgr := refresh.NewManager(cfg.Refresh, fetcher, st)
	mgr.Subscribe(func(ev refresh.Event) {
	    if ev.Err != nil {
	        // show the degraded banner for ev.Kind
	    }
	})
	if err := mgr.Start(ctx); err != nil {
	    return err
	}
	defer mgr.Stop()

Manager satisfies services.StartStopManager and runs under the supervisor
tree through services.SyncService.
*/
package refresh
