// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

/*
Package services adapts patrolmap's long-running components to
suture.Service.

Each wrapper turns a component's own lifecycle into Serve(ctx) error:

  - HTTPServerService: bind, http.Server Serve / Shutdown
  - RefreshService: refresh.Manager Start / Stop
  - RealtimeService: realtime.Components Start / Shutdown
  - WebSocketHubService: websocket.Hub RunWithContext, then Sessions.Close
  - MaintenanceService: a ticker running a housekeeping task

The wrappers depend on small interfaces rather than the concrete types, so
they can be tested with fakes and do not import the component packages.

Serve returns ctx.Err() on a normal shutdown. Any other error makes suture
restart the service with backoff.
*/
package services
