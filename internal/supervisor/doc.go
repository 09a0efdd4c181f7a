// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

/*
Package supervisor provides process supervision for patrolmap using suture v4.

# Overview

Services are grouped into three layers so a failure restarts only its own
layer:

	RootSupervisor ("patrolmap")
	├── DataSupervisor ("data-layer")
	│   ├── RefreshService (one scheduler per entity kind)
	│   └── MaintenanceService (expired filter views)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── WebSocketHubService
	│   └── RealtimeService (if REALTIME_ENABLED)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

An unreachable broker makes RealtimeService fail and back off without
affecting the refresh schedulers or the HTTP API.

# Usage Example

	tree := supervisor.New(logging.NewSlogLogger(), supervisor.TreeConfigFromServer(&cfg.Server))

	tree.AddRefresh(refreshMgr)
	tree.AddHub(hub, sessions)
	if components != nil {
	    tree.AddRealtime(components)
	}
	tree.AddHTTPServer(server, ":8080", cfg.Server.ShutdownTimeout)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
	    return err
	}

# Logging

Supervisor events (service start, failure, backoff, restarts) go through
sutureslog into the slog adapter of internal/logging, so they land in the
same zerolog stream as everything else.

Every Add call is recorded, so Services(layer) lists what a layer runs.
RemoveRealtime drops the push channel at runtime and leaves the map on
REST polling.

# Thread Safety

Services may be added before or after Serve; suture serializes tree
changes internally.
*/
package supervisor
