// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

/*
Package main is the entry point for the patrolmap server.

Patrolmap keeps a live picture of officers, incidents, vehicles and patrol
routes. It polls a REST backend for complete snapshots, applies single
entity pushes from NATS as they arrive, and streams marker commands to
browser map clients over WebSocket.

# Application Architecture

The server runs under a Suture v4 supervisor tree:

	RootSupervisor ("patrolmap")
	├── DataSupervisor ("data-layer")
	│   ├── Refresh Manager (one scheduler per entity kind)
	│   └── Filter cache janitor
	├── MessagingSupervisor ("messaging-layer")
	│   ├── WebSocket Hub (map sessions)
	│   └── Realtime components (optional, REALTIME_ENABLED)
	└── APISupervisor ("api-layer")
	    └── HTTP Server (chi router)

Component initialization order:

 1. Environment: optional .env file (godotenv)
 2. Configuration: Koanf v2 with defaults, config file and environment
 3. Logging: zerolog with JSON or console output
 4. Entity store and spatial index
 5. REST client with rate limiter and circuit breaker
 6. Refresh manager, filter engine, WebSocket hub and sessions
 7. Realtime protocol and NATS components
 8. Supervisor tree and HTTP server

# Configuration

Configuration layers, highest priority first:
  - Environment variables
  - Config file (config.yaml, or CONFIG_PATH)
  - Built-in defaults

Changes to the config file reload the log level without a restart.

# Signal Handling

SIGINT and SIGTERM cancel the root context. The HTTP server drains
in-flight requests, the hub closes every map session, the refresh
schedulers stop, and finally the store is disposed.

# Example Usage

Polling only:

	export REST_BASE_URL=https://dispatch.example.org/api
	export REST_TOKEN=your-token
	./patrolmap

With push updates from an embedded NATS broker:

	export REALTIME_ENABLED=true
	export NATS_EMBEDDED=true
	./patrolmap
*/
package main
