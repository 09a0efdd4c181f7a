// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

/*
Package config provides centralized configuration management for Patrolmap.

Configuration is layered with Koanf v2. Built-in defaults are loaded first,
then an optional YAML file, then environment variables. Only the environment
variables listed in envMappings are read; everything else in the process
environment is ignored.

# Configuration Sources

  - Defaults: defaultConfig()
  - Config file: CONFIG_PATH, or config.yaml / config.yml in the working
    directory, or /etc/patrolmap/config.yaml
  - Environment variables (highest priority, .env is loaded by cmd/server)

# Configuration Structure

  - ServerConfig: HTTP listener, CORS and request rate limits
  - RESTConfig: backend base URL, per-kind paths, pacing and circuit breaker
  - RefreshConfig: per-kind polling windows (30s to 5m)
  - RealtimeConfig: NATS push channel and the subject-to-kind map
  - StoreConfig: Entity Store policy
  - MapConfig: initial viewport and geolocation timeout for map sessions
  - CacheConfig: filter memoization and spatial index sizing
  - LoggingConfig: zerolog level, format and caller info

# Environment Variables

Backend REST (RESTConfig):
  - REST_BASE_URL: Backend base URL (required)
  - REST_TOKEN: Bearer token sent with every fetch
  - REST_TIMEOUT: Per-request timeout (default: 15s)
  - REST_OFFICERS_PATH: (default: /api/officers)
  - REST_INCIDENTS_PATH: (default: /api/incidents)
  - REST_VEHICLES_PATH: (default: /api/patrol-vehicles)
  - REST_ROUTES_PATH: (default: /api/patrol-routes)

Refresh windows (RefreshConfig):
  - REFRESH_OFFICERS_INTERVAL: (default: 30s)
  - REFRESH_VEHICLES_INTERVAL: (default: 30s)
  - REFRESH_INCIDENTS_INTERVAL: (default: 60s)
  - REFRESH_ROUTES_INTERVAL: (default: 5m)

Push channel (RealtimeConfig):
  - REALTIME_ENABLED: (default: true)
  - NATS_URL: one URL or a comma-separated cluster list (default: nats://127.0.0.1:4222)
  - NATS_EMBEDDED: Run an in-process NATS server (default: false)
  - REALTIME_TOPICS: subject=KIND pairs, e.g.
    "/topic/officers=OFFICER,/topic/alerts=INCIDENT"

# Usage Example

	cfg, err := config.Load()
	if err != nil {
	    log.Fatalf("Failed to load config: %v", err)
	}
	every := cfg.Refresh.IntervalFor("incidents")

# Validation

Load fails when REST_BASE_URL is missing or carries a path, when a refresh
window falls outside 30s..5m, when NATS_URL has an unsupported scheme, or when
a topic maps to an unknown kind. Struct tags are checked with validator/v10
through the validation package before the cross-field checks run.

# Thread Safety

Config is immutable after Load() returns. Hot reload (WatchConfigFile) only
re-applies the log level.
*/
package config
