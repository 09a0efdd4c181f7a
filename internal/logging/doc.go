// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

// Package logging provides centralized zerolog-based structured logging for Patrolmap.
//
// A single global logger is configured at startup and shared by every
// component. JSON output is the production default; console output is
// available for development and drops colors when stderr is not a
// terminal. Every line carries the service, version and environment.
//
// # Quick Start
//
//	id := logging.Identity{Service: "patrolmap", Version: api.Version, Environment: cfg.Server.Environment}
//	if err := logging.Init(logging.FromLoggingConfig(cfg.Logging, id)); err != nil {
//	    logging.Warn().Err(err).Msg("Logging configuration partly ignored")
//	}
//
//	logging.Info().Str("kind", "OFFICER").Int("count", n).Msg("Snapshot replaced")
//	logging.Ctx(ctx).Warn().Err(err).Msg("Fetch failed")
//
// # Components
//
// Long-lived components take a child logger once and keep it:
//
//	logger := logging.WithComponent("store")
//	logger.Debug().Str("id", id).Msg("Stale write rejected")
//
// SyncLogger wraps the recurring synchronization events (skipped entities,
// stale writes, failed fetches, malformed push messages) so that every
// component reports them with the same field names.
//
// # Supervisor Integration
//
// NewSlogLogger returns a *slog.Logger backed by zerolog, used by sutureslog
// to report supervisor events through the same sink.
//
// # Configuration
//
// Environment Variables:
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, console (default: json)
//   - LOG_CALLER: true/false (default: false)
package logging
