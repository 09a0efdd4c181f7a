// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package logging

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// SyncLogger reports entity synchronization events with consistent field names.
type SyncLogger struct {
	logger zerolog.Logger
}

// NewSyncLogger creates a SyncLogger tagged with the given component.
func NewSyncLogger(component string) *SyncLogger {
	return &SyncLogger{logger: WithComponent(component)}
}

// NewSyncLoggerWithLogger creates a SyncLogger on top of a custom logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewSyncLoggerWithLogger(logger zerolog.Logger) *SyncLogger {
	return &SyncLogger{logger: logger}
}

func (s *SyncLogger) withContext(ctx context.Context) zerolog.Logger {
	logCtx := s.logger.With()
	if id := CorrelationIDFromContext(ctx); id != "" {
		logCtx = logCtx.Str("correlation_id", id)
	}
	if id := RequestIDFromContext(ctx); id != "" {
		logCtx = logCtx.Str("request_id", id)
	}
	return logCtx.Logger()
}

// LogEntitySkipped logs an entity that could not be parsed or located.
func (s *SyncLogger) LogEntitySkipped(kind, id, reason string) {
	s.logger.Debug().
		Str("kind", kind).
		Str("id", id).
		Str("reason", reason).
		Msg("entity skipped")
}

// LogStaleWrite logs a merge rejected by the stale-write guard.
func (s *SyncLogger) LogStaleWrite(kind, id string, stored, incoming time.Time) {
	s.logger.Debug().
		Str("kind", kind).
		Str("id", id).
		Time("stored", stored).
		Time("incoming", incoming).
		Msg("stale write rejected")
}

// LogSnapshotReplaced logs a completed full refresh.
func (s *SyncLogger) LogSnapshotReplaced(ctx context.Context, kind string, added, updated, removed int, duration time.Duration) {
	logger := s.withContext(ctx)
	logger.Debug().
		Str("kind", kind).
		Int("added", added).
		Int("updated", updated).
		Int("removed", removed).
		Dur("duration", duration).
		Msg("snapshot replaced")
}

// LogEmptyBatch logs a refresh that was ignored because it carried no usable entities.
func (s *SyncLogger) LogEmptyBatch(ctx context.Context, kind string, received int) {
	logger := s.withContext(ctx)
	logger.Warn().
		Str("kind", kind).
		Int("received", received).
		Msg("empty refresh ignored, keeping previous snapshot")
}

// LogFetchFailed logs a failed REST fetch.
func (s *SyncLogger) LogFetchFailed(ctx context.Context, kind string, err error, consecutive int) {
	logger := s.withContext(ctx)
	logger.Warn().
		Err(err).
		Str("kind", kind).
		Int("consecutive_failures", consecutive).
		Msg("fetch failed, keeping previous snapshot")
}

// LogMessageMalformed logs a push message that could not be applied.
func (s *SyncLogger) LogMessageMalformed(kind, topic string, err error) {
	s.logger.Warn().
		Err(err).
		Str("kind", kind).
		Str("topic", topic).
		Msg("malformed push message dropped")
}

// LogSubscriptionStarted logs when a topic subscription is started.
func (s *SyncLogger) LogSubscriptionStarted(topic, kind string) {
	s.logger.Info().
		Str("topic", topic).
		Str("kind", kind).
		Msg("subscription started")
}

// LogSubscriptionStopped logs when a topic subscription stops.
func (s *SyncLogger) LogSubscriptionStopped(topic string) {
	s.logger.Info().Str("topic", topic).Msg("subscription stopped")
}
