// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

/*
Package realtime applies push updates to the entity store.

Each broker topic carries single JSON entities of one kind. Protocol parses
a message and hands it to the store's MergeOne; the store's stale-write
guard makes re-delivery harmless, so the channel can be at-least-once.

Subscriber consumes every configured topic through a watermill
message.Subscriber, with one goroutine per topic so messages on a topic are
applied in the order they were delivered. NewNATSSubscriber builds the
production subscriber on core NATS (watermill-nats, JetStream disabled);
tests use watermill's gochannel pub/sub.

Components ties the pieces together for the supervisor: it optionally
starts an EmbeddedBroker (nats-server in-process), subscribes, and restarts
the subscription after failures. Updates missed while disconnected are not
replayed; the next scheduled refresh reconciles them.
*/
package realtime
