// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

/*
Package models defines the entity types shared by every Patrolmap component.

Four kinds of entity are synchronized independently: officers, incidents,
patrol vehicles and patrol routes. Each record is identified by its merge
key, the (kind, id) pair, and carries a kind-specific status, an optional
canonical location (or, for routes, an ordered list of waypoints), a
lastUpdated timestamp used by the stale-write guard, and the original
payload as opaque passthrough fields.

Parsing never fails because of a bad coordinate. An entity whose location
cannot be normalized is still returned, with Locatable() reporting false,
so list views keep showing it while the map skips it.

Timestamps are read from lastUpdated, last_updated, updatedAt, updated_at
or timestamp. When none is present the receipt time is used and Stamped is
false.
*/
package models
