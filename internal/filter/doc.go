// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

// Package filter narrows a kind's snapshot by free text and status.
//
// Apply is pure and never returns an entity outside its input. Engine
// memoizes views in an LRU keyed by kind, store version and normalized
// query, so an unchanged store and query yield the identical *View and the
// marker manager can skip reconciliation. State keeps a map session's
// per-kind queries and its single cross-kind selection.
package filter
