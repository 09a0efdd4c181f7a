// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

/*
Package rest is the adapter between the backend REST API and the Entity Store.

Each entity kind is fetched with one GET request. The backend answers with a
bare JSON array or with one of several envelopes; all of them are normalized
here into a store.Batch so nothing downstream sees more than one shape:

	[{...}, {...}]
	{"content": [...], "totalElements": 12}
	{"data": [...]}
	{"data": {"content": [...], "totalElements": 12}}

Only the paginated form can be authoritative: {"content": [], "totalElements": 0}
sets Batch.Authoritative, which the store honors only when configured to.

Items that are not objects or have no id are skipped and counted in
entities_skipped_total; their siblings are kept. Items without a usable
coordinate are kept and flagged unlocatable by the model.

# Errors

Every failure is a *FetchError that wraps one of:

  - ErrTransport: connection failure, timeout, non-200 status
  - ErrMalformedPayload: body matched no known shape
  - ErrCircuitOpen: the breaker rejected the call without contacting the backend

IsTransport and Classify map errors to retry semantics and metric labels.

# Resilience

BreakerClient wraps Client with sony/gobreaker. Only transport failures count
toward tripping. Client paces all requests through a shared
golang.org/x/time/rate limiter.
*/
package rest
