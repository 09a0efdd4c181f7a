// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

// Package validation provides struct validation using go-playground/validator v10.
//
// # Overview
//
// The package provides:
//   - Thread-safe singleton validator (initialized once, cached struct info)
//   - Error translation to human-readable messages
//   - APIError conversion matching the API error envelope
//   - Custom tags: entitykind (a kind name or alias such as "patrol-vehicles")
//     and statusfilter (ALL or a status token)
//
// Configuration structs are validated with the same instance, so a bad
// setting and a bad query parameter produce messages in the same style.
//
// # Thread Safety
//
// GetValidator and ValidateStruct are safe for concurrent use.
package validation
