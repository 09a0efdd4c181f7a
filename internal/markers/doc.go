// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

/*
Package markers keeps the markers, route polylines and info overlay of one
map equal to the filtered entity views handed to it.

# Lifecycle

A Manager starts in LOADING. Views reconciled before the map SDK reports
ready are recorded, latest per kind, and applied by MapReady. After
Dispose every method returns ErrDisposed and no renderer call is made.

# Reconciliation

For each kind, Reconcile computes the difference between the live keys and
the renderable keys of the view:

  - keys no longer present are removed (closing the overlay first if the
    removed entity was selected)
  - keys already live are updated in place, keeping their handle, only when
    the coordinate or icon changed
  - new keys are created

Entities without a valid coordinate, and routes with fewer than two valid
waypoints, are counted as skipped and never drawn.

# Selection

The selection is single across all kinds and is stored in a Selector,
normally the filter.State of the same map session. Selecting a new entity
closes the previous overlay before opening the next one.

# Usage

	m := markers.New(renderer, markers.OptionsFromConfig(cfg.Map))
	defer m.Dispose()

	m.MapReady()
	m.Reconcile(engine.View(models.KindOfficer, query))
*/
package markers
