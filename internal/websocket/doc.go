// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

/*
Package websocket drives browser maps over WebSocket connections.

The browser hosts the map SDK. The server keeps, per connection, a Session
holding that map's filter state and a markers.Manager whose Renderer turns
every marker, polyline and overlay call into a command message. The
browser draws what it is told and reports user actions back.

Key Components:

  - Hub: tracks connected clients and broadcasts sync_status and sync_error
  - Client: one connection with a read and a write goroutine (gorilla/websocket)
  - Renderer: markers.Renderer that sends render commands to one client
  - Session: one map; reconciles filtered views whenever its kinds change
  - Sessions: registry of open sessions, following store changes

Message Format:

Every message is a JSON object {"type": ..., "data": ...}.

Server to client:

	marker_create    {handle, kind, id, coord, icon}
	marker_update    {handle, coord?, icon?}
	marker_remove    {handle}
	polyline_create  {handle, kind, id, coords, style}
	polyline_update  {handle, coords, style}
	polyline_remove  {handle}
	overlay_open     {handle, coord, content}
	overlay_close    {handle}
	fit_bounds       {coords}
	set_center       {coord, zoom}
	sync_status      refresh.Status
	sync_error       {kind, message, consecutive_failures, last_success}
	selection        {kind, id, selected}
	filter_result    {kind, query, status, shown, total}
	notice           {level, code, message}
	error            {code, message}
	pong

Client to server:

	map_ready
	set_filter         {kind, query, status}
	select             {kind, id}
	deselect
	refresh            {kind}
	fit_bounds
	geolocation        {latitude, longitude}
	geolocation_error  {message}
	ping

Handles are UUIDs generated by the server, so a render command never
waits for a reply. A client that cannot keep up with its send buffer is
disconnected and its session disposed.

Usage:

	hub := websocket.NewHub()
	go hub.RunWithContext(ctx)

	sessions := websocket.NewSessions(hub, st, engine, refreshMgr, markers.OptionsFromConfig(cfg.Map))
	defer sessions.Close()

	conn, _ := upgrader.Upgrade(w, r, nil)
	sessions.Serve(conn)
*/
package websocket
