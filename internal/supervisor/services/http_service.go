// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/patrolmap/internal/logging"
)

// defaultDrain bounds Shutdown when no drain time is configured.
const defaultDrain = 10 * time.Second

// HTTPServer is the part of *http.Server the service drives.
type HTTPServer interface {
	Serve(l net.Listener) error
	Shutdown(ctx context.Context) error
}

// HTTPServerService binds the API address and serves on it under suture.
// The bind happens inside Serve, so a port still held by a previous
// process is retried with the layer's backoff.
//
//	server := &http.Server{Handler: router.SetupChi()}
//	tree.AddHTTPServer(server, ":8080", cfg.Server.ShutdownTimeout)
type HTTPServerService struct {
	server HTTPServer
	addr   string
	drain  time.Duration

	mu    sync.Mutex
	bound net.Addr
}

// NewHTTPServerService serves server on addr. drain bounds how long open
// requests may finish after cancellation.
func NewHTTPServerService(server HTTPServer, addr string, drain time.Duration) *HTTPServerService {
	if drain <= 0 {
		drain = defaultDrain
	}
	return &HTTPServerService{server: server, addr: addr, drain: drain}
}

// Addr is the address of the live listener, or nil while not serving.
func (h *HTTPServerService) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bound
}

func (h *HTTPServerService) setBound(a net.Addr) {
	h.mu.Lock()
	h.bound = a
	h.mu.Unlock()
}

// Serve implements suture.Service. It returns ctx.Err() after a drained
// shutdown. A server that was closed elsewhere is not restarted.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", h.addr)
	if err != nil {
		return fmt.Errorf("http listen on %s: %w", h.addr, err)
	}
	h.setBound(ln.Addr())
	defer h.setBound(nil)

	log := logging.WithComponent(h.String())
	log.Info().Str("addr", ln.Addr().String()).Msg("HTTP API listening")

	// Serve closes ln when it returns.
	served := make(chan error, 1)
	go func() { served <- h.server.Serve(ln) }()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return suture.ErrDoNotRestart
		}
		return fmt.Errorf("http serve: %w", err)
	case <-ctx.Done():
	}

	started := time.Now()
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.drain)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by Shutdown; the hub
	// service closes those.
	if err := h.server.Shutdown(drainCtx); err != nil {
		log.Warn().Err(err).Dur("drain", h.drain).Msg("HTTP API did not drain in time")
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-served; err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warn().Err(err).Msg("HTTP API stopped with error")
	}
	log.Info().Dur("drain", time.Since(started)).Msg("HTTP API stopped")
	return ctx.Err()
}

// String names the service in suture events.
func (h *HTTPServerService) String() string {
	return "http-server"
}
