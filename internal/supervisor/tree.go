// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/tomtom215/patrolmap/internal/config"
	"github.com/tomtom215/patrolmap/internal/supervisor/services"
)

// ErrNoRealtime is returned by RemoveRealtime when no push channel runs.
var ErrNoRealtime = errors.New("supervisor: no realtime service added")

// Layer is one child supervisor of the tree.
type Layer int

const (
	// LayerData holds the refresh schedulers and cache maintenance.
	LayerData Layer = iota
	// LayerMessaging holds the WebSocket hub and the push channel.
	LayerMessaging
	// LayerAPI holds the HTTP server.
	LayerAPI
)

func (l Layer) String() string {
	switch l {
	case LayerData:
		return "data-layer"
	case LayerMessaging:
		return "messaging-layer"
	case LayerAPI:
		return "api-layer"
	default:
		return fmt.Sprintf("layer(%d)", int(l))
	}
}

// layers lists every Layer in start order.
var layers = [...]Layer{LayerData, LayerMessaging, LayerAPI}

// TreeConfig holds the restart policy shared by every layer.
type TreeConfig struct {
	// FailureThreshold is how many failures put a layer into backoff. Default 5.
	FailureThreshold float64

	// FailureDecay is the failure half-life in seconds. Default 30.
	FailureDecay float64

	// FailureBackoff is how long a layer waits once over the threshold. Default 15s.
	FailureBackoff time.Duration

	// ShutdownTimeout bounds how long a service may take to stop. Default 10s.
	ShutdownTimeout time.Duration
}

// shutdownMargin is added on top of the HTTP drain time so the api layer
// is not abandoned while Shutdown is still draining requests.
const shutdownMargin = 5 * time.Second

// DefaultTreeConfig returns suture's documented defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// TreeConfigFromServer derives the shutdown timeout from the HTTP drain
// time and keeps the default restart policy.
func TreeConfigFromServer(cfg *config.ServerConfig) TreeConfig {
	tc := DefaultTreeConfig()
	if cfg != nil && cfg.ShutdownTimeout > 0 {
		tc.ShutdownTimeout = cfg.ShutdownTimeout + shutdownMargin
	}
	return tc
}

func (c TreeConfig) withDefaults() TreeConfig {
	d := DefaultTreeConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.FailureDecay <= 0 {
		c.FailureDecay = d.FailureDecay
	}
	if c.FailureBackoff <= 0 {
		c.FailureBackoff = d.FailureBackoff
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	return c
}

func (c TreeConfig) spec(hook suture.EventHook) suture.Spec {
	return suture.Spec{
		EventHook:        hook,
		FailureThreshold: c.FailureThreshold,
		FailureDecay:     c.FailureDecay,
		FailureBackoff:   c.FailureBackoff,
		Timeout:          c.ShutdownTimeout,
	}
}

// Tree is the process supervision tree of patrolmap.
//
// A crash in one layer is restarted without touching the others, so the
// API keeps serving the last-good snapshot while a broken push channel
// backs off.
type Tree struct {
	root   *suture.Supervisor
	layers map[Layer]*suture.Supervisor
	logger *slog.Logger
	config TreeConfig

	mu       sync.Mutex
	names    map[Layer][]string
	realtime *suture.ServiceToken
}

// New builds the root supervisor and its three layers. Supervisor events
// are reported through logger.
func New(logger *slog.Logger, cfg TreeConfig) *Tree {
	cfg = cfg.withDefaults()

	// MustHook has a pointer receiver. Layers inherit the hook from root.
	hook := (&sutureslog.Handler{Logger: logger}).MustHook()

	t := &Tree{
		root:   suture.New("patrolmap", cfg.spec(hook)),
		layers: make(map[Layer]*suture.Supervisor, len(layers)),
		logger: logger,
		config: cfg,
		names:  make(map[Layer][]string, len(layers)),
	}
	for _, l := range layers {
		sup := suture.New(l.String(), cfg.spec(nil))
		t.layers[l] = sup
		t.root.Add(sup)
	}
	return t
}

// Add runs svc in the given layer.
func (t *Tree) Add(layer Layer, svc suture.Service) suture.ServiceToken {
	sup, ok := t.layers[layer]
	if !ok {
		panic(fmt.Sprintf("supervisor: unknown %s", layer))
	}
	name := fmt.Sprint(svc)

	t.mu.Lock()
	t.names[layer] = append(t.names[layer], name)
	t.mu.Unlock()

	t.logger.Debug("service added", "layer", layer.String(), "service", name)
	return sup.Add(svc)
}

// AddRefresh runs the per-kind refresh schedulers.
func (t *Tree) AddRefresh(mgr services.StartStopManager) suture.ServiceToken {
	return t.Add(LayerData, services.NewRefreshService(mgr))
}

// AddMaintenance runs task every interval in the data layer.
func (t *Tree) AddMaintenance(name string, interval time.Duration, task services.MaintenanceTask) suture.ServiceToken {
	return t.Add(LayerData, services.NewMaintenanceService(name, interval, task))
}

// AddHub runs the WebSocket hub; sessions are closed when the hub stops.
func (t *Tree) AddHub(hub services.ContextHub, sessions services.SessionCloser) suture.ServiceToken {
	return t.Add(LayerMessaging, services.NewWebSocketHubService(hub, sessions))
}

// AddRealtime runs the push channel. A second call replaces the token
// remembered for RemoveRealtime.
func (t *Tree) AddRealtime(components services.ComponentsRunner) suture.ServiceToken {
	token := t.Add(LayerMessaging, services.NewRealtimeService(components))
	t.mu.Lock()
	t.realtime = &token
	t.mu.Unlock()
	return token
}

// RemoveRealtime stops the push channel and falls back to polling only.
func (t *Tree) RemoveRealtime() error {
	t.mu.Lock()
	token := t.realtime
	t.realtime = nil
	t.mu.Unlock()

	if token == nil {
		return ErrNoRealtime
	}
	return t.layers[LayerMessaging].Remove(*token)
}

// AddHTTPServer serves server on addr in the api layer. drain bounds Shutdown.
func (t *Tree) AddHTTPServer(server services.HTTPServer, addr string, drain time.Duration) suture.ServiceToken {
	return t.Add(LayerAPI, services.NewHTTPServerService(server, addr, drain))
}

// Services returns the names added to layer, in order.
func (t *Tree) Services(layer Layer) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.names[layer]...)
}

// Serve starts the tree and blocks until ctx is canceled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground starts the tree in a goroutine. The channel receives
// exactly one value when the tree stops and is never closed.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// Unstopped names the services that did not stop within the shutdown
// timeout. Call it after Serve returns.
func (t *Tree) Unstopped() []string {
	report, err := t.root.UnstoppedServiceReport()
	if err != nil {
		t.logger.Warn("unstopped service report unavailable", "error", err)
		return nil
	}
	names := make([]string, 0, len(report))
	for _, svc := range report {
		names = append(names, svc.Name)
	}
	return names
}
