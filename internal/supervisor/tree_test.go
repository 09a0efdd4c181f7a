// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/patrolmap/internal/config"
	"github.com/tomtom215/patrolmap/internal/logging"
)

func init() {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	tree := New(quietLogger(), TreeConfig{})
	if tree.config != DefaultTreeConfig() {
		t.Errorf("config = %+v, want %+v", tree.config, DefaultTreeConfig())
	}
	for _, l := range layers {
		if tree.layers[l] == nil {
			t.Errorf("%s supervisor missing", l)
		}
	}

	tree = New(quietLogger(), TreeConfig{FailureBackoff: time.Second, FailureDecay: -1})
	if tree.config.FailureBackoff != time.Second || tree.config.FailureThreshold != 5 || tree.config.FailureDecay != 30 {
		t.Errorf("explicit values lost or invalid kept: %+v", tree.config)
	}
}

func TestTreeConfigFromServer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  *config.ServerConfig
		want time.Duration
	}{
		{"nil server config", nil, 10 * time.Second},
		{"unset drain", &config.ServerConfig{}, 10 * time.Second},
		{"drain plus margin", &config.ServerConfig{ShutdownTimeout: 20 * time.Second}, 25 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := TreeConfigFromServer(tt.cfg)
			if got.ShutdownTimeout != tt.want {
				t.Errorf("ShutdownTimeout = %v, want %v", got.ShutdownTimeout, tt.want)
			}
			if got.FailureThreshold != 5 {
				t.Errorf("FailureThreshold = %v, want 5", got.FailureThreshold)
			}
		})
	}
}

func TestLayer_String(t *testing.T) {
	t.Parallel()

	want := map[Layer]string{LayerData: "data-layer", LayerMessaging: "messaging-layer", LayerAPI: "api-layer", Layer(7): "layer(7)"}
	for l, name := range want {
		if l.String() != name {
			t.Errorf("Layer(%d).String() = %q, want %q", int(l), l.String(), name)
		}
	}
}

func TestTree_StartsEveryLayer(t *testing.T) {
	t.Parallel()

	tree := New(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})
	data := newMockService("refresh", 0)
	messaging := newMockService("hub", 0)
	api := newMockService("http", 0)
	tree.Add(LayerData, data)
	tree.Add(LayerMessaging, messaging)
	tree.Add(LayerAPI, api)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	for _, svc := range []*mockService{data, messaging, api} {
		waitFor(t, svc.name+" start", func() bool { return svc.startCount.Load() == 1 })
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not shut down")
	}
	for _, svc := range []*mockService{data, messaging, api} {
		if svc.stopCount.Load() != 1 {
			t.Errorf("%s stopped %d times, want 1", svc.name, svc.stopCount.Load())
		}
	}
	if got := tree.Unstopped(); len(got) != 0 {
		t.Errorf("Unstopped() = %v", got)
	}
}

func TestTree_RestartIsolated(t *testing.T) {
	t.Parallel()

	tree := New(quietLogger(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})
	flaky := newMockService("realtime", 2)
	stable := newMockService("http", 0)
	tree.Add(LayerMessaging, flaky)
	tree.Add(LayerAPI, stable)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := tree.ServeBackground(ctx)

	waitFor(t, "flaky restarts", func() bool { return flaky.startCount.Load() >= 3 })
	if stable.startCount.Load() != 1 {
		t.Errorf("stable service started %d times, want 1", stable.startCount.Load())
	}

	cancel()
	<-errCh
}

// fakeManager records Start and Stop like refresh.Manager.
type fakeManager struct {
	started, stopped atomic.Int32
}

func (f *fakeManager) Start(context.Context) error { f.started.Add(1); return nil }
func (f *fakeManager) Stop() error                 { f.stopped.Add(1); return nil }

// fakeHub blocks until canceled like websocket.Hub.
type fakeHub struct{ running atomic.Bool }

func (f *fakeHub) RunWithContext(ctx context.Context) error {
	f.running.Store(true)
	<-ctx.Done()
	f.running.Store(false)
	return ctx.Err()
}

type fakeSessions struct{ closed atomic.Int32 }

func (f *fakeSessions) Close() { f.closed.Add(1) }

// fakeComponents stands in for the NATS broker and subscriber.
type fakeComponents struct {
	running  atomic.Bool
	shutdown atomic.Int32
}

func (f *fakeComponents) Start(context.Context) error { f.running.Store(true); return nil }
func (f *fakeComponents) Shutdown(context.Context)    { f.running.Store(false); f.shutdown.Add(1) }
func (f *fakeComponents) IsRunning() bool             { return f.running.Load() }

// blockingServer serves until Shutdown.
type blockingServer struct {
	listening atomic.Bool
	stop      chan struct{}
}

func (b *blockingServer) Serve(l net.Listener) error {
	defer l.Close()
	b.listening.Store(true)
	<-b.stop
	return http.ErrServerClosed
}

func (b *blockingServer) Shutdown(context.Context) error {
	close(b.stop)
	return nil
}

func TestTree_PatrolmapServices(t *testing.T) {
	t.Parallel()

	tree := New(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})
	mgr := &fakeManager{}
	hub := &fakeHub{}
	sessions := &fakeSessions{}
	components := &fakeComponents{}
	server := &blockingServer{stop: make(chan struct{})}
	var purged atomic.Int32

	tree.AddRefresh(mgr)
	tree.AddMaintenance("filter-cache-janitor", 5*time.Millisecond, func(context.Context) int {
		purged.Add(1)
		return 0
	})
	tree.AddHub(hub, sessions)
	tree.AddRealtime(components)
	tree.AddHTTPServer(server, "127.0.0.1:0", time.Second)

	wantNames := map[Layer]string{
		LayerData:      "[refresh-manager filter-cache-janitor]",
		LayerMessaging: "[websocket-hub realtime-components]",
		LayerAPI:       "[http-server]",
	}
	for l, want := range wantNames {
		if got := fmt.Sprint(tree.Services(l)); got != want {
			t.Errorf("Services(%s) = %s, want %s", l, got, want)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	waitFor(t, "refresh start", func() bool { return mgr.started.Load() == 1 })
	waitFor(t, "janitor tick", func() bool { return purged.Load() > 0 })
	waitFor(t, "hub running", hub.running.Load)
	waitFor(t, "realtime running", components.IsRunning)
	waitFor(t, "http listening", server.listening.Load)

	cancel()
	<-errCh

	if mgr.stopped.Load() != 1 {
		t.Errorf("refresh manager stopped %d times, want 1", mgr.stopped.Load())
	}
	if sessions.closed.Load() != 1 {
		t.Errorf("sessions closed %d times, want 1", sessions.closed.Load())
	}
	if components.shutdown.Load() != 1 {
		t.Errorf("realtime shut down %d times, want 1", components.shutdown.Load())
	}
}

func TestTree_RemoveRealtime(t *testing.T) {
	t.Parallel()

	tree := New(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})
	if err := tree.RemoveRealtime(); !errors.Is(err, ErrNoRealtime) {
		t.Fatalf("RemoveRealtime() before add = %v, want ErrNoRealtime", err)
	}

	components := &fakeComponents{}
	tree.AddRealtime(components)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := tree.ServeBackground(ctx)

	waitFor(t, "start", components.IsRunning)
	if err := tree.RemoveRealtime(); err != nil {
		t.Fatalf("RemoveRealtime() error = %v", err)
	}
	waitFor(t, "stop", func() bool { return components.shutdown.Load() == 1 })

	if err := tree.RemoveRealtime(); !errors.Is(err, ErrNoRealtime) {
		t.Errorf("second RemoveRealtime() = %v, want ErrNoRealtime", err)
	}

	cancel()
	<-errCh

	if got := tree.Unstopped(); len(got) != 0 {
		t.Errorf("Unstopped() = %v", got)
	}
}
