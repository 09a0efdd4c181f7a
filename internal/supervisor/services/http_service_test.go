// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

var (
	_ suture.Service = (*HTTPServerService)(nil)
	_ suture.Service = (*RefreshService)(nil)
	_ suture.Service = (*RealtimeService)(nil)
	_ suture.Service = (*WebSocketHubService)(nil)
	_ suture.Service = (*MaintenanceService)(nil)
)

// stubServer fails Serve or Shutdown on demand.
type stubServer struct {
	serveErr    error
	shutdownErr error
	started     atomic.Bool
	stop        chan struct{}
}

func newStubServer() *stubServer {
	return &stubServer{stop: make(chan struct{})}
}

func (s *stubServer) Serve(l net.Listener) error {
	defer l.Close()
	if s.serveErr != nil {
		return s.serveErr
	}
	s.started.Store(true)
	<-s.stop
	return http.ErrServerClosed
}

func (s *stubServer) Shutdown(context.Context) error {
	close(s.stop)
	return s.shutdownErr
}

const loopback = "127.0.0.1:0"

func TestNewHTTPServerService_DefaultDrain(t *testing.T) {
	t.Parallel()
	server := newStubServer()

	for _, drain := range []time.Duration{0, -5 * time.Second} {
		if svc := NewHTTPServerService(server, loopback, drain); svc.drain != defaultDrain {
			t.Errorf("drain %v: got %v, want %v", drain, svc.drain, defaultDrain)
		}
	}
	svc := NewHTTPServerService(server, loopback, 3*time.Second)
	if svc.drain != 3*time.Second || svc.String() != "http-server" || svc.Addr() != nil {
		t.Errorf("svc = %+v", svc)
	}
}

func TestHTTPServerService_ServesAndDrains(t *testing.T) {
	t.Parallel()

	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"status":"healthy"}`)
		}),
		ReadHeaderTimeout: time.Second,
	}
	svc := NewHTTPServerService(server, loopback, time.Second)

	var url string
	err := serveUntilCanceled(t, svc.Serve, func() bool {
		addr := svc.Addr()
		if addr == nil {
			return false
		}
		url = fmt.Sprintf("http://%s/api/v1/health", addr)
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
	if svc.Addr() != nil {
		t.Errorf("Addr() = %v after shutdown, want nil", svc.Addr())
	}
	if _, err := http.Get(url); err == nil {
		t.Error("server still accepting connections after shutdown")
	}
}

func TestHTTPServerService_Failures(t *testing.T) {
	t.Parallel()

	t.Run("address in use is returned", func(t *testing.T) {
		t.Parallel()
		held, err := net.Listen("tcp", loopback)
		if err != nil {
			t.Fatalf("listen: %v", err)
		}
		defer held.Close()

		svc := NewHTTPServerService(newStubServer(), held.Addr().String(), time.Second)
		err = svc.Serve(context.Background())
		if err == nil || !strings.Contains(err.Error(), held.Addr().String()) {
			t.Errorf("Serve() = %v, want bind error naming %s", err, held.Addr())
		}
		if svc.Addr() != nil {
			t.Errorf("Addr() = %v after bind failure", svc.Addr())
		}
	})

	t.Run("serve failure is returned", func(t *testing.T) {
		t.Parallel()
		serveErr := errors.New("accept: too many open files")
		server := newStubServer()
		server.serveErr = serveErr
		if err := NewHTTPServerService(server, loopback, time.Second).Serve(context.Background()); !errors.Is(err, serveErr) {
			t.Errorf("Serve() = %v, want %v", err, serveErr)
		}
	})

	t.Run("closed server is not restarted", func(t *testing.T) {
		t.Parallel()
		server := &http.Server{ReadHeaderTimeout: time.Second}
		_ = server.Close()
		if err := NewHTTPServerService(server, loopback, time.Second).Serve(context.Background()); !errors.Is(err, suture.ErrDoNotRestart) {
			t.Errorf("Serve() = %v, want suture.ErrDoNotRestart", err)
		}
	})

	t.Run("shutdown failure is returned", func(t *testing.T) {
		t.Parallel()
		shutdownErr := errors.New("context deadline exceeded")
		server := newStubServer()
		server.shutdownErr = shutdownErr
		err := serveUntilCanceled(t, NewHTTPServerService(server, loopback, time.Second).Serve, server.started.Load)
		if !errors.Is(err, shutdownErr) {
			t.Errorf("Serve() = %v, want %v", err, shutdownErr)
		}
	})
}

func TestHTTPServerService_UnderSupervisor(t *testing.T) {
	t.Parallel()

	server := newStubServer()
	sup := suture.New("api-layer", suture.Spec{
		FailureThreshold: 3,
		FailureBackoff:   10 * time.Millisecond,
		Timeout:          2 * time.Second,
	})
	sup.Add(NewHTTPServerService(server, loopback, time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := sup.ServeBackground(ctx)

	deadline := time.Now().Add(time.Second)
	for !server.started.Load() {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("server never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	<-errCh

	select {
	case <-server.stop:
	default:
		t.Error("Shutdown was not called")
	}
}
