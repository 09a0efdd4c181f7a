// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// brokerReadyTimeout bounds how long NewEmbeddedBroker waits for the
// server to accept connections.
const brokerReadyTimeout = 10 * time.Second

// EmbeddedBroker is an in-process core NATS server for development and
// single-host deployments that have no external broker.
type EmbeddedBroker struct {
	server    *server.Server
	clientURL string
}

// NewEmbeddedBroker starts a NATS server listening on host:port. A port of
// -1 picks a random free port.
func NewEmbeddedBroker(host string, port int) (*EmbeddedBroker, error) {
	opts := &server.Options{
		ServerName: "patrolmap-push",
		Host:       host,
		Port:       port,
		JetStream:  false,
		NoLog:      true,
		NoSigs:     true,
		MaxPayload: 1024 * 1024, // one entity per message
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(brokerReadyTimeout) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server not ready within %s", brokerReadyTimeout)
	}

	return &EmbeddedBroker{
		server:    ns,
		clientURL: ns.ClientURL(),
	}, nil
}

// ClientURL returns the connection URL for clients.
func (b *EmbeddedBroker) ClientURL() string {
	return b.clientURL
}

// IsRunning reports whether the server is running.
func (b *EmbeddedBroker) IsRunning() bool {
	return b.server.Running()
}

// Shutdown stops the server and waits for it unless ctx is already done.
func (b *EmbeddedBroker) Shutdown(ctx context.Context) error {
	b.server.Shutdown()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		b.server.WaitForShutdown()
		return nil
	}
}
