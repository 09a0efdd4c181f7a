// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/patrolmap/internal/config"
	"github.com/tomtom215/patrolmap/internal/logging"
)

// Components owns the push channel: the optional embedded broker, the
// NATS subscriber and the goroutine that runs it.
//
// Start/Shutdown/IsRunning match services.NATSComponentsRunner.
type Components struct {
	cfg      config.RealtimeConfig
	protocol *Protocol

	mu         sync.Mutex
	broker     *EmbeddedBroker
	subscriber *Subscriber
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewComponents prepares the push channel. Nothing connects until Start.
func NewComponents(cfg config.RealtimeConfig, p *Protocol) *Components {
	return &Components{cfg: cfg, protocol: p}
}

// Start launches the embedded broker if configured, subscribes to every
// topic and applies messages until Shutdown. A failed subscription is
// retried every reconnect interval.
func (c *Components) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return errors.New("push components already running")
	}

	routes, err := RoutesFromConfig(c.cfg.Topics)
	if err != nil {
		return err
	}

	cfg := c.cfg
	if cfg.EmbeddedServer {
		broker, err := NewEmbeddedBroker(cfg.EmbeddedHost, cfg.EmbeddedPort)
		if err != nil {
			return fmt.Errorf("start embedded broker: %w", err)
		}
		c.broker = broker
		cfg.URL = broker.ClientURL()
		logging.Info().Str("url", cfg.URL).Msg("Embedded NATS broker started")
	}

	sub, err := NewNATSSubscriber(&cfg, nil)
	if err != nil {
		c.shutdownBroker(context.Background())
		return err
	}
	c.subscriber = NewSubscriber(sub, c.protocol, routes)

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(runCtx, c.subscriber, c.done)

	logging.Info().Str("url", cfg.URL).Int("topics", len(routes)).Msg("Push subscriber started")
	return nil
}

func (c *Components) run(ctx context.Context, sub *Subscriber, done chan struct{}) {
	defer close(done)

	wait := c.cfg.ReconnectWait
	if wait <= 0 {
		wait = 2 * time.Second
	}

	for {
		err := sub.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		logging.Warn().Err(err).Dur("retry_in", wait).Msg("Push subscriber stopped, retrying")

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// Shutdown stops the subscriber and the embedded broker.
func (c *Components) Shutdown(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel == nil {
		return
	}
	c.cancel()

	select {
	case <-c.done:
	case <-ctx.Done():
		logging.Warn().Msg("Push subscriber did not stop before shutdown deadline")
	}

	if err := c.subscriber.Close(); err != nil {
		logging.Warn().Err(err).Msg("Failed to close push subscriber")
	}
	c.shutdownBroker(ctx)

	c.cancel = nil
	c.subscriber = nil
	logging.Info().Msg("Push subscriber stopped")
}

func (c *Components) shutdownBroker(ctx context.Context) {
	if c.broker == nil {
		return
	}
	if err := c.broker.Shutdown(ctx); err != nil {
		logging.Warn().Err(err).Msg("Embedded NATS broker shutdown incomplete")
	}
	c.broker = nil
}

// IsRunning reports whether the subscriber is started.
func (c *Components) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// Subscribed reports whether every topic subscription is currently active.
func (c *Components) Subscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscriber != nil && c.subscriber.Subscribed()
}
