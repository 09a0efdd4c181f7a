// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package realtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/patrolmap/internal/config"
	"github.com/tomtom215/patrolmap/internal/logging"
	"github.com/tomtom215/patrolmap/internal/metrics"
	"github.com/tomtom215/patrolmap/internal/models"
)

// ErrSubscriptionClosed is returned by Run when a topic's message channel
// closes while the subscriber is still meant to be running.
var ErrSubscriptionClosed = errors.New("push subscription closed")

// Route binds a broker topic to the kind its messages carry.
type Route struct {
	Topic string
	Kind  models.Kind
}

// RoutesFromConfig converts the topic map into routes sorted by topic.
func RoutesFromConfig(topics map[string]string) ([]Route, error) {
	routes := make([]Route, 0, len(topics))
	for topic, name := range topics {
		kind, err := models.ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("topic %s: %w", topic, err)
		}
		routes = append(routes, Route{Topic: topic, Kind: kind})
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].Topic < routes[j].Topic })
	return routes, nil
}

// NewNATSSubscriber creates a core NATS watermill subscriber. JetStream is
// off: pushes are live updates and nothing is replayed on reconnect.
func NewNATSSubscriber(cfg *config.RealtimeConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	if logger == nil {
		logger = logging.NewWatermillLogger("nats")
	}

	natsOpts := []natsgo.Option{
		natsgo.Name(cfg.ClientName),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			metrics.SetBrokerConnected(false)
			if err != nil {
				logger.Error("Subscriber disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			metrics.SetBrokerConnected(true)
			logger.Info("Subscriber reconnected", watermill.LogFields{
				"url": nc.ConnectedUrl(),
			})
		}),
	}

	wmConfig := wmNats.SubscriberConfig{
		URL:              cfg.URL,
		SubscribersCount: 1, // one consumer per topic keeps delivery order
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled: true,
		},
	}

	sub, err := wmNats.NewSubscriber(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill subscriber: %w", err)
	}
	return sub, nil
}

// Subscriber feeds every routed topic into a Protocol. Messages on one
// topic are applied in delivery order; topics are independent.
type Subscriber struct {
	sub      message.Subscriber
	protocol *Protocol
	routes   []Route
	log      *logging.SyncLogger

	subscribed atomic.Bool
}

// NewSubscriber creates a subscriber over any watermill subscriber.
func NewSubscriber(sub message.Subscriber, p *Protocol, routes []Route) *Subscriber {
	return &Subscriber{
		sub:      sub,
		protocol: p,
		routes:   routes,
		log:      logging.NewSyncLogger("realtime"),
	}
}

// Subscribed reports whether every topic subscription is active.
func (s *Subscriber) Subscribed() bool {
	return s.subscribed.Load()
}

// Routes returns the topic routes.
func (s *Subscriber) Routes() []Route {
	return s.routes
}

// Run subscribes to every topic and applies messages until ctx is
// canceled or a subscription closes.
func (s *Subscriber) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	for _, r := range s.routes {
		msgs, err := s.sub.Subscribe(gctx, r.Topic)
		if err != nil {
			cancel()
			_ = g.Wait()
			return fmt.Errorf("subscribe to %s: %w", r.Topic, err)
		}
		s.log.LogSubscriptionStarted(r.Topic, r.Kind.String())

		g.Go(func() error {
			defer s.log.LogSubscriptionStopped(r.Topic)
			return s.consume(gctx, r, msgs)
		})
	}

	s.subscribed.Store(true)
	metrics.SetBrokerConnected(true)
	defer func() {
		s.subscribed.Store(false)
		metrics.SetBrokerConnected(false)
	}()

	err := g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *Subscriber) consume(ctx context.Context, r Route, msgs <-chan *message.Message) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("%w: %s", ErrSubscriptionClosed, r.Topic)
			}
			s.handle(r, msg)
		}
	}
}

// handle applies one message. Every message is acked once handled,
// including malformed ones.
func (s *Subscriber) handle(r Route, msg *message.Message) {
	defer msg.Ack()

	if _, err := s.protocol.OnMessageFrom(r.Topic, r.Kind, msg.Payload); err != nil {
		logging.Debug().
			Err(err).
			Str("topic", r.Topic).
			Str("message_uuid", msg.UUID).
			Msg("push message not applied")
	}
}

// Close closes the underlying watermill subscriber.
func (s *Subscriber) Close() error {
	return s.sub.Close()
}
