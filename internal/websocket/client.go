// Patrolmap - Real-Time Patrol and Incident Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/patrolmap

package websocket

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/patrolmap/internal/logging"
	"github.com/tomtom215/patrolmap/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // 64 KB
	sendBufferSize = 1024
)

var (
	// ErrClientClosed is returned by Send after the client was closed.
	ErrClientClosed = errors.New("websocket client closed")

	// ErrSendBufferFull is returned by Send when the client is not keeping
	// up. The client is closed.
	ErrSendBufferFull = errors.New("websocket send buffer full")
)

// Handler receives the messages a client sends, other than ping, on the
// client's read goroutine. Closed is called once when the connection ends.
type Handler interface {
	HandleMessage(msg Inbound)
	Closed()
}

// clientIDCounter generates unique, monotonically increasing IDs for clients.
// Broadcasts iterate clients in ID order.
var clientIDCounter atomic.Uint64

// Client is a middleman between the websocket connection and the hub
type Client struct {
	id      uint64
	hub     *Hub
	conn    *websocket.Conn
	handler Handler

	mu     sync.Mutex
	send   chan Message
	closed bool
}

// NewClient creates a new Client with a unique deterministic ID. handler
// may be nil and set later with SetHandler, before Start.
func NewClient(hub *Hub, conn *websocket.Conn, handler Handler) *Client {
	return &Client{
		id:      clientIDCounter.Add(1),
		hub:     hub,
		conn:    conn,
		handler: handler,
		send:    make(chan Message, sendBufferSize),
	}
}

// ID returns the client's unique identifier for deterministic ordering
func (c *Client) ID() uint64 {
	return c.id
}

// SetHandler sets the message handler. It must be called before Start.
func (c *Client) SetHandler(h Handler) {
	c.handler = h
}

// Send queues a message for this client without blocking. A full buffer
// closes the client; the read pump then unregisters it.
func (c *Client) Send(msg Message) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	select {
	case c.send <- msg:
		c.mu.Unlock()
		return nil
	default:
	}
	c.closeLocked()
	c.mu.Unlock()

	metrics.WSErrors.WithLabelValues("send_buffer_full").Inc()
	logging.Warn().Uint64("client_id", c.id).Str("message_type", msg.Type).Msg("websocket send buffer full, closing client")
	return ErrSendBufferFull
}

// close closes the send channel once; writePump then sends a close frame.
func (c *Client) close() {
	c.mu.Lock()
	c.closeLocked()
	c.mu.Unlock()
}

func (c *Client) closeLocked() {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump pumps messages from the websocket connection to the handler
func (c *Client) readPump() {
	defer func() {
		if c.hub != nil {
			c.hub.unregister(c)
		}
		c.close()
		_ = c.conn.Close() // Explicitly ignore error - best-effort cleanup
		if c.handler != nil {
			c.handler.Closed()
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				metrics.WSErrors.WithLabelValues("unexpected_close").Inc()
				logging.Error().Err(err).Msg("unexpected websocket close error")
			}
			break
		}
		metrics.WSMessagesReceived.Inc()

		var msg Inbound
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			metrics.WSErrors.WithLabelValues("malformed").Inc()
			_ = c.Send(Message{Type: MessageTypeError, Data: ErrorData{Code: "malformed", Message: "message is not a {type, data} object"}})
			continue
		}

		if msg.Type == MessageTypePing {
			_ = c.Send(Message{Type: MessageTypePong})
			continue
		}
		if c.handler != nil {
			c.handler.HandleMessage(msg)
		}
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close() // Explicitly ignore error - best-effort cleanup
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}

			if !ok {
				// The client was closed
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					logging.Debug().Err(err).Msg("failed to write close message")
				}
				return
			}

			data, err := MarshalMessage(message)
			if err != nil {
				metrics.WSErrors.WithLabelValues("marshal").Inc()
				logging.Error().Err(err).Str("message_type", message.Type).Msg("failed to marshal websocket message")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				metrics.WSErrors.WithLabelValues("write").Inc()
				logging.Debug().Err(err).Msg("failed to write websocket message")
				return
			}
			metrics.WSMessagesSent.Inc()

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start begins reading and writing for the client
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}
