// Copyright 2026 The Cranix Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Emitter sends outbound events to the server. Conn implements it;
// tests substitute a recorder.
type Emitter interface {
	Emit(event string, payload any) error
}

// Subscriber registers inbound event handlers by event name. Conn
// implements it; tests substitute a manual dispatcher.
type Subscriber interface {
	On(event string, handler func(json.RawMessage)) (cancel func())
}

// ConnConfig holds configuration for dialing the event channel.
type ConnConfig struct {
	// ServerURL is the base HTTP URL of the chat server; the scheme is
	// rewritten to ws/wss for the upgrade.
	ServerURL string
	// EventPath is the websocket endpoint path. Default: /events
	EventPath string
	// Username is the identity announced in the login event.
	Username string
	// Token authenticates the upgrade request (Bearer header).
	Token string
	// Dialer performs the websocket handshake. If nil,
	// websocket.DefaultDialer is used.
	Dialer *websocket.Dialer
	// Logger is used for structured logging. If nil, slog.Default().
	Logger *slog.Logger
}

// Conn is the single persistent bidirectional channel to the server.
// One read goroutine dispatches inbound events to subscribers
// sequentially; writes are serialized by a mutex. Conn does not
// reconnect after a drop — it dispatches the connection_lost event and
// leaves reconnection to the caller.
type Conn struct {
	socket   *websocket.Conn
	username string
	logger   *slog.Logger

	writeMu sync.Mutex

	// handlers maps event name → subscription id → handler. The id
	// keys make cancellation O(1) without index bookkeeping.
	handlersMu sync.Mutex
	handlers   map[string]map[string]func(json.RawMessage)

	lost      chan struct{}
	closeOnce sync.Once
	closedMu  sync.Mutex
	closed    bool
}

// Dial connects the event channel and announces the identity. Fails
// with ErrUnreachable when the server cannot be reached and with
// ErrUnauthenticated when the server rejects the upgrade credentials.
func Dial(ctx context.Context, config ConnConfig) (*Conn, error) {
	if config.ServerURL == "" {
		return nil, fmt.Errorf("chat: ServerURL is required")
	}
	if config.Username == "" {
		return nil, fmt.Errorf("chat: Username is required")
	}

	endpoint, err := eventURL(config.ServerURL, config.EventPath)
	if err != nil {
		return nil, err
	}

	dialer := config.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	header := http.Header{}
	if config.Token != "" {
		header.Set("Authorization", "Bearer "+config.Token)
	}

	socket, response, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if response != nil && (response.StatusCode == http.StatusUnauthorized ||
			response.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: server returned %d", ErrUnauthenticated, response.StatusCode)
		}
		return nil, fmt.Errorf("%w: dialing %s: %v", ErrUnreachable, endpoint, err)
	}

	conn := &Conn{
		socket:   socket,
		username: config.Username,
		logger:   logger,
		handlers: make(map[string]map[string]func(json.RawMessage)),
		lost:     make(chan struct{}),
	}

	// Announce the identity immediately so the server adds it to the
	// live roster before any other traffic.
	if err := conn.Emit(EventUserLogin, LoginPayload{Username: config.Username}); err != nil {
		socket.Close()
		return nil, fmt.Errorf("chat: login announcement failed: %w", err)
	}

	logger.Info("event channel connected", "user", config.Username, "endpoint", endpoint)

	go conn.readLoop()
	return conn, nil
}

// eventURL rewrites the server base URL to the websocket endpoint.
func eventURL(serverURL, eventPath string) (string, error) {
	parsed, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("chat: invalid ServerURL %q: %w", serverURL, err)
	}
	switch parsed.Scheme {
	case "http", "ws":
		parsed.Scheme = "ws"
	case "https", "wss":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("chat: unsupported scheme %q in ServerURL", parsed.Scheme)
	}
	if eventPath == "" {
		eventPath = "/events"
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + eventPath
	return parsed.String(), nil
}

// On subscribes handler to the named event. The returned cancel
// function releases the subscription; calling it more than once is
// harmless. Handlers run on the read goroutine, one at a time — a
// handler must not block on another inbound event.
func (c *Conn) On(event string, handler func(json.RawMessage)) (cancel func()) {
	id := uuid.NewString()

	c.handlersMu.Lock()
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[string]func(json.RawMessage))
	}
	c.handlers[event][id] = handler
	c.handlersMu.Unlock()

	return func() {
		c.handlersMu.Lock()
		delete(c.handlers[event], id)
		c.handlersMu.Unlock()
	}
}

// Emit sends an outbound event to the server.
func (c *Conn) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("chat: encoding %s payload: %w", event, err)
	}
	envelope := Envelope{Event: event, Data: data}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.isClosed() {
		return ErrConnectionLost
	}
	if err := c.socket.WriteJSON(envelope); err != nil {
		return fmt.Errorf("%w: writing %s: %v", ErrConnectionLost, event, err)
	}
	return nil
}

// Lost returns a channel closed when the connection drops for any
// reason other than an explicit Close.
func (c *Conn) Lost() <-chan struct{} {
	return c.lost
}

// Close releases the connection and all subscriptions. Idempotent.
// A local close does not dispatch connection_lost.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closedMu.Lock()
		c.closed = true
		c.closedMu.Unlock()

		c.writeMu.Lock()
		c.socket.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		c.socket.Close()

		c.handlersMu.Lock()
		c.handlers = make(map[string]map[string]func(json.RawMessage))
		c.handlersMu.Unlock()
	})
	return nil
}

func (c *Conn) isClosed() bool {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()
	return c.closed
}

// readLoop decodes inbound envelopes and dispatches them until the
// connection drops. Dispatch is sequential: the next envelope is not
// read until every handler for the current one has returned.
func (c *Conn) readLoop() {
	for {
		var envelope Envelope
		if err := c.socket.ReadJSON(&envelope); err != nil {
			if c.isClosed() {
				return
			}
			c.logger.Warn("event channel dropped", "error", err)
			c.dispatch(EventConnectionLost, nil)
			close(c.lost)
			c.Close()
			return
		}
		if envelope.Event == "" {
			c.logger.Debug("discarding envelope without event name")
			continue
		}
		c.dispatch(envelope.Event, envelope.Data)
	}
}

// dispatch invokes the handlers subscribed to event. The handler set
// is snapshotted under the lock and invoked outside it so a handler
// can subscribe or cancel without deadlocking.
func (c *Conn) dispatch(event string, data json.RawMessage) {
	c.handlersMu.Lock()
	snapshot := make([]func(json.RawMessage), 0, len(c.handlers[event]))
	for _, handler := range c.handlers[event] {
		snapshot = append(snapshot, handler)
	}
	c.handlersMu.Unlock()

	for _, handler := range snapshot {
		handler(data)
	}
}
