// Copyright 2026 The Cranix Authors
// SPDX-License-Identifier: Apache-2.0

package call

import (
	"context"
	"fmt"
	"sync"
)

// Compile-time interface check.
var _ Signaling = (*MemorySignaling)(nil)

// MemoryHub connects MemorySignaling endpoints in-process, bypassing
// WebRTC entirely. Two endpoints sharing a hub can place calls to each
// other without any network, which is how the machine tests run.
type MemoryHub struct {
	mu        sync.Mutex
	endpoints map[string]*MemorySignaling
}

// NewMemoryHub creates an empty in-process signaling hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{endpoints: make(map[string]*MemorySignaling)}
}

// Endpoint creates an unregistered endpoint attached to the hub.
func (h *MemoryHub) Endpoint() *MemorySignaling {
	return &MemorySignaling{
		hub:    h,
		offers: make(chan *Offer, 8),
	}
}

// register claims userID for the endpoint.
func (h *MemoryHub) register(userID string, endpoint *MemorySignaling) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if holder, taken := h.endpoints[userID]; taken && holder != endpoint {
		return fmt.Errorf("%w: %s", ErrIdentityCollision, userID)
	}
	h.endpoints[userID] = endpoint
	return nil
}

// unregister releases userID if the endpoint still holds it.
func (h *MemoryHub) unregister(userID string, endpoint *MemorySignaling) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if holder, ok := h.endpoints[userID]; ok && holder == endpoint {
		delete(h.endpoints, userID)
	}
}

// lookup returns the endpoint registered as userID.
func (h *MemoryHub) lookup(userID string) (*MemorySignaling, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	endpoint, ok := h.endpoints[userID]
	return endpoint, ok
}

// MemorySignaling is one endpoint on a MemoryHub. Create with
// MemoryHub.Endpoint.
type MemorySignaling struct {
	hub    *MemoryHub
	offers chan *Offer

	mu        sync.Mutex
	userID    string
	closed    bool
	closeOnce sync.Once
}

func (s *MemorySignaling) Register(_ context.Context, userID string) error {
	if err := s.hub.register(userID, s); err != nil {
		return err
	}
	s.mu.Lock()
	s.userID = userID
	s.mu.Unlock()
	return nil
}

func (s *MemorySignaling) Unregister(context.Context) error {
	s.mu.Lock()
	userID := s.userID
	s.userID = ""
	s.mu.Unlock()
	if userID != "" {
		s.hub.unregister(userID, s)
	}
	return nil
}

func (s *MemorySignaling) Dial(_ context.Context, peerID string, local MediaTrack) (PeerLink, error) {
	s.mu.Lock()
	caller := s.userID
	s.mu.Unlock()
	if caller == "" {
		return nil, fmt.Errorf("call: dialing before registration")
	}

	remote, ok := s.hub.lookup(peerID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPeerUnreachable, peerID)
	}

	callerLink, calleeLink := newMemoryLinkPair(peerID, caller)
	offer := &Offer{
		Peer: caller,
		answer: func(context.Context, MediaTrack) (PeerLink, error) {
			calleeLink.core.connect()
			return calleeLink, nil
		},
		decline: func() {
			calleeLink.core.hangUp(nil)
		},
	}

	// Deliver under the remote's lock so the send cannot race its
	// Close.
	remote.mu.Lock()
	defer remote.mu.Unlock()
	if remote.closed {
		return nil, fmt.Errorf("%w: %s", ErrPeerUnreachable, peerID)
	}
	select {
	case remote.offers <- offer:
	default:
		return nil, fmt.Errorf("%w: %s not accepting offers", ErrPeerUnreachable, peerID)
	}
	return callerLink, nil
}

func (s *MemorySignaling) Offers() <-chan *Offer {
	return s.offers
}

func (s *MemorySignaling) Close() error {
	s.Unregister(context.Background())
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.offers)
		s.mu.Unlock()
	})
	return nil
}

// linkCore is the state shared by the two sides of an in-process call
// leg. Either side's hangup is visible to both.
type linkCore struct {
	connected   chan struct{}
	done        chan struct{}
	connectOnce sync.Once
	doneOnce    sync.Once

	mu  sync.Mutex
	err error
}

// connect marks the call answered on both sides.
func (c *linkCore) connect() {
	c.connectOnce.Do(func() { close(c.connected) })
}

// hangUp terminates the call for both sides. A non-nil cause marks a
// link failure rather than a clean hangup.
func (c *linkCore) hangUp(cause error) {
	c.doneOnce.Do(func() {
		if cause != nil {
			c.mu.Lock()
			c.err = cause
			c.mu.Unlock()
		}
		close(c.done)
	})
}

// memoryLink is one side of an in-process call leg.
type memoryLink struct {
	peer string
	core *linkCore
}

// newMemoryLinkPair builds the two joined legs of a call. The first
// return is the caller's link (peer = callee), the second the
// callee's (peer = caller).
func newMemoryLinkPair(calleeID, callerID string) (*memoryLink, *memoryLink) {
	core := &linkCore{
		connected: make(chan struct{}),
		done:      make(chan struct{}),
	}
	return &memoryLink{peer: calleeID, core: core}, &memoryLink{peer: callerID, core: core}
}

func (l *memoryLink) Peer() string               { return l.peer }
func (l *memoryLink) Connected() <-chan struct{} { return l.core.connected }
func (l *memoryLink) Done() <-chan struct{}      { return l.core.done }

func (l *memoryLink) Err() error {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	return l.core.err
}

func (l *memoryLink) Close() error {
	l.core.hangUp(nil)
	return nil
}

// Fail terminates the link as a failure, as if the transport died.
// Test hook for the abrupt-peer-death scenario.
func (l *memoryLink) Fail(cause error) {
	l.core.hangUp(cause)
}
