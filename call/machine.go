// Copyright 2026 The Cranix Authors
// SPDX-License-Identifier: Apache-2.0

package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cranix-one/cranix/chat"
	"github.com/cranix-one/cranix/lib/clock"
)

// Compile-time interface checks for the chat collaborators.
var (
	_ Rooms   = (*chat.Router)(nil)
	_ Markers = (*chat.Pipeline)(nil)
)

// State is the call machine's lifecycle state.
type State int

const (
	// Idle: not registered with the signaling layer.
	Idle State = iota
	// Registering: claiming the identity, retrying collisions.
	Registering
	// Ready: registered, listening for offers, no call.
	Ready
	// Calling: outbound call placed, waiting for the peer to answer.
	Calling
	// Ringing: inbound offer pending, waiting for a local decision.
	Ringing
	// Active: both media legs live.
	Active
	// Failed: registration gave up. Terminal until Start is called again.
	Failed
)

var stateNames = map[State]string{
	Idle:        "idle",
	Registering: "registering",
	Ready:       "ready",
	Calling:     "calling",
	Ringing:     "ringing",
	Active:      "active",
	Failed:      "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Rooms exposes the active room. *chat.Router satisfies it.
type Rooms interface {
	ActiveRoomID() chat.Room
}

// Markers posts system markers to the active room's timeline.
// *chat.Pipeline satisfies it.
type Markers interface {
	SystemMarker(text string) error
}

// Marker texts posted for call outcomes.
const (
	markerMissedOffline    = "📞 Missed Call (User Offline)"
	markerMissedConnection = "📞 Missed Call (Connection Failed)"
	markerCallFailed       = "📞 Call Failed"
)

// DefaultRegisterRetryDelay is the wait between identity-collision
// registration attempts.
const DefaultRegisterRetryDelay = time.Second

// Config holds configuration for creating a Machine.
type Config struct {
	// Signaling is the peer call layer. Required.
	Signaling Signaling
	// Media acquires the local audio device. Required.
	Media Media
	// Self is the session identity registered for calls. Required.
	Self string
	// Rooms provides the active room for call preconditions. Required.
	Rooms Rooms
	// Markers posts call outcome markers to the timeline. Nil drops
	// them.
	Markers Markers
	// RegisterRetryDelay is the wait between collision retries.
	// Default: DefaultRegisterRetryDelay.
	RegisterRetryDelay time.Duration
	// MaxRegisterAttempts bounds collision retries. 0 retries forever.
	MaxRegisterAttempts int
	// Clock drives the retry delay. Nil uses the real clock.
	Clock clock.Clock
	// Logger is used for structured logging. If nil, slog.Default().
	Logger *slog.Logger
}

// Machine is the call state machine for one session. All methods are
// safe for concurrent use; at most one call exists at a time.
type Machine struct {
	signaling   Signaling
	media       Media
	self        string
	rooms       Rooms
	markers     Markers
	retryDelay  time.Duration
	maxAttempts int
	clock       clock.Clock
	logger      *slog.Logger

	mu      sync.Mutex
	state   State
	pending *Offer
	session *session
}

// session is the one live (or in-flight) call.
type session struct {
	peer  string
	track MediaTrack
	link  PeerLink
}

// NewMachine creates a call machine in the Idle state.
func NewMachine(config Config) (*Machine, error) {
	if config.Signaling == nil {
		return nil, fmt.Errorf("call: Signaling is required")
	}
	if config.Media == nil {
		return nil, fmt.Errorf("call: Media is required")
	}
	if config.Self == "" {
		return nil, fmt.Errorf("call: Self is required")
	}
	if config.Rooms == nil {
		return nil, fmt.Errorf("call: Rooms is required")
	}

	retryDelay := config.RegisterRetryDelay
	if retryDelay <= 0 {
		retryDelay = DefaultRegisterRetryDelay
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Machine{
		signaling:   config.Signaling,
		media:       config.Media,
		self:        config.Self,
		rooms:       config.Rooms,
		markers:     config.Markers,
		retryDelay:  retryDelay,
		maxAttempts: config.MaxRegisterAttempts,
		clock:       clk,
		logger:      logger,
		state:       Idle,
	}, nil
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Pending returns the caller of the inbound offer awaiting a decision,
// if any.
func (m *Machine) Pending() (peer string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return "", false
	}
	return m.pending.Peer, true
}

// Start registers the identity with the signaling layer and begins
// watching for inbound offers. Identity collisions are retried on the
// configured delay; with MaxRegisterAttempts of 0 the retry never
// gives up, so Start blocks until registration wins, ctx is cancelled,
// or a non-collision error occurs.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state != Idle && m.state != Failed {
		m.mu.Unlock()
		return fmt.Errorf("call: already started (state %s)", m.state)
	}
	m.state = Registering
	m.mu.Unlock()

	attempt := 0
	for {
		attempt++
		err := m.signaling.Register(ctx, m.self)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrIdentityCollision) {
			m.setState(Failed)
			return fmt.Errorf("call: registering %s: %w", m.self, err)
		}
		if m.maxAttempts > 0 && attempt >= m.maxAttempts {
			m.setState(Failed)
			return fmt.Errorf("call: registering %s: gave up after %d attempts: %w",
				m.self, attempt, ErrIdentityCollision)
		}

		m.logger.Warn("identity collision, retrying registration",
			"identity", m.self,
			"attempt", attempt,
			"delay", m.retryDelay,
		)
		select {
		case <-m.clock.After(m.retryDelay):
		case <-ctx.Done():
			m.setState(Failed)
			return ctx.Err()
		}
	}

	m.setState(Ready)
	m.logger.Info("call signaling registered", "identity", m.self)

	go m.watchOffers()
	return nil
}

// watchOffers surfaces inbound offers as the pending call. Offers that
// arrive while a call exists are declined immediately.
func (m *Machine) watchOffers() {
	for offer := range m.signaling.Offers() {
		m.mu.Lock()
		if m.state != Ready {
			m.mu.Unlock()
			m.logger.Info("declining offer while busy", "caller", offer.Peer)
			offer.Decline()
			continue
		}
		m.state = Ringing
		m.pending = offer
		m.mu.Unlock()
		m.logger.Info("incoming call", "caller", offer.Peer)
	}
}

// StartCall places a call to the active room's peer. Preconditions:
// registered and idle, an active direct room. Media is acquired before
// the peer is contacted; an unreachable peer posts a missed-call
// marker and returns the machine to Ready.
func (m *Machine) StartCall(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case Calling, Ringing, Active:
		m.mu.Unlock()
		return ErrCallInProgress
	case Ready:
	default:
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("%w: state %s", ErrNotReady, state)
	}

	room := m.rooms.ActiveRoomID()
	if room == "" {
		m.mu.Unlock()
		return chat.ErrNoActiveRoom
	}
	if !room.IsDirect() {
		m.mu.Unlock()
		return fmt.Errorf("%w: room %s", ErrGroupCallUnsupported, room)
	}
	peer, err := room.DirectPeer(m.self)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	track, err := m.media.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
	}

	m.mu.Lock()
	if m.state != Ready {
		// An offer arrived while the device was opening. Yield to it.
		m.mu.Unlock()
		track.Close()
		return ErrCallInProgress
	}
	m.state = Calling
	m.session = &session{peer: peer, track: track}
	m.mu.Unlock()

	m.logger.Info("placing call", "peer", peer)

	link, err := m.signaling.Dial(ctx, peer, track)
	if err != nil {
		m.mu.Lock()
		m.releaseSessionLocked()
		m.state = Ready
		m.mu.Unlock()

		if errors.Is(err, ErrPeerUnreachable) {
			m.postMarker(markerMissedOffline)
			return fmt.Errorf("call: dialing %s: %w", peer, err)
		}
		m.postMarker(markerMissedConnection)
		return fmt.Errorf("call: dialing %s: %w", peer, err)
	}

	m.mu.Lock()
	if m.session == nil || m.state != Calling {
		// Torn down while dialing (shutdown or hangup).
		m.mu.Unlock()
		link.Close()
		track.Close()
		return fmt.Errorf("call: call cancelled during dial")
	}
	m.session.link = link
	m.mu.Unlock()

	go m.watchLink(link)
	return nil
}

// Answer accepts the pending inbound call. Media acquisition failure
// declines the offer and returns the machine to Ready.
func (m *Machine) Answer(ctx context.Context) error {
	m.mu.Lock()
	if m.state != Ringing || m.pending == nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: no pending call", ErrNotReady)
	}
	offer := m.pending
	m.mu.Unlock()

	track, err := m.media.Acquire(ctx)
	if err != nil {
		m.mu.Lock()
		if m.pending == offer {
			m.pending = nil
			m.state = Ready
		}
		m.mu.Unlock()
		offer.Decline()
		return fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
	}

	link, err := offer.Answer(ctx, track)
	if err != nil {
		track.Close()
		m.mu.Lock()
		if m.pending == offer {
			m.pending = nil
			m.state = Ready
		}
		m.mu.Unlock()
		return fmt.Errorf("call: answering %s: %w", offer.Peer, err)
	}

	m.mu.Lock()
	m.pending = nil
	m.state = Active
	m.session = &session{peer: offer.Peer, track: track, link: link}
	m.mu.Unlock()

	m.logger.Info("call answered", "peer", offer.Peer)
	go m.watchLink(link)
	return nil
}

// Decline discards the pending inbound call.
func (m *Machine) Decline() {
	m.mu.Lock()
	offer := m.pending
	if offer != nil {
		m.pending = nil
		m.state = Ready
	}
	m.mu.Unlock()

	if offer != nil {
		m.logger.Info("call declined", "caller", offer.Peer)
		offer.Decline()
	}
}

// ToggleMute flips the local track's enabled flag without
// renegotiating. Returns the new muted state.
func (m *Machine) ToggleMute() (muted bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil || m.session.track == nil {
		return false, fmt.Errorf("%w: no live media", ErrNotReady)
	}
	enabled := !m.session.track.Enabled()
	m.session.track.SetEnabled(enabled)
	return !enabled, nil
}

// EndCall hangs up locally: releases the local track, closes the link,
// and returns to Ready. Also discards a pending inbound offer. Safe to
// call with no call in progress.
func (m *Machine) EndCall() {
	m.Decline()

	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return
	}
	peer := m.session.peer
	m.releaseSessionLocked()
	m.state = Ready
	m.mu.Unlock()

	m.logger.Info("call ended", "peer", peer)
}

// watchLink drives the machine off the link's lifecycle: answered
// offers go Active, remote termination and failure funnel into the
// same teardown as a local hangup.
func (m *Machine) watchLink(link PeerLink) {
	select {
	case <-link.Connected():
		m.mu.Lock()
		if m.session != nil && m.session.link == link && m.state == Calling {
			m.state = Active
			m.logger.Info("call active", "peer", m.session.peer)
		}
		m.mu.Unlock()
		<-link.Done()
		m.remoteTeardown(link)
	case <-link.Done():
		m.remoteTeardown(link)
	}
}

// remoteTeardown handles a link that ended without a local hangup:
// remote hangup, decline, or failure. Identical resource release to
// EndCall; a failure additionally posts a marker.
func (m *Machine) remoteTeardown(link PeerLink) {
	m.mu.Lock()
	if m.session == nil || m.session.link != link {
		// Already torn down locally.
		m.mu.Unlock()
		return
	}
	peer := m.session.peer
	m.releaseSessionLocked()
	m.state = Ready
	m.mu.Unlock()

	if err := link.Err(); err != nil {
		m.logger.Warn("call link failed", "peer", peer, "error", err)
		m.postMarker(markerCallFailed)
		return
	}
	m.logger.Info("call ended by peer", "peer", peer)
}

// releaseSessionLocked closes the session's track and link. Caller
// holds m.mu and sets the follow-up state.
func (m *Machine) releaseSessionLocked() {
	if m.session == nil {
		return
	}
	if m.session.track != nil {
		m.session.track.Close()
	}
	if m.session.link != nil {
		m.session.link.Close()
	}
	m.session = nil
}

// Shutdown ends any call, discards any pending offer, and releases the
// signaling registration. Called on logout, before the event channel
// is torn down.
func (m *Machine) Shutdown(ctx context.Context) error {
	m.EndCall()

	err := m.signaling.Unregister(ctx)
	m.signaling.Close()
	m.setState(Idle)
	if err != nil {
		return fmt.Errorf("call: unregistering: %w", err)
	}
	return nil
}

// postMarker posts a call outcome marker to the active room, best
// effort.
func (m *Machine) postMarker(text string) {
	if m.markers == nil {
		return
	}
	if err := m.markers.SystemMarker(text); err != nil {
		m.logger.Warn("posting call marker failed", "marker", text, "error", err)
	}
}

func (m *Machine) setState(state State) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}
