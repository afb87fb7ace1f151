// Copyright 2026 The Cranix Authors
// SPDX-License-Identifier: Apache-2.0

package call

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
)

// Compile-time interface check.
var _ Signaling = (*WebRTCSignaling)(nil)

// offerPollInterval is how often the layer polls the exchange for
// inbound call offers.
const offerPollInterval = 2 * time.Second

// iceGatherTimeout is the maximum time to wait for ICE candidate
// gathering to complete before publishing the SDP.
const iceGatherTimeout = 15 * time.Second

// answerPollInterval is how often the dialer polls for an SDP answer
// after publishing an offer.
const answerPollInterval = 500 * time.Millisecond

// answerTimeout is the maximum time the remote side has to answer
// before the outbound call is treated as failed.
const answerTimeout = 30 * time.Second

// SignalMessage is one signaling payload (offer or answer) relayed
// through the exchange.
type SignalMessage struct {
	// Peer is the identity of the other party: the offerer for
	// received offers, the answerer for received answers.
	Peer string
	// SDP is the complete session description with all ICE candidates
	// embedded.
	SDP string
	// Timestamp is the ISO 8601 creation time of the signal.
	Timestamp string
}

// SignalExchange is the rendezvous broker for call signaling: identity
// registration and SDP relay. The production implementation talks to
// the signaling server; tests exchange through process memory.
//
// The signaling model is vanilla ICE: all ICE candidates are gathered
// before the SDP is published, so establishment needs exactly one
// offer/answer round-trip.
type SignalExchange interface {
	// Register claims userID at the broker. Fails with an error
	// wrapping ErrIdentityCollision while another live session holds
	// it.
	Register(ctx context.Context, userID string) error

	// Unregister releases userID.
	Unregister(ctx context.Context, userID string) error

	// Registered reports whether peerID has a live registration.
	Registered(ctx context.Context, peerID string) (bool, error)

	// PublishOffer stores a complete SDP offer from userID directed at
	// peerID.
	PublishOffer(ctx context.Context, userID, peerID, sdp string) error

	// PublishAnswer stores a complete SDP answer from userID for the
	// offer previously published by peerID.
	PublishAnswer(ctx context.Context, userID, peerID, sdp string) error

	// PollOffers returns unseen offers directed at userID.
	PollOffers(ctx context.Context, userID string) ([]SignalMessage, error)

	// PollAnswers returns unseen answers to offers published by
	// userID.
	PollAnswers(ctx context.Context, userID string) ([]SignalMessage, error)
}

// WebRTCSignaling is the production Signaling: one pion PeerConnection
// per call, signaled through a SignalExchange with vanilla ICE.
type WebRTCSignaling struct {
	exchange   SignalExchange
	iceServers []webrtc.ICEServer
	logger     *slog.Logger

	offers chan *Offer

	mu           sync.Mutex
	userID       string
	offersClosed bool

	closed    chan struct{}
	closeOnce sync.Once
}

// NewWebRTCSignaling creates the production signaling layer. Register
// must be called before Dial, and starts the inbound offer poller.
func NewWebRTCSignaling(exchange SignalExchange, iceServers []webrtc.ICEServer, logger *slog.Logger) *WebRTCSignaling {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebRTCSignaling{
		exchange:   exchange,
		iceServers: iceServers,
		logger:     logger,
		offers:     make(chan *Offer, 8),
		closed:     make(chan struct{}),
	}
}

func (s *WebRTCSignaling) Register(ctx context.Context, userID string) error {
	if err := s.exchange.Register(ctx, userID); err != nil {
		return err
	}

	s.mu.Lock()
	first := s.userID == ""
	s.userID = userID
	s.mu.Unlock()

	if first {
		go s.pollInbound()
	}
	return nil
}

func (s *WebRTCSignaling) Unregister(ctx context.Context) error {
	s.mu.Lock()
	userID := s.userID
	s.userID = ""
	s.mu.Unlock()

	if userID == "" {
		return nil
	}
	return s.exchange.Unregister(ctx, userID)
}

// Dial verifies the peer is registered, then runs the offer side of
// the handshake: gather all candidates, publish the offer, and wait
// for the answer in the background. The returned link's Connected
// channel closes once ICE reaches the connected state.
func (s *WebRTCSignaling) Dial(ctx context.Context, peerID string, local MediaTrack) (PeerLink, error) {
	s.mu.Lock()
	userID := s.userID
	s.mu.Unlock()
	if userID == "" {
		return nil, fmt.Errorf("call: dialing before registration")
	}

	live, err := s.exchange.Registered(ctx, peerID)
	if err != nil {
		return nil, fmt.Errorf("call: looking up %s: %w", peerID, err)
	}
	if !live {
		return nil, fmt.Errorf("%w: %s", ErrPeerUnreachable, peerID)
	}

	pc, err := s.newPeerConnection(local)
	if err != nil {
		return nil, err
	}

	link := newWebRTCLink(peerID, pc)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("call: creating SDP offer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return nil, fmt.Errorf("call: setting local description: %w", err)
	}
	select {
	case <-gatherComplete:
	case <-time.After(iceGatherTimeout):
		pc.Close()
		return nil, fmt.Errorf("call: ICE gathering timed out after %s", iceGatherTimeout)
	case <-ctx.Done():
		pc.Close()
		return nil, ctx.Err()
	}

	if err := s.exchange.PublishOffer(ctx, userID, peerID, pc.LocalDescription().SDP); err != nil {
		pc.Close()
		return nil, fmt.Errorf("call: publishing offer: %w", err)
	}
	s.logger.Info("call offer published", "peer", peerID)

	go s.waitForAnswer(userID, peerID, link)
	return link, nil
}

// waitForAnswer polls the exchange for the peer's answer and applies
// it. No answer within the timeout fails the link, which the machine
// turns into a teardown.
func (s *WebRTCSignaling) waitForAnswer(userID, peerID string, link *webrtcLink) {
	ctx, cancel := context.WithTimeout(context.Background(), answerTimeout)
	defer cancel()

	ticker := time.NewTicker(answerPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			link.core.hangUp(fmt.Errorf("call: no answer from %s within %s", peerID, answerTimeout))
			link.pc.Close()
			return
		case <-s.closed:
			return
		case <-link.core.done:
			return
		case <-ticker.C:
			answers, err := s.exchange.PollAnswers(ctx, userID)
			if err != nil {
				s.logger.Warn("polling for call answer failed", "error", err)
				continue
			}
			for _, answer := range answers {
				if answer.Peer != peerID {
					continue
				}
				description := webrtc.SessionDescription{
					Type: webrtc.SDPTypeAnswer,
					SDP:  answer.SDP,
				}
				if err := link.pc.SetRemoteDescription(description); err != nil {
					link.core.hangUp(fmt.Errorf("call: setting remote description: %w", err))
					link.pc.Close()
					return
				}
				// ICE takes over; the state handler closes Connected.
				return
			}
		}
	}
}

func (s *WebRTCSignaling) Offers() <-chan *Offer {
	return s.offers
}

// pollInbound surfaces exchange offers as *Offer values until Close.
func (s *WebRTCSignaling) pollInbound() {
	ticker := time.NewTicker(offerPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.closed:
			return
		case <-ticker.C:
			s.mu.Lock()
			userID := s.userID
			s.mu.Unlock()
			if userID == "" {
				continue
			}

			messages, err := s.exchange.PollOffers(context.Background(), userID)
			if err != nil {
				s.logger.Warn("polling for call offers failed", "error", err)
				continue
			}
			for _, message := range messages {
				s.deliverOffer(userID, message)
			}
		}
	}
}

// deliverOffer wraps an exchange offer for the machine. Answering runs
// the answer side of the handshake; declining drops the offer on the
// floor and lets the caller's answer wait expire.
func (s *WebRTCSignaling) deliverOffer(userID string, message SignalMessage) {
	offer := &Offer{
		Peer: message.Peer,
		answer: func(ctx context.Context, local MediaTrack) (PeerLink, error) {
			return s.answerOffer(ctx, userID, message, local)
		},
		decline: func() {
			s.logger.Info("call offer declined", "caller", message.Peer)
		},
	}

	// Deliver under the lock so the send cannot race Close.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offersClosed {
		return
	}
	select {
	case s.offers <- offer:
	default:
		s.logger.Warn("dropping call offer, queue full", "caller", message.Peer)
	}
}

// answerOffer runs the answer side of the handshake: set the remote
// offer, gather all candidates, publish the answer.
func (s *WebRTCSignaling) answerOffer(ctx context.Context, userID string, message SignalMessage, local MediaTrack) (PeerLink, error) {
	pc, err := s.newPeerConnection(local)
	if err != nil {
		return nil, err
	}

	link := newWebRTCLink(message.Peer, pc)

	remoteOffer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  message.SDP,
	}
	if err := pc.SetRemoteDescription(remoteOffer); err != nil {
		pc.Close()
		return nil, fmt.Errorf("call: setting remote description: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("call: creating SDP answer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return nil, fmt.Errorf("call: setting local description: %w", err)
	}
	select {
	case <-gatherComplete:
	case <-time.After(iceGatherTimeout):
		pc.Close()
		return nil, fmt.Errorf("call: ICE gathering timed out after %s", iceGatherTimeout)
	case <-ctx.Done():
		pc.Close()
		return nil, ctx.Err()
	}

	if err := s.exchange.PublishAnswer(ctx, userID, message.Peer, pc.LocalDescription().SDP); err != nil {
		pc.Close()
		return nil, fmt.Errorf("call: publishing answer: %w", err)
	}

	s.logger.Info("call answered", "caller", message.Peer)
	return link, nil
}

func (s *WebRTCSignaling) Close() error {
	s.Unregister(context.Background())
	s.closeOnce.Do(func() {
		close(s.closed)
		s.mu.Lock()
		s.offersClosed = true
		close(s.offers)
		s.mu.Unlock()
	})
	return nil
}

// newPeerConnection builds a pion PeerConnection with the local track
// attached and the remote audio sink wired up.
func (s *WebRTCSignaling) newPeerConnection(local MediaTrack) (*webrtc.PeerConnection, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: s.iceServers,
	})
	if err != nil {
		return nil, fmt.Errorf("call: creating PeerConnection: %w", err)
	}

	if capable, ok := local.(rtpCapable); ok {
		if _, err := pc.AddTrack(capable.RTPTrack()); err != nil {
			pc.Close()
			return nil, fmt.Errorf("call: attaching local track: %w", err)
		}
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		s.logger.Info("remote audio track", "codec", track.Codec().MimeType)
	})

	return pc, nil
}

// webrtcLink is one live pion call leg. ICE state drives the shared
// link core: connected closes Connected, failure or close ends Done.
type webrtcLink struct {
	peer string
	pc   *webrtc.PeerConnection
	core *linkCore
}

func newWebRTCLink(peer string, pc *webrtc.PeerConnection) *webrtcLink {
	link := &webrtcLink{
		peer: peer,
		pc:   pc,
		core: &linkCore{
			connected: make(chan struct{}),
			done:      make(chan struct{}),
		},
	}

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		switch state {
		case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
			link.core.connect()
		case webrtc.ICEConnectionStateFailed:
			link.core.hangUp(fmt.Errorf("call: ICE connection failed"))
		case webrtc.ICEConnectionStateClosed:
			link.core.hangUp(nil)
		}
	})

	return link
}

func (l *webrtcLink) Peer() string               { return l.peer }
func (l *webrtcLink) Connected() <-chan struct{} { return l.core.connected }
func (l *webrtcLink) Done() <-chan struct{}      { return l.core.done }

func (l *webrtcLink) Err() error {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	return l.core.err
}

func (l *webrtcLink) Close() error {
	l.core.hangUp(nil)
	return l.pc.Close()
}
