// Copyright 2026 The Cranix Authors
// SPDX-License-Identifier: Apache-2.0

package call

import "context"

// Signaling is the peer-to-peer call layer: identity registration,
// outbound dialing, and inbound offers. Implementations:
// MemorySignaling (in-process, tests) and WebRTCSignaling
// (production).
type Signaling interface {
	// Register claims the identity at the signaling layer. Fails with
	// an error wrapping ErrIdentityCollision while another live
	// session holds it.
	Register(ctx context.Context, userID string) error

	// Unregister releases the identity. Safe to call when not
	// registered.
	Unregister(ctx context.Context) error

	// Dial places a call to peerID, attaching the local track. Fails
	// with an error wrapping ErrPeerUnreachable when peerID has no
	// live registration. The returned link is live immediately;
	// Connected closes once the remote side answers.
	Dial(ctx context.Context, peerID string, local MediaTrack) (PeerLink, error)

	// Offers delivers inbound call offers. The channel is closed by
	// Close.
	Offers() <-chan *Offer

	// Close unregisters and releases the layer. Idempotent.
	Close() error
}

// Offer is one inbound call. It does not auto-answer: the receiver
// either answers with a local track or declines.
type Offer struct {
	// Peer is the caller's identity.
	Peer string

	answer  func(ctx context.Context, local MediaTrack) (PeerLink, error)
	decline func()
}

// Answer accepts the call, attaching the local track.
func (o *Offer) Answer(ctx context.Context, local MediaTrack) (PeerLink, error) {
	return o.answer(ctx, local)
}

// Decline discards the call. The caller observes the link closing.
func (o *Offer) Decline() {
	o.decline()
}

// PeerLink is one live call leg. Local termination goes through
// Close; remote termination and link failure both close Done — the
// machine treats them identically.
type PeerLink interface {
	// Peer is the remote identity.
	Peer() string
	// Connected is closed once the remote side has answered and media
	// is flowing.
	Connected() <-chan struct{}
	// Done is closed when the link ends for any reason other than a
	// local Close: remote hangup, decline, or failure.
	Done() <-chan struct{}
	// Err reports why Done closed. Nil for a clean remote hangup or
	// decline, non-nil for a link failure.
	Err() error
	// Close hangs up locally. Idempotent.
	Close() error
}
