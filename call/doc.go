// Copyright 2026 The Cranix Authors
// SPDX-License-Identifier: Apache-2.0

// Package call implements the voice-call state machine and its
// peer-to-peer signaling layer.
//
// The Machine owns the call lifecycle: it registers the session
// identity with the signaling layer, places and answers calls, and
// guarantees that the local media handle is released on every exit
// path, whether the call ends locally, remotely, or through an error.
//
// Signaling is abstracted behind the Signaling interface. Production
// uses WebRTCSignaling (pion PeerConnections with vanilla ICE through
// a SignalExchange broker); tests use MemorySignaling, which connects
// endpoints in-process.
package call
