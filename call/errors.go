// Copyright 2026 The Cranix Authors
// SPDX-License-Identifier: Apache-2.0

package call

import "errors"

var (
	// ErrIdentityCollision means another live session already holds
	// this identity at the signaling layer. Registration retries on a
	// delay; the error only surfaces once the retry budget runs out.
	ErrIdentityCollision = errors.New("call: identity already registered")

	// ErrPeerUnreachable means the target peer has no live signaling
	// registration. Resolves to a missed-call marker, never a stuck
	// call.
	ErrPeerUnreachable = errors.New("call: peer unreachable")

	// ErrMediaUnavailable means the local audio device could not be
	// acquired. The peer is never contacted.
	ErrMediaUnavailable = errors.New("call: media unavailable")

	// ErrGroupCallUnsupported means the active room is a group
	// channel; only direct rooms can carry a call.
	ErrGroupCallUnsupported = errors.New("call: group calls are not supported")

	// ErrCallInProgress means a call already exists. The existing call
	// is untouched.
	ErrCallInProgress = errors.New("call: a call is already in progress")

	// ErrNotReady means the machine is not in a state that permits the
	// requested operation.
	ErrNotReady = errors.New("call: not ready")
)
