// Copyright 2026 The Cranix Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import "errors"

var (
	// ErrUnreachable indicates the server could not be reached at all.
	ErrUnreachable = errors.New("chat: server unreachable")

	// ErrUnauthenticated indicates the server rejected the identity
	// during the connection handshake.
	ErrUnauthenticated = errors.New("chat: identity rejected")

	// ErrConnectionLost indicates an operation ran on a connection
	// that has already dropped or been closed.
	ErrConnectionLost = errors.New("chat: connection lost")

	// ErrNoActiveRoom indicates a send or typing operation with no
	// room selected.
	ErrNoActiveRoom = errors.New("chat: no active room")
)
