// Copyright 2026 The Cranix Authors
// SPDX-License-Identifier: Apache-2.0

package call

import "context"

// Media acquires the local audio capture for a call. Acquisition can
// fail (device missing, permission denied) and that failure must
// happen before the peer is contacted.
type Media interface {
	// Acquire opens the local audio device. Failures are reported as
	// errors wrapping ErrMediaUnavailable.
	Acquire(ctx context.Context) (MediaTrack, error)
}

// MediaTrack is one live local media handle. Exactly one exists per
// call, and it must be closed on every exit path from the call.
type MediaTrack interface {
	// SetEnabled mutes (false) or unmutes (true) the track without
	// renegotiating the connection.
	SetEnabled(enabled bool)
	// Enabled reports whether the track is currently unmuted.
	Enabled() bool
	// Close releases the underlying device. Idempotent.
	Close() error
}
