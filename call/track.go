// Copyright 2026 The Cranix Authors
// SPDX-License-Identifier: Apache-2.0

package call

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// Compile-time interface checks.
var (
	_ Media      = (*SourceMedia)(nil)
	_ MediaTrack = (*SampleTrack)(nil)
)

// SampleSource produces encoded audio samples from a capture device.
// ReadSample blocks until a sample is available and returns io.EOF
// when the device closes.
type SampleSource interface {
	ReadSample() (media.Sample, error)
	Close() error
}

// SourceMedia acquires call media by opening a SampleSource per call.
// The open function fronts the platform capture device; its failure is
// the media-unavailable case.
type SourceMedia struct {
	open func(ctx context.Context) (SampleSource, error)
}

// NewSourceMedia creates a Media backed by the given device opener.
func NewSourceMedia(open func(ctx context.Context) (SampleSource, error)) *SourceMedia {
	return &SourceMedia{open: open}
}

// Acquire opens the capture device and starts pumping it into a fresh
// RTP track.
func (m *SourceMedia) Acquire(ctx context.Context) (MediaTrack, error) {
	source, err := m.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
	}
	track, err := newSampleTrack(source)
	if err != nil {
		source.Close()
		return nil, err
	}
	return track, nil
}

// rtpCapable is implemented by tracks that can attach to a pion
// PeerConnection. WebRTCSignaling requires it; MemorySignaling and
// test fakes do not provide it.
type rtpCapable interface {
	RTPTrack() webrtc.TrackLocal
}

// SampleTrack is the production MediaTrack: an Opus RTP track fed from
// a SampleSource by a pump goroutine. Mute drops samples at the pump
// instead of renegotiating.
type SampleTrack struct {
	source  SampleSource
	track   *webrtc.TrackLocalStaticSample
	enabled atomic.Bool

	closeOnce sync.Once
	done      chan struct{}
}

func newSampleTrack(source SampleSource) (*SampleTrack, error) {
	rtpTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "cranix-voice",
	)
	if err != nil {
		return nil, fmt.Errorf("call: creating audio track: %w", err)
	}

	track := &SampleTrack{
		source: source,
		track:  rtpTrack,
		done:   make(chan struct{}),
	}
	track.enabled.Store(true)
	go track.pump()
	return track, nil
}

// pump moves samples from the device to the RTP track until the
// source ends or the track closes.
func (t *SampleTrack) pump() {
	for {
		select {
		case <-t.done:
			return
		default:
		}

		sample, err := t.source.ReadSample()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				// Device error mid-call: stop pumping; the link layer
				// surfaces the silence as a failed call if it matters.
				t.Close()
			}
			return
		}
		if !t.enabled.Load() {
			continue
		}
		if err := t.track.WriteSample(sample); err != nil {
			return
		}
	}
}

// RTPTrack exposes the pion track for attachment to a PeerConnection.
func (t *SampleTrack) RTPTrack() webrtc.TrackLocal {
	return t.track
}

func (t *SampleTrack) SetEnabled(enabled bool) {
	t.enabled.Store(enabled)
}

func (t *SampleTrack) Enabled() bool {
	return t.enabled.Load()
}

func (t *SampleTrack) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		t.source.Close()
	})
	return nil
}
