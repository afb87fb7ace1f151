// Copyright 2026 The Cranix Authors
// SPDX-License-Identifier: Apache-2.0

package call

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

// oggSampleRate is the Opus clock rate used to convert Ogg granule
// positions to sample durations.
const oggSampleRate = 48000

// Compile-time interface check.
var _ SampleSource = (*OggSource)(nil)

// OggSource reads Opus audio from an Ogg container, typically a FIFO
// fed by the platform capture pipeline. ReadSample paces itself to the
// stream's real-time rate so the RTP track is not flooded.
type OggSource struct {
	file        *os.File
	reader      *oggreader.OggReader
	lastGranule uint64
	lastRead    time.Time
}

// NewOggSource opens the Ogg Opus stream at path.
func NewOggSource(path string) (*OggSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("call: opening audio source %s: %w", path, err)
	}
	reader, _, err := oggreader.NewWith(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("call: reading Ogg header from %s: %w", path, err)
	}
	return &OggSource{file: file, reader: reader}, nil
}

// ReadSample returns the next Opus page as a media sample, sleeping
// long enough to keep delivery at real-time rate.
func (s *OggSource) ReadSample() (media.Sample, error) {
	pageData, pageHeader, err := s.reader.ParseNextPage()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return media.Sample{}, io.EOF
		}
		return media.Sample{}, fmt.Errorf("call: reading Ogg page: %w", err)
	}

	sampleCount := pageHeader.GranulePosition - s.lastGranule
	s.lastGranule = pageHeader.GranulePosition
	duration := time.Duration(sampleCount) * time.Second / oggSampleRate

	// Pace to the stream rate. A FIFO fed by a live capture already
	// blocks in ParseNextPage, so the sleep only matters for replayed
	// files.
	if !s.lastRead.IsZero() {
		if wait := duration - time.Since(s.lastRead); wait > 0 {
			time.Sleep(wait)
		}
	}
	s.lastRead = time.Now()

	return media.Sample{Data: pageData, Duration: duration}, nil
}

func (s *OggSource) Close() error {
	return s.file.Close()
}
