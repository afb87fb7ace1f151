// Copyright 2026 The Cranix Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"encoding/json"
	"sync"
	"testing"
)

// fakeLink implements Emitter and Subscriber in-process, recording
// outbound events and letting tests inject inbound ones.
type fakeLink struct {
	mu       sync.Mutex
	emitted  []recordedEvent
	handlers map[string][]func(json.RawMessage)
}

type recordedEvent struct {
	event   string
	payload any
}

func newFakeLink() *fakeLink {
	return &fakeLink{handlers: make(map[string][]func(json.RawMessage))}
}

func (f *fakeLink) Emit(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitted = append(f.emitted, recordedEvent{event: event, payload: payload})
	return nil
}

func (f *fakeLink) On(event string, handler func(json.RawMessage)) (cancel func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	index := len(f.handlers[event])
	f.handlers[event] = append(f.handlers[event], handler)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.handlers[event][index] = nil
	}
}

// deliver injects an inbound event, JSON-encoding payload the way the
// wire would.
func (f *fakeLink) deliver(t *testing.T, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("encoding %s payload: %v", event, err)
	}
	f.mu.Lock()
	snapshot := append([]func(json.RawMessage){}, f.handlers[event]...)
	f.mu.Unlock()
	for _, handler := range snapshot {
		if handler != nil {
			handler(data)
		}
	}
}

// sent returns the recorded events with the given name.
func (f *fakeLink) sent(event string) []recordedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []recordedEvent
	for _, recorded := range f.emitted {
		if recorded.event == event {
			matched = append(matched, recorded)
		}
	}
	return matched
}
