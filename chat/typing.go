// Copyright 2026 The Cranix Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"sync"
	"time"

	"github.com/cranix-one/cranix/lib/clock"
)

// DefaultTypingDebounce is how long after the last keystroke the
// stop-typing event fires.
const DefaultTypingDebounce = 2 * time.Second

// Typist debounces outbound typing signals for the active room: one
// typing event at the start of a keystroke burst, one stop_typing
// event after the idle delay (or immediately on Flush).
type Typist struct {
	emitter  Emitter
	router   *Router
	author   string
	clock    clock.Clock
	debounce time.Duration

	mu     sync.Mutex
	timer  *clock.Timer
	active bool
	room   Room // room the current burst was signalled for
}

// NewTypist creates a typing debouncer. A zero debounce uses
// DefaultTypingDebounce; a nil clk uses the real clock.
func NewTypist(emitter Emitter, router *Router, author string, clk clock.Clock, debounce time.Duration) *Typist {
	if clk == nil {
		clk = clock.Real()
	}
	if debounce <= 0 {
		debounce = DefaultTypingDebounce
	}
	return &Typist{
		emitter:  emitter,
		router:   router,
		author:   author,
		clock:    clk,
		debounce: debounce,
	}
}

// NotifyTyping records a keystroke. The first keystroke of a burst
// emits the typing event; subsequent ones only push the stop deadline
// out. Switching rooms mid-burst flushes the old room's stop signal
// first.
func (t *Typist) NotifyTyping() error {
	room := t.router.ActiveRoomID()
	if room == "" {
		return ErrNoActiveRoom
	}

	t.mu.Lock()
	if t.active && t.room != room {
		t.stopLocked()
	}

	if t.active {
		t.timer.Reset(t.debounce)
		t.mu.Unlock()
		return nil
	}

	t.active = true
	t.room = room
	t.timer = t.clock.AfterFunc(t.debounce, t.expire)
	t.mu.Unlock()

	return t.emitter.Emit(EventTyping, TypingPayload{Room: room, Author: t.author})
}

// Flush ends the current burst immediately, emitting stop_typing if
// one was in progress. Called when a message is sent.
func (t *Typist) Flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

// expire is the debounce timer callback.
func (t *Typist) expire() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

// stopLocked emits the stop signal for the current burst. Caller
// holds t.mu.
func (t *Typist) stopLocked() {
	if !t.active {
		return
	}
	t.active = false
	if t.timer != nil {
		t.timer.Stop()
	}
	// Best-effort: a failed stop_typing on a dropping connection is
	// not worth surfacing to the caller.
	t.emitter.Emit(EventStopTyping, TypingPayload{Room: t.room})
}
