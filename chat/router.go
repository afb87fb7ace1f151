// Copyright 2026 The Cranix Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Router tracks the single active room and owns its message timeline.
// Exactly one room is active at a time; there is no multi-room
// concurrent view. Switching rooms clears the timeline and requests
// history from the server, so the timeline is empty until the history
// arrives.
type Router struct {
	emitter Emitter
	logger  *slog.Logger

	mu         sync.Mutex
	active     Room
	timeline   []Message
	typingUser string
}

// NewRouter creates a room router that emits join requests through
// emitter. If logger is nil, slog.Default() is used.
func NewRouter(emitter Emitter, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{emitter: emitter, logger: logger}
}

// Bind subscribes the router's inbound handlers (history, typing
// indicators) on the given subscriber. The returned cancel function
// releases them.
func (r *Router) Bind(subscriber Subscriber) (cancel func()) {
	cancelHistory := subscriber.On(EventLoadHistory, r.handleHistory)
	cancelDisplay := subscriber.On(EventDisplayTyping, r.handleDisplayTyping)
	cancelHide := subscriber.On(EventHideTyping, r.handleHideTyping)
	return func() {
		cancelHistory()
		cancelDisplay()
		cancelHide()
	}
}

// SwitchTo makes room the active room. A no-op when room is already
// active. Otherwise the local timeline is cleared, the new room is
// recorded, and history is requested from the server.
func (r *Router) SwitchTo(room Room) error {
	if room == "" {
		return fmt.Errorf("chat: cannot switch to an empty room")
	}

	r.mu.Lock()
	if r.active == room {
		r.mu.Unlock()
		return nil
	}
	r.active = room
	r.timeline = nil
	r.typingUser = ""
	r.mu.Unlock()

	if err := r.emitter.Emit(EventJoinChannel, JoinPayload{Room: room}); err != nil {
		return fmt.Errorf("chat: joining room %s: %w", room, err)
	}
	r.logger.Debug("switched room", "room", string(room))
	return nil
}

// ActiveRoomID returns the room of the last successful switch, or ""
// when no room has been selected.
func (r *Router) ActiveRoomID() Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Timeline returns a snapshot of the active room's timeline in
// arrival order.
func (r *Router) Timeline() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := make([]Message, len(r.timeline))
	copy(snapshot, r.timeline)
	return snapshot
}

// TypingIndicator returns the author currently typing in the active
// room, or "" when nobody is.
func (r *Router) TypingIndicator() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.typingUser
}

// handleHistory wholesale-replaces the timeline with the server's
// history for the active room. History for any other room — a late
// arrival after a further switch — is discarded.
func (r *Router) handleHistory(data json.RawMessage) {
	var payload HistoryPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		r.logger.Warn("discarding malformed history payload", "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if payload.Room != r.active {
		r.logger.Debug("discarding history for inactive room", "room", string(payload.Room))
		return
	}
	r.timeline = payload.Messages
}

func (r *Router) handleDisplayTyping(data json.RawMessage) {
	var payload TypingPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// No cross-room typing indicators.
	if payload.Room != r.active {
		return
	}
	r.typingUser = payload.Author
}

func (r *Router) handleHideTyping(data json.RawMessage) {
	var payload TypingPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if payload.Room != r.active {
		return
	}
	r.typingUser = ""
}

// append adds a message to the timeline if its room is active.
// Returns whether the message was appended. Insertion order is
// arrival order; the client never re-sorts by server ids.
func (r *Router) append(message Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if message.Room != r.active {
		return false
	}
	r.timeline = append(r.timeline, message)
	return true
}

// replaceReactions swaps the reaction list of the identified message.
// Replaying the same snapshot is idempotent. Unknown ids are ignored —
// the message may live in a non-active room or have been deleted.
func (r *Router) replaceReactions(messageID string, reactions []Reaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.timeline {
		if r.timeline[i].ID == messageID && messageID != "" {
			r.timeline[i].Reactions = reactions
			return
		}
	}
}

// remove deletes the identified message from the timeline. Removing an
// absent id is a no-op, not an error.
func (r *Router) remove(messageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.timeline {
		if r.timeline[i].ID == messageID && messageID != "" {
			r.timeline = append(r.timeline[:i], r.timeline[i+1:]...)
			return
		}
	}
}
