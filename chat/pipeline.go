// Copyright 2026 The Cranix Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cranix-one/cranix/lib/clock"
)

// DefaultCommandPrefix marks message bodies intercepted client-side.
const DefaultCommandPrefix = "/"

// SendOptions carries the optional parts of an outbound message.
type SendOptions struct {
	// Image is an inline-encoded image payload. Compression happens
	// upstream of this package.
	Image string
	// ReplyTo quotes another message.
	ReplyTo *ReplyRef
}

// PipelineConfig holds configuration for creating a Pipeline.
type PipelineConfig struct {
	// Emitter sends outbound events. Required.
	Emitter Emitter
	// Router owns the active room and timeline. Required.
	Router *Router
	// Author is the session identity stamped on outbound messages.
	// Required.
	Author string
	// Typist, when set, is flushed after every send so the peer's
	// typing indicator clears immediately.
	Typist *Typist
	// CommandPrefix marks bodies to intercept. Default: "/".
	CommandPrefix string
	// OnCommand receives intercepted command bodies (prefix included).
	// Nil drops them.
	OnCommand func(body string)
	// OnNotify fires for inbound messages that warrant an alert:
	// cross-room arrivals and messages in the active room authored by
	// someone else. Nil disables alerts.
	OnNotify func(message Message)
	// Clock stamps outbound messages. Nil uses the real clock.
	Clock clock.Clock
	// Logger is used for structured logging. If nil, slog.Default().
	Logger *slog.Logger
}

// Pipeline builds outbound message, reaction, and deletion events and
// merges inbound ones into the active room's timeline.
type Pipeline struct {
	emitter   Emitter
	router    *Router
	author    string
	typist    *Typist
	prefix    string
	onCommand func(string)
	onNotify  func(Message)
	clock     clock.Clock
	logger    *slog.Logger
}

// NewPipeline creates a message pipeline.
func NewPipeline(config PipelineConfig) (*Pipeline, error) {
	if config.Emitter == nil {
		return nil, fmt.Errorf("chat: Emitter is required")
	}
	if config.Router == nil {
		return nil, fmt.Errorf("chat: Router is required")
	}
	if config.Author == "" {
		return nil, fmt.Errorf("chat: Author is required")
	}

	prefix := config.CommandPrefix
	if prefix == "" {
		prefix = DefaultCommandPrefix
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		emitter:   config.Emitter,
		router:    config.Router,
		author:    config.Author,
		typist:    config.Typist,
		prefix:    prefix,
		onCommand: config.OnCommand,
		onNotify:  config.OnNotify,
		clock:     clk,
		logger:    logger,
	}, nil
}

// Bind subscribes the pipeline's inbound handlers on the given
// subscriber. The returned cancel function releases them.
func (p *Pipeline) Bind(subscriber Subscriber) (cancel func()) {
	cancelReceive := subscriber.On(EventReceiveMessage, p.handleReceive)
	cancelReaction := subscriber.On(EventReactionUpdated, p.handleReactionUpdate)
	cancelDelete := subscriber.On(EventMessageDeleted, p.handleDelete)
	return func() {
		cancelReceive()
		cancelReaction()
		cancelDelete()
	}
}

// Send posts body to the active room. The message is appended to the
// local timeline before the server acknowledges it, and that copy is
// final — no id reconciliation happens later. Bodies starting with the
// command prefix are handed to the command handler and never reach the
// server.
func (p *Pipeline) Send(body string, options SendOptions) error {
	if body == "" && options.Image == "" {
		return fmt.Errorf("chat: message has no content")
	}

	if body != "" && strings.HasPrefix(body, p.prefix) {
		if p.onCommand != nil {
			p.onCommand(body)
		}
		return nil
	}

	room := p.router.ActiveRoomID()
	if room == "" {
		return ErrNoActiveRoom
	}

	message := Message{
		Room:    room,
		Author:  p.author,
		Body:    body,
		Image:   options.Image,
		ReplyTo: options.ReplyTo,
		Time:    p.clock.Now().Format("15:04"),
	}

	// Optimistic echo before the wire write: the user sees their
	// message instantly even on a slow link.
	p.router.append(message)

	if err := p.emitter.Emit(EventSendMessage, message); err != nil {
		return fmt.Errorf("chat: sending message: %w", err)
	}
	if p.typist != nil {
		p.typist.Flush()
	}
	return nil
}

// SystemMarker appends a System-authored marker to the active room's
// timeline and posts it so the peer sees it too. Used for call
// outcomes (missed call, call failure).
func (p *Pipeline) SystemMarker(text string) error {
	room := p.router.ActiveRoomID()
	if room == "" {
		return ErrNoActiveRoom
	}

	marker := Message{
		Room:   room,
		Author: SystemAuthor,
		Body:   text,
		Time:   p.clock.Now().Format("15:04"),
	}
	p.router.append(marker)

	if err := p.emitter.Emit(EventSendMessage, marker); err != nil {
		return fmt.Errorf("chat: sending system marker: %w", err)
	}
	return nil
}

// AddReaction emits a reaction for the identified message. The local
// reaction list is only updated by the resulting reaction_updated
// broadcast — the server is the aggregation point.
func (p *Pipeline) AddReaction(messageID, emoji string) error {
	if messageID == "" || emoji == "" {
		return fmt.Errorf("chat: reaction requires a message id and emoji")
	}
	if err := p.emitter.Emit(EventAddReaction, ReactionPayload{MessageID: messageID, Emoji: emoji}); err != nil {
		return fmt.Errorf("chat: adding reaction: %w", err)
	}
	return nil
}

// DeleteMessage requests deletion of the identified message. The local
// timeline entry is removed by the resulting message_deleted broadcast.
// Author restriction is enforced at the UI layer and by the server.
func (p *Pipeline) DeleteMessage(messageID string) error {
	if messageID == "" {
		return fmt.Errorf("chat: delete requires a message id")
	}
	if err := p.emitter.Emit(EventDeleteMessage, DeletePayload{ID: messageID}); err != nil {
		return fmt.Errorf("chat: deleting message: %w", err)
	}
	return nil
}

// handleReceive merges an inbound message. Messages for the active
// room are appended; messages for any other room only fire the notify
// side effect, never a timeline mutation. Self-authored broadcasts are
// dropped entirely — the optimistic local copy is already final.
func (p *Pipeline) handleReceive(data json.RawMessage) {
	var message Message
	if err := json.Unmarshal(data, &message); err != nil {
		p.logger.Warn("discarding malformed inbound message", "error", err)
		return
	}

	if message.Author == p.author {
		return
	}

	appended := p.router.append(message)
	if !appended {
		p.logger.Debug("cross-room message", "room", string(message.Room), "author", message.Author)
	}
	if p.onNotify != nil && message.Author != SystemAuthor {
		p.onNotify(message)
	}
}

// handleReactionUpdate wholesale-replaces the target message's
// reaction list. Replacing with the same snapshot twice is idempotent,
// so replayed broadcasts are harmless.
func (p *Pipeline) handleReactionUpdate(data json.RawMessage) {
	var payload ReactionUpdatePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		p.logger.Warn("discarding malformed reaction update", "error", err)
		return
	}
	p.router.replaceReactions(payload.MessageID, payload.Reactions)
}

// handleDelete removes the identified message. Deleting an absent id
// is a no-op — the message may have lived in another room or already
// be gone.
func (p *Pipeline) handleDelete(data json.RawMessage) {
	var payload DeletePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		p.logger.Warn("discarding malformed delete event", "error", err)
		return
	}
	p.router.remove(payload.ID)
}
