// Copyright 2026 The Cranix Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Outbound event names.
const (
	EventUserLogin     = "user_login"
	EventJoinChannel   = "join_channel"
	EventSendMessage   = "send_message"
	EventTyping        = "typing"
	EventStopTyping    = "stop_typing"
	EventAddReaction   = "add_reaction"
	EventDeleteMessage = "delete_message"
)

// Inbound event names.
const (
	EventReceiveMessage  = "receive_message"
	EventLoadHistory     = "load_history"
	EventDisplayTyping   = "display_typing"
	EventHideTyping      = "hide_typing"
	EventFriendUpdate    = "friend_update"
	EventGroupUpdate     = "group_update"
	EventOnlineUpdate    = "online_update"
	EventReactionUpdated = "reaction_updated"
	EventMessageDeleted  = "message_deleted"
)

// EventConnectionLost is the synthetic event Conn dispatches to
// subscribers when the server connection drops. It never travels on
// the wire.
const EventConnectionLost = "connection_lost"

// Envelope is the wire framing for every event on the channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Room identifies a conversation: either a direct pairing of two users
// or a group channel.
type Room string

// groupPrefix distinguishes group channel rooms from direct rooms in
// the key space. Direct keys are built from usernames, which may
// themselves contain separators, so the prefix is the discriminator.
const groupPrefix = "#"

// DirectRoom returns the canonical room key for a direct conversation:
// the two usernames sorted and joined deterministically, so both
// participants derive the same key.
func DirectRoom(a, b string) Room {
	pair := []string{a, b}
	sort.Strings(pair)
	return Room(pair[0] + "_" + pair[1])
}

// GroupRoom returns the room key for a group channel id.
func GroupRoom(channelID string) Room {
	return Room(groupPrefix + channelID)
}

// IsDirect reports whether the room is a direct conversation.
func (r Room) IsDirect() bool {
	return r != "" && !strings.HasPrefix(string(r), groupPrefix)
}

// DirectPeer returns the other participant of a direct room. Fails for
// group rooms and for direct rooms that self is not part of.
func (r Room) DirectPeer(self string) (string, error) {
	if !r.IsDirect() {
		return "", fmt.Errorf("chat: room %q is not a direct conversation", r)
	}
	key := string(r)
	switch {
	case strings.HasPrefix(key, self+"_"):
		return strings.TrimPrefix(key, self+"_"), nil
	case strings.HasSuffix(key, "_"+self):
		return strings.TrimSuffix(key, "_"+self), nil
	}
	return "", fmt.Errorf("chat: %q is not a participant of room %q", self, r)
}

// SystemAuthor is the reserved author name for system markers in the
// timeline (missed calls, call failures). The server never assigns it
// to an account.
const SystemAuthor = "System"

// Message is one entry in a room timeline. ID is empty for a local
// echo the server has not acknowledged; the local copy is final either
// way — a later message_deleted event is the only thing that removes it.
type Message struct {
	ID        string     `json:"id,omitempty"`
	Room      Room       `json:"room"`
	Author    string     `json:"author"`
	Body      string     `json:"message"`
	Image     string     `json:"image,omitempty"`
	ReplyTo   *ReplyRef  `json:"reply_to,omitempty"`
	Reactions []Reaction `json:"reactions,omitempty"`
	Time      string     `json:"time"`
}

// ReplyRef quotes the message being replied to. A copy of the quoted
// author and body, not a link — the quoted message may since have been
// deleted.
type ReplyRef struct {
	Author string `json:"author"`
	Body   string `json:"body"`
}

// Reaction is one emoji aggregate on a message. The list on a message
// is ordered and replaced wholesale by reaction_updated events.
type Reaction struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
}

// LoginPayload announces the identity on connect so the server adds it
// to the live roster.
type LoginPayload struct {
	Username string `json:"username"`
}

// JoinPayload requests membership of (and history for) a room.
type JoinPayload struct {
	Room Room `json:"room"`
}

// HistoryPayload carries a room's message history. The room field lets
// the client discard history that arrives after another switch.
type HistoryPayload struct {
	Room     Room      `json:"room"`
	Messages []Message `json:"messages"`
}

// TypingPayload signals typing start or stop for a room.
type TypingPayload struct {
	Room   Room   `json:"room"`
	Author string `json:"author,omitempty"`
}

// ReactionPayload is the outbound add_reaction event.
type ReactionPayload struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

// ReactionUpdatePayload is the inbound reaction_updated event: the
// target message's full reaction list, replacing whatever the client
// holds.
type ReactionUpdatePayload struct {
	MessageID string     `json:"message_id"`
	Reactions []Reaction `json:"reactions"`
}

// DeletePayload identifies a message for deletion, outbound and inbound.
type DeletePayload struct {
	ID string `json:"id"`
}

// OnlinePayload is the inbound online_update event: the complete
// status map keyed by username. Users absent from the map are offline.
type OnlinePayload map[string]string
