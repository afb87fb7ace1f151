// Copyright 2026 The Cranix Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"reflect"
	"testing"
	"time"

	"github.com/cranix-one/cranix/lib/clock"
)

type pipelineFixture struct {
	link     *fakeLink
	router   *Router
	pipeline *Pipeline
	notified []Message
	commands []string
}

func newPipelineFixture(t *testing.T, author string) *pipelineFixture {
	t.Helper()
	fixture := &pipelineFixture{link: newFakeLink()}
	fixture.router = NewRouter(fixture.link, nil)

	pipeline, err := NewPipeline(PipelineConfig{
		Emitter:   fixture.link,
		Router:    fixture.router,
		Author:    author,
		Clock:     clock.Fake(time.Date(2026, 8, 28, 14, 30, 0, 0, time.UTC)),
		OnNotify:  func(m Message) { fixture.notified = append(fixture.notified, m) },
		OnCommand: func(body string) { fixture.commands = append(fixture.commands, body) },
	})
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	fixture.pipeline = pipeline
	pipeline.Bind(fixture.link)
	return fixture
}

func TestSend(t *testing.T) {
	t.Run("optimistic echo before acknowledgment", func(t *testing.T) {
		fixture := newPipelineFixture(t, "alice")
		fixture.router.SwitchTo(DirectRoom("alice", "bob"))

		if err := fixture.pipeline.Send("hello", SendOptions{}); err != nil {
			t.Fatalf("Send failed: %v", err)
		}

		timeline := fixture.router.Timeline()
		if len(timeline) != 1 {
			t.Fatalf("expected 1 optimistic entry, got %d", len(timeline))
		}
		echo := timeline[0]
		if echo.Author != "alice" || echo.Body != "hello" {
			t.Errorf("unexpected echo: %+v", echo)
		}
		if echo.ID != "" {
			t.Error("local echo must not carry a server id")
		}
		if echo.Time != "14:30" {
			t.Errorf("unexpected timestamp format: %q", echo.Time)
		}

		sends := fixture.link.sent(EventSendMessage)
		if len(sends) != 1 {
			t.Fatalf("expected 1 send_message, got %d", len(sends))
		}
	})

	t.Run("send flushes typing", func(t *testing.T) {
		fixture := newPipelineFixture(t, "alice")
		fixture.router.SwitchTo(DirectRoom("alice", "bob"))
		typist := NewTypist(fixture.link, fixture.router, "alice", clock.Fake(time.Unix(0, 0)), 0)
		fixture.pipeline.typist = typist

		typist.NotifyTyping()
		fixture.pipeline.Send("hello", SendOptions{})

		if got := len(fixture.link.sent(EventStopTyping)); got != 1 {
			t.Errorf("send should flush the typing burst, got %d stops", got)
		}
	})

	t.Run("reply carries the quoted message", func(t *testing.T) {
		fixture := newPipelineFixture(t, "alice")
		fixture.router.SwitchTo(DirectRoom("alice", "bob"))

		reply := &ReplyRef{Author: "bob", Body: "original"}
		fixture.pipeline.Send("agreed", SendOptions{ReplyTo: reply})

		timeline := fixture.router.Timeline()
		if len(timeline) != 1 || !reflect.DeepEqual(timeline[0].ReplyTo, reply) {
			t.Errorf("reply reference missing: %+v", timeline)
		}
	})

	t.Run("command intercepted, never forwarded", func(t *testing.T) {
		fixture := newPipelineFixture(t, "alice")
		fixture.router.SwitchTo(DirectRoom("alice", "bob"))

		if err := fixture.pipeline.Send("/status dnd", SendOptions{}); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
		if len(fixture.link.sent(EventSendMessage)) != 0 {
			t.Error("command body reached the server")
		}
		if len(fixture.commands) != 1 || fixture.commands[0] != "/status dnd" {
			t.Errorf("command handler not invoked: %v", fixture.commands)
		}
		if len(fixture.router.Timeline()) != 0 {
			t.Error("command must not be appended to the timeline")
		}
	})

	t.Run("no active room", func(t *testing.T) {
		fixture := newPipelineFixture(t, "alice")
		if err := fixture.pipeline.Send("hello", SendOptions{}); err != ErrNoActiveRoom {
			t.Errorf("expected ErrNoActiveRoom, got: %v", err)
		}
	})

	t.Run("empty message rejected", func(t *testing.T) {
		fixture := newPipelineFixture(t, "alice")
		fixture.router.SwitchTo(DirectRoom("alice", "bob"))
		if err := fixture.pipeline.Send("", SendOptions{}); err == nil {
			t.Fatal("expected error for empty message")
		}
	})
}

func TestHandleReceive(t *testing.T) {
	t.Run("active room message appended exactly once", func(t *testing.T) {
		// B has room A_B active; A says hello.
		fixture := newPipelineFixture(t, "bob")
		room := DirectRoom("alice", "bob")
		fixture.router.SwitchTo(room)

		fixture.link.deliver(t, EventReceiveMessage, Message{
			ID: "m1", Room: room, Author: "alice", Body: "hello",
		})

		timeline := fixture.router.Timeline()
		if len(timeline) != 1 {
			t.Fatalf("expected exactly 1 message, got %d", len(timeline))
		}
		if timeline[0].Author != "alice" || timeline[0].Body != "hello" {
			t.Errorf("unexpected message: %+v", timeline[0])
		}
		if len(fixture.notified) != 1 {
			t.Errorf("expected 1 notification, got %d", len(fixture.notified))
		}
	})

	t.Run("cross-room arrival never mutates the active timeline", func(t *testing.T) {
		fixture := newPipelineFixture(t, "alice")
		active := DirectRoom("alice", "bob")
		fixture.router.SwitchTo(active)

		fixture.link.deliver(t, EventReceiveMessage, Message{
			ID: "m2", Room: DirectRoom("alice", "carol"), Author: "carol", Body: "psst",
		})

		if len(fixture.router.Timeline()) != 0 {
			t.Error("cross-room message mutated the active timeline")
		}
		if len(fixture.notified) != 1 {
			t.Errorf("cross-room arrival should still notify, got %d", len(fixture.notified))
		}
	})

	t.Run("self-authored broadcast dropped", func(t *testing.T) {
		fixture := newPipelineFixture(t, "alice")
		room := DirectRoom("alice", "bob")
		fixture.router.SwitchTo(room)
		fixture.pipeline.Send("hello", SendOptions{})

		// The server echoes the message back to the whole room.
		fixture.link.deliver(t, EventReceiveMessage, Message{
			ID: "m3", Room: room, Author: "alice", Body: "hello",
		})

		if got := len(fixture.router.Timeline()); got != 1 {
			t.Errorf("echo created a duplicate: %d entries", got)
		}
		if len(fixture.notified) != 0 {
			t.Error("own message should not trigger a notification")
		}
	})

	t.Run("system messages do not notify", func(t *testing.T) {
		fixture := newPipelineFixture(t, "alice")
		room := DirectRoom("alice", "bob")
		fixture.router.SwitchTo(room)

		fixture.link.deliver(t, EventReceiveMessage, Message{
			Room: room, Author: SystemAuthor, Body: "Missed Call",
		})
		if len(fixture.notified) != 0 {
			t.Error("system marker triggered a notification")
		}
		if len(fixture.router.Timeline()) != 1 {
			t.Error("system marker should still join the timeline")
		}
	})
}

func TestReactions(t *testing.T) {
	fixture := newPipelineFixture(t, "alice")
	room := DirectRoom("alice", "bob")
	fixture.router.SwitchTo(room)
	fixture.link.deliver(t, EventReceiveMessage, Message{ID: "m1", Room: room, Author: "bob", Body: "hi"})

	t.Run("outbound emit", func(t *testing.T) {
		if err := fixture.pipeline.AddReaction("m1", "👍"); err != nil {
			t.Fatalf("AddReaction failed: %v", err)
		}
		reactions := fixture.link.sent(EventAddReaction)
		if len(reactions) != 1 {
			t.Fatalf("expected 1 add_reaction, got %d", len(reactions))
		}
	})

	t.Run("wholesale replace is idempotent", func(t *testing.T) {
		snapshot := ReactionUpdatePayload{
			MessageID: "m1",
			Reactions: []Reaction{{Emoji: "👍", Count: 2}, {Emoji: "🔥", Count: 1}},
		}
		fixture.link.deliver(t, EventReactionUpdated, snapshot)
		once := fixture.router.Timeline()

		fixture.link.deliver(t, EventReactionUpdated, snapshot)
		twice := fixture.router.Timeline()

		if !reflect.DeepEqual(once, twice) {
			t.Error("replaying the same snapshot changed state")
		}
		if got := twice[0].Reactions; len(got) != 2 || got[0].Count != 2 {
			t.Errorf("unexpected reactions: %+v", got)
		}
	})

	t.Run("unknown message id ignored", func(t *testing.T) {
		fixture.link.deliver(t, EventReactionUpdated, ReactionUpdatePayload{
			MessageID: "absent",
			Reactions: []Reaction{{Emoji: "👀", Count: 1}},
		})
		if got := fixture.router.Timeline()[0].Reactions; len(got) != 2 {
			t.Errorf("unrelated update mutated m1: %+v", got)
		}
	})
}

func TestDeletion(t *testing.T) {
	fixture := newPipelineFixture(t, "alice")
	room := DirectRoom("alice", "bob")
	fixture.router.SwitchTo(room)
	fixture.link.deliver(t, EventReceiveMessage, Message{ID: "m1", Room: room, Author: "bob", Body: "oops"})

	t.Run("inbound delete removes by id", func(t *testing.T) {
		fixture.link.deliver(t, EventMessageDeleted, DeletePayload{ID: "m1"})
		if len(fixture.router.Timeline()) != 0 {
			t.Error("deleted message still in timeline")
		}
	})

	t.Run("deleting an absent id is a no-op", func(t *testing.T) {
		fixture.link.deliver(t, EventMessageDeleted, DeletePayload{ID: "m1"})
		fixture.link.deliver(t, EventMessageDeleted, DeletePayload{ID: "never-existed"})
		if len(fixture.router.Timeline()) != 0 {
			t.Error("timeline changed on no-op delete")
		}
	})

	t.Run("outbound delete emits", func(t *testing.T) {
		if err := fixture.pipeline.DeleteMessage("m9"); err != nil {
			t.Fatalf("DeleteMessage failed: %v", err)
		}
		if len(fixture.link.sent(EventDeleteMessage)) != 1 {
			t.Error("delete_message not emitted")
		}
	})
}

func TestSystemMarker(t *testing.T) {
	fixture := newPipelineFixture(t, "alice")
	fixture.router.SwitchTo(DirectRoom("alice", "bob"))

	if err := fixture.pipeline.SystemMarker("📞 Missed Call (User Offline)"); err != nil {
		t.Fatalf("SystemMarker failed: %v", err)
	}
	timeline := fixture.router.Timeline()
	if len(timeline) != 1 || timeline[0].Author != SystemAuthor {
		t.Fatalf("marker not appended as System: %+v", timeline)
	}
	if len(fixture.link.sent(EventSendMessage)) != 1 {
		t.Error("marker not posted to the room")
	}
}
