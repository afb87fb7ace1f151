// Copyright 2026 The Cranix Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cranix-one/cranix/api"
	"github.com/cranix-one/cranix/call"
	"github.com/cranix-one/cranix/chat"
	"github.com/cranix-one/cranix/identity"
	"github.com/cranix-one/cranix/roster"
)

// console is the line-oriented command surface standing in for the
// graphical client. Slash commands drive the roster and call machine;
// anything else is sent to the active room. Commands the console does
// not recognize fall through to the message pipeline, which intercepts
// them before they reach the server.
type console struct {
	client   *api.Client
	store    *identity.Store
	session  *identity.Session
	router   *chat.Router
	pipeline *chat.Pipeline
	typist   *chat.Typist
	roster   *roster.Roster
	machine  *call.Machine
	out      io.Writer
	logger   *slog.Logger
}

// run reads commands until EOF or context cancellation. It is the
// caller's job to treat a return as a request to shut down.
func (c *console) run(ctx context.Context, input io.Reader) {
	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			return
		}
		c.dispatch(ctx, line)
	}
	if err := scanner.Err(); err != nil {
		c.logger.Error("reading input failed", "error", err)
	}
}

func (c *console) dispatch(ctx context.Context, line string) {
	fields := strings.Fields(line)
	command, args := fields[0], fields[1:]

	var err error
	switch command {
	case "/join":
		err = c.join(args)
	case "/call":
		err = c.startCall(ctx)
	case "/answer":
		err = c.machine.Answer(ctx)
	case "/decline":
		c.machine.Decline()
	case "/hangup":
		c.machine.EndCall()
	case "/mute":
		var muted bool
		if muted, err = c.machine.ToggleMute(); err == nil {
			fmt.Fprintf(c.out, "muted: %v\n", muted)
		}
	case "/friends":
		c.printFriends()
	case "/groups":
		for _, group := range c.roster.Groups() {
			fmt.Fprintf(c.out, "#%s %s (%d members)\n", group.ID, group.Name, len(group.Members))
		}
	case "/requests":
		for _, request := range c.roster.Requests() {
			fmt.Fprintf(c.out, "%s from %s\n", request.ID, request.Sender)
		}
	case "/add":
		if len(args) != 1 {
			err = fmt.Errorf("usage: /add <user>")
			break
		}
		err = c.roster.SendFriendRequest(ctx, args[0])
	case "/accept":
		if len(args) != 1 {
			err = fmt.Errorf("usage: /accept <request-id>")
			break
		}
		err = c.roster.AcceptRequest(ctx, args[0])
	case "/react":
		if len(args) != 2 {
			err = fmt.Errorf("usage: /react <message-id> <emoji>")
			break
		}
		err = c.pipeline.AddReaction(args[0], args[1])
	case "/del":
		if len(args) != 1 {
			err = fmt.Errorf("usage: /del <message-id>")
			break
		}
		err = c.pipeline.DeleteMessage(args[0])
	case "/avatar":
		if len(args) != 1 {
			err = fmt.Errorf("usage: /avatar <url>")
			break
		}
		err = c.setAvatar(ctx, args[0])
	case "/history":
		for _, message := range c.router.Timeline() {
			fmt.Fprintf(c.out, "[%s] %s: %s\n", message.Time, message.Author, message.Body)
		}
	case "/help":
		c.printHelp()
	default:
		if strings.HasPrefix(line, "/") {
			// Unrecognized slash commands go through the pipeline's
			// own interception (e.g. /status).
			err = c.pipeline.Send(line, chat.SendOptions{})
			break
		}
		if typingErr := c.typist.NotifyTyping(); typingErr != nil {
			c.logger.Debug("typing notify failed", "error", typingErr)
		}
		err = c.pipeline.Send(line, chat.SendOptions{})
	}
	if err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
	}
}

// join switches the active room: "#id" selects a group, a bare
// username selects the direct conversation with that user.
func (c *console) join(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: /join <user or #group-id>")
	}
	var room chat.Room
	if id, isGroup := strings.CutPrefix(args[0], "#"); isGroup {
		room = chat.GroupRoom(id)
	} else {
		room = chat.DirectRoom(c.session.UserID, args[0])
	}
	if err := c.router.SwitchTo(room); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "joined %s\n", string(room))
	return nil
}

func (c *console) startCall(ctx context.Context) error {
	if err := c.machine.StartCall(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "calling...")
	return nil
}

func (c *console) printFriends() {
	for _, friend := range c.roster.Friends() {
		fmt.Fprintf(c.out, "%s (%s)\n", friend.Username, c.roster.Status(friend.Username))
	}
}

// setAvatar pushes the new avatar to the server and refreshes the
// persisted identity record so the next silent login renders it
// immediately.
func (c *console) setAvatar(ctx context.Context, avatar string) error {
	if err := c.client.UpdateProfile(ctx, api.Profile{
		Username: c.session.UserID,
		Avatar:   avatar,
	}); err != nil {
		return err
	}
	c.session.Avatar = avatar

	record, err := c.store.Load()
	if err != nil {
		c.logger.Warn("avatar saved to server but not locally", "error", err)
		return nil
	}
	record.Avatar = avatar
	record.SavedAt = time.Now()
	if err := c.store.Save(record); err != nil {
		c.logger.Warn("avatar saved to server but not locally", "error", err)
	}
	return nil
}

func (c *console) printHelp() {
	fmt.Fprint(c.out, `commands:
  /join <user or #group-id>   switch the active conversation
  /call /answer /decline      voice call control
  /hangup /mute
  /friends /groups /requests  roster
  /add <user> /accept <id>    friend requests
  /react <id> <emoji>         react to a message
  /del <id>                   delete own message
  /avatar <url>               update avatar
  /status <online|idle|dnd>   update presence
  /history                    print the active room timeline
  /quit
`)
}
