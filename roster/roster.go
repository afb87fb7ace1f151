// Copyright 2026 The Cranix Authors
// SPDX-License-Identifier: Apache-2.0

// Package roster tracks the user's social graph: friends, groups,
// pending friend requests, and the live presence map. Every update is
// a wholesale replace of the corresponding set; there is no
// incremental merge, so a replayed snapshot is always harmless.
package roster

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cranix-one/cranix/api"
	"github.com/cranix-one/cranix/chat"
	"github.com/cranix-one/cranix/identity"
)

// Directory is the subset of the HTTP API the roster consumes.
// *api.Client satisfies it; tests substitute a local fake.
type Directory interface {
	Friends(ctx context.Context, user string) ([]api.Friend, error)
	Groups(ctx context.Context, user string) ([]api.Group, error)
	Requests(ctx context.Context, user string) ([]api.Request, error)
	AddFriend(ctx context.Context, sender, receiver string) error
	AcceptFriend(ctx context.Context, requestID string) error
}

var _ Directory = (*api.Client)(nil)

// Roster holds the social-graph state for one session. All accessors
// return snapshots; all mutations replace whole sets under one mutex,
// so a reader never observes a half-applied update.
type Roster struct {
	directory Directory
	user      string
	logger    *slog.Logger

	mu       sync.Mutex
	friends  []api.Friend
	groups   []api.Group
	requests []api.Request
	statuses map[string]identity.Status
}

// New creates a roster for the given user backed by directory.
func New(directory Directory, user string, logger *slog.Logger) *Roster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Roster{
		directory: directory,
		user:      user,
		logger:    logger,
		statuses:  make(map[string]identity.Status),
	}
}

// Bind subscribes the roster's inbound handlers on the given
// subscriber. friend_update refreshes friends and requests as one
// unit; group_update refreshes groups; online_update replaces the
// presence map. The returned cancel function releases them.
func (r *Roster) Bind(subscriber chat.Subscriber) (cancel func()) {
	cancelFriend := subscriber.On(chat.EventFriendUpdate, r.handleFriendUpdate)
	cancelGroup := subscriber.On(chat.EventGroupUpdate, r.handleGroupUpdate)
	cancelOnline := subscriber.On(chat.EventOnlineUpdate, r.handleOnlineUpdate)
	return func() {
		cancelFriend()
		cancelGroup()
		cancelOnline()
	}
}

// LoadFriends fetches the friend list and replaces the local set.
func (r *Roster) LoadFriends(ctx context.Context) error {
	friends, err := r.directory.Friends(ctx, r.user)
	if err != nil {
		return fmt.Errorf("roster: loading friends: %w", err)
	}
	r.mu.Lock()
	r.friends = friends
	r.mu.Unlock()
	return nil
}

// LoadGroups fetches the group list and replaces the local set.
func (r *Roster) LoadGroups(ctx context.Context) error {
	groups, err := r.directory.Groups(ctx, r.user)
	if err != nil {
		return fmt.Errorf("roster: loading groups: %w", err)
	}
	r.mu.Lock()
	r.groups = groups
	r.mu.Unlock()
	return nil
}

// LoadRequests fetches the pending requests and replaces the local set.
func (r *Roster) LoadRequests(ctx context.Context) error {
	requests, err := r.directory.Requests(ctx, r.user)
	if err != nil {
		return fmt.Errorf("roster: loading requests: %w", err)
	}
	r.mu.Lock()
	r.requests = requests
	r.mu.Unlock()
	return nil
}

// SendFriendRequest asks the server to create a pending request for
// target. Server-side rejections (already pending, unknown user,
// already friends) come back unchanged as *api.Error so the caller can
// branch on the reason.
func (r *Roster) SendFriendRequest(ctx context.Context, target string) error {
	if target == "" || target == r.user {
		return fmt.Errorf("roster: invalid friend request target %q", target)
	}
	if err := r.directory.AddFriend(ctx, r.user, target); err != nil {
		return err
	}
	return nil
}

// AcceptRequest accepts the identified request, then refreshes friends
// and requests together. Both fetched snapshots are installed inside a
// single critical section: a reader sees either the old pair or the
// new pair, never the request gone while the friend is still missing.
func (r *Roster) AcceptRequest(ctx context.Context, requestID string) error {
	if requestID == "" {
		return fmt.Errorf("roster: request id is required")
	}
	if err := r.directory.AcceptFriend(ctx, requestID); err != nil {
		return fmt.Errorf("roster: accepting request %s: %w", requestID, err)
	}
	return r.refreshFriendsAndRequests(ctx)
}

// refreshFriendsAndRequests fetches both lists and swaps them in as
// one unit.
func (r *Roster) refreshFriendsAndRequests(ctx context.Context) error {
	friends, err := r.directory.Friends(ctx, r.user)
	if err != nil {
		return fmt.Errorf("roster: refreshing friends: %w", err)
	}
	requests, err := r.directory.Requests(ctx, r.user)
	if err != nil {
		return fmt.Errorf("roster: refreshing requests: %w", err)
	}

	r.mu.Lock()
	r.friends = friends
	r.requests = requests
	r.mu.Unlock()
	return nil
}

// Friends returns a snapshot of the friend list.
func (r *Roster) Friends() []api.Friend {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]api.Friend(nil), r.friends...)
}

// Groups returns a snapshot of the group list.
func (r *Roster) Groups() []api.Group {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]api.Group(nil), r.groups...)
}

// Requests returns a snapshot of the pending friend requests.
func (r *Roster) Requests() []api.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]api.Request(nil), r.requests...)
}

// Status returns the live status of user. Users absent from the last
// presence snapshot are offline.
func (r *Roster) Status(user string) identity.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if status, ok := r.statuses[user]; ok {
		return status
	}
	return identity.StatusOffline
}

// handleFriendUpdate refreshes friends and requests when the server
// announces a roster change (someone accepted, a new request arrived).
func (r *Roster) handleFriendUpdate(json.RawMessage) {
	if err := r.refreshFriendsAndRequests(context.Background()); err != nil {
		r.logger.Warn("roster refresh after friend_update failed", "error", err)
	}
}

// handleGroupUpdate refreshes the group list when the server announces
// a membership change.
func (r *Roster) handleGroupUpdate(json.RawMessage) {
	if err := r.LoadGroups(context.Background()); err != nil {
		r.logger.Warn("roster refresh after group_update failed", "error", err)
	}
}

// handleOnlineUpdate wholesale-replaces the presence map. Entries for
// users missing from the new payload are dropped, so they read as
// offline from the next Status call on.
func (r *Roster) handleOnlineUpdate(data json.RawMessage) {
	var payload chat.OnlinePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		r.logger.Warn("discarding malformed online_update", "error", err)
		return
	}

	statuses := make(map[string]identity.Status, len(payload))
	for user, status := range payload {
		statuses[user] = identity.Status(status)
	}

	r.mu.Lock()
	r.statuses = statuses
	r.mu.Unlock()
}
