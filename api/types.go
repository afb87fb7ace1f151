// Copyright 2026 The Cranix Authors
// SPDX-License-Identifier: Apache-2.0

package api

// Credentials is the request body for login and register.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned by Login.
type LoginResponse struct {
	Token      string `json:"token"`
	Avatar     string `json:"avatar"`
	Bio        string `json:"bio,omitempty"`
	Status     string `json:"status,omitempty"`
	ThemeColor string `json:"theme_color,omitempty"`
}

// Friend is a single roster entry from the friends endpoint.
type Friend struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// Group is a group channel from the groups endpoint. Membership is
// immutable after creation from the client's point of view.
type Group struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Members []string `json:"members"`
	Admin   string   `json:"admin"`
}

// Request is a pending friend request.
type Request struct {
	ID       string `json:"id"`
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
}

// AddFriendRequest is the request body for the add-friend endpoint.
type AddFriendRequest struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
}

// AcceptFriendRequest is the request body for the accept-friend endpoint.
type AcceptFriendRequest struct {
	RequestID string `json:"requestId"`
}

// CreateGroupRequest is the request body for the create-group endpoint.
type CreateGroupRequest struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
	Admin   string   `json:"admin"`
}

// Profile is the request body for the update-profile endpoint. Empty
// fields are left unchanged by the server.
type Profile struct {
	Username   string `json:"username"`
	Avatar     string `json:"avatar,omitempty"`
	Bio        string `json:"bio,omitempty"`
	Status     string `json:"status,omitempty"`
	ThemeColor string `json:"theme_color,omitempty"`
}

// MediaItem is one image message from the room media endpoint.
type MediaItem struct {
	MessageID string `json:"message_id"`
	Author    string `json:"author"`
	Image     string `json:"image"`
	Time      string `json:"time"`
}
