// Copyright 2026 The Cranix Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClient(t *testing.T) {
	t.Run("valid URL", func(t *testing.T) {
		client, err := NewClient(ClientConfig{ServerURL: "http://localhost:3000"})
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}
		if client == nil {
			t.Fatal("NewClient returned nil")
		}
	})

	t.Run("empty URL", func(t *testing.T) {
		if _, err := NewClient(ClientConfig{}); err == nil {
			t.Fatal("expected error for empty URL")
		}
	})
}

func TestLogin(t *testing.T) {
	t.Run("successful login", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if request.URL.Path != "/login" {
				t.Errorf("unexpected path: %s", request.URL.Path)
				writer.WriteHeader(http.StatusNotFound)
				return
			}
			var creds Credentials
			if err := json.NewDecoder(request.Body).Decode(&creds); err != nil {
				t.Fatalf("failed to decode request body: %v", err)
			}
			if creds.Username != "alice" {
				t.Errorf("unexpected username: %s", creds.Username)
			}
			writer.Header().Set("Content-Type", "application/json")
			json.NewEncoder(writer).Encode(LoginResponse{
				Token:  "jwt-token",
				Avatar: "data:image/png;base64,xyz",
			})
		}))
		defer server.Close()

		client, err := NewClient(ClientConfig{ServerURL: server.URL})
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}

		response, err := client.Login(context.Background(), Credentials{Username: "alice", Password: "hunter2"})
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		if response.Token != "jwt-token" {
			t.Errorf("unexpected token: %s", response.Token)
		}
	})

	t.Run("invalid credentials", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			writer.Header().Set("Content-Type", "application/json")
			writer.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(writer).Encode(Error{Reason: ReasonBadCredentials})
		}))
		defer server.Close()

		client, _ := NewClient(ClientConfig{ServerURL: server.URL})
		_, err := client.Login(context.Background(), Credentials{Username: "alice", Password: "wrong"})
		if err == nil {
			t.Fatal("expected error for bad credentials")
		}
		if !IsReason(err, ReasonBadCredentials) {
			t.Errorf("expected bad_credentials reason, got: %v", err)
		}
	})

	t.Run("empty username rejected locally", func(t *testing.T) {
		client, _ := NewClient(ClientConfig{ServerURL: "http://localhost:1"})
		if _, err := client.Login(context.Background(), Credentials{}); err == nil {
			t.Fatal("expected error for empty username")
		}
	})
}

func TestAddFriend(t *testing.T) {
	t.Run("reason passes through", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if request.URL.Path != "/add-friend" {
				t.Errorf("unexpected path: %s", request.URL.Path)
			}
			writer.Header().Set("Content-Type", "application/json")
			writer.WriteHeader(http.StatusConflict)
			json.NewEncoder(writer).Encode(Error{Reason: ReasonAlreadyPending})
		}))
		defer server.Close()

		client, _ := NewClient(ClientConfig{ServerURL: server.URL})
		err := client.AddFriend(context.Background(), "alice", "bob")
		if !IsReason(err, ReasonAlreadyPending) {
			t.Errorf("expected already_pending reason, got: %v", err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			writer.Header().Set("Content-Type", "application/json")
			writer.WriteHeader(http.StatusNotFound)
			json.NewEncoder(writer).Encode(Error{Reason: ReasonUnknownUser})
		}))
		defer server.Close()

		client, _ := NewClient(ClientConfig{ServerURL: server.URL})
		err := client.AddFriend(context.Background(), "alice", "nobody")
		if !IsReason(err, ReasonUnknownUser) {
			t.Errorf("expected unknown_user reason, got: %v", err)
		}
	})
}

func TestRosterLookups(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		switch request.URL.Path {
		case "/friends/alice":
			json.NewEncoder(writer).Encode([]Friend{{Username: "bob"}, {Username: "carol"}})
		case "/requests/alice":
			json.NewEncoder(writer).Encode([]Request{{ID: "r1", Sender: "dave", Receiver: "alice"}})
		case "/groups/alice":
			json.NewEncoder(writer).Encode([]Group{{ID: "g1", Name: "ops", Members: []string{"alice", "bob"}, Admin: "alice"}})
		default:
			t.Errorf("unexpected path: %s", request.URL.Path)
			writer.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client, _ := NewClient(ClientConfig{ServerURL: server.URL})
	ctx := context.Background()

	friends, err := client.Friends(ctx, "alice")
	if err != nil {
		t.Fatalf("Friends failed: %v", err)
	}
	if len(friends) != 2 || friends[0].Username != "bob" {
		t.Errorf("unexpected friends: %+v", friends)
	}

	requests, err := client.Requests(ctx, "alice")
	if err != nil {
		t.Fatalf("Requests failed: %v", err)
	}
	if len(requests) != 1 || requests[0].Sender != "dave" {
		t.Errorf("unexpected requests: %+v", requests)
	}

	groups, err := client.Groups(ctx, "alice")
	if err != nil {
		t.Fatalf("Groups failed: %v", err)
	}
	if len(groups) != 1 || groups[0].Name != "ops" {
		t.Errorf("unexpected groups: %+v", groups)
	}
}

func TestErrorFormat(t *testing.T) {
	err := &Error{Reason: ReasonUnknownUser, StatusCode: 404}
	want := "api: unknown_user (404)"
	if err.Error() != want {
		t.Errorf("unexpected error string: %s", err.Error())
	}
	if IsReason(context.Canceled, ReasonUnknownUser) {
		t.Error("IsReason should return false for non-api errors")
	}
}
