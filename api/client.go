// Copyright 2026 The Cranix Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// ServerURL is the base URL of the chat server (e.g., "http://localhost:3000").
	ServerURL string
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Client talks to the chat server's request/response endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new chat server API client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.ServerURL == "" {
		return nil, fmt.Errorf("api: ServerURL is required")
	}
	if _, err := url.Parse(config.ServerURL); err != nil {
		return nil, fmt.Errorf("api: invalid ServerURL %q: %w", config.ServerURL, err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.ServerURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Login authenticates with username and password. A rejected login
// surfaces as *Error with the server's reason.
func (c *Client) Login(ctx context.Context, creds Credentials) (*LoginResponse, error) {
	if creds.Username == "" {
		return nil, fmt.Errorf("api: username is required for login")
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/login", creds)
	if err != nil {
		return nil, fmt.Errorf("api: login failed: %w", err)
	}

	var response LoginResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("api: failed to parse login response: %w", err)
	}

	c.logger.Info("logged in", "user", creds.Username)
	return &response, nil
}

// Register creates a new account. The server responds with
// ReasonUserTaken when the username is already registered.
func (c *Client) Register(ctx context.Context, creds Credentials) error {
	if creds.Username == "" {
		return fmt.Errorf("api: username is required for registration")
	}
	if _, err := c.doRequest(ctx, http.MethodPost, "/register", creds); err != nil {
		return fmt.Errorf("api: registration failed: %w", err)
	}
	c.logger.Info("registered account", "user", creds.Username)
	return nil
}

// Friends fetches the friend list for a user. The result replaces any
// previously fetched list wholesale — there is no incremental merge.
func (c *Client) Friends(ctx context.Context, user string) ([]Friend, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/friends/"+url.PathEscape(user), nil)
	if err != nil {
		return nil, fmt.Errorf("api: fetching friends: %w", err)
	}
	var friends []Friend
	if err := json.Unmarshal(body, &friends); err != nil {
		return nil, fmt.Errorf("api: failed to parse friends response: %w", err)
	}
	return friends, nil
}

// Groups fetches the group channels a user belongs to.
func (c *Client) Groups(ctx context.Context, user string) ([]Group, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/groups/"+url.PathEscape(user), nil)
	if err != nil {
		return nil, fmt.Errorf("api: fetching groups: %w", err)
	}
	var groups []Group
	if err := json.Unmarshal(body, &groups); err != nil {
		return nil, fmt.Errorf("api: failed to parse groups response: %w", err)
	}
	return groups, nil
}

// Requests fetches the pending friend requests addressed to a user.
func (c *Client) Requests(ctx context.Context, user string) ([]Request, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/requests/"+url.PathEscape(user), nil)
	if err != nil {
		return nil, fmt.Errorf("api: fetching requests: %w", err)
	}
	var requests []Request
	if err := json.Unmarshal(body, &requests); err != nil {
		return nil, fmt.Errorf("api: failed to parse requests response: %w", err)
	}
	return requests, nil
}

// AddFriend sends a friend request. The server responds with
// ReasonAlreadyPending or ReasonUnknownUser on rejection; both pass
// through as *Error.
func (c *Client) AddFriend(ctx context.Context, sender, receiver string) error {
	request := AddFriendRequest{Sender: sender, Receiver: receiver}
	if _, err := c.doRequest(ctx, http.MethodPost, "/add-friend", request); err != nil {
		return fmt.Errorf("api: sending friend request: %w", err)
	}
	return nil
}

// AcceptFriend accepts a pending friend request by id.
func (c *Client) AcceptFriend(ctx context.Context, requestID string) error {
	request := AcceptFriendRequest{RequestID: requestID}
	if _, err := c.doRequest(ctx, http.MethodPost, "/accept-friend", request); err != nil {
		return fmt.Errorf("api: accepting friend request: %w", err)
	}
	return nil
}

// CreateGroup creates a new group channel with a fixed member set.
func (c *Client) CreateGroup(ctx context.Context, request CreateGroupRequest) (*Group, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/create-group", request)
	if err != nil {
		return nil, fmt.Errorf("api: creating group: %w", err)
	}
	var group Group
	if err := json.Unmarshal(body, &group); err != nil {
		return nil, fmt.Errorf("api: failed to parse create-group response: %w", err)
	}
	return &group, nil
}

// UpdateProfile pushes profile changes (avatar, bio, status, theme)
// to the server.
func (c *Client) UpdateProfile(ctx context.Context, profile Profile) error {
	if profile.Username == "" {
		return fmt.Errorf("api: username is required for profile update")
	}
	if _, err := c.doRequest(ctx, http.MethodPost, "/update-profile", profile); err != nil {
		return fmt.Errorf("api: updating profile: %w", err)
	}
	return nil
}

// Media fetches the image messages previously posted in a room.
func (c *Client) Media(ctx context.Context, room string) ([]MediaItem, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/media/"+url.PathEscape(room), nil)
	if err != nil {
		return nil, fmt.Errorf("api: fetching room media: %w", err)
	}
	var items []MediaItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("api: failed to parse media response: %w", err)
	}
	return items, nil
}

// doRequest performs an HTTP request to the chat server and returns
// the response body. On 2xx, returns the body. On 4xx/5xx, returns a
// *Error decoded from the server's {"error": "..."} shape.
func (c *Client) doRequest(ctx context.Context, method, path string, requestBody any) ([]byte, error) {
	requestURL := c.baseURL + path

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("api: failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("api: failed to create request: %w", err)
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("api: request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("api: failed to read response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	var apiErr Error
	if jsonErr := json.Unmarshal(responseBody, &apiErr); jsonErr != nil || apiErr.Reason == "" {
		// Server returned a non-JSON error. Fail loud with the raw body.
		return nil, fmt.Errorf("api: unexpected %d response from %s %s: %s",
			response.StatusCode, method, path, string(responseBody))
	}
	apiErr.StatusCode = response.StatusCode

	return responseBody, &apiErr
}

// maxResponseBytes caps response reads. Avatar payloads are inline
// base64 images, so the cap is generous.
const maxResponseBytes = 32 << 20
