// Copyright 2026 The Cranix Authors
// SPDX-License-Identifier: Apache-2.0

package call

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Compile-time interface check.
var _ SignalExchange = (*HTTPExchange)(nil)

// HTTPExchange is the production SignalExchange: it talks to the
// signaling server's REST API. Identities are leased registrations on
// the broker; offers and answers are stored records the parties poll
// for.
type HTTPExchange struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	// lastSeen filters out already-processed signals by timestamp, so
	// a poll never re-delivers the offer it returned last round.
	mu       sync.Mutex
	lastSeen map[string]time.Time
}

// HTTPExchangeConfig holds configuration for creating an HTTPExchange.
type HTTPExchangeConfig struct {
	// BaseURL is the signaling server's base URL. Required.
	BaseURL string
	// HTTPClient is used for requests. If nil, a client with a 10
	// second timeout is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default().
	Logger *slog.Logger
}

// NewHTTPExchange creates an exchange bound to the signaling server.
func NewHTTPExchange(config HTTPExchangeConfig) (*HTTPExchange, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("call: BaseURL is required")
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPExchange{
		baseURL:    config.BaseURL,
		httpClient: httpClient,
		logger:     logger,
		lastSeen:   make(map[string]time.Time),
	}, nil
}

// registration is the request body for claiming an identity.
type registration struct {
	UserID string `json:"user_id"`
}

// signalRecord is the wire form of a relayed offer or answer.
type signalRecord struct {
	From      string `json:"from"`
	To        string `json:"to"`
	SDP       string `json:"sdp"`
	Timestamp string `json:"timestamp"`
}

func (e *HTTPExchange) Register(ctx context.Context, userID string) error {
	status, _, err := e.do(ctx, http.MethodPost, "/register", registration{UserID: userID})
	if err != nil {
		return fmt.Errorf("call: registering %s: %w", userID, err)
	}
	if status == http.StatusConflict {
		return fmt.Errorf("%w: %s", ErrIdentityCollision, userID)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("call: registering %s: server returned %d", userID, status)
	}
	return nil
}

func (e *HTTPExchange) Unregister(ctx context.Context, userID string) error {
	status, _, err := e.do(ctx, http.MethodDelete, "/register/"+url.PathEscape(userID), nil)
	if err != nil {
		return fmt.Errorf("call: unregistering %s: %w", userID, err)
	}
	// Gone already is fine: unregister is idempotent.
	if status != http.StatusOK && status != http.StatusNoContent && status != http.StatusNotFound {
		return fmt.Errorf("call: unregistering %s: server returned %d", userID, status)
	}
	return nil
}

func (e *HTTPExchange) Registered(ctx context.Context, peerID string) (bool, error) {
	status, _, err := e.do(ctx, http.MethodGet, "/register/"+url.PathEscape(peerID), nil)
	if err != nil {
		return false, fmt.Errorf("call: looking up %s: %w", peerID, err)
	}
	switch status {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, fmt.Errorf("call: looking up %s: server returned %d", peerID, status)
}

func (e *HTTPExchange) PublishOffer(ctx context.Context, userID, peerID, sdp string) error {
	return e.publish(ctx, "/offers", userID, peerID, sdp)
}

func (e *HTTPExchange) PublishAnswer(ctx context.Context, userID, peerID, sdp string) error {
	return e.publish(ctx, "/answers", userID, peerID, sdp)
}

func (e *HTTPExchange) publish(ctx context.Context, path, userID, peerID, sdp string) error {
	record := signalRecord{
		From:      userID,
		To:        peerID,
		SDP:       sdp,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	status, _, err := e.do(ctx, http.MethodPost, path, record)
	if err != nil {
		return fmt.Errorf("call: publishing to %s: %w", path, err)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("call: publishing to %s: server returned %d", path, status)
	}
	return nil
}

func (e *HTTPExchange) PollOffers(ctx context.Context, userID string) ([]SignalMessage, error) {
	return e.poll(ctx, "/offers", userID)
}

func (e *HTTPExchange) PollAnswers(ctx context.Context, userID string) ([]SignalMessage, error) {
	return e.poll(ctx, "/answers", userID)
}

// poll fetches signals directed at userID and filters out ones already
// delivered in a previous round.
func (e *HTTPExchange) poll(ctx context.Context, path, userID string) ([]SignalMessage, error) {
	status, body, err := e.do(ctx, http.MethodGet, path+"?to="+url.QueryEscape(userID), nil)
	if err != nil {
		return nil, fmt.Errorf("call: polling %s: %w", path, err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("call: polling %s: server returned %d", path, status)
	}

	var records []signalRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("call: decoding %s response: %w", path, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var messages []SignalMessage
	for _, record := range records {
		timestamp, err := time.Parse(time.RFC3339Nano, record.Timestamp)
		if err != nil {
			e.logger.Warn("discarding signal with bad timestamp",
				"from", record.From, "timestamp", record.Timestamp)
			continue
		}
		seenKey := path + ":" + userID + ":" + record.From
		if last, ok := e.lastSeen[seenKey]; ok && !timestamp.After(last) {
			continue
		}
		e.lastSeen[seenKey] = timestamp

		messages = append(messages, SignalMessage{
			Peer:      record.From,
			SDP:       record.SDP,
			Timestamp: record.Timestamp,
		})
	}
	return messages, nil
}

// do executes one request and returns the status code and body.
func (e *HTTPExchange) do(ctx context.Context, method, path string, requestBody any) (int, []byte, error) {
	var reader io.Reader
	if requestBody != nil {
		data, err := json.Marshal(requestBody)
		if err != nil {
			return 0, nil, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	request, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := e.httpClient.Do(request)
	if err != nil {
		return 0, nil, err
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("reading response: %w", err)
	}
	return response.StatusCode, body, nil
}
