// Copyright 2026 The Cranix Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"errors"
	"fmt"
)

// Error represents a structured error response from the chat server.
// Callers can use errors.As to extract the structured information:
//
//	var apiErr *api.Error
//	if errors.As(err, &apiErr) {
//	    if apiErr.Reason == api.ReasonAlreadyPending { ... }
//	}
type Error struct {
	// Reason is the server-supplied reason string (e.g.,
	// "already_pending", "unknown_user"). Passed through untouched.
	Reason string `json:"error"`
	// StatusCode is the HTTP status code of the response.
	StatusCode int `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: %s (%d)", e.Reason, e.StatusCode)
}

// Reason strings the server uses for relationship commands.
const (
	ReasonAlreadyPending = "already_pending"
	ReasonUnknownUser    = "unknown_user"
	ReasonAlreadyFriends = "already_friends"
	ReasonBadCredentials = "bad_credentials"
	ReasonUserTaken      = "user_taken"
)

// IsReason checks whether err is a *Error with the given reason string.
func IsReason(err error, reason string) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Reason == reason
	}
	return false
}
