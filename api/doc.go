// Copyright 2026 The Cranix Authors
// SPDX-License-Identifier: Apache-2.0

// Package api wraps the chat server's request/response endpoints:
// account auth (login, register), roster lookups (friends, groups,
// pending requests), relationship commands (add-friend, accept-friend,
// create-group), profile updates, and room media listing.
//
// [Client] holds the server base URL and HTTP transport. All endpoint
// failures are returned as [*Error] carrying the server-supplied
// reason string and HTTP status code; [IsReason] tests for a specific
// reason. Request URLs are built by string concatenation on a
// trailing-slash-stripped base URL.
package api
