// Copyright 2026 The Cranix Authors
// SPDX-License-Identifier: Apache-2.0

// Package chat is the conversation core of the Cranix client: the
// single persistent event channel to the server, the active-room
// router, and the message pipeline.
//
// [Conn] owns the websocket connection. It is the only ingress and
// egress for server events: a single read goroutine decodes inbound
// envelopes and dispatches them to subscribers by event name, one
// handler at a time, so every handler runs to completion before the
// next event is processed. A dropped connection surfaces as the
// synthetic connection_lost event; the package never reconnects on
// its own — that is the caller's decision.
//
// [Router] tracks the one active room (direct pairing or group
// channel) and owns its message timeline. Switching rooms clears the
// timeline and requests history; history and typing indicators for
// any other room are ignored.
//
// [Pipeline] builds outbound message, reaction, and deletion events
// and merges inbound ones into the active timeline. Locally authored
// messages are appended optimistically before the server acknowledges
// them, and the local copy is final — there is no id reconciliation.
// Message bodies starting with the command prefix are intercepted
// client-side and never reach the server.
//
// [Typist] debounces typing signals: one typing event per keystroke
// burst, and a stop_typing event after the configured idle delay.
package chat
