// Copyright 2026 The Cranix Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds small helpers shared by tests across the
// repository: channel receive/close assertions with timeouts.
package testutil
