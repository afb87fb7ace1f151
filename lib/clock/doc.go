// Copyright 2026 The Cranix Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for testability. The typing debounce
// and the call registration retry both run on a Clock so tests can
// advance time deterministically instead of sleeping.
package clock
