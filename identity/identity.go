// Copyright 2026 The Cranix Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity holds the authenticated user's session and the
// persisted record that enables silent re-authentication on startup.
package identity

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cranix-one/cranix/lib/codec"
)

// Status is the user-selected presence status.
type Status string

const (
	StatusOnline  Status = "online"
	StatusIdle    Status = "idle"
	StatusDND     Status = "dnd"
	StatusOffline Status = "offline"
)

// Session is the in-memory identity of the authenticated user. Created
// on successful login, destroyed on logout.
type Session struct {
	UserID     string
	Avatar     string
	Bio        string
	Status     Status
	ThemeColor string
}

// Record is the single persisted identity record surviving process
// restarts. It carries just enough to re-authenticate silently and
// render the first frame before the server responds.
type Record struct {
	UserID     string    `cbor:"user_id"`
	Avatar     string    `cbor:"avatar"`
	ThemeColor string    `cbor:"theme_color"`
	Token      string    `cbor:"token"`
	SavedAt    time.Time `cbor:"saved_at"`
}

// TokenValid reports whether the stored auth token is present and not
// expired at the given instant. The token is decoded without signature
// verification — validation is the server's job; this check only
// avoids a doomed silent re-auth attempt with a stale token.
func (r *Record) TokenValid(now time.Time) bool {
	if r.Token == "" {
		return false
	}
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(r.Token, jwt.MapClaims{})
	if err != nil {
		return false
	}
	expiry, err := token.Claims.GetExpirationTime()
	if err != nil || expiry == nil {
		// Tokens without an exp claim never expire client-side.
		return err == nil
	}
	return expiry.After(now)
}

// ErrNoRecord is returned by Store.Load when no identity has been
// persisted yet. A fresh install, not a failure.
var ErrNoRecord = errors.New("identity: no persisted record")

// recordFile is the file name of the persisted record inside the
// state directory.
const recordFile = "identity.cbor"

// Store persists one Record to the local state directory.
type Store struct {
	path string
}

// NewStore creates a store rooted at the given state directory. The
// directory is created on first Save, not here.
func NewStore(stateDir string) (*Store, error) {
	if stateDir == "" {
		return nil, fmt.Errorf("identity: state directory is required")
	}
	return &Store{path: filepath.Join(stateDir, recordFile)}, nil
}

// Load reads the persisted record. Returns ErrNoRecord when the file
// does not exist.
func (s *Store) Load() (*Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoRecord
		}
		return nil, fmt.Errorf("identity: reading %s: %w", s.path, err)
	}
	var record Record
	if err := codec.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("identity: decoding %s: %w", s.path, err)
	}
	return &record, nil
}

// Save writes the record, replacing any previous one. The write goes
// through a temp file and rename so a crash never leaves a truncated
// record behind.
func (s *Store) Save(record *Record) error {
	data, err := codec.Marshal(record)
	if err != nil {
		return fmt.Errorf("identity: encoding record: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("identity: creating state directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("identity: writing record: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("identity: installing record: %w", err)
	}
	return nil
}

// Clear removes the persisted record. Clearing an absent record is a
// no-op; logout must succeed on a fresh install.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("identity: removing record: %w", err)
	}
	return nil
}
