// Copyright 2026 The Cranix Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestStoreRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	t.Run("load before save", func(t *testing.T) {
		if _, err := store.Load(); !errors.Is(err, ErrNoRecord) {
			t.Fatalf("expected ErrNoRecord, got: %v", err)
		}
	})

	t.Run("save then load", func(t *testing.T) {
		saved := &Record{
			UserID:     "alice",
			Avatar:     "data:image/png;base64,abc",
			ThemeColor: "#0055ff",
			Token:      "tok",
			SavedAt:    time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		}
		if err := store.Save(saved); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		loaded, err := store.Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if loaded.UserID != "alice" || loaded.ThemeColor != "#0055ff" {
			t.Errorf("round trip mismatch: %+v", loaded)
		}
		if !loaded.SavedAt.Equal(saved.SavedAt) {
			t.Errorf("SavedAt mismatch: %v", loaded.SavedAt)
		}
	})

	t.Run("save replaces", func(t *testing.T) {
		if err := store.Save(&Record{UserID: "bob"}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		loaded, err := store.Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if loaded.UserID != "bob" {
			t.Errorf("expected replaced record, got %+v", loaded)
		}
	})

	t.Run("clear", func(t *testing.T) {
		if err := store.Clear(); err != nil {
			t.Fatalf("Clear failed: %v", err)
		}
		if _, err := store.Load(); !errors.Is(err, ErrNoRecord) {
			t.Fatalf("expected ErrNoRecord after clear, got: %v", err)
		}
		// Clearing again is a no-op.
		if err := store.Clear(); err != nil {
			t.Fatalf("second Clear failed: %v", err)
		}
	})
}

// signedToken builds an HS256 token with the given expiry for tests.
func signedToken(t *testing.T, expiry time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": "alice"}
	if !expiry.IsZero() {
		claims["exp"] = expiry.Unix()
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return token
}

func TestTokenValid(t *testing.T) {
	now := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

	t.Run("unexpired token", func(t *testing.T) {
		record := &Record{Token: signedToken(t, now.Add(time.Hour))}
		if !record.TokenValid(now) {
			t.Error("token expiring in an hour should be valid")
		}
	})

	t.Run("expired token", func(t *testing.T) {
		record := &Record{Token: signedToken(t, now.Add(-time.Hour))}
		if record.TokenValid(now) {
			t.Error("expired token should be invalid")
		}
	})

	t.Run("no expiry claim", func(t *testing.T) {
		record := &Record{Token: signedToken(t, time.Time{})}
		if !record.TokenValid(now) {
			t.Error("token without exp should be treated as valid")
		}
	})

	t.Run("empty token", func(t *testing.T) {
		record := &Record{}
		if record.TokenValid(now) {
			t.Error("empty token should be invalid")
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		record := &Record{Token: "not-a-jwt"}
		if record.TokenValid(now) {
			t.Error("malformed token should be invalid")
		}
	})
}
