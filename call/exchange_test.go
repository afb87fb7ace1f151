// Copyright 2026 The Cranix Authors
// SPDX-License-Identifier: Apache-2.0

package call

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// signalServer is a minimal in-memory signaling broker for exchange
// tests.
type signalServer struct {
	*httptest.Server

	mu         sync.Mutex
	registered map[string]bool
	offers     []signalRecord
	answers    []signalRecord
}

func newSignalServer(t *testing.T) *signalServer {
	t.Helper()
	server := &signalServer{registered: make(map[string]bool)}
	server.Server = httptest.NewServer(http.HandlerFunc(server.handle))
	t.Cleanup(server.Close)
	return server
}

func (s *signalServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/register":
		var reg registration
		json.NewDecoder(r.Body).Decode(&reg)
		if s.registered[reg.UserID] {
			w.WriteHeader(http.StatusConflict)
			return
		}
		s.registered[reg.UserID] = true
		w.WriteHeader(http.StatusCreated)

	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/register/"):
		delete(s.registered, strings.TrimPrefix(r.URL.Path, "/register/"))
		w.WriteHeader(http.StatusNoContent)

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/register/"):
		if s.registered[strings.TrimPrefix(r.URL.Path, "/register/")] {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)

	case r.Method == http.MethodPost && r.URL.Path == "/offers":
		var record signalRecord
		json.NewDecoder(r.Body).Decode(&record)
		s.offers = append(s.offers, record)
		w.WriteHeader(http.StatusCreated)

	case r.Method == http.MethodGet && r.URL.Path == "/offers":
		to := r.URL.Query().Get("to")
		var matched []signalRecord
		for _, record := range s.offers {
			if record.To == to {
				matched = append(matched, record)
			}
		}
		json.NewEncoder(w).Encode(matched)

	default:
		http.NotFound(w, r)
	}
}

func TestHTTPExchange(t *testing.T) {
	server := newSignalServer(t)
	ctx := context.Background()

	exchange, err := NewHTTPExchange(HTTPExchangeConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewHTTPExchange failed: %v", err)
	}

	t.Run("register and lookup", func(t *testing.T) {
		if err := exchange.Register(ctx, "alice"); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		live, err := exchange.Registered(ctx, "alice")
		if err != nil || !live {
			t.Errorf("Registered(alice) = %v, %v; want true", live, err)
		}
		live, err = exchange.Registered(ctx, "bob")
		if err != nil || live {
			t.Errorf("Registered(bob) = %v, %v; want false", live, err)
		}
	})

	t.Run("collision", func(t *testing.T) {
		err := exchange.Register(ctx, "alice")
		if !errors.Is(err, ErrIdentityCollision) {
			t.Errorf("expected ErrIdentityCollision, got: %v", err)
		}
	})

	t.Run("unregister frees the identity", func(t *testing.T) {
		if err := exchange.Unregister(ctx, "alice"); err != nil {
			t.Fatalf("Unregister failed: %v", err)
		}
		if err := exchange.Register(ctx, "alice"); err != nil {
			t.Errorf("register after unregister failed: %v", err)
		}
	})

	t.Run("offers poll once", func(t *testing.T) {
		if err := exchange.PublishOffer(ctx, "bob", "alice", "sdp-offer"); err != nil {
			t.Fatalf("PublishOffer failed: %v", err)
		}

		offers, err := exchange.PollOffers(ctx, "alice")
		if err != nil {
			t.Fatalf("PollOffers failed: %v", err)
		}
		if len(offers) != 1 || offers[0].Peer != "bob" || offers[0].SDP != "sdp-offer" {
			t.Fatalf("unexpected offers: %+v", offers)
		}

		// The same record is not delivered twice.
		offers, err = exchange.PollOffers(ctx, "alice")
		if err != nil {
			t.Fatalf("PollOffers failed: %v", err)
		}
		if len(offers) != 0 {
			t.Errorf("stale offer re-delivered: %+v", offers)
		}
	})

	t.Run("newer offer from the same peer is delivered", func(t *testing.T) {
		time.Sleep(time.Millisecond)
		if err := exchange.PublishOffer(ctx, "bob", "alice", "sdp-offer-2"); err != nil {
			t.Fatalf("PublishOffer failed: %v", err)
		}
		offers, err := exchange.PollOffers(ctx, "alice")
		if err != nil {
			t.Fatalf("PollOffers failed: %v", err)
		}
		if len(offers) != 1 || offers[0].SDP != "sdp-offer-2" {
			t.Errorf("newer offer missing: %+v", offers)
		}
	})
}
