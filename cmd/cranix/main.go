// Copyright 2026 The Cranix Authors
// SPDX-License-Identifier: Apache-2.0

// cranix is the headless Cranix client: it authenticates (silently
// when a valid saved session exists), joins the event channel, loads
// the roster, and registers for voice calls. It runs until the
// connection drops or the process is signalled.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/pflag"

	"github.com/cranix-one/cranix/api"
	"github.com/cranix-one/cranix/call"
	"github.com/cranix-one/cranix/chat"
	"github.com/cranix-one/cranix/identity"
	"github.com/cranix-one/cranix/lib/config"
	"github.com/cranix-one/cranix/roster"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "cranix: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		serverURL   string
		username    string
		audioSource string
		verbose     bool
	)

	flagSet := pflag.NewFlagSet("cranix", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to cranix.yaml (default: $CRANIX_CONFIG)")
	flagSet.StringVar(&serverURL, "server", "", "chat server URL override")
	flagSet.StringVar(&username, "user", "", "account to log in as (default: the saved session)")
	flagSet.StringVar(&audioSource, "audio-source", "", "Ogg Opus capture stream for voice calls")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if serverURL != "" {
		cfg.Server.URL = serverURL
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := api.NewClient(api.ClientConfig{
		ServerURL: cfg.Server.URL,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	store, err := identity.NewStore(cfg.Paths.State)
	if err != nil {
		return err
	}

	session, token, err := establishSession(ctx, client, store, username, logger)
	if err != nil {
		return err
	}
	logger.Info("session established", "user", session.UserID)

	conn, err := chat.Dial(ctx, chat.ConnConfig{
		ServerURL: cfg.Server.URL,
		EventPath: cfg.Server.EventPath,
		Username:  session.UserID,
		Token:     token,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	router := chat.NewRouter(conn, logger)
	router.Bind(conn)

	typingDebounce, err := cfg.TypingDebounce()
	if err != nil {
		return err
	}
	typist := chat.NewTypist(conn, router, session.UserID, nil, typingDebounce)

	pipeline, err := chat.NewPipeline(chat.PipelineConfig{
		Emitter:       conn,
		Router:        router,
		Author:        session.UserID,
		Typist:        typist,
		CommandPrefix: cfg.Chat.CommandPrefix,
		OnCommand:     commandHandler(ctx, client, session, logger),
		OnNotify: func(message chat.Message) {
			logger.Info("new message",
				"room", string(message.Room),
				"author", message.Author,
			)
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}
	pipeline.Bind(conn)

	social := roster.New(client, session.UserID, logger)
	social.Bind(conn)
	if err := social.LoadFriends(ctx); err != nil {
		return err
	}
	if err := social.LoadGroups(ctx); err != nil {
		return err
	}
	if err := social.LoadRequests(ctx); err != nil {
		logger.Warn("loading friend requests failed", "error", err)
	}

	machine, err := buildCallMachine(cfg, session.UserID, audioSource, router, pipeline, logger)
	if err != nil {
		return err
	}

	// Registration retries identity collisions, so it runs in the
	// background and the client is usable for chat meanwhile.
	go func() {
		if err := machine.Start(ctx); err != nil {
			logger.Error("call registration failed", "error", err)
		}
	}()

	term := &console{
		client:   client,
		store:    store,
		session:  session,
		router:   router,
		pipeline: pipeline,
		typist:   typist,
		roster:   social,
		machine:  machine,
		out:      os.Stdout,
		logger:   logger,
	}
	consoleDone := make(chan struct{})
	go func() {
		defer close(consoleDone)
		term.run(ctx, os.Stdin)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case <-consoleDone:
		logger.Info("shutting down")
	case <-conn.Lost():
		logger.Error("connection to server lost")
	}

	// Logout ordering: end any call and release its media before the
	// event channel goes away.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := machine.Shutdown(shutdownCtx); err != nil {
		logger.Warn("call shutdown failed", "error", err)
	}
	return conn.Close()
}

// loadConfig loads from the --config path when given, otherwise from
// $CRANIX_CONFIG.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// establishSession re-authenticates silently from the saved identity
// record when its token is still valid, and falls back to a password
// login (CRANIX_PASSWORD) otherwise. The record is refreshed on every
// successful login.
func establishSession(ctx context.Context, client *api.Client, store *identity.Store, username string, logger *slog.Logger) (*identity.Session, string, error) {
	record, err := store.Load()
	switch {
	case err == nil:
		if (username == "" || username == record.UserID) && record.TokenValid(time.Now()) {
			logger.Info("re-authenticated from saved session", "user", record.UserID)
			return &identity.Session{
				UserID:     record.UserID,
				Avatar:     record.Avatar,
				ThemeColor: record.ThemeColor,
				Status:     identity.StatusOnline,
			}, record.Token, nil
		}
		if username == "" {
			username = record.UserID
		}
	case errors.Is(err, identity.ErrNoRecord):
	default:
		logger.Warn("reading saved session failed", "error", err)
	}

	if username == "" {
		return nil, "", fmt.Errorf("no saved session; pass --user and set CRANIX_PASSWORD")
	}
	password := os.Getenv("CRANIX_PASSWORD")
	if password == "" {
		return nil, "", fmt.Errorf("CRANIX_PASSWORD is not set")
	}

	login, err := client.Login(ctx, api.Credentials{Username: username, Password: password})
	if err != nil {
		if api.IsReason(err, api.ReasonBadCredentials) {
			store.Clear()
		}
		return nil, "", fmt.Errorf("logging in as %s: %w", username, err)
	}

	if err := store.Save(&identity.Record{
		UserID:     username,
		Avatar:     login.Avatar,
		ThemeColor: login.ThemeColor,
		Token:      login.Token,
		SavedAt:    time.Now(),
	}); err != nil {
		logger.Warn("saving session failed", "error", err)
	}

	return &identity.Session{
		UserID:     username,
		Avatar:     login.Avatar,
		Bio:        login.Bio,
		Status:     identity.Status(login.Status),
		ThemeColor: login.ThemeColor,
	}, login.Token, nil
}

// buildCallMachine wires the production signaling stack: HTTP exchange
// against the signaling server, pion WebRTC with the configured ICE
// servers, and Ogg Opus capture for the microphone.
func buildCallMachine(cfg *config.Config, self, audioSource string, router *chat.Router, pipeline *chat.Pipeline, logger *slog.Logger) (*call.Machine, error) {
	exchange, err := call.NewHTTPExchange(call.HTTPExchangeConfig{
		BaseURL: cfg.Signaling.URL,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	iceServers := make([]webrtc.ICEServer, 0, len(cfg.Signaling.ICEServers))
	for _, server := range cfg.Signaling.ICEServers {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       server.URLs,
			Username:   server.Username,
			Credential: server.Credential,
		})
	}
	signaling := call.NewWebRTCSignaling(exchange, iceServers, logger)

	media := call.NewSourceMedia(func(context.Context) (call.SampleSource, error) {
		if audioSource == "" {
			return nil, fmt.Errorf("no audio source configured (--audio-source)")
		}
		return call.NewOggSource(audioSource)
	})

	retryDelay, err := cfg.RegisterRetryDelay()
	if err != nil {
		return nil, err
	}

	return call.NewMachine(call.Config{
		Signaling:           signaling,
		Media:               media,
		Self:                self,
		Rooms:               router,
		Markers:             pipeline,
		RegisterRetryDelay:  retryDelay,
		MaxRegisterAttempts: cfg.Signaling.MaxRegisterAttempts,
		Logger:              logger,
	})
}

// commandHandler interprets client-side slash commands. Command bodies
// never reach the server as chat content.
func commandHandler(ctx context.Context, client *api.Client, session *identity.Session, logger *slog.Logger) func(string) {
	return func(body string) {
		fields := strings.Fields(body)
		if len(fields) == 0 {
			return
		}
		switch fields[0] {
		case "/status":
			if len(fields) != 2 {
				logger.Warn("usage: /status online|idle|dnd")
				return
			}
			status := identity.Status(fields[1])
			switch status {
			case identity.StatusOnline, identity.StatusIdle, identity.StatusDND:
			default:
				logger.Warn("unknown status", "status", fields[1])
				return
			}
			if err := client.UpdateProfile(ctx, api.Profile{
				Username: session.UserID,
				Status:   string(status),
			}); err != nil {
				logger.Warn("updating status failed", "error", err)
				return
			}
			session.Status = status
			logger.Info("status updated", "status", string(status))
		default:
			logger.Warn("unknown command", "command", fields[0])
		}
	}
}
