// Copyright 2026 The Cranix Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the Cranix client.
//
// Configuration is loaded from a single YAML file specified by:
//   - CRANIX_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. The file may contain
// environment-specific sections (development, staging, production)
// that override base values when the environment matches.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for the Cranix client.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	// Server configures the chat server endpoints.
	Server ServerConfig `yaml:"server"`

	// Signaling configures the call signaling layer.
	Signaling SignalingConfig `yaml:"signaling"`

	// Chat configures conversation behavior.
	Chat ChatConfig `yaml:"chat"`

	// Paths configures local state locations.
	Paths PathsConfig `yaml:"paths"`

	// Per-environment overrides, applied after the base config.
	Development *Overrides `yaml:"development,omitempty"`
	Staging     *Overrides `yaml:"staging,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides contains fields that can be overridden per environment.
type Overrides struct {
	Server    *ServerConfig    `yaml:"server,omitempty"`
	Signaling *SignalingConfig `yaml:"signaling,omitempty"`
	Chat      *ChatConfig      `yaml:"chat,omitempty"`
	Paths     *PathsConfig     `yaml:"paths,omitempty"`
}

// ServerConfig configures the chat server endpoints.
type ServerConfig struct {
	// URL is the base HTTP URL of the chat server
	// (e.g., "http://localhost:3000").
	URL string `yaml:"url"`

	// EventPath is the websocket path for the persistent event
	// channel. Default: /events
	EventPath string `yaml:"event_path"`
}

// SignalingConfig configures the peer-to-peer call signaling layer.
type SignalingConfig struct {
	// URL is the base URL of the signaling server.
	URL string `yaml:"url"`

	// RegisterRetryDelay is the wait between identity registration
	// attempts after a collision. Default: 1s
	RegisterRetryDelay string `yaml:"register_retry_delay"`

	// MaxRegisterAttempts bounds registration retries after identity
	// collisions. Zero retries forever.
	MaxRegisterAttempts int `yaml:"max_register_attempts"`

	// ICEServers lists STUN/TURN servers for candidate gathering.
	// Order matters: they are tried in sequence.
	ICEServers []ICEServer `yaml:"ice_servers"`
}

// ICEServer is a single STUN or TURN server entry.
type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty"`
}

// ChatConfig configures conversation behavior.
type ChatConfig struct {
	// TypingDebounce is how long after the last keystroke the client
	// emits stop_typing. Default: 2s
	TypingDebounce string `yaml:"typing_debounce"`

	// CommandPrefix marks message bodies to intercept client-side
	// instead of sending as chat content. Default: /
	CommandPrefix string `yaml:"command_prefix"`
}

// PathsConfig configures local state locations.
type PathsConfig struct {
	// State is where the persisted identity record lives.
	State string `yaml:"state"`
}

// Default returns the default configuration. These defaults are a base
// before loading the config file, ensuring all fields have sensible
// zero-values; the config file itself is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Environment: Development,
		Server: ServerConfig{
			URL:       "http://localhost:3000",
			EventPath: "/events",
		},
		Signaling: SignalingConfig{
			URL:                 "http://localhost:3002",
			RegisterRetryDelay:  "1s",
			MaxRegisterAttempts: 0,
		},
		Chat: ChatConfig{
			TypingDebounce: "2s",
			CommandPrefix:  "/",
		},
		Paths: PathsConfig{
			State: filepath.Join(homeDir, ".local", "state", "cranix"),
		},
	}
}

// Load loads configuration from the CRANIX_CONFIG environment variable.
// There are no fallbacks: if CRANIX_CONFIG is not set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv("CRANIX_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("CRANIX_CONFIG environment variable not set; " +
			"set it to the path of your cranix.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. The config
// file is the single source of truth; environment variables do not
// override values.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.applyOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// applyOverrides merges the section matching the configured
// environment over the base values.
func (c *Config) applyOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}
	if overrides.Server != nil {
		c.Server = *overrides.Server
	}
	if overrides.Signaling != nil {
		c.Signaling = *overrides.Signaling
	}
	if overrides.Chat != nil {
		c.Chat = *overrides.Chat
	}
	if overrides.Paths != nil {
		c.Paths = *overrides.Paths
	}
}

// Validate checks the configuration for structural problems.
func (c *Config) Validate() error {
	switch c.Environment {
	case Development, Staging, Production:
	default:
		return fmt.Errorf("unknown environment %q", c.Environment)
	}
	if c.Server.URL == "" {
		return fmt.Errorf("server.url is required")
	}
	if _, err := c.TypingDebounce(); err != nil {
		return err
	}
	if _, err := c.RegisterRetryDelay(); err != nil {
		return err
	}
	return nil
}

// TypingDebounce returns the parsed typing debounce duration.
func (c *Config) TypingDebounce() (time.Duration, error) {
	return parseDuration("chat.typing_debounce", c.Chat.TypingDebounce, 2*time.Second)
}

// RegisterRetryDelay returns the parsed registration retry delay.
func (c *Config) RegisterRetryDelay() (time.Duration, error) {
	return parseDuration("signaling.register_retry_delay", c.Signaling.RegisterRetryDelay, time.Second)
}

func parseDuration(field, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", field, value)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: duration must be positive, got %q", field, value)
	}
	return d, nil
}
