// Copyright 2026 The relay Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package relay

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// A TokenProvider supplies the bearer token sent with each attempt.
// It is invoked per attempt so short-lived tokens stay fresh across
// retries. Returning an empty token sends no Authorization header.
type TokenProvider func() (string, error)

// Config configures a Messenger. The zero value is usable for tests
// against a local backend once BaseURL is set; DefaultConfig fills in
// production-shaped defaults.
//
// A Config is treated as immutable after it is passed to New.
type Config struct {
	// BaseURL is the HTTP origin of the chat backend, without a
	// trailing slash, e.g. "http://localhost:8000".
	BaseURL string

	// DuplexURL is the WebSocket chat endpoint. Empty disables the
	// duplex transport and every turn goes over HTTP.
	DuplexURL string

	// Provider and Model are the default inference routing fields
	// stamped on turns that do not set their own.
	Provider string
	Model    string

	// EnableTools requests server-side tool use on every turn.
	EnableTools bool

	// Timeout is the per-attempt deadline for buffered requests.
	// Default: 30 seconds.
	Timeout time.Duration

	// MaxRetries bounds retries after the initial attempt. Default: 3.
	MaxRetries int

	// BaseDelay is the first retry backoff delay, doubled per attempt.
	// Default: 1 second.
	BaseDelay time.Duration

	// MaxDelay caps the retry backoff delay. Default: 30 seconds.
	MaxDelay time.Duration

	// JitterMax is the maximum random addition to each backoff delay.
	// Default: 250 milliseconds.
	JitterMax time.Duration

	// HeartbeatInterval is the duplex keepalive period. Default: 25
	// seconds.
	HeartbeatInterval time.Duration

	// MaxReconnects bounds consecutive duplex reconnect attempts.
	// Default: 5.
	MaxReconnects int

	// TokenProvider supplies bearer tokens. Nil sends no
	// Authorization header.
	TokenProvider TokenProvider

	// HTTPDoer overrides the HTTP transport. Nil uses
	// http.DefaultClient.
	HTTPDoer HTTPDoer

	// Logger receives structured logs. The zero value is silent.
	Logger zerolog.Logger
}

// DefaultConfig returns a Config with the stock defaults and the given
// base URL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:           baseURL,
		Timeout:           30 * time.Second,
		MaxRetries:        3,
		BaseDelay:         time.Second,
		MaxDelay:          30 * time.Second,
		JitterMax:         250 * time.Millisecond,
		HeartbeatInterval: 25 * time.Second,
		MaxReconnects:     5,
		Logger:            zerolog.Nop(),
	}
}

// ConfigFromEnv builds a Config from RELAY_* environment variables,
// falling back to the stock defaults for anything unset:
//
//	RELAY_BASE_URL           HTTP origin of the backend
//	RELAY_DUPLEX_URL         WebSocket endpoint (empty disables duplex)
//	RELAY_PROVIDER           default inference provider
//	RELAY_MODEL              default model
//	RELAY_ENABLE_TOOLS       "true" to request tool use
//	RELAY_TIMEOUT_SECONDS    per-attempt deadline
//	RELAY_MAX_RETRIES        retry bound
//	RELAY_BASE_DELAY_MS      first backoff delay
//	RELAY_HEARTBEAT_SECONDS  duplex keepalive period
//	RELAY_MAX_RECONNECTS     duplex reconnect budget
func ConfigFromEnv() Config {
	cfg := DefaultConfig(os.Getenv("RELAY_BASE_URL"))
	cfg.DuplexURL = os.Getenv("RELAY_DUPLEX_URL")
	cfg.Provider = os.Getenv("RELAY_PROVIDER")
	cfg.Model = os.Getenv("RELAY_MODEL")
	cfg.EnableTools = os.Getenv("RELAY_ENABLE_TOOLS") == "true"
	if n, ok := envInt("RELAY_TIMEOUT_SECONDS"); ok {
		cfg.Timeout = time.Duration(n) * time.Second
	}
	if n, ok := envInt("RELAY_MAX_RETRIES"); ok {
		cfg.MaxRetries = n
	}
	if n, ok := envInt("RELAY_BASE_DELAY_MS"); ok {
		cfg.BaseDelay = time.Duration(n) * time.Millisecond
	}
	if n, ok := envInt("RELAY_HEARTBEAT_SECONDS"); ok {
		cfg.HeartbeatInterval = time.Duration(n) * time.Second
	}
	if n, ok := envInt("RELAY_MAX_RECONNECTS"); ok {
		cfg.MaxReconnects = n
	}
	return cfg
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (cfg Config) withDefaults() Config {
	d := DefaultConfig(cfg.BaseURL)
	if cfg.Timeout == 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = d.MaxRetries
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = d.BaseDelay
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = d.MaxDelay
	}
	if cfg.JitterMax == 0 {
		cfg.JitterMax = d.JitterMax
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = d.HeartbeatInterval
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = d.MaxReconnects
	}
	return cfg
}
