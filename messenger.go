// Copyright 2026 The relay Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wirechat/relay/duplex"
	"github.com/wirechat/relay/fault"
	"github.com/wirechat/relay/request"
	"github.com/wirechat/relay/retry"
	"github.com/wirechat/relay/timeout"
)

// A Messenger delivers chat turns to the backend over the best
// available transport: the persistent duplex channel when one is
// configured and open, and HTTP otherwise.
//
// Construct a Messenger with New and reuse it; it is safe for
// concurrent use, though the duplex channel carries at most one turn
// at a time.
type Messenger struct {
	cfg     Config
	client  *Client
	channel *duplex.Channel
	logger  zerolog.Logger
}

// New returns a Messenger for the given configuration.
func New(cfg Config) *Messenger {
	cfg = cfg.withDefaults()
	logger := cfg.Logger.With().Str("component", "relay").Logger()

	handlers := &HandlerGroup{}
	lh := &LogHandler{Logger: logger}
	for _, evt := range []Event{BeforeAttempt, AfterAttempt, AfterPlanTimeout, AfterExecutionEnd} {
		handlers.PushBack(evt, lh)
	}
	if cfg.TokenProvider != nil {
		handlers.PushBack(BeforeAttempt, bearerHandler{provider: cfg.TokenProvider, logger: logger})
	}

	client := &Client{
		HTTPDoer: cfg.HTTPDoer,
		RetryPolicy: retry.NewPolicy(
			retry.Times(cfg.MaxRetries).And(retry.StatusCode(retry.TransientCodes...).Or(retry.TransientErr)),
			retry.RespectRetryAfter(retry.NewExpWaiter(cfg.BaseDelay, cfg.MaxDelay, cfg.JitterMax, time.Now())),
		),
		TimeoutPolicy: timeout.Fixed(cfg.Timeout),
		Handlers:      handlers,
	}

	m := &Messenger{
		cfg:    cfg,
		client: client,
		logger: logger,
	}

	if cfg.DuplexURL != "" {
		m.channel = duplex.NewChannel(duplex.Config{
			URL:                  cfg.DuplexURL,
			HeartbeatInterval:    cfg.HeartbeatInterval,
			ReconnectBase:        cfg.BaseDelay,
			ReconnectMax:         cfg.MaxDelay,
			ReconnectJitter:      cfg.JitterMax,
			MaxReconnectAttempts: cfg.MaxReconnects,
			Logger:               cfg.Logger,
			OnClosed: func(code int) {
				logger.Info().Int("code", code).Msg("duplex channel closed")
			},
			OnFatal: func(err error) {
				logger.Error().Err(err).Msg("duplex channel failed")
			},
		})
	}

	return m
}

// Client returns the underlying buffered HTTP client, for callers that
// need to issue plans directly under the same policies.
func (m *Messenger) Client() *Client {
	return m.client
}

// Chat delivers the turn over buffered HTTP and returns the complete
// output text. Transient failures are retried under the configured
// policy before any error is surfaced; the returned error, if any, is
// a classified *fault.Error.
func (m *Messenger) Chat(ctx context.Context, turn Turn) (string, error) {
	p, err := m.plan(ctx, turn, false)
	if err != nil {
		return "", err
	}
	e, err := m.client.Do(p)
	if err != nil {
		return "", err
	}
	if e.StatusCode()/100 != 2 {
		return "", fault.Status(p.Label, e.StatusCode(), e.Body)
	}
	if len(e.Body) == 0 {
		// A 204 resolves successfully with an empty payload.
		return "", nil
	}
	var out chatResponse
	if err := json.Unmarshal(e.Body, &out); err != nil {
		return "", fault.Bad(p.Label, err)
	}
	return out.Output, nil
}

// Send delivers the turn over the preferred transport and blocks until
// its terminal frame: the duplex channel when configured, streaming
// HTTP otherwise. If the duplex attempt fails before producing any
// frame, the turn falls back once to streaming HTTP; once any frame
// has been delivered the transport is committed for the turn.
//
// Exactly one of r.OnDone or r.OnError fires per call. The returned
// error mirrors the terminal notification: nil after OnDone, the same
// failure after OnError.
func (m *Messenger) Send(ctx context.Context, turn Turn, r Receiver) error {
	if m.channel == nil {
		return m.Stream(ctx, turn, r)
	}

	if m.channel.State() != duplex.Open {
		if err := m.channel.Connect(ctx); err != nil {
			m.logger.Warn().Err(err).Msg("duplex unavailable, using stream transport")
			return m.Stream(ctx, turn, r)
		}
	}

	payload, err := json.Marshal(turn.frame(m.cfg))
	if err != nil {
		err = fault.Bad("duplex", err)
		r.OnError(err)
		return err
	}

	id := uuid.NewString()
	tr := &turnTracker{r: r, terminal: make(chan error, 1)}
	if err := m.channel.Send(payload, tr); err != nil {
		m.logger.Warn().Str("turn", id).Err(err).Msg("duplex send rejected, using stream transport")
		return m.Stream(ctx, turn, r)
	}
	m.logger.Debug().Str("turn", id).Msg("turn sent on duplex channel")

	select {
	case err := <-tr.terminal:
		return m.settle(ctx, id, turn, tr, err, r)
	case <-ctx.Done():
		// Cancel guarantees a terminal frame if one has not already
		// raced in.
		m.channel.Cancel()
		return m.settle(ctx, id, turn, tr, <-tr.terminal, r)
	}
}

// settle resolves a duplex turn's terminal state, falling back to the
// stream transport when the turn died before its first frame.
func (m *Messenger) settle(ctx context.Context, id string, turn Turn, tr *turnTracker, err error, r Receiver) error {
	if err == nil {
		return nil
	}
	if tr.committed() || errors.Is(err, errCancelled) {
		return err
	}
	m.logger.Warn().Str("turn", id).Err(err).Msg("duplex turn failed before first frame, using stream transport")
	return m.Stream(ctx, turn, r)
}

// Close shuts down the duplex channel, if any, and releases idle HTTP
// connections.
func (m *Messenger) Close() error {
	m.client.CloseIdleConnections()
	if m.channel == nil {
		return nil
	}
	return m.channel.Close()
}

// plan builds the HTTP request plan for one turn.
func (m *Messenger) plan(ctx context.Context, turn Turn, stream bool) (*request.Plan, error) {
	body, err := json.Marshal(turn.request(m.cfg))
	if err != nil {
		return nil, fault.Bad("chat", err)
	}
	u := m.cfg.BaseURL + "/api/chat?stream=" + strconv.FormatBool(stream)
	p, err := request.NewPlanWithContext(ctx, "POST", u, body)
	if err != nil {
		return nil, fault.Classify("chat", err)
	}
	p.Label = "chat"
	p.Header.Set("Content-Type", "application/json")
	if stream {
		p.Label = "stream"
		p.Header.Set("Accept", "text/event-stream")
	} else {
		p.Header.Set("Accept", "application/json")
	}
	p.Header.Set("X-Request-Id", uuid.NewString())
	return p, nil
}

var errCancelled = &fault.Error{Kind: fault.Cancelled}

// A turnTracker interposes on a duplex turn's receiver so the selector
// can distinguish failures before the first frame (fallback eligible)
// from failures after it (committed).
type turnTracker struct {
	r        Receiver
	terminal chan error

	mu        sync.Mutex
	delivered bool
}

func (t *turnTracker) OnDelta(text string) {
	t.mu.Lock()
	t.delivered = true
	t.mu.Unlock()
	t.r.OnDelta(text)
}

func (t *turnTracker) OnDone() {
	t.r.OnDone()
	t.terminal <- nil
}

func (t *turnTracker) OnError(err error) {
	// Failures before the first frame are withheld from the caller:
	// the selector retries them on the stream transport, which will
	// deliver the turn's terminal notification itself.
	if t.committed() || errors.Is(err, errCancelled) {
		t.r.OnError(err)
	}
	t.terminal <- err
}

func (t *turnTracker) committed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.delivered
}

// bearerHandler refreshes the Authorization header before every
// attempt so short-lived tokens stay valid across retries.
type bearerHandler struct {
	provider TokenProvider
	logger   zerolog.Logger
}

func (h bearerHandler) Handle(_ Event, e *request.Execution) {
	token, err := h.provider()
	if err != nil {
		h.logger.Warn().Err(err).Msg("token provider failed, sending unauthenticated")
		return
	}
	if token == "" {
		return
	}
	header := e.Request.Header.Clone()
	header.Set("Authorization", "Bearer "+token)
	e.Request.Header = header
}
